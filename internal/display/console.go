package display

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/rbright/storybook/internal/input"
	"github.com/rbright/storybook/internal/layout"
)

const (
	DefaultConsoleWidth  = 64
	DefaultConsoleHeight = 16
)

var (
	consoleAccent    = lipgloss.Color("#c2410c")
	consoleTitle     = lipgloss.NewStyle().Bold(true).Foreground(consoleAccent)
	consolePage      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(consoleAccent).Padding(0, 2)
	consoleMessage   = lipgloss.NewStyle().Bold(true).Align(lipgloss.Center)
	consoleHelper    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	consoleKey       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#ffd166")).Padding(0, 1)
	consoleKeyDetail = lipgloss.NewStyle().PaddingRight(2)
)

// Console renders screens as styled text blocks and reads one command per line.
//
// Commands: n/next, p/prev, s/new, q/quit, an empty line (tap), and
// "tap X Y" for a pointer press at cell coordinates.
type Console struct {
	out    io.Writer
	width  int
	height int
	events chan input.Event
	done   chan struct{}
	// readerDone closes when the command reader returns.
	readerDone chan struct{}

	mu        sync.Mutex
	closeOnce sync.Once
}

// NewConsole starts reading commands from in. EOF on in yields a quit event.
func NewConsole(in io.Reader, out io.Writer, width int, height int) *Console {
	c := &Console{
		out:        out,
		width:      width,
		height:     height,
		events:     make(chan input.Event, 64),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	if in == nil {
		close(c.readerDone)
		return c
	}
	go c.read(in)
	return c
}

// read stops at EOF or once Close is called, whichever comes first. A reader
// blocked inside in itself only notices Close on its next line.
func (c *Console) read(in io.Reader) {
	defer close(c.readerDone)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ev, ok := parseCommand(scanner.Text()); ok && !c.send(ev) {
			return
		}
	}
	c.send(input.Quit())
}

func (c *Console) send(ev input.Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func parseCommand(line string) (input.Event, bool) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return input.KeyPress(input.KeyEnter), true
	}
	switch fields[0] {
	case "n", "next":
		return input.RunePress('n'), true
	case "p", "prev", "back":
		return input.RunePress('p'), true
	case "s", "new":
		return input.RunePress('s'), true
	case "q", "quit", "exit":
		return input.KeyPress(input.KeyEscape), true
	case "tap":
		if len(fields) != 3 {
			return input.Event{}, false
		}
		x, errX := strconv.Atoi(fields[1])
		y, errY := strconv.Atoi(fields[2])
		if errX != nil || errY != nil {
			return input.Event{}, false
		}
		return input.PointerDown(x, y), true
	default:
		return input.Event{}, false
	}
}

// Poll drains commands read so far without blocking.
func (c *Console) Poll() []input.Event {
	var events []input.Event
	for {
		select {
		case ev := <-c.events:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func (c *Console) Geometry() Geometry {
	return Geometry{
		Engine:   layout.Engine{LineGap: 0, ParagraphGap: 1},
		Viewport: layout.Viewport{Width: c.width, Height: c.height},
		Title:    layout.CellMetrics{},
		Body:     layout.CellMetrics{},
	}
}

func (c *Console) Corner() input.Rect {
	return input.Rect{X: c.width - cornerWidth, Y: 0, W: cornerWidth - 1, H: cornerHeight - 1}
}

// Buttons is empty: console navigation uses keys.
func (c *Console) Buttons() []input.Button {
	return nil
}

func (c *Console) ShowWelcome() {
	c.render(lipgloss.JoinVertical(
		lipgloss.Center,
		consoleTitle.Render(WelcomeTitle),
		"",
		wordwrap.String(WelcomeSubtitle, c.width),
	))
}

func (c *Console) ShowMessage(text string) {
	c.render(consoleMessage.Width(c.width).Render(wordwrap.String(text, c.width)))
}

func (c *Console) ShowPage(f Frame) {
	rows := make([]string, 0, len(f.Page.Lines))
	for _, line := range f.Page.Lines {
		for len(rows) < line.Y {
			rows = append(rows, "")
		}
		text := strings.Repeat(" ", line.X) + line.Text
		if line.Title {
			text = consoleTitle.Render(text)
		}
		rows = append(rows, text)
	}

	keys := []string{}
	if f.Back {
		keys = append(keys, consoleKey.Render("p")+consoleKeyDetail.Render(" back"))
	}
	keys = append(keys,
		consoleKey.Render("n")+consoleKeyDetail.Render(" next"),
		consoleKey.Render("s")+consoleKeyDetail.Render(" new story"),
	)

	c.render(lipgloss.JoinVertical(
		lipgloss.Left,
		consolePage.Render(strings.Join(rows, "\n")),
		consoleHelper.Render(progress(f)),
		lipgloss.JoinHorizontal(lipgloss.Top, keys...),
	))
}

func (c *Console) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *Console) render(block string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, block)
	_, _ = fmt.Fprintln(c.out)
}
