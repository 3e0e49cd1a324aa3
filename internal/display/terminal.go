package display

import (
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"github.com/rbright/storybook/internal/input"
	"github.com/rbright/storybook/internal/layout"
)

const (
	sideMargin   = 2
	topMargin    = 1
	navRows      = 4
	cornerWidth  = 6
	cornerHeight = 2
)

var buttonLabels = [3]string{"[ < Back ]", "[ New Story ]", "[ Next > ]"}

var (
	paperStyle   = tcell.StyleDefault.Background(tcell.ColorOldLace).Foreground(tcell.ColorSaddleBrown)
	titleStyle   = paperStyle.Bold(true).Foreground(tcell.ColorDarkRed)
	buttonStyle  = tcell.StyleDefault.Background(tcell.ColorSaddleBrown).Foreground(tcell.ColorOldLace).Bold(true)
	captionStyle = paperStyle.Dim(true)
)

type screenKind int

const (
	screenNone screenKind = iota
	screenWelcome
	screenMessage
	screenPage
)

// Terminal draws on a full-screen tcell surface and reads keys and mouse taps.
type Terminal struct {
	screen tcell.Screen

	mu        sync.Mutex
	kind      screenKind
	message   string
	frame     Frame
	pressed   bool
	closeOnce sync.Once
}

// NewTerminal initializes screen for kiosk use.
func NewTerminal(screen tcell.Screen) (*Terminal, error) {
	if err := screen.Init(); err != nil {
		return nil, err
	}
	screen.EnableMouse(tcell.MouseButtonEvents)
	screen.HideCursor()
	screen.SetStyle(paperStyle)
	screen.Clear()
	return &Terminal{screen: screen}, nil
}

func (t *Terminal) Geometry() Geometry {
	w, h := t.screen.Size()
	return Geometry{
		Engine:   layout.Engine{LineGap: 0, ParagraphGap: 1},
		Viewport: layout.Viewport{Width: max(w-2*sideMargin, 1), Height: max(h-topMargin-navRows, 1)},
		Title:    layout.CellMetrics{},
		Body:     layout.CellMetrics{},
	}
}

func (t *Terminal) Corner() input.Rect {
	w, _ := t.screen.Size()
	return input.Rect{X: w - cornerWidth, Y: 0, W: cornerWidth - 1, H: cornerHeight - 1}
}

func (t *Terminal) Buttons() []input.Button {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.kind != screenPage {
		return nil
	}
	return navButtons(t.frame.Back, t.buttonRects())
}

// buttonRects spreads the three labels evenly across the navigation row.
func (t *Terminal) buttonRects() [3]input.Rect {
	w, h := t.screen.Size()
	total := 0
	for _, label := range buttonLabels {
		total += runewidth.StringWidth(label)
	}
	spacing := max((w-total)/4, 0)

	var rects [3]input.Rect
	x := spacing
	for i, label := range buttonLabels {
		width := runewidth.StringWidth(label)
		rects[i] = input.Rect{X: x, Y: h - navRows + 1, W: width - 1, H: 1}
		x += width + spacing
	}
	return rects
}

func (t *Terminal) ShowWelcome() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.kind = screenWelcome
	t.draw()
}

func (t *Terminal) ShowMessage(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.kind = screenMessage
	t.message = text
	t.draw()
}

func (t *Terminal) ShowPage(f Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.kind = screenPage
	t.frame = f
	t.draw()
}

// Poll drains pending events without blocking. A resize redraws the last
// screen as is and is reported so the caller can lay pages out again.
func (t *Terminal) Poll() []input.Event {
	var events []input.Event
	for t.screen.HasPendingEvent() {
		switch ev := t.screen.PollEvent().(type) {
		case nil:
			return append(events, input.Quit())
		case *tcell.EventKey:
			if e, ok := keyEvent(ev); ok {
				events = append(events, e)
			}
		case *tcell.EventMouse:
			if e, ok := t.mouseEvent(ev); ok {
				events = append(events, e)
			}
		case *tcell.EventResize:
			t.mu.Lock()
			t.screen.Sync()
			t.draw()
			t.mu.Unlock()
			events = append(events, input.Resize())
		}
	}
	return events
}

func (t *Terminal) Close() error {
	t.closeOnce.Do(t.screen.Fini)
	return nil
}

func keyEvent(ev *tcell.EventKey) (input.Event, bool) {
	switch ev.Key() {
	case tcell.KeyEscape:
		return input.KeyPress(input.KeyEscape), true
	case tcell.KeyEnter:
		return input.KeyPress(input.KeyEnter), true
	case tcell.KeyLeft:
		return input.KeyPress(input.KeyLeft), true
	case tcell.KeyRight:
		return input.KeyPress(input.KeyRight), true
	case tcell.KeyCtrlC:
		return input.Quit(), true
	case tcell.KeyRune:
		return input.RunePress(ev.Rune()), true
	default:
		return input.Event{}, false
	}
}

// mouseEvent reports the press edge of the primary button only.
func (t *Terminal) mouseEvent(ev *tcell.EventMouse) (input.Event, bool) {
	down := ev.Buttons()&tcell.Button1 != 0
	t.mu.Lock()
	wasDown := t.pressed
	t.pressed = down
	t.mu.Unlock()
	if !down || wasDown {
		return input.Event{}, false
	}
	x, y := ev.Position()
	return input.PointerDown(x, y), true
}

func (t *Terminal) draw() {
	t.screen.SetStyle(paperStyle)
	t.screen.Clear()

	switch t.kind {
	case screenWelcome:
		t.drawCentered([]string{WelcomeTitle, "", WelcomeSubtitle}, titleStyle)
	case screenMessage:
		vp := t.Geometry().Viewport
		t.drawCentered(layout.Wrap(t.message, vp.Width, layout.CellMetrics{}), titleStyle)
	case screenPage:
		t.drawPage()
	}
	t.screen.Show()
}

func (t *Terminal) drawCentered(lines []string, style tcell.Style) {
	w, h := t.screen.Size()
	y := max((h-len(lines))/2, 0)
	for _, line := range lines {
		x := max((w-runewidth.StringWidth(line))/2, 0)
		t.drawText(x, y, line, style)
		y++
	}
}

func (t *Terminal) drawPage() {
	for _, line := range t.frame.Page.Lines {
		style := paperStyle
		if line.Title {
			style = titleStyle
		}
		t.drawText(sideMargin+line.X, topMargin+line.Y, line.Text, style)
	}

	rects := t.buttonRects()
	for i, button := range navButtons(t.frame.Back, rects) {
		if button.Visible {
			t.drawText(button.Bounds.X, button.Bounds.Y, buttonLabels[i], buttonStyle)
		}
	}

	w, h := t.screen.Size()
	caption := progress(t.frame)
	t.drawText(max(w-sideMargin-runewidth.StringWidth(caption), 0), h-1, caption, captionStyle)
}

func (t *Terminal) drawText(x int, y int, text string, style tcell.Style) {
	for _, r := range text {
		t.screen.SetContent(x, y, r, nil, style)
		x += runewidth.RuneWidth(r)
	}
}
