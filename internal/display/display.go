// Package display renders kiosk screens and reports raw input events.
package display

import (
	"fmt"
	"io"

	"github.com/gdamore/tcell/v2"
	"github.com/rbright/storybook/internal/config"
	"github.com/rbright/storybook/internal/input"
	"github.com/rbright/storybook/internal/layout"
)

const (
	WelcomeTitle    = "The Magic Storybook"
	WelcomeSubtitle = "Tell me an idea and I'll tell you a story."
)

// Button names reported by Surface.Buttons.
const (
	ButtonBack = "back"
	ButtonNew  = "new"
	ButtonNext = "next"
)

// Geometry is the page text area and the fonts used to fill it.
type Geometry struct {
	Engine   layout.Engine
	Viewport layout.Viewport
	Title    layout.Metrics
	Body     layout.Metrics
}

// Paginate lays out a story for this geometry.
func (g Geometry) Paginate(title string, body string) []layout.Page {
	return g.Engine.Paginate(title, body, g.Viewport, g.Title, g.Body)
}

// Frame is one story page plus its place in the library.
type Frame struct {
	Page       layout.Page
	StoryIndex int
	StoryCount int
	PageIndex  int
	PageCount  int
	Back       bool
}

// Surface is a display sink that is also the kiosk's input source.
type Surface interface {
	input.Source
	Geometry() Geometry
	// Corner is the secret-exit tap region.
	Corner() input.Rect
	// Buttons are the hit-testable regions of the screen shown last.
	Buttons() []input.Button
	ShowWelcome()
	ShowMessage(text string)
	ShowPage(Frame)
	Close() error
}

// New opens the configured backend.
func New(cfg config.DisplayConfig, in io.Reader, out io.Writer) (Surface, error) {
	switch cfg.Backend {
	case config.DisplayTerminal, "":
		screen, err := tcell.NewScreen()
		if err != nil {
			return nil, fmt.Errorf("create terminal screen: %w", err)
		}
		return NewTerminal(screen)
	case config.DisplayConsole:
		return NewConsole(in, out, DefaultConsoleWidth, DefaultConsoleHeight), nil
	default:
		return nil, fmt.Errorf("unsupported display backend %q", cfg.Backend)
	}
}

func navButtons(back bool, rects [3]input.Rect) []input.Button {
	return []input.Button{
		{Name: ButtonBack, Bounds: rects[0], Visible: back, Action: input.ActionPrevious},
		{Name: ButtonNew, Bounds: rects[1], Visible: true, Action: input.ActionNewStory},
		{Name: ButtonNext, Bounds: rects[2], Visible: true, Action: input.ActionNext},
	}
}

func progress(f Frame) string {
	return fmt.Sprintf("story %d of %d, page %d of %d", f.StoryIndex+1, f.StoryCount, f.PageIndex+1, f.PageCount)
}
