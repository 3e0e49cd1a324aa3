// Package layout wraps story text into fixed-size pages.
package layout

import (
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// Metrics measures rendered text for one font.
type Metrics interface {
	Width(text string) int
	LineHeight() int
}

// CellMetrics measures text in terminal cells.
type CellMetrics struct{}

func (CellMetrics) Width(text string) int { return runewidth.StringWidth(text) }

func (CellMetrics) LineHeight() int { return 1 }

// FixedMetrics measures text with a constant per-rune advance.
type FixedMetrics struct {
	Advance int
	Height  int
}

func (m FixedMetrics) Width(text string) int { return utf8.RuneCountInString(text) * m.Advance }

func (m FixedMetrics) LineHeight() int { return m.Height }

// Viewport is the drawable text area of one page.
type Viewport struct {
	Width  int
	Height int
}
