// Package input maps raw pointer and key events to kiosk actions.
package input

type EventKind int

const (
	EventQuit EventKind = iota + 1
	EventKey
	EventPointerDown
	// EventResize reports that the surface geometry changed.
	EventResize
)

type Key int

const (
	KeyRune Key = iota + 1
	KeyEscape
	KeyEnter
	KeyLeft
	KeyRight
)

// Event is one raw event from an input source.
type Event struct {
	Kind EventKind
	Key  Key
	Rune rune
	X    int
	Y    int
}

func Quit() Event { return Event{Kind: EventQuit} }

func KeyPress(key Key) Event { return Event{Kind: EventKey, Key: key} }

func RunePress(r rune) Event { return Event{Kind: EventKey, Key: KeyRune, Rune: r} }

func PointerDown(x int, y int) Event { return Event{Kind: EventPointerDown, X: x, Y: y} }

func Resize() Event { return Event{Kind: EventResize} }

// Source yields the events pending since the previous poll. Poll never blocks.
type Source interface {
	Poll() []Event
}

// Rect is an axis-aligned region with inclusive bounds.
type Rect struct {
	X int
	Y int
	W int
	H int
}

func (r Rect) Contains(x int, y int) bool {
	return x >= r.X && x <= r.X+r.W && y >= r.Y && y <= r.Y+r.H
}
