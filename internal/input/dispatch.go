package input

import (
	"sync"
	"time"
)

type Action int

const (
	ActionNone Action = iota
	ActionPrevious
	ActionNext
	ActionNewStory
	ActionShutdown
	// ActionTap is a pointer-down or confirm key that hit no button.
	ActionTap
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionPrevious:
		return "previous"
	case ActionNext:
		return "next"
	case ActionNewStory:
		return "new_story"
	case ActionShutdown:
		return "shutdown"
	case ActionTap:
		return "tap"
	default:
		return "unknown"
	}
}

const (
	SecretTapWindow = 3 * time.Second
	SecretTapCount  = 3
)

// Button is a hit-testable screen region bound to an action.
type Button struct {
	Name    string
	Bounds  Rect
	Visible bool
	Action  Action
}

// Dispatcher turns events into actions and tracks the secret-exit gesture.
type Dispatcher struct {
	corner func() Rect
	now    func() time.Time

	mu   sync.Mutex
	taps []time.Time
}

// NewDispatcher creates a dispatcher whose secret-exit taps land in the
// region corner reports at the time of each tap.
func NewDispatcher(corner func() Rect) *Dispatcher {
	return &Dispatcher{corner: corner, now: time.Now}
}

// Dispatch maps one event against the currently shown buttons.
func (d *Dispatcher) Dispatch(ev Event, buttons []Button) Action {
	return d.DispatchAt(ev, buttons, d.now())
}

// DispatchAt is Dispatch with an explicit event time.
func (d *Dispatcher) DispatchAt(ev Event, buttons []Button, now time.Time) Action {
	switch ev.Kind {
	case EventQuit:
		return ActionShutdown
	case EventKey:
		return keyAction(ev)
	case EventPointerDown:
		if d.corner().Contains(ev.X, ev.Y) && d.recordCornerTap(now) {
			return ActionShutdown
		}
		if b, ok := HitTest(buttons, ev.X, ev.Y); ok {
			return b.Action
		}
		return ActionTap
	default:
		return ActionNone
	}
}

// HitTest returns the first visible button containing (x, y).
func HitTest(buttons []Button, x int, y int) (Button, bool) {
	for _, b := range buttons {
		if b.Visible && b.Bounds.Contains(x, y) {
			return b, true
		}
	}
	return Button{}, false
}

// recordCornerTap prunes expired taps and reports whether the gesture completed.
func (d *Dispatcher) recordCornerTap(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.taps = append(d.taps, now)
	kept := d.taps[:0]
	for _, t := range d.taps {
		if now.Sub(t) < SecretTapWindow {
			kept = append(kept, t)
		}
	}
	d.taps = kept

	if len(d.taps) >= SecretTapCount {
		d.taps = d.taps[:0]
		return true
	}
	return false
}

func keyAction(ev Event) Action {
	switch ev.Key {
	case KeyEscape:
		return ActionShutdown
	case KeyEnter:
		return ActionTap
	case KeyLeft:
		return ActionPrevious
	case KeyRight:
		return ActionNext
	case KeyRune:
		switch ev.Rune {
		case 'n', 'N', ' ':
			return ActionNext
		case 'p', 'P':
			return ActionPrevious
		case 's', 'S':
			return ActionNewStory
		case 'q', 'Q':
			return ActionShutdown
		}
	}
	return ActionNone
}
