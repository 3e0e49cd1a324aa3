// Package fsm defines the kiosk session states and their legal transitions.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle           State = "idle"
	StateWelcoming      State = "welcoming"
	StateAwaitingPrompt State = "awaiting_prompt"
	StateCapturing      State = "capturing"
	StateGenerating     State = "generating"
	StatePaginating     State = "paginating"
	StateDisplaying     State = "displaying"
	StateNotifying      State = "notifying"
	StateShuttingDown   State = "shutting_down"
)

const (
	EventStart     Event = "start"
	EventWelcomed  Event = "welcomed"
	EventNewStory  Event = "new_story"
	EventListen    Event = "listen"
	EventCaptured  Event = "captured"
	EventFail      Event = "fail"
	EventGenerated Event = "generated"
	EventPaginated Event = "paginated"
	EventDismiss   Event = "dismiss"
	EventRestart   Event = "restart"
	EventShutdown  Event = "shutdown"
)

// Busy reports whether a cancellable background operation may be outstanding in state.
func Busy(state State) bool {
	return state == StateCapturing || state == StateGenerating
}

func Transition(current State, event Event) (State, error) {
	if current == StateShuttingDown {
		return current, invalidTransition(current, event)
	}
	if event == EventShutdown {
		return StateShuttingDown, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateWelcoming, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateWelcoming:
		switch event {
		case EventWelcomed:
			return StateAwaitingPrompt, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAwaitingPrompt:
		switch event {
		case EventListen:
			return StateCapturing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateCapturing:
		switch event {
		case EventCaptured:
			return StateGenerating, nil
		case EventFail:
			return StateNotifying, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateGenerating:
		switch event {
		case EventGenerated:
			return StatePaginating, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StatePaginating:
		switch event {
		case EventPaginated:
			return StateDisplaying, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateDisplaying:
		switch event {
		case EventNewStory:
			return StateAwaitingPrompt, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateNotifying:
		switch event {
		case EventDismiss:
			return StateDisplaying, nil
		case EventRestart:
			return StateWelcoming, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
