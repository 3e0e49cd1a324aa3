package session

import (
	"context"

	"github.com/rbright/storybook/internal/capture"
	"github.com/rbright/storybook/internal/fsm"
	"github.com/rbright/storybook/internal/generate"
)

// Capturer obtains one spoken prompt.
type Capturer interface {
	Capture(ctx context.Context, onReady func(), cancelled func() bool) capture.Result
	Release() error
}

// Generator turns a prompt into displayable story text. It never fails.
type Generator interface {
	Generate(ctx context.Context, topic string, interrupted func() bool) generate.Result
}

// unavailableCapturer stands in when no capture device could be wired.
type unavailableCapturer struct{}

func (unavailableCapturer) Capture(context.Context, func(), func() bool) capture.Result {
	return capture.Result{Kind: capture.KindDeviceError, Err: ErrCaptureUnavailable}
}

func (unavailableCapturer) Release() error { return nil }

// StateObserver is told about every committed state change, in order. It is
// called with the controller's state lock held and must not call back into
// the controller.
type StateObserver interface {
	ObserveState(fsm.State)
}

type noopObserver struct{}

func (noopObserver) ObserveState(fsm.State) {}
