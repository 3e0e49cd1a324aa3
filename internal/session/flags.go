package session

import (
	"context"
	"sync/atomic"
	"time"
)

// Flags holds the two values shared between the foreground loop and
// background capture/generation work.
type Flags struct {
	busy        atomic.Bool
	interrupted atomic.Bool
}

// TryAcquire sets the busy flag if it was clear.
func (f *Flags) TryAcquire() bool {
	return f.busy.CompareAndSwap(false, true)
}

// Release clears the busy flag.
func (f *Flags) Release() {
	f.busy.Store(false)
}

func (f *Flags) Busy() bool {
	return f.busy.Load()
}

// Interrupt sets the interrupt flag. It reports whether this call set it.
// The flag is never cleared.
func (f *Flags) Interrupt() bool {
	return f.interrupted.CompareAndSwap(false, true)
}

func (f *Flags) Interrupted() bool {
	return f.interrupted.Load()
}

// WaitIdle polls until busy clears, grace elapses, or ctx is done. It reports
// whether busy cleared.
func (f *Flags) WaitIdle(ctx context.Context, grace time.Duration) bool {
	if !f.Busy() {
		return true
	}

	deadline := time.NewTimer(grace)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return !f.Busy()
		case <-deadline.C:
			return !f.Busy()
		case <-tick.C:
			if !f.Busy() {
				return true
			}
		}
	}
}
