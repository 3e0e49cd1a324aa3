// Package indicator drives the write-only status and backlight sinks.
//
// Sinks are best-effort: failures are logged at debug level and never reach
// the session controller.
package indicator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rbright/storybook/internal/config"
)

// Status is the kiosk's coarse activity signal.
type Status int

const (
	StatusLoading Status = iota + 1
	StatusSleep
	StatusWaiting
	StatusReading
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSleep:
		return "sleep"
	case StatusWaiting:
		return "waiting"
	case StatusReading:
		return "reading"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// StatusSink accepts status changes without acknowledgement.
type StatusSink interface {
	SetStatus(context.Context, Status)
}

// Noop discards every status.
type Noop struct{}

func (Noop) SetStatus(context.Context, Status) {}

// New returns the configured status sink.
func New(cfg config.IndicatorConfig, logger *slog.Logger) StatusSink {
	if !cfg.SoundEnable {
		return Noop{}
	}
	return NewCues(logger)
}

// Cues announces status changes with short synthesized tones.
type Cues struct {
	logger *slog.Logger
	play   func(context.Context, []int16) error

	mu      sync.Mutex
	current Status
	soundMu sync.Mutex
	wg      sync.WaitGroup
}

// NewCues plays cues through the default PulseAudio sink.
func NewCues(logger *slog.Logger) *Cues {
	return &Cues{logger: logger, play: playSynthCue}
}

// SetStatus plays the cue for status unless it is already current.
func (c *Cues) SetStatus(ctx context.Context, status Status) {
	c.mu.Lock()
	if c.current == status {
		c.mu.Unlock()
		return
	}
	c.current = status
	c.mu.Unlock()

	c.playCue(ctx, statusCue(status))
}

// Current returns the last status set.
func (c *Cues) Current() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Wait blocks until queued cues have finished playing.
func (c *Cues) Wait() {
	c.wg.Wait()
}

// playCue serializes cue playback and emits audio asynchronously.
func (c *Cues) playCue(ctx context.Context, kind cueKind) {
	samples := cueSamples(kind)
	if len(samples) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.soundMu.Lock()
		defer c.soundMu.Unlock()
		if err := c.play(ctx, samples); err != nil {
			c.log("indicator audio cue failed", err)
		}
	}()
}

func (c *Cues) log(message string, err error) {
	if c.logger == nil || err == nil {
		return
	}
	c.logger.Debug(message, "error", err.Error())
}
