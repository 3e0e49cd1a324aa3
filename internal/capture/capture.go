// Package capture runs one bounded, cooperatively cancellable prompt capture.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrListenTimeout indicates no speech started before the listen window closed.
	ErrListenTimeout = errors.New("no speech before listen timeout")
	// ErrUnrecognized indicates audio was captured but yielded no usable text.
	ErrUnrecognized = errors.New("speech not recognized")
)

type Kind int

const (
	KindText Kind = iota + 1
	KindTimeout
	KindUnrecognized
	KindDeviceError
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindTimeout:
		return "timeout"
	case KindUnrecognized:
		return "unrecognized"
	case KindDeviceError:
		return "device_error"
	case KindCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the classified outcome of one capture.
type Result struct {
	Kind Kind
	Text string
	Err  error
}

// Message returns the on-screen text for a non-text result.
func (r Result) Message() string {
	switch r.Kind {
	case KindTimeout:
		return "No prompt detected. Try again!"
	case KindUnrecognized:
		return "I couldn't understand that. Try again!"
	case KindDeviceError:
		return "Voice input not available!"
	default:
		return ""
	}
}

// Device is one open listen/recognize session.
type Device interface {
	Listen(ctx context.Context) ([]byte, error)
	Recognize(ctx context.Context, segment []byte) (string, error)
	Close() error
}

// Opener acquires a Device.
type Opener func(ctx context.Context) (Device, error)

// attempt tracks one worker. Once abandoned, the worker owns its device and
// closes it on return.
type attempt struct {
	abandoned atomic.Bool
	device    Device
}

// Coordinator runs captures on a background worker bounded by a hard timeout.
type Coordinator struct {
	open    Opener
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	device Device
}

// NewCoordinator constructs a coordinator. timeout is the hard wall-clock
// bound for one Capture call.
func NewCoordinator(open Opener, timeout time.Duration, logger *slog.Logger) *Coordinator {
	return &Coordinator{open: open, timeout: timeout, logger: logger}
}

// Capture blocks until the worker finishes, the timeout elapses, or ctx is
// done. onReady runs just before listening unless cancelled already reports
// true. cancelled is polled before device acquisition, before listening, and
// before post-processing; a late blocking call is not interrupted.
func (c *Coordinator) Capture(ctx context.Context, onReady func(), cancelled func() bool) Result {
	if onReady == nil {
		onReady = func() {}
	}
	if cancelled == nil {
		cancelled = func() bool { return false }
	}

	att := &attempt{}
	stop := func() bool { return att.abandoned.Load() || cancelled() }

	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- c.run(ctx, att, onReady, stop)
	}()

	var timeout <-chan time.Time
	if c.timeout > 0 {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case result := <-resultCh:
		return result
	case <-timeout:
		c.abandon(att)
		c.log("capture worker abandoned", "reason", "timeout", "timeout", c.timeout.String())
		return Result{Kind: KindTimeout, Err: fmt.Errorf("capture timed out after %s", c.timeout)}
	case <-ctx.Done():
		c.abandon(att)
		return Result{Kind: KindCancelled, Err: ctx.Err()}
	}
}

// Release closes the cached device. It is idempotent.
func (c *Coordinator) Release() error {
	c.mu.Lock()
	device := c.device
	c.device = nil
	c.mu.Unlock()

	if device == nil {
		return nil
	}
	return device.Close()
}

func (c *Coordinator) run(ctx context.Context, att *attempt, onReady func(), stop func() bool) Result {
	if stop() {
		return Result{Kind: KindCancelled}
	}

	device, err := c.acquire(ctx, att)
	if err != nil {
		if stop() {
			return Result{Kind: KindCancelled}
		}
		return Result{Kind: KindDeviceError, Err: fmt.Errorf("open capture device: %w", err)}
	}
	defer c.finish(att)

	if stop() {
		return Result{Kind: KindCancelled}
	}
	onReady()

	segment, err := device.Listen(ctx)
	text := ""
	if err == nil {
		text, err = device.Recognize(ctx, segment)
	}

	if stop() {
		return Result{Kind: KindCancelled}
	}
	return c.classify(att, text, err)
}

func (c *Coordinator) classify(att *attempt, text string, err error) Result {
	switch {
	case err == nil:
		text = strings.TrimSpace(text)
		if text == "" {
			return Result{Kind: KindUnrecognized, Err: ErrUnrecognized}
		}
		return Result{Kind: KindText, Text: text}
	case errors.Is(err, ErrListenTimeout):
		return Result{Kind: KindTimeout, Err: err}
	case errors.Is(err, ErrUnrecognized):
		return Result{Kind: KindUnrecognized, Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Result{Kind: KindCancelled, Err: err}
	default:
		c.drop(att)
		return Result{Kind: KindDeviceError, Err: err}
	}
}

func (c *Coordinator) acquire(ctx context.Context, att *attempt) (Device, error) {
	c.mu.Lock()
	if att.abandoned.Load() {
		c.mu.Unlock()
		return nil, errors.New("capture abandoned")
	}
	if c.device != nil {
		att.device = c.device
		c.mu.Unlock()
		return att.device, nil
	}
	c.mu.Unlock()

	device, err := c.open(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if att.abandoned.Load() {
		c.closeDevice(device)
		return nil, errors.New("capture abandoned")
	}
	if c.device != nil {
		c.closeDevice(device)
		device = c.device
	}
	c.device = device
	att.device = device
	return device, nil
}

// abandon detaches the attempt's device so the next capture opens a fresh one.
func (c *Coordinator) abandon(att *attempt) {
	c.mu.Lock()
	defer c.mu.Unlock()

	att.abandoned.Store(true)
	if att.device != nil && c.device == att.device {
		c.device = nil
	}
}

// drop discards a device that reported a fault.
func (c *Coordinator) drop(att *attempt) {
	c.mu.Lock()
	device := att.device
	if device == nil || c.device != device {
		c.mu.Unlock()
		return
	}
	c.device = nil
	att.device = nil
	c.mu.Unlock()

	c.closeDevice(device)
}

// finish closes the device of an abandoned attempt once its worker returns.
func (c *Coordinator) finish(att *attempt) {
	c.mu.Lock()
	device := att.device
	if !att.abandoned.Load() || device == nil {
		c.mu.Unlock()
		return
	}
	att.device = nil
	c.mu.Unlock()

	c.closeDevice(device)
}

func (c *Coordinator) closeDevice(device Device) {
	go func() {
		if err := device.Close(); err != nil {
			c.log("capture device close failed", "error", err.Error())
		}
	}()
}

func (c *Coordinator) log(message string, args ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Debug(message, args...)
}
