// Package session sequences capture, generation, pagination, and display
// for the storybook kiosk.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rbright/storybook/internal/capture"
	"github.com/rbright/storybook/internal/config"
	"github.com/rbright/storybook/internal/display"
	"github.com/rbright/storybook/internal/fsm"
	"github.com/rbright/storybook/internal/generate"
	"github.com/rbright/storybook/internal/indicator"
	"github.com/rbright/storybook/internal/input"
	"github.com/rbright/storybook/internal/ipc"
	"github.com/rbright/storybook/internal/layout"
	"github.com/rbright/storybook/internal/library"
	"github.com/rbright/storybook/internal/story"
)

var (
	// ErrConcurrentOperationRejected is returned for a new story while one is in flight.
	ErrConcurrentOperationRejected = errors.New("story already in progress")
	// ErrShutdownInProgress is returned for requests after shutdown began.
	ErrShutdownInProgress = errors.New("shutdown in progress")
	// ErrCaptureUnavailable reports that no capture device was wired.
	ErrCaptureUnavailable = errors.New("voice input not available")
)

const (
	MessagePrompt  = "Please tell me your story idea..."
	MessageLoading = "Writing your story..."
)

// Timing holds the controller's fixed pauses and bounds.
type Timing struct {
	WelcomePause  time.Duration
	MessagePause  time.Duration
	PollInterval  time.Duration
	ShutdownGrace time.Duration
}

// TimingFromConfig extracts controller timing from cfg.
func TimingFromConfig(cfg config.Config) Timing {
	return Timing{
		WelcomePause:  cfg.Display.WelcomePause,
		MessagePause:  cfg.Display.MessagePause,
		PollInterval:  cfg.Display.PollInterval,
		ShutdownGrace: cfg.ShutdownGrace,
	}
}

// Deps are the controller's collaborators. Only Surface is required.
type Deps struct {
	Logger    *slog.Logger
	Surface   display.Surface
	Capturer  Capturer
	Generator Generator
	Status    indicator.StatusSink
	Backlight indicator.Backlight
	Observer  StateObserver
	Timing    Timing
}

// Result is the lifecycle summary returned by Run.
type Result struct {
	State      fsm.State
	Stories    int
	Drained    bool
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

type request struct {
	action input.Action
	// acquired marks a new-story request that already holds the busy flag.
	acquired bool
}

// Controller owns the session state machine and its busy/interrupt flags.
type Controller struct {
	logger     *slog.Logger
	surface    display.Surface
	capturer   Capturer
	generator  Generator
	status     indicator.StatusSink
	backlight  indicator.Backlight
	observer   StateObserver
	timing     Timing
	library    *library.Library
	dispatcher *input.Dispatcher
	flags      Flags

	mu    sync.RWMutex
	state fsm.State

	requests     chan request
	shutdown     chan struct{}
	shutdownOnce sync.Once

	cancelMu   sync.Mutex
	cancelWork context.CancelFunc

	sinkMu sync.Mutex
	closed bool
}

// NewController constructs a controller with no-op fallbacks for optional sinks.
func NewController(deps Deps) (*Controller, error) {
	if deps.Surface == nil {
		return nil, errors.New("display surface is required")
	}
	if deps.Capturer == nil {
		deps.Capturer = unavailableCapturer{}
	}
	if deps.Generator == nil {
		deps.Generator = fallbackGenerator{}
	}
	if deps.Status == nil {
		deps.Status = indicator.Noop{}
	}
	if deps.Backlight == nil {
		deps.Backlight = indicator.NoopBacklight{}
	}
	if deps.Observer == nil {
		deps.Observer = noopObserver{}
	}
	if deps.Timing.PollInterval <= 0 {
		deps.Timing.PollInterval = 100 * time.Millisecond
	}

	c := &Controller{
		logger:    deps.Logger,
		surface:   deps.Surface,
		capturer:  deps.Capturer,
		generator: deps.Generator,
		status:    deps.Status,
		backlight: deps.Backlight,
		observer:  deps.Observer,
		timing:    deps.Timing,
		state:     fsm.StateIdle,
		requests:  make(chan request, 4),
		shutdown:  make(chan struct{}),
	}
	c.dispatcher = input.NewDispatcher(c.corner)
	c.library = library.New(func(s library.Story) []layout.Page {
		return c.surface.Geometry().Paginate(s.Title, s.Body)
	})
	return c, nil
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Library exposes the story library for read-only inspection.
func (c *Controller) Library() *library.Library {
	return c.library
}

// transition applies one FSM event to the controller state.
func (c *Controller) transition(event fsm.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fsm.Transition(c.state, event)
	if err != nil {
		return err
	}
	c.state = next
	c.observer.ObserveState(next)
	return nil
}

// Run drives the kiosk until shutdown is requested or ctx is done, then
// releases every sink. Cleanup starts no later than the shutdown grace
// period after the request, even if a pipeline step never returns.
func (c *Controller) Run(ctx context.Context) Result {
	result := Result{StartedAt: time.Now()}

	if err := c.transition(fsm.EventStart); err != nil {
		result.State = c.State()
		result.Err = errors.Join(ErrShutdownInProgress, err)
		result.FinishedAt = time.Now()
		return result
	}

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.cancelMu.Lock()
	c.cancelWork = cancel
	c.cancelMu.Unlock()

	c.backlight.SetPower(ctx, true)
	c.status.SetStatus(ctx, indicator.StatusLoading)

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		c.foreground(workCtx)
	}()

	select {
	case <-ctx.Done():
		c.RequestShutdown()
	case <-c.shutdown:
	}

	deadline := time.Now().Add(c.timing.ShutdownGrace)
	result.Drained = c.flags.WaitIdle(context.Background(), c.timing.ShutdownGrace)
	if !waitUntil(loopDone, deadline) {
		result.Drained = false
	}
	if !result.Drained {
		c.log(slog.LevelWarn, "shutdown grace elapsed with work in flight", "grace", c.timing.ShutdownGrace.String())
	}

	c.cleanup()

	result.State = c.State()
	result.Stories = c.library.Len()
	result.FinishedAt = time.Now()
	return result
}

// RequestShutdown sets the interrupt flag, enters ShuttingDown, and cancels
// in-flight work. Repeated calls are no-ops.
func (c *Controller) RequestShutdown() {
	c.shutdownOnce.Do(func() {
		c.flags.Interrupt()
		if err := c.transition(fsm.EventShutdown); err != nil {
			c.log(slog.LevelDebug, "shutdown transition rejected", "error", err.Error())
		}

		c.cancelMu.Lock()
		if c.cancelWork != nil {
			c.cancelWork()
		}
		c.cancelMu.Unlock()

		close(c.shutdown)
		c.log(slog.LevelInfo, "shutdown requested")
	})
}

// RequestNewStory queues a new story from outside the foreground loop.
func (c *Controller) RequestNewStory() error {
	if c.flags.Interrupted() {
		return ErrShutdownInProgress
	}
	if !c.flags.TryAcquire() {
		return ErrConcurrentOperationRejected
	}
	select {
	case c.requests <- request{action: input.ActionNewStory, acquired: true}:
		return nil
	default:
		c.flags.Release()
		return ErrConcurrentOperationRejected
	}
}

func (c *Controller) cleanup() {
	bg := context.Background()
	if err := c.capturer.Release(); err != nil {
		c.log(slog.LevelDebug, "capture release failed", "error", err.Error())
	}
	c.status.SetStatus(bg, indicator.StatusSleep)
	c.backlight.SetPower(bg, false)

	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()
	c.closed = true
	if err := c.surface.Close(); err != nil {
		c.log(slog.LevelDebug, "display close failed", "error", err.Error())
	}
}

// foreground is the single cooperative loop: input polling, rendering, and
// every pipeline step run here.
func (c *Controller) foreground(ctx context.Context) {
	c.welcome(ctx)

	ticker := time.NewTicker(c.timing.PollInterval)
	defer ticker.Stop()

	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
			return
		case req := <-c.requests:
			c.apply(ctx, req)
		case <-ticker.C:
			for _, ev := range c.poll() {
				if ev.Kind == input.EventResize {
					c.relayout()
					continue
				}
				c.apply(ctx, request{action: c.dispatcher.Dispatch(ev, c.buttons())})
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

func (c *Controller) apply(ctx context.Context, req request) {
	consumed := false
	defer func() {
		if req.acquired && !consumed {
			c.flags.Release()
		}
	}()
	if req.action == input.ActionShutdown {
		c.RequestShutdown()
		return
	}

	switch c.State() {
	case fsm.StateDisplaying:
		switch req.action {
		case input.ActionNext:
			c.next(ctx)
		case input.ActionPrevious:
			if c.library.RetreatPage() {
				c.showCurrent()
			}
		case input.ActionNewStory:
			consumed = true
			c.newStory(ctx, req.acquired)
		}
	case fsm.StateNotifying:
		switch req.action {
		case input.ActionTap, input.ActionNext, input.ActionPrevious, input.ActionNewStory:
			c.dismiss(ctx)
		}
	}
}

func (c *Controller) welcome(ctx context.Context) {
	c.show(func(s display.Surface) { s.ShowWelcome() })
	if !pause(ctx, c.timing.WelcomePause) {
		return
	}
	if err := c.transition(fsm.EventWelcomed); err != nil {
		return
	}
	c.newStory(ctx, false)
}

// next advances a page, then a story, and asks for a new story past the end.
func (c *Controller) next(ctx context.Context) {
	if c.library.AdvancePage() || c.library.NextStory() {
		c.showCurrent()
		return
	}
	c.newStory(ctx, false)
}

// newStory runs one capture, generation, pagination pipeline. A request that
// finds the busy flag set is dropped.
func (c *Controller) newStory(ctx context.Context, acquired bool) {
	if !acquired {
		if !c.flags.TryAcquire() {
			c.log(slog.LevelDebug, "new story rejected", "error", ErrConcurrentOperationRejected.Error())
			return
		}
	}
	release := sync.OnceFunc(c.flags.Release)
	defer release()

	if c.flags.Interrupted() {
		return
	}
	if c.State() == fsm.StateDisplaying {
		if err := c.transition(fsm.EventNewStory); err != nil {
			return
		}
	}
	c.pipeline(ctx, uuid.NewString(), release)
}

// pipeline calls release once the new story is committed, before it is shown.
func (c *Controller) pipeline(ctx context.Context, runID string, release func()) {
	if err := c.transition(fsm.EventListen); err != nil {
		c.log(slog.LevelDebug, "listen transition rejected", "run_id", runID, "error", err.Error())
		return
	}

	c.showMessage(MessagePrompt)
	if !pause(ctx, c.timing.MessagePause) {
		return
	}

	captured := c.capturer.Capture(ctx, func() {
		c.status.SetStatus(ctx, indicator.StatusWaiting)
	}, c.flags.Interrupted)
	c.log(slog.LevelInfo, "capture finished", "run_id", runID, "result", captured.Kind.String(), "error", errString(captured.Err))

	switch captured.Kind {
	case capture.KindText:
	case capture.KindCancelled:
		return
	default:
		if err := c.transition(fsm.EventFail); err != nil {
			return
		}
		c.status.SetStatus(ctx, indicator.StatusReading)
		c.showMessage(captured.Message())
		return
	}

	if err := c.transition(fsm.EventCaptured); err != nil {
		return
	}
	c.status.SetStatus(ctx, indicator.StatusLoading)
	c.showMessage(MessageLoading)

	generated := c.generator.Generate(ctx, captured.Text, c.flags.Interrupted)
	c.log(slog.LevelInfo, "generation finished",
		"run_id", runID,
		"attempts", generated.Attempts,
		"failure", generated.Failure.String(),
	)
	if c.flags.Interrupted() || generated.Failure == generate.FailureCancelled {
		return
	}

	title, body := story.Prepare(generated.Text)
	if err := c.transition(fsm.EventGenerated); err != nil {
		return
	}
	appended := c.library.Append(title, body)
	if err := c.library.LoadStory(appended.Order); err != nil {
		c.log(slog.LevelError, "load story failed", "run_id", runID, "error", err.Error())
		return
	}
	if err := c.transition(fsm.EventPaginated); err != nil {
		return
	}

	cursor, _ := c.library.Current()
	c.log(slog.LevelInfo, "story ready", "run_id", runID, "title", title, "pages", cursor.PageCount, "stories", cursor.StoryCount)

	release()
	c.status.SetStatus(ctx, indicator.StatusReading)
	c.showCurrent()
}

// dismiss leaves the message screen for the current page, or starts over
// when no story exists yet.
func (c *Controller) dismiss(ctx context.Context) {
	if c.library.Len() > 0 {
		if err := c.transition(fsm.EventDismiss); err != nil {
			return
		}
		c.status.SetStatus(ctx, indicator.StatusReading)
		c.showCurrent()
		return
	}
	if err := c.transition(fsm.EventRestart); err != nil {
		return
	}
	c.welcome(ctx)
}

// relayout paginates the loaded story again for the new viewport and
// redraws it when a page is on screen.
func (c *Controller) relayout() {
	if err := c.library.Reload(); err != nil {
		return
	}
	if c.State() == fsm.StateDisplaying {
		c.showCurrent()
	}
}

func (c *Controller) showCurrent() {
	cursor, ok := c.library.Current()
	if !ok {
		return
	}
	frame := display.Frame{
		Page:       cursor.Page,
		StoryIndex: cursor.StoryIndex,
		StoryCount: cursor.StoryCount,
		PageIndex:  cursor.PageIndex,
		PageCount:  cursor.PageCount,
		Back:       !cursor.AtFirstPage(),
	}
	c.show(func(s display.Surface) { s.ShowPage(frame) })
}

func (c *Controller) showMessage(text string) {
	c.show(func(s display.Surface) { s.ShowMessage(text) })
}

// show renders unless the surface has been closed.
func (c *Controller) show(render func(display.Surface)) {
	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()
	if c.closed {
		return
	}
	render(c.surface)
}

func (c *Controller) poll() []input.Event {
	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()
	if c.closed {
		return nil
	}
	return c.surface.Poll()
}

func (c *Controller) corner() input.Rect {
	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()
	if c.closed {
		return input.Rect{X: -1, Y: -1}
	}
	return c.surface.Corner()
}

func (c *Controller) buttons() []input.Button {
	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()
	if c.closed {
		return nil
	}
	return c.surface.Buttons()
}

// Handle serves IPC commands for the running kiosk.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return ipc.Response{
			OK:      true,
			State:   string(c.State()),
			Message: fmt.Sprintf("stories=%d busy=%t", c.library.Len(), c.flags.Busy()),
		}
	case ipc.CommandStop:
		return c.requestStop()
	case ipc.CommandNew:
		return c.requestNewStory()
	case ipc.CommandNext:
		return c.requestNavigate(ipc.CommandNext, input.ActionNext)
	case ipc.CommandPrev:
		return c.requestNavigate(ipc.CommandPrev, input.ActionPrevious)
	default:
		return ipc.Response{OK: false, State: string(c.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func (c *Controller) requestStop() ipc.Response {
	if c.flags.Interrupted() {
		return ipc.Response{OK: true, State: string(c.State()), Message: "shutdown already requested"}
	}
	c.RequestShutdown()
	return ipc.Response{OK: true, State: string(c.State()), Message: "shutdown requested"}
}

func (c *Controller) requestNewStory() ipc.Response {
	state := c.State()
	if state != fsm.StateDisplaying && !fsm.Busy(state) {
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot start a new story from state %s", state)}
	}

	switch err := c.RequestNewStory(); {
	case err == nil:
		return ipc.Response{OK: true, State: string(state), Message: "new story requested"}
	case errors.Is(err, ErrConcurrentOperationRejected):
		return ipc.Response{OK: true, State: string(state), Message: "new story already in progress"}
	default:
		return ipc.Response{OK: false, State: string(state), Error: err.Error()}
	}
}

func (c *Controller) requestNavigate(name string, action input.Action) ipc.Response {
	state := c.State()
	if state != fsm.StateDisplaying {
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot %s from state %s", name, state)}
	}

	select {
	case c.requests <- request{action: action}:
		return ipc.Response{OK: true, State: string(state), Message: name + " requested"}
	default:
		return ipc.Response{OK: true, State: string(state), Message: name + " already requested"}
	}
}

func (c *Controller) log(level slog.Level, msg string, args ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Log(context.Background(), level, msg, args...)
}

// fallbackGenerator stands in when no generation backend is wired.
type fallbackGenerator struct{}

func (fallbackGenerator) Generate(context.Context, string, func() bool) generate.Result {
	return generate.Result{Text: generate.FallbackText("", generate.FailureServer), Failure: generate.FailureServer}
}

func pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func waitUntil(done <-chan struct{}, deadline time.Time) bool {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
