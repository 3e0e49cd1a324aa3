package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbright/storybook/internal/capture"
	"github.com/rbright/storybook/internal/display"
	"github.com/rbright/storybook/internal/fsm"
	"github.com/rbright/storybook/internal/generate"
	"github.com/rbright/storybook/internal/indicator"
	"github.com/rbright/storybook/internal/input"
	"github.com/rbright/storybook/internal/layout"
	"github.com/stretchr/testify/require"
)

type fakeSurface struct {
	mu       sync.Mutex
	events   []input.Event
	messages []string
	frames   []display.Frame
	welcomes int
	onPage   bool
	closed   atomic.Bool
}

func (f *fakeSurface) Geometry() display.Geometry {
	return display.Geometry{
		Engine:   layout.Engine{LineGap: 0, ParagraphGap: 1},
		Viewport: layout.Viewport{Width: 40, Height: 5},
		Title:    layout.CellMetrics{},
		Body:     layout.CellMetrics{},
	}
}

func (f *fakeSurface) Corner() input.Rect { return input.Rect{X: 35, Y: 0, W: 4, H: 1} }

func (f *fakeSurface) Buttons() []input.Button {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.onPage {
		return nil
	}
	back := f.frames[len(f.frames)-1].Back
	return []input.Button{
		{Name: display.ButtonBack, Bounds: input.Rect{X: 0, Y: 10, W: 5}, Visible: back, Action: input.ActionPrevious},
		{Name: display.ButtonNew, Bounds: input.Rect{X: 10, Y: 10, W: 5}, Visible: true, Action: input.ActionNewStory},
		{Name: display.ButtonNext, Bounds: input.Rect{X: 20, Y: 10, W: 5}, Visible: true, Action: input.ActionNext},
	}
}

func (f *fakeSurface) ShowWelcome() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.welcomes++
	f.onPage = false
}

func (f *fakeSurface) ShowMessage(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	f.onPage = false
}

func (f *fakeSurface) ShowPage(frame display.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	f.onPage = true
}

func (f *fakeSurface) Poll() []input.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	events := f.events
	f.events = nil
	return events
}

func (f *fakeSurface) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeSurface) push(events ...input.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
}

func (f *fakeSurface) lastMessage() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return ""
	}
	return f.messages[len(f.messages)-1]
}

func (f *fakeSurface) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeSurface) lastFrame() display.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return display.Frame{}
	}
	return f.frames[len(f.frames)-1]
}

func (f *fakeSurface) welcomeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.welcomes
}

type fakeCapturer struct {
	calls    atomic.Int32
	releases atomic.Int32
	capture  func(ctx context.Context, call int, cancelled func() bool) capture.Result
}

func (f *fakeCapturer) Capture(ctx context.Context, onReady func(), cancelled func() bool) capture.Result {
	call := int(f.calls.Add(1))
	if !cancelled() {
		onReady()
	}
	return f.capture(ctx, call, cancelled)
}

func (f *fakeCapturer) Release() error {
	f.releases.Add(1)
	return nil
}

func textCapture(text string) *fakeCapturer {
	return &fakeCapturer{capture: func(context.Context, int, func() bool) capture.Result {
		return capture.Result{Kind: capture.KindText, Text: text}
	}}
}

type fakeGenerator struct {
	calls    atomic.Int32
	generate func(ctx context.Context, call int, topic string) string
}

func (f *fakeGenerator) Generate(ctx context.Context, topic string, _ func() bool) generate.Result {
	call := int(f.calls.Add(1))
	return generate.Result{Text: f.generate(ctx, call, topic), Attempts: 1}
}

func storyGenerator(stories ...string) *fakeGenerator {
	return &fakeGenerator{generate: func(_ context.Context, call int, _ string) string {
		return stories[(call-1)%len(stories)]
	}}
}

type fakeStatus struct {
	mu       sync.Mutex
	statuses []indicator.Status
}

func (f *fakeStatus) SetStatus(_ context.Context, s indicator.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, s)
}

func (f *fakeStatus) snapshot() []indicator.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]indicator.Status(nil), f.statuses...)
}

type fakeBacklight struct {
	mu     sync.Mutex
	writes []bool
}

func (f *fakeBacklight) SetPower(_ context.Context, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, on)
}

func (f *fakeBacklight) snapshot() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.writes...)
}

type fakeObserver struct {
	mu     sync.Mutex
	states []fsm.State
}

func (f *fakeObserver) ObserveState(state fsm.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
}

func (f *fakeObserver) snapshot() []fsm.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fsm.State(nil), f.states...)
}

func testTiming() Timing {
	return Timing{PollInterval: 2 * time.Millisecond, ShutdownGrace: 150 * time.Millisecond}
}

func startController(t *testing.T, deps Deps) (*Controller, <-chan Result) {
	t.Helper()
	if deps.Timing == (Timing{}) {
		deps.Timing = testTiming()
	}
	ctrl, err := NewController(deps)
	require.NoError(t, err)

	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- ctrl.Run(context.Background())
	}()
	t.Cleanup(ctrl.RequestShutdown)
	return ctrl, resultCh
}

func waitForState(t *testing.T, ctrl *Controller, want fsm.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return ctrl.State() == want
	}, 2*time.Second, time.Millisecond, "state never became %s (last %s)", want, ctrl.State())
}

func waitResult(t *testing.T, resultCh <-chan Result) Result {
	t.Helper()
	select {
	case result := <-resultCh:
		return result
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not finish")
		return Result{}
	}
}

func waitForMessage(t *testing.T, surface *fakeSurface, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return surface.lastMessage() == want
	}, 2*time.Second, time.Millisecond, "message never became %q (last %q)", want, surface.lastMessage())
}

// waitForFrame waits until the controller is displaying and the last frame matches.
func waitForFrame(t *testing.T, ctrl *Controller, surface *fakeSurface, match func(display.Frame) bool) display.Frame {
	t.Helper()
	require.Eventually(t, func() bool {
		return ctrl.State() == fsm.StateDisplaying && surface.frameCount() > 0 && match(surface.lastFrame())
	}, 2*time.Second, time.Millisecond)
	return surface.lastFrame()
}

func storyCount(n int) func(display.Frame) bool {
	return func(f display.Frame) bool { return f.StoryCount == n }
}
