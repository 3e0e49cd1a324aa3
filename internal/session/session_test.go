package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"github.com/rbright/storybook/internal/capture"
	"github.com/rbright/storybook/internal/display"
	"github.com/rbright/storybook/internal/fsm"
	"github.com/rbright/storybook/internal/indicator"
	"github.com/rbright/storybook/internal/input"
	"github.com/rbright/storybook/internal/ipc"
	"github.com/rbright/storybook/internal/layout"
	"github.com/stretchr/testify/require"
)

const (
	moonCat = "Title: Moon Cat\n\nA cat lived on the moon."
	sunDog  = "## Sun Dog\n\nA dog napped in the sun."
)

func TestRunHappyPathDisplaysFirstStory(t *testing.T) {
	surface := &fakeSurface{}
	status := &fakeStatus{}
	light := &fakeBacklight{}
	observer := &fakeObserver{}
	capturer := textCapture("a moon cat")
	ctrl, resultCh := startController(t, Deps{
		Surface:   surface,
		Capturer:  capturer,
		Generator: storyGenerator(moonCat),
		Status:    status,
		Backlight: light,
		Observer:  observer,
	})

	frame := waitForFrame(t, ctrl, surface, storyCount(1))
	require.Equal(t, 1, surface.welcomeCount())
	require.Equal(t, MessageLoading, surface.lastMessage())

	require.Equal(t, "Moon Cat", frame.Page.Lines[0].Text)
	require.True(t, frame.Page.Lines[0].Title)
	require.Contains(t, frame.Page.Text(), "A cat lived on the moon.")
	require.False(t, frame.Back)
	require.Equal(t, 1, frame.StoryCount)

	ctrl.RequestShutdown()
	result := waitResult(t, resultCh)
	require.Equal(t, fsm.StateShuttingDown, result.State)
	require.Equal(t, 1, result.Stories)
	require.True(t, result.Drained)
	require.NoError(t, result.Err)
	require.True(t, surface.closed.Load())
	require.Equal(t, int32(1), capturer.releases.Load())
	require.Equal(t, []bool{true, false}, light.snapshot())
	require.Equal(t, []indicator.Status{
		indicator.StatusLoading,
		indicator.StatusWaiting,
		indicator.StatusLoading,
		indicator.StatusReading,
		indicator.StatusSleep,
	}, status.snapshot())
	require.Equal(t, []fsm.State{
		fsm.StateWelcoming,
		fsm.StateAwaitingPrompt,
		fsm.StateCapturing,
		fsm.StateGenerating,
		fsm.StatePaginating,
		fsm.StateDisplaying,
		fsm.StateShuttingDown,
	}, observer.snapshot())
}

func TestSingleFlightRejectsSecondNewStory(t *testing.T) {
	gate := make(chan struct{})
	capturer := &fakeCapturer{capture: func(ctx context.Context, call int, _ func() bool) capture.Result {
		if call == 2 {
			select {
			case <-gate:
			case <-ctx.Done():
				return capture.Result{Kind: capture.KindCancelled}
			}
		}
		return capture.Result{Kind: capture.KindText, Text: "owls"}
	}}
	surface := &fakeSurface{}
	ctrl, _ := startController(t, Deps{Surface: surface, Capturer: capturer, Generator: storyGenerator(moonCat, sunDog)})
	waitForFrame(t, ctrl, surface, storyCount(1))

	require.NoError(t, ctrl.RequestNewStory())
	require.ErrorIs(t, ctrl.RequestNewStory(), ErrConcurrentOperationRejected)

	waitForState(t, ctrl, fsm.StateCapturing)
	resp := ctrl.Handle(context.Background(), ipc.Request{Command: "new"})
	require.True(t, resp.OK)
	require.Equal(t, "new story already in progress", resp.Message)

	close(gate)

	waitForFrame(t, ctrl, surface, storyCount(2))
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(2), capturer.calls.Load())
}

func TestCaptureTimeoutShowsMessageAndTapReturnsToPage(t *testing.T) {
	capturer := &fakeCapturer{capture: func(_ context.Context, call int, _ func() bool) capture.Result {
		if call == 1 {
			return capture.Result{Kind: capture.KindText, Text: "a moon cat"}
		}
		return capture.Result{Kind: capture.KindTimeout}
	}}
	surface := &fakeSurface{}
	status := &fakeStatus{}
	generator := storyGenerator(moonCat)
	ctrl, _ := startController(t, Deps{Surface: surface, Capturer: capturer, Generator: generator, Status: status})
	waitForFrame(t, ctrl, surface, storyCount(1))

	// Past the last page of the last story asks for a new story.
	surface.push(input.RunePress('n'))
	waitForState(t, ctrl, fsm.StateNotifying)
	waitForMessage(t, surface, "No prompt detected. Try again!")
	require.Equal(t, int32(1), generator.calls.Load())

	// The listening cue does not outlive the failed capture.
	statuses := status.snapshot()
	require.Equal(t, []indicator.Status{indicator.StatusWaiting, indicator.StatusReading}, statuses[len(statuses)-2:])
	require.Eventually(t, func() bool { return !ctrl.flags.Busy() }, time.Second, time.Millisecond)

	frames := surface.frameCount()
	surface.push(input.PointerDown(1, 1))
	frame := waitForFrame(t, ctrl, surface, func(display.Frame) bool { return surface.frameCount() == frames+1 })
	require.Equal(t, "Moon Cat", frame.Page.Lines[0].Text)
}

func TestCaptureFailureWithEmptyLibraryRestartsFromWelcome(t *testing.T) {
	capturer := &fakeCapturer{capture: func(_ context.Context, call int, _ func() bool) capture.Result {
		if call == 1 {
			return capture.Result{Kind: capture.KindDeviceError}
		}
		return capture.Result{Kind: capture.KindText, Text: "sunny dogs"}
	}}
	surface := &fakeSurface{}
	ctrl, _ := startController(t, Deps{Surface: surface, Capturer: capturer, Generator: storyGenerator(sunDog)})

	waitForState(t, ctrl, fsm.StateNotifying)
	waitForMessage(t, surface, "Voice input not available!")

	surface.push(input.KeyPress(input.KeyEnter))
	frame := waitForFrame(t, ctrl, surface, storyCount(1))
	require.Equal(t, 2, surface.welcomeCount())
	require.Equal(t, "Sun Dog", frame.Page.Lines[0].Text)
}

func TestMissingCapturerReportsVoiceUnavailable(t *testing.T) {
	surface := &fakeSurface{}
	ctrl, _ := startController(t, Deps{Surface: surface})

	waitForState(t, ctrl, fsm.StateNotifying)
	waitForMessage(t, surface, "Voice input not available!")
}

func TestNavigationAcrossStories(t *testing.T) {
	surface := &fakeSurface{}
	ctrl, _ := startController(t, Deps{
		Surface:   surface,
		Capturer:  textCapture("anything"),
		Generator: storyGenerator(moonCat, sunDog),
	})
	require.False(t, waitForFrame(t, ctrl, surface, storyCount(1)).Back)

	// Tap the "new story" button.
	surface.push(input.PointerDown(12, 10))
	frame := waitForFrame(t, ctrl, surface, storyCount(2))
	require.Equal(t, 1, frame.StoryIndex)
	require.True(t, frame.Back)

	frames := surface.frameCount()
	surface.push(input.KeyPress(input.KeyLeft))
	require.Eventually(t, func() bool { return surface.frameCount() == frames+1 }, time.Second, time.Millisecond)
	require.Equal(t, 0, surface.lastFrame().StoryIndex)
	require.False(t, surface.lastFrame().Back)

	// Back at the very first page is a no-op; the hidden back button is not hit-testable.
	surface.push(input.RunePress('p'), input.PointerDown(1, 10))
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, frames+1, surface.frameCount())

	surface.push(input.RunePress('n'))
	require.Eventually(t, func() bool { return surface.frameCount() == frames+2 }, time.Second, time.Millisecond)
	require.Equal(t, 1, surface.lastFrame().StoryIndex)
}

func TestIPCNavigation(t *testing.T) {
	surface := &fakeSurface{}
	ctrl, _ := startController(t, Deps{
		Surface:   surface,
		Capturer:  textCapture("anything"),
		Generator: storyGenerator(moonCat, sunDog),
	})
	waitForFrame(t, ctrl, surface, storyCount(1))

	resp := ctrl.Handle(context.Background(), ipc.Request{Command: "new"})
	require.True(t, resp.OK)
	waitForFrame(t, ctrl, surface, storyCount(2))

	frames := surface.frameCount()
	require.True(t, ctrl.Handle(context.Background(), ipc.Request{Command: "prev"}).OK)
	require.Eventually(t, func() bool { return surface.frameCount() == frames+1 }, time.Second, time.Millisecond)
	require.Equal(t, 0, surface.lastFrame().StoryIndex)

	status := ctrl.Handle(context.Background(), ipc.Request{Command: "status"})
	require.True(t, status.OK)
	require.Equal(t, string(fsm.StateDisplaying), status.State)
	require.Equal(t, "stories=2 busy=false", status.Message)
}

func TestSecretCornerTapsShutDown(t *testing.T) {
	surface := &fakeSurface{}
	ctrl, resultCh := startController(t, Deps{Surface: surface, Capturer: textCapture("x"), Generator: storyGenerator(moonCat)})
	waitForState(t, ctrl, fsm.StateDisplaying)

	surface.push(input.PointerDown(36, 0), input.PointerDown(37, 1), input.PointerDown(39, 0))
	result := waitResult(t, resultCh)
	require.Equal(t, fsm.StateShuttingDown, result.State)
	require.True(t, surface.closed.Load())
}

func TestEscapeShutsDown(t *testing.T) {
	surface := &fakeSurface{}
	ctrl, resultCh := startController(t, Deps{Surface: surface, Capturer: textCapture("x"), Generator: storyGenerator(moonCat)})
	waitForState(t, ctrl, fsm.StateDisplaying)

	surface.push(input.KeyPress(input.KeyEscape))
	require.True(t, waitResult(t, resultCh).Drained)
}

func TestShutdownLivenessWithStuckGenerator(t *testing.T) {
	stuck := make(chan struct{})
	t.Cleanup(func() { close(stuck) })

	surface := &fakeSurface{}
	capturer := textCapture("dragons")
	generator := &fakeGenerator{generate: func(context.Context, int, string) string {
		<-stuck
		return moonCat
	}}
	ctrl, resultCh := startController(t, Deps{Surface: surface, Capturer: capturer, Generator: generator})
	waitForState(t, ctrl, fsm.StateGenerating)

	started := time.Now()
	ctrl.RequestShutdown()
	result := waitResult(t, resultCh)

	require.False(t, result.Drained)
	require.Less(t, time.Since(started), time.Second)
	require.GreaterOrEqual(t, time.Since(started), testTiming().ShutdownGrace)
	require.True(t, surface.closed.Load())
	require.Equal(t, int32(1), capturer.releases.Load())
	require.Equal(t, 0, result.Stories)
}

func TestShutdownCancelsBlockedCapture(t *testing.T) {
	capturer := &fakeCapturer{capture: func(ctx context.Context, _ int, _ func() bool) capture.Result {
		<-ctx.Done()
		return capture.Result{Kind: capture.KindCancelled, Err: ctx.Err()}
	}}
	generator := storyGenerator(moonCat)
	ctrl, resultCh := startController(t, Deps{Surface: &fakeSurface{}, Capturer: capturer, Generator: generator})
	waitForState(t, ctrl, fsm.StateCapturing)

	ctrl.RequestShutdown()
	result := waitResult(t, resultCh)
	require.True(t, result.Drained)
	require.Equal(t, int32(0), generator.calls.Load())
}

func TestInterruptBeforeCommitDiscardsStory(t *testing.T) {
	var ctrl *Controller
	ready := make(chan struct{})
	generator := &fakeGenerator{generate: func(context.Context, int, string) string {
		<-ready
		ctrl.RequestShutdown()
		return moonCat
	}}
	ctrl, resultCh := startController(t, Deps{Surface: &fakeSurface{}, Capturer: textCapture("x"), Generator: generator})
	close(ready)

	result := waitResult(t, resultCh)
	require.Equal(t, 0, result.Stories)
	require.True(t, result.Drained)
}

func TestHandleCommandsBeforeRun(t *testing.T) {
	ctrl, err := NewController(Deps{Surface: &fakeSurface{}, Timing: testTiming()})
	require.NoError(t, err)

	status := ctrl.Handle(context.Background(), ipc.Request{Command: "status"})
	require.True(t, status.OK)
	require.Equal(t, string(fsm.StateIdle), status.State)

	unknown := ctrl.Handle(context.Background(), ipc.Request{Command: "definitely-unknown"})
	require.False(t, unknown.OK)
	require.Contains(t, unknown.Error, "unknown command")

	next := ctrl.Handle(context.Background(), ipc.Request{Command: "next"})
	require.False(t, next.OK)
	require.Contains(t, next.Error, "cannot next from state idle")

	newStory := ctrl.Handle(context.Background(), ipc.Request{Command: "new"})
	require.False(t, newStory.OK)
	require.Contains(t, newStory.Error, "cannot start a new story from state idle")

	stop := ctrl.Handle(context.Background(), ipc.Request{Command: "stop"})
	require.True(t, stop.OK)
	require.Equal(t, "shutdown requested", stop.Message)
	require.Equal(t, string(fsm.StateShuttingDown), stop.State)

	again := ctrl.Handle(context.Background(), ipc.Request{Command: "stop"})
	require.Equal(t, "shutdown already requested", again.Message)
	require.ErrorIs(t, ctrl.RequestNewStory(), ErrShutdownInProgress)

	result := ctrl.Run(context.Background())
	require.ErrorIs(t, result.Err, ErrShutdownInProgress)
	require.Equal(t, fsm.StateShuttingDown, result.State)
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	surface := &fakeSurface{}
	ctrl, err := NewController(Deps{Surface: surface, Capturer: textCapture("x"), Generator: storyGenerator(moonCat), Timing: testTiming()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	resultCh := make(chan Result, 1)
	go func() { resultCh <- ctrl.Run(ctx) }()

	waitForState(t, ctrl, fsm.StateDisplaying)
	cancel()
	result := waitResult(t, resultCh)
	require.Equal(t, fsm.StateShuttingDown, result.State)
	require.True(t, result.FinishedAt.After(result.StartedAt))
}

func TestNewControllerRequiresSurface(t *testing.T) {
	_, err := NewController(Deps{})
	require.Error(t, err)
}

func TestFlags(t *testing.T) {
	var flags Flags
	require.True(t, flags.TryAcquire())
	require.False(t, flags.TryAcquire())
	require.True(t, flags.Busy())
	require.False(t, flags.WaitIdle(context.Background(), 20*time.Millisecond))

	go func() {
		time.Sleep(10 * time.Millisecond)
		flags.Release()
	}()
	require.True(t, flags.WaitIdle(context.Background(), time.Second))

	require.True(t, flags.Interrupt())
	require.False(t, flags.Interrupt())
	require.True(t, flags.Interrupted())
}

func startOnTerminal(t *testing.T, w int, h int, generated string) (*Controller, tcell.SimulationScreen, <-chan Result) {
	t.Helper()
	sim := tcell.NewSimulationScreen("UTF-8")
	term, err := display.NewTerminal(sim)
	require.NoError(t, err)
	sim.SetSize(w, h)

	ctrl, resultCh := startController(t, Deps{Surface: term, Capturer: textCapture("a moon cat"), Generator: storyGenerator(generated)})
	waitForState(t, ctrl, fsm.StateDisplaying)
	return ctrl, sim, resultCh
}

func widestLine(page layout.Page) int {
	widest := 0
	for _, line := range page.Lines {
		widest = max(widest, line.X+runewidth.StringWidth(line.Text))
	}
	return widest
}

func TestResizeLaysOutLoadedStoryAgain(t *testing.T) {
	longStory := "Title: Moon Cat\n\n" + strings.Repeat("A cat lived on the moon and sang to the sleepy stars. ", 6)
	ctrl, sim, _ := startOnTerminal(t, 80, 25, longStory)

	before, ok := ctrl.Library().Current()
	require.True(t, ok)
	require.Greater(t, widestLine(before.Page), 26)

	sim.SetSize(30, 12)
	require.NoError(t, sim.PostEvent(tcell.NewEventResize(30, 12)))

	require.Eventually(t, func() bool {
		cursor, ok := ctrl.Library().Current()
		return ok && cursor.PageCount > before.PageCount && widestLine(cursor.Page) <= 26
	}, 2*time.Second, time.Millisecond)
	require.Equal(t, fsm.StateDisplaying, ctrl.State())
}

func TestSecretCornerTapsAfterShrink(t *testing.T) {
	_, sim, resultCh := startOnTerminal(t, 80, 25, moonCat)

	sim.SetSize(30, 12)
	require.NoError(t, sim.PostEvent(tcell.NewEventResize(30, 12)))
	for _, x := range []int{25, 27, 29} {
		sim.InjectMouse(x, 0, tcell.Button1, tcell.ModNone)
		sim.InjectMouse(x, 0, tcell.ButtonNone, tcell.ModNone)
	}

	require.Equal(t, fsm.StateShuttingDown, waitResult(t, resultCh).State)
}
