package input

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var corner = Rect{X: 750, Y: 0, W: 50, H: 50}

func navButtons(backVisible bool) []Button {
	return []Button{
		{Name: "back", Bounds: Rect{X: 0, Y: 380, W: 100, H: 100}, Visible: backVisible, Action: ActionPrevious},
		{Name: "next", Bounds: Rect{X: 700, Y: 380, W: 100, H: 100}, Visible: true, Action: ActionNext},
		{Name: "new", Bounds: Rect{X: 350, Y: 380, W: 100, H: 100}, Visible: true, Action: ActionNewStory},
	}
}

func fixedCorner(r Rect) func() Rect { return func() Rect { return r } }

func TestSecretExitThreeTapsWithinWindow(t *testing.T) {
	d := NewDispatcher(fixedCorner(corner))
	base := time.Unix(1_700_000_000, 0)
	tap := PointerDown(790, 10)

	require.Equal(t, ActionTap, d.DispatchAt(tap, nil, base))
	require.Equal(t, ActionTap, d.DispatchAt(tap, nil, base.Add(time.Second)))
	require.Equal(t, ActionShutdown, d.DispatchAt(tap, nil, base.Add(2500*time.Millisecond)))
}

func TestSecretExitExpiredTapDoesNotCount(t *testing.T) {
	d := NewDispatcher(fixedCorner(corner))
	base := time.Unix(1_700_000_000, 0)
	tap := PointerDown(790, 10)

	require.Equal(t, ActionTap, d.DispatchAt(tap, nil, base))
	require.Equal(t, ActionTap, d.DispatchAt(tap, nil, base.Add(time.Second)))
	require.Equal(t, ActionTap, d.DispatchAt(tap, nil, base.Add(3500*time.Millisecond)))
}

func TestSecretExitTapsOutsideCornerIgnored(t *testing.T) {
	d := NewDispatcher(fixedCorner(corner))
	base := time.Unix(1_700_000_000, 0)

	for i := 0; i < 5; i++ {
		got := d.DispatchAt(PointerDown(400, 200), nil, base.Add(time.Duration(i)*100*time.Millisecond))
		require.Equal(t, ActionTap, got)
	}
}

func TestSecretExitResetsAfterTrigger(t *testing.T) {
	d := NewDispatcher(fixedCorner(corner))
	base := time.Unix(1_700_000_000, 0)
	tap := PointerDown(760, 40)

	for i := 0; i < 2; i++ {
		d.DispatchAt(tap, nil, base.Add(time.Duration(i)*100*time.Millisecond))
	}
	require.Equal(t, ActionShutdown, d.DispatchAt(tap, nil, base.Add(200*time.Millisecond)))
	require.Equal(t, ActionTap, d.DispatchAt(tap, nil, base.Add(300*time.Millisecond)))
}

func TestSecretExitFollowsMovingCorner(t *testing.T) {
	current := corner
	d := NewDispatcher(func() Rect { return current })
	base := time.Unix(1_700_000_000, 0)

	// The screen shrinks: the old corner is now off-screen.
	current = Rect{X: 250, Y: 0, W: 50, H: 50}
	require.Equal(t, ActionTap, d.DispatchAt(PointerDown(790, 10), nil, base))
	require.Equal(t, ActionTap, d.DispatchAt(PointerDown(790, 10), nil, base.Add(100*time.Millisecond)))
	require.Equal(t, ActionTap, d.DispatchAt(PointerDown(790, 10), nil, base.Add(200*time.Millisecond)))

	for i := 0; i < 2; i++ {
		require.Equal(t, ActionTap, d.DispatchAt(PointerDown(290, 10), nil, base.Add(time.Duration(i+3)*100*time.Millisecond)))
	}
	require.Equal(t, ActionShutdown, d.DispatchAt(PointerDown(290, 10), nil, base.Add(500*time.Millisecond)))
}

func TestCornerTapFallsThroughToButtons(t *testing.T) {
	d := NewDispatcher(fixedCorner(Rect{X: 700, Y: 380, W: 10, H: 10}))
	got := d.DispatchAt(PointerDown(705, 385), navButtons(true), time.Now())
	require.Equal(t, ActionNext, got)
}

func TestHitTestInclusiveBoundsAndVisibility(t *testing.T) {
	buttons := navButtons(false)

	_, ok := HitTest(buttons, 50, 400)
	require.False(t, ok, "hidden back button must not be hit")

	b, ok := HitTest(buttons, 700, 380)
	require.True(t, ok)
	require.Equal(t, "next", b.Name)

	b, ok = HitTest(buttons, 800, 480)
	require.True(t, ok)
	require.Equal(t, "next", b.Name)

	_, ok = HitTest(buttons, 801, 480)
	require.False(t, ok)
}

func TestHitTestFirstMatchWins(t *testing.T) {
	buttons := []Button{
		{Name: "first", Bounds: Rect{W: 10, H: 10}, Visible: true, Action: ActionNext},
		{Name: "second", Bounds: Rect{W: 10, H: 10}, Visible: true, Action: ActionPrevious},
	}
	b, ok := HitTest(buttons, 5, 5)
	require.True(t, ok)
	require.Equal(t, "first", b.Name)
}

func TestDispatchKeysAndQuit(t *testing.T) {
	d := NewDispatcher(fixedCorner(corner))
	tests := []struct {
		ev   Event
		want Action
	}{
		{Quit(), ActionShutdown},
		{KeyPress(KeyEscape), ActionShutdown},
		{KeyPress(KeyEnter), ActionTap},
		{KeyPress(KeyLeft), ActionPrevious},
		{KeyPress(KeyRight), ActionNext},
		{RunePress(' '), ActionNext},
		{RunePress('n'), ActionNext},
		{RunePress('p'), ActionPrevious},
		{RunePress('s'), ActionNewStory},
		{RunePress('q'), ActionShutdown},
		{RunePress('x'), ActionNone},
		{Resize(), ActionNone},
		{Event{}, ActionNone},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, d.Dispatch(tc.ev, nil), "event %+v", tc.ev)
	}
}

func TestActionString(t *testing.T) {
	require.Equal(t, "new_story", ActionNewStory.String())
	require.Equal(t, "unknown", Action(99).String())
}
