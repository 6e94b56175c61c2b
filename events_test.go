package playback

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventsNilIsSafe(t *testing.T) {
	t.Parallel()
	var e *Events
	e.frame(nil)
	e.position(0)
	e.finished()
	e.playingChanged(true)
}

func TestEventsFiresOnlySetCallbacks(t *testing.T) {
	t.Parallel()
	var positionCalled, finishedCalled bool

	e := &Events{
		OnPosition: func(seconds float64) { positionCalled = true },
		OnFinished: func() { finishedCalled = true },
	}

	e.frame(nil) // OnFrame unset, must not panic
	e.position(1.0)
	e.finished()
	e.playingChanged(true) // OnPlayingChanged unset, must not panic

	require.True(t, positionCalled)
	require.True(t, finishedCalled)
}

func TestEventsPositionValuePropagates(t *testing.T) {
	t.Parallel()
	var got float64
	e := &Events{OnPosition: func(seconds float64) { got = seconds }}
	e.position(3.25)
	require.Equal(t, 3.25, got)
}
