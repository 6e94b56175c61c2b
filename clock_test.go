package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPresentationClockWaitBeforeAnchor(t *testing.T) {
	t.Parallel()
	var c presentationClock
	require.Equal(t, time.Duration(0), c.wait(1.5, 1.0))
}

func TestPresentationClockAnchorStartsAtZeroWait(t *testing.T) {
	t.Parallel()
	var c presentationClock
	c.anchor(10.0)

	wait := c.wait(10.0, 1.0)
	require.InDelta(t, 0, wait, float64(5*time.Millisecond))
}

func TestPresentationClockWaitScalesWithRate(t *testing.T) {
	t.Parallel()
	var c presentationClock
	c.anchor(0.0)

	// One second of presentation distance at half rate takes twice as
	// long in wall-clock time, so the wait should be close to 2s
	// (clamped to the 200ms cap).
	wait := c.wait(1.0, 0.5)
	require.Equal(t, presentationWaitCap, wait)
}

func TestPresentationClockPauseIsExcludedFromElapsed(t *testing.T) {
	t.Parallel()
	var c presentationClock
	c.anchor(0.0)

	c.pauseAt()
	time.Sleep(20 * time.Millisecond)
	c.resume()

	// The clock should not count the paused interval against elapsed
	// time, so a frame presented right after resume still has to wait
	// close to its full target distance.
	wait := c.wait(0.05, 1.0)
	require.Greater(t, wait, time.Duration(0))
}

func TestPresentationClockResetClearsAnchor(t *testing.T) {
	t.Parallel()
	var c presentationClock
	c.anchor(5.0)
	c.reset()

	_, started := c.startPTS()
	require.False(t, started)
	require.Equal(t, time.Duration(0), c.wait(5.0, 1.0))
}

func TestPresentationClockWaitNeverNegative(t *testing.T) {
	t.Parallel()
	var c presentationClock
	c.anchor(0.0)
	time.Sleep(5 * time.Millisecond)

	// A presentation timestamp already in the past relative to elapsed
	// wall-clock time must not produce a negative wait.
	require.Equal(t, time.Duration(0), c.wait(-10.0, 1.0))
}
