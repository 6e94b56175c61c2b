package playback

import (
	"sync"
	"time"
)

// presentationWaitCap is the hard upper bound on a single pacing sleep,
// so a flag raised mid-wait is never observed more than this late.
const presentationWaitCap = 200 * time.Millisecond

// presentationClock anchors a wall clock to the PTS of the first video
// frame played since the last play-start or seek, then paces subsequent
// frames against it while compensating for accumulated pause time and
// the current playback rate.
//
// A single mutex guards every field: wait and the post-reset anchor run
// on the decode goroutine, pauseAt/resume and SetRate's re-anchor run on
// the controller goroutine, and both sides need a consistent view of
// the same wall-clock state.
type presentationClock struct {
	mu sync.Mutex

	started      bool
	playStartPTS float64
	timerStart   time.Time

	totalPaused time.Duration
	pauseStart  time.Time // zero means "not currently paused"
}

// anchor sets pts as the presentation origin and starts the wall clock,
// clearing any pause accounting. After a reset it is called from the
// decode goroutine with the first video frame presented. SetRate also
// calls it from the controller goroutine with the current position,
// which comes from the video queue's tail when the queue holds frames.
func (c *presentationClock) anchor(pts float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.started = true
	c.playStartPTS = pts
	c.timerStart = time.Now()
	c.totalPaused = 0
	c.pauseStart = time.Time{}
}

// reset clears the anchor so the next decoded frame re-anchors, used on
// open and seek.
func (c *presentationClock) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	c.totalPaused = 0
	c.pauseStart = time.Time{}
}

// startPTS returns the anchored origin PTS and whether the clock has
// been anchored since the last reset.
func (c *presentationClock) startPTS() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playStartPTS, c.started
}

// pauseAt records the moment playback paused, if it had started.
func (c *presentationClock) pauseAt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		c.pauseStart = time.Now()
	}
}

// resume folds the just-finished pause into totalPaused.
func (c *presentationClock) resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pauseStart.IsZero() {
		c.totalPaused += time.Since(c.pauseStart)
		c.pauseStart = time.Time{}
	}
}

// wait computes how long the decode loop should sleep before presenting
// a frame with the given PTS at the given rate, clamped to
// presentationWaitCap.
func (c *presentationClock) wait(pts, rate float64) time.Duration {
	c.mu.Lock()
	started := c.started
	playStartPTS := c.playStartPTS
	elapsed := time.Since(c.timerStart)
	totalPaused := c.totalPaused
	pauseStart := c.pauseStart
	c.mu.Unlock()

	if !started {
		return 0
	}

	if !pauseStart.IsZero() {
		elapsed -= time.Since(pauseStart)
	} else {
		elapsed -= totalPaused
	}

	if rate <= 0 {
		rate = 1.0
	}
	target := time.Duration((pts - playStartPTS) * float64(time.Second) / rate)

	wait := target - elapsed
	if wait < 0 {
		return 0
	}
	if wait > presentationWaitCap {
		return presentationWaitCap
	}
	return wait
}
