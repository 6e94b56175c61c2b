package playback

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEngineDefaults(t *testing.T) {
	t.Parallel()
	e := NewEngine()
	require.Equal(t, 1.0, e.rate.Load())
	require.Equal(t, -1.0, e.audioBasePTS.Load())
	require.Equal(t, Bicubic, ScalingQuality(e.quality.Load()))
}

func TestEngineOptionsApply(t *testing.T) {
	t.Parallel()
	events := &Events{}
	e := NewEngine(WithEvents(events))
	require.Same(t, events, e.events)
}

func TestEngineTransportMethodsAreNoOpsWithoutAnOpenContainer(t *testing.T) {
	t.Parallel()
	e := NewEngine()

	// None of these should panic on a nil container; each bails out
	// before touching e.c.
	e.Play()
	e.Pause()
	e.Seek(5.0)
	e.Forward(5.0)
	e.Stop()

	require.False(t, e.running.Load())
}

func TestEngineRenderSizeFallsBackToSourceDimensions(t *testing.T) {
	t.Parallel()
	e := NewEngine()
	e.videoSourceW = 640
	e.videoSourceH = 480

	w, h := e.renderSize()
	require.Equal(t, 640, w)
	require.Equal(t, 480, h)

	e.SetRenderSize(1280, 720)
	w, h = e.renderSize()
	require.Equal(t, 1280, w)
	require.Equal(t, 720, h)
}

func TestEngineSetRenderSizeIgnoresNonPositiveValues(t *testing.T) {
	t.Parallel()
	e := NewEngine()
	e.videoSourceW = 320
	e.videoSourceH = 240

	e.SetRenderSize(0, 0)
	w, h := e.renderSize()
	require.Equal(t, 320, w)
	require.Equal(t, 240, h)
}

func TestEngineSetScalingQualityRejectsOutOfRange(t *testing.T) {
	t.Parallel()
	e := NewEngine()
	e.SetScalingQuality(ScalingQuality(99))
	require.Equal(t, Bicubic, ScalingQuality(e.quality.Load()))

	e.SetScalingQuality(Lanczos)
	require.Equal(t, Lanczos, ScalingQuality(e.quality.Load()))
}

func TestEngineSetRateIgnoresNonPositive(t *testing.T) {
	t.Parallel()
	e := NewEngine()
	e.SetRate(-1.0)
	require.Equal(t, 1.0, e.rate.Load())

	e.SetRate(2.0)
	require.Equal(t, 2.0, e.rate.Load())
	require.True(t, e.audioFilterNeedsReset.Load())
}

func TestEngineCurrentPositionFallsBackThroughTiers(t *testing.T) {
	t.Parallel()
	e := NewEngine()

	// Nothing anchored yet: falls all the way through to zero.
	require.Equal(t, 0.0, e.currentPosition())

	// Clock anchored but no video queue or audio sink: uses the anchor.
	e.clock.anchor(2.5)
	require.Equal(t, 2.5, e.currentPosition())

	// Video queue present: takes priority over the clock anchor.
	e.vq.push(videoFrameRecord{pts: 9.0})
	require.Equal(t, 9.0, e.currentPosition())
}
