package playback

// #cgo pkg-config: libavutil
// #include <libavutil/frame.h>
import "C"

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// audioBatchCap is the number of decoded audio frames the decode loop
// accumulates before pushing them through the tempo pipeline as a
// single batch, amortizing filter-graph overhead.
const audioBatchCap = 8

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithEvents registers the callbacks the engine fires.
func WithEvents(events *Events) Option {
	return func(e *Engine) { e.events = events }
}

// WithLogger overrides the logger used for this engine's transient,
// recovered conditions. Defaults to the package logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// Engine is the playback engine: the decode loop and the transport
// controller that drives it, assembled from the codec facade, scaler,
// tempo pipeline, frame queues, presentation clock, and audio sink.
type Engine struct {
	mu sync.Mutex // guards c (container) across Open/Stop vs. the decode goroutine's lifetime

	c      *container
	vq     *videoQueue
	aq     *audioQueue
	scaler *scaler
	tempo  *tempoPipeline
	clock  *presentationClock
	sink   *audioSink

	sinkSampleRate int
	videoSourceW   int
	videoSourceH   int

	events *Events
	log    logrus.FieldLogger

	eg      errgroup.Group
	running atomic.Bool

	// playback position state, atomic unless noted.
	rate                  atomicFloat64
	renderWidth           atomic.Int64
	renderHeight          atomic.Int64
	quality               atomic.Int32
	stopRequested         atomic.Bool
	paused                atomic.Bool
	playing               atomic.Bool
	finished              atomic.Bool
	seekRequested         atomic.Bool
	seekTargetSec         atomicFloat64
	seekRestorePause      atomic.Bool
	swsNeedsReset         atomic.Bool
	audioFilterNeedsReset atomic.Bool
	audioBasePTS          atomicFloat64

	audioBatch    []*C.AVFrame
	audioBatchPTS []float64
}

// NewEngine constructs an Engine with default state; call Open before
// Play.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		vq:     &videoQueue{},
		aq:     &audioQueue{},
		scaler: &scaler{},
		tempo:  &tempoPipeline{},
		clock:  &presentationClock{},
		log:    pkgLogger,
	}
	e.rate.Store(1.0)
	e.audioBasePTS.Store(-1.0)
	e.quality.Store(int32(Bicubic))

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open closes any current session and opens path, allocating decoder
// contexts and resetting all playback state.
func (e *Engine) Open(path string) error {
	e.Stop()

	c, err := openContainer(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}

	e.mu.Lock()
	e.c = c
	e.videoSourceW = c.video.Width()
	e.videoSourceH = c.video.Height()
	e.mu.Unlock()

	e.rate.Store(1.0)
	e.renderWidth.Store(0)
	e.renderHeight.Store(0)
	e.quality.Store(int32(Bicubic))
	e.stopRequested.Store(false)
	e.paused.Store(false)
	e.playing.Store(false)
	e.finished.Store(false)
	e.seekRequested.Store(false)
	e.swsNeedsReset.Store(false)
	e.audioFilterNeedsReset.Store(false)
	e.audioBasePTS.Store(-1.0)
	e.vq.clear()
	e.aq.clear()
	e.clock.reset()

	return nil
}

// Duration returns the opened container's overall duration, or 0 if
// nothing is open.
func (e *Engine) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.c == nil {
		return 0
	}
	return e.c.Duration()
}

// Play starts the decode goroutine (and the audio sink, if the
// container has audio) the first time it's called after Open, and
// simply resumes on every subsequent call.
func (e *Engine) Play() {
	e.mu.Lock()
	c := e.c
	e.mu.Unlock()
	if c == nil {
		return
	}

	if e.running.Load() {
		e.clock.resume()
		e.paused.Store(false)
		if e.sink != nil {
			e.sink.resumePlayback()
		}
		e.events.playingChanged(true)
		return
	}

	e.paused.Store(false)
	e.stopRequested.Store(false)
	e.playing.Store(true)
	e.events.playingChanged(true)

	if c.audio != nil {
		sink, rate := openAudioSink(e.aq, c.audio.SampleRate())
		e.sink = sink
		e.sinkSampleRate = rate
		if sink != nil {
			if err := e.tempo.rebuild(c.audio.codecCtx, e.rate.Load()); err != nil {
				e.log.WithError(err).Warn("couldn't build initial audio tempo pipeline")
			}
		}
	}

	e.running.Store(true)
	e.eg.Go(func() error {
		e.decodeLoop()
		return nil
	})
}

// Pause suspends playback: the decode loop stops advancing and the
// audio sink outputs silence instead of draining the queue.
func (e *Engine) Pause() {
	if !e.running.Load() {
		return
	}
	e.clock.pauseAt()
	e.paused.Store(true)
	if e.sink != nil {
		e.sink.suspendPlayback()
	}
	e.events.playingChanged(false)
}

// Stop tears down the session: the decode goroutine is signaled and
// joined, the sink and codec contexts are freed, and the queues are
// cleared. Safe to call when nothing is open.
func (e *Engine) Stop() {
	e.stopRequested.Store(true)
	e.paused.Store(false)
	e.playing.Store(false)
	e.finished.Store(false)
	e.seekRequested.Store(false)
	e.events.playingChanged(false)

	if e.running.Load() {
		e.eg.Wait()
		e.running.Store(false)
	}

	if e.sink != nil {
		closeAudioSink()
		e.sink = nil
	}

	e.vq.clear()
	e.aq.clear()

	e.mu.Lock()
	if e.c != nil {
		e.c.close()
		e.c = nil
	}
	e.mu.Unlock()
}

// Seek requests a jump to targetSec. The actual seek happens at the next
// decode loop boundary.
func (e *Engine) Seek(targetSec float64) {
	e.mu.Lock()
	c := e.c
	e.mu.Unlock()
	if c == nil {
		return
	}

	// A seek must reach the decode loop's seek branch even if the
	// session is deliberately paused; handleSeek restores the pause
	// state once the jump itself is done.
	e.seekRestorePause.Store(e.paused.Load())
	e.paused.Store(false)

	e.vq.clear()
	e.aq.clear()
	e.audioBasePTS.Store(-1.0)
	if e.sink != nil {
		e.sink.resetSamples()
		e.sink.resetBuffer()
	}

	e.seekTargetSec.Store(targetSec)
	e.seekRequested.Store(true)
	e.finished.Store(false)
}

// Forward jumps by deltaSec relative to the current position, clamped
// to [0, duration].
func (e *Engine) Forward(deltaSec float64) {
	e.mu.Lock()
	c := e.c
	e.mu.Unlock()
	if c == nil {
		return
	}

	current := e.currentPosition()
	target := current + deltaSec
	if target < 0 {
		target = 0
	}
	if dur := c.Duration().Seconds(); target > dur {
		target = dur
	}
	e.Seek(target)
}

// currentPosition estimates the playback position from, in order: the
// tail of the video queue, the audio anchor plus samples played so far
// (divided by the sink's sample rate to convert a sample count into
// seconds), or the clock's anchor PTS.
func (e *Engine) currentPosition() float64 {
	if pts, ok := e.vq.lastPTS(); ok {
		return pts
	}

	if base := e.audioBasePTS.Load(); base >= 0 && e.sink != nil && e.sinkSampleRate > 0 {
		played := float64(e.sink.samplesWritten()) / float64(e.sinkSampleRate)
		return base + played
	}

	if pts, ok := e.clock.startPTS(); ok {
		return pts
	}

	return 0
}

// SetRate stores a new playback rate, re-anchors the presentation clock
// to the current position, and raises a tempo-pipeline rebuild.
func (e *Engine) SetRate(r float64) {
	if r <= 0 {
		return
	}
	e.rate.Store(r)

	current := e.currentPosition()
	e.clock.anchor(current)

	e.aq.clear()
	e.audioFilterNeedsReset.Store(true)
}

// SetRenderSize stores a new target render size and raises a scaler
// rebuild, observed at the next video frame boundary.
func (e *Engine) SetRenderSize(w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	e.renderWidth.Store(int64(w))
	e.renderHeight.Store(int64(h))
	e.swsNeedsReset.Store(true)
}

// SetScalingQuality stores a new scaler algorithm and raises a scaler
// rebuild.
func (e *Engine) SetScalingQuality(q ScalingQuality) {
	if q < FastBilinear || q > Lanczos {
		return
	}
	e.quality.Store(int32(q))
	e.swsNeedsReset.Store(true)
}

// renderSize returns the current target render dimensions, falling
// back to the video stream's source dimensions when unset (a render
// size of 0 means use the source dimensions).
func (e *Engine) renderSize() (int, int) {
	w := int(e.renderWidth.Load())
	h := int(e.renderHeight.Load())
	if w <= 0 || h <= 0 {
		return e.videoSourceW, e.videoSourceH
	}
	return w, h
}

// decodeLoop is the engine's single decode worker. It owns every codec,
// scaler, and tempo-pipeline context exclusively until it returns, at
// which point it releases the scaler and tempo pipeline it built.
func (e *Engine) decodeLoop() {
	defer e.scaler.close()
	defer e.tempo.close()

	for {
		if e.stopRequested.Load() {
			e.flushAudioBatch()
			return
		}

		if e.paused.Load() {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if e.seekRequested.Load() {
			e.handleSeek()
			continue
		}

		if e.audioFilterNeedsReset.Load() {
			e.audioFilterNeedsReset.Store(false)
			if e.c.audio != nil {
				if err := e.tempo.rebuild(e.c.audio.codecCtx, e.rate.Load()); err != nil {
					e.log.WithError(err).Warn("couldn't rebuild audio tempo pipeline")
				}
			}
		}

		pkt, ok, err := e.c.readPacket()
		if err != nil {
			e.log.WithError(err).Warn("packet read failed")
			continue
		}
		if pkt == nil && ok {
			continue // demuxer said "try again", not an error
		}
		if !ok {
			e.flushAudioBatch()
			e.handleEndOfStream()
			time.Sleep(20 * time.Millisecond)
			continue
		}

		switch {
		case e.c.audio != nil && pkt.StreamIndex() == e.c.audio.Index():
			e.decodeAudioPacket()
		case pkt.StreamIndex() == e.c.video.Index():
			e.decodeVideoPacket()
		}

		e.c.unrefPacket()
	}
}

// handleSeek performs the seek-requested branch of the decode loop.
func (e *Engine) handleSeek() {
	e.seekRequested.Store(false)
	target := e.seekTargetSec.Load()
	defer e.paused.Store(e.seekRestorePause.Load())

	e.flushAudioBatch()

	if err := e.c.seek(target); err != nil {
		e.log.WithError(err).Warn("seek failed, leaving position unchanged")
		return
	}

	e.c.video.flush()
	if e.c.audio != nil {
		e.c.audio.flush()
	}

	e.vq.clear()
	e.aq.clear()

	if e.c.audio != nil {
		if err := e.tempo.rebuild(e.c.audio.codecCtx, e.rate.Load()); err != nil {
			e.log.WithError(err).Warn("couldn't rebuild audio tempo pipeline after seek")
		}
	}

	e.audioBasePTS.Store(-1.0)
	if e.sink != nil {
		e.sink.resetSamples()
	}
	e.clock.reset()
}

// handleEndOfStream flushes any pending audio and, the first time end
// of stream is reached, marks playback finished and paused.
func (e *Engine) handleEndOfStream() {
	if e.c.audio != nil {
		chunks, err := e.tempo.flush()
		if err != nil {
			e.log.WithError(err).Warn("tempo pipeline flush failed")
		}
		e.enqueueAudioChunks(chunks)
	}

	if !e.finished.Load() {
		e.finished.Store(true)
		e.paused.Store(true)
		e.playing.Store(false)
		e.events.playingChanged(false)
		e.events.finished()
	}
}

// decodeVideoPacket sends one packet to the video decoder and presents
// every frame it yields.
func (e *Engine) decodeVideoPacket() {
	vs := e.c.video
	if err := vs.sendPacket(); err != nil {
		e.log.WithError(err).Warn("video decoder rejected packet")
		return
	}

	for {
		ok, err := vs.receiveFrame()
		if err != nil {
			e.log.WithError(err).Warn("video decoder failed to produce a frame")
			return
		}
		if !ok {
			return
		}
		e.presentVideoFrame(vs)
	}
}

// presentVideoFrame scales, paces, enqueues, and emits one decoded
// video frame.
func (e *Engine) presentVideoFrame(vs *VideoStream) {
	pts := vs.ptsSeconds()

	dstW, dstH := e.renderSize()
	quality := ScalingQuality(e.quality.Load())
	e.swsNeedsReset.Store(false) // rebuild is idempotent at the next frame boundary regardless

	img, err := e.scaler.scale(vs, dstW, dstH, quality)
	if err != nil {
		e.log.WithError(err).Warn("scaler failed, dropping frame")
		return
	}

	if _, started := e.clock.startPTS(); !started {
		e.clock.anchor(pts)
	} else {
		if wait := e.clock.wait(pts, e.rate.Load()); wait > 0 {
			time.Sleep(wait)
		}
	}

	e.vq.push(videoFrameRecord{img: img, pts: pts})

	e.events.frame(img)
	e.events.position(pts)
}

// decodeAudioPacket sends one packet to the audio decoder, batching
// decoded frames up to audioBatchCap before pushing them through the
// tempo pipeline.
func (e *Engine) decodeAudioPacket() {
	as := e.c.audio
	if as == nil {
		return
	}

	if err := as.sendPacket(); err != nil {
		e.log.WithError(err).Warn("audio decoder rejected packet")
		return
	}

	for {
		ok, err := as.receiveFrame()
		if err != nil {
			e.log.WithError(err).Warn("audio decoder failed to produce a frame")
			return
		}
		if !ok {
			return
		}

		clone := C.av_frame_clone(as.frame)
		if clone == nil {
			e.log.Warn("couldn't clone audio frame for batching")
			continue
		}
		e.audioBatch = append(e.audioBatch, clone)
		e.audioBatchPTS = append(e.audioBatchPTS, as.ptsSeconds())

		if len(e.audioBatch) >= audioBatchCap {
			e.flushAudioBatch()
		}
	}
}

// flushAudioBatch pushes every pending cloned audio frame through the
// tempo pipeline, enqueues the resulting chunks, and releases the
// clones.
func (e *Engine) flushAudioBatch() {
	if len(e.audioBatch) == 0 {
		return
	}

	for i, frame := range e.audioBatch {
		chunks, err := e.tempo.push(frame, e.audioBatchPTS[i])
		if err != nil {
			e.log.WithError(err).Warn("tempo pipeline push failed")
		} else {
			e.enqueueAudioChunks(chunks)
		}
		C.av_frame_free(&e.audioBatch[i])
	}

	e.audioBatch = e.audioBatch[:0]
	e.audioBatchPTS = e.audioBatchPTS[:0]
}

// enqueueAudioChunks pushes chunks onto the audio queue and sets the
// audio anchor PTS from the first chunk since the last reset.
func (e *Engine) enqueueAudioChunks(chunks []AudioChunk) {
	for _, c := range chunks {
		e.aq.push(c)
		if e.audioBasePTS.Load() < 0 {
			e.audioBasePTS.Store(c.PTS)
		}
	}
}
