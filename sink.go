package playback

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

// sinkTickDuration is the target cadence of the audio sink driver.
// beep's speaker mixer pulls from the Streamer on its own schedule,
// governed by the buffer size passed to speaker.Init; openAudioSink
// derives that buffer size from this duration instead of running a
// separate ticker goroutine.
const sinkTickDuration = 20 * time.Millisecond

// fallbackSampleRates is tried, in order, after the codec's own sample
// rate fails to negotiate with the output device.
var fallbackSampleRates = []int{48000, 44100}

// audioSink drives the audio output: on every pull from beep's mixer
// it drains the audio queue, converts s16 stereo PCM bytes into beep's
// float64 sample pairs, and tracks how many samples (per channel) have
// been handed to the device.
type audioSink struct {
	queue *audioQueue

	suspended atomic.Bool
	samples   atomic.Int64 // audio_samples_written

	leftover []byte // undrained bytes from a previous Stream call
}

// newAudioSink wires a sink to the engine's audio queue.
func newAudioSink(q *audioQueue) *audioSink {
	return &audioSink{queue: q}
}

// Stream implements beep.Streamer. It never signals end-of-stream:
// starvation is filled with silence rather than stalling the decoder.
func (s *audioSink) Stream(samples [][2]float64) (n int, ok bool) {
	if s.suspended.Load() {
		for i := range samples {
			samples[i] = [2]float64{}
		}
		return len(samples), true
	}

	needBytes := len(samples) * 4 // s16, stereo: 2 bytes * 2 channels
	for len(s.leftover) < needBytes {
		chunks := s.queue.drain()
		if chunks == nil {
			break
		}
		for _, c := range chunks {
			s.leftover = append(s.leftover, c.Data...)
		}
	}

	avail := len(s.leftover)
	if avail > needBytes {
		avail = needBytes
	}
	nSamples := avail / 4

	for i := 0; i < nSamples; i++ {
		l := int16(binary.LittleEndian.Uint16(s.leftover[i*4:]))
		r := int16(binary.LittleEndian.Uint16(s.leftover[i*4+2:]))
		samples[i][0] = float64(l) / 32768.0
		samples[i][1] = float64(r) / 32768.0
	}
	for i := nSamples; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}

	s.leftover = s.leftover[nSamples*4:]
	s.samples.Add(int64(nSamples))

	return len(samples), true
}

// Err implements beep.Streamer; the sink never fails on its own.
func (s *audioSink) Err() error { return nil }

// samplesWritten returns the running count of samples (per channel)
// accepted by the sink.
func (s *audioSink) samplesWritten() int64 { return s.samples.Load() }

// resetSamples zeroes the played-sample counter, used on seek.
func (s *audioSink) resetSamples() { s.samples.Store(0) }

// resetBuffer discards any undrained bytes left over from before a
// seek, so stale pre-seek audio never reaches the device.
func (s *audioSink) resetBuffer() { s.leftover = nil }

// suspend/resumePlayback toggle silence output without tearing the
// device down.
func (s *audioSink) suspendPlayback() { s.suspended.Store(true) }
func (s *audioSink) resumePlayback()  { s.suspended.Store(false) }

// openAudioSink negotiates an output sample rate (codec rate, then the
// fallbacks in fallbackSampleRates) and starts beep's speaker against a
// fresh audioSink. If every rate fails, audio is disabled for the
// session and a nil sink is returned.
func openAudioSink(queue *audioQueue, codecSampleRate int) (*audioSink, int) {
	rates := append([]int{codecSampleRate}, fallbackSampleRates...)

	for _, rate := range rates {
		bufferSize := int(float64(rate) * sinkTickDuration.Seconds())
		if bufferSize < 1 {
			bufferSize = 1
		}

		if err := speaker.Init(beep.SampleRate(rate), bufferSize); err != nil {
			logger().WithError(err).WithField("rate", rate).Warn("audio device rejected sample rate, trying fallback")
			continue
		}

		sink := newAudioSink(queue)
		speaker.Play(sink)
		return sink, rate
	}

	logger().Warn("no audio output device negotiated, disabling audio for this session")
	return nil, 0
}

// closeAudioSink stops beep's mixer.
func closeAudioSink() {
	speaker.Clear()
}
