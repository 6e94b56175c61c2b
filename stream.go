package playback

// #cgo pkg-config: libavformat libavcodec libavutil
// #include <libavcodec/avcodec.h>
// #include <libavformat/avformat.h>
// #include <libavutil/avutil.h>
import "C"

import (
	"time"

	"github.com/pkg/errors"
)

// baseStream holds the decoder context state common to the video and
// audio streams. It is exclusively owned by the decode goroutine once
// playback starts; nothing in this file is safe to call concurrently
// with itself.
type baseStream struct {
	c        *container
	inner    *C.AVStream
	params   *C.AVCodecParameters
	codec    *C.AVCodec
	codecCtx *C.AVCodecContext
	frame    *C.AVFrame
}

// Index returns the stream index within the container.
func (s *baseStream) Index() int { return int(s.inner.index) }

// TimeBase returns the stream's numerator/denominator time base
// fraction: multiply a raw tick count by num/den to get seconds.
func (s *baseStream) TimeBase() (int, int) {
	return int(s.inner.time_base.num), int(s.inner.time_base.den)
}

// CodecName returns the short name of the stream's codec.
func (s *baseStream) CodecName() string {
	if s.codec == nil || s.codec.name == nil {
		return ""
	}
	return C.GoString(s.codec.name)
}

// Duration returns the stream's own duration, falling back to zero
// when libav reports an unknown (negative) value.
func (s *baseStream) Duration() time.Duration {
	dur := s.inner.duration
	if dur < 0 {
		dur = 0
	}
	num, den := s.TimeBase()
	seconds := float64(dur) * float64(num) / float64(den)
	return time.Duration(seconds * float64(time.Second))
}

// ptsSeconds converts the decoded frame's PTS to seconds, falling back
// to the best-effort timestamp and finally to 0.0.
func (s *baseStream) ptsSeconds() float64 {
	num, den := s.TimeBase()
	factor := float64(num) / float64(den)

	pts := int64(s.frame.pts)
	if pts == int64(C.AV_NOPTS_VALUE) {
		pts = int64(s.frame.best_effort_timestamp)
	}
	if pts == int64(C.AV_NOPTS_VALUE) {
		return 0.0
	}
	return float64(pts) * factor
}

// open allocates the codec context and the reusable decode frame.
func (s *baseStream) open() error {
	s.codecCtx = C.avcodec_alloc_context3(s.codec)
	if s.codecCtx == nil {
		return errors.New("couldn't allocate a codec context")
	}
	if r := C.avcodec_parameters_to_context(s.codecCtx, s.params); r < 0 {
		return errors.Errorf("%d: couldn't copy codec parameters", int(r))
	}
	if r := C.avcodec_open2(s.codecCtx, s.codec, nil); r < 0 {
		return errors.Errorf("%d: couldn't open codec", int(r))
	}
	s.frame = C.av_frame_alloc()
	if s.frame == nil {
		return errors.New("couldn't allocate a frame")
	}
	return nil
}

// sendPacket hands the container's current packet to the decoder.
func (s *baseStream) sendPacket() error {
	if r := C.avcodec_send_packet(s.codecCtx, s.c.packet); r < 0 && int(r) != ErrorAgain {
		return errors.Errorf("%d: couldn't send packet to decoder", int(r))
	}
	return nil
}

// receiveFrame pulls one decoded frame into s.frame. ok is false once
// the decoder has given up everything it can from the packets sent so
// far (EAGAIN) or reached end of stream (EOF); the caller should then
// send another packet (or stop) rather than call receiveFrame again.
func (s *baseStream) receiveFrame() (ok bool, err error) {
	if r := C.avcodec_receive_frame(s.codecCtx, s.frame); r < 0 {
		if int(r) == ErrorAgain || int(r) == ErrorEOF {
			return false, nil
		}
		return false, errors.Errorf("%d: couldn't receive frame from decoder", int(r))
	}
	return true, nil
}

// flush drops any buffered frames inside the codec, used on seek. The
// codec itself isn't rate-dependent, but a flush keeps stale frames from
// a pre-seek position out of the pipeline.
func (s *baseStream) flush() {
	if s.codecCtx != nil {
		C.avcodec_flush_buffers(s.codecCtx)
	}
}

// close releases the codec context and decode frame.
func (s *baseStream) close() {
	if s.frame != nil {
		C.av_frame_free(&s.frame)
		s.frame = nil
	}
	if s.codecCtx != nil {
		C.avcodec_free_context(&s.codecCtx)
		s.codecCtx = nil
	}
}

// VideoStream is the decoder context for the container's video stream.
type VideoStream struct {
	baseStream
}

// Width returns the coded width of the video stream.
func (s *VideoStream) Width() int { return int(s.params.width) }

// Height returns the coded height of the video stream.
func (s *VideoStream) Height() int { return int(s.params.height) }

// newVideoStream opens a decoder context for innerStream, which must be
// a video stream.
func newVideoStream(c *container, innerStream *C.AVStream) (*VideoStream, error) {
	params := innerStream.codecpar
	codec := C.avcodec_find_decoder(params.codec_id)
	if codec == nil {
		return nil, errors.New("no decoder for video codec")
	}

	vs := &VideoStream{baseStream{c: c, inner: innerStream, params: params, codec: codec}}
	if err := vs.open(); err != nil {
		return nil, err
	}
	return vs, nil
}

// Close tears down the video decoder context.
func (s *VideoStream) Close() { s.close() }

// AudioStream is the decoder context for the container's audio stream.
type AudioStream struct {
	baseStream
}

// SampleRate returns the codec's original sample rate.
func (s *AudioStream) SampleRate() int { return int(s.codecCtx.sample_rate) }

// newAudioStream opens a decoder context for innerStream, which must be
// an audio stream. A failure here is treated as audio-absent by the
// caller.
func newAudioStream(c *container, innerStream *C.AVStream) (*AudioStream, error) {
	params := innerStream.codecpar
	codec := C.avcodec_find_decoder(params.codec_id)
	if codec == nil {
		return nil, errors.New("no decoder for audio codec")
	}

	as := &AudioStream{baseStream{c: c, inner: innerStream, params: params, codec: codec}}
	if err := as.open(); err != nil {
		return nil, err
	}
	return as, nil
}

// Close tears down the audio decoder context.
func (s *AudioStream) Close() { s.close() }
