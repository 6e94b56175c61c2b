package playback

// #cgo pkg-config: libavformat libavcodec libavutil libswscale
// #include <libavcodec/avcodec.h>
// #include <libavformat/avformat.h>
// #include <libavutil/avutil.h>
import "C"

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/pkg/errors"
)

// timeBaseSeconds is the AV_TIME_BASE used by av_seek_frame when no
// particular stream's time base applies.
const timeBaseSeconds = float64(C.AV_TIME_BASE)

// container owns the demuxer context and the reusable read packet. It
// is only ever touched from the decode goroutine once playback has
// started.
type container struct {
	ctx    *C.AVFormatContext
	packet *C.AVPacket
	video  *VideoStream
	audio  *AudioStream
}

// openContainer opens the file at path, finds its stream info, and
// allocates (but does not yet start) decoder contexts for the first
// video stream and, if present and openable, the first audio stream.
//
// A file with no video stream is an open failure. An audio stream
// that can't be opened demotes to video-only.
func openContainer(path string) (*container, error) {
	c := &container{ctx: C.avformat_alloc_context()}
	if c.ctx == nil {
		return nil, errors.New("couldn't allocate a format context")
	}

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	if C.avformat_open_input(&c.ctx, cPath, nil, nil) < 0 {
		return nil, errors.Errorf("couldn't open %q", path)
	}

	if C.avformat_find_stream_info(c.ctx, nil) < 0 {
		C.avformat_close_input(&c.ctx)
		return nil, errors.New("couldn't find stream information")
	}

	videoIdx, audioIdx := -1, -1
	innerStreams := unsafe.Slice(c.ctx.streams, c.ctx.nb_streams)
	for i, s := range innerStreams {
		switch s.codecpar.codec_type {
		case C.AVMEDIA_TYPE_VIDEO:
			if videoIdx < 0 {
				videoIdx = i
			}
		case C.AVMEDIA_TYPE_AUDIO:
			if audioIdx < 0 {
				audioIdx = i
			}
		}
	}

	if videoIdx < 0 {
		C.avformat_close_input(&c.ctx)
		return nil, errors.New("no video stream found")
	}

	vs, err := newVideoStream(c, innerStreams[videoIdx])
	if err != nil {
		C.avformat_close_input(&c.ctx)
		return nil, errors.Wrap(err, "opening video stream")
	}
	c.video = vs

	if audioIdx >= 0 {
		as, err := newAudioStream(c, innerStreams[audioIdx])
		if err != nil {
			// Audio decode failure demotes to video-only rather than failing Open.
			logger().WithError(err).Warn("audio decoder unavailable, continuing video-only")
		} else {
			c.audio = as
		}
	}

	c.packet = C.av_packet_alloc()
	if c.packet == nil {
		vs.Close()
		C.avformat_close_input(&c.ctx)
		return nil, errors.New("couldn't allocate a packet")
	}

	return c, nil
}

// Duration returns the overall duration of the container.
func (c *container) Duration() time.Duration {
	tm := float64(c.ctx.duration) / timeBaseSeconds
	if tm < 0 {
		tm = 0
	}
	return time.Duration(tm * float64(time.Second))
}

// readPacket reads the next packet. A nil packet with a true return
// means the demuxer asked to try again; a false return means end of
// stream, and any read failure other than EAGAIN is reported the same
// way. err is currently always nil.
func (c *container) readPacket() (*Packet, bool, error) {
	if r := C.av_read_frame(c.ctx, c.packet); r < 0 {
		if int(r) == ErrorAgain {
			return nil, true, nil
		}
		return nil, false, nil
	}

	pkt := newPacket(c.packet)
	return pkt, true, nil
}

// unrefPacket releases the reusable packet's buffer reference after a
// decoder has consumed it.
func (c *container) unrefPacket() {
	C.av_packet_unref(c.packet)
}

// seek requests a seek to targetSec seconds. It first tries a backward
// (keyframe at-or-before) seek and, on failure, retries with the "any
// frame" flag.
func (c *container) seek(targetSec float64) error {
	ts := rewindPosition(int64(targetSec * timeBaseSeconds))

	if r := C.av_seek_frame(c.ctx, -1, C.int64_t(ts), C.AVSEEK_FLAG_BACKWARD); r >= 0 {
		return nil
	}

	logger().WithField("target", targetSec).Warn("backward seek failed, retrying with any-frame flag")
	if r := C.av_seek_frame(c.ctx, -1, C.int64_t(ts), C.AVSEEK_FLAG_ANY); r < 0 {
		return fmt.Errorf("%d: seek to %.3fs failed", int(r), targetSec)
	}

	return nil
}

// close tears down the demuxer and both decoder contexts. Safe to call
// more than once.
func (c *container) close() {
	if c.video != nil {
		c.video.Close()
		c.video = nil
	}
	if c.audio != nil {
		c.audio.Close()
		c.audio = nil
	}
	if c.packet != nil {
		C.av_packet_free(&c.packet)
		c.packet = nil
	}
	if c.ctx != nil {
		C.avformat_close_input(&c.ctx)
		c.ctx = nil
	}
}
