package playback

// #cgo pkg-config: libavutil libavcodec libswscale
// #include <libavcodec/avcodec.h>
// #include <libavutil/avutil.h>
// #include <libavutil/imgutils.h>
// #include <libswscale/swscale.h>
import "C"

import (
	"sync"
	"unsafe"

	"github.com/pkg/errors"
)

// ScalingQuality selects the sws_scale algorithm used to convert decoded
// video frames into the presentation RGB24 buffer.
type ScalingQuality int

const (
	FastBilinear ScalingQuality = iota
	Bilinear
	Bicubic
	Lanczos
)

func (q ScalingQuality) swsFlag() C.int {
	switch q {
	case Bilinear:
		return C.SWS_BILINEAR
	case Bicubic:
		return C.SWS_BICUBIC
	case Lanczos:
		return C.SWS_LANCZOS
	default:
		return C.SWS_FAST_BILINEAR
	}
}

// scaler wraps a reusable sws_getContext handle keyed by (source
// dims/format, destination dims, algorithm). scaler.mu guards only the
// brief free+create window of a rebuild — it is not held while scale
// converts a frame.
type scaler struct {
	mu sync.Mutex

	ctx         *C.struct_SwsContext
	srcW, srcH  int
	srcFmt      C.enum_AVPixelFormat
	dstW, dstH  int
	quality     ScalingQuality
	rgbBuf      *C.uint8_t
	rgbLinesize [4]C.int
}

// rebuildIfNeeded frees and recreates the sws context when any key
// component has changed. On construction failure with the requested
// algorithm, it falls back to FastBilinear; if that also fails, the
// scaler is left without a context and scale reports an error so the
// caller can drop the frame.
func (sc *scaler) rebuildIfNeeded(srcW, srcH int, srcFmt C.enum_AVPixelFormat, dstW, dstH int, quality ScalingQuality) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.ctx != nil && sc.srcW == srcW && sc.srcH == srcH && sc.srcFmt == srcFmt &&
		sc.dstW == dstW && sc.dstH == dstH && sc.quality == quality {
		return nil
	}

	if sc.ctx != nil {
		C.sws_freeContext(sc.ctx)
		sc.ctx = nil
	}
	if sc.rgbBuf != nil {
		C.av_free(unsafe.Pointer(sc.rgbBuf))
		sc.rgbBuf = nil
	}

	ctx := C.sws_getContext(C.int(srcW), C.int(srcH), srcFmt,
		C.int(dstW), C.int(dstH), C.AV_PIX_FMT_RGB24,
		quality.swsFlag(), nil, nil, nil)

	usedQuality := quality
	if ctx == nil && quality != FastBilinear {
		logger().WithField("quality", quality).Warn("couldn't build sws context, falling back to fast-bilinear")
		ctx = C.sws_getContext(C.int(srcW), C.int(srcH), srcFmt,
			C.int(dstW), C.int(dstH), C.AV_PIX_FMT_RGB24,
			FastBilinear.swsFlag(), nil, nil, nil)
		usedQuality = FastBilinear
	}
	if ctx == nil {
		return errors.New("couldn't build an sws context with any algorithm")
	}

	bufSize := C.av_image_get_buffer_size(C.AV_PIX_FMT_RGB24, C.int(dstW), C.int(dstH), 1)
	if bufSize < 0 {
		C.sws_freeContext(ctx)
		return errors.New("couldn't compute RGB24 buffer size")
	}
	buf := (*C.uint8_t)(C.av_malloc(C.size_t(bufSize)))
	if buf == nil {
		C.sws_freeContext(ctx)
		return errors.New("couldn't allocate RGB24 buffer")
	}

	sc.ctx = ctx
	sc.srcW, sc.srcH, sc.srcFmt = srcW, srcH, srcFmt
	sc.dstW, sc.dstH, sc.quality = dstW, dstH, usedQuality
	sc.rgbBuf = buf
	sc.rgbLinesize = [4]C.int{C.int(dstW * 3), 0, 0, 0}

	return nil
}

// scale converts vs's currently decoded frame into a new RGBImage at
// (dstW, dstH) using quality, rebuilding the internal context first if
// needed. Must be called from the decode goroutine only.
func (sc *scaler) scale(vs *VideoStream, dstW, dstH int, quality ScalingQuality) (*RGBImage, error) {
	srcW := int(vs.codecCtx.width)
	srcH := int(vs.codecCtx.height)
	srcFmt := vs.codecCtx.pix_fmt

	if err := sc.rebuildIfNeeded(srcW, srcH, srcFmt, dstW, dstH, quality); err != nil {
		return nil, err
	}

	dstData := [4]*C.uint8_t{sc.rgbBuf, nil, nil, nil}
	C.sws_scale(sc.ctx, &vs.frame.data[0], &vs.frame.linesize[0], 0, C.int(srcH),
		&dstData[0], &sc.rgbLinesize[0])

	img := newRGBImage(dstW, dstH)
	copy(img.Pix, unsafe.Slice((*byte)(unsafe.Pointer(sc.rgbBuf)), len(img.Pix)))

	return img, nil
}

// close releases the sws context and scratch buffer.
func (sc *scaler) close() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.ctx != nil {
		C.sws_freeContext(sc.ctx)
		sc.ctx = nil
	}
	if sc.rgbBuf != nil {
		C.av_free(unsafe.Pointer(sc.rgbBuf))
		sc.rgbBuf = nil
	}
}
