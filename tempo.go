package playback

// #cgo pkg-config: libavfilter libavcodec libavutil
// #include <stdlib.h>
// #include <libavcodec/avcodec.h>
// #include <libavutil/avutil.h>
// #include <libavutil/opt.h>
// #include <libavutil/channel_layout.h>
// #include <libavfilter/avfilter.h>
// #include <libavfilter/buffersrc.h>
// #include <libavfilter/buffersink.h>
import "C"

import (
	"fmt"
	"math"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
)

// decomposeTempo breaks a target rate r into a chain of stage factors
// each within [0.5, 2.0]. An empty return means pass-through (r is
// within 1% of 1.0).
func decomposeTempo(r float64) []float64 {
	stages := []float64{}

	for r > 2.0 {
		stages = append(stages, 2.0)
		r /= 2.0
	}
	for r < 0.5 {
		stages = append(stages, 0.5)
		r /= 0.5
	}
	if math.Abs(r-1.0) > 0.01 {
		stages = append(stages, r)
	}

	return stages
}

// tempoPipeline wraps an avfilter graph chaining atempo stages into a
// format-conforming aformat/abuffersink pair that always yields s16
// stereo PCM at the codec's original sample rate. mu serializes rebuild
// against push: it is held for the entire duration of a push, not just
// while swapping the graph pointer.
type tempoPipeline struct {
	mu sync.Mutex

	graph   *C.AVFilterGraph
	srcCtx  *C.AVFilterContext
	sinkCtx *C.AVFilterContext
	outRate int
	built   bool
}

// rebuild tears down any existing graph and builds a fresh one for
// (codecCtx, rate). On construction failure the pipeline is left unbuilt
// and push/flush become no-ops until the next successful rebuild.
func (p *tempoPipeline) rebuild(codecCtx *C.AVCodecContext, rate float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.teardown()

	stages := decomposeTempo(rate)

	desc := ""
	for _, s := range stages {
		desc += fmt.Sprintf("atempo=%f,", s)
	}
	desc += fmt.Sprintf("aformat=sample_fmts=s16:sample_rates=%d:channel_layouts=stereo",
		int(codecCtx.sample_rate))

	graph := C.avfilter_graph_alloc()
	if graph == nil {
		return errors.New("couldn't allocate filter graph")
	}

	srcName := C.CString("in")
	sinkName := C.CString("out")
	defer C.free(unsafe.Pointer(srcName))
	defer C.free(unsafe.Pointer(sinkName))

	abuffer := C.avfilter_get_by_name(C.CString("abuffer"))
	abuffersink := C.avfilter_get_by_name(C.CString("abuffersink"))

	var layoutDesc [64]C.char
	C.av_channel_layout_describe(&codecCtx.ch_layout, &layoutDesc[0], 64)

	srcArgs := C.CString(fmt.Sprintf(
		"time_base=1/%d:sample_rate=%d:sample_fmt=%s:channel_layout=%s",
		int(codecCtx.sample_rate), int(codecCtx.sample_rate),
		C.GoString(C.av_get_sample_fmt_name(codecCtx.sample_fmt)),
		C.GoString(&layoutDesc[0])))
	defer C.free(unsafe.Pointer(srcArgs))

	var srcCtx *C.AVFilterContext
	if r := C.avfilter_graph_create_filter(&srcCtx, abuffer, srcName, srcArgs, nil, graph); r < 0 {
		C.avfilter_graph_free(&graph)
		return errors.Errorf("%d: couldn't create abuffer source", int(r))
	}

	var sinkCtx *C.AVFilterContext
	if r := C.avfilter_graph_create_filter(&sinkCtx, abuffersink, sinkName, nil, nil, graph); r < 0 {
		C.avfilter_graph_free(&graph)
		return errors.Errorf("%d: couldn't create abuffersink", int(r))
	}

	cDesc := C.CString(desc)
	defer C.free(unsafe.Pointer(cDesc))

	outputs := C.avfilter_inout_alloc()
	inputs := C.avfilter_inout_alloc()
	if outputs == nil || inputs == nil {
		C.avfilter_inout_free(&outputs)
		C.avfilter_inout_free(&inputs)
		C.avfilter_graph_free(&graph)
		return errors.New("couldn't allocate filter in/out descriptors")
	}

	outputs.name = C.av_strdup(srcName)
	outputs.filter_ctx = srcCtx
	outputs.pad_idx = 0
	outputs.next = nil

	inputs.name = C.av_strdup(sinkName)
	inputs.filter_ctx = sinkCtx
	inputs.pad_idx = 0
	inputs.next = nil

	if r := C.avfilter_graph_parse_ptr(graph, cDesc, &inputs, &outputs, nil); r < 0 {
		C.avfilter_inout_free(&outputs)
		C.avfilter_inout_free(&inputs)
		C.avfilter_graph_free(&graph)
		return errors.Errorf("%d: couldn't parse filter chain %q", int(r), desc)
	}

	if r := C.avfilter_graph_config(graph, nil); r < 0 {
		C.avfilter_graph_free(&graph)
		return errors.Errorf("%d: couldn't configure filter graph", int(r))
	}

	p.graph = graph
	p.srcCtx = srcCtx
	p.sinkCtx = sinkCtx
	p.outRate = int(codecCtx.sample_rate)
	p.built = true

	return nil
}

// teardown frees the current graph, if any. Caller must hold mu.
func (p *tempoPipeline) teardown() {
	if p.graph != nil {
		C.avfilter_graph_free(&p.graph)
		p.graph = nil
		p.srcCtx = nil
		p.sinkCtx = nil
		p.built = false
	}
}

// push feeds a decoded audio frame through the pipeline and returns any
// chunks of s16 stereo PCM it produced. Must be called from the decode
// goroutine only; serialized against rebuild by mu.
func (p *tempoPipeline) push(frame *C.AVFrame, ptsSeconds float64) ([]AudioChunk, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.built {
		return nil, nil
	}

	if r := C.av_buffersrc_add_frame_flags(p.srcCtx, frame, C.AV_BUFFERSRC_FLAG_KEEP_REF); r < 0 {
		return nil, errors.Errorf("%d: couldn't push frame into filter graph", int(r))
	}

	return p.drain(ptsSeconds)
}

// flush signals end of stream to the graph (by pushing a nil frame) and
// drains whatever remaining chunks the graph still holds.
func (p *tempoPipeline) flush() ([]AudioChunk, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.built {
		return nil, nil
	}

	C.av_buffersrc_add_frame_flags(p.srcCtx, nil, C.AV_BUFFERSRC_FLAG_KEEP_REF)
	return p.drain(0)
}

// drain pulls every frame currently available from the sink. Caller
// must hold mu.
func (p *tempoPipeline) drain(fallbackPTS float64) ([]AudioChunk, error) {
	var chunks []AudioChunk
	outFrame := C.av_frame_alloc()
	defer C.av_frame_free(&outFrame)

	for {
		r := C.av_buffersink_get_frame(p.sinkCtx, outFrame)
		if int(r) == ErrorAgain || int(r) == ErrorEOF {
			break
		}
		if r < 0 {
			return chunks, errors.Errorf("%d: couldn't pull frame from filter graph", int(r))
		}

		pts := fallbackPTS
		if int64(outFrame.pts) != int64(C.AV_NOPTS_VALUE) {
			pts = float64(outFrame.pts) / float64(p.outRate)
		}

		bufSize := C.av_samples_get_buffer_size(nil, 2, outFrame.nb_samples, C.AV_SAMPLE_FMT_S16, 1)
		if bufSize > 0 {
			data := C.GoBytes(unsafe.Pointer(outFrame.data[0]), bufSize)
			chunks = append(chunks, AudioChunk{PTS: pts, Data: data})
		}

		C.av_frame_unref(outFrame)
	}

	return chunks, nil
}

// close releases the graph.
func (p *tempoPipeline) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.teardown()
}
