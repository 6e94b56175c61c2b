package playback

// #cgo pkg-config: libavformat libavcodec libavutil
// #include <libavcodec/avcodec.h>
// #include <libavformat/avformat.h>
import "C"
import "unsafe"

// Packet is a single piece of encoded data read from the container,
// belonging to exactly one stream.
type Packet struct {
	streamIndex int
	data        []byte
	pts         int64
	dts         int64
	duration    int64
}

// StreamIndex returns the index of the stream the packet belongs to.
func (pkt *Packet) StreamIndex() int {
	return pkt.streamIndex
}

// Data returns the encoded bytes. The underlying C packet is only valid
// until the next readPacket call, so newPacket copies them eagerly.
func (pkt *Packet) Data() []byte {
	return pkt.data
}

// newPacket copies the fields of the reusable C packet before the next
// av_read_frame call overwrites them.
func newPacket(cPkt *C.AVPacket) *Packet {
	pkt := &Packet{
		streamIndex: int(cPkt.stream_index),
		pts:         int64(cPkt.pts),
		dts:         int64(cPkt.dts),
		duration:    int64(cPkt.duration),
	}

	if cPkt.data != nil && cPkt.size > 0 {
		buf := make([]byte, int(cPkt.size))
		copy(buf, unsafe.Slice((*byte)(unsafe.Pointer(cPkt.data)), int(cPkt.size)))
		pkt.data = buf
	}

	return pkt
}
