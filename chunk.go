package playback

// AudioChunk is a span of 16-bit signed stereo PCM at the codec's
// original sample rate, tagged with the PTS of its earliest sample.
type AudioChunk struct {
	PTS  float64
	Data []byte
}
