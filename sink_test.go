package playback

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func pcmChunk(pts float64, samples ...int16) AudioChunk {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return AudioChunk{PTS: pts, Data: data}
}

func TestAudioSinkStreamConvertsS16ToFloat(t *testing.T) {
	t.Parallel()
	q := &audioQueue{}
	// One stereo frame: left = max positive, right = max negative.
	q.push(pcmChunk(0, 32767, -32768))

	s := newAudioSink(q)
	samples := make([][2]float64, 1)
	n, ok := s.Stream(samples)

	require.True(t, ok)
	require.Equal(t, 1, n)
	require.InDelta(t, 1.0, samples[0][0], 0.001)
	require.InDelta(t, -1.0, samples[0][1], 0.001)
	require.EqualValues(t, 1, s.samplesWritten())
}

func TestAudioSinkStreamPadsSilenceOnStarvation(t *testing.T) {
	t.Parallel()
	s := newAudioSink(&audioQueue{})
	samples := make([][2]float64, 4)
	n, ok := s.Stream(samples)

	require.True(t, ok) // the sink never signals EOF on starvation
	require.Equal(t, 4, n)
	for _, pair := range samples {
		require.Equal(t, [2]float64{}, pair)
	}
}

func TestAudioSinkStreamSuspendedIsSilent(t *testing.T) {
	t.Parallel()
	q := &audioQueue{}
	q.push(pcmChunk(0, 100, 200))

	s := newAudioSink(q)
	s.suspendPlayback()

	samples := make([][2]float64, 1)
	n, ok := s.Stream(samples)

	require.True(t, ok)
	require.Equal(t, 1, n)
	require.Equal(t, [2]float64{}, samples[0])
	require.EqualValues(t, 0, s.samplesWritten())
}

func TestAudioSinkLeftoverBytesCarryAcrossCalls(t *testing.T) {
	t.Parallel()
	q := &audioQueue{}
	q.push(pcmChunk(0, 1, 2, 3, 4)) // two stereo frames

	s := newAudioSink(q)

	first := make([][2]float64, 1)
	_, _ = s.Stream(first)

	second := make([][2]float64, 1)
	n, ok := s.Stream(second)
	require.True(t, ok)
	require.Equal(t, 1, n)
	require.InDelta(t, 3.0/32768.0, second[0][0], 0.0001)
}

func TestAudioSinkResetBufferDropsLeftover(t *testing.T) {
	t.Parallel()
	q := &audioQueue{}
	q.push(pcmChunk(0, 1, 2, 3, 4))

	s := newAudioSink(q)
	first := make([][2]float64, 1)
	_, _ = s.Stream(first)

	s.resetBuffer()

	second := make([][2]float64, 1)
	n, ok := s.Stream(second)
	require.True(t, ok)
	require.Equal(t, 1, n)
	require.Equal(t, [2]float64{}, second[0]) // leftover discarded, queue now empty
}

func TestAudioSinkResetSamples(t *testing.T) {
	t.Parallel()
	q := &audioQueue{}
	q.push(pcmChunk(0, 1, 2))

	s := newAudioSink(q)
	samples := make([][2]float64, 1)
	_, _ = s.Stream(samples)
	require.EqualValues(t, 1, s.samplesWritten())

	s.resetSamples()
	require.EqualValues(t, 0, s.samplesWritten())
}
