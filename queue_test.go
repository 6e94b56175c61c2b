package playback

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVideoQueueDropsOldestOnOverflow(t *testing.T) {
	t.Parallel()
	var q videoQueue

	for i := 0; i < videoQueueCap+3; i++ {
		q.push(videoFrameRecord{pts: float64(i)})
	}

	require.Equal(t, videoQueueCap, q.len())
	pts, ok := q.lastPTS()
	require.True(t, ok)
	require.Equal(t, float64(videoQueueCap+2), pts)
}

func TestVideoQueueLastPTSEmpty(t *testing.T) {
	t.Parallel()
	var q videoQueue
	_, ok := q.lastPTS()
	require.False(t, ok)
}

func TestVideoQueueClear(t *testing.T) {
	t.Parallel()
	var q videoQueue
	q.push(videoFrameRecord{pts: 1})
	q.push(videoFrameRecord{pts: 2})
	q.clear()
	require.Equal(t, 0, q.len())
}

func TestAudioQueueDrainIsAtomicAndEmpties(t *testing.T) {
	t.Parallel()
	var q audioQueue
	q.push(AudioChunk{PTS: 1})
	q.push(AudioChunk{PTS: 2})

	chunks := q.drain()
	require.Len(t, chunks, 2)

	require.Nil(t, q.drain())
}

func TestAudioQueueClear(t *testing.T) {
	t.Parallel()
	var q audioQueue
	q.push(AudioChunk{PTS: 1})
	q.clear()
	require.Nil(t, q.drain())
}
