package playback

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecomposeTempoPassThrough(t *testing.T) {
	t.Parallel()
	require.Empty(t, decomposeTempo(1.0))
	require.Empty(t, decomposeTempo(1.005))
}

func TestDecomposeTempoWithinRange(t *testing.T) {
	t.Parallel()
	require.Equal(t, []float64{1.5}, decomposeTempo(1.5))
	require.Equal(t, []float64{0.75}, decomposeTempo(0.75))
}

func TestDecomposeTempoAboveTwo(t *testing.T) {
	t.Parallel()
	stages := decomposeTempo(3.0)
	require.Equal(t, []float64{2.0, 1.5}, stages)
	requireProduct(t, stages, 3.0)
}

func TestDecomposeTempoFarAboveTwo(t *testing.T) {
	t.Parallel()
	stages := decomposeTempo(9.0)
	requireProduct(t, stages, 9.0)
	for _, s := range stages {
		require.LessOrEqual(t, s, 2.0)
	}
}

func TestDecomposeTempoBelowHalf(t *testing.T) {
	t.Parallel()
	stages := decomposeTempo(0.2)
	requireProduct(t, stages, 0.2)
	for _, s := range stages {
		require.GreaterOrEqual(t, s, 0.5)
	}
}

func requireProduct(t *testing.T, stages []float64, want float64) {
	t.Helper()
	got := 1.0
	for _, s := range stages {
		got *= s
	}
	require.True(t, math.Abs(got-want) < 0.01, "stage product %.4f, want %.4f", got, want)
}
