package retain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0, 0}, []float32{2, 0, 0}), 1e-9)
	require.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	require.Equal(t, 0.0, cosineSimilarity(nil, []float32{1}))
	require.Equal(t, 0.0, cosineSimilarity([]float32{1, 2}, []float32{1}))
}

func TestWhoWhatOverlap(t *testing.T) {
	t.Parallel()

	require.True(t, whoWhatOverlap([]string{"Alice"}, "joined Acme", []string{"alice"}, "got promoted"))
	require.True(t, whoWhatOverlap([]string{"Bob"}, "joined Acme as engineer", []string{"Carol"}, "joined Acme"))
	require.False(t, whoWhatOverlap([]string{"Bob"}, "left Acme", []string{"Carol"}, "joined Globex"))
}
