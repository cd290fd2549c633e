package consolidate

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestTemporalDecayWeight_NoGapIsFullWeight(t *testing.T) {
	t.Parallel()
	require.Equal(t, 1.0, temporalDecayWeight(0))
}

func TestTemporalDecayWeight_HalvesAtHalfLife(t *testing.T) {
	t.Parallel()
	require.InDelta(t, 0.5, temporalDecayWeight(temporalHalfLifeHours), 1e-9)
}

func TestTemporalDecayWeight_MonotonicallyDecreasing(t *testing.T) {
	t.Parallel()
	w1 := temporalDecayWeight(10)
	w2 := temporalDecayWeight(1000)
	require.Greater(t, w1, w2)
	require.Greater(t, w2, 0.0)
}

func TestDedupeIDs(t *testing.T) {
	t.Parallel()

	a, b := uuid.New(), uuid.New()
	out := dedupeIDs([]uuid.UUID{a, b, a, uuid.Nil, b})
	require.ElementsMatch(t, []uuid.UUID{a, b}, out)
}
