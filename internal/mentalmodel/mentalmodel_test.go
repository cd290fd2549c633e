package mentalmodel

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"memoryengine/internal/store"
)

func TestIntersectTags_CommonToAllUnits(t *testing.T) {
	t.Parallel()

	units := []store.MemoryUnit{
		{Tags: []string{"work", "finance"}},
		{Tags: []string{"finance", "personal"}},
		{Tags: []string{"finance"}},
	}
	require.Equal(t, []string{"finance"}, intersectTags(units))
}

func TestIntersectTags_NoCommonTagIsEmpty(t *testing.T) {
	t.Parallel()

	units := []store.MemoryUnit{
		{Tags: []string{"work"}},
		{Tags: []string{"personal"}},
	}
	require.Empty(t, intersectTags(units))
}

func TestIntersectTags_NoUnitsIsEmpty(t *testing.T) {
	t.Parallel()

	require.Nil(t, intersectTags(nil))
}

func TestIntersectTags_DuplicateTagsWithinOneUnitDontInflateCount(t *testing.T) {
	t.Parallel()

	units := []store.MemoryUnit{
		{Tags: []string{"finance", "finance"}},
		{Tags: []string{"finance"}},
	}
	require.Equal(t, []string{"finance"}, intersectTags(units))
}

func TestDedupeIDs(t *testing.T) {
	t.Parallel()

	a, b := uuid.New(), uuid.New()
	out := dedupeIDs([]uuid.UUID{a, b, a, uuid.Nil, b})
	require.ElementsMatch(t, []uuid.UUID{a, b}, out)
}
