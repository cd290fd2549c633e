package recall

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"memoryengine/internal/store"
)

func TestFuseRRF_SumsContributionsAcrossChannels(t *testing.T) {
	t.Parallel()

	a, b := uuid.New(), uuid.New()
	sem := []store.VectorResult{{UnitID: a, Distance: 0.1}, {UnitID: b, Distance: 0.2}}
	lex := []store.LexicalResult{{UnitID: b, Rank: 0.9}}

	scores := fuseRRF(sem, lex)

	require.Len(t, scores, 2)
	// a: only semantic, rank 1 -> 1/61
	require.InDelta(t, 1.0/61, scores[a].Fused, 1e-9)
	require.Equal(t, 1, scores[a].SemanticRank)
	require.Equal(t, 0, scores[a].LexicalRank)
	// b: semantic rank 2 + lexical rank 1 -> 1/62 + 1/61
	require.InDelta(t, 1.0/62+1.0/61, scores[b].Fused, 1e-9)
	require.Equal(t, 2, scores[b].SemanticRank)
	require.Equal(t, 1, scores[b].LexicalRank)

	// b outranks a since it's backed by both channels.
	require.Greater(t, scores[b].Fused, scores[a].Fused)
}

func TestFuseRRF_EmptyInputsProduceEmptyMap(t *testing.T) {
	t.Parallel()

	scores := fuseRRF(nil, nil)
	require.Empty(t, scores)
}
