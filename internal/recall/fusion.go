package recall

import (
	"github.com/google/uuid"

	"memoryengine/internal/store"
)

// rrfK is RRF's rank-damping constant, fixed at 60 per §4.6/GLOSSARY.
const rrfK = 60

// ScoreComponents breaks a fused score down per channel, attached to every
// hit for debuggability (§4.6 step 5).
type ScoreComponents struct {
	SemanticRank int // 1-based; 0 if the unit wasn't a semantic hit
	LexicalRank  int // 1-based; 0 if the unit wasn't a lexical hit
	Fused        float64
}

// fuseRRF combines semantic and lexical candidate lists with Reciprocal Rank
// Fusion: each hit contributes 1/(k+rank); contributions sum per unit across
// both channels (§4.6 step 3). Adapted from rag/retrieve/fusion.go's
// FuseRRF, simplified to unweighted RRF (no alpha-blend) since §4.6
// doesn't call for per-channel weighting.
func fuseRRF(sem []store.VectorResult, lex []store.LexicalResult) map[uuid.UUID]ScoreComponents {
	out := make(map[uuid.UUID]ScoreComponents, len(sem)+len(lex))
	for i, r := range sem {
		c := out[r.UnitID]
		c.SemanticRank = i + 1
		c.Fused += 1.0 / float64(rrfK+i+1)
		out[r.UnitID] = c
	}
	for i, r := range lex {
		c := out[r.UnitID]
		c.LexicalRank = i + 1
		c.Fused += 1.0 / float64(rrfK+i+1)
		out[r.UnitID] = c
	}
	return out
}
