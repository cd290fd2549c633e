package consolidate

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"memoryengine/internal/store"
)

// temporalNeighborWindow bounds how far back to look for an entity's
// previous observation when building a temporal edge; entities with a long
// silent gap don't need a near-zero-weight edge at all.
const temporalNeighborWindow = 5

// temporalHalfLifeHours is the gap at which a temporal edge's weight has
// decayed to half strength (§4.7 step 4: "weight decaying by gap").
const temporalHalfLifeHours = 24 * 14

// linkTemporalNeighbors maintains memory_links for consecutive observations
// about the same entity and bumps entity co-occurrence counters for every
// entity pair present on a touched observation (§4.7 step 4).
func linkTemporalNeighbors(ctx context.Context, s *store.Store, bankID uuid.UUID, observationIDs []uuid.UUID) error {
	seenEntities := map[uuid.UUID]bool{}
	for _, obsID := range dedupeIDs(observationIDs) {
		entities, err := s.EntitiesForUnit(ctx, obsID)
		if err != nil {
			return fmt.Errorf("entities for observation %s: %w", obsID, err)
		}

		entityIDs := make([]uuid.UUID, 0, len(entities))
		for _, e := range entities {
			entityIDs = append(entityIDs, e.ID)
		}
		for i := 0; i < len(entityIDs); i++ {
			for j := i + 1; j < len(entityIDs); j++ {
				if err := s.BumpCooccurrence(ctx, bankID, entityIDs[i], entityIDs[j]); err != nil {
					return fmt.Errorf("bump cooccurrence: %w", err)
				}
			}
		}

		for _, entityID := range entityIDs {
			if seenEntities[entityID] {
				continue
			}
			seenEntities[entityID] = true
			if err := linkEntityChain(ctx, s, bankID, entityID); err != nil {
				return fmt.Errorf("link temporal chain for entity %s: %w", entityID, err)
			}
		}
	}
	return nil
}

// linkEntityChain finds the two most recent observations mentioning entityID
// and, if both exist, links the older to the newer with a gap-decayed weight.
func linkEntityChain(ctx context.Context, s *store.Store, bankID, entityID uuid.UUID) error {
	recent, err := s.RecentUnitsForEntity(ctx, bankID, entityID, temporalNeighborWindow)
	if err != nil {
		return err
	}
	var observations []store.MemoryUnit
	for _, u := range recent {
		if u.FactType == store.FactTypeObservation {
			observations = append(observations, u)
		}
		if len(observations) == 2 {
			break
		}
	}
	if len(observations) < 2 {
		return nil
	}
	newer, older := observations[0], observations[1]
	gapHours := newer.CreatedAt.Sub(older.CreatedAt).Hours()
	weight := temporalDecayWeight(gapHours)

	return s.CreateLink(ctx, store.MemoryLink{
		BankID:     bankID,
		FromUnitID: older.ID,
		ToUnitID:   newer.ID,
		LinkType:   store.LinkTemporal,
		EntityID:   &entityID,
		Weight:     weight,
	})
}

// temporalDecayWeight halves every temporalHalfLifeHours of gap, matching an
// exponential decay curve; always in (0,1].
func temporalDecayWeight(gapHours float64) float64 {
	if gapHours <= 0 {
		return 1.0
	}
	return math.Exp(-math.Ln2 * gapHours / temporalHalfLifeHours)
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
