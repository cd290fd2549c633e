// Package mentalmodel implements the Mental Model lifecycle (C8, §4.8):
// generating curated entity summaries once enough observations exist, and
// refreshing them as consolidation touches their entity again. It satisfies
// internal/consolidate's MentalModelHook so Consolidation never imports this
// package directly.
package mentalmodel

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"memoryengine/internal/embedding"
	"memoryengine/internal/errs"
	"memoryengine/internal/observability"
	"memoryengine/internal/reflect"
	"memoryengine/internal/store"
)

const (
	// minObservationsForGeneration is the generation candidate gate (§4.8).
	minObservationsForGeneration = 5
	// minContentLength is the "worth keeping" floor on Reflect's output
	// before it's inserted/used to overwrite a model (§4.8: "≥ 50 characters").
	minContentLength = 50
	// generationLoopIterations caps both Generate and Refresh Reflect calls
	// at the tighter 5-iteration budget (§4.9: "generation uses 5").
	generationLoopIterations = 5
	// tagSourceWindow bounds how many of an entity's recent units are
	// considered when computing the tag intersection a newly generated
	// model inherits.
	tagSourceWindow = 50
)

// Worker wires the storage, embedding, and Reflect collaborators the
// lifecycle needs.
type Worker struct {
	Store    *store.Store
	Embedder *embedding.Client
	Reflect  *reflect.Pipeline
}

// New builds a mental model Worker over the given collaborators.
func New(s *store.Store, embedder *embedding.Client, rp *reflect.Pipeline) *Worker {
	return &Worker{Store: s, Embedder: embedder, Reflect: rp}
}

// ProcessConsolidationBatch implements consolidate.MentalModelHook: given the
// entities a consolidation run touched, refresh any existing models on them
// and generate new ones for qualifying candidates, each bounded by its own
// per-run cap (§4.7: "at most 3 refreshes and at most 2 generations...
// per consolidation run").
func (w *Worker) ProcessConsolidationBatch(ctx context.Context, bankID uuid.UUID, touchedEntityIDs []uuid.UUID, maxRefreshes, maxGenerations int) error {
	if err := w.refresh(ctx, bankID, touchedEntityIDs, maxRefreshes); err != nil {
		return fmt.Errorf("mentalmodel: refresh pass: %w", err)
	}
	if err := w.generate(ctx, bankID, touchedEntityIDs, maxGenerations); err != nil {
		return fmt.Errorf("mentalmodel: generate pass: %w", err)
	}
	return nil
}

// generate creates mental models for qualifying candidates (§4.8: entities
// with ≥5 observations and no existing model), capped at max successful
// creations. A per-entity failure is logged and skipped, not batch-aborting
// — mirroring Consolidation's own per-fact failure policy.
func (w *Worker) generate(ctx context.Context, bankID uuid.UUID, touchedEntityIDs []uuid.UUID, max int) error {
	if max <= 0 {
		return nil
	}
	candidates, err := w.Store.EntitiesNeedingMentalModel(ctx, bankID, touchedEntityIDs, minObservationsForGeneration)
	if err != nil {
		return fmt.Errorf("candidates: %w", err)
	}

	log := observability.LoggerWithTrace(ctx)
	created := 0
	for _, e := range candidates {
		if created >= max {
			break
		}
		ok, err := w.generateOne(ctx, bankID, e)
		if err != nil {
			log.Warn().Err(err).Str("entity_id", e.ID.String()).Msg("mentalmodel: generation failed")
			continue
		}
		if ok {
			created++
		}
	}
	return nil
}

// generateOne runs the second and third duplicate-prevention layers (the
// first, the candidate SQL's left join, already excluded entities with a
// model): the entity_id check runs before calling Reflect, the name check
// after it, and the unique index backs the insert. Returns false, nil for a
// non-error outcome that simply didn't produce a model (content too thin,
// or a concurrent generation already won).
func (w *Worker) generateOne(ctx context.Context, bankID uuid.UUID, e store.Entity) (bool, error) {
	existing, err := w.Store.GetMentalModelByEntity(ctx, bankID, e.ID)
	if err != nil {
		return false, fmt.Errorf("check existing: %w", err)
	}
	if existing != nil {
		return false, nil
	}

	sourceQuery := fmt.Sprintf("Summarize everything known about %s: key traits, history, and relationships.", e.CanonicalName)
	result, err := w.Reflect.Reflect(ctx, bankID.String(), sourceQuery, generationLoopIterations)
	if err != nil {
		return false, fmt.Errorf("reflect: %w", err)
	}
	if len(result.Answer) < minContentLength {
		return false, nil
	}

	dup, err := w.Store.NameExistsSimilar(ctx, bankID, e.CanonicalName)
	if err != nil {
		return false, fmt.Errorf("duplicate name check: %w", err)
	}
	if dup {
		return false, nil
	}

	vec, err := w.Embedder.EmbedOne(ctx, result.Answer)
	if err != nil {
		return false, fmt.Errorf("embed: %w", err)
	}

	tags, err := w.tagIntersection(ctx, bankID, e.ID)
	if err != nil {
		return false, fmt.Errorf("tag intersection: %w", err)
	}

	entityID := e.ID
	_, err = w.Store.CreateMentalModel(ctx, store.MentalModel{
		BankID:                    bankID,
		EntityID:                  &entityID,
		Name:                      e.CanonicalName,
		Content:                   result.Answer,
		SourceQuery:               sourceQuery,
		Embedding:                 vec,
		SourceObservationIDs:      result.CitedIDs,
		Tags:                      tags,
		RefreshAfterConsolidation: true,
	})
	if err != nil {
		if errors.Is(err, errs.ErrConcurrencyConflict) {
			return false, nil // layer 3: the unique index lost the race to a concurrent generation
		}
		return false, fmt.Errorf("create: %w", err)
	}
	return true, nil
}

// refresh re-runs Reflect for every existing refreshable model on a touched
// entity, capped at max successful refreshes.
func (w *Worker) refresh(ctx context.Context, bankID uuid.UUID, touchedEntityIDs []uuid.UUID, max int) error {
	if max <= 0 {
		return nil
	}
	log := observability.LoggerWithTrace(ctx)
	refreshed := 0
	for _, entityID := range dedupeIDs(touchedEntityIDs) {
		if refreshed >= max {
			break
		}
		m, err := w.Store.GetMentalModelByEntity(ctx, bankID, entityID)
		if err != nil {
			log.Warn().Err(err).Str("entity_id", entityID.String()).Msg("mentalmodel: load for refresh failed")
			continue
		}
		if m == nil || !m.RefreshAfterConsolidation {
			continue
		}
		if err := w.refreshOne(ctx, bankID, *m); err != nil {
			log.Warn().Err(err).Str("mental_model_id", m.ID.String()).Msg("mentalmodel: refresh failed")
			continue
		}
		refreshed++
	}
	return nil
}

// refreshOne reruns the model's original source_query. A tagged model uses
// ReflectScoped in `all_strict` mode (§4.8: "to prevent information leaks"),
// restricting what the rerun can see to data carrying every one of the
// model's own tags.
func (w *Worker) refreshOne(ctx context.Context, bankID uuid.UUID, m store.MentalModel) error {
	var result reflect.Result
	var err error
	if len(m.Tags) > 0 {
		result, err = w.Reflect.ReflectScoped(ctx, bankID.String(), m.SourceQuery, generationLoopIterations, m.Tags)
	} else {
		result, err = w.Reflect.Reflect(ctx, bankID.String(), m.SourceQuery, generationLoopIterations)
	}
	if err != nil {
		return fmt.Errorf("reflect: %w", err)
	}
	if len(result.Answer) < minContentLength {
		return nil // nothing worth overwriting the existing content with
	}

	vec, err := w.Embedder.EmbedOne(ctx, result.Answer)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	return w.Store.RefreshMentalModel(ctx, m.ID, result.Answer, m.Description, vec, result.CitedIDs, m.Tags)
}

// tagIntersection computes the tags common to every observation an entity's
// recent units contain — "tags inherited from the contributing observations
// (intersection)" (§4.8).
func (w *Worker) tagIntersection(ctx context.Context, bankID, entityID uuid.UUID) ([]string, error) {
	units, err := w.Store.RecentUnitsForEntity(ctx, bankID, entityID, tagSourceWindow)
	if err != nil {
		return nil, err
	}
	var observations []store.MemoryUnit
	for _, u := range units {
		if u.FactType == store.FactTypeObservation {
			observations = append(observations, u)
		}
	}
	return intersectTags(observations), nil
}

func intersectTags(units []store.MemoryUnit) []string {
	if len(units) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, u := range units {
		present := make(map[string]bool, len(u.Tags))
		for _, t := range u.Tags {
			present[t] = true
		}
		for t := range present {
			counts[t]++
		}
	}
	var out []string
	for t, c := range counts {
		if c == len(units) {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
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
