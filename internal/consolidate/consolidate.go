// Package consolidate implements the Consolidation worker (C7, §4.7): per
// bank, it classifies each unconsolidated raw fact against the bank's
// existing observations and applies a create/update/skip action, then
// maintains temporal links and entity co-occurrence counters, and hands the
// touched entity set off to the Mental Model lifecycle.
package consolidate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"memoryengine/internal/bank"
	"memoryengine/internal/config"
	"memoryengine/internal/embedding"
	"memoryengine/internal/llmprovider"
	"memoryengine/internal/observability"
	"memoryengine/internal/recall"
	"memoryengine/internal/store"
)

// batchSize is the per-batch cap §4.7 step 3 fixes at 10.
const batchSize = 10

// contextHitLimit bounds the Recall call consolidation makes to retrieve
// candidate observations for classification (§4.7 step 3a).
const contextHitLimit = 50

// maxRefreshesPerRun and maxGenerationsPerRun bound how much Mental Model
// work one bank's consolidation pass can enqueue, to bound tail latency
// (§4.7, final paragraph). Applied per bank per run: the candidate set the
// Mental Model lifecycle draws from is already bank-scoped, so the cap
// naturally reads as a per-bank-per-run bound rather than a global one.
const (
	maxRefreshesPerRun   = 3
	maxGenerationsPerRun = 2
)

// MentalModelHook is the narrow interface Consolidation hands its touched
// entity set to (§4.7 step 5, §4.8). Kept as an interface rather than a
// direct import of internal/mentalmodel so the two packages don't need to
// know about each other's internals; the engine facade wires the concrete
// implementation in.
type MentalModelHook interface {
	ProcessConsolidationBatch(ctx context.Context, bankID uuid.UUID, touchedEntityIDs []uuid.UUID, maxRefreshes, maxGenerations int) error
}

// BatchResult totals one bank's consolidation pass, returned for logging and
// tests; callers that only care about side effects can ignore it.
type BatchResult struct {
	Classified int
	Created    int
	Updated    int
	Skipped    int
	Failed     int

	TouchedObservationIDs []uuid.UUID
	TouchedEntityIDs      []uuid.UUID
}

// Worker wires the storage, LLM, embedding, and Recall collaborators
// Consolidation needs.
type Worker struct {
	Store        *store.Store
	LLM          llmprovider.Provider
	Embedder     *embedding.Client
	Recall       *recall.Pipeline
	MentalModels MentalModelHook // optional

	writeSem *semaphore.Weighted
}

// New builds a Consolidation worker. Bank-level fan-out in RunOnce is
// bounded to config.WriteConcurrency() (§5's process-wide write-path cap).
func New(s *store.Store, llm llmprovider.Provider, embedder *embedding.Client, rp *recall.Pipeline) *Worker {
	return &Worker{
		Store:    s,
		LLM:      llm,
		Embedder: embedder,
		Recall:   rp,
		writeSem: semaphore.NewWeighted(int64(config.WriteConcurrency())),
	}
}

// RunOnce drives one consolidation pass across every bank — the scheduler's
// manual entry point and what its 300s timer calls (§4.7). A failure in one
// bank's pass is logged and does not stop the others.
func (w *Worker) RunOnce(ctx context.Context) error {
	bankIDs, err := w.Store.ListBankIDs(ctx)
	if err != nil {
		return fmt.Errorf("consolidate: list banks: %w", err)
	}

	type outcome struct {
		bankID uuid.UUID
		err    error
	}
	results := make(chan outcome, len(bankIDs))
	for _, bankID := range bankIDs {
		bankID := bankID
		go func() {
			if err := w.writeSem.Acquire(ctx, 1); err != nil {
				results <- outcome{bankID, err}
				return
			}
			defer w.writeSem.Release(1)
			_, err := w.ConsolidateBank(ctx, bankID)
			results <- outcome{bankID, err}
		}()
	}

	var firstErr error
	for range bankIDs {
		o := <-results
		if o.err != nil {
			observability.LoggerWithTrace(ctx).Error().Err(o.err).Str("bank_id", o.bankID.String()).Msg("consolidate: bank run failed")
			if firstErr == nil {
				firstErr = o.err
			}
		}
	}
	return firstErr
}

// ConsolidateBank runs the full algorithm of §4.7 for one bank: batches of
// up to batchSize unconsolidated facts, ordered by created_at, classified and
// applied one at a time, until none remain.
func (w *Worker) ConsolidateBank(ctx context.Context, bankID uuid.UUID) (BatchResult, error) {
	var total BatchResult

	count, err := w.Store.CountUnconsolidated(ctx, bankID)
	if err != nil {
		return total, fmt.Errorf("consolidate: count unconsolidated: %w", err)
	}
	if count == 0 {
		return total, nil // step 2: exit if zero
	}

	b, err := w.Store.GetBank(ctx, bankID)
	if err != nil {
		return total, fmt.Errorf("consolidate: load bank %s: %w", bankID, err)
	}

	for {
		units, err := w.Store.ListUnconsolidated(ctx, bankID, batchSize)
		if err != nil {
			return total, fmt.Errorf("consolidate: list unconsolidated: %w", err)
		}
		if len(units) == 0 {
			break
		}

		res := w.consolidateBatch(ctx, bankID, b, units)
		total.Classified += res.Classified
		total.Created += res.Created
		total.Updated += res.Updated
		total.Skipped += res.Skipped
		total.Failed += res.Failed
		total.TouchedObservationIDs = append(total.TouchedObservationIDs, res.TouchedObservationIDs...)
		total.TouchedEntityIDs = append(total.TouchedEntityIDs, res.TouchedEntityIDs...)

		if len(units) < batchSize || res.Failed == len(units) {
			break
		}
	}

	if err := linkTemporalNeighbors(ctx, w.Store, bankID, total.TouchedObservationIDs); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Str("bank_id", bankID.String()).Msg("consolidate: temporal linking failed")
	}

	if w.MentalModels != nil && len(total.TouchedEntityIDs) > 0 {
		if err := w.MentalModels.ProcessConsolidationBatch(ctx, bankID, dedupeIDs(total.TouchedEntityIDs), maxRefreshesPerRun, maxGenerationsPerRun); err != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Str("bank_id", bankID.String()).Msg("consolidate: mental model hand-off failed")
		}
	}
	return total, nil
}

// consolidateBatch classifies and applies one batch. A classification or
// apply failure on one fact is logged and skipped — it stays unconsolidated
// for the next run to retry — rather than aborting the batch (§4.7, failure
// policy).
func (w *Worker) consolidateBatch(ctx context.Context, bankID uuid.UUID, b bank.Bank, units []store.MemoryUnit) BatchResult {
	var res BatchResult
	for _, fact := range units {
		if ctx.Err() != nil {
			break
		}
		res.Classified++
		obsID, entityIDs, kind, err := w.consolidateFact(ctx, bankID, b, fact)
		if err != nil {
			res.Failed++
			observability.LoggerWithTrace(ctx).Warn().Err(err).Str("fact_id", fact.ID.String()).Msg("consolidate: fact left unconsolidated")
			continue
		}
		switch kind {
		case actionCreate:
			res.Created++
		case actionUpdate:
			res.Updated++
		case actionSkip:
			res.Skipped++
		}
		if obsID != uuid.Nil {
			res.TouchedObservationIDs = append(res.TouchedObservationIDs, obsID)
		}
		res.TouchedEntityIDs = append(res.TouchedEntityIDs, entityIDs...)
	}
	return res
}

// consolidateFact runs steps 3a-3d for a single fact: retrieve context,
// classify, apply, inherit entity links, stamp consolidated_at. The
// consolidated_at stamp is only written once the action has actually been
// applied, so a failure here leaves the fact untouched for a future retry.
func (w *Worker) consolidateFact(ctx context.Context, bankID uuid.UUID, b bank.Bank, fact store.MemoryUnit) (observationID uuid.UUID, entityIDs []uuid.UUID, kind classifyActionKind, err error) {
	hits, err := w.Recall.Recall(ctx, bankID.String(), fact.Text, recall.Options{
		MaxResults: contextHitLimit,
		FactTypes:  []string{string(store.FactTypeObservation)},
	})
	if err != nil {
		return uuid.Nil, nil, "", fmt.Errorf("retrieve context: %w", err)
	}
	candidates := make([]store.MemoryUnit, len(hits))
	for i, h := range hits {
		candidates[i] = h.Unit
	}

	raw, err := classifyFact(ctx, w.LLM, config.ConsolidationModelID(), b, fact, candidates)
	if err != nil {
		return uuid.Nil, nil, "", err
	}
	action := validateAction(raw, candidates)

	factEntities, err := w.Store.EntitiesForUnit(ctx, fact.ID)
	if err != nil {
		return uuid.Nil, nil, "", fmt.Errorf("entities for fact %s: %w", fact.ID, err)
	}

	now := time.Now()
	switch action.Kind {
	case actionCreate:
		observationID, err = w.applyCreate(ctx, bankID, fact, action, factEntities)
	case actionUpdate:
		observationID, err = w.applyUpdate(ctx, action, fact, factEntities)
	case actionSkip:
		// nothing to apply beyond the consolidated_at stamp
	}
	if err != nil {
		return uuid.Nil, nil, "", err
	}

	if err := w.Store.MarkConsolidated(ctx, fact.ID, now); err != nil {
		return uuid.Nil, nil, "", fmt.Errorf("mark consolidated %s: %w", fact.ID, err)
	}

	for _, e := range factEntities {
		entityIDs = append(entityIDs, e.ID)
	}
	return observationID, entityIDs, action.Kind, nil
}

// applyCreate inserts a new observation sourced from one fact and inherits
// the fact's entity links (§4.7 step 3c "create", step 3d).
func (w *Worker) applyCreate(ctx context.Context, bankID uuid.UUID, fact store.MemoryUnit, action appliedAction, factEntities []store.Entity) (uuid.UUID, error) {
	vec, err := w.Embedder.EmbedOne(ctx, action.Text)
	if err != nil {
		return uuid.Nil, fmt.Errorf("embed new observation: %w", err)
	}
	confidence := 1.0
	obs := store.MemoryUnit{
		BankID:          bankID,
		Text:            action.Text,
		Context:         fact.Context,
		Embedding:       vec,
		FactType:        store.FactTypeObservation,
		SourceMemoryIDs: []uuid.UUID{fact.ID},
		ProofCount:      1,
		ConfidenceScore: &confidence,
		Tags:            fact.Tags,
	}
	obsID, err := w.Store.InsertUnit(ctx, obs)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert observation: %w", err)
	}
	if err := w.inheritEntityLinks(ctx, obsID, factEntities); err != nil {
		return uuid.Nil, err
	}
	return obsID, nil
}

// applyUpdate merges a fact into an existing observation: dedup-appends
// source_memory_ids, bumps proof_count, appends a history entry, and
// overwrites text/embedding (§4.7 step 3c "update"). The observation's
// context is left as it was.
func (w *Worker) applyUpdate(ctx context.Context, action appliedAction, fact store.MemoryUnit, factEntities []store.Entity) (uuid.UUID, error) {
	existing, err := w.Store.GetUnit(ctx, fact.BankID, action.LearningID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("load observation %s: %w", action.LearningID, err)
	}

	sourceIDs := existing.SourceMemoryIDs
	alreadySourced := false
	for _, id := range sourceIDs {
		if id == fact.ID {
			alreadySourced = true
			break
		}
	}
	// proof_count must track len(set(source_memory_ids)) exactly (§8): only
	// bump it when this fact actually grows that set, not on a re-merge of
	// an already-sourced fact.
	proofCount := existing.ProofCount
	if !alreadySourced {
		sourceIDs = append(sourceIDs, fact.ID)
		proofCount++
	}

	vec, err := w.Embedder.EmbedOne(ctx, action.Text)
	if err != nil {
		return uuid.Nil, fmt.Errorf("embed updated observation: %w", err)
	}

	reason := action.Reason
	if reason == "" {
		reason = fmt.Sprintf("merged fact %s", fact.ID)
	}
	entry := store.HistoryEntry{At: time.Now(), Change: reason}
	confidence := existing.ConfidenceScore
	newConfidence := 1.0
	if confidence != nil {
		newConfidence = *confidence
	}

	if err := w.Store.UpdateObservation(ctx, existing.ID, action.Text, vec, proofCount, sourceIDs, newConfidence, entry); err != nil {
		return uuid.Nil, fmt.Errorf("update observation %s: %w", existing.ID, err)
	}
	if err := w.inheritEntityLinks(ctx, existing.ID, factEntities); err != nil {
		return uuid.Nil, err
	}
	return existing.ID, nil
}

// inheritEntityLinks associates every entity on the source fact with the
// resulting observation (§4.7 step 3d).
func (w *Worker) inheritEntityLinks(ctx context.Context, observationID uuid.UUID, factEntities []store.Entity) error {
	for _, e := range factEntities {
		if err := w.Store.LinkUnitEntity(ctx, observationID, e.ID, "inherited"); err != nil {
			return fmt.Errorf("link observation %s to entity %s: %w", observationID, e.ID, err)
		}
	}
	return nil
}
