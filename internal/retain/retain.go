// Package retain implements the Retain pipeline (C5, §4.5): extract 5W1H
// facts from a conversational turn via the LLM provider, embed them,
// deduplicate against recent/nearby units, and persist the survivors along
// with their resolved entities.
package retain

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"memoryengine/internal/bank"
	"memoryengine/internal/config"
	"memoryengine/internal/embedding"
	"memoryengine/internal/errs"
	"memoryengine/internal/llmprovider"
	"memoryengine/internal/observability"
	"memoryengine/internal/store"
)

// maxContentLength and maxContextLength are the length bounds Retain
// enforces on its inputs (§4.5 step 1); chosen generously since a turn may
// legitimately be a long pasted document.
const (
	maxContentLength = 20000
	maxContextLength = 4000
)

// Result is the outcome of one Retain call (§6): the ids actually inserted
// and the ids of existing units a fact deduplicated against.
type Result struct {
	Stored  []uuid.UUID
	Deduped []uuid.UUID
}

// Pipeline wires the storage, LLM, and embedding collaborators Retain needs.
type Pipeline struct {
	Store    *store.Store
	LLM      llmprovider.Provider
	Embedder *embedding.Client
}

// New builds a Retain pipeline over the given collaborators.
func New(s *store.Store, llm llmprovider.Provider, embedder *embedding.Client) *Pipeline {
	return &Pipeline{Store: s, LLM: llm, Embedder: embedder}
}

// Retain runs the full algorithm of §4.5 for one conversational turn.
func (p *Pipeline) Retain(ctx context.Context, bankIDRaw, content, callerContext string) (Result, error) {
	bankID, err := bank.ParseID(bankIDRaw)
	if err != nil {
		return Result{}, fmt.Errorf("retain: %v: %w", err, errs.ErrInvalidInput)
	}
	if err := validateInputLengths(content, callerContext); err != nil {
		return Result{}, err
	}

	b, err := p.Store.GetBank(ctx, bankID)
	if err != nil {
		return Result{}, fmt.Errorf("retain: load bank %s: %w", bankID, err)
	}

	rawFacts, err := extractFacts(ctx, p.LLM, config.ExtractionModelID(), b, content, callerContext)
	if err != nil {
		return Result{}, fmt.Errorf("retain: %v: %w", err, errs.ErrUpstreamUnavailable)
	}

	log := observability.LoggerWithTrace(ctx)
	facts := validateFacts(rawFacts, func(reason string, f extractedFact) {
		log.Warn().Str("bank_id", bankID.String()).Str("reason", reason).Str("fact_type", f.FactType).Msg("retain: discarding malformed extracted fact")
	})
	if len(facts) == 0 {
		return Result{}, nil
	}

	texts := make([]string, len(facts))
	for i, f := range facts {
		texts[i] = embedInput(f)
	}
	embeddings, err := p.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("retain: embed facts: %v: %w", err, errs.ErrUpstreamUnavailable)
	}

	docID, err := p.Store.InsertDocument(ctx, store.Document{BankID: bankID, Source: "retain", RawText: content})
	if err != nil {
		return Result{}, fmt.Errorf("retain: insert document: %w", err)
	}

	result := Result{}
	for i, f := range facts {
		dupID, isDup, err := findDuplicate(ctx, p.Store, bankID, f, embeddings[i])
		if err != nil {
			return Result{}, fmt.Errorf("retain: dedup check: %w", err)
		}
		if isDup {
			result.Deduped = append(result.Deduped, dupID)
			continue
		}

		unitID, err := p.persistFact(ctx, bankID, docID, f, embeddings[i])
		if err != nil {
			return Result{}, err
		}
		result.Stored = append(result.Stored, unitID)
	}
	return result, nil
}

func validateInputLengths(content, callerContext string) error {
	if content == "" {
		return fmt.Errorf("retain: content is empty: %w", errs.ErrInvalidInput)
	}
	if len(content) > maxContentLength {
		return fmt.Errorf("retain: content exceeds %d characters: %w", maxContentLength, errs.ErrInvalidInput)
	}
	if len(callerContext) > maxContextLength {
		return fmt.Errorf("retain: context exceeds %d characters: %w", maxContextLength, errs.ErrInvalidInput)
	}
	return nil
}

// embedInput is the text actually embedded for a fact: its own text,
// context-augmented when the extractor supplied a why description, so
// the vector captures more than the bare statement (§4.5 step 4).
func embedInput(f validFact) string {
	aug := f.Text
	if f.WhyDescription != "" {
		aug += " " + f.WhyDescription
	}
	return aug
}

// persistFact inserts the unit row, pre-chunks long text, resolves every
// `who` entity, and records co-occurrences (§4.5 step 6).
func (p *Pipeline) persistFact(ctx context.Context, bankID, docID uuid.UUID, f validFact, vec []float32) (uuid.UUID, error) {
	factKind := store.FactKind(f.FactKind)
	unit := store.MemoryUnit{
		BankID:           bankID,
		DocumentID:       &docID,
		Text:             f.Text,
		Embedding:        vec,
		FactType:         store.FactType(f.FactType),
		FactKind:         &factKind,
		What:             f.What,
		Who:              f.Who,
		WhenDescription:  f.WhenDescription,
		WhereDescription: f.WhereDescription,
		WhyDescription:   f.WhyDescription,
		EventDate:        f.eventDate,
		OccurredStart:    f.occurredStart,
		OccurredEnd:      f.occurredEnd,
	}
	unitID, err := p.Store.InsertUnit(ctx, unit)
	if err != nil {
		return uuid.Nil, fmt.Errorf("retain: insert unit: %w", err)
	}

	if len(f.Text) > chunkThreshold {
		if err := p.persistChunks(ctx, unitID, f.Text); err != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Str("unit_id", unitID.String()).Msg("retain: chunking failed, unit stored without chunks")
		}
	}

	entityIDs := make([]uuid.UUID, 0, len(f.Who))
	for _, who := range f.Who {
		if who == "" {
			continue
		}
		ent, _, err := p.Store.ResolveEntity(ctx, bankID, who, "")
		if err != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Str("who", who).Msg("retain: entity resolution failed")
			continue
		}
		if err := p.Store.LinkUnitEntity(ctx, unitID, ent.ID, "who"); err != nil {
			return uuid.Nil, fmt.Errorf("retain: link unit %s to entity %s: %w", unitID, ent.ID, err)
		}
		entityIDs = append(entityIDs, ent.ID)
	}
	for i := 0; i < len(entityIDs); i++ {
		for j := i + 1; j < len(entityIDs); j++ {
			if err := p.Store.BumpCooccurrence(ctx, bankID, entityIDs[i], entityIDs[j]); err != nil {
				return uuid.Nil, fmt.Errorf("retain: bump cooccurrence: %w", err)
			}
		}
	}
	return unitID, nil
}

func (p *Pipeline) persistChunks(ctx context.Context, unitID uuid.UUID, text string) error {
	pieces := splitChunks(text, chunkThreshold)
	if len(pieces) == 0 {
		return nil
	}
	vecs, err := p.Embedder.EmbedBatch(ctx, pieces)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	return p.Store.InsertChunks(ctx, unitID, pieces, vecs)
}
