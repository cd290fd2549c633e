package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InsertUnit persists a new raw fact or consolidated observation. Embedding
// may be nil for a unit awaiting async embedding, though Retain always embeds
// before calling this (§4.5 step 4 happens before step 6 persist).
func (s *Store) InsertUnit(ctx context.Context, u MemoryUnit) (uuid.UUID, error) {
	var vecLit any
	if len(u.Embedding) > 0 {
		vecLit = toVectorLiteral(u.Embedding)
	}
	if u.Metadata == nil {
		u.Metadata = map[string]any{}
	}
	if u.History == nil {
		u.History = []HistoryEntry{}
	}
	if u.SourceMemoryIDs == nil {
		u.SourceMemoryIDs = []uuid.UUID{}
	}
	var id uuid.UUID
	err := s.Pool.QueryRow(ctx, `
INSERT INTO memory_units
	(bank_id, document_id, text, context, embedding, fact_type, fact_kind,
	 what, who, when_description, where_description, why_description,
	 event_date, occurred_start, occurred_end, mentioned_at,
	 proof_count, source_memory_ids, history, confidence_score, tags, metadata)
VALUES ($1,$2,$3,$4,$5::vector,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
RETURNING id`,
		u.BankID, u.DocumentID, u.Text, u.Context, vecLit, string(u.FactType), u.FactKind,
		u.What, u.Who, u.WhenDescription, u.WhereDescription, u.WhyDescription,
		u.EventDate, u.OccurredStart, u.OccurredEnd, u.MentionedAt,
		u.ProofCount, u.SourceMemoryIDs, u.History, u.ConfidenceScore, u.Tags, u.Metadata,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert unit: %w", err)
	}
	return id, nil
}

const unitColumns = `id, bank_id, document_id, text, context, fact_type, fact_kind,
	what, who, when_description, where_description, why_description,
	event_date, occurred_start, occurred_end, mentioned_at,
	proof_count, source_memory_ids, history, confidence_score,
	consolidated_at, tags, metadata, created_at, updated_at`

func scanUnit(row interface {
	Scan(dest ...any) error
}) (MemoryUnit, error) {
	var u MemoryUnit
	var factType string
	var factKind *FactKind
	err := row.Scan(&u.ID, &u.BankID, &u.DocumentID, &u.Text, &u.Context, &factType, &factKind,
		&u.What, &u.Who, &u.WhenDescription, &u.WhereDescription, &u.WhyDescription,
		&u.EventDate, &u.OccurredStart, &u.OccurredEnd, &u.MentionedAt,
		&u.ProofCount, &u.SourceMemoryIDs, &u.History, &u.ConfidenceScore,
		&u.ConsolidatedAt, &u.Tags, &u.Metadata, &u.CreatedAt, &u.UpdatedAt)
	u.FactType = FactType(factType)
	u.FactKind = factKind
	return u, err
}

// GetUnit loads one unit by id, used by Reflect's expand tool (§4.9).
func (s *Store) GetUnit(ctx context.Context, bankID, unitID uuid.UUID) (MemoryUnit, error) {
	row := s.Pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM memory_units WHERE id = $1 AND bank_id = $2`, unitColumns), unitID, bankID)
	u, err := scanUnit(row)
	if err != nil {
		return MemoryUnit{}, fmt.Errorf("get unit %s: %w", unitID, err)
	}
	return u, nil
}

// ListUnconsolidated returns up to limit raw facts awaiting consolidation in
// creation order, the Consolidation worker's batch unit (§4.7, capped at
// 10/batch).
func (s *Store) ListUnconsolidated(ctx context.Context, bankID uuid.UUID, limit int) ([]MemoryUnit, error) {
	rows, err := s.Pool.Query(ctx, fmt.Sprintf(`
SELECT %s FROM memory_units
WHERE bank_id = $1 AND fact_type != 'observation' AND consolidated_at IS NULL
ORDER BY created_at ASC
LIMIT $2`, unitColumns), bankID, limit)
	if err != nil {
		return nil, fmt.Errorf("list unconsolidated: %w", err)
	}
	defer rows.Close()
	var out []MemoryUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// CountUnconsolidated returns how many raw facts await consolidation, the
// Consolidation worker's per-bank entry check (§4.7 step 2: "exit if zero").
func (s *Store) CountUnconsolidated(ctx context.Context, bankID uuid.UUID) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx, `
SELECT count(*) FROM memory_units
WHERE bank_id = $1 AND fact_type != 'observation' AND consolidated_at IS NULL`, bankID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unconsolidated: %w", err)
	}
	return n, nil
}

// MarkConsolidated stamps consolidated_at on the source fact once its
// classified action has been applied (§4.7 step 3: "a transaction that also
// stamps consolidated_at = now on the input fact"). history is
// observation-only (§3) so the fact itself never gains a history entry here
// — an update action's history entry lands on the observation via
// UpdateObservation instead.
func (s *Store) MarkConsolidated(ctx context.Context, unitID uuid.UUID, at time.Time) error {
	_, err := s.Pool.Exec(ctx, `
UPDATE memory_units
SET consolidated_at = $2
WHERE id = $1`, unitID, at)
	if err != nil {
		return fmt.Errorf("mark consolidated %s: %w", unitID, err)
	}
	return nil
}

// UpdateObservation rewrites an observation's text/embedding/proof_count/
// confidence in place, the UPDATE action a consolidation classification can
// choose over a plain CREATE (§4.7).
func (s *Store) UpdateObservation(ctx context.Context, unitID uuid.UUID, text string, embedding []float32, proofCount int, sourceMemoryIDs []uuid.UUID, confidence float64, entry HistoryEntry) error {
	vecLit := toVectorLiteral(embedding)
	_, err := s.Pool.Exec(ctx, `
UPDATE memory_units
SET text = $2, embedding = $3::vector, proof_count = $4, source_memory_ids = $5,
    confidence_score = $6, history = history || $7::jsonb
WHERE id = $1`, unitID, text, vecLit, proofCount, sourceMemoryIDs, confidence, []HistoryEntry{entry})
	if err != nil {
		return fmt.Errorf("update observation %s: %w", unitID, err)
	}
	return nil
}

// RecentUnitsForEntity returns the most recent units touching an entity,
// used both by mental model generation's source-window query and by
// Consolidation's temporal-neighbor linking pass (§4.7, §4.8).
func (s *Store) RecentUnitsForEntity(ctx context.Context, bankID, entityID uuid.UUID, limit int) ([]MemoryUnit, error) {
	rows, err := s.Pool.Query(ctx, fmt.Sprintf(`
SELECT %s FROM memory_units u
JOIN unit_entities ue ON ue.unit_id = u.id
WHERE u.bank_id = $1 AND ue.entity_id = $2
ORDER BY u.created_at DESC
LIMIT $3`, prefixColumns("u", unitColumns)), bankID, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent units for entity %s: %w", entityID, err)
	}
	defer rows.Close()
	var out []MemoryUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// CountObservationsForEntity supports the ≥5-observation generation gate (§4.8).
func (s *Store) CountObservationsForEntity(ctx context.Context, bankID, entityID uuid.UUID) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx, `
SELECT count(*) FROM memory_units u
JOIN unit_entities ue ON ue.unit_id = u.id
WHERE u.bank_id = $1 AND ue.entity_id = $2 AND u.fact_type = 'observation'`, bankID, entityID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count observations for entity %s: %w", entityID, err)
	}
	return n, nil
}

// prefixColumns qualifies each column in a comma-joined list with a table
// alias, needed when unitColumns is reused in a query that joins unit_entities.
func prefixColumns(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, c := range parts {
		parts[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}
