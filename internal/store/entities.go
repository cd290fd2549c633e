package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ResolveEntity finds or creates an entity by trigram similarity against
// canonical_name, the core of §4.4's entity resolution. A hit at similarity
// ≥0.6 is treated as the same entity; otherwise a new row is created. Bumps
// mention_count/last_seen on every call: every mention updates the entity.
func (s *Store) ResolveEntity(ctx context.Context, bankID uuid.UUID, name, typeHint string) (Entity, bool, error) {
	var e Entity
	var isNew bool

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return Entity{}, false, fmt.Errorf("resolve entity begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
SELECT id, bank_id, canonical_name, entity_type, mention_count, first_seen, last_seen
FROM entities
WHERE bank_id = $1 AND similarity(canonical_name, $2) >= 0.6
ORDER BY similarity(canonical_name, $2) DESC
LIMIT 1`, bankID, name)
	err = row.Scan(&e.ID, &e.BankID, &e.CanonicalName, &e.EntityType, &e.MentionCount, &e.FirstSeen, &e.LastSeen)
	switch {
	case err == nil:
		_, err = tx.Exec(ctx, `UPDATE entities SET mention_count = mention_count + 1, last_seen = now() WHERE id = $1`, e.ID)
		if err != nil {
			return Entity{}, false, fmt.Errorf("bump entity %s: %w", e.ID, err)
		}
	default:
		if typeHint == "" {
			typeHint = "other"
		}
		isNew = true
		// ON CONFLICT targets (bank_id, lower(canonical_name)) only, matching
		// the entities_bank_name_uq index and §3/§8's uniqueness invariant.
		// entity_type is intentionally NOT part of the SET clause: the first
		// writer to create a canonical_name wins its type hint (§4.4 step 1
		// treats an exact name match as "bump counters; return existing"
		// regardless of what type hint the later call carried), so a race
		// between two different type hints for the same new name can't leave
		// two rows, and can't let a later, possibly-wrong hint silently
		// overwrite an established entity's type.
		err = tx.QueryRow(ctx, `
INSERT INTO entities (bank_id, canonical_name, entity_type, mention_count)
VALUES ($1, $2, $3, 1)
ON CONFLICT (bank_id, lower(canonical_name)) DO UPDATE
	SET mention_count = entities.mention_count + 1, last_seen = now()
RETURNING id, bank_id, canonical_name, entity_type, mention_count, first_seen, last_seen`,
			bankID, name, typeHint,
		).Scan(&e.ID, &e.BankID, &e.CanonicalName, &e.EntityType, &e.MentionCount, &e.FirstSeen, &e.LastSeen)
		if err != nil {
			return Entity{}, false, fmt.Errorf("insert entity %q: %w", name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Entity{}, false, fmt.Errorf("resolve entity commit: %w", err)
	}
	return e, isNew, nil
}

// LinkUnitEntity associates a memory unit with a resolved entity.
func (s *Store) LinkUnitEntity(ctx context.Context, unitID, entityID uuid.UUID, role string) error {
	_, err := s.Pool.Exec(ctx, `
INSERT INTO unit_entities (unit_id, entity_id, role) VALUES ($1, $2, $3)
ON CONFLICT (unit_id, entity_id) DO NOTHING`, unitID, entityID, role)
	if err != nil {
		return fmt.Errorf("link unit %s to entity %s: %w", unitID, entityID, err)
	}
	return nil
}

// EntitiesForUnit returns every entity a unit mentions.
func (s *Store) EntitiesForUnit(ctx context.Context, unitID uuid.UUID) ([]Entity, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT e.id, e.bank_id, e.canonical_name, e.entity_type, e.mention_count, e.first_seen, e.last_seen
FROM entities e JOIN unit_entities ue ON ue.entity_id = e.id
WHERE ue.unit_id = $1`, unitID)
	if err != nil {
		return nil, fmt.Errorf("entities for unit %s: %w", unitID, err)
	}
	defer rows.Close()
	var out []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.BankID, &e.CanonicalName, &e.EntityType, &e.MentionCount, &e.FirstSeen, &e.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// BumpCooccurrence records that two entities appeared together in the same
// unit, feeding future relatedness signals (§4.6).
func (s *Store) BumpCooccurrence(ctx context.Context, bankID, a, b uuid.UUID) error {
	if a == b {
		return nil
	}
	if b.String() < a.String() {
		a, b = b, a
	}
	_, err := s.Pool.Exec(ctx, `
INSERT INTO entity_cooccurrences (bank_id, entity_a, entity_b, count, last_cooccurred)
VALUES ($1, $2, $3, 1, now())
ON CONFLICT (bank_id, entity_a, entity_b) DO UPDATE
	SET count = entity_cooccurrences.count + 1, last_cooccurred = now()`, bankID, a, b)
	if err != nil {
		return fmt.Errorf("bump cooccurrence %s/%s: %w", a, b, err)
	}
	return nil
}

// EntitiesNeedingMentalModel finds entities among candidateIDs (the entities
// touched by a consolidation run, §4.8) that have ≥minObservations
// observation-type units and no existing mental model yet.
func (s *Store) EntitiesNeedingMentalModel(ctx context.Context, bankID uuid.UUID, candidateIDs []uuid.UUID, minObservations int) ([]Entity, error) {
	if len(candidateIDs) == 0 {
		return nil, nil
	}
	rows, err := s.Pool.Query(ctx, `
SELECT e.id, e.bank_id, e.canonical_name, e.entity_type, e.mention_count, e.first_seen, e.last_seen
FROM entities e
LEFT JOIN mental_models m ON m.entity_id = e.id AND m.bank_id = e.bank_id
WHERE e.bank_id = $1 AND e.id = ANY($2) AND m.id IS NULL
  AND (
    SELECT count(*) FROM unit_entities ue
    JOIN memory_units u ON u.id = ue.unit_id
    WHERE ue.entity_id = e.id AND u.fact_type = 'observation'
  ) >= $3`,
		bankID, candidateIDs, minObservations)
	if err != nil {
		return nil, fmt.Errorf("entities needing mental model: %w", err)
	}
	defer rows.Close()
	var out []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.BankID, &e.CanonicalName, &e.EntityType, &e.MentionCount, &e.FirstSeen, &e.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
