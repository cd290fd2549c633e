package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"memoryengine/internal/errs"
)

const mentalModelColumns = `id, bank_id, entity_id, name, description, content, source_query,
	source_observation_ids, tags, max_tokens, trigger_refresh_after_consolidation,
	last_refreshed_at, created_at, updated_at`

// CreateMentalModel inserts a newly generated mental model. Three-layer
// duplicate prevention (§4.8): the SQL left-join candidate query excludes
// entities that already have one, the caller rechecks entity_id and name
// before inserting, and the unique index is the final backstop — a conflict
// here is surfaced as
// ErrConcurrencyConflict so the caller can reload the winner instead of failing.
func (s *Store) CreateMentalModel(ctx context.Context, m MentalModel) (MentalModel, error) {
	var vecLit any
	if len(m.Embedding) > 0 {
		vecLit = toVectorLiteral(m.Embedding)
	}
	if m.SourceObservationIDs == nil {
		m.SourceObservationIDs = []uuid.UUID{}
	}
	row := s.Pool.QueryRow(ctx, fmt.Sprintf(`
INSERT INTO mental_models
	(bank_id, entity_id, name, description, content, source_query, embedding,
	 source_observation_ids, tags, max_tokens, trigger_refresh_after_consolidation)
VALUES ($1,$2,$3,$4,$5,$6,$7::vector,$8,$9,$10,$11)
RETURNING %s`, mentalModelColumns),
		m.BankID, m.EntityID, m.Name, m.Description, m.Content, m.SourceQuery, vecLit,
		m.SourceObservationIDs, m.Tags, m.MaxTokens, m.RefreshAfterConsolidation)
	out, err := scanMentalModel(row)
	if err != nil {
		var pgErr interface{ SQLState() string }
		if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
			return MentalModel{}, fmt.Errorf("mental model for entity %v already exists: %w", m.EntityID, errs.ErrConcurrencyConflict)
		}
		return MentalModel{}, fmt.Errorf("create mental model: %w", err)
	}
	return out, nil
}

func scanMentalModel(row pgx.Row) (MentalModel, error) {
	var m MentalModel
	err := row.Scan(&m.ID, &m.BankID, &m.EntityID, &m.Name, &m.Description, &m.Content, &m.SourceQuery,
		&m.SourceObservationIDs, &m.Tags, &m.MaxTokens, &m.RefreshAfterConsolidation,
		&m.LastRefreshedAt, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

// GetMentalModelByEntity loads the existing mental model for an entity, if any.
func (s *Store) GetMentalModelByEntity(ctx context.Context, bankID, entityID uuid.UUID) (*MentalModel, error) {
	row := s.Pool.QueryRow(ctx, fmt.Sprintf(`
SELECT %s FROM mental_models WHERE bank_id = $1 AND entity_id = $2`, mentalModelColumns), bankID, entityID)
	m, err := scanMentalModel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mental model for entity %s: %w", entityID, err)
	}
	return &m, nil
}

// RefreshMentalModel replaces content/description/embedding/sources/tags after a
// re-run of generation for an entity whose observations changed (§4.8's
// trigger_refresh_after_consolidation path), stamping last_refreshed_at.
func (s *Store) RefreshMentalModel(ctx context.Context, id uuid.UUID, content, description string, embedding []float32, sourceObservationIDs []uuid.UUID, tags []string) error {
	vecLit := toVectorLiteral(embedding)
	_, err := s.Pool.Exec(ctx, `
UPDATE mental_models
SET content = $2, description = $3, embedding = $4::vector, source_observation_ids = $5,
    tags = $6, last_refreshed_at = now()
WHERE id = $1`, id, content, description, vecLit, sourceObservationIDs, tags)
	if err != nil {
		return fmt.Errorf("refresh mental model %s: %w", id, err)
	}
	return nil
}

// NameExistsSimilar is part of the second duplicate-prevention layer for
// mental model generation, checking trigram similarity ≥0.8 against existing
// names (§4.8).
func (s *Store) NameExistsSimilar(ctx context.Context, bankID uuid.UUID, name string) (bool, error) {
	var exists bool
	err := s.Pool.QueryRow(ctx, `
SELECT EXISTS(
	SELECT 1 FROM mental_models
	WHERE bank_id = $1 AND similarity(name, $2) >= 0.8
)`, bankID, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("name exists similar %q: %w", name, err)
	}
	return exists, nil
}

// SearchMentalModels performs a trigram+substring match over name/content
// for Reflect's search_mental_models tool, capped at ≤20 results (§4.9).
func (s *Store) SearchMentalModels(ctx context.Context, bankID uuid.UUID, query string, limit int) ([]MentalModel, error) {
	if limit <= 0 || limit > 20 {
		limit = 20
	}
	rows, err := s.Pool.Query(ctx, fmt.Sprintf(`
SELECT %s FROM mental_models
WHERE bank_id = $1 AND (name ILIKE '%%' || $2 || '%%' OR content ILIKE '%%' || $2 || '%%')
ORDER BY similarity(name, $2) DESC
LIMIT $3`, mentalModelColumns), bankID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search mental models: %w", err)
	}
	defer rows.Close()
	var out []MentalModel
	for rows.Next() {
		m, err := scanMentalModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
