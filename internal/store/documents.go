package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// InsertDocument stores the raw text a Retain call received, before
// extraction, so the original input is always recoverable.
func (s *Store) InsertDocument(ctx context.Context, d Document) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.Pool.QueryRow(ctx, `
INSERT INTO documents (bank_id, source, raw_text) VALUES ($1, $2, $3)
RETURNING id`, d.BankID, d.Source, d.RawText).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

// InsertChunks persists the pieces a memory unit's text over 800 characters
// was split into at Retain time (§4, Chunking), each embedded
// independently so Reflect's expand tool can return one passage instead
// of the whole unit (§3).
func (s *Store) InsertChunks(ctx context.Context, unitID uuid.UUID, chunks []string, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("insert chunks for unit %s: %d chunks but %d embeddings", unitID, len(chunks), len(embeddings))
	}
	for i, c := range chunks {
		vecLit := toVectorLiteral(embeddings[i])
		if _, err := s.Pool.Exec(ctx, `
INSERT INTO chunks (unit_id, ordinal, text, embedding) VALUES ($1, $2, $3, $4::vector)`,
			unitID, i, c, vecLit); err != nil {
			return fmt.Errorf("insert chunk %d for unit %s: %w", i, unitID, err)
		}
	}
	return nil
}

// ChunksForUnit returns a unit's pre-split passages in order, used by
// Reflect's expand tool when a unit's full text exceeds what a recall hit
// surfaces (§3).
func (s *Store) ChunksForUnit(ctx context.Context, unitID uuid.UUID) ([]Chunk, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT id, unit_id, ordinal, text, created_at FROM chunks
WHERE unit_id = $1 ORDER BY ordinal ASC`, unitID)
	if err != nil {
		return nil, fmt.Errorf("chunks for unit %s: %w", unitID, err)
	}
	defer rows.Close()
	var out []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.UnitID, &c.Ordinal, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
