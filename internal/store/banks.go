package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"memoryengine/internal/bank"
)

// CreateBank inserts a new tenant partition and returns its generated id.
func (s *Store) CreateBank(ctx context.Context, b bank.Bank) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.Pool.QueryRow(ctx, `
INSERT INTO banks (mission, background, skepticism, literalism, empathy, directives)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`,
		b.Mission, b.Background, b.Disposition.Skepticism, b.Disposition.Literalism,
		b.Disposition.Empathy, b.Directives,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create bank: %w", err)
	}
	return id, nil
}

// GetBank loads a bank's persona by id, used to build SystemPreamble for
// every LLM call made on its behalf (§4.9).
func (s *Store) GetBank(ctx context.Context, id uuid.UUID) (bank.Bank, error) {
	var b bank.Bank
	b.ID = id
	err := s.Pool.QueryRow(ctx, `
SELECT mission, background, skepticism, literalism, empathy, directives
FROM banks WHERE id = $1`, id,
	).Scan(&b.Mission, &b.Background, &b.Disposition.Skepticism,
		&b.Disposition.Literalism, &b.Disposition.Empathy, &b.Directives)
	if err != nil {
		return bank.Bank{}, fmt.Errorf("get bank %s: %w", id, err)
	}
	return b, nil
}

// ListBankIDs returns every bank id, the outer loop of a consolidation run
// ("per run, per bank", §4.7).
func (s *Store) ListBankIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.Pool.Query(ctx, `SELECT id FROM banks ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list bank ids: %w", err)
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// BankExists checks existence without loading the full persona. Retain and
// Reflect check the bank with GetBank instead; nothing in this module calls it.
func (s *Store) BankExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM banks WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("bank exists %s: %w", id, err)
	}
	return exists, nil
}
