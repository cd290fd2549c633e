package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UnitsInWindow returns raw facts (world/experience) created with an
// event_date (or, absent that, created_at) inside [start, end], the
// candidate pool for Retain's event-kind dedup bucket (§4.5 step 5).
func (s *Store) UnitsInWindow(ctx context.Context, bankID uuid.UUID, start, end time.Time) ([]MemoryUnit, error) {
	rows, err := s.Pool.Query(ctx, fmt.Sprintf(`
SELECT %s FROM memory_units
WHERE bank_id = $1 AND fact_type != 'observation'
  AND coalesce(event_date, created_at) BETWEEN $2 AND $3
ORDER BY created_at ASC`, unitColumns), bankID, start, end)
	if err != nil {
		return nil, fmt.Errorf("units in window: %w", err)
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

// RecentUnits returns the most recently created raw facts (world/experience)
// in a bank, the candidate pool for Retain's conversation-kind dedup check
// (§4.5 step 5).
func (s *Store) RecentUnits(ctx context.Context, bankID uuid.UUID, limit int) ([]MemoryUnit, error) {
	rows, err := s.Pool.Query(ctx, fmt.Sprintf(`
SELECT %s FROM memory_units
WHERE bank_id = $1 AND fact_type != 'observation'
ORDER BY created_at DESC
LIMIT $2`, unitColumns), bankID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent units: %w", err)
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
