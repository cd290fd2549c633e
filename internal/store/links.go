package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CreateLink records a directed, typed, weighted edge between two units:
// temporal/semantic/entity/causes/caused_by per §3. Relies on the
// memory_links_tuple_uq unique index for idempotent re-linking — callers that
// run this twice for the same (from, to, link_type, entity_id) get a no-op
// conflict rather than a duplicate edge.
func (s *Store) CreateLink(ctx context.Context, l MemoryLink) error {
	_, err := s.Pool.Exec(ctx, `
INSERT INTO memory_links (bank_id, from_unit_id, to_unit_id, link_type, entity_id, weight)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (from_unit_id, to_unit_id, link_type, entity_id) DO NOTHING`,
		l.BankID, l.FromUnitID, l.ToUnitID, string(l.LinkType), l.EntityID, l.Weight)
	if err != nil {
		return fmt.Errorf("create link %s->%s (%s): %w", l.FromUnitID, l.ToUnitID, l.LinkType, err)
	}
	return nil
}

// LinksFrom returns outgoing links for a unit. No pipeline in this module
// calls it; Reflect's expand tool does not read links.
func (s *Store) LinksFrom(ctx context.Context, unitID uuid.UUID) ([]MemoryLink, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT id, bank_id, from_unit_id, to_unit_id, link_type, entity_id, weight, created_at
FROM memory_links WHERE from_unit_id = $1
ORDER BY weight DESC`, unitID)
	if err != nil {
		return nil, fmt.Errorf("links from %s: %w", unitID, err)
	}
	defer rows.Close()
	var out []MemoryLink
	for rows.Next() {
		var l MemoryLink
		var linkType string
		if err := rows.Scan(&l.ID, &l.BankID, &l.FromUnitID, &l.ToUnitID, &linkType, &l.EntityID, &l.Weight, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.LinkType = LinkType(linkType)
		out = append(out, l)
	}
	return out, rows.Err()
}
