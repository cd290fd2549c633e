package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// LexicalResult is one hit from a full-text search query.
type LexicalResult struct {
	UnitID uuid.UUID
	Rank   float64
}

// VectorResult is one hit from a similarity search query.
type VectorResult struct {
	UnitID   uuid.UUID
	Distance float64
}

// SearchFilter narrows Recall's candidate pool by fact_type/tags (§4.6).
type SearchFilter struct {
	FactTypes []string
	Tags      []string
	// ExcludeObservations restricts the search to world/experience units
	// (fact_type != 'observation'), used by Reflect's recall tool per §4.9.
	ExcludeObservations bool
	// RequireAllTags implements the `all_strict` tag-match mode (§4.8 mental
	// model refresh): a unit must carry every one of these tags, and a unit
	// with no tags at all never matches. Unlike Tags (array-overlap, any
	// match), this is a strict superset check so a tagged mental model's
	// refresh can't pull in data scoped to a different tag.
	RequireAllTags []string
}

func (f SearchFilter) whereClause(argOffset int) (string, []any) {
	clause := ""
	var args []any
	n := argOffset
	if len(f.FactTypes) > 0 {
		n++
		clause += fmt.Sprintf(" AND fact_type = ANY($%d)", n)
		args = append(args, f.FactTypes)
	}
	if len(f.Tags) > 0 {
		n++
		clause += fmt.Sprintf(" AND tags && $%d", n)
		args = append(args, f.Tags)
	}
	if len(f.RequireAllTags) > 0 {
		n++
		clause += fmt.Sprintf(" AND tags @> $%d", n)
		args = append(args, f.RequireAllTags)
	}
	if f.ExcludeObservations {
		clause += " AND fact_type != 'observation'"
	}
	return clause, args
}

// LexicalSearch ranks units by full-text match against the generated
// search_vector column, grounded on rag/retrieve's FTS path.
func (s *Store) LexicalSearch(ctx context.Context, bankID uuid.UUID, query string, k int, filter SearchFilter) ([]LexicalResult, error) {
	where, extraArgs := filter.whereClause(2)
	q := fmt.Sprintf(`
SELECT id, ts_rank(search_vector, websearch_to_tsquery('english', $2)) AS rank
FROM memory_units
WHERE bank_id = $1 AND search_vector @@ websearch_to_tsquery('english', $2)%s
ORDER BY rank DESC
LIMIT %d`, where, k)
	args := append([]any{bankID, query}, extraArgs...)
	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()
	var out []LexicalResult
	for rows.Next() {
		var r LexicalResult
		if err := rows.Scan(&r.UnitID, &r.Rank); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// VectorSearch ranks units by cosine distance to the query embedding,
// grounded on postgres_vector.go's SimilaritySearch.
func (s *Store) VectorSearch(ctx context.Context, bankID uuid.UUID, embedding []float32, k int, filter SearchFilter) ([]VectorResult, error) {
	vecLit := toVectorLiteral(embedding)
	where, extraArgs := filter.whereClause(2)
	q := fmt.Sprintf(`
SELECT id, embedding <=> $2::vector AS distance
FROM memory_units
WHERE bank_id = $1 AND embedding IS NOT NULL%s
ORDER BY embedding <=> $2::vector ASC
LIMIT %d`, where, k)
	args := append([]any{bankID, vecLit}, extraArgs...)
	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()
	var out []VectorResult
	for rows.Next() {
		var r VectorResult
		if err := rows.Scan(&r.UnitID, &r.Distance); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
