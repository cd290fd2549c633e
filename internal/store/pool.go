// Package store implements the Postgres-backed storage layer (C1, §3): the
// memory_units table and its satellites, HNSW/GIN/btree indexes, and the
// cascade semantics described in §4.1. Grounded on
// internal/persistence/databases/pool.go and postgres_vector.go.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EmbeddingDimensions is the provider's fixed vector width (§4.2).
const EmbeddingDimensions = 1024

// Store wraps a pgx pool with the memory-engine's schema and queries.
type Store struct {
	Pool *pgxpool.Pool
}

// Open creates a connection pool, pings it, and applies the schema
// migration. Safe to call once at process start (C10 initialize()).
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 16
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pool: %w", err)
	}

	s := &Store{Pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the pool. Idempotent.
func (s *Store) Close() {
	if s == nil || s.Pool == nil {
		return
	}
	s.Pool.Close()
}

// toVectorLiteral renders a float32 slice as a pgvector literal, e.g. "[0.1,0.2]".
// Matches postgres_vector.go's manual encoding: no separate pgvector
// client library is wired since no pack repo imports one.
func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", x)
	}
	b.WriteByte(']')
	return b.String()
}
