package store

import (
	"context"
	"fmt"
)

// migrate creates every table, index, and trigger the engine needs. Grounded
// on postgres_vector.go: DDL is embedded directly in Go and run idempotently
// at pool construction rather than via separate migration files.
func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE EXTENSION IF NOT EXISTS pg_trgm`,
		`CREATE EXTENSION IF NOT EXISTS pgcrypto`,

		`CREATE TABLE IF NOT EXISTS banks (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			mission TEXT NOT NULL DEFAULT '',
			background TEXT NOT NULL DEFAULT '',
			skepticism SMALLINT NOT NULL DEFAULT 3,
			literalism SMALLINT NOT NULL DEFAULT 3,
			empathy SMALLINT NOT NULL DEFAULT 3,
			directives TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			bank_id UUID NOT NULL REFERENCES banks(id) ON DELETE CASCADE,
			source TEXT NOT NULL DEFAULT '',
			raw_text TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS documents_bank_idx ON documents(bank_id)`,

		`CREATE TABLE IF NOT EXISTS entities (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			bank_id UUID NOT NULL REFERENCES banks(id) ON DELETE CASCADE,
			canonical_name TEXT NOT NULL,
			entity_type TEXT NOT NULL DEFAULT 'other',
			mention_count INTEGER NOT NULL DEFAULT 0,
			first_seen TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_seen TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS entities_bank_idx ON entities(bank_id)`,
		`CREATE INDEX IF NOT EXISTS entities_name_trgm_idx ON entities USING gin (canonical_name gin_trgm_ops)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS entities_bank_name_uq ON entities(bank_id, lower(canonical_name))`,

		// memory_units holds both raw facts (fact_type world|experience) and
		// consolidated observations (fact_type observation). fact_kind further
		// splits raw facts by dedup strategy (§4.5 step 5) and is null on
		// observations. who is multi-valued (a fact can name several people).
		`CREATE TABLE IF NOT EXISTS memory_units (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			bank_id UUID NOT NULL REFERENCES banks(id) ON DELETE CASCADE,
			document_id UUID REFERENCES documents(id) ON DELETE SET NULL,
			text TEXT NOT NULL,
			context TEXT NOT NULL DEFAULT '',
			embedding vector(1024),
			fact_type TEXT NOT NULL,
			fact_kind TEXT,
			what TEXT NOT NULL DEFAULT '',
			who TEXT[] NOT NULL DEFAULT '{}',
			when_description TEXT NOT NULL DEFAULT '',
			where_description TEXT NOT NULL DEFAULT '',
			why_description TEXT NOT NULL DEFAULT '',
			event_date TIMESTAMPTZ,
			occurred_start TIMESTAMPTZ,
			occurred_end TIMESTAMPTZ,
			mentioned_at TIMESTAMPTZ,
			proof_count INTEGER NOT NULL DEFAULT 0,
			source_memory_ids UUID[] NOT NULL DEFAULT '{}',
			history JSONB NOT NULL DEFAULT '[]'::jsonb,
			confidence_score REAL,
			consolidated_at TIMESTAMPTZ,
			tags TEXT[] NOT NULL DEFAULT '{}',
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CONSTRAINT memory_units_fact_type_chk CHECK (fact_type IN ('world', 'experience', 'observation')),
			CONSTRAINT memory_units_fact_kind_chk CHECK (fact_kind IS NULL OR fact_kind IN ('event', 'conversation')),
			search_vector tsvector GENERATED ALWAYS AS (
				setweight(to_tsvector('english', coalesce(text, '')), 'A') ||
				setweight(to_tsvector('english', coalesce(context, '')), 'B')
			) STORED
		)`,
		`CREATE INDEX IF NOT EXISTS memory_units_bank_created_idx ON memory_units(bank_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS memory_units_bank_facttype_event_idx ON memory_units(bank_id, fact_type, event_date DESC NULLS LAST)`,
		`CREATE INDEX IF NOT EXISTS memory_units_pending_idx ON memory_units(bank_id, created_at ASC) WHERE fact_type != 'observation' AND consolidated_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS memory_units_tags_idx ON memory_units USING gin (tags)`,
		`CREATE INDEX IF NOT EXISTS memory_units_search_idx ON memory_units USING gin (search_vector)`,
		`CREATE INDEX IF NOT EXISTS memory_units_embedding_idx ON memory_units USING hnsw (embedding vector_cosine_ops)`,
		`CREATE INDEX IF NOT EXISTS memory_units_world_embedding_idx ON memory_units USING hnsw (embedding vector_cosine_ops) WHERE fact_type = 'world'`,
		`CREATE INDEX IF NOT EXISTS memory_units_experience_embedding_idx ON memory_units USING hnsw (embedding vector_cosine_ops) WHERE fact_type = 'experience'`,
		`CREATE INDEX IF NOT EXISTS memory_units_observation_embedding_idx ON memory_units USING hnsw (embedding vector_cosine_ops) WHERE fact_type = 'observation'`,

		`CREATE TABLE IF NOT EXISTS unit_entities (
			unit_id UUID NOT NULL REFERENCES memory_units(id) ON DELETE CASCADE,
			entity_id UUID NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
			role TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (unit_id, entity_id)
		)`,
		`CREATE INDEX IF NOT EXISTS unit_entities_entity_idx ON unit_entities(entity_id)`,

		// memory_links is a directed, typed, weighted edge between two units.
		// entity_id, when set, is the shared entity that justifies the edge;
		// consolidation's temporal edges carry it.
		`CREATE TABLE IF NOT EXISTS memory_links (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			bank_id UUID NOT NULL REFERENCES banks(id) ON DELETE CASCADE,
			from_unit_id UUID NOT NULL REFERENCES memory_units(id) ON DELETE CASCADE,
			to_unit_id UUID NOT NULL REFERENCES memory_units(id) ON DELETE CASCADE,
			link_type TEXT NOT NULL,
			entity_id UUID REFERENCES entities(id) ON DELETE CASCADE,
			weight REAL NOT NULL DEFAULT 1.0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CONSTRAINT memory_links_type_chk CHECK (link_type IN ('temporal', 'semantic', 'entity', 'causes', 'caused_by')),
			CONSTRAINT memory_links_weight_chk CHECK (weight >= 0 AND weight <= 1)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS memory_links_tuple_uq ON memory_links(from_unit_id, to_unit_id, link_type, entity_id)`,
		`CREATE INDEX IF NOT EXISTS memory_links_from_idx ON memory_links(from_unit_id, link_type, weight DESC)`,
		`CREATE INDEX IF NOT EXISTS memory_links_to_idx ON memory_links(to_unit_id, link_type, weight DESC)`,

		// entity_cooccurrences is symmetric; rows are canonicalized so
		// entity_a < entity_b to avoid storing both directions.
		`CREATE TABLE IF NOT EXISTS entity_cooccurrences (
			bank_id UUID NOT NULL REFERENCES banks(id) ON DELETE CASCADE,
			entity_a UUID NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
			entity_b UUID NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
			count INTEGER NOT NULL DEFAULT 1,
			last_cooccurred TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (bank_id, entity_a, entity_b),
			CONSTRAINT entity_cooccurrences_order_chk CHECK (entity_a < entity_b)
		)`,

		`CREATE TABLE IF NOT EXISTS mental_models (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			bank_id UUID NOT NULL REFERENCES banks(id) ON DELETE CASCADE,
			entity_id UUID REFERENCES entities(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			source_query TEXT NOT NULL DEFAULT '',
			embedding vector(1024),
			source_observation_ids UUID[] NOT NULL DEFAULT '{}',
			tags TEXT[] NOT NULL DEFAULT '{}',
			max_tokens INTEGER NOT NULL DEFAULT 0,
			trigger_refresh_after_consolidation BOOLEAN NOT NULL DEFAULT true,
			last_refreshed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS mental_models_bank_entity_uq ON mental_models(bank_id, entity_id) WHERE entity_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS mental_models_name_trgm_idx ON mental_models USING gin (name gin_trgm_ops)`,
		`CREATE INDEX IF NOT EXISTS mental_models_tags_idx ON mental_models USING gin (tags)`,
		`CREATE INDEX IF NOT EXISTS mental_models_embedding_idx ON mental_models USING hnsw (embedding vector_cosine_ops)`,

		// chunks are owned by the parent memory unit, not the document: a
		// unit's own text is split at Retain time and the pieces embedded
		// separately so Reflect's expand tool can return a passage without
		// the whole unit.
		`CREATE TABLE IF NOT EXISTS chunks (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			unit_id UUID NOT NULL REFERENCES memory_units(id) ON DELETE CASCADE,
			ordinal INTEGER NOT NULL,
			text TEXT NOT NULL,
			embedding vector(1024),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS chunks_unit_ordinal_uq ON chunks(unit_id, ordinal)`,
		`CREATE INDEX IF NOT EXISTS chunks_embedding_idx ON chunks USING hnsw (embedding vector_cosine_ops)`,

		`CREATE TABLE IF NOT EXISTS async_operations (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			bank_id UUID NOT NULL REFERENCES banks(id) ON DELETE CASCADE,
			operation_type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			worker_id TEXT NOT NULL DEFAULT '',
			payload JSONB NOT NULL DEFAULT '{}'::jsonb,
			result JSONB NOT NULL DEFAULT '{}'::jsonb,
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			CONSTRAINT async_operations_status_chk CHECK (status IN ('pending', 'processing', 'completed', 'failed'))
		)`,
		`CREATE INDEX IF NOT EXISTS async_operations_pending_idx ON async_operations(bank_id, created_at) WHERE status IN ('pending', 'processing')`,
	}

	for _, stmt := range stmts {
		if _, err := s.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}

	return s.installTriggers(ctx)
}

// installTriggers keeps updated_at current on row mutation, a DB-level
// backstop for the places application code forgets to touch it.
// async_operations has
// no updated_at column — it tracks lifecycle via started_at/completed_at
// instead — so it is deliberately left off this list.
func (s *Store) installTriggers(ctx context.Context) error {
	const fn = `
CREATE OR REPLACE FUNCTION set_updated_at() RETURNS trigger AS $$
BEGIN
	NEW.updated_at = now();
	RETURN NEW;
END;
$$ LANGUAGE plpgsql`
	if _, err := s.Pool.Exec(ctx, fn); err != nil {
		return fmt.Errorf("create set_updated_at: %w", err)
	}

	for _, table := range []string{"banks", "memory_units", "mental_models"} {
		stmt := fmt.Sprintf(`
DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = '%s_set_updated_at') THEN
		CREATE TRIGGER %s_set_updated_at BEFORE UPDATE ON %s
		FOR EACH ROW EXECUTE FUNCTION set_updated_at();
	END IF;
END;
$$`, table, table, table)
		if _, err := s.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("trigger on %s: %w", table, err)
		}
	}
	return nil
}
