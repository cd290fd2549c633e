package reflect

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"memoryengine/internal/llmprovider"
	"memoryengine/internal/recall"
	"memoryengine/internal/store"
)

// tool is one entry of the fixed five-tool catalog (§4.9). Execute receives
// already-decoded arguments and returns a JSON-marshalable result; every id
// it surfaces must be recorded into the invocation's seen-ids set so a later
// `done` call can cite it.
type tool struct {
	schema  llmprovider.ToolSchema
	execute func(ctx context.Context, args map[string]any) (any, error)
}

// seenIDs tracks every unit/mental-model id any tool in this invocation has
// returned, the pool `done`'s cited_ids guardrail checks against (§4.9
// guardrail 1). Single-threaded by construction — Reflect's loop contract
// guarantees at most one tool call in flight — so a plain map needs no lock.
type seenIDs map[uuid.UUID]bool

func (s seenIDs) add(ids ...uuid.UUID) {
	for _, id := range ids {
		s[id] = true
	}
}

func intArg(args map[string]any, key string, def int) int {
	v, ok := args[key]
	if !ok {
		return def
	}
	f, ok := v.(float64) // JSON numbers decode as float64
	if !ok {
		return def
	}
	return int(f)
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func stringsArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// unitView and modelView are the shapes returned to the model: just
// enough to ground an answer (id, text, score) without re-exposing internal
// storage fields.
type unitView struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score,omitempty"`
}

type modelView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// buildTools constructs the five-tool catalog bound to one bank id, closed
// over so the model can never request a different bank's data (§4.9: "bank
// id is injected from the caller's context and is not exposed as a tool
// parameter"). requireAllTags, when non-empty, forces search_observations
// and recall into the `all_strict` tag-match mode a tagged mental model's
// refresh needs (§4.8) regardless of what tags the model itself requests —
// it is never model-controlled.
func buildTools(bankID uuid.UUID, s *store.Store, rp *recall.Pipeline, seen seenIDs, requireAllTags []string) map[string]tool {
	return map[string]tool{
		"search_mental_models": {
			schema: llmprovider.ToolSchema{
				Name:        "search_mental_models",
				Description: "Search curated mental models (entity or theme summaries) relevant to a query.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query":       map[string]any{"type": "string"},
						"max_results": map[string]any{"type": "integer", "description": "clamped to <= 20"},
					},
					"required": []string{"query"},
				},
			},
			execute: func(ctx context.Context, args map[string]any) (any, error) {
				limit := clamp(intArg(args, "max_results", 20), 1, 20)
				models, err := s.SearchMentalModels(ctx, bankID, stringArg(args, "query"), limit)
				if err != nil {
					return nil, err
				}
				out := make([]modelView, len(models))
				for i, m := range models {
					seen.add(m.ID)
					out[i] = modelView{ID: m.ID.String(), Name: m.Name, Content: m.Content}
				}
				return out, nil
			},
		},
		"search_observations": {
			schema: llmprovider.ToolSchema{
				Name:        "search_observations",
				Description: "Search durable observations (consolidated knowledge) relevant to a query, optionally scoped by tags.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query":       map[string]any{"type": "string"},
						"max_results": map[string]any{"type": "integer", "description": "clamped to <= 50"},
						"tags":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					},
					"required": []string{"query"},
				},
			},
			execute: func(ctx context.Context, args map[string]any) (any, error) {
				limit := clamp(intArg(args, "max_results", 50), 1, 50)
				hits, err := rp.Recall(ctx, bankID.String(), stringArg(args, "query"), recall.Options{
					MaxResults:     limit,
					FactTypes:      []string{string(store.FactTypeObservation)},
					Tags:           stringsArg(args, "tags"),
					RequireAllTags: requireAllTags,
				})
				if err != nil {
					return nil, err
				}
				return toUnitViews(hits, seen), nil
			},
		},
		"recall": {
			schema: llmprovider.ToolSchema{
				Name:        "recall",
				Description: "Search raw retained facts (observations excluded) relevant to a query, optionally scoped by tags.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query":       map[string]any{"type": "string"},
						"max_results": map[string]any{"type": "integer", "description": "clamped to <= 100"},
						"tags":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					},
					"required": []string{"query"},
				},
			},
			execute: func(ctx context.Context, args map[string]any) (any, error) {
				limit := clamp(intArg(args, "max_results", 100), 1, 100)
				hits, err := rp.Recall(ctx, bankID.String(), stringArg(args, "query"), recall.Options{
					MaxResults:          limit,
					ExcludeObservations: true,
					Tags:                stringsArg(args, "tags"),
					RequireAllTags:      requireAllTags,
				})
				if err != nil {
					return nil, err
				}
				return toUnitViews(hits, seen), nil
			},
		},
		"expand": {
			schema: llmprovider.ToolSchema{
				Name:        "expand",
				Description: "Fetch the full text and up to 100 chunks of one previously-seen unit by id.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"unit_id": map[string]any{"type": "string"},
					},
					"required": []string{"unit_id"},
				},
			},
			execute: func(ctx context.Context, args map[string]any) (any, error) {
				unitID, err := uuid.Parse(stringArg(args, "unit_id"))
				if err != nil {
					return nil, fmt.Errorf("expand: unit_id is not UUID-shaped")
				}
				u, err := s.GetUnit(ctx, bankID, unitID) // scoped to bankID: a unit from another bank can't be expanded
				if err != nil {
					return nil, fmt.Errorf("expand: unit not found in this bank")
				}
				chunks, err := s.ChunksForUnit(ctx, unitID)
				if err != nil {
					return nil, err
				}
				if len(chunks) > 100 {
					chunks = chunks[:100]
				}
				seen.add(unitID)
				texts := make([]string, len(chunks))
				for i, c := range chunks {
					texts[i] = c.Text
				}
				return struct {
					ID     string   `json:"id"`
					Text   string   `json:"text"`
					Chunks []string `json:"chunks,omitempty"`
				}{ID: u.ID.String(), Text: u.Text, Chunks: texts}, nil
			},
		},
	}
}

func toUnitViews(hits []recall.Hit, seen seenIDs) []unitView {
	out := make([]unitView, len(hits))
	for i, h := range hits {
		seen.add(h.Unit.ID)
		out[i] = unitView{ID: h.Unit.ID.String(), Text: h.Unit.Text, Score: h.Scores.Fused}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v == 0 {
		return hi
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
