// Package recall implements the Recall pipeline (C6, §4.6): parallel
// semantic + lexical search, Reciprocal Rank Fusion, and token-budgeted
// assembly. Recall never mutates state and never invokes Consolidation.
package recall

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"memoryengine/internal/bank"
	"memoryengine/internal/config"
	"memoryengine/internal/embedding"
	"memoryengine/internal/errs"
	"memoryengine/internal/store"
)

// defaultMaxResults and defaultTokenBudget bound Recall's output when the
// caller doesn't specify limits (§4.6 step 4).
const (
	defaultMaxResults = 20
	defaultTokenBudget = 4000

	// charsPerTokenEstimate is the crude token-length estimator §4.6 calls
	// for ("sum of unit text lengths scaled by an estimator").
	charsPerTokenEstimate = 4
)

// fanout bounds the number of leaf semantic/lexical search calls in flight
// across all concurrent Recall invocations in this process (§5: "search-side
// fan-out ≤ 32 across concurrent Recalls"). Package-level since the limit is
// process-wide, not per-call.
var fanout = semaphore.NewWeighted(int64(config.RecallFanoutLimit()))

// Options narrows and bounds one Recall call (§6).
type Options struct {
	MaxResults int
	FactTypes  []string
	Tags       []string
	// ExcludeObservations restricts the search to raw facts, the shape
	// Reflect's recall tool needs ("ranked raw facts, observations
	// excluded", §4.9).
	ExcludeObservations bool
	// RequireAllTags implements the `all_strict` tag-match mode Mental Model
	// refresh needs (§4.8): every returned unit must carry all of these
	// tags. Independent of Tags, which is an any-of match.
	RequireAllTags []string
}

// Hit is one unit in Recall's ordered output, with its fused score and the
// per-channel components that produced it (§4.6 step 5).
type Hit struct {
	Unit   store.MemoryUnit
	Scores ScoreComponents
}

// Pipeline wires the storage and embedding collaborators Recall needs.
type Pipeline struct {
	Store    *store.Store
	Embedder *embedding.Client
}

// New builds a Recall pipeline over the given collaborators.
func New(s *store.Store, embedder *embedding.Client) *Pipeline {
	return &Pipeline{Store: s, Embedder: embedder}
}

// Recall runs the full algorithm of §4.6 for one query.
func (p *Pipeline) Recall(ctx context.Context, bankIDRaw, query string, opts Options) ([]Hit, error) {
	bankID, err := bank.ParseID(bankIDRaw)
	if err != nil {
		return nil, fmt.Errorf("recall: %v: %w", err, errs.ErrInvalidInput)
	}
	if query == "" {
		return nil, fmt.Errorf("recall: query is empty: %w", errs.ErrInvalidInput)
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	queryVec, err := p.Embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("recall: embed query: %v: %w", err, errs.ErrUpstreamUnavailable)
	}

	filter := store.SearchFilter{FactTypes: opts.FactTypes, Tags: opts.Tags, ExcludeObservations: opts.ExcludeObservations, RequireAllTags: opts.RequireAllTags}
	kSem := maxResults * 3
	kLex := maxResults * 3

	var semHits []store.VectorResult
	var lexHits []store.LexicalResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := fanout.Acquire(gctx, 1); err != nil {
			return err
		}
		defer fanout.Release(1)
		hits, err := p.Store.VectorSearch(gctx, bankID, queryVec, kSem, filter)
		if err != nil {
			return fmt.Errorf("semantic search: %w", err)
		}
		semHits = hits
		return nil
	})
	g.Go(func() error {
		if err := fanout.Acquire(gctx, 1); err != nil {
			return err
		}
		defer fanout.Release(1)
		hits, err := p.Store.LexicalSearch(gctx, bankID, query, kLex, filter)
		if err != nil {
			return fmt.Errorf("lexical search: %w", err)
		}
		lexHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("recall: %v: %w", err, errs.ErrUpstreamUnavailable)
	}

	scores := fuseRRF(semHits, lexHits)
	if len(scores) == 0 {
		return nil, nil
	}

	units := make(map[uuid.UUID]store.MemoryUnit, len(scores))
	for id := range scores {
		u, err := p.Store.GetUnit(ctx, bankID, id)
		if err != nil {
			continue // a unit removed between search and fetch is silently skipped
		}
		units[id] = u
	}

	ids := make([]uuid.UUID, 0, len(units))
	for id := range units {
		ids = append(ids, id)
	}
	sort.SliceStable(ids, func(i, j int) bool {
		si, sj := scores[ids[i]].Fused, scores[ids[j]].Fused
		if si != sj {
			return si > sj
		}
		ui, uj := units[ids[i]], units[ids[j]]
		return ui.CreatedAt.After(uj.CreatedAt)
	})

	var out []Hit
	tokenBudget := defaultTokenBudget
	spent := 0
	for _, id := range ids {
		u, ok := units[id]
		if !ok {
			continue
		}
		if len(out) >= maxResults {
			break
		}
		cost := (len(u.Text) + charsPerTokenEstimate - 1) / charsPerTokenEstimate
		if len(out) > 0 && spent+cost > tokenBudget {
			break
		}
		spent += cost
		out = append(out, Hit{Unit: u, Scores: scores[id]})
	}
	return out, nil
}
