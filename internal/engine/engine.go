// Package engine is the top-level facade (§6): the three caller-facing
// operations (retain, recall, reflect) plus the initialize()/close()
// lifecycle (§4.10) that wires every collaborator together.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"memoryengine/internal/config"
	"memoryengine/internal/consolidate"
	"memoryengine/internal/embedding"
	"memoryengine/internal/errs"
	"memoryengine/internal/llmprovider"
	"memoryengine/internal/mentalmodel"
	"memoryengine/internal/observability"
	"memoryengine/internal/recall"
	"memoryengine/internal/reflect"
	"memoryengine/internal/retain"
	"memoryengine/internal/scheduler"
	"memoryengine/internal/store"
)

// RetainResult, RecallResult, and ReflectResult are the facade's
// caller-facing shapes (§6). RetainResult and ReflectResult are aliases of
// the pipeline packages' own result types, so callers of this package never
// need to import them; RecallResult is its own flattened struct below.
type RetainResult = retain.Result
type ReflectResult = reflect.Result

// RecallResult mirrors §6's `{results: [{id, text, score, fact_type, ...}]}`.
type RecallResult struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
	FactType string  `json:"fact_type"`
}

// Engine owns the process-wide DB pool and the lazily-initialized LLM and
// embedding client singletons (§5: "protected by a mutex at first access").
type Engine struct {
	initMu      sync.Mutex
	initialized bool

	store     *store.Store
	scheduler *scheduler.Scheduler

	llmMu sync.Mutex
	llm   llmprovider.Provider

	embedderMu sync.Mutex
	embedder   *embedding.Client

	retainP      *retain.Pipeline
	recallP      *recall.Pipeline
	reflectP     *reflect.Pipeline
	consolidateW *consolidate.Worker
	mentalW      *mentalmodel.Worker
}

// New constructs an unopened Engine. Call Initialize before using it.
func New() *Engine {
	return &Engine{}
}

// Initialize opens the DB pool (which also runs the schema migration — the
// vector extension and type are registered as part of that, §4.10) and
// starts exactly one consolidation task. Calling Initialize on an
// already-initialized Engine is a no-op.
func (e *Engine) Initialize(ctx context.Context) error {
	e.initMu.Lock()
	defer e.initMu.Unlock()
	if e.initialized {
		return nil
	}

	s, err := store.Open(ctx, config.DatabaseURL())
	if err != nil {
		return fmt.Errorf("engine: initialize: %w", err)
	}
	e.store = s

	llm, err := e.llmProvider()
	if err != nil {
		s.Close()
		e.store = nil
		return fmt.Errorf("engine: initialize: %w", err)
	}
	embedder := e.embeddingClient()

	e.retainP = retain.New(s, llm, embedder)
	e.recallP = recall.New(s, embedder)
	e.reflectP = reflect.New(s, llm, e.recallP)
	e.mentalW = mentalmodel.New(s, embedder, e.reflectP)
	e.consolidateW = consolidate.New(s, llm, embedder, e.recallP)
	e.consolidateW.MentalModels = e.mentalW

	interval := time.Duration(config.ConsolidationIntervalSeconds()) * time.Second
	e.scheduler = scheduler.New(e.consolidateW, interval)
	e.scheduler.Start(ctx)

	e.initialized = true
	return nil
}

// Close stops the consolidation task, then closes the DB pool. Idempotent.
func (e *Engine) Close() {
	e.initMu.Lock()
	defer e.initMu.Unlock()
	if !e.initialized {
		return
	}
	if e.scheduler != nil {
		e.scheduler.Stop()
	}
	if e.store != nil {
		e.store.Close()
	}
	e.initialized = false
	e.store = nil
	e.scheduler = nil
	e.retainP = nil
	e.recallP = nil
	e.reflectP = nil
	e.consolidateW = nil
	e.mentalW = nil
}

// llmProvider lazily builds the process-wide LLM client singleton (§5).
func (e *Engine) llmProvider() (llmprovider.Provider, error) {
	e.llmMu.Lock()
	defer e.llmMu.Unlock()
	if e.llm == nil {
		p, err := llmprovider.New()
		if err != nil {
			return nil, fmt.Errorf("build llm provider: %w", err)
		}
		e.llm = p
	}
	return e.llm, nil
}

// embeddingClient lazily builds the process-wide embedding client
// singleton (§5).
func (e *Engine) embeddingClient() *embedding.Client {
	e.embedderMu.Lock()
	defer e.embedderMu.Unlock()
	if e.embedder == nil {
		e.embedder = embedding.NewClient()
	}
	return e.embedder
}

const tracerName = "memoryengine/internal/engine"

// Retain runs the Retain pipeline (§4.5, §6).
func (e *Engine) Retain(ctx context.Context, bankID, content, callerContext string) (RetainResult, error) {
	if !e.initialized {
		return RetainResult{}, fmt.Errorf("engine: not initialized: %w", errs.ErrFatal)
	}
	ctx, span := observability.StartSpan(ctx, tracerName, "retain")
	defer span.End()
	return e.retainP.Retain(ctx, bankID, content, callerContext)
}

// Recall runs the Recall pipeline (§4.6, §6).
func (e *Engine) Recall(ctx context.Context, bankID, query string, maxResults int, factTypes, tags []string) ([]RecallResult, error) {
	if !e.initialized {
		return nil, fmt.Errorf("engine: not initialized: %w", errs.ErrFatal)
	}
	ctx, span := observability.StartSpan(ctx, tracerName, "recall")
	defer span.End()
	hits, err := e.recallP.Recall(ctx, bankID, query, recall.Options{MaxResults: maxResults, FactTypes: factTypes, Tags: tags})
	if err != nil {
		return nil, err
	}
	out := make([]RecallResult, len(hits))
	for i, h := range hits {
		out[i] = RecallResult{ID: h.Unit.ID.String(), Text: h.Unit.Text, Score: h.Scores.Fused, FactType: string(h.Unit.FactType)}
	}
	return out, nil
}

// Reflect runs the Reflect loop (§4.9, §6).
func (e *Engine) Reflect(ctx context.Context, bankID, query string, maxIterations int) (ReflectResult, error) {
	if !e.initialized {
		return ReflectResult{}, fmt.Errorf("engine: not initialized: %w", errs.ErrFatal)
	}
	ctx, span := observability.StartSpan(ctx, tracerName, "reflect")
	defer span.End()
	return e.reflectP.Reflect(ctx, bankID, query, maxIterations)
}

// RunConsolidationOnce runs a single consolidation pass synchronously, the
// CLI's `--once` mode (§4.10, §6).
func (e *Engine) RunConsolidationOnce(ctx context.Context) error {
	if !e.initialized {
		return fmt.Errorf("engine: not initialized: %w", errs.ErrFatal)
	}
	ctx, span := observability.StartSpan(ctx, tracerName, "consolidate")
	defer span.End()
	return e.consolidateW.RunOnce(ctx)
}
