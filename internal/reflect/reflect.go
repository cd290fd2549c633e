// Package reflect implements the Reflect loop (C9, §4.9): a bounded,
// single-threaded tool-use conversation over a fixed five-tool catalog
// (search_mental_models, search_observations, recall, expand, done) that
// answers a query grounded only in a bank's own memory.
package reflect

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"memoryengine/internal/bank"
	"memoryengine/internal/config"
	"memoryengine/internal/errs"
	"memoryengine/internal/llmprovider"
	"memoryengine/internal/observability"
	"memoryengine/internal/recall"
	"memoryengine/internal/store"
)

// defaultMaxIterations is the loop bound for an ordinary Reflect call; Mental
// Model generation passes a tighter 5 (§4.8).
const defaultMaxIterations = 10

// timeout is the end-to-end wall-clock bound for one Reflect invocation
// (§4.9: "300s end-to-end timeout surfaces as TIMEOUT").
const timeout = 300 * time.Second

// doneArgs is the shape of the `done` tool's arguments.
type doneArgs struct {
	Answer   string   `json:"answer"`
	CitedIDs []string `json:"cited_ids"`
}

var doneSchema = llmprovider.ToolSchema{
	Name:        "done",
	Description: "Finish the loop with a final answer and the ids of every tool result it relies on.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"answer":    map[string]any{"type": "string"},
			"cited_ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"answer", "cited_ids"},
	},
}

// Result is the outcome of one Reflect call (§6).
type Result struct {
	Answer     string
	CitedIDs   []uuid.UUID
	Iterations int
}

// Pipeline wires the storage, LLM, and recall collaborators Reflect needs.
type Pipeline struct {
	Store  *store.Store
	LLM    llmprovider.Provider
	Recall *recall.Pipeline
}

// New builds a Reflect pipeline over the given collaborators.
func New(s *store.Store, llm llmprovider.Provider, rp *recall.Pipeline) *Pipeline {
	return &Pipeline{Store: s, LLM: llm, Recall: rp}
}

// Reflect runs the loop of §4.9 for one query. maxIterations <= 0 defaults to
// 10; Mental Model generation/refresh passes 5.
func (p *Pipeline) Reflect(ctx context.Context, bankIDRaw, query string, maxIterations int) (Result, error) {
	return p.reflect(ctx, bankIDRaw, query, maxIterations, nil)
}

// ReflectScoped behaves exactly like Reflect but additionally forces every
// search_observations/recall tool call into the `all_strict` tag-match mode
// (§4.8): only units carrying every tag in requireAllTags are visible,
// regardless of what the model itself asks for. Used by Mental Model
// refresh for a tagged model, so a refresh can't pull in data scoped to a
// different tag than the model it's updating.
func (p *Pipeline) ReflectScoped(ctx context.Context, bankIDRaw, query string, maxIterations int, requireAllTags []string) (Result, error) {
	return p.reflect(ctx, bankIDRaw, query, maxIterations, requireAllTags)
}

func (p *Pipeline) reflect(ctx context.Context, bankIDRaw, query string, maxIterations int, requireAllTags []string) (Result, error) {
	bankID, err := bank.ParseID(bankIDRaw)
	if err != nil {
		return Result{}, fmt.Errorf("reflect: %v: %w", err, errs.ErrInvalidInput)
	}
	if query == "" {
		return Result{}, fmt.Errorf("reflect: query is empty: %w", errs.ErrInvalidInput)
	}
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}

	b, err := p.Store.GetBank(ctx, bankID)
	if err != nil {
		return Result{}, fmt.Errorf("reflect: load bank %s: %w", bankID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	seen := seenIDs{}
	toolset := buildTools(bankID, p.Store, p.Recall, seen, requireAllTags)
	schemas := make([]llmprovider.ToolSchema, 0, len(toolset)+1)
	for _, t := range toolset {
		schemas = append(schemas, t.schema)
	}
	schemas = append(schemas, doneSchema)

	msgs := []llmprovider.Message{
		{Role: "system", Content: loopSystemPrompt(b)},
		{Role: "user", Content: query},
	}

	log := observability.LoggerWithTrace(ctx)
	remindedDirectives := false

	for iter := 1; iter <= maxIterations; iter++ {
		reply, err := p.LLM.Chat(ctx, msgs, schemas, config.ReflectModelID())
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, fmt.Errorf("reflect: %w", errs.ErrTimeout)
			}
			return Result{}, fmt.Errorf("reflect: chat: %v: %w", err, errs.ErrUpstreamUnavailable)
		}

		// Single-threaded by contract (§4.9: "at most one tool call is in
		// flight at a time") — only the first requested call is honored per
		// turn, even if the model asks for several.
		call, ok := firstToolCall(reply)
		if !ok {
			// The model answered in plain text without calling `done`;
			// treat its content as the answer and run it through the same
			// guardrails a `done` call would face.
			result, retry, err := p.finalize(ctx, b, seen, doneArgs{Answer: reply.Content}, &remindedDirectives)
			if err != nil {
				return Result{}, err
			}
			if !retry {
				result.Iterations = iter
				return result, nil
			}
			msgs = append(msgs, llmprovider.Message{Role: "assistant", Content: reply.Content}, retryReminder())
			continue
		}

		msgs = append(msgs, llmprovider.Message{Role: "assistant", Content: reply.Content, ToolCalls: []llmprovider.ToolCall{call}})

		if call.Name == "done" {
			var args doneArgs
			if err := json.Unmarshal(call.Args, &args); err != nil {
				msgs = append(msgs, toolResultMessage(call.ID, fmt.Sprintf("malformed done arguments: %v", err)))
				continue
			}
			result, retry, err := p.finalize(ctx, b, seen, args, &remindedDirectives)
			if err != nil {
				return Result{}, err
			}
			if !retry {
				result.Iterations = iter
				return result, nil
			}
			msgs = append(msgs, toolResultMessage(call.ID, "guardrail failed, see reminder"), retryReminder())
			continue
		}

		t, ok := toolset[call.Name]
		if !ok {
			msgs = append(msgs, toolResultMessage(call.ID, fmt.Sprintf("unknown tool %q", call.Name)))
			continue
		}
		var args map[string]any
		if len(call.Args) > 0 {
			if err := json.Unmarshal(call.Args, &args); err != nil {
				msgs = append(msgs, toolResultMessage(call.ID, fmt.Sprintf("malformed arguments: %v", err)))
				continue
			}
		}
		out, err := t.execute(ctx, args)
		if err != nil {
			log.Warn().Err(err).Str("tool", call.Name).Str("bank_id", bankID.String()).
				RawJSON("args", observability.RedactJSON(call.Args)).Msg("reflect: tool call failed")
			msgs = append(msgs, toolResultMessage(call.ID, fmt.Sprintf("error: %v", err)))
			continue
		}
		encoded, _ := json.Marshal(out)
		msgs = append(msgs, toolResultMessage(call.ID, string(encoded)))
	}

	// §4.9: exhausting the iteration cap without a `done` call is not an
	// error — finalize with a "no confident answer" response.
	log.Warn().Str("bank_id", bankID.String()).Int("max_iterations", maxIterations).Msg("reflect: exhausted iterations without a done call")
	return Result{Answer: "No confident answer could be produced within the iteration limit.", Iterations: maxIterations}, nil
}

// finalize applies the `done` guardrails (§4.9) to a candidate answer.
// retry=true means the loop should continue with one more iteration rather
// than fail outright.
func (p *Pipeline) finalize(ctx context.Context, b bank.Bank, seen seenIDs, args doneArgs, remindedDirectives *bool) (Result, bool, error) {
	citedRaw := args.CitedIDs
	var cited []uuid.UUID
	for _, raw := range citedRaw {
		id, err := uuid.Parse(raw)
		if err != nil || !seen[id] {
			continue // guardrail 1: hallucinated/unseen ids are silently stripped
		}
		cited = append(cited, id)
	}

	nonTrivial := len(args.Answer) > 0
	if nonTrivial && len(cited) == 0 {
		return Result{}, true, nil // guardrail 2: no surviving evidence for a non-trivial answer
	}

	if !*remindedDirectives {
		verdict, err := checkDirectives(ctx, p.LLM, config.ReflectModelID(), b.Directives, args.Answer)
		if err != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("reflect: directive check failed, allowing answer through")
		} else if verdict.Violated {
			*remindedDirectives = true // guardrail 3: one extra iteration, then accept regardless
			return Result{}, true, nil
		}
	}

	return Result{Answer: args.Answer, CitedIDs: cited}, false, nil
}

func firstToolCall(msg llmprovider.Message) (llmprovider.ToolCall, bool) {
	if len(msg.ToolCalls) == 0 {
		return llmprovider.ToolCall{}, false
	}
	return msg.ToolCalls[0], true
}

func toolResultMessage(toolID, content string) llmprovider.Message {
	return llmprovider.Message{Role: "tool", ToolID: toolID, Content: content}
}

func retryReminder() llmprovider.Message {
	return llmprovider.Message{Role: "user", Content: "Your answer either cited no traceable evidence or conflicted with a bank directive. Revise and call `done` again, grounding every claim in a tool result you have already retrieved."}
}

func loopSystemPrompt(b bank.Bank) string {
	preamble := b.SystemPreamble()
	return preamble + "\n\nYou are reflecting on this bank's own memory to answer a question. " +
		"Use search_mental_models, search_observations, recall, and expand to gather evidence, then call " +
		"done with your answer and the ids of every result you relied on. Never answer from outside " +
		"knowledge the tools didn't surface."
}
