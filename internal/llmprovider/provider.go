// Package llmprovider defines the model-agnostic chat contract the engine's
// Retain (C5 extraction), Consolidation (C7 classification), and Reflect
// (C9 tool-use loop) subsystems call through, plus adapters for Anthropic,
// OpenAI, and Google. Grounded on internal/llm/provider.go and
// internal/llm/{anthropic,openai,google}/client.go, simplified to a single
// non-streaming Chat call: §1 explicitly excludes streaming partial
// results, so ChatStream/StreamHandler/thought-signature/image plumbing is
// dropped rather than adapted.
package llmprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"memoryengine/internal/config"
)

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// Message is one turn of a chat conversation.
type Message struct {
	Role      string // "system" | "user" | "assistant" | "tool"
	Content   string
	ToolID    string // set on role="tool" messages, echoes the ToolCall.ID it answers
	ToolCalls []ToolCall
}

// ToolSchema describes one callable tool for the model's function-calling API.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatOptions configures a single Chat call. The zero value lets the backend
// use its own default sampling settings.
type ChatOptions struct {
	// Temperature, when non-nil, is passed through verbatim. Extract (and so
	// Consolidation's classification, which calls it) sets this to 0.0 for
	// deterministic output per §4.3; Reflect's own Chat calls leave it unset.
	Temperature *float64
}

// ChatOption mutates ChatOptions; see WithTemperature.
type ChatOption func(*ChatOptions)

// WithTemperature pins the sampling temperature for one Chat call.
func WithTemperature(t float64) ChatOption {
	return func(o *ChatOptions) { o.Temperature = &t }
}

func applyChatOptions(opts []ChatOption) ChatOptions {
	var o ChatOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Provider is the contract every backend (Anthropic, OpenAI, Google) implements.
type Provider interface {
	Chat(ctx context.Context, msgs []Message, tools []ToolSchema, model string, opts ...ChatOption) (Message, error)
}

// New selects a Provider implementation per config.LLMProvider().
func New() (Provider, error) {
	switch config.LLMProvider() {
	case "anthropic":
		return NewAnthropic(), nil
	case "openai":
		return NewOpenAI(), nil
	case "google":
		return NewGoogle(), nil
	default:
		return nil, fmt.Errorf("llmprovider: unknown provider %q", config.LLMProvider())
	}
}

// Extract makes a deterministic (temperature 0) call whose reply must decode
// as JSON into `out`, used by Retain's 5W1H extraction (§4.5), Consolidation's
// classification (§4.7), and Reflect's directive post-check (§4.9). §4.3
// requires "robust parsing (tolerate leading/trailing prose, strip code
// fences, reject on schema violation)": a model told to reply with nothing
// but JSON still sometimes wraps it in a code fence, or prefaces it with a
// sentence like "Here are the extracted facts:". Extract strips a code fence
// first, tries a direct unmarshal, and — only if that fails — falls back to
// locating the outer `[...]`/`{...}` value inside any surrounding prose and
// retrying against that substring. A schema violation (valid JSON, wrong
// shape) still surfaces as an error either way.
func Extract(ctx context.Context, p Provider, system, userPrompt, model string, out any) error {
	msgs := []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: userPrompt},
	}
	reply, err := p.Chat(ctx, msgs, nil, model, WithTemperature(0.0))
	if err != nil {
		return fmt.Errorf("extract: chat: %w", err)
	}
	raw := stripCodeFence(reply.Content)
	if err := json.Unmarshal(raw, out); err == nil {
		return nil
	}
	body := extractJSONValue(raw)
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("extract: unmarshal reply: %w", err)
	}
	return nil
}

// stripCodeFence strips a surrounding ```json ... ``` (or bare ```) fence a
// model sometimes wraps its JSON reply in, despite being told not to.
func stripCodeFence(s string) []byte {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return []byte(trimmed)
	}
	nl := strings.IndexByte(trimmed, '\n')
	if nl == -1 {
		return []byte(trimmed)
	}
	body := trimmed[nl+1:]
	if end := strings.LastIndex(body, "```"); end != -1 {
		body = body[:end]
	}
	return []byte(strings.TrimSpace(body))
}

// extractJSONValue locates the first top-level JSON array or object in b and
// returns the substring from its opening bracket through its matching
// closing bracket, discarding any leading/trailing prose a model added
// around it (§4.3). Returns b unchanged if no opening bracket is found.
func extractJSONValue(b []byte) []byte {
	start := -1
	var open, close byte
	for i, c := range b {
		if c == '[' || c == '{' {
			start = i
			open = c
			if open == '[' {
				close = ']'
			} else {
				close = '}'
			}
			break
		}
	}
	if start == -1 {
		return b
	}
	end := bytes.LastIndexByte(b[start:], close)
	if end == -1 {
		return b
	}
	return b[start : start+end+1]
}
