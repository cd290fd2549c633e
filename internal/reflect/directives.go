package reflect

import (
	"context"
	"fmt"

	"memoryengine/internal/llmprovider"
)

// directiveVerdict is the decoded reply of the directive post-check: §4.9
// requires directives be "enforced as a post-check" but names no
// mechanism, so this reuses the same deterministic-Extract pattern
// Consolidation's classifier uses (§4.7) rather than inventing string
// matching — directives are natural-language policy statements ("never
// give financial advice"), and only a model call can judge whether a
// free-form answer actually violates one.
type directiveVerdict struct {
	Violated bool   `json:"violated"`
	Reason   string `json:"reason"`
}

func directiveCheckSystemPrompt(directives []string) string {
	if len(directives) == 0 {
		return ""
	}
	prompt := "You are a compliance checker. You will be given a candidate answer and a list of directives " +
		"the answering agent must never violate. Reply with a JSON object {\"violated\": bool, \"reason\": string} " +
		"and nothing else. Set violated=true only if the answer clearly contradicts a directive; " +
		"when in doubt, set violated=false.\n\nDirectives:\n"
	for _, d := range directives {
		prompt += "- " + d + "\n"
	}
	return prompt
}

// checkDirectives runs the post-check (§4.9 guardrail 3). It is a no-op
// (never violated) when the bank defines no directives.
func checkDirectives(ctx context.Context, p llmprovider.Provider, model string, directives []string, answer string) (directiveVerdict, error) {
	if len(directives) == 0 {
		return directiveVerdict{}, nil
	}
	var v directiveVerdict
	err := llmprovider.Extract(ctx, p, directiveCheckSystemPrompt(directives), answer, model, &v)
	if err != nil {
		return directiveVerdict{}, fmt.Errorf("directive check: %w", err)
	}
	return v, nil
}
