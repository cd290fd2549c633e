// Package bank defines the tenant partition every memory-engine operation
// is scoped by: identity, persona framing for LLM calls, and the
// disposition→prompt mapping used by Reflect (§3, §4.9).
package bank

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Disposition is the (skepticism, literalism, empathy) triple that shapes
// Reflect's system prompt. Each axis is in {1..5}; 3 is neutral.
type Disposition struct {
	Skepticism int
	Literalism int
	Empathy    int
}

// Bank is a tenant-level partition owning a persona and all downstream data.
type Bank struct {
	ID          uuid.UUID
	Mission     string
	Background  string
	Disposition Disposition
	Directives  []string
}

// ParseID checks that id is a well-formed bank identifier, per §6's
// "validated as UUID-shaped" contract. Returns errs.ErrInvalidInput-wrapped
// errors via the caller; this package only parses.
func ParseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("bank id %q is not UUID-shaped: %w", raw, err)
	}
	return id, nil
}

// skepticismStances is the fixed disposition→prompt reference mapping
// (§4.9). Index 0 is unused (axis values are 1-based).
var skepticismStances = [6]string{
	"",
	"Take stated claims at face value.",
	"Lightly question extraordinary claims.",
	"",
	"Prefer hedged claims; look for at least one corroborating source before asserting strongly.",
	"Prefer hedged claims; demand at least two independent sources before any strong assertion.",
}

var literalismStances = [6]string{
	"",
	"Favor the most charitable, inferred reading of the question.",
	"Lean toward inferring intent over literal wording.",
	"",
	"Answer what was literally asked before inferring intent.",
	"Answer only what was literally asked; do not infer unstated intent.",
}

var empathyStances = [6]string{
	"",
	"Be terse and strictly factual.",
	"Keep a neutral, businesslike tone.",
	"",
	"Acknowledge the user's situation briefly before answering.",
	"Lead with acknowledgment of the user's situation; be warm and supportive throughout.",
}

func clampAxis(v int) int {
	if v < 1 || v > 5 {
		return 3
	}
	return v
}

// StanceSentences renders the disposition triple into the short stance
// sentences prepended to Reflect's system prompt. Neutral axes (3) are
// omitted entirely.
func (d Disposition) StanceSentences() []string {
	out := make([]string, 0, 3)
	if s := skepticismStances[clampAxis(d.Skepticism)]; s != "" {
		out = append(out, s)
	}
	if s := literalismStances[clampAxis(d.Literalism)]; s != "" {
		out = append(out, s)
	}
	if s := empathyStances[clampAxis(d.Empathy)]; s != "" {
		out = append(out, s)
	}
	return out
}

// SystemPreamble builds the persona framing prepended to every LLM call made
// on this bank's behalf: mission framing for extraction/consolidation (§4.5,
// §4.7) and the fuller disposition-aware preamble for Reflect (§4.9).
func (b Bank) SystemPreamble() string {
	var sb strings.Builder
	if b.Mission != "" {
		sb.WriteString("Mission: ")
		sb.WriteString(b.Mission)
		sb.WriteString("\n")
	}
	if b.Background != "" {
		sb.WriteString("Background: ")
		sb.WriteString(b.Background)
		sb.WriteString("\n")
	}
	for _, s := range b.Disposition.StanceSentences() {
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	if len(b.Directives) > 0 {
		sb.WriteString("Directives (must be followed):\n")
		for i, d := range b.Directives {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, d))
		}
	}
	return sb.String()
}
