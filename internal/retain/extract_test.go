package retain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"memoryengine/internal/bank"
)

func TestExtractionSystemPrompt_IncludesDelimiterAndMission(t *testing.T) {
	t.Parallel()

	b := bank.Bank{Mission: "Help the user track their career."}
	prompt := extractionSystemPrompt(b)

	require.Contains(t, prompt, "Help the user track their career.")
	require.Contains(t, prompt, contentDelimiter)
	require.Contains(t, prompt, "never produced by extraction")
}

func TestExtractionUserPrompt_WrapsContentInDelimiters(t *testing.T) {
	t.Parallel()

	prompt := extractionUserPrompt("Alice joined Acme.", "onboarding call")

	require.Contains(t, prompt, "onboarding call")
	require.Equal(t, 2, strings.Count(prompt, contentDelimiter), "content must be wrapped by exactly two delimiter markers")
}

func TestValidateFacts_DiscardsMalformedButKeepsGood(t *testing.T) {
	t.Parallel()

	facts := []extractedFact{
		{Text: "Alice joined Acme", FactType: "world", FactKind: "event", EventDate: "2024-06-01T00:00:00Z"},
		{Text: "", FactType: "world", FactKind: "event"},                     // empty text
		{Text: "bad type", FactType: "observation", FactKind: "event"},      // observation forbidden from extraction
		{Text: "bad kind", FactType: "world", FactKind: "nonsense"},         // invalid fact_kind
		{Text: "bad date", FactType: "world", FactKind: "event", EventDate: "not-a-date"},
	}

	var discarded []string
	valid := validateFacts(facts, func(reason string, f extractedFact) {
		discarded = append(discarded, reason)
	})

	require.Len(t, valid, 1)
	require.Equal(t, "Alice joined Acme", valid[0].Text)
	require.NotNil(t, valid[0].eventDate)
	require.Len(t, discarded, 4)
}

func TestValidateFacts_OmittedDatesAreOptional(t *testing.T) {
	t.Parallel()

	facts := []extractedFact{
		{Text: "Alice likes coffee", FactType: "experience", FactKind: "conversation"},
	}
	valid := validateFacts(facts, func(string, extractedFact) {})
	require.Len(t, valid, 1)
	require.Nil(t, valid[0].eventDate)
	require.Nil(t, valid[0].occurredStart)
	require.Nil(t, valid[0].occurredEnd)
}
