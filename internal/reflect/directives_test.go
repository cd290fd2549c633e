package reflect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckDirectives_NoOpWithNoDirectives(t *testing.T) {
	t.Parallel()

	verdict, err := checkDirectives(t.Context(), nil, "unused-model", nil, "any answer")
	require.NoError(t, err)
	require.False(t, verdict.Violated)
}

func TestDirectiveCheckSystemPrompt_ListsEachDirective(t *testing.T) {
	t.Parallel()

	prompt := directiveCheckSystemPrompt([]string{"Never give financial advice.", "Always cite sources."})
	require.Contains(t, prompt, "Never give financial advice.")
	require.Contains(t, prompt, "Always cite sources.")
}

func TestDirectiveCheckSystemPrompt_EmptyWhenNoDirectives(t *testing.T) {
	t.Parallel()

	require.Empty(t, directiveCheckSystemPrompt(nil))
}
