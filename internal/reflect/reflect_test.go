package reflect

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"memoryengine/internal/bank"
	"memoryengine/internal/llmprovider"
)

func testBank(directives []string) bank.Bank {
	return bank.Bank{Mission: "test bank", Directives: directives}
}

func msgWithNoCalls() llmprovider.Message {
	return llmprovider.Message{Role: "assistant", Content: "plain text, no tool call"}
}

func TestFinalize_StripsUnseenCitedIDs(t *testing.T) {
	t.Parallel()

	seen := seenIDs{}
	known := uuid.New()
	seen.add(known)

	unknown := uuid.New()
	args := doneArgs{Answer: "Alice works at Acme.", CitedIDs: []string{known.String(), unknown.String(), "not-a-uuid"}}

	p := &Pipeline{}
	result, retry, err := p.finalize(t.Context(), testBank(nil), seen, args, boolPtr(true))
	require.NoError(t, err)
	require.False(t, retry)
	require.Equal(t, []uuid.UUID{known}, result.CitedIDs)
}

func TestFinalize_RejectsNonTrivialAnswerWithNoEvidence(t *testing.T) {
	t.Parallel()

	seen := seenIDs{}
	args := doneArgs{Answer: "Alice works at Acme.", CitedIDs: nil}

	p := &Pipeline{}
	_, retry, err := p.finalize(t.Context(), testBank(nil), seen, args, boolPtr(true))
	require.NoError(t, err)
	require.True(t, retry, "a non-trivial answer with zero surviving citations must be rejected and retried")
}

func TestFinalize_EmptyAnswerNeedsNoEvidence(t *testing.T) {
	t.Parallel()

	seen := seenIDs{}
	args := doneArgs{Answer: "", CitedIDs: nil}

	p := &Pipeline{}
	result, retry, err := p.finalize(t.Context(), testBank(nil), seen, args, boolPtr(true))
	require.NoError(t, err)
	require.False(t, retry)
	require.Empty(t, result.CitedIDs)
}

func TestFirstToolCall(t *testing.T) {
	t.Parallel()

	_, ok := firstToolCall(msgWithNoCalls())
	require.False(t, ok)
}

func boolPtr(b bool) *bool { return &b }
