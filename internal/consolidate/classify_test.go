package consolidate

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"memoryengine/internal/bank"
	"memoryengine/internal/store"
)

func TestClassifySystemPrompt_FencesContentAndStatesRules(t *testing.T) {
	t.Parallel()

	b := bank.Bank{Mission: "Help Alice manage her calendar."}
	prompt := classifySystemPrompt(b)

	require.Contains(t, prompt, "Help Alice manage her calendar.")
	require.Contains(t, prompt, "Never merge")
	require.Equal(t, 2, strings.Count(prompt, contentDelimiter))
}

func TestClassifyUserPrompt_ListsCandidatesAndFencesFact(t *testing.T) {
	t.Parallel()

	fact := store.MemoryUnit{Text: "Alice joined Acme", Who: []string{"Alice"}, What: "joined Acme"}
	candidates := []store.MemoryUnit{
		{ID: uuid.New(), Text: "Alice works at Acme as an engineer"},
	}
	prompt := classifyUserPrompt(fact, candidates)

	require.Contains(t, prompt, "Alice joined Acme")
	require.Contains(t, prompt, candidates[0].ID.String())
	require.Equal(t, 2, strings.Count(prompt, contentDelimiter))
}

func TestClassifyUserPrompt_NoCandidates(t *testing.T) {
	t.Parallel()

	fact := store.MemoryUnit{Text: "Alice joined Acme"}
	prompt := classifyUserPrompt(fact, nil)

	require.Contains(t, prompt, "No existing observations")
}

func TestValidateAction_Create(t *testing.T) {
	t.Parallel()

	actions := []classifyAction{{Action: "create", Text: "Alice works at Acme", Reason: "new fact"}}
	got := validateAction(actions, nil)

	require.Equal(t, actionCreate, got.Kind)
	require.Equal(t, "Alice works at Acme", got.Text)
}

func TestValidateAction_UpdateRequiresKnownLearningID(t *testing.T) {
	t.Parallel()

	known := uuid.New()
	candidates := []store.MemoryUnit{{ID: known}}

	valid := []classifyAction{{Action: "update", LearningID: known.String(), Text: "merged text"}}
	got := validateAction(valid, candidates)
	require.Equal(t, actionUpdate, got.Kind)
	require.Equal(t, known, got.LearningID)

	unknown := []classifyAction{{Action: "update", LearningID: uuid.New().String(), Text: "merged text"}}
	got = validateAction(unknown, candidates)
	require.Equal(t, actionSkip, got.Kind)

	malformed := []classifyAction{{Action: "update", LearningID: "not-a-uuid", Text: "x"}}
	got = validateAction(malformed, candidates)
	require.Equal(t, actionSkip, got.Kind)
}

func TestValidateAction_EmptyTextFallsThrough(t *testing.T) {
	t.Parallel()

	actions := []classifyAction{{Action: "create", Text: ""}}
	got := validateAction(actions, nil)
	require.Equal(t, actionSkip, got.Kind)
}

func TestValidateAction_NoActionsDefaultsToSkip(t *testing.T) {
	t.Parallel()

	got := validateAction(nil, nil)
	require.Equal(t, actionSkip, got.Kind)
}

func TestValidateAction_SkipIsAlwaysAccepted(t *testing.T) {
	t.Parallel()

	actions := []classifyAction{{Action: "skip", Reason: "already known"}}
	got := validateAction(actions, nil)
	require.Equal(t, actionSkip, got.Kind)
	require.Equal(t, "already known", got.Reason)
}
