package reflect

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestClamp(t *testing.T) {
	t.Parallel()

	require.Equal(t, 20, clamp(0, 1, 20))   // unset/zero defaults to the ceiling
	require.Equal(t, 20, clamp(999, 1, 20)) // over ceiling clamps down
	require.Equal(t, 5, clamp(5, 1, 20))
	require.Equal(t, 1, clamp(-3, 1, 20))
}

func TestIntArg_MissingReturnsDefault(t *testing.T) {
	t.Parallel()

	require.Equal(t, 7, intArg(map[string]any{}, "max_results", 7))
	require.Equal(t, 3, intArg(map[string]any{"max_results": float64(3)}, "max_results", 7))
	require.Equal(t, 7, intArg(map[string]any{"max_results": "not-a-number"}, "max_results", 7))
}

func TestStringArg(t *testing.T) {
	t.Parallel()

	require.Equal(t, "hello", stringArg(map[string]any{"query": "hello"}, "query"))
	require.Equal(t, "", stringArg(map[string]any{}, "query"))
}

func TestStringsArg(t *testing.T) {
	t.Parallel()

	args := map[string]any{"tags": []any{"a", "b", 3}}
	require.Equal(t, []string{"a", "b"}, stringsArg(args, "tags"))
	require.Nil(t, stringsArg(map[string]any{}, "tags"))
}

func TestSeenIDs_Add(t *testing.T) {
	t.Parallel()

	seen := seenIDs{}
	require.Empty(t, seen)

	a, b := uuid.New(), uuid.New()
	seen.add(a, b, a)
	require.Len(t, seen, 2)
	require.True(t, seen[a])
	require.True(t, seen[b])
}
