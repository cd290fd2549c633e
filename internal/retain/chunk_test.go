package retain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitChunks_ShortTextUnsplit(t *testing.T) {
	t.Parallel()

	chunks := splitChunks("a short fact", 800)
	require.Equal(t, []string{"a short fact"}, chunks)
}

func TestSplitChunks_LongTextSplitsOnWhitespace(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("word ", 400) // 2000 chars
	chunks := splitChunks(text, 800)

	require.Greater(t, len(chunks), 1)
	reassembled := strings.Join(chunks, " ")
	require.Equal(t, strings.Join(strings.Fields(text), " "), strings.Join(strings.Fields(reassembled), " "))
	for _, c := range chunks {
		require.LessOrEqual(t, len(c), 800)
	}
}

func TestSplitChunks_EmptyText(t *testing.T) {
	t.Parallel()

	require.Empty(t, splitChunks("", 800))
}
