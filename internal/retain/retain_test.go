package retain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateInputLengths(t *testing.T) {
	t.Parallel()

	require.Error(t, validateInputLengths("", ""))
	require.Error(t, validateInputLengths(strings.Repeat("a", maxContentLength+1), ""))
	require.Error(t, validateInputLengths("ok", strings.Repeat("a", maxContextLength+1)))
	require.NoError(t, validateInputLengths("ok", "also ok"))
}

func TestEmbedInput_AugmentsWithWhy(t *testing.T) {
	t.Parallel()

	bare := validFact{extractedFact: extractedFact{Text: "Alice joined Acme"}}
	require.Equal(t, "Alice joined Acme", embedInput(bare))

	augmented := validFact{extractedFact: extractedFact{Text: "Alice joined Acme", WhyDescription: "career change"}}
	require.Equal(t, "Alice joined Acme career change", embedInput(augmented))
}
