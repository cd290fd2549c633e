package recall

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"memoryengine/internal/errs"
)

func TestRecall_InvalidBankID(t *testing.T) {
	t.Parallel()

	p := &Pipeline{}
	_, err := p.Recall(context.Background(), "not-a-uuid", "where does alice work", Options{})
	require.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestRecall_EmptyQuery(t *testing.T) {
	t.Parallel()

	p := &Pipeline{}
	_, err := p.Recall(context.Background(), "b47ac10b-58cc-4372-a567-0e02b2c3d479", "", Options{})
	require.ErrorIs(t, err, errs.ErrInvalidInput)
}
