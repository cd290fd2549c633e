package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"memoryengine/internal/errs"
)

func TestEngine_OperationsFailFastBeforeInitialize(t *testing.T) {
	t.Parallel()

	e := New()
	ctx := t.Context()

	_, err := e.Retain(ctx, "00000000-0000-0000-0000-000000000001", "hello", "")
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrFatal))

	_, err = e.Recall(ctx, "00000000-0000-0000-0000-000000000001", "hello", 10, nil, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrFatal))

	_, err = e.Reflect(ctx, "00000000-0000-0000-0000-000000000001", "hello", 5)
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrFatal))

	err = e.RunConsolidationOnce(ctx)
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrFatal))
}

func TestEngine_CloseBeforeInitializeIsNoOp(t *testing.T) {
	t.Parallel()

	e := New()
	e.Close() // must not panic
}
