package main

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunConsolidate_RequiresOnceOrInterval(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example/db")

	err := runConsolidate(t.Context(), false, 0)
	require.Error(t, err)
	var cfgErr *configError
	require.True(t, errors.As(err, &cfgErr))
}

func TestRunConsolidate_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	os.Unsetenv("DATABASE_URL")

	err := runConsolidate(t.Context(), true, 0)
	require.Error(t, err)
	var cfgErr *configError
	require.True(t, errors.As(err, &cfgErr))
}

func TestAsConfigError(t *testing.T) {
	var target *configError
	require.True(t, asConfigError(&configError{errors.New("boom")}, &target))
	require.NotNil(t, target)

	target = nil
	require.False(t, asConfigError(errors.New("plain"), &target))
	require.Nil(t, target)
}
