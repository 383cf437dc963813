package apierr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	err := NotFound("project", "p1")
	require.True(t, errors.Is(err, ErrNotFound))
	require.False(t, errors.Is(err, ErrValidation))
}

func TestDependencyUnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Dependency("store unavailable", cause)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "connection refused")
}

func TestAsExtractsConcreteError(t *testing.T) {
	wrapped := errors.New("boom")
	_, ok := As(wrapped)
	require.False(t, ok)

	e, ok := As(Field("path", "required"))
	require.True(t, ok)
	require.Equal(t, KindValidation, e.Kind)
	require.Equal(t, "required", e.Fields["path"])
}

func TestFieldBuildsSingleFieldValidation(t *testing.T) {
	err := Field("topic", "required")
	require.Equal(t, KindValidation, err.Kind)
	require.Equal(t, map[string]string{"topic": "required"}, err.Fields)
}
