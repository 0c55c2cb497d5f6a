package taerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessageIncludesOpKindAndCause(t *testing.T) {
	err := New(Integrity, "objectstore.Get", errors.New("digest mismatch"))
	require.Contains(t, err.Error(), "objectstore.Get")
	require.Contains(t, err.Error(), "integrity")
	require.Contains(t, err.Error(), "digest mismatch")
}

func TestIsMatchesWrappedKind(t *testing.T) {
	err := New(NotFound, "ledger.GetLatestRecord", nil)
	require.True(t, Is(err, NotFound))
	require.False(t, Is(err, Conflict))
}

func TestKindOfDefaultsToInternalForForeignErrors(t *testing.T) {
	require.Equal(t, Internal, KindOf(errors.New("boom")))
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("root cause")
	err := New(External, "ledger.CreateRecord", cause)
	require.ErrorIs(t, err, cause)
}
