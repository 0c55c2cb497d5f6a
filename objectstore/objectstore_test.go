package objectstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	blob := []byte("encrypted bytes go here")
	path, digest, err := s.Put("P001", 1, blob, "")
	require.NoError(t, err)
	require.Equal(t, Hash(blob), digest)

	got, err := s.Get(path)
	require.NoError(t, err)
	require.Equal(t, blob, got)
}

func TestPutLayoutIncludesConditionAndVersion(t *testing.T) {
	base := t.TempDir()
	s, err := Open(base)
	require.NoError(t, err)

	path, _, err := s.Put("P003", 1, []byte("x"), "cardio")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(base, "cardio", "P003", "v1.bin"), path)
}

func TestPutDefaultsToGeneralCondition(t *testing.T) {
	base := t.TempDir()
	s, err := Open(base)
	require.NoError(t, err)

	path, _, err := s.Put("P001", 2, []byte("x"), "")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(base, "general", "P001", "v2.bin"), path)
}

func TestGetRejectsPathEscapingBase(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(filepath.Join(s.baseDir, "..", "..", "etc", "passwd"))
	require.Error(t, err)
}

func TestHashIsSHA256Hex(t *testing.T) {
	h := Hash([]byte("hello"))
	require.Len(t, h, 64)
}
