package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestThreshold(t *testing.T) {
	k, err := Threshold(High)
	require.NoError(t, err)
	require.Equal(t, 2, k)

	k, err = Threshold(Medium)
	require.NoError(t, err)
	require.Equal(t, 3, k)

	k, err = Threshold(Low)
	require.NoError(t, err)
	require.Equal(t, 4, k)

	_, err = Threshold("URGENT")
	require.Error(t, err)
}

func TestClamp(t *testing.T) {
	require.Equal(t, High, Clamp(Medium, High))
	require.Equal(t, High, Clamp(High, High))
	require.Equal(t, Medium, Clamp(Low, Medium))
	require.Equal(t, Low, Clamp(Low, ""))
}

func TestNormalize(t *testing.T) {
	require.Equal(t, High, Normalize("high"))
	require.Equal(t, Medium, Normalize("banana"))
	require.Equal(t, Low, Normalize(" LOW "))
}

func TestRankOrder(t *testing.T) {
	require.Greater(t, Rank(High), Rank(Medium))
	require.Greater(t, Rank(Medium), Rank(Low))
	require.Equal(t, 0, Rank("UNKNOWN"))
}
