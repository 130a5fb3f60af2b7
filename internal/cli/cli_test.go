package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSplitList(t *testing.T) {
	require.Nil(t, splitList(""))
	require.Equal(t, []string{"a"}, splitList("a"))
	require.Equal(t, []string{"a", "b"}, splitList("a,b"))
	require.Equal(t, []string{"a", "b"}, splitList(" a , b "))
	require.Equal(t, []string{"a", "b"}, splitList("a,,b,"))
}

func TestParseExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	got, err := parseExpiry("7d", now)
	require.NoError(t, err)
	require.True(t, got.Equal(now.Add(7*24*time.Hour)))

	got, err = parseExpiry("90m", now)
	require.NoError(t, err)
	require.True(t, got.Equal(now.Add(90*time.Minute)))

	got, err = parseExpiry("2026-06-01T00:00:00Z", now)
	require.NoError(t, err)
	require.True(t, got.Equal(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)))

	for _, bad := range []string{"soon", "7", "d7", "7w", "2026-06-01"} {
		_, err := parseExpiry(bad, now)
		require.Error(t, err, "input %q", bad)
	}
}
