package stringutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTime(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "-", FormatTime(time.Time{}))

	ts := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-07-31T09:00:00Z", FormatTime(ts))
}

func TestParseTime(t *testing.T) {
	t.Parallel()

	got, err := ParseTime("-")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	got, err = ParseTime("2026-07-31T09:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC), got.UTC())
}

func TestTruncString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", TruncString("abcdef", 3))
	assert.Equal(t, "abc", TruncString("abc", 10))
}

func TestJoinNonEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a, b", JoinNonEmpty(", ", "a", "", "b"))
	assert.Equal(t, "", JoinNonEmpty(", "))
}
