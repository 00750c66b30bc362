package probe_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayrun-org/dayrun/internal/probe"
)

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0600))
	return path
}

func TestCountFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.csv", 100)
	writeFile(t, dir, "b.csv", 100)
	writeFile(t, dir, "tiny.csv", 5)
	writeFile(t, dir, "other.txt", 100)

	p := probe.New()
	ctx := context.Background()

	count, err := p.CountFiles(ctx, dir, "*.csv", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = p.CountFiles(ctx, dir, "*.csv", 50, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCountFilesMissingDir(t *testing.T) {
	t.Parallel()

	p := probe.New()
	count, err := p.CountFiles(context.Background(), filepath.Join(t.TempDir(), "nope"), "*.csv", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestCountFilesStability(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "stable.csv", 100)
	growing := writeFile(t, dir, "growing.csv", 100)

	// The injected sleep grows one file between the two samples, as a
	// download in progress would.
	p := probe.NewWithSleep(func(_ context.Context, _ time.Duration) error {
		return os.WriteFile(growing, make([]byte, 200), 0600)
	})

	count, err := p.CountFiles(context.Background(), dir, "*.csv", 0, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCountFilesStabilityCancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.csv", 10)

	p := probe.NewWithSleep(func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	})
	_, err := p.CountFiles(context.Background(), dir, "*.csv", 0, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExistsAny(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := probe.New()
	ctx := context.Background()

	ok, err := p.ExistsAny(ctx, dir, "*.pdf")
	require.NoError(t, err)
	assert.False(t, ok)

	writeFile(t, dir, "report.pdf", 10)
	ok, err = p.ExistsAny(ctx, dir, "*.pdf")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewestMatching(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	old := writeFile(t, dir, "old.csv", 10)
	newer := writeFile(t, dir, "new.csv", 20)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	p := probe.New()
	fi, err := p.NewestMatching(context.Background(), dir, "*.csv")
	require.NoError(t, err)
	require.NotNil(t, fi)
	assert.Equal(t, newer, fi.Path)
	assert.Equal(t, int64(20), fi.Size)

	fi, err = p.NewestMatching(context.Background(), dir, "*.xlsx")
	require.NoError(t, err)
	assert.Nil(t, fi)
}
