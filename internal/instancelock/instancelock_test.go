package instancelock

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lockPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "instance.lock")
}

func TestAcquireAndRelease(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := lockPath(t)

	l := New(path)
	require.NoError(t, l.Acquire(ctx))
	assert.True(t, l.IsHeldByMe())
	assert.FileExists(t, path)

	var info Info
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &info))
	assert.Equal(t, os.Getpid(), info.PID)

	require.NoError(t, l.Release())
	assert.False(t, l.IsHeldByMe())
	assert.NoFileExists(t, path)
}

func TestAcquireContended(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := lockPath(t)

	first := New(path)
	require.NoError(t, first.Acquire(ctx))

	// The holder pid (this test process) is alive, so the second
	// acquire must refuse.
	second := New(path)
	err := second.Acquire(ctx)
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.False(t, second.IsHeldByMe())

	require.NoError(t, first.Release())
}

func TestAcquireReclaimsDeadPid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := lockPath(t)

	exe, _ := os.Executable()
	stale := Info{
		PID:        1 << 30, // far beyond any real pid
		StartedAt:  time.Now().Add(-time.Hour),
		Host:       "old-host",
		Executable: exe,
	}
	data, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))

	l := New(path)
	require.NoError(t, l.Acquire(ctx))
	assert.True(t, l.IsHeldByMe())
}

func TestAcquireReclaimsCorruptLock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := lockPath(t)
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0600))

	l := New(path)
	require.NoError(t, l.Acquire(ctx))
	assert.True(t, l.IsHeldByMe())
}

func TestHolder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := lockPath(t)

	l := New(path)
	assert.Nil(t, l.Holder(ctx))

	require.NoError(t, l.Acquire(ctx))
	holder := l.Holder(ctx)
	require.NotNil(t, holder)
	assert.Equal(t, os.Getpid(), holder.PID)

	require.NoError(t, l.Release())
	assert.Nil(t, l.Holder(ctx))
}

func TestReleaseWithoutAcquire(t *testing.T) {
	t.Parallel()

	l := New(lockPath(t))
	assert.NoError(t, l.Release())
}
