// Package instancelock guards against two orchestrators running on the
// same host. The lock is a JSON file created with O_EXCL; a leftover
// file from a crashed predecessor is detected by checking whether the
// recorded pid is alive and still belongs to the same program.
package instancelock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/dayrun-org/dayrun/internal/logger"
	"github.com/dayrun-org/dayrun/internal/logger/tag"
)

// ErrLockHeld indicates the lock is held by a live peer process.
var ErrLockHeld = errors.New("instance lock is held by another process")

// Info is the serialized content of the lock file.
type Info struct {
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"started_at"`
	Host       string    `json:"host"`
	Executable string    `json:"executable"`
}

// Lock is a single-instance file lock.
type Lock struct {
	path   string
	isHeld bool
}

// New creates a lock for the given lock file path.
func New(path string) *Lock {
	return &Lock{path: path}
}

// Acquire attempts to take the lock. A stale lock (dead pid, or a pid
// now owned by a different program) is reclaimed once; a live peer
// yields ErrLockHeld.
func (l *Lock) Acquire(ctx context.Context) error {
	if err := l.tryCreate(); err == nil {
		return nil
	} else if !os.IsExist(err) {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	holder, err := l.readInfo()
	if err != nil {
		// Unreadable lock files are treated as stale.
		logger.Warn(ctx, "Lock file unreadable, reclaiming", tag.File(l.path), tag.Error(err))
	} else if isAlive(ctx, holder) {
		return fmt.Errorf("%w: pid %d since %s", ErrLockHeld, holder.PID, holder.StartedAt.Format(time.RFC3339))
	} else {
		logger.Info(ctx, "Reclaiming stale instance lock",
			tag.PID(holder.PID), tag.File(l.path))
	}

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale lock: %w", err)
	}
	if err := l.tryCreate(); err != nil {
		if os.IsExist(err) {
			return ErrLockHeld
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	return nil
}

// Release removes the lock file on graceful shutdown.
func (l *Lock) Release() error {
	if !l.isHeld {
		return nil
	}
	l.isHeld = false
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// IsHeldByMe reports whether this instance holds the lock.
func (l *Lock) IsHeldByMe() bool {
	return l.isHeld
}

// Holder returns the current lock holder info, or nil when unlocked.
func (l *Lock) Holder(ctx context.Context) *Info {
	info, err := l.readInfo()
	if err != nil {
		return nil
	}
	if !isAlive(ctx, info) {
		return nil
	}
	return info
}

func (l *Lock) tryCreate() error {
	fd, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer func() {
		_ = fd.Close()
	}()

	exe, _ := os.Executable()
	host, _ := os.Hostname()
	info := Info{
		PID:        os.Getpid(),
		StartedAt:  time.Now(),
		Host:       host,
		Executable: exe,
	}
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	if _, err := fd.Write(data); err != nil {
		_ = os.Remove(l.path)
		return err
	}
	if err := fd.Sync(); err != nil {
		_ = os.Remove(l.path)
		return err
	}
	l.isHeld = true
	return nil
}

func (l *Lock) readInfo() (*Info, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("invalid lock file: %w", err)
	}
	if info.PID <= 0 {
		return nil, fmt.Errorf("invalid lock file: pid %d", info.PID)
	}
	return &info, nil
}

// isAlive reports whether the recorded pid is running and still names
// the same program that wrote the lock.
func isAlive(ctx context.Context, info *Info) bool {
	if info == nil {
		return false
	}
	exists, err := process.PidExistsWithContext(ctx, int32(info.PID))
	if err != nil || !exists {
		return false
	}
	proc, err := process.NewProcessWithContext(ctx, int32(info.PID))
	if err != nil {
		return false
	}
	exe, err := proc.ExeWithContext(ctx)
	if err != nil {
		// Cannot inspect the peer (permissions); assume it is a live
		// holder rather than stealing the lock.
		return true
	}
	return filepath.Base(exe) == filepath.Base(info.Executable)
}
