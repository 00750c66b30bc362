// Package probe answers filesystem questions about produced artifacts:
// whether a step's output exists under today's dated folder, how many
// files match, and whether they are fully written.
package probe

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dayrun-org/dayrun/internal/logger"
	"github.com/dayrun-org/dayrun/internal/logger/tag"
)

// FileInfo describes a single matching artifact.
type FileInfo struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// Probe evaluates artifact predicates. The sleep function is injectable
// so stability checks run instantly in tests.
type Probe struct {
	sleep func(ctx context.Context, d time.Duration) error
}

// New constructs a Probe.
func New() *Probe {
	return &Probe{sleep: sleepCtx}
}

// NewWithSleep constructs a Probe with a custom sleep function (tests).
func NewWithSleep(sleep func(ctx context.Context, d time.Duration) error) *Probe {
	return &Probe{sleep: sleep}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CountFiles counts files in dir matching the glob whose size is at
// least minSize. When stableFor > 0 the size must be unchanged across
// two samples stableFor apart, so half-written files are not counted.
// I/O errors are logged and reported to the caller, who decides whether
// unknown counts as unsatisfied (the default).
func (p *Probe) CountFiles(ctx context.Context, dir, glob string, minSize int64, stableFor time.Duration) (int, error) {
	first, err := p.sample(ctx, dir, glob)
	if err != nil {
		logger.Warn(ctx, "Artifact count failed", tag.Dir(dir), tag.Pattern(glob), tag.Error(err))
		return 0, err
	}

	if stableFor <= 0 {
		return countAtLeast(first, minSize), nil
	}

	if err := p.sleep(ctx, stableFor); err != nil {
		return 0, err
	}
	second, err := p.sample(ctx, dir, glob)
	if err != nil {
		logger.Warn(ctx, "Artifact re-sample failed", tag.Dir(dir), tag.Pattern(glob), tag.Error(err))
		return 0, err
	}

	count := 0
	for path, size := range second {
		if size >= minSize && first[path] == size {
			count++
		}
	}
	return count, nil
}

// ExistsAny reports whether any file in dir matches the glob.
func (p *Probe) ExistsAny(ctx context.Context, dir, glob string) (bool, error) {
	files, err := p.matches(ctx, dir, glob)
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}

// NewestMatching returns the most recently modified match, or nil when
// nothing matches.
func (p *Probe) NewestMatching(ctx context.Context, dir, glob string) (*FileInfo, error) {
	files, err := p.matches(ctx, dir, glob)
	if err != nil {
		return nil, err
	}

	var newest *FileInfo
	for _, path := range files {
		fi, err := os.Stat(path)
		if err != nil || fi.IsDir() {
			continue
		}
		if newest == nil || fi.ModTime().After(newest.ModTime) {
			newest = &FileInfo{Path: path, ModTime: fi.ModTime(), Size: fi.Size()}
		}
	}
	return newest, nil
}

// matches lists files under dir whose path relative to dir matches the
// glob. A missing directory is not an error; it means no matches.
func (p *Probe) matches(_ context.Context, dir, glob string) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	rel, err := doublestar.Glob(os.DirFS(dir), glob)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(rel))
	for _, r := range rel {
		paths = append(paths, filepath.Join(dir, filepath.FromSlash(r)))
	}
	return paths, nil
}

// sample returns path -> size for all regular files matching the glob.
func (p *Probe) sample(ctx context.Context, dir, glob string) (map[string]int64, error) {
	files, err := p.matches(ctx, dir, glob)
	if err != nil {
		return nil, err
	}
	sizes := make(map[string]int64, len(files))
	for _, path := range files {
		fi, err := os.Stat(path)
		if err != nil || fi.IsDir() {
			continue
		}
		sizes[path] = fi.Size()
	}
	return sizes, nil
}

func countAtLeast(sizes map[string]int64, minSize int64) int {
	count := 0
	for _, size := range sizes {
		if size >= minSize {
			count++
		}
	}
	return count
}
