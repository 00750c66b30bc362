// Package hygiene terminates leftover desktop application processes
// between jobs. The legacy application sometimes survives its driving
// script; a fresh job then attaches to a half-dead UI session, so the
// pipeline clears matching processes before sessions that need a clean
// slate.
package hygiene

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/dayrun-org/dayrun/internal/config"
	"github.com/dayrun-org/dayrun/internal/logger"
	"github.com/dayrun-org/dayrun/internal/logger/tag"
)

// Report summarizes one cleanup sweep.
type Report struct {
	Matched    int
	Terminated int
	Killed     int
	Survivors  []int32
}

// Cleaner finds and terminates processes whose executable name matches
// one of the configured patterns.
type Cleaner struct {
	patterns []string
	grace    time.Duration

	// seams for tests
	listProcesses func(ctx context.Context) ([]*process.Process, error)
	sleep         func(ctx context.Context, d time.Duration) error
}

// New builds a Cleaner from the hygiene configuration.
func New(cfg config.HygieneConfig) *Cleaner {
	grace := cfg.Grace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &Cleaner{
		patterns:      cfg.Patterns,
		grace:         grace,
		listProcesses: process.ProcessesWithContext,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

// Enabled reports whether any patterns are configured.
func (c *Cleaner) Enabled() bool {
	return len(c.patterns) > 0
}

// Sweep terminates all matching processes: graceful termination first,
// then a forced kill for anything still alive after the grace period.
// A failure to kill an individual process is logged and counted; a
// failure to enumerate processes at all is returned, since it means
// nothing was swept.
func (c *Cleaner) Sweep(ctx context.Context, reason string) (Report, error) {
	var report Report
	if !c.Enabled() {
		return report, nil
	}

	matched, err := c.findMatching(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to enumerate processes: %w", err)
	}
	report.Matched = len(matched)
	if len(matched) == 0 {
		logger.Debug(ctx, "No leftover processes found", tag.Reason(reason))
		return report, nil
	}

	logger.Info(ctx, "Terminating leftover processes",
		tag.Count(len(matched)), tag.Reason(reason))

	for _, p := range matched {
		name, _ := p.NameWithContext(ctx)
		if err := p.TerminateWithContext(ctx); err != nil {
			logger.Warn(ctx, "Failed to terminate process",
				tag.PID(int(p.Pid)), tag.Command(name), tag.Error(err))
			continue
		}
		report.Terminated++
	}

	_ = c.sleep(ctx, c.grace)

	for _, p := range matched {
		running, err := p.IsRunningWithContext(ctx)
		if err != nil || !running {
			continue
		}
		if err := p.KillWithContext(ctx); err != nil {
			logger.Warn(ctx, "Failed to kill process", tag.PID(int(p.Pid)), tag.Error(err))
			report.Survivors = append(report.Survivors, p.Pid)
			continue
		}
		report.Killed++
	}

	return report, nil
}

// findMatching returns running processes whose executable name matches
// any configured pattern. The orchestrator's own process is excluded.
func (c *Cleaner) findMatching(ctx context.Context) ([]*process.Process, error) {
	procs, err := c.listProcesses(ctx)
	if err != nil {
		return nil, err
	}
	self := int32(os.Getpid())

	var matched []*process.Process
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		if c.matches(name) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

func (c *Cleaner) matches(name string) bool {
	lower := strings.ToLower(name)
	for _, pat := range c.patterns {
		ok, err := doublestar.Match(strings.ToLower(pat), lower)
		if err == nil && ok {
			return true
		}
	}
	return false
}
