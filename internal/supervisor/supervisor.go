// Package supervisor owns the orchestrator lifecycle: lock, journal,
// tick cadence, midnight rollover, heartbeat, and graceful shutdown.
// It is the only component that decides what "today" is; everything
// below receives now as an argument.
package supervisor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dayrun-org/dayrun/internal/clockwin"
	"github.com/dayrun-org/dayrun/internal/config"
	"github.com/dayrun-org/dayrun/internal/engine"
	"github.com/dayrun-org/dayrun/internal/hygiene"
	"github.com/dayrun-org/dayrun/internal/instancelock"
	"github.com/dayrun-org/dayrun/internal/journal"
	"github.com/dayrun-org/dayrun/internal/logger"
	"github.com/dayrun-org/dayrun/internal/logger/tag"
	"github.com/dayrun-org/dayrun/internal/notify"
	"github.com/dayrun-org/dayrun/internal/paths"
	"github.com/dayrun-org/dayrun/internal/probe"
	"github.com/dayrun-org/dayrun/internal/runner"
)

// Supervisor runs the daemon loop around the pipeline engine.
type Supervisor struct {
	cfg     *config.Config
	paths   *paths.Paths
	lock    *instancelock.Lock
	cleaner *hygiene.Cleaner
	clock   func() time.Time

	heartbeatAt  config.MinuteOfDay
	hasHeartbeat bool

	// assembled in Run once the journal is open
	store    *journal.Store
	engine   *engine.Engine
	notifier *notify.Notifier
}

// New builds a Supervisor from validated configuration. The clock is
// injectable for tests; nil means time.Now.
func New(cfg *config.Config, clock func() time.Time) (*Supervisor, error) {
	if clock == nil {
		clock = time.Now
	}
	s := &Supervisor{
		cfg:     cfg,
		paths:   paths.New(cfg.RootDir, cfg.StateDir, cfg.LogDir),
		cleaner: hygiene.New(cfg.Hygiene),
		clock:   clock,
	}
	s.lock = instancelock.New(s.paths.LockFile())
	if cfg.HeartbeatTime != "" {
		m, err := config.ParseMinuteOfDay(cfg.HeartbeatTime)
		if err != nil {
			return nil, fmt.Errorf("invalid heartbeat_time: %w", err)
		}
		s.heartbeatAt = m
		s.hasHeartbeat = true
	}
	return s, nil
}

// Run executes the daemon until the context is cancelled or a fatal
// startup error occurs.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.lock.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		if err := s.lock.Release(); err != nil {
			logger.Warn(ctx, "Failed to release instance lock", tag.Error(err))
		}
	}()

	now := s.clock()
	store, err := journal.Open(ctx, s.paths, s.cfg.Steps, now)
	if err != nil {
		return err
	}
	s.store = store

	run := runner.New(s.paths, s.clock)
	s.notifier = notify.New(s.cfg.Mailer, run, store)
	s.engine = engine.New(s.cfg, s.paths, store, run, probe.New(), s.cleaner, s.notifier, s.clock)

	if err := s.engine.Recover(ctx, now); err != nil {
		return fmt.Errorf("failed to recover journal: %w", err)
	}

	logger.Info(ctx, "Orchestrator started",
		tag.Day(store.Date()),
		tag.Count(len(s.cfg.Steps)),
		tag.Interval(s.cfg.TickInterval),
	)
	s.notifier.Notify(ctx, notify.Alert{
		Kind:    notify.KindStartupNotice,
		Key:     string(notify.KindStartupNotice),
		Subject: notify.Subject(notify.KindStartupNotice, store.Date(), ""),
		Body:    fmt.Sprintf("Orchestrator started at %s with %d steps.", now.Format(time.RFC3339), len(s.cfg.Steps)),
	})

	s.loop(ctx)
	return s.shutdown(ctx)
}

// loop is the tick cycle: rollover check, heartbeat, engine tick, then
// sleep until the next interval or a wake signal.
func (s *Supervisor) loop(ctx context.Context) {
	timer := time.NewTimer(s.cfg.TickInterval)
	defer timer.Stop()

	for {
		now := s.clock()

		if paths.DayKey(now) != s.store.Date() {
			s.rollover(ctx, now)
		}
		s.maybeHeartbeat(ctx, now)
		s.engine.Tick(ctx, now)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.cfg.TickInterval)

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-s.engine.Wake():
			logger.Debug(ctx, "Woken for immediate re-tick")
		}
	}
}

// rollover closes the outgoing day: the daily report is recorded in
// the old journal, then the journal is archived and reseeded. In-flight
// runs keep going; their completion lands in the new day's journal as
// a fresh attempt would, which is acceptable for jobs that straddle
// midnight.
func (s *Supervisor) rollover(ctx context.Context, now time.Time) {
	oldDate := s.store.Date()
	logger.Info(ctx, "Day boundary crossed", tag.Day(oldDate))

	s.notifier.Notify(ctx, notify.Alert{
		Kind:    notify.KindDailyReport,
		Key:     string(notify.KindDailyReport),
		Subject: notify.Subject(notify.KindDailyReport, oldDate, ""),
		Body:    s.dailyReportBody(oldDate),
		// The raw journal rides along for operators who want the details.
		AttachmentPath: s.paths.CurrentJournalFile(),
	})

	if err := s.store.Rollover(ctx, s.cfg.Steps, now); err != nil {
		// Keep serving the old day; the next tick retries the rollover.
		logger.Error(ctx, "Rollover failed, will retry", tag.Error(err))
	}
}

// maybeHeartbeat sends the once-per-day liveness alert when the fixed
// moment has passed and nothing else was alerted today.
func (s *Supervisor) maybeHeartbeat(ctx context.Context, now time.Time) {
	if !s.hasHeartbeat || clockwin.MinuteOf(now) < s.heartbeatAt {
		return
	}
	if len(s.store.Snapshot().AlertsSent) > 0 {
		return
	}
	s.notifier.Notify(ctx, notify.Alert{
		Kind:    notify.KindHeartbeat,
		Key:     string(notify.KindHeartbeat),
		Subject: notify.Subject(notify.KindHeartbeat, s.store.Date(), ""),
		Body:    fmt.Sprintf("Orchestrator alive at %s; no alerts so far today.", now.Format(time.RFC3339)),
	})
}

// dailyReportBody lists each step's final state for the day.
func (s *Supervisor) dailyReportBody(date string) string {
	snap := s.store.Snapshot()

	names := make([]string, 0, len(snap.Steps))
	for name := range snap.Steps {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "Pipeline summary for %s\n\n", date)
	for _, name := range names {
		st := snap.Steps[name]
		fmt.Fprintf(&b, "%-24s %-8s attempts=%d", name, st.State, st.AttemptsToday)
		if st.LastError != "" {
			fmt.Fprintf(&b, "  (%s)", st.LastError)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// shutdown waits out in-flight runs (the runner kills them after their
// grace period once the context is cancelled) and runs the optional
// exit hygiene sweep.
func (s *Supervisor) shutdown(ctx context.Context) error {
	// The loop's ctx is done; use a detached context for teardown work.
	teardown := context.WithoutCancel(ctx)

	logger.Info(teardown, "Shutting down, waiting for in-flight steps",
		tag.Count(s.engine.RunningCount()))
	s.engine.WaitIdle()

	if s.cfg.Hygiene.CleanupOnExit {
		if _, err := s.cleaner.Sweep(teardown, "shutdown"); err != nil {
			logger.Warn(teardown, "Exit process sweep failed", tag.Error(err))
		}
	}
	logger.Info(teardown, "Orchestrator stopped", tag.Day(s.store.Date()))
	return nil
}
