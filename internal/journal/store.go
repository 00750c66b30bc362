package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dayrun-org/dayrun/internal/config"
	"github.com/dayrun-org/dayrun/internal/fileutil"
	"github.com/dayrun-org/dayrun/internal/logger"
	"github.com/dayrun-org/dayrun/internal/logger/tag"
	"github.com/dayrun-org/dayrun/internal/paths"
	"github.com/dayrun-org/dayrun/internal/stringutil"
)

// Store owns the journal file. It is the only component that writes
// it; every mutator persists the whole journal atomically (temp file,
// fsync, rename) so a crash leaves either the old or the new content.
type Store struct {
	mu      sync.Mutex
	paths   *paths.Paths
	journal *Journal
}

// Open loads today's journal, adopting an existing one for the same
// date (restart resilience) and archiving one left over from an
// earlier date. A fresh journal is seeded when none exists.
func Open(ctx context.Context, p *paths.Paths, steps []config.Step, now time.Time) (*Store, error) {
	s := &Store{paths: p}

	current := p.CurrentJournalFile()
	existing, err := Read(current)
	switch {
	case os.IsNotExist(err):
		s.journal = newJournal(steps, now)
	case err != nil:
		return nil, fmt.Errorf("failed to load journal: %w", err)
	case existing.Date == paths.DayKey(now):
		logger.Info(ctx, "Adopting existing journal", tag.Day(existing.Date))
		s.journal = existing
		s.seedMissing(steps, now)
	default:
		logger.Info(ctx, "Archiving stale journal", tag.Day(existing.Date))
		if err := s.archive(existing.Date); err != nil {
			return nil, err
		}
		s.journal = newJournal(steps, now)
	}

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// seedMissing adds steps that joined the configuration since the
// journal was created. Existing entries are never reset.
func (s *Store) seedMissing(steps []config.Step, now time.Time) {
	for i := range steps {
		if _, ok := s.journal.Steps[steps[i].Name]; ok {
			continue
		}
		state := StatePending
		if !steps[i].RunsOn(now.Weekday()) {
			state = StateSkipped
		}
		s.journal.Steps[steps[i].Name] = &StepState{State: state}
	}
}

// Date returns the journal's logical day.
func (s *Store) Date() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.journal.Date
}

// Snapshot returns a deep copy of the journal for readers.
func (s *Store) Snapshot() *Journal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.journal.clone()
}

// StepState returns a copy of one step's state.
func (s *Store) StepState(name string) (StepState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.journal.Steps[name]
	if !ok {
		return StepState{}, false
	}
	return *st.clone(), true
}

// MarkStarted transitions the step to Running and increments its
// attempt counter. Returns the 1-based attempt number.
func (s *Store) MarkStarted(ctx context.Context, name string, now time.Time) (int, error) {
	var attempt int
	err := s.mutate(ctx, name, func(st *StepState) {
		st.State = StateRunning
		st.AttemptsToday++
		st.LastStartedAt = stringutil.FormatTime(now)
		attempt = st.AttemptsToday
	})
	return attempt, err
}

// Outcome carries the result fields the journal records.
type Outcome struct {
	ExitCode        int
	KilledOnTimeout bool
	Error           string
	RunID           string
}

// MarkDone transitions the step to Done.
func (s *Store) MarkDone(ctx context.Context, name string, out Outcome, now time.Time) error {
	return s.mutate(ctx, name, func(st *StepState) {
		code := out.ExitCode
		st.State = StateDone
		st.LastExitCode = &code
		st.LastFinishedAt = stringutil.FormatTime(now)
		st.LastError = ""
		st.KilledOnTimeout = false
		if out.RunID != "" {
			st.LastRunID = out.RunID
		}
	})
}

// MarkFailed transitions the step to Failed (terminal for the day).
func (s *Store) MarkFailed(ctx context.Context, name string, out Outcome, now time.Time) error {
	return s.mutate(ctx, name, func(st *StepState) {
		code := out.ExitCode
		st.State = StateFailed
		st.LastExitCode = &code
		st.LastFinishedAt = stringutil.FormatTime(now)
		st.LastError = boundErr(out.Error)
		st.KilledOnTimeout = out.KilledOnTimeout
		if out.RunID != "" {
			st.LastRunID = out.RunID
		}
	})
}

// MarkRetry records a failed attempt and returns the step to Pending
// so the engine can retry it.
func (s *Store) MarkRetry(ctx context.Context, name string, out Outcome, now time.Time) error {
	return s.mutate(ctx, name, func(st *StepState) {
		code := out.ExitCode
		st.State = StatePending
		st.LastExitCode = &code
		st.LastFinishedAt = stringutil.FormatTime(now)
		st.LastError = boundErr(out.Error)
		st.KilledOnTimeout = out.KilledOnTimeout
		if out.RunID != "" {
			st.LastRunID = out.RunID
		}
	})
}

// MarkSkipped transitions the step to Skipped.
func (s *Store) MarkSkipped(ctx context.Context, name, reason string) error {
	return s.mutate(ctx, name, func(st *StepState) {
		st.State = StateSkipped
		st.LastError = boundErr(reason)
	})
}

// MarkAlertSent records the alert key if new. Returns true when the
// key was recorded, false when it was already present (duplicate).
func (s *Store) MarkAlertSent(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.journal.alertSent(key) {
		return false, nil
	}
	s.journal.AlertsSent = append(s.journal.AlertsSent, key)
	if err := s.persistLocked(); err != nil {
		// Roll back in memory so the alert can be retried.
		s.journal.AlertsSent = s.journal.AlertsSent[:len(s.journal.AlertsSent)-1]
		logger.Error(ctx, "Failed to persist alert key", tag.AlertKey(key), tag.Error(err))
		return false, err
	}
	return true, nil
}

// AdoptOrphans marks steps found Running at startup as Failed with
// reason "orphaned": their process belonged to a previous orchestrator
// incarnation and is gone. Returns the affected step names.
func (s *Store) AdoptOrphans(ctx context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orphaned []string
	for name, st := range s.journal.Steps {
		if st.State == StateRunning {
			st.State = StateFailed
			st.LastError = "orphaned"
			st.LastFinishedAt = stringutil.FormatTime(now)
			orphaned = append(orphaned, name)
		}
	}
	if len(orphaned) == 0 {
		return nil, nil
	}
	logger.Info(ctx, "Adopted orphaned running steps", tag.Count(len(orphaned)))
	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	return orphaned, nil
}

// Rollover archives the outgoing day and seeds the new one. Either the
// new journal exists and the old one has been renamed, or neither
// change has occurred.
func (s *Store) Rollover(ctx context.Context, steps []config.Step, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldDate := s.journal.Date

	// Final snapshot of the outgoing day.
	if err := s.persistLocked(); err != nil {
		return fmt.Errorf("failed to write final snapshot: %w", err)
	}
	if err := s.archive(oldDate); err != nil {
		return err
	}

	s.journal = newJournal(steps, now)
	if err := s.persistLocked(); err != nil {
		return err
	}

	logger.Info(ctx, "Rolled journal to new day", tag.Day(s.journal.Date))
	return nil
}

// archive renames current.json to its dated name, suffixing .bak-<seq>
// when a file for that date already exists.
func (s *Store) archive(date string) error {
	current := s.paths.CurrentJournalFile()
	if !fileutil.FileExists(current) {
		return nil
	}
	target := s.paths.JournalFile(date)
	for seq := 1; fileutil.FileExists(target); seq++ {
		target = fmt.Sprintf("%s.bak-%d", s.paths.JournalFile(date), seq)
	}
	if err := os.Rename(current, target); err != nil {
		return fmt.Errorf("failed to archive journal: %w", err)
	}
	return nil
}

// mutate applies fn to the named step and persists. On persist failure
// the in-memory change is rolled back so the next tick retries it.
func (s *Store) mutate(ctx context.Context, name string, fn func(*StepState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.journal.Steps[name]
	if !ok {
		return fmt.Errorf("unknown step %q", name)
	}

	saved := st.clone()
	fn(st)

	if err := s.persistLocked(); err != nil {
		*st = *saved
		logger.Error(ctx, "Failed to persist journal, rolled back", tag.Step(name), tag.Error(err))
		return err
	}
	return nil
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.journal, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal journal: %w", err)
	}
	return fileutil.WriteFileAtomic(s.paths.CurrentJournalFile(), data, 0600)
}
