package journal_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayrun-org/dayrun/internal/config"
	"github.com/dayrun-org/dayrun/internal/journal"
	"github.com/dayrun-org/dayrun/internal/paths"
)

var friday = time.Date(2026, 7, 31, 9, 0, 0, 0, time.Local)

func testPaths(t *testing.T) *paths.Paths {
	t.Helper()
	root := t.TempDir()
	return paths.New(root, filepath.Join(root, "state"), filepath.Join(root, "logs"))
}

func testSteps(names ...string) []config.Step {
	steps := make([]config.Step, 0, len(names))
	for _, n := range names {
		steps = append(steps, config.Step{Name: n, Kind: config.KindGated, MaxAttemptsPerWindow: 1})
	}
	return steps
}

func openStore(t *testing.T, p *paths.Paths, steps []config.Step, now time.Time) *journal.Store {
	t.Helper()
	require.NoError(t, os.MkdirAll(p.StateDir, 0750))
	store, err := journal.Open(context.Background(), p, steps, now)
	require.NoError(t, err)
	return store
}

func TestOpenSeedsFreshJournal(t *testing.T) {
	t.Parallel()

	p := testPaths(t)
	store := openStore(t, p, testSteps("a", "b"), friday)

	assert.Equal(t, "2026-07-31", store.Date())

	st, ok := store.StepState("a")
	require.True(t, ok)
	assert.Equal(t, journal.StatePending, st.State)
	assert.Equal(t, 0, st.AttemptsToday)

	// The journal file is persisted immediately.
	j, err := journal.Read(p.CurrentJournalFile())
	require.NoError(t, err)
	assert.Equal(t, "2026-07-31", j.Date)
	assert.Len(t, j.Steps, 2)
}

func TestOpenAdoptsSameDayJournal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := testPaths(t)

	store := openStore(t, p, testSteps("a"), friday)
	_, err := store.MarkStarted(ctx, "a", friday)
	require.NoError(t, err)
	require.NoError(t, store.MarkDone(ctx, "a", journal.Outcome{ExitCode: 0, RunID: "r1"}, friday))

	// A restart the same day sees the completed state; new steps are
	// seeded without resetting existing ones.
	reopened := openStore(t, p, testSteps("a", "late"), friday.Add(time.Hour))
	st, ok := reopened.StepState("a")
	require.True(t, ok)
	assert.Equal(t, journal.StateDone, st.State)
	assert.Equal(t, 1, st.AttemptsToday)

	st, ok = reopened.StepState("late")
	require.True(t, ok)
	assert.Equal(t, journal.StatePending, st.State)
}

func TestOpenArchivesStaleJournal(t *testing.T) {
	t.Parallel()

	p := testPaths(t)
	store := openStore(t, p, testSteps("a"), friday)
	_ = store

	saturday := friday.AddDate(0, 0, 1)
	reopened := openStore(t, p, testSteps("a"), saturday)
	assert.Equal(t, "2026-08-01", reopened.Date())

	// Friday's journal was archived under its dated name.
	archived, err := journal.Read(p.JournalFile("2026-07-31"))
	require.NoError(t, err)
	assert.Equal(t, "2026-07-31", archived.Date)
}

func TestMarkTransitionsPersist(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := testPaths(t)
	store := openStore(t, p, testSteps("a"), friday)

	attempt, err := store.MarkStarted(ctx, "a", friday)
	require.NoError(t, err)
	assert.Equal(t, 1, attempt)

	st, _ := store.StepState("a")
	assert.Equal(t, journal.StateRunning, st.State)

	out := journal.Outcome{ExitCode: 2, Error: "exited with code 2", RunID: "r2"}
	require.NoError(t, store.MarkFailed(ctx, "a", out, friday.Add(time.Minute)))

	// Everything survives a reload from disk.
	j, err := journal.Read(p.CurrentJournalFile())
	require.NoError(t, err)
	got := j.Steps["a"]
	assert.Equal(t, journal.StateFailed, got.State)
	assert.Equal(t, 1, got.AttemptsToday)
	require.NotNil(t, got.LastExitCode)
	assert.Equal(t, 2, *got.LastExitCode)
	assert.Equal(t, "exited with code 2", got.LastError)
	assert.Equal(t, "r2", got.LastRunID)
}

func TestMarkRetryReturnsToPending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openStore(t, testPaths(t), testSteps("a"), friday)

	_, err := store.MarkStarted(ctx, "a", friday)
	require.NoError(t, err)
	require.NoError(t, store.MarkRetry(ctx, "a", journal.Outcome{ExitCode: 1, Error: "boom"}, friday))

	st, _ := store.StepState("a")
	assert.Equal(t, journal.StatePending, st.State)
	assert.Equal(t, 1, st.AttemptsToday) // attempts are never reset
	assert.Equal(t, "boom", st.LastError)
}

func TestMarkUnknownStep(t *testing.T) {
	t.Parallel()

	store := openStore(t, testPaths(t), testSteps("a"), friday)
	_, err := store.MarkStarted(context.Background(), "ghost", friday)
	assert.ErrorContains(t, err, "unknown step")
}

func TestMarkAlertSentDeduplicates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := testPaths(t)
	store := openStore(t, p, testSteps("a"), friday)

	fresh, err := store.MarkAlertSent(ctx, "step-failed:a")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = store.MarkAlertSent(ctx, "step-failed:a")
	require.NoError(t, err)
	assert.False(t, fresh)

	j, err := journal.Read(p.CurrentJournalFile())
	require.NoError(t, err)
	assert.Equal(t, []string{"step-failed:a"}, j.AlertsSent)
}

func TestAdoptOrphans(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openStore(t, testPaths(t), testSteps("a", "b"), friday)

	_, err := store.MarkStarted(ctx, "a", friday)
	require.NoError(t, err)

	orphaned, err := store.AdoptOrphans(ctx, friday.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, orphaned)

	st, _ := store.StepState("a")
	assert.Equal(t, journal.StateFailed, st.State)
	assert.Equal(t, "orphaned", st.LastError)

	st, _ = store.StepState("b")
	assert.Equal(t, journal.StatePending, st.State)

	// Nothing running means nothing to adopt.
	orphaned, err = store.AdoptOrphans(ctx, friday.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, orphaned)
}

func TestRollover(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := testPaths(t)
	steps := testSteps("a")
	store := openStore(t, p, steps, friday)

	_, err := store.MarkStarted(ctx, "a", friday)
	require.NoError(t, err)
	require.NoError(t, store.MarkDone(ctx, "a", journal.Outcome{RunID: "r1"}, friday))

	saturday := friday.AddDate(0, 0, 1)
	require.NoError(t, store.Rollover(ctx, steps, saturday))

	assert.Equal(t, "2026-08-01", store.Date())
	st, _ := store.StepState("a")
	assert.Equal(t, journal.StatePending, st.State)
	assert.Equal(t, 0, st.AttemptsToday)

	// The outgoing day is archived with its final content.
	archived, err := journal.Read(p.JournalFile("2026-07-31"))
	require.NoError(t, err)
	assert.Equal(t, journal.StateDone, archived.Steps["a"].State)
}

func TestRolloverDoesNotClobberExistingArchive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := testPaths(t)
	steps := testSteps("a")
	store := openStore(t, p, steps, friday)

	// A file for the target date already exists (e.g. from a manual
	// restore); rollover must not overwrite it.
	require.NoError(t, os.WriteFile(p.JournalFile("2026-07-31"), []byte(`{"date":"2026-07-31"}`), 0600))

	saturday := friday.AddDate(0, 0, 1)
	require.NoError(t, store.Rollover(ctx, steps, saturday))

	data, err := os.ReadFile(p.JournalFile("2026-07-31"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2026-07-31"}`, string(data))
	assert.FileExists(t, p.JournalFile("2026-07-31")+".bak-1")
}

func TestStateTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, journal.StatePending.Terminal())
	assert.False(t, journal.StateRunning.Terminal())
	assert.True(t, journal.StateDone.Terminal())
	assert.True(t, journal.StateFailed.Terminal())
	assert.True(t, journal.StateSkipped.Terminal())
}
