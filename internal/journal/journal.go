// Package journal persists the per-day pipeline state. The journal
// file is the single source of truth for "did this step complete
// today"; filesystem artifacts are corroborating evidence only.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dayrun-org/dayrun/internal/config"
	"github.com/dayrun-org/dayrun/internal/paths"
	"github.com/dayrun-org/dayrun/internal/stringutil"
)

// State is the per-day lifecycle state of a step.
type State string

const (
	StatePending State = "Pending"
	StateRunning State = "Running"
	StateDone    State = "Done"
	StateFailed  State = "Failed"
	StateSkipped State = "Skipped"
)

// Terminal reports whether the state cannot change for the rest of the
// day (retries excepted, which go through Pending explicitly).
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateSkipped
}

// maxErrorLen bounds the persisted error message.
const maxErrorLen = 1024

// StepState is the journaled state of one step for one day.
type StepState struct {
	State           State  `json:"state"`
	AttemptsToday   int    `json:"attempts_today"`
	LastExitCode    *int   `json:"last_exit_code"`
	LastStartedAt   string `json:"last_started_at,omitempty"`
	LastFinishedAt  string `json:"last_finished_at,omitempty"`
	LastError       string `json:"last_error_message,omitempty"`
	KilledOnTimeout bool   `json:"killed_due_to_timeout,omitempty"`
	LastRunID       string `json:"last_run_id,omitempty"`
}

func (s *StepState) clone() *StepState {
	cp := *s
	if s.LastExitCode != nil {
		v := *s.LastExitCode
		cp.LastExitCode = &v
	}
	return &cp
}

// Journal is the whole state for one logical day.
type Journal struct {
	Date       string                `json:"date"`
	Steps      map[string]*StepState `json:"steps"`
	AlertsSent []string              `json:"alerts_sent"`
}

func (j *Journal) clone() *Journal {
	cp := &Journal{
		Date:       j.Date,
		Steps:      make(map[string]*StepState, len(j.Steps)),
		AlertsSent: append([]string(nil), j.AlertsSent...),
	}
	for name, st := range j.Steps {
		cp.Steps[name] = st.clone()
	}
	return cp
}

// alertSent reports whether the alert key is already recorded.
func (j *Journal) alertSent(key string) bool {
	for _, k := range j.AlertsSent {
		if k == key {
			return true
		}
	}
	return false
}

// newJournal seeds a fresh journal for the day containing now. Steps
// whose days_of_week exclude the day start out Skipped.
func newJournal(steps []config.Step, now time.Time) *Journal {
	j := &Journal{
		Date:       paths.DayKey(now),
		Steps:      make(map[string]*StepState, len(steps)),
		AlertsSent: []string{},
	}
	for i := range steps {
		state := StatePending
		if !steps[i].RunsOn(now.Weekday()) {
			state = StateSkipped
		}
		j.Steps[steps[i].Name] = &StepState{State: state}
	}
	return j
}

// Read loads a journal file without opening a store. Used by the
// status command.
func Read(path string) (*Journal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var j Journal
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to parse journal %s: %w", path, err)
	}
	if j.Steps == nil {
		j.Steps = map[string]*StepState{}
	}
	return &j, nil
}

func boundErr(msg string) string {
	return stringutil.TruncString(msg, maxErrorLen)
}
