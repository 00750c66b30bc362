// Package clockwin maps wall-clock time to step window eligibility.
// Evaluation is a pure function of the supplied now; all time decisions
// in the orchestrator go through it so tests can inject a frozen clock.
package clockwin

import (
	"time"

	"github.com/dayrun-org/dayrun/internal/config"
)

// Eligibility is the window evaluation result for a step at a moment.
type Eligibility int

const (
	// InWindow means now falls inside one of the step's windows.
	InWindow Eligibility = iota
	// NotYet means all windows are still in the future today.
	NotYet
	// Missed means all windows have ended but the day is not over.
	Missed
	// NotToday means today is not in the step's required days of week.
	NotToday
)

// String returns the eligibility name for logs.
func (e Eligibility) String() string {
	switch e {
	case InWindow:
		return "in-window"
	case NotYet:
		return "not-yet"
	case Missed:
		return "missed"
	case NotToday:
		return "not-today"
	default:
		return "unknown"
	}
}

// MinuteOf converts a timestamp to its minute of day.
func MinuteOf(now time.Time) config.MinuteOfDay {
	return config.MinuteOfDay(now.Hour()*60 + now.Minute())
}

// Evaluate returns the step's eligibility at now. Windows are closed
// intervals on the minute-of-day axis; a step without windows is always
// in window on its required days.
func Evaluate(step *config.Step, now time.Time) Eligibility {
	if !step.RunsOn(now.Weekday()) {
		return NotToday
	}
	if len(step.Windows) == 0 {
		return InWindow
	}

	minute := MinuteOf(now)
	allPast := true
	for _, w := range step.Windows {
		if w.Contains(minute) {
			return InWindow
		}
		if minute < w.Start {
			allPast = false
		}
	}
	if allPast {
		return Missed
	}
	return NotYet
}
