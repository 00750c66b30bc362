package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind classifies how a step becomes eligible.
type Kind string

const (
	// KindWindowed steps run only while one of their windows contains now.
	KindWindowed Kind = "windowed"
	// KindUnconditional steps run at a fixed daily wall-clock moment.
	KindUnconditional Kind = "unconditional"
	// KindGated steps have no window; they fire as soon as their
	// dependencies are done.
	KindGated Kind = "gated"
)

// Action selects what a step executes.
type Action string

const (
	// ActionCommand runs the step's external command (the default).
	ActionCommand Action = ""
	// ActionHygiene invokes the process hygiene sweep instead of a command.
	ActionHygiene Action = "hygiene"
)

// Window is a closed interval on the minute-of-day axis.
type Window struct {
	Start MinuteOfDay `yaml:"start"`
	End   MinuteOfDay `yaml:"end"`
}

// Contains reports whether the minute m falls inside the window.
func (w Window) Contains(m MinuteOfDay) bool {
	return m >= w.Start && m <= w.End
}

// String returns the window in "HH:MM-HH:MM" form.
func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// MinuteOfDay is a local time of day expressed as minutes since midnight.
type MinuteOfDay int

// ParseMinuteOfDay parses "HH:MM".
func ParseMinuteOfDay(s string) (MinuteOfDay, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return MinuteOfDay(hh*60 + mm), nil
}

// String returns the minute of day in "HH:MM" form.
func (m MinuteOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// UnmarshalYAML implements yaml.Unmarshaler for "HH:MM" values.
func (m *MinuteOfDay) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := ParseMinuteOfDay(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// AtDate anchors the minute of day on the given date in its location.
func (m MinuteOfDay) AtDate(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, int(m)/60, int(m)%60, 0, 0, t.Location())
}

// ArtifactCheck is a post-success predicate evaluated by the probe.
type ArtifactCheck struct {
	// Dir is resolved through the paths object ("csv", "merged", "pdf"
	// or a path under the dated folder).
	Dir string `yaml:"dir"`
	// Glob matches file names (doublestar syntax).
	Glob string `yaml:"glob"`
	// MinCount is the minimum number of matching files.
	MinCount int `yaml:"min_count"`
	// MinSizeBytes excludes files smaller than this.
	MinSizeBytes int64 `yaml:"min_size_bytes"`
	// StableFor requires file sizes to be unchanged across two samples
	// this far apart, guarding against half-written files.
	StableFor time.Duration `yaml:"stable_for"`
}

// Step is a named unit of work in the daily pipeline.
type Step struct {
	Name    string   `yaml:"name"`
	Kind    Kind     `yaml:"kind"`
	Action  Action   `yaml:"action"`
	Windows []Window `yaml:"windows"`

	// Schedule is a cron expression naming the daily moment of an
	// unconditional step (e.g. "0 16 * * *").
	Schedule string `yaml:"schedule"`

	Depends []string `yaml:"depends"`

	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`

	Timeout              time.Duration `yaml:"timeout"`
	MaxAttemptsPerWindow int           `yaml:"max_attempts_per_window"`
	GracePeriod          time.Duration `yaml:"grace_period"`

	DaysOfWeek []string `yaml:"days_of_week"`

	CatchUp           bool `yaml:"catch_up"`
	ClosesApplication bool `yaml:"closes_application_on_exit"`

	ArtifactCheck *ArtifactCheck `yaml:"artifact_check"`

	// parsed fields, populated by finalize
	schedule cron.Schedule
	days     map[time.Weekday]bool
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// finalize parses derived fields after YAML decoding.
func (s *Step) finalize() error {
	if s.Schedule != "" {
		sched, err := cronParser.Parse(s.Schedule)
		if err != nil {
			return fmt.Errorf("step %s: invalid schedule %q: %w", s.Name, s.Schedule, err)
		}
		s.schedule = sched
	}
	if len(s.DaysOfWeek) > 0 {
		s.days = make(map[time.Weekday]bool, len(s.DaysOfWeek))
		for _, d := range s.DaysOfWeek {
			wd, err := parseWeekday(d)
			if err != nil {
				return fmt.Errorf("step %s: %w", s.Name, err)
			}
			s.days[wd] = true
		}
	}
	return nil
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

func parseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(s)
	if len(key) > 3 {
		key = key[:3]
	}
	wd, ok := weekdays[key]
	if !ok {
		return 0, fmt.Errorf("invalid day of week %q", s)
	}
	return wd, nil
}

// RunsOn reports whether the step is required on the given weekday.
// Steps without days_of_week run every day.
func (s *Step) RunsOn(day time.Weekday) bool {
	if s.days == nil {
		return true
	}
	return s.days[day]
}

// NextMoment returns the first scheduled moment of an unconditional
// step at or after the given time, within the same day.
func (s *Step) NextMoment(from time.Time) (time.Time, bool) {
	if s.schedule == nil {
		return time.Time{}, false
	}
	next := s.schedule.Next(from.Add(-time.Second))
	if next.IsZero() || next.YearDay() != from.YearDay() || next.Year() != from.Year() {
		return time.Time{}, false
	}
	return next, true
}

// MomentToday returns the step's scheduled moment for the day
// containing t, if any.
func (s *Step) MomentToday(t time.Time) (time.Time, bool) {
	y, mo, d := t.Date()
	dayStart := time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
	return s.NextMoment(dayStart)
}
