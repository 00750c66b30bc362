// Package tag provides standardized tag functions for structured logging.
//
// All tag keys use kebab-case naming convention. Use these functions
// instead of raw strings to keep log output consistent across the
// codebase.
package tag

import (
	"log/slog"
	"time"
)

// Error creates a tag for error objects.
func Error(err any) slog.Attr {
	return slog.Any("err", err)
}

// Step creates a tag for pipeline step names.
func Step(name string) slog.Attr {
	return slog.String("step", name)
}

// State creates a tag for step state values.
func State(state string) slog.Attr {
	return slog.String("state", state)
}

// Attempt creates a tag for attempt numbers.
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// RunID creates a tag for job invocation IDs.
func RunID(id string) slog.Attr {
	return slog.String("run-id", id)
}

// Day creates a tag for logical day identifiers (YYYY-MM-DD).
func Day(date string) slog.Attr {
	return slog.String("day", date)
}

// File creates a tag for file paths.
func File(path string) slog.Attr {
	return slog.String("file", path)
}

// Dir creates a tag for directory paths.
func Dir(path string) slog.Attr {
	return slog.String("dir", path)
}

// ExitCode creates a tag for process exit codes.
func ExitCode(code int) slog.Attr {
	return slog.Int("exit-code", code)
}

// PID creates a tag for process IDs.
func PID(pid int) slog.Attr {
	return slog.Int("pid", pid)
}

// Command creates a tag for commands being executed.
func Command(cmd string) slog.Attr {
	return slog.String("command", cmd)
}

// Args creates a tag for command arguments.
func Args(args []string) slog.Attr {
	return slog.Any("args", args)
}

// Signal creates a tag for signal names (e.g., SIGTERM).
func Signal(sig string) slog.Attr {
	return slog.String("signal", sig)
}

// Timeout creates a tag for timeout duration values.
func Timeout(d time.Duration) slog.Attr {
	return slog.Duration("timeout", d)
}

// Duration creates a tag for time durations.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Interval creates a tag for time intervals.
func Interval(d time.Duration) slog.Attr {
	return slog.Duration("interval", d)
}

// Count creates a tag for numeric counts.
func Count(n int) slog.Attr {
	return slog.Int("count", n)
}

// Pattern creates a tag for glob patterns.
func Pattern(p string) slog.Attr {
	return slog.String("pattern", p)
}

// Dependency creates a tag for dependency step names.
func Dependency(name string) slog.Attr {
	return slog.String("dependency", name)
}

// Reason creates a tag for the reason for an action or state.
func Reason(r string) slog.Attr {
	return slog.String("reason", r)
}

// AlertKind creates a tag for alert kinds.
func AlertKind(kind string) slog.Attr {
	return slog.String("alert-kind", kind)
}

// AlertKey creates a tag for alert deduplication keys.
func AlertKey(key string) slog.Attr {
	return slog.String("alert-key", key)
}

// Subject creates a tag for mail subjects.
func Subject(s string) slog.Attr {
	return slog.String("subject", s)
}

// Host creates a tag for host names.
func Host(host string) slog.Attr {
	return slog.String("host", host)
}

// Schedule creates a tag for cron schedules.
func Schedule(s string) slog.Attr {
	return slog.String("schedule", s)
}

// NextRun creates a tag for the next scheduled run time.
func NextRun(t time.Time) slog.Attr {
	return slog.Time("next-run", t)
}

// Window creates a tag for step window descriptions.
func Window(w string) slog.Attr {
	return slog.String("window", w)
}
