// Package paths centralizes all dated path construction. No other
// component builds artifact paths by string concatenation.
package paths

import (
	"path/filepath"
	"strings"
	"time"
)

// DateFolder returns the lowercase DDmon folder name for the given
// date (e.g. "31jul"). The job executables use the same convention;
// it is part of their contract.
func DateFolder(t time.Time) string {
	return strings.ToLower(t.Format("02Jan"))
}

// DayKey returns the logical day identifier (YYYY-MM-DD, local).
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// Paths resolves every dated directory the orchestrator touches.
type Paths struct {
	Root     string
	StateDir string
	LogDir   string
}

// New creates a Paths resolver rooted at the given directories.
func New(root, stateDir, logDir string) *Paths {
	return &Paths{Root: root, StateDir: stateDir, LogDir: logDir}
}

// DatedDir returns the root-level dated folder for the given date.
func (p *Paths) DatedDir(t time.Time) string {
	return filepath.Join(p.Root, DateFolder(t))
}

// CSVDir returns the CSV download folder for the given date.
func (p *Paths) CSVDir(t time.Time) string {
	return filepath.Join(p.DatedDir(t), "csv")
}

// MergedDir returns the merged spreadsheet folder for the given date.
func (p *Paths) MergedDir(t time.Time) string {
	return filepath.Join(p.DatedDir(t), "merged")
}

// PDFDir returns the report PDF folder for the given date.
func (p *Paths) PDFDir(t time.Time) string {
	return filepath.Join(p.DatedDir(t), "pdf")
}

// StepLogDir returns the per-day directory for step log files.
func (p *Paths) StepLogDir(t time.Time) string {
	return filepath.Join(p.LogDir, DayKey(t))
}

// JournalFile returns the archived journal path for the given day key.
func (p *Paths) JournalFile(dayKey string) string {
	return filepath.Join(p.StateDir, "journal-"+dayKey+".json")
}

// CurrentJournalFile returns the active journal path.
func (p *Paths) CurrentJournalFile() string {
	return filepath.Join(p.StateDir, "current.json")
}

// LockFile returns the single-instance lock path.
func (p *Paths) LockFile() string {
	return filepath.Join(p.StateDir, "instance.lock")
}

// Resolve maps a step-relative artifact directory name to an absolute
// dated path. Known names are "csv", "merged" and "pdf"; anything else
// is joined under the dated folder as-is. Absolute dirs pass through.
func (p *Paths) Resolve(dir string, t time.Time) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	switch dir {
	case "csv":
		return p.CSVDir(t)
	case "merged":
		return p.MergedDir(t)
	case "pdf":
		return p.PDFDir(t)
	default:
		return filepath.Join(p.DatedDir(t), dir)
	}
}
