// Package stringutil provides small string and time formatting helpers.
package stringutil

import (
	"strings"
	"time"
)

const timeEmpty = "-"

// FormatTime returns formatted time in RFC3339, or "-" for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return timeEmpty
	}
	return t.Format(time.RFC3339)
}

// ParseTime parses a time string produced by FormatTime.
func ParseTime(val string) (time.Time, error) {
	if val == "" || val == timeEmpty {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, val)
}

// TruncString returns truncated string with the given max size.
func TruncString(val string, max int) string {
	if len(val) > max {
		return val[:max]
	}
	return val
}

// JoinNonEmpty joins the non-empty elements with the separator.
func JoinNonEmpty(sep string, elems ...string) string {
	var kept []string
	for _, e := range elems {
		if e != "" {
			kept = append(kept, e)
		}
	}
	return strings.Join(kept, sep)
}
