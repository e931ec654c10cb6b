package table

import (
	"strconv"
	"strings"
	"time"
)

// Clean strips tabs and surrounding whitespace from a cell. Export tooling
// pads free-text fields with literal tab characters.
func Clean(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\t", ""))
}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/1/2 15:04:05",
	"2006/1/2 15:04",
	"2006-01-02",
	"2006/1/2",
}

// ParseTime parses the timestamp formats seen in the raw exports. Date-only
// values parse with a zero time of day.
func ParseTime(s string) (time.Time, bool) {
	s = Clean(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// ParseFloat parses a numeric cell, tolerating padding.
func ParseFloat(s string) (float64, bool) {
	s = Clean(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ContainsFold reports whether text contains the keyword, ignoring case.
func ContainsFold(text, keyword string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(keyword))
}
