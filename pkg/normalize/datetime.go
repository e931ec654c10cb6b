package normalize

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/glucolab/pipeline/pkg/common/logger"
	"github.com/glucolab/pipeline/pkg/rules"
	"github.com/glucolab/pipeline/pkg/table"
)

const dateOnly = "2006-01-02"

var campusPattern = regexp.MustCompile(`[(（]([^)）]+)[)）]`)

// ExtractCampus pulls the parenthesized campus out of a department name,
// accepting both fullwidth and halfwidth parentheses.
func ExtractCampus(department string) string {
	m := campusPattern.FindStringSubmatch(table.Clean(department))
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func (s *Stage) extractCampus(cohort string) {
	entry := logger.ForStage("normalize", cohort).WithField("file", rules.FileHospitalization)
	path := filepath.Join(s.cfg.CohortDir(cohort), rules.FileHospitalization)
	t, err := table.Read(path)
	if err != nil {
		entry.Warn("hospitalization table absent, campus skipped")
		return
	}
	dept := t.Index("visit_department")
	if dept < 0 {
		entry.Warn("no visit_department column, campus skipped")
		return
	}
	if t.HasColumn("Campus") {
		entry.Info("Campus column already present, left untouched")
		return
	}
	values := make([]string, len(t.Rows))
	filled := 0
	for r := range t.Rows {
		values[r] = ExtractCampus(t.Cell(r, dept))
		if values[r] != "" {
			filled++
		}
	}
	t.AppendColumn("Campus", values)
	if err := t.Write(path); err != nil {
		entry.WithError(err).Warn("campus write failed")
		return
	}
	entry.WithField("non_empty", filled).Info("Campus column added")
}

// TimestampColumns lists the columns the day-boundary rule applies to: a
// time-like name outside the exclusion list, whose sampled values actually
// carry a time-of-day component.
func TimestampColumns(t *table.Table, excluded []string) []int {
	var cols []int
	for i, name := range t.Header {
		l := strings.ToLower(name)
		if !strings.Contains(l, "time") && !strings.Contains(l, "_date") {
			continue
		}
		if lowerContainsAny(name, excluded) {
			continue
		}
		sampled, hasClock := 0, false
		for r := 0; r < len(t.Rows) && sampled < 5; r++ {
			v := table.Clean(t.Cell(r, i))
			if v == "" {
				continue
			}
			sampled++
			// rune count, not bytes: short CJK free text in a
			// time-named column must not pass the length gate
			if strings.Contains(v, ":") || utf8.RuneCountInString(v) > 10 {
				hasClock = true
			}
		}
		if sampled > 0 && hasClock {
			cols = append(cols, i)
		}
	}
	return cols
}

// ApplyDayBoundary rewrites every timestamp column to a date-only value,
// assigning clock times before the boundary hour to the previous calendar
// day. Unparseable values become null. Returns converted value counts per
// column.
func ApplyDayBoundary(t *table.Table, boundaryHour int, excluded []string) map[string]int {
	cols := TimestampColumns(t, excluded)
	if len(cols) == 0 {
		return nil
	}
	stats := make(map[string]int, len(cols))
	for _, c := range cols {
		converted := 0
		for r := range t.Rows {
			ts, ok := table.ParseTime(t.Cell(r, c))
			if !ok {
				t.SetCell(r, c, "")
				continue
			}
			if ts.Hour() < boundaryHour {
				ts = ts.AddDate(0, 0, -1)
			}
			t.SetCell(r, c, ts.Format(dateOnly))
			converted++
		}
		stats[t.Header[c]] = converted
	}
	return stats
}

func (s *Stage) applyDayBoundary(cohort string) {
	dir := s.cfg.CohortDir(cohort)
	paths, _ := filepath.Glob(filepath.Join(dir, "*.csv"))
	sort.Strings(paths)
	for _, path := range paths {
		entry := logger.ForStage("normalize", cohort).WithField("file", filepath.Base(path))
		t, err := table.Read(path)
		if err != nil {
			entry.WithError(err).Warn("day-boundary read failed")
			continue
		}
		stats := ApplyDayBoundary(t, s.cfg.DayBoundaryHour, s.rules.DateExcluded)
		if len(stats) == 0 {
			continue
		}
		if err := t.Write(path); err != nil {
			entry.WithError(err).Warn("day-boundary write failed")
			continue
		}
		entry.WithField("columns", len(stats)).Info("timestamp columns converted")
	}
}
