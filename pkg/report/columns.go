// Package report checks the cleaned tables against the documented column
// conventions: a plain-text companion file lists, per cohort and per
// canonical csv, the expected column names. Divergence is reported, never
// fatal; the document trails the pipeline on purpose during rule changes.
package report

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/glucolab/pipeline/pkg/common/config"
	"github.com/glucolab/pipeline/pkg/common/logger"
	"github.com/glucolab/pipeline/pkg/table"
)

// Expectation maps "cohort/file.csv" to its documented column list.
type Expectation map[string][]string

// ParseColumnDoc reads the convention document. Cohort sections open with a
// line starting with the cohort name; file sections look like
// "hospitalization.csv (16 列):"; column entries are indented lines whose
// name follows a " . " separator.
func ParseColumnDoc(r io.Reader, cohorts []string) Expectation {
	out := make(Expectation)
	prefix := ""
	key := ""
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if cohort := cohortHeading(trimmed, cohorts); cohort != "" {
			prefix = cohort + "/"
			key = ""
			continue
		}
		if strings.Contains(trimmed, ".csv") && strings.Contains(trimmed, "(") && strings.HasSuffix(trimmed, ":") {
			name := strings.TrimSpace(strings.SplitN(trimmed, "(", 2)[0])
			if strings.HasSuffix(name, ".csv") {
				key = prefix + name
				out[key] = nil
			}
			continue
		}
		if key != "" && strings.Contains(line, " . ") {
			parts := strings.SplitN(line, " . ", 2)
			if col := strings.TrimSpace(parts[1]); col != "" {
				out[key] = append(out[key], col)
			}
		}
	}
	return out
}

func cohortHeading(line string, cohorts []string) string {
	for _, c := range cohorts {
		if strings.HasPrefix(line, c) && !strings.Contains(line, ".csv") {
			return c
		}
	}
	return ""
}

// Divergence describes one file whose header strays from the convention.
type Divergence struct {
	File    string
	Missing []string
	Extra   []string
}

type Summary struct {
	Checked     int
	Divergences []Divergence
}

type Stage struct {
	cfg     *config.Config
	cohorts []string
}

func New(cfg *config.Config, cohorts []string) *Stage {
	return &Stage{cfg: cfg, cohorts: cohorts}
}

// Run compares every documented file's expected columns to its current
// header.
func (s *Stage) Run() (Summary, error) {
	var summary Summary
	entry := logger.ForStage("column-check", "")

	f, err := os.Open(s.cfg.ColumnDoc)
	if err != nil {
		entry.WithError(err).Warn("column convention document absent, check skipped")
		return summary, nil
	}
	expected := ParseColumnDoc(f, s.cohorts)
	f.Close()

	docKeys := make([]string, 0, len(expected))
	for k := range expected {
		docKeys = append(docKeys, k)
	}
	sort.Strings(docKeys)
	for _, docKey := range docKeys {
		cols := expected[docKey]
		path := filepath.Join(s.cfg.BaseDir, filepath.FromSlash(docKey))
		t, err := table.Read(path)
		if err != nil {
			entry.WithField("file", docKey).Warn("documented file absent")
			continue
		}
		summary.Checked++
		d := diffColumns(docKey, cols, t.Header)
		if len(d.Missing) > 0 || len(d.Extra) > 0 {
			summary.Divergences = append(summary.Divergences, d)
			entry.WithField("file", docKey).
				WithField("missing", strings.Join(d.Missing, ",")).
				WithField("extra", strings.Join(d.Extra, ",")).Warn("header diverges from convention")
		}
	}
	entry.WithField("checked", summary.Checked).
		WithField("diverging", len(summary.Divergences)).Info("column check done")
	return summary, nil
}

func diffColumns(file string, expected, actual []string) Divergence {
	d := Divergence{File: file}
	have := make(map[string]bool, len(actual))
	for _, c := range actual {
		have[c] = true
	}
	want := make(map[string]bool, len(expected))
	for _, c := range expected {
		want[c] = true
	}
	for _, c := range expected {
		if !have[c] {
			d.Missing = append(d.Missing, c)
		}
	}
	for _, c := range actual {
		if !want[c] {
			d.Extra = append(d.Extra, c)
		}
	}
	return d
}
