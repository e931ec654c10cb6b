// Package cohort implements study-cohort exclusion: keyword scans over
// diagnosis and department fields mark episodes for removal, then every
// domain table in the cohort drops those episodes' rows.
package cohort

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/glucolab/pipeline/pkg/common/config"
	"github.com/glucolab/pipeline/pkg/common/logger"
	"github.com/glucolab/pipeline/pkg/rules"
	"github.com/glucolab/pipeline/pkg/table"
)

// departmentSources lists the tables (and their department columns)
// consulted for critical-care exclusion.
var departmentSources = []struct {
	file    string
	columns []string
}{
	{rules.FileNonDrugOrders, []string{"prescribed_department_name"}},
	{rules.FileHospitalization, []string{"visit_department", "discharge_department"}},
}

type FileDelta struct {
	File   string
	Before int
	After  int
}

type Summary struct {
	Cohort       string
	ByDiagnosis  int
	ByDepartment int
	Excluded     int
	RowsDeleted  int
	PerFile      []FileDelta
}

type Stage struct {
	cfg   *config.Config
	rules rules.ExclusionRules
}

func New(cfg *config.Config, ex rules.ExclusionRules) *Stage {
	return &Stage{cfg: cfg, rules: ex}
}

// Run computes the exclusion set for one cohort and purges it from every
// domain table. Applying the same exclusion twice removes nothing further.
func (s *Stage) Run(cohort string) (Summary, error) {
	summary := Summary{Cohort: cohort}
	dir := s.cfg.CohortDir(cohort)
	entry := logger.ForStage("cohort-filter", cohort)

	diagPath := filepath.Join(dir, rules.FileDiagnosis)
	diag, err := table.Read(diagPath)
	if err != nil {
		entry.WithError(err).Warn("diagnosis table absent, cohort left unfiltered")
		return summary, nil
	}

	byDiagnosis := s.diagnosisExclusions(diag, entry)
	byDepartment := s.departmentExclusions(dir, entry)
	summary.ByDiagnosis = len(byDiagnosis)
	summary.ByDepartment = len(byDepartment)

	excluded := make(map[string]bool, len(byDiagnosis)+len(byDepartment))
	for k := range byDiagnosis {
		excluded[k] = true
	}
	for k := range byDepartment {
		excluded[k] = true
	}
	summary.Excluded = len(excluded)
	entry.WithField("diagnosis", summary.ByDiagnosis).
		WithField("department", summary.ByDepartment).
		WithField("total", summary.Excluded).Info("exclusion set computed")

	paths, _ := filepath.Glob(filepath.Join(dir, "*.csv"))
	sort.Strings(paths)
	for _, path := range paths {
		delta, err := deleteExcluded(path, excluded)
		if err != nil {
			// tolerated partial failure: the file stays untouched
			entry.WithField("file", filepath.Base(path)).WithError(err).Warn("deletion skipped")
			continue
		}
		summary.PerFile = append(summary.PerFile, delta)
		summary.RowsDeleted += delta.Before - delta.After
		if delta.Before != delta.After {
			entry.WithField("file", delta.File).
				WithField("before", delta.Before).WithField("after", delta.After).Info("rows deleted")
		}
	}
	return summary, nil
}

func (s *Stage) diagnosisExclusions(diag *table.Table, entry *logrus.Entry) map[string]bool {
	excluded := make(map[string]bool)
	keyIdx := diag.Index(rules.KeyColumn)
	textIdx := diag.Index(s.rules.DiagnosisColumn)
	if keyIdx < 0 || textIdx < 0 {
		entry.Warn("diagnosis table lacks key or text column, diagnosis exclusion skipped")
		return excluded
	}
	for _, keyword := range s.rules.DiagnosisKeywords {
		hits := 0
		for r := range diag.Rows {
			if table.ContainsFold(diag.Cell(r, textIdx), keyword) {
				if !excluded[diag.Cell(r, keyIdx)] {
					hits++
				}
				excluded[diag.Cell(r, keyIdx)] = true
			}
		}
		if hits > 0 {
			entry.WithField("keyword", keyword).WithField("episodes", hits).Info("diagnosis exclusion")
		}
	}
	return excluded
}

func (s *Stage) departmentExclusions(dir string, entry *logrus.Entry) map[string]bool {
	excluded := make(map[string]bool)
	foundAnyColumn := false

	for _, src := range departmentSources {
		path := filepath.Join(dir, src.file)
		t, err := table.Read(path)
		if err != nil {
			entry.WithField("file", src.file).Warn("department source absent")
			continue
		}
		keyIdx := t.Index(rules.KeyColumn)
		var cols []int
		for _, name := range src.columns {
			if i := t.Index(name); i >= 0 {
				cols = append(cols, i)
			}
		}
		if keyIdx < 0 || len(cols) == 0 {
			entry.WithField("file", src.file).Warn("no department column found")
			continue
		}
		foundAnyColumn = true
		before := len(excluded)
		for _, col := range cols {
			for _, dept := range s.rules.Departments {
				for r := range t.Rows {
					if table.ContainsFold(t.Cell(r, col), dept) {
						excluded[t.Cell(r, keyIdx)] = true
					}
				}
			}
		}
		if n := len(excluded) - before; n > 0 {
			entry.WithField("file", src.file).WithField("episodes", n).Info("department exclusion")
		}
	}

	if !foundAnyColumn {
		entry.Warn("no department column in any table, department exclusion is a no-op")
	}
	return excluded
}

func deleteExcluded(path string, excluded map[string]bool) (FileDelta, error) {
	delta := FileDelta{File: filepath.Base(path)}
	t, err := table.Read(path)
	if err != nil {
		return delta, err
	}
	keyIdx := t.Index(rules.KeyColumn)
	if keyIdx < 0 {
		return delta, fmt.Errorf("%s: %w: %s", delta.File, table.ErrMissingColumn, rules.KeyColumn)
	}
	delta.Before = len(t.Rows)
	t.FilterRows(func(row []string) bool {
		return !excluded[row[keyIdx]]
	})
	delta.After = len(t.Rows)
	if delta.After != delta.Before {
		if err := t.Write(path); err != nil {
			return delta, err
		}
	}
	return delta, nil
}
