// Package normalize merges raw per-batch export folders into one canonical
// table per clinical domain, synthesizes the episode key every later stage
// joins on, prunes redundant columns and applies the day-boundary date
// rule.
package normalize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/glucolab/pipeline/pkg/common/config"
	"github.com/glucolab/pipeline/pkg/common/logger"
	"github.com/glucolab/pipeline/pkg/rules"
	"github.com/glucolab/pipeline/pkg/table"
)

// TaskResult reports one per-file unit of work. Failures never abort
// sibling tasks; they surface here and in the log.
type TaskResult struct {
	Cohort string
	File   string
	Rows   int
	Cols   int
	OK     bool
	Err    error
}

type Stage struct {
	cfg   *config.Config
	rules rules.NormalizerRules
}

func New(cfg *config.Config, nr rules.NormalizerRules) *Stage {
	return &Stage{cfg: cfg, rules: nr}
}

// Run rebuilds every cohort's canonical tables from scratch. The merge and
// column phases fan out over a bounded worker pool; no two tasks touch the
// same output file.
func (s *Stage) Run(ctx context.Context) ([]TaskResult, error) {
	for _, cohort := range s.rules.Cohorts {
		dir := s.cfg.CohortDir(cohort.Name)
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("reset %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	merged := s.runPhase(ctx, "merge", s.mergeTasks())
	keyed := s.runPhase(ctx, "episode-key", s.fileTasks(s.synthesizeKeyFile))
	cleaned := s.runPhase(ctx, "prune-columns", s.fileTasks(s.cleanColumnsFile))

	for _, cohort := range s.rules.Cohorts {
		s.extractCampus(cohort.Name)
		s.applyDayBoundary(cohort.Name)
		s.reportDuplicateKeys(cohort.Name)
	}

	results := append(merged, keyed...)
	results = append(results, cleaned...)
	if !anyOK(merged) {
		return results, fmt.Errorf("normalizer produced no canonical tables")
	}
	return results, nil
}

type task struct {
	cohort string
	file   string
	run    func() TaskResult
}

func (s *Stage) runPhase(ctx context.Context, phase string, tasks []task) []TaskResult {
	results := make([]TaskResult, len(tasks))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, tk := range tasks {
		i, tk := i, tk
		g.Go(func() error {
			results[i] = tk.run()
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		entry := logger.ForStage("normalize", r.Cohort).WithField("phase", phase).WithField("file", r.File)
		switch {
		case r.Err != nil:
			entry.WithError(r.Err).Warn("task failed")
		case !r.OK:
			entry.Warn("skipped")
		default:
			entry.WithField("rows", r.Rows).WithField("cols", r.Cols).Info("done")
		}
	}
	return results
}

// mergeTasks builds one task per canonical output file: gather every raw
// variant across the cohort's batch folders, concatenate in folder order
// and write the canonical table.
func (s *Stage) mergeTasks() []task {
	var tasks []task
	for _, cohort := range s.rules.Cohorts {
		cohort := cohort
		outDir := s.cfg.CohortDir(cohort.Name)
		for _, fm := range cohort.Files {
			fm := fm
			tasks = append(tasks, task{
				cohort: cohort.Name,
				file:   fm.Canonical,
				run: func() TaskResult {
					return s.mergeOne(cohort, fm, filepath.Join(outDir, fm.Canonical))
				},
			})
		}
	}
	return tasks
}

func (s *Stage) mergeOne(cohort rules.CohortSpec, fm rules.FileMapping, outPath string) TaskResult {
	res := TaskResult{Cohort: cohort.Name, File: fm.Canonical}
	names := append([]string{fm.Raw}, fm.Variants...)

	var merged *table.Table
	for _, name := range names {
		for _, folder := range cohort.Folders {
			path := filepath.Join(s.cfg.SourceDir, folder, name)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			t, err := table.ReadSkipping(path, s.cfg.PreambleRows)
			if err != nil {
				res.Err = err
				return res
			}
			if merged == nil {
				merged = t
			} else {
				merged.Concat(t)
			}
		}
	}
	if merged == nil {
		return res // missing input file: counters stay zero
	}
	if err := merged.Write(outPath); err != nil {
		res.Err = err
		return res
	}
	res.Rows = len(merged.Rows)
	res.Cols = len(merged.Header)
	res.OK = true
	return res
}

// fileTasks builds one task per existing canonical file in every cohort.
func (s *Stage) fileTasks(fn func(cohort, path string) TaskResult) []task {
	var tasks []task
	for _, cohort := range s.rules.Cohorts {
		name := cohort.Name
		dir := s.cfg.CohortDir(name)
		for _, fm := range cohort.Files {
			path := filepath.Join(dir, fm.Canonical)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			file := fm.Canonical
			tasks = append(tasks, task{
				cohort: name,
				file:   file,
				run:    func() TaskResult { return fn(name, path) },
			})
		}
	}
	return tasks
}

func (s *Stage) synthesizeKeyFile(cohort, path string) TaskResult {
	res := TaskResult{Cohort: cohort, File: filepath.Base(path)}
	t, err := table.Read(path)
	if err != nil {
		res.Err = err
		return res
	}
	if err := SynthesizeKey(t); err != nil {
		res.Err = err
		return res
	}
	if err := t.Write(path); err != nil {
		res.Err = err
		return res
	}
	res.Rows = len(t.Rows)
	res.Cols = len(t.Header)
	res.OK = true
	return res
}

// SynthesizeKey builds the episode identifier from the patient and
// time-quantum columns, drops the source columns and moves the key to the
// first position. The key is never recomputed downstream.
func SynthesizeKey(t *table.Table) error {
	pi := t.Index("patient_sn")
	qi := t.Index("time_quantum")
	if pi < 0 || qi < 0 {
		return fmt.Errorf("%w: patient_sn/time_quantum", table.ErrMissingColumn)
	}
	values := make([]string, len(t.Rows))
	for r := range t.Rows {
		values[r] = t.Cell(r, pi) + "_" + t.Cell(r, qi)
	}
	t.DropColumns(rules.KeyColumn)
	t.AppendColumn(rules.KeyColumn, values)
	t.DropColumns("patient_sn", "time_quantum", "group_name")
	t.MoveToFront(rules.KeyColumn)
	return nil
}

func (s *Stage) cleanColumnsFile(cohort, path string) TaskResult {
	res := TaskResult{Cohort: cohort, File: filepath.Base(path)}
	t, err := table.Read(path)
	if err != nil {
		res.Err = err
		return res
	}

	// the medication-order table keeps rare administration fields that
	// would otherwise fall to empty-column pruning
	if res.File != rules.FileMedicationOrders {
		t.DropColumns(s.rules.DropColumns...)
		t.DropEmptyColumns()
	}
	t.MoveToFront(rules.KeyColumn)

	if err := t.Write(path); err != nil {
		res.Err = err
		return res
	}
	res.Rows = len(t.Rows)
	res.Cols = len(t.Header)
	res.OK = true
	return res
}

func (s *Stage) reportDuplicateKeys(cohort string) {
	// episode-level tables should hold one row per key; re-used
	// patient/time-quantum pairs across batches surface here as a
	// data-quality warning while the rows stay unioned
	for _, file := range []string{rules.FileAdmissionNotes, rules.FileHospitalization} {
		path := filepath.Join(s.cfg.CohortDir(cohort), file)
		t, err := table.Read(path)
		if err != nil {
			continue
		}
		idx := t.Index(rules.KeyColumn)
		if idx < 0 {
			continue
		}
		counts := make(map[string]int)
		for r := range t.Rows {
			counts[t.Cell(r, idx)]++
		}
		dups := 0
		for _, n := range counts {
			if n > 1 {
				dups++
			}
		}
		if dups > 0 {
			logger.ForStage("normalize", cohort).WithField("file", file).
				WithField("duplicate_keys", dups).Warn("episode key re-used across batches")
		}
	}
}

func anyOK(results []TaskResult) bool {
	for _, r := range results {
		if r.OK {
			return true
		}
	}
	return false
}

func lowerContainsAny(name string, subs []string) bool {
	l := strings.ToLower(name)
	for _, s := range subs {
		if strings.Contains(l, s) {
			return true
		}
	}
	return false
}
