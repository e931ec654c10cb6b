// Package pipeline orchestrates the end-to-end run: schema normalization,
// cohort filtering, the four feature-extraction passes, daily assembly and
// the column convention check.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/glucolab/pipeline/pkg/assemble"
	"github.com/glucolab/pipeline/pkg/cohort"
	"github.com/glucolab/pipeline/pkg/common/config"
	"github.com/glucolab/pipeline/pkg/common/logger"
	"github.com/glucolab/pipeline/pkg/features"
	"github.com/glucolab/pipeline/pkg/normalize"
	"github.com/glucolab/pipeline/pkg/report"
	"github.com/glucolab/pipeline/pkg/rules"
)

// StageResult captures one stage's outcome for the run report.
type StageResult struct {
	Name     string
	Duration time.Duration
	Counters map[string]int
	Err      error
}

// Runner executes the pipeline stages in order. A stage failure is
// recorded and later stages still run, except when the normalizer produced
// nothing for them to read.
type Runner struct {
	cfg   *config.Config
	rules rules.Ruleset
	runID string
}

func NewRunner(cfg *config.Config, rs rules.Ruleset) *Runner {
	return &Runner{cfg: cfg, rules: rs, runID: uuid.NewString()}
}

// RunID identifies this runner's execution in logs.
func (r *Runner) RunID() string { return r.runID }

type stage struct {
	name string
	run  func(ctx context.Context) (map[string]int, error)
}

// Run executes every stage and returns their results. The returned error
// is the first stage error, if any.
func (r *Runner) Run(ctx context.Context) ([]StageResult, error) {
	entry := logger.WithField("run_id", r.runID)
	entry.Info("pipeline run starting")

	cohorts := assemble.Cohorts(r.rules.Normalizer)
	stages := []stage{
		{"normalize", r.runNormalize},
		{"cohort-filter", r.perCohort(cohorts, func(c string) (map[string]int, error) {
			s, err := cohort.New(r.cfg, r.rules.Exclusion).Run(c)
			return map[string]int{"excluded": s.Excluded, "rows_deleted": s.RowsDeleted}, err
		})},
		{"medications", r.perCohort(cohorts, func(c string) (map[string]int, error) {
			s, err := features.NewMedications(r.cfg, r.rules.Medications).Run(c)
			return map[string]int{"episodes": s.Episodes}, err
		})},
		{"comorbidities", r.perCohort(cohorts, func(c string) (map[string]int, error) {
			s, err := features.NewComorbidities(r.cfg, r.rules.Comorbidities).Run(c)
			return map[string]int{"episodes": s.Episodes}, err
		})},
		{"surgery", r.perCohort(cohorts, func(c string) (map[string]int, error) {
			s, err := features.NewSurgery(r.cfg, r.rules.Orders).Run(c)
			return map[string]int{"with_surgery": s.Counts["Surgery"]}, err
		})},
		{"fasting-nutrition", r.perCohort(cohorts, func(c string) (map[string]int, error) {
			s, err := features.NewFastingNutrition(r.cfg, r.rules.Orders).Run(c)
			return map[string]int{"fasting": s.Counts["Fasting"], "nutrition": s.Counts["Nutrition"]}, err
		})},
		{"assemble", func(ctx context.Context) (map[string]int, error) {
			s, err := assemble.New(r.cfg, cohorts).Run()
			return map[string]int{"rows": s.Rows}, err
		}},
		{"column-check", func(ctx context.Context) (map[string]int, error) {
			s, err := report.New(r.cfg, cohorts).Run()
			return map[string]int{"checked": s.Checked, "diverging": len(s.Divergences)}, err
		}},
	}

	var results []StageResult
	var firstErr error
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		started := time.Now()
		counters, err := st.run(ctx)
		res := StageResult{Name: st.name, Duration: time.Since(started), Counters: counters, Err: err}
		results = append(results, res)
		stageEntry := entry.WithField("stage", st.name).WithField("duration", res.Duration.Round(time.Millisecond).String())
		if err != nil {
			stageEntry.WithError(err).Error("stage failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", st.name, err)
			}
			if st.name == "normalize" {
				// nothing downstream can read tables that were never written
				entry.Warn("normalizer produced nothing, aborting run")
				break
			}
			continue
		}
		stageEntry.Info("stage done")
	}
	entry.Info("pipeline run finished")
	return results, firstErr
}

func (r *Runner) runNormalize(ctx context.Context) (map[string]int, error) {
	results, err := normalize.New(r.cfg, r.rules.Normalizer).Run(ctx)
	counters := map[string]int{"tasks": len(results)}
	for _, res := range results {
		if res.OK {
			counters["ok"]++
		}
	}
	return counters, err
}

// perCohort lifts a per-cohort stage into a run over every cohort,
// summing counters. The first cohort error is returned after all cohorts
// ran.
func (r *Runner) perCohort(cohorts []string, run func(cohort string) (map[string]int, error)) func(context.Context) (map[string]int, error) {
	return func(ctx context.Context) (map[string]int, error) {
		counters := make(map[string]int)
		var firstErr error
		for _, c := range cohorts {
			if err := ctx.Err(); err != nil {
				return counters, err
			}
			sub, err := run(c)
			for k, v := range sub {
				counters[k] += v
			}
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", c, err)
			}
		}
		return counters, firstErr
	}
}
