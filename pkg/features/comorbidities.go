package features

import (
	"fmt"
	"path/filepath"

	"github.com/glucolab/pipeline/pkg/common/config"
	"github.com/glucolab/pipeline/pkg/common/logger"
	"github.com/glucolab/pipeline/pkg/rules"
	"github.com/glucolab/pipeline/pkg/table"
)

// Comorbidities derives diagnosis-text flags. Diagnosis rows carry no order
// status, so every row is in scope.
type Comorbidities struct {
	cfg   *config.Config
	rules rules.ComorbidityRules
}

func NewComorbidities(cfg *config.Config, r rules.ComorbidityRules) *Comorbidities {
	return &Comorbidities{cfg: cfg, rules: r}
}

func (p *Comorbidities) Run(cohort string) (PassSummary, error) {
	summary := PassSummary{Cohort: cohort, Counts: make(map[string]int)}
	entry := logger.ForStage("comorbidities", cohort)

	path := filepath.Join(p.cfg.CohortDir(cohort), rules.FileDiagnosis)
	t, err := table.Read(path)
	if err != nil {
		return summary, fmt.Errorf("diagnosis: %w", err)
	}
	if !t.HasColumn(rules.KeyColumn) || !t.HasColumn(p.rules.TextColumn) {
		return summary, fmt.Errorf("diagnosis: %w", table.ErrMissingColumn)
	}

	all := make([]int, len(t.Rows))
	for r := range t.Rows {
		all[r] = r
	}
	flags := FlagTable(t, p.rules.TextColumn, p.rules.Rules, all)
	summary.Episodes = len(flags.Rows)
	tally(flags, summary.Counts)
	for _, rule := range p.rules.Rules {
		entry.WithField("flag", rule.Name).WithField("episodes", summary.Counts[rule.Name]).Info("extracted")
	}

	if err := mergeBack(path, t, flags); err != nil {
		return summary, err
	}
	doc := newDocument("Comorbidity variables", rules.FileDiagnosis)
	doc.note("Flags are substring matches over " + p.rules.TextColumn + "; AND rules require every keyword.")
	doc.section("Comorbidities", p.rules.Rules)
	return summary, doc.write(filepath.Join(p.cfg.CohortDir(cohort), "comorbidity_variables.txt"))
}
