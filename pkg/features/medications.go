package features

import (
	"fmt"
	"path/filepath"

	"github.com/glucolab/pipeline/pkg/common/config"
	"github.com/glucolab/pipeline/pkg/common/logger"
	"github.com/glucolab/pipeline/pkg/rules"
	"github.com/glucolab/pipeline/pkg/table"
)

// PassSummary reports one extraction pass over one cohort.
type PassSummary struct {
	Cohort   string
	Episodes int
	Counts   map[string]int // feature column -> episodes flagged
}

// Medications classifies glucose-lowering orders into drug-class flags and
// merges them onto the medication orders table.
type Medications struct {
	cfg   *config.Config
	rules rules.MedicationRules
}

func NewMedications(cfg *config.Config, r rules.MedicationRules) *Medications {
	return &Medications{cfg: cfg, rules: r}
}

func (p *Medications) Run(cohort string) (PassSummary, error) {
	summary := PassSummary{Cohort: cohort, Counts: make(map[string]int)}
	entry := logger.ForStage("medications", cohort)

	path := filepath.Join(p.cfg.CohortDir(cohort), rules.FileMedicationOrders)
	t, err := table.Read(path)
	if err != nil {
		return summary, fmt.Errorf("medication orders: %w", err)
	}
	if !t.HasColumn(rules.KeyColumn) {
		return summary, fmt.Errorf("medication orders: %w: %s", table.ErrMissingColumn, rules.KeyColumn)
	}

	valid := ValidRows(t, p.rules.StatusColumn, p.rules.VoidedValue)
	entry.WithField("rows", len(t.Rows)).WithField("valid", len(valid)).Info("loaded orders")

	all := p.rules.All()
	flags := FlagTable(t, p.rules.TextColumn, all, valid)
	summary.Episodes = len(flags.Rows)
	tally(flags, summary.Counts)
	for _, rule := range all {
		entry.WithField("class", rule.Name).WithField("episodes", summary.Counts[rule.Name]).Info("classified")
	}

	if err := mergeBack(path, t, flags); err != nil {
		return summary, err
	}
	return summary, p.writeDocumentation(cohort)
}

func (p *Medications) writeDocumentation(cohort string) error {
	doc := newDocument("Glucose-lowering medication variables", rules.FileMedicationOrders)
	doc.note("Matching runs on ingredient names; voided orders (" + p.rules.VoidedValue + ") are excluded.")
	doc.note("Trade- and common-name overrides catch formulations absent from the ingredient field.")
	doc.section("Oral agents", p.rules.Oral)
	doc.section("Insulins", p.rules.Insulin)
	return doc.write(filepath.Join(p.cfg.CohortDir(cohort), "medication_variables.txt"))
}

// tally counts "1" cells per feature column of a flag frame.
func tally(flags *table.Table, counts map[string]int) {
	for c, name := range flags.Header {
		if name == rules.KeyColumn {
			continue
		}
		for r := range flags.Rows {
			if flags.Cell(r, c) == "1" {
				counts[name]++
			}
		}
	}
}
