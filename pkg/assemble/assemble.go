package assemble

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/glucolab/pipeline/pkg/common/config"
	"github.com/glucolab/pipeline/pkg/common/logger"
	"github.com/glucolab/pipeline/pkg/rules"
	"github.com/glucolab/pipeline/pkg/table"
)

// GroupColumn marks each row of the combined table with its cohort.
const GroupColumn = "group"

type Summary struct {
	Rows      int
	PerCohort map[string]int
	Outcomes  map[int]int
}

type Stage struct {
	cfg     *config.Config
	cohorts []string
}

func New(cfg *config.Config, cohorts []string) *Stage {
	return &Stage{cfg: cfg, cohorts: cohorts}
}

// Run builds the combined per-day modeling table across all cohorts and
// writes the three-class table, the hypoglycemia-binary table and the
// missingness report. Cohorts without usable glucose data are skipped.
func (s *Stage) Run() (Summary, error) {
	summary := Summary{PerCohort: make(map[string]int), Outcomes: make(map[int]int)}

	var combined *table.Table
	for _, cohort := range s.cohorts {
		t, err := s.buildCohort(cohort)
		if err != nil {
			logger.ForStage("assemble", cohort).WithError(err).Warn("cohort skipped")
			continue
		}
		if t == nil || len(t.Rows) == 0 {
			continue
		}
		group := make([]string, len(t.Rows))
		for i := range group {
			group[i] = cohort
		}
		t.AppendColumn(GroupColumn, group)
		summary.PerCohort[cohort] = len(t.Rows)
		if combined == nil {
			combined = t
		} else {
			combined.Concat(t)
		}
	}
	if combined == nil {
		return summary, fmt.Errorf("no cohort produced daily records")
	}
	summary.Rows = len(combined.Rows)
	tallyOutcomes(combined, summary.Outcomes)

	if err := combined.Write(s.cfg.ThreeClassFile); err != nil {
		return summary, err
	}
	if err := missingnessReport(combined).Write(s.cfg.MissingnessFile); err != nil {
		return summary, err
	}

	binary := binarize(combined)
	if err := binary.Write(s.cfg.BinaryFile); err != nil {
		return summary, err
	}

	if s.cfg.SQLitePath != "" {
		if err := writeSQLite(s.cfg.SQLitePath, map[string]*table.Table{
			"daily_three_class": combined,
			"daily_hypo_binary": binary,
		}); err != nil {
			return summary, fmt.Errorf("sqlite artifact: %w", err)
		}
	}

	logger.ForStage("assemble", "combined").
		WithField("rows", summary.Rows).
		WithField("hypo_days", summary.Outcomes[OutcomeHypo]).
		WithField("hyper_days", summary.Outcomes[OutcomeHyper]).Info("modeling tables written")
	return summary, nil
}

func (s *Stage) buildCohort(cohort string) (*table.Table, error) {
	entry := logger.ForStage("assemble", cohort)
	dir := s.cfg.CohortDir(cohort)

	glucose, err := table.Read(filepath.Join(dir, rules.FileGlucose))
	if err != nil {
		return nil, fmt.Errorf("glucose: %w", err)
	}
	records := DailyGlucose(glucose, s.cfg.HypoThreshold, s.cfg.HyperThreshold)
	if len(records) == 0 {
		entry.Warn("no labeled glucose days")
		return nil, nil
	}
	base := baseTable(records)
	entry.WithField("days", len(base.Rows)).Info("daily glucose base built")

	static := staticFeatures(dir, entry)
	if len(static.Header) > 1 {
		base.LeftJoin(rules.KeyColumn, static, nil)
	}
	for _, frame := range labFrames(dir, entry) {
		mergeDaily(base, frame)
	}
	if meds := medicationFlags(dir, entry); meds != nil {
		base.LeftJoin(rules.KeyColumn, meds, nil)
	}

	addHospDay(base)
	addPriorHypo(base, s.cfg.HypoThreshold)
	trimBoundaryDays(base)
	entry.WithField("days", len(base.Rows)).Info("boundary days trimmed")
	return base, nil
}

// mergeDaily appends a (episode, date)-keyed frame's columns onto the base
// table. A column name already present gets a numeric suffix, mirroring
// collisions between lab panels.
func mergeDaily(base *table.Table, f *dailyFrame) {
	keyIdx := base.Index(rules.KeyColumn)
	dateIdx := base.Index("date")
	if keyIdx < 0 || dateIdx < 0 {
		return
	}
	for _, col := range f.columns {
		name := col
		for base.HasColumn(name) {
			name += "_2"
		}
		values := make([]string, len(base.Rows))
		for r := range base.Rows {
			k := dayKey{base.Cell(r, keyIdx), base.Cell(r, dateIdx)}
			if day := f.values[k]; day != nil {
				values[r] = day[col]
			}
		}
		base.AppendColumn(name, values)
	}
}

// addHospDay appends the 1-based in-hospital day index. Rows arrive sorted
// by episode and date.
func addHospDay(t *table.Table) {
	keyIdx := t.Index(rules.KeyColumn)
	values := make([]string, len(t.Rows))
	count := make(map[string]int)
	for r := range t.Rows {
		key := t.Cell(r, keyIdx)
		count[key]++
		values[r] = strconv.Itoa(count[key])
	}
	t.AppendColumn("HospDay", values)
}

// addPriorHypo appends the forward-propagating prior-hypoglycemia flag: 1
// once any earlier day of the episode dipped below the threshold.
func addPriorHypo(t *table.Table, threshold float64) {
	keyIdx := t.Index(rules.KeyColumn)
	minIdx := t.Index("min_glucose")
	values := make([]string, len(t.Rows))
	carry := make(map[string]bool)
	for r := range t.Rows {
		key := t.Cell(r, keyIdx)
		if carry[key] {
			values[r] = "1"
		} else {
			values[r] = "0"
		}
		if v, ok := table.ParseFloat(t.Cell(r, minIdx)); ok && v < threshold {
			carry[key] = true
		}
	}
	t.AppendColumn("PREHYPO", values)
}

// trimBoundaryDays drops the first and last day-sequence row of every
// episode; admission and discharge days are partial.
func trimBoundaryDays(t *table.Table) {
	keyIdx := t.Index(rules.KeyColumn)
	total := make(map[string]int)
	for r := range t.Rows {
		total[t.Cell(r, keyIdx)]++
	}
	seq := make(map[string]int)
	t.FilterRows(func(row []string) bool {
		key := ""
		if keyIdx < len(row) {
			key = row[keyIdx]
		}
		seq[key]++
		return seq[key] > 1 && seq[key] < total[key]
	})
}

// binarize rewrites the outcome into the hypoglycemia-only view: 1 for a
// next-day hypoglycemic label, 0 for everything else.
func binarize(t *table.Table) *table.Table {
	out := table.New(t.Header...)
	outcomeIdx := out.Index("outcome")
	for _, row := range t.Rows {
		dup := make([]string, len(row))
		copy(dup, row)
		if outcomeIdx >= 0 && outcomeIdx < len(dup) {
			if dup[outcomeIdx] == strconv.Itoa(OutcomeHypo) {
				dup[outcomeIdx] = "1"
			} else {
				dup[outcomeIdx] = "0"
			}
		}
		out.AppendRow(dup)
	}
	return out
}

// missingnessReport counts blank cells per feature column. The imputation
// strategy column is left for the analyst to fill in.
func missingnessReport(t *table.Table) *table.Table {
	skip := map[string]bool{rules.KeyColumn: true, "date": true, GroupColumn: true, "outcome": true}
	report := table.New("Variable", "Missing_Count", "Missing_Percent", "Imputation_Strategy")
	for c, name := range t.Header {
		if skip[name] {
			continue
		}
		missing := 0
		for r := range t.Rows {
			if t.Cell(r, c) == "" {
				missing++
			}
		}
		pct := 0.0
		if len(t.Rows) > 0 {
			pct = float64(missing) / float64(len(t.Rows)) * 100
		}
		report.AppendRow([]string{name, strconv.Itoa(missing), fmt.Sprintf("%.2f%%", pct), ""})
	}
	return report
}

func tallyOutcomes(t *table.Table, counts map[int]int) {
	idx := t.Index("outcome")
	if idx < 0 {
		return
	}
	for r := range t.Rows {
		if v, err := strconv.Atoi(t.Cell(r, idx)); err == nil {
			counts[v]++
		}
	}
}

// Cohorts lists cohort names from the normalizer rules in declaration
// order.
func Cohorts(n rules.NormalizerRules) []string {
	names := make([]string, 0, len(n.Cohorts))
	for _, c := range n.Cohorts {
		names = append(names, c.Name)
	}
	return names
}
