package features

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/glucolab/pipeline/pkg/common/config"
	"github.com/glucolab/pipeline/pkg/common/logger"
	"github.com/glucolab/pipeline/pkg/rules"
	"github.com/glucolab/pipeline/pkg/table"
)

// surgeryDatePattern pulls the planned date out of free-text surgery
// orders, e.g. "拟2023/6/19 8:18:34行..." -> 2023-06-19.
var surgeryDatePattern = regexp.MustCompile(`(\d{4})[/-](\d{1,2})[/-](\d{1,2})`)

// ExtractSurgeryDate normalizes the first date found in an order item text
// to YYYY-MM-DD, rejecting impossible calendar dates.
func ExtractSurgeryDate(content string) (string, bool) {
	for _, m := range surgeryDatePattern.FindAllStringSubmatch(content, -1) {
		ts, err := time.Parse("2006-1-2", fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3]))
		if err != nil {
			continue
		}
		return ts.Format("2006-01-02"), true
	}
	return "", false
}

// Surgery extracts surgery events from the non-drug orders table: a 0/1
// flag plus the sorted, comma-joined list of planned dates per episode.
type Surgery struct {
	cfg   *config.Config
	rules rules.OrderRules
}

func NewSurgery(cfg *config.Config, r rules.OrderRules) *Surgery {
	return &Surgery{cfg: cfg, rules: r}
}

func (p *Surgery) Run(cohort string) (PassSummary, error) {
	summary := PassSummary{Cohort: cohort, Counts: make(map[string]int)}
	entry := logger.ForStage("surgery", cohort)

	path := filepath.Join(p.cfg.CohortDir(cohort), rules.FileNonDrugOrders)
	t, err := table.Read(path)
	if err != nil {
		return summary, fmt.Errorf("non-drug orders: %w", err)
	}
	keyIdx := t.Index(rules.KeyColumn)
	typeIdx := t.Index(p.rules.TypeColumn)
	itemIdx := t.Index(p.rules.ItemColumn)
	if keyIdx < 0 || typeIdx < 0 || itemIdx < 0 {
		return summary, fmt.Errorf("non-drug orders: %w", table.ErrMissingColumn)
	}

	dates := make(map[string]map[string]bool)
	records, extracted := 0, 0
	for _, r := range ValidRows(t, p.rules.StatusColumn, p.rules.VoidedValue) {
		if !table.ContainsFold(t.Cell(r, typeIdx), p.rules.SurgeryType) {
			continue
		}
		records++
		date, ok := ExtractSurgeryDate(t.Cell(r, itemIdx))
		if !ok {
			continue
		}
		extracted++
		key := t.Cell(r, keyIdx)
		if dates[key] == nil {
			dates[key] = make(map[string]bool)
		}
		dates[key][date] = true
	}
	entry.WithField("surgery_rows", records).WithField("dated", extracted).Info("scanned orders")

	flags := table.New(rules.KeyColumn, "Surgery", "Surgery_dates")
	for _, key := range t.DistinctKeys(rules.KeyColumn) {
		if set := dates[key]; len(set) > 0 {
			sorted := make([]string, 0, len(set))
			for d := range set {
				sorted = append(sorted, d)
			}
			sort.Strings(sorted)
			flags.AppendRow([]string{key, "1", strings.Join(sorted, ", ")})
			summary.Counts["Surgery"]++
		} else {
			flags.AppendRow([]string{key, "0", ""})
		}
	}
	summary.Episodes = len(flags.Rows)
	entry.WithField("episodes", summary.Episodes).WithField("with_surgery", summary.Counts["Surgery"]).Info("aggregated")

	if err := mergeBack(path, t, flags, "Surgery_dates"); err != nil {
		return summary, err
	}
	doc := newDocument("Surgery event variables", rules.FileNonDrugOrders)
	doc.note("Surgery: 0/1, any valid order whose " + p.rules.TypeColumn + " contains " + p.rules.SurgeryType + ".")
	doc.note("Surgery_dates: planned dates parsed from " + p.rules.ItemColumn + ", sorted, comma-joined.")
	return summary, doc.write(filepath.Join(p.cfg.CohortDir(cohort), "surgery_variables.txt"))
}

// FastingNutrition extracts fasting and enteral/parenteral nutrition time
// windows from the non-drug orders table.
type FastingNutrition struct {
	cfg   *config.Config
	rules rules.OrderRules
}

func NewFastingNutrition(cfg *config.Config, r rules.OrderRules) *FastingNutrition {
	return &FastingNutrition{cfg: cfg, rules: r}
}

// FastingWindow snaps a prescribed timestamp to [that day 08:00, next day
// 08:00) and renders the window in list form.
func FastingWindow(prescribed time.Time) string {
	start := time.Date(prescribed.Year(), prescribed.Month(), prescribed.Day(), 8, 0, 0, 0, prescribed.Location())
	return start.Format("2006-01-02 15:04") + " - " + start.AddDate(0, 0, 1).Format("2006-01-02 15:04")
}

func (p *FastingNutrition) Run(cohort string) (PassSummary, error) {
	summary := PassSummary{Cohort: cohort, Counts: make(map[string]int)}
	entry := logger.ForStage("fasting-nutrition", cohort)

	path := filepath.Join(p.cfg.CohortDir(cohort), rules.FileNonDrugOrders)
	t, err := table.Read(path)
	if err != nil {
		return summary, fmt.Errorf("non-drug orders: %w", err)
	}
	keyIdx := t.Index(rules.KeyColumn)
	itemIdx := t.Index(p.rules.ItemColumn)
	prescribedIdx := t.Index(p.rules.PrescribedColumn)
	startIdx := t.Index(p.rules.StartColumn)
	stopIdx := t.Index(p.rules.StopColumn)
	if keyIdx < 0 || itemIdx < 0 || prescribedIdx < 0 || startIdx < 0 || stopIdx < 0 {
		return summary, fmt.Errorf("non-drug orders: %w", table.ErrMissingColumn)
	}

	fasting := make(map[string][]string)
	nutrition := make(map[string][]string)
	discarded := 0
	for r := range t.Rows {
		key := t.Cell(r, keyIdx)
		item := t.Cell(r, itemIdx)
		if table.ContainsFold(item, p.rules.FastingKeyword) {
			start, okStart := table.ParseTime(t.Cell(r, startIdx))
			stop, okStop := table.ParseTime(t.Cell(r, stopIdx))
			if !okStart || !okStop || stop.Sub(start).Hours() > p.rules.MaxFastingHours {
				discarded++
				continue
			}
			prescribed, ok := table.ParseTime(t.Cell(r, prescribedIdx))
			if !ok {
				discarded++
				continue
			}
			fasting[key] = append(fasting[key], FastingWindow(prescribed))
			continue
		}
		if lowerContainsAny(item, p.rules.NutritionKeywords) {
			window := table.Clean(t.Cell(r, startIdx)) + " - " + table.Clean(t.Cell(r, stopIdx))
			nutrition[key] = append(nutrition[key], window)
		}
	}
	entry.WithField("fasting_discarded", discarded).Info("windows extracted")

	flags := table.New(rules.KeyColumn, "Fasting", "Fasting_periods", "Nutrition", "Nutrition_periods")
	for _, key := range t.DistinctKeys(rules.KeyColumn) {
		row := []string{key, "0", "", "0", ""}
		if periods := fasting[key]; len(periods) > 0 {
			row[1], row[2] = "1", strings.Join(periods, "; ")
			summary.Counts["Fasting"]++
		}
		if periods := nutrition[key]; len(periods) > 0 {
			row[3], row[4] = "1", strings.Join(periods, "; ")
			summary.Counts["Nutrition"]++
		}
		flags.AppendRow(row)
	}
	summary.Episodes = len(flags.Rows)
	entry.WithField("fasting", summary.Counts["Fasting"]).
		WithField("nutrition", summary.Counts["Nutrition"]).Info("aggregated")

	if err := mergeBack(path, t, flags, "Fasting_periods", "Nutrition_periods"); err != nil {
		return summary, err
	}
	doc := newDocument("Fasting and nutrition variables", rules.FileNonDrugOrders)
	doc.note("Fasting windows snap the prescribed time to 08:00 and span 24 hours;")
	doc.note("orders whose stop-start span exceeds " + fmt.Sprintf("%.0f", p.rules.MaxFastingHours) + " hours are dropped from the window list.")
	doc.note("Nutrition windows are the raw start - stop pair for orders naming " + strings.Join(p.rules.NutritionKeywords, "/") + " without " + p.rules.FastingKeyword + ".")
	return summary, doc.write(filepath.Join(p.cfg.CohortDir(cohort), "nutrition_variables.txt"))
}

func lowerContainsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if table.ContainsFold(text, kw) {
			return true
		}
	}
	return false
}
