// Package assemble builds the per-patient-per-day modeling table: daily
// glucose statistics with next-day outcome labels, joined with the static
// and dynamic features the extraction passes produced, trimmed of the
// partial first and last hospital days.
package assemble

import (
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/glucolab/pipeline/pkg/rules"
	"github.com/glucolab/pipeline/pkg/table"
)

// Outcome labels for the next-day glucose classification.
const (
	OutcomeHypo   = 0
	OutcomeNormal = 1
	OutcomeHyper  = 2
)

// DayRecord is one episode-day of glucose measurements with its next-day
// label.
type DayRecord struct {
	Key     string
	Date    string
	Min     float64
	Max     float64
	Mean    float64
	Std     float64
	Count   int
	CV      float64
	Outcome int
}

// DailyGlucose groups glucose measurements by (episode, day), computes the
// per-day statistics and labels each day by the following day's extremes.
// Days without a following day of measurements are dropped: they have no
// observable outcome. Hypoglycemia takes precedence over hyperglycemia.
func DailyGlucose(t *table.Table, hypo, hyper float64) []DayRecord {
	keyIdx := t.Index(rules.KeyColumn)
	timeIdx := t.Index("exam_time")
	valueIdx := t.Index("blood_sugar")
	if keyIdx < 0 || timeIdx < 0 || valueIdx < 0 {
		return nil
	}

	byDay := make(map[string]map[string][]float64)
	for r := range t.Rows {
		ts, ok := table.ParseTime(t.Cell(r, timeIdx))
		if !ok {
			continue
		}
		value, ok := table.ParseFloat(t.Cell(r, valueIdx))
		if !ok {
			continue
		}
		key := t.Cell(r, keyIdx)
		date := ts.Format("2006-01-02")
		if byDay[key] == nil {
			byDay[key] = make(map[string][]float64)
		}
		byDay[key][date] = append(byDay[key][date], value)
	}

	keys := make([]string, 0, len(byDay))
	for k := range byDay {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []DayRecord
	for _, key := range keys {
		days := byDay[key]
		dates := make([]string, 0, len(days))
		for d := range days {
			dates = append(dates, d)
		}
		sort.Strings(dates)
		for _, date := range dates {
			next, ok := days[nextDate(date)]
			if !ok {
				continue
			}
			values := days[date]
			mean := stat.Mean(values, nil)
			std := stat.PopStdDev(values, nil)
			rec := DayRecord{
				Key:   key,
				Date:  date,
				Min:   floats.Min(values),
				Max:   floats.Max(values),
				Mean:  mean,
				Std:   std,
				Count: len(values),
				CV:    round2(std / mean * 100),
			}
			switch {
			case floats.Min(next) < hypo:
				rec.Outcome = OutcomeHypo
			case floats.Max(next) > hyper:
				rec.Outcome = OutcomeHyper
			default:
				rec.Outcome = OutcomeNormal
			}
			out = append(out, rec)
		}
	}
	return out
}

func nextDate(date string) string {
	ts, err := time.Parse("2006-01-02", date)
	if err != nil {
		return ""
	}
	return ts.AddDate(0, 0, 1).Format("2006-01-02")
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// baseTable renders daily records into the time-series base frame.
func baseTable(records []DayRecord) *table.Table {
	t := table.New(rules.KeyColumn, "date",
		"min_glucose", "max_glucose", "mean_glucose", "std_glucose",
		"count_glucose", "cv_glucose", "outcome")
	for _, r := range records {
		t.AppendRow([]string{
			r.Key, r.Date,
			formatFloat(r.Min), formatFloat(r.Max), formatFloat(r.Mean), formatFloat(r.Std),
			strconv.Itoa(r.Count), strconv.FormatFloat(r.CV, 'f', 2, 64),
			strconv.Itoa(r.Outcome),
		})
	}
	return t
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
