package assemble

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/glucolab/pipeline/pkg/rules"
	"github.com/glucolab/pipeline/pkg/table"
)

// medicationCarryOver lists the drug-class flags joined per episode onto
// the final table.
var medicationCarryOver = []string{
	"Metformin", "Sulfonylureas", "Glinides", "TZDs", "AGIs",
	"DPP4i", "SGLT2i", "Rapid_insulin", "Basal_insulin",
	"Dual_insulin", "Premixed_insulin",
}

// dailyFrame is a feature frame keyed by (episode, date).
type dailyFrame struct {
	columns []string
	values  map[dayKey]map[string]string
}

type dayKey struct {
	key  string
	date string
}

// labFrames builds the per-day lab panels: long-format chemistry and
// hematology pivoted to one column per assay, plus HbA1c and hs-CRP pulled
// from their dedicated panels. First parseable result of the day wins.
func labFrames(dir string, entry *logrus.Entry) []*dailyFrame {
	var frames []*dailyFrame

	for _, file := range []string{rules.FileLabChemistry, rules.FileLabHematology} {
		t, err := table.Read(filepath.Join(dir, file))
		if err != nil {
			entry.WithField("file", file).Warn("lab panel absent")
			continue
		}
		if f := pivotLong(t); f != nil {
			frames = append(frames, f)
			entry.WithField("file", file).WithField("assays", len(f.columns)).Info("panel pivoted")
		}
	}

	if t, err := table.Read(filepath.Join(dir, rules.FileLabMetabolic)); err != nil {
		entry.Warn("metabolic panel absent, HbA1c skipped")
	} else if f := singleResult(t, "HbA1c_test_result", "HbA1c_test_time", "HbA1c"); f != nil {
		frames = append(frames, f)
	}

	if t, err := table.Read(filepath.Join(dir, rules.FileLabCRP)); err != nil {
		entry.Warn("CRP panel absent, hs-CRP skipped")
	} else {
		// column names vary across export batches; locate by fragment
		resultCol := columnContaining(t, "hs-CRP_test_result")
		timeCol := columnContaining(t, "hs-CRP_test_time")
		if f := singleResult(t, resultCol, timeCol, "hs_CRP"); f != nil {
			frames = append(frames, f)
		}
	}

	return frames
}

func columnContaining(t *table.Table, fragment string) string {
	for _, h := range t.Header {
		if strings.Contains(h, fragment) {
			return h
		}
	}
	return ""
}

// pivotLong turns a long-format panel (pure_item_name, test_result,
// test_time) into one column per assay.
func pivotLong(t *table.Table) *dailyFrame {
	keyIdx := t.Index(rules.KeyColumn)
	itemIdx := t.Index("pure_item_name")
	resultIdx := t.Index("test_result")
	timeIdx := t.Index("test_time")
	if keyIdx < 0 || itemIdx < 0 || resultIdx < 0 || timeIdx < 0 {
		return nil
	}

	f := &dailyFrame{values: make(map[dayKey]map[string]string)}
	seen := make(map[string]bool)
	for r := range t.Rows {
		ts, ok := table.ParseTime(t.Cell(r, timeIdx))
		if !ok {
			continue
		}
		if _, ok := table.ParseFloat(t.Cell(r, resultIdx)); !ok {
			continue
		}
		item := table.Clean(t.Cell(r, itemIdx))
		if item == "" {
			continue
		}
		k := dayKey{t.Cell(r, keyIdx), ts.Format("2006-01-02")}
		if f.values[k] == nil {
			f.values[k] = make(map[string]string)
		}
		if _, ok := f.values[k][item]; !ok {
			f.values[k][item] = table.Clean(t.Cell(r, resultIdx))
		}
		if !seen[item] {
			seen[item] = true
			f.columns = append(f.columns, item)
		}
	}
	sort.Strings(f.columns)
	return f
}

// singleResult extracts one named assay from a wide panel.
func singleResult(t *table.Table, resultCol, timeCol, name string) *dailyFrame {
	keyIdx := t.Index(rules.KeyColumn)
	resultIdx := t.Index(resultCol)
	timeIdx := t.Index(timeCol)
	if keyIdx < 0 || resultIdx < 0 || timeIdx < 0 {
		return nil
	}
	f := &dailyFrame{columns: []string{name}, values: make(map[dayKey]map[string]string)}
	for r := range t.Rows {
		ts, ok := table.ParseTime(t.Cell(r, timeIdx))
		if !ok {
			continue
		}
		if _, ok := table.ParseFloat(t.Cell(r, resultIdx)); !ok {
			continue
		}
		k := dayKey{t.Cell(r, keyIdx), ts.Format("2006-01-02")}
		if f.values[k] == nil {
			f.values[k] = map[string]string{name: table.Clean(t.Cell(r, resultIdx))}
		}
	}
	return f
}

// medicationFlags lifts the drug-class columns off the medication orders,
// per-episode max.
func medicationFlags(dir string, entry *logrus.Entry) *table.Table {
	t, err := table.Read(filepath.Join(dir, rules.FileMedicationOrders))
	if err != nil {
		entry.WithError(err).Warn("medication orders absent, drug classes skipped")
		return nil
	}
	keyIdx := t.Index(rules.KeyColumn)
	if keyIdx < 0 {
		return nil
	}
	out := table.New(rules.KeyColumn)
	var present []int
	for _, col := range medicationCarryOver {
		if idx := t.Index(col); idx >= 0 {
			present = append(present, idx)
			out.Header = append(out.Header, col)
		}
	}
	if len(present) == 0 {
		entry.Warn("no drug-class columns on medication orders")
		return nil
	}

	flags := make(map[string][]string)
	var order []string
	for r := range t.Rows {
		key := t.Cell(r, keyIdx)
		row, ok := flags[key]
		if !ok {
			row = make([]string, len(present))
			for i := range row {
				row[i] = "0"
			}
			flags[key] = row
			order = append(order, key)
		}
		for i, idx := range present {
			if t.Cell(r, idx) == "1" {
				row[i] = "1"
			}
		}
	}
	for _, key := range order {
		out.AppendRow(append([]string{key}, flags[key]...))
	}
	return out
}
