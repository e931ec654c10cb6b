package assemble

import (
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/glucolab/pipeline/pkg/normalize"
	"github.com/glucolab/pipeline/pkg/rules"
	"github.com/glucolab/pipeline/pkg/table"
)

// comorbidityCarryOver lists the diagnosis flags promoted onto the final
// table, per-episode max. HL is renamed HLD downstream.
var comorbidityCarryOver = []string{
	"T1DM", "HTN", "HL", "CAD", "Malignant_tumor", "CRF", "RRT",
	"DPVD", "DPN", "DF", "DN", "DR",
}

var positiveMarkers = map[string]bool{"是": true, "有": true, "Y": true, "y": true, "1": true}

// binaryMarker maps free-text yes/no answers to a 0/1 flag.
func binaryMarker(v string) string {
	if positiveMarkers[table.Clean(v)] {
		return "1"
	}
	return "0"
}

// staticFeatures builds the one-row-per-episode feature frame: demographics
// from the admission notes, first-recorded anthropometrics, per-episode
// comorbidity flags and the campus. Missing source files degrade to fewer
// columns with a warning.
func staticFeatures(dir string, entry *logrus.Entry) *table.Table {
	out := table.New(rules.KeyColumn)

	if notes, err := table.Read(filepath.Join(dir, rules.FileAdmissionNotes)); err != nil {
		entry.WithError(err).Warn("admission notes absent, demographics skipped")
	} else {
		keyIdx := notes.Index(rules.KeyColumn)
		smokingIdx := notes.Index("is_smoking")
		drinkingIdx := notes.Index("is_drinking")
		seen := make(map[string]bool)
		for r := range notes.Rows {
			key := notes.Cell(r, keyIdx)
			if keyIdx < 0 || seen[key] {
				continue
			}
			seen[key] = true
			row := []string{key}
			if smokingIdx >= 0 {
				row = append(row, binaryMarker(notes.Cell(r, smokingIdx)))
			}
			if drinkingIdx >= 0 {
				row = append(row, binaryMarker(notes.Cell(r, drinkingIdx)))
			}
			out.AppendRow(row)
		}
		if smokingIdx >= 0 {
			out.Header = append(out.Header, "Smoking")
		}
		if drinkingIdx >= 0 {
			out.Header = append(out.Header, "Drinking")
		}
		normalizeWidth(out)
	}

	if vitals, err := table.Read(filepath.Join(dir, rules.FileVitalSigns)); err != nil {
		entry.WithError(err).Warn("vital signs absent, anthropometrics skipped")
	} else {
		appendLookup(out, vitals, "height", "Height")
		appendLookup(out, vitals, "weight", "Weight")
		appendLookup(out, vitals, "body_mass_index", "BMI")
	}

	if diag, err := table.Read(filepath.Join(dir, rules.FileDiagnosis)); err != nil {
		entry.WithError(err).Warn("diagnosis absent, comorbidity flags skipped")
	} else {
		keyIdx := diag.Index(rules.KeyColumn)
		for _, col := range comorbidityCarryOver {
			src := diag.Index(col)
			if src < 0 || keyIdx < 0 {
				continue
			}
			maxByKey := make(map[string]string)
			for r := range diag.Rows {
				key := diag.Cell(r, keyIdx)
				if diag.Cell(r, src) == "1" {
					maxByKey[key] = "1"
				} else if _, ok := maxByKey[key]; !ok {
					maxByKey[key] = "0"
				}
			}
			name := col
			if name == "HL" {
				name = "HLD"
			}
			appendByKey(out, name, maxByKey, "0")
		}
	}

	if hosp, err := table.Read(filepath.Join(dir, rules.FileHospitalization)); err != nil {
		entry.WithError(err).Warn("hospitalization absent, campus skipped")
	} else {
		campus := campusByKey(hosp)
		appendByKey(out, "Campus", campus, "")
	}

	return out
}

// campusByKey takes the first non-empty campus per episode, recomputing it
// from the visit department text when the normalizer's Campus column is
// absent. Blank leading rows do not shadow a campus a later row records.
func campusByKey(hosp *table.Table) map[string]string {
	keyIdx := hosp.Index(rules.KeyColumn)
	campusIdx := hosp.Index("Campus")
	deptIdx := hosp.Index("visit_department")
	out := make(map[string]string)
	if keyIdx < 0 {
		return out
	}
	for r := range hosp.Rows {
		key := hosp.Cell(r, keyIdx)
		if out[key] != "" {
			continue
		}
		var v string
		switch {
		case campusIdx >= 0:
			v = table.Clean(hosp.Cell(r, campusIdx))
		case deptIdx >= 0:
			v = normalize.ExtractCampus(hosp.Cell(r, deptIdx))
		}
		if v != "" {
			out[key] = v
		}
	}
	return out
}

// firstValuePerKey maps each episode to its first non-empty value of a
// column; a blank earlier row never shadows a value a later row records.
func firstValuePerKey(t *table.Table, srcCol string) (map[string]string, bool) {
	keyIdx := t.Index(rules.KeyColumn)
	idx := t.Index(srcCol)
	out := make(map[string]string)
	if keyIdx < 0 || idx < 0 {
		return out, false
	}
	for r := range t.Rows {
		key := t.Cell(r, keyIdx)
		if out[key] != "" {
			continue
		}
		out[key] = table.Clean(t.Cell(r, idx))
	}
	return out, true
}

func appendLookup(out, src *table.Table, srcCol, name string) {
	byKey, ok := firstValuePerKey(src, srcCol)
	if !ok {
		return
	}
	appendByKey(out, name, byKey, "")
}

// appendByKey appends a column to the static frame, adding rows for keys
// the frame has not seen yet.
func appendByKey(out *table.Table, name string, byKey map[string]string, fill string) {
	keyIdx := out.Index(rules.KeyColumn)
	present := make(map[string]bool, len(out.Rows))
	for r := range out.Rows {
		present[out.Cell(r, keyIdx)] = true
	}
	var missing []string
	for key := range byKey {
		if !present[key] {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	for _, key := range missing {
		row := make([]string, len(out.Header))
		row[0] = key
		out.AppendRow(row)
	}

	values := make([]string, len(out.Rows))
	for r := range out.Rows {
		if v, ok := byKey[out.Cell(r, keyIdx)]; ok {
			values[r] = v
		} else {
			values[r] = fill
		}
	}
	out.AppendColumn(name, values)
}

// normalizeWidth pads short rows to the header width after columns were
// appended conditionally.
func normalizeWidth(t *table.Table) {
	for r, row := range t.Rows {
		for len(row) < len(t.Header) {
			row = append(row, "")
		}
		t.Rows[r] = row
	}
}
