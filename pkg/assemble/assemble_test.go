package assemble

import (
	"path/filepath"
	"strconv"
	"testing"

	"github.com/glucolab/pipeline/pkg/common/config"
	"github.com/glucolab/pipeline/pkg/common/logger"
	"github.com/glucolab/pipeline/pkg/rules"
	"github.com/glucolab/pipeline/pkg/table"
)

func init() {
	logger.Init()
}

func glucoseTable(rows [][2]string) *table.Table {
	t := table.New(rules.KeyColumn, "exam_time", "blood_sugar")
	for _, r := range rows {
		t.AppendRow([]string{"e1", r[0], r[1]})
	}
	return t
}

func TestDailyGlucoseHypoPrecedence(t *testing.T) {
	// day one is benign; day two satisfies both outcome conditions
	g := glucoseTable([][2]string{
		{"2024-03-01", "5.0"},
		{"2024-03-01", "10.0"},
		{"2024-03-02", "3.5"},
		{"2024-03-02", "14.0"},
	})
	records := DailyGlucose(g, 3.9, 13.9)
	if len(records) != 1 {
		t.Fatalf("labeled days = %d, want 1 (last day has no outcome)", len(records))
	}
	rec := records[0]
	if rec.Date != "2024-03-01" {
		t.Fatalf("date = %s", rec.Date)
	}
	if rec.Outcome != OutcomeHypo {
		t.Fatalf("outcome = %d, want hypoglycemia to take precedence", rec.Outcome)
	}
}

func TestDailyGlucoseStats(t *testing.T) {
	g := glucoseTable([][2]string{
		{"2024-03-01", "4.0"},
		{"2024-03-01", "6.0"},
		{"2024-03-02", "5.0"},
	})
	records := DailyGlucose(g, 3.9, 13.9)
	if len(records) != 1 {
		t.Fatalf("records = %d", len(records))
	}
	rec := records[0]
	if rec.Min != 4.0 || rec.Max != 6.0 || rec.Mean != 5.0 || rec.Count != 2 {
		t.Fatalf("stats = %+v", rec)
	}
	// population std of {4,6} is 1, so CV = 1/5*100 = 20.00
	if rec.Std != 1.0 {
		t.Fatalf("std = %v, want population std 1", rec.Std)
	}
	if rec.CV != 20.0 {
		t.Fatalf("cv = %v, want 20", rec.CV)
	}
	if rec.Outcome != OutcomeNormal {
		t.Fatalf("outcome = %d, want normal", rec.Outcome)
	}
}

func TestDailyGlucoseDropsUnparseableRows(t *testing.T) {
	g := glucoseTable([][2]string{
		{"2024-03-01", "5.0"},
		{"2024-03-01", "not-a-number"},
		{"", "5.5"},
		{"2024-03-02", "5.0"},
	})
	records := DailyGlucose(g, 3.9, 13.9)
	if len(records) != 1 || records[0].Count != 1 {
		t.Fatalf("records = %+v, want one day with one valid measurement", records)
	}
}

func TestTrimBoundaryDays(t *testing.T) {
	tb := table.New(rules.KeyColumn, "date")
	for _, d := range []string{"d1", "d2", "d3"} {
		tb.AppendRow([]string{"e1", d})
	}
	tb.AppendRow([]string{"e2", "d1"})
	tb.AppendRow([]string{"e2", "d2"})

	trimBoundaryDays(tb)
	if len(tb.Rows) != 1 {
		t.Fatalf("rows = %d, want 1 (middle day of e1 only)", len(tb.Rows))
	}
	if tb.Cell(0, 0) != "e1" || tb.Cell(0, 1) != "d2" {
		t.Fatalf("surviving row = %v", tb.Rows[0])
	}
}

func TestAddPriorHypoPropagatesForward(t *testing.T) {
	tb := table.New(rules.KeyColumn, "date", "min_glucose")
	tb.AppendRow([]string{"e1", "d1", "5.0"})
	tb.AppendRow([]string{"e1", "d2", "3.0"})
	tb.AppendRow([]string{"e1", "d3", "5.0"})
	tb.AppendRow([]string{"e1", "d4", "5.0"})
	tb.AppendRow([]string{"e2", "d1", "5.0"})

	addPriorHypo(tb, 3.9)
	idx := tb.Index("PREHYPO")
	want := []string{"0", "0", "1", "1", "0"}
	for r, w := range want {
		if got := tb.Cell(r, idx); got != w {
			t.Fatalf("row %d PREHYPO = %s, want %s", r, got, w)
		}
	}
}

func TestAddHospDay(t *testing.T) {
	tb := table.New(rules.KeyColumn, "date")
	tb.AppendRow([]string{"e1", "d1"})
	tb.AppendRow([]string{"e1", "d2"})
	tb.AppendRow([]string{"e2", "d1"})

	addHospDay(tb)
	idx := tb.Index("HospDay")
	if tb.Cell(0, idx) != "1" || tb.Cell(1, idx) != "2" || tb.Cell(2, idx) != "1" {
		t.Fatalf("HospDay column wrong: %v", tb.Rows)
	}
}

func TestBinarize(t *testing.T) {
	tb := table.New(rules.KeyColumn, "outcome")
	tb.AppendRow([]string{"e1", strconv.Itoa(OutcomeHypo)})
	tb.AppendRow([]string{"e2", strconv.Itoa(OutcomeNormal)})
	tb.AppendRow([]string{"e3", strconv.Itoa(OutcomeHyper)})

	bin := binarize(tb)
	idx := bin.Index("outcome")
	if bin.Cell(0, idx) != "1" || bin.Cell(1, idx) != "0" || bin.Cell(2, idx) != "0" {
		t.Fatalf("binarized outcomes = %v", bin.Rows)
	}
	// the original table keeps the three-class labels
	if tb.Cell(2, 1) != strconv.Itoa(OutcomeHyper) {
		t.Fatal("binarize mutated the source table")
	}
}

func TestMissingnessReport(t *testing.T) {
	tb := table.New(rules.KeyColumn, "date", GroupColumn, "outcome", "HbA1c")
	tb.AppendRow([]string{"e1", "d1", "Health", "1", "6.5"})
	tb.AppendRow([]string{"e2", "d1", "Health", "1", ""})

	report := missingnessReport(tb)
	if len(report.Rows) != 1 {
		t.Fatalf("report rows = %d, want only the feature column", len(report.Rows))
	}
	row := report.Rows[0]
	if row[0] != "HbA1c" || row[1] != "1" || row[2] != "50.00%" || row[3] != "" {
		t.Fatalf("report row = %v", row)
	}
}

func TestStaticFeaturesSkipBlankLeadingRows(t *testing.T) {
	dir := t.TempDir()

	// first vitals row has no measurements; the later row carries them
	vitals := table.New(rules.KeyColumn, "height", "weight", "body_mass_index")
	vitals.AppendRow([]string{"e1", "", "", ""})
	vitals.AppendRow([]string{"e1", "170", "65", "22"})
	vitals.AppendRow([]string{"e2", "160", "", ""})
	if err := vitals.Write(filepath.Join(dir, rules.FileVitalSigns)); err != nil {
		t.Fatal(err)
	}

	hosp := table.New(rules.KeyColumn, "Campus")
	hosp.AppendRow([]string{"e1", ""})
	hosp.AppendRow([]string{"e1", "月湖"})
	if err := hosp.Write(filepath.Join(dir, rules.FileHospitalization)); err != nil {
		t.Fatal(err)
	}

	static := staticFeatures(dir, logger.ForStage("assemble", "Health"))
	byKey := make(map[string][]string)
	for r := range static.Rows {
		byKey[static.Cell(r, 0)] = static.Rows[r]
	}
	hIdx := static.Index("Height")
	wIdx := static.Index("Weight")
	if hIdx < 0 || wIdx < 0 {
		t.Fatalf("anthropometric columns missing: %v", static.Header)
	}
	if got := byKey["e1"][hIdx]; got != "170" {
		t.Fatalf("e1 Height = %q, want first non-empty 170", got)
	}
	if got := byKey["e1"][wIdx]; got != "65" {
		t.Fatalf("e1 Weight = %q, want 65", got)
	}
	if got := byKey["e2"][hIdx]; got != "160" {
		t.Fatalf("e2 Height = %q", got)
	}
	if got := byKey["e1"][static.Index("Campus")]; got != "月湖" {
		t.Fatalf("e1 Campus = %q, want the later row's value", got)
	}
}

func TestStageRunWritesOutputs(t *testing.T) {
	base := t.TempDir()
	cfg := &config.Config{
		BaseDir:         base,
		HypoThreshold:   3.9,
		HyperThreshold:  13.9,
		ThreeClassFile:  filepath.Join(base, "three.csv"),
		BinaryFile:      filepath.Join(base, "binary.csv"),
		MissingnessFile: filepath.Join(base, "missing.csv"),
	}
	dir := cfg.CohortDir("Health")

	g := table.New(rules.KeyColumn, "exam_time", "blood_sugar")
	for _, row := range [][]string{
		{"e1", "2024-03-01", "5.0"},
		{"e1", "2024-03-02", "3.0"},
		{"e1", "2024-03-03", "5.0"},
		{"e1", "2024-03-04", "15.0"},
		{"e1", "2024-03-05", "5.0"},
	} {
		g.AppendRow(row)
	}
	if err := g.Write(filepath.Join(dir, rules.FileGlucose)); err != nil {
		t.Fatal(err)
	}

	summary, err := New(cfg, []string{"Health", "HYPO"}).Run()
	if err != nil {
		t.Fatal(err)
	}
	// 4 labeled days, minus first and last
	if summary.Rows != 2 {
		t.Fatalf("rows = %d, want 2", summary.Rows)
	}
	if summary.PerCohort["HYPO"] != 0 {
		t.Fatalf("empty cohort contributed rows: %+v", summary.PerCohort)
	}

	three, err := table.Read(cfg.ThreeClassFile)
	if err != nil {
		t.Fatal(err)
	}
	if !three.HasColumn(GroupColumn) || !three.HasColumn("HospDay") || !three.HasColumn("PREHYPO") {
		t.Fatalf("missing derived columns: %v", three.Header)
	}
	outcomeIdx := three.Index("outcome")
	// surviving days are 03-02 (next day normal) and 03-03 (next day hyper)
	if three.Cell(0, outcomeIdx) != "1" || three.Cell(1, outcomeIdx) != "2" {
		t.Fatalf("outcomes = %q %q", three.Cell(0, outcomeIdx), three.Cell(1, outcomeIdx))
	}

	bin, err := table.Read(cfg.BinaryFile)
	if err != nil {
		t.Fatal(err)
	}
	if bin.Cell(0, bin.Index("outcome")) != "0" {
		t.Fatalf("binary outcome = %q", bin.Cell(0, bin.Index("outcome")))
	}

	if _, err := table.Read(cfg.MissingnessFile); err != nil {
		t.Fatal(err)
	}
}
