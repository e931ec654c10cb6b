package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/glucolab/pipeline/pkg/common/config"
	"github.com/glucolab/pipeline/pkg/common/logger"
	"github.com/glucolab/pipeline/pkg/rules"
	"github.com/glucolab/pipeline/pkg/table"
)

func init() {
	logger.Init()
}

func testRules() rules.Ruleset {
	rs := rules.Default()
	rs.Normalizer.Cohorts = []rules.CohortSpec{{
		Name:    "Health",
		Folders: []string{"batch1"},
		Files: []rules.FileMapping{
			{Raw: "glucose_raw.csv", Canonical: rules.FileGlucose},
			{Raw: "diagnosis_raw.csv", Canonical: rules.FileDiagnosis},
			{Raw: "orders_raw.csv", Canonical: rules.FileMedicationOrders},
			{Raw: "non_drug_raw.csv", Canonical: rules.FileNonDrugOrders},
		},
	}}
	return rs
}

func writeRaw(t *testing.T, path string, lines string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("exported\nquery\n"+lines), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunnerExecutesAllStages(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "raw", "batch1")
	writeRaw(t, filepath.Join(src, "glucose_raw.csv"),
		"patient_sn,time_quantum,exam_time,blood_sugar\n"+
			"p1,1,2024-03-01 09:00:00,5.0\n"+
			"p1,1,2024-03-02 09:00:00,3.0\n"+
			"p1,1,2024-03-03 09:00:00,5.0\n"+
			"p1,1,2024-03-04 09:00:00,5.0\n"+
			"p1,1,2024-03-05 09:00:00,5.0\n")
	writeRaw(t, filepath.Join(src, "diagnosis_raw.csv"),
		"patient_sn,time_quantum,disease_name\np1,1,2型糖尿病\n")
	writeRaw(t, filepath.Join(src, "orders_raw.csv"),
		"patient_sn,time_quantum,order_status,inn_name,trade_name,common_name,drug_administration_method\n"+
			"p1,1,已执行,二甲双胍,,,口服\n")
	writeRaw(t, filepath.Join(src, "non_drug_raw.csv"),
		"patient_sn,time_quantum,order_status,order_type,order_item_name,prescribed_time,start_time,stop_time\n"+
			"p1,1,已执行,手术,拟2024/3/2行手术,2024-03-01 10:00:00,2024-03-01 10:00:00,2024-03-02 09:00:00\n")

	cfg := &config.Config{
		BaseDir:         base,
		SourceDir:       filepath.Join(base, "raw"),
		ColumnDoc:       filepath.Join(base, "absent.txt"),
		Workers:         2,
		PreambleRows:    2,
		DayBoundaryHour: 8,
		HypoThreshold:   3.9,
		HyperThreshold:  13.9,
		ThreeClassFile:  filepath.Join(base, "three.csv"),
		BinaryFile:      filepath.Join(base, "binary.csv"),
		MissingnessFile: filepath.Join(base, "missing.csv"),
	}

	runner := NewRunner(cfg, testRules())
	if runner.RunID() == "" {
		t.Fatal("expected a run id")
	}
	results, err := runner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 8 {
		t.Fatalf("stage results = %d, want 8", len(results))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("stage %s failed: %v", r.Name, r.Err)
		}
	}

	three, err := table.Read(cfg.ThreeClassFile)
	if err != nil {
		t.Fatal(err)
	}
	if len(three.Rows) == 0 {
		t.Fatal("final table is empty")
	}
	if !three.HasColumn("Metformin") {
		t.Fatalf("medication flags missing from final table: %v", three.Header)
	}
}

func TestRunnerAbortsWhenNormalizerProducesNothing(t *testing.T) {
	base := t.TempDir()
	cfg := &config.Config{
		BaseDir: base, SourceDir: filepath.Join(base, "raw"),
		Workers: 1, PreambleRows: 2, DayBoundaryHour: 8,
	}
	results, err := NewRunner(cfg, testRules()).Run(context.Background())
	if err == nil {
		t.Fatal("expected the normalize failure to surface")
	}
	if len(results) != 1 || results[0].Name != "normalize" {
		t.Fatalf("results = %+v, want only the normalize stage", results)
	}
}
