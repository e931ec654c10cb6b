package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glucolab/pipeline/pkg/common/config"
	"github.com/glucolab/pipeline/pkg/common/logger"
	"github.com/glucolab/pipeline/pkg/rules"
	"github.com/glucolab/pipeline/pkg/table"
)

func init() {
	logger.Init()
}

const sampleDoc = `
Health 组最终列名
  hospitalization.csv (3 列):
    A  . admission_key
    B  . visit_department
    C  . Campus

HYPO 组最终列名
  glucose.csv (2 列):
    A  . admission_key
    B  . blood_sugar
`

func TestParseColumnDoc(t *testing.T) {
	expected := ParseColumnDoc(strings.NewReader(sampleDoc), []string{"Health", "HYPO"})
	if len(expected) != 2 {
		t.Fatalf("entries = %d, want 2: %v", len(expected), expected)
	}
	hosp := expected["Health/hospitalization.csv"]
	if len(hosp) != 3 || hosp[0] != "admission_key" || hosp[2] != "Campus" {
		t.Fatalf("hospitalization columns = %v", hosp)
	}
	if got := expected["HYPO/glucose.csv"]; len(got) != 2 || got[1] != "blood_sugar" {
		t.Fatalf("glucose columns = %v", got)
	}
}

func TestDiffColumns(t *testing.T) {
	d := diffColumns("f", []string{"a", "b"}, []string{"b", "c"})
	if len(d.Missing) != 1 || d.Missing[0] != "a" {
		t.Fatalf("missing = %v", d.Missing)
	}
	if len(d.Extra) != 1 || d.Extra[0] != "c" {
		t.Fatalf("extra = %v", d.Extra)
	}
}

func TestRunReportsDivergence(t *testing.T) {
	base := t.TempDir()
	docPath := filepath.Join(base, "columns.txt")
	if err := os.WriteFile(docPath, []byte(sampleDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{BaseDir: base, ColumnDoc: docPath}

	hosp := table.New("admission_key", "visit_department") // Campus missing
	hosp.AppendRow([]string{"e1", "内分泌科（月湖）"})
	if err := hosp.Write(filepath.Join(base, "Health", rules.FileHospitalization)); err != nil {
		t.Fatal(err)
	}

	summary, err := New(cfg, []string{"Health", "HYPO"}).Run()
	if err != nil {
		t.Fatal(err)
	}
	if summary.Checked != 1 {
		t.Fatalf("checked = %d, want 1 (HYPO file absent)", summary.Checked)
	}
	if len(summary.Divergences) != 1 {
		t.Fatalf("divergences = %+v", summary.Divergences)
	}
	d := summary.Divergences[0]
	if len(d.Missing) != 1 || d.Missing[0] != "Campus" {
		t.Fatalf("missing = %v", d.Missing)
	}
}

func TestRunWithoutDocumentIsNoOp(t *testing.T) {
	cfg := &config.Config{BaseDir: t.TempDir(), ColumnDoc: "/nonexistent/doc.txt"}
	summary, err := New(cfg, []string{"Health"}).Run()
	if err != nil {
		t.Fatal(err)
	}
	if summary.Checked != 0 {
		t.Fatalf("checked = %d, want 0", summary.Checked)
	}
}
