package features

import (
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

func TestMatchRuleANDComposition(t *testing.T) {
	tb := table.New(rules.KeyColumn, "disease_name")
	tb.AppendRow([]string{"e1", "2型糖尿病性肾病"})
	tb.AppendRow([]string{"e2", "慢性肾病"})
	tb.AppendRow([]string{"e3", "2型糖尿病"})

	rule := rules.FeatureRule{Name: "DN", Logic: rules.LogicAND, Keywords: []string{"糖尿病", "肾病"}}
	all := []int{0, 1, 2}
	matched := MatchRule(tb, "disease_name", rule, all)
	if !matched["e1"] {
		t.Fatal("expected e1 to satisfy both keywords")
	}
	if matched["e2"] || matched["e3"] {
		t.Fatalf("partial keyword matches flagged: %v", matched)
	}
}

func TestMatchRuleExcludeVetoesPremix(t *testing.T) {
	tb := table.New(rules.KeyColumn, "inn_name")
	tb.AppendRow([]string{"e1", "门冬胰岛素"})
	tb.AppendRow([]string{"e2", "门冬胰岛素30"})

	rule := rules.FeatureRule{
		Name: "Rapid_insulin", Logic: rules.LogicOR,
		Keywords: []string{"门冬胰岛素"},
		Exclude:  []string{"25r", "50r", "30", "70/30", "(50/50)"},
	}
	matched := MatchRule(tb, "inn_name", rule, []int{0, 1})
	if !matched["e1"] {
		t.Fatal("plain rapid-acting formulation should match")
	}
	if matched["e2"] {
		t.Fatal("premixed formulation must be vetoed")
	}
}

func TestMatchRuleRouteOverride(t *testing.T) {
	tb := table.New(rules.KeyColumn, "inn_name", "common_name", "drug_administration_method")
	tb.AppendRow([]string{"e1", "胰岛素", "胰岛素注射液", "皮下注射"})
	tb.AppendRow([]string{"e2", "胰岛素", "胰岛素注射液", "静脉滴注"})
	tb.AppendRow([]string{"e3", "别的", "胰岛素注射液", "皮下注射"})

	rule := rules.FeatureRule{
		Name: "Rapid_insulin", Logic: rules.LogicOR,
		Special: &rules.Override{
			Primary:    "胰岛素",
			Fields:     []string{"common_name"},
			Pattern:    "胰岛素注射液",
			RouteField: "drug_administration_method",
			Routes:     []string{"皮下注射", "皮内注射", "肌肉注射"},
		},
	}
	matched := MatchRule(tb, "inn_name", rule, []int{0, 1, 2})
	if !matched["e1"] {
		t.Fatal("subcutaneous injection should match the override")
	}
	if matched["e2"] {
		t.Fatal("intravenous route must not match")
	}
	if matched["e3"] {
		t.Fatal("wrong primary value must not match")
	}
}

func TestMatchRuleSecondaryFieldOverride(t *testing.T) {
	tb := table.New(rules.KeyColumn, "inn_name", "trade_name", "common_name")
	tb.AppendRow([]string{"e1", "其他成分", "艾托格列净(捷诺妥)", ""})

	rule := rules.FeatureRule{
		Name: "SGLT2i", Logic: rules.LogicOR,
		Keywords: []string{"达格列净"},
		Special:  &rules.Override{Fields: []string{"trade_name", "common_name"}, Pattern: "艾托格列净"},
	}
	matched := MatchRule(tb, "inn_name", rule, []int{0})
	if !matched["e1"] {
		t.Fatal("trade-name override should flag the episode")
	}
}

func TestValidRowsExcludesVoided(t *testing.T) {
	tb := table.New(rules.KeyColumn, "order_status")
	tb.AppendRow([]string{"e1", "已撤销"})
	tb.AppendRow([]string{"e2", "已执行"})

	valid := ValidRows(tb, "order_status", "已撤销")
	if len(valid) != 1 || valid[0] != 1 {
		t.Fatalf("valid rows = %v, want [1]", valid)
	}
}

func TestMedicationsRunWritesFlagsOverFullPopulation(t *testing.T) {
	cfg := &config.Config{BaseDir: t.TempDir()}
	dir := cfg.CohortDir("Health")

	orders := table.New(rules.KeyColumn, "order_status", "inn_name", "trade_name", "common_name", "drug_administration_method")
	orders.AppendRow([]string{"e1", "已执行", "二甲双胍", "", "", "口服"})
	orders.AppendRow([]string{"e2", "已撤销", "二甲双胍", "", "", "口服"})
	orders.AppendRow([]string{"e3", "已执行", "阿莫西林", "", "", "口服"})
	path := filepath.Join(dir, rules.FileMedicationOrders)
	if err := orders.Write(path); err != nil {
		t.Fatal(err)
	}

	pass := NewMedications(cfg, rules.DefaultMedications())
	summary, err := pass.Run("Health")
	if err != nil {
		t.Fatal(err)
	}
	if summary.Episodes != 3 {
		t.Fatalf("episodes = %d, want full population 3", summary.Episodes)
	}
	if summary.Counts["Metformin"] != 1 {
		t.Fatalf("Metformin count = %d, want 1 (voided order excluded)", summary.Counts["Metformin"])
	}

	out, err := table.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	met := out.Index("Metformin")
	if met < 0 {
		t.Fatalf("flag column missing: %v", out.Header)
	}
	byKey := map[string]string{}
	for r := range out.Rows {
		byKey[out.Cell(r, 0)] = out.Cell(r, met)
	}
	if byKey["e1"] != "1" || byKey["e2"] != "0" || byKey["e3"] != "0" {
		t.Fatalf("flags by key = %v", byKey)
	}

	// a second run must not grow the header
	cols := len(out.Header)
	if _, err := pass.Run("Health"); err != nil {
		t.Fatal(err)
	}
	again, err := table.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Header) != cols {
		t.Fatalf("re-run grew header from %d to %d columns", cols, len(again.Header))
	}
}
