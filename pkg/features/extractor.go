// Package features derives the rule-based study variables: glucose-lowering
// medication classes, comorbidity flags, surgery events and fasting/nutrition
// windows. Every pass matches on the valid (non-voided) order subset but
// emits one row per episode over the full key population, then merges the
// columns back onto the source table so re-runs replace rather than append.
package features

import (
	"github.com/glucolab/pipeline/pkg/rules"
	"github.com/glucolab/pipeline/pkg/table"
)

// ValidRows returns the indices of rows whose status column does not carry
// the voided marker. When the table has no status column every row counts.
func ValidRows(t *table.Table, statusColumn, voided string) []int {
	idx := t.Index(statusColumn)
	out := make([]int, 0, len(t.Rows))
	for r := range t.Rows {
		if idx >= 0 && table.ContainsFold(t.Cell(r, idx), voided) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// MatchRule returns the set of episode keys whose valid rows satisfy the
// rule, by keyword logic on the text column or by special override.
func MatchRule(t *table.Table, textColumn string, rule rules.FeatureRule, valid []int) map[string]bool {
	matched := make(map[string]bool)
	keyIdx := t.Index(rules.KeyColumn)
	textIdx := t.Index(textColumn)
	if keyIdx < 0 {
		return matched
	}
	for _, r := range valid {
		text := ""
		if textIdx >= 0 {
			text = table.Clean(t.Cell(r, textIdx))
		}
		if matchKeywords(text, rule) || matchOverride(t, r, text, rule.Special) {
			matched[t.Cell(r, keyIdx)] = true
		}
	}
	return matched
}

func matchKeywords(text string, rule rules.FeatureRule) bool {
	if len(rule.Keywords) == 0 || text == "" {
		return false
	}
	for _, ex := range rule.Exclude {
		if table.ContainsFold(text, ex) {
			return false
		}
	}
	if rule.Logic == rules.LogicAND {
		for _, kw := range rule.Keywords {
			if !table.ContainsFold(text, kw) {
				return false
			}
		}
		return true
	}
	for _, kw := range rule.Keywords {
		if table.ContainsFold(text, kw) {
			return true
		}
	}
	return false
}

func matchOverride(t *table.Table, row int, primaryText string, o *rules.Override) bool {
	if o == nil {
		return false
	}
	if o.Primary != "" && primaryText != o.Primary {
		return false
	}
	hit := false
	for _, field := range o.Fields {
		if i := t.Index(field); i >= 0 && table.ContainsFold(table.Clean(t.Cell(row, i)), o.Pattern) {
			hit = true
			break
		}
	}
	if !hit {
		return false
	}
	if o.RouteField != "" {
		i := t.Index(o.RouteField)
		if i < 0 {
			return false
		}
		route := table.Clean(t.Cell(row, i))
		for _, allowed := range o.Routes {
			if route == allowed {
				return true
			}
		}
		return false
	}
	return true
}

// FlagTable evaluates every rule and assembles the per-episode 0/1 feature
// frame over the table's full key population, keys in first-seen order.
func FlagTable(t *table.Table, textColumn string, ruleList []rules.FeatureRule, valid []int) *table.Table {
	header := []string{rules.KeyColumn}
	for _, rule := range ruleList {
		header = append(header, rule.Name)
	}
	out := table.New(header...)

	matches := make([]map[string]bool, len(ruleList))
	for i, rule := range ruleList {
		matches[i] = MatchRule(t, textColumn, rule, valid)
	}
	for _, key := range t.DistinctKeys(rules.KeyColumn) {
		row := make([]string, 0, len(header))
		row = append(row, key)
		for i := range ruleList {
			if matches[i][key] {
				row = append(row, "1")
			} else {
				row = append(row, "0")
			}
		}
		out.AppendRow(row)
	}
	return out
}

// zeroFill builds the left-join fill map: numeric flags default to "0",
// free-text columns (window and date lists) to "".
func zeroFill(features *table.Table, textColumns ...string) map[string]string {
	isText := make(map[string]bool, len(textColumns))
	for _, c := range textColumns {
		isText[c] = true
	}
	fill := make(map[string]string, len(features.Header))
	for _, h := range features.Header {
		if h == rules.KeyColumn || isText[h] {
			continue
		}
		fill[h] = "0"
	}
	return fill
}

// mergeBack left-joins the feature frame onto the source table and rewrites
// it in place. Stale columns from a previous run are replaced.
func mergeBack(path string, src, features *table.Table, textColumns ...string) error {
	src.LeftJoin(rules.KeyColumn, features, zeroFill(features, textColumns...))
	return src.Write(path)
}
