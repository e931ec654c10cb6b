package features

import (
	"fmt"
	"os"
	"strings"

	"github.com/glucolab/pipeline/pkg/rules"
)

// document accumulates a plain-text variable description file, one per
// extraction pass, so downstream analysts can audit the rule tables that
// produced each derived column.
type document struct {
	b strings.Builder
}

func newDocument(title, source string) *document {
	d := &document{}
	rule := strings.Repeat("=", 72)
	fmt.Fprintf(&d.b, "%s\n%s\n%s\n\n", rule, title, rule)
	fmt.Fprintf(&d.b, "Source table: %s\n\n", source)
	return d
}

func (d *document) note(line string) {
	fmt.Fprintf(&d.b, "%s\n", line)
}

func (d *document) section(title string, ruleList []rules.FeatureRule) {
	fmt.Fprintf(&d.b, "\n%s\n%s\n", title, strings.Repeat("-", 48))
	for _, r := range ruleList {
		fmt.Fprintf(&d.b, "\n%s (%s)\n", r.Name, r.Display)
		if r.FullName != "" && r.FullName != r.Name {
			fmt.Fprintf(&d.b, "  full name: %s\n", r.FullName)
		}
		if len(r.Keywords) > 0 {
			fmt.Fprintf(&d.b, "  logic: %s of [%s]\n", logicWord(r.Logic), strings.Join(r.Keywords, ", "))
		}
		if len(r.Exclude) > 0 {
			fmt.Fprintf(&d.b, "  excluded markers: %s\n", strings.Join(r.Exclude, ", "))
		}
		if r.Special != nil {
			fmt.Fprintf(&d.b, "  override: %q on %s", r.Special.Pattern, strings.Join(r.Special.Fields, "/"))
			if r.Special.Primary != "" {
				fmt.Fprintf(&d.b, " with primary value %q", r.Special.Primary)
			}
			if r.Special.RouteField != "" {
				fmt.Fprintf(&d.b, ", route in [%s]", strings.Join(r.Special.Routes, ", "))
			}
			fmt.Fprintln(&d.b)
		}
	}
}

func (d *document) write(path string) error {
	return os.WriteFile(path, []byte(d.b.String()), 0o644)
}

func logicWord(logic string) string {
	if logic == rules.LogicAND {
		return "all"
	}
	return "any"
}
