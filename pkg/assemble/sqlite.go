package assemble

import (
	"database/sql"
	"fmt"
	"os"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/glucolab/pipeline/pkg/rules"
	"github.com/glucolab/pipeline/pkg/table"
)

// writeSQLite persists the final modeling tables as a queryable artifact.
// Everything is TEXT; the training code reads through pandas/SQL and does
// its own typing.
func writeSQLite(path string, tables map[string]*table.Table) error {
	_ = os.Remove(path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t := tables[name]
		var defs, qCols []string
		for _, c := range t.Header {
			defs = append(defs, fmt.Sprintf("%q TEXT", c))
			qCols = append(qCols, fmt.Sprintf("%q", c))
		}
		if _, err := db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %q`, name)); err != nil {
			return err
		}
		if _, err := db.Exec(fmt.Sprintf(`CREATE TABLE %q (`, name) + strings.Join(defs, ",") + `)`); err != nil {
			return err
		}
		ph := strings.TrimRight(strings.Repeat("?,", len(t.Header)), ",")
		stmt, err := db.Prepare(fmt.Sprintf(`INSERT INTO %q (`, name) + strings.Join(qCols, ",") + `) VALUES (` + ph + `)`)
		if err != nil {
			return err
		}
		for _, row := range t.Rows {
			args := make([]any, len(row))
			for i, v := range row {
				args[i] = v
			}
			if _, err := stmt.Exec(args...); err != nil {
				stmt.Close()
				return err
			}
		}
		stmt.Close()
		if _, err := db.Exec(fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_key ON %q(%q)`, name, name, rules.KeyColumn)); err != nil {
			return err
		}
	}
	return nil
}
