package table

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Read loads a delimited file into a Table.
func Read(path string) (*Table, error) {
	return ReadSkipping(path, 0)
}

// ReadSkipping loads a delimited file, discarding a fixed number of
// preamble records before the header row. Raw export files carry a 2-row
// preamble; canonical tables carry none.
func ReadSkipping(path string, skip int) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, filepath.Base(path))
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if skip > len(records) {
		skip = len(records)
	}
	records = records[skip:]
	if len(records) == 0 {
		return New(), nil
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], string(utf8BOM))
	}
	t := New(header...)
	for _, rec := range records[1:] {
		t.AppendRow(rec)
	}
	return t, nil
}

// Write persists the table with a UTF-8 BOM so spreadsheet tooling opens
// the multibyte clinical text correctly.
func (t *Table) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(utf8BOM); err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(t.Header); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
