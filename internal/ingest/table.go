package ingest

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	apperrors "expograph/pkg/errors"
)

// Table is an in-memory CSV extract with header-name column access. The
// scan and registration systems export differently shaped files, so columns
// are always referenced by name, never by position.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string

	index map[string]int
}

// NewTable creates an empty table with the given columns
func NewTable(name string, columns []string) *Table {
	t := &Table{
		Name:    name,
		Columns: columns,
	}
	t.reindex()
	return t
}

// ReadCSV loads a headered CSV file into a table. A missing file is a
// configuration error and aborts the run before any graph mutation.
func ReadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewMissingInputFile(path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s has no header row", path)
	}

	columns := make([]string, len(records[0]))
	for i, col := range records[0] {
		columns[i] = strings.TrimSpace(col)
	}

	t := NewTable(path, columns)
	for _, record := range records[1:] {
		row := make([]string, len(columns))
		for i := range columns {
			if i < len(record) {
				row[i] = strings.TrimSpace(record[i])
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// WriteCSV writes the table to a headered CSV file
func (t *Table) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(t.Columns); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Len returns the number of data rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// HasColumn reports whether a column exists
func (t *Table) HasColumn(column string) bool {
	_, ok := t.index[column]
	return ok
}

// Get returns the value at (row, column), or "" when the column is absent.
// Absent columns stand in for the null demographic fields of unmatched rows.
func (t *Table) Get(row int, column string) string {
	i, ok := t.index[column]
	if !ok || row < 0 || row >= len(t.Rows) || i >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][i]
}

// Column returns all values of one column in row order
func (t *Table) Column(column string) ([]string, error) {
	i, ok := t.index[column]
	if !ok {
		return nil, apperrors.NewMissingColumn(column, t.Name)
	}
	values := make([]string, len(t.Rows))
	for r, row := range t.Rows {
		if i < len(row) {
			values[r] = row[i]
		}
	}
	return values, nil
}

// AppendRow adds a row from a column-name→value map; unnamed columns get ""
func (t *Table) AppendRow(values map[string]string) {
	row := make([]string, len(t.Columns))
	for col, val := range values {
		if i, ok := t.index[col]; ok {
			row[i] = val
		}
	}
	t.Rows = append(t.Rows, row)
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Columns))
	for i, col := range t.Columns {
		t.index[col] = i
	}
}
