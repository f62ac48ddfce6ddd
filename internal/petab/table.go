// Package petab reads and writes the tab-separated tables of an estimation
// problem. Cells are kept as strings; only the columns this module acts on
// are ever parsed.
package petab

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	ErrMissingColumn = errors.New("missing column")
	ErrInvalidHeader = errors.New("invalid table header")
)

// Table is an in-memory TSV table.
type Table struct {
	Columns []string
	Rows    [][]string
}

// New returns an empty table with the given columns.
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// ReadFile reads a TSV table from path.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := ReadTSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return t, nil
}

// ReadTSV reads a table whose first record is the header. Header names must
// not carry leading or trailing whitespace.
func ReadTSV(in io.Reader) (*Table, error) {
	reader := csv.NewReader(in)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty table", ErrInvalidHeader)
	}
	if err != nil {
		return nil, fmt.Errorf("read table header: %w", err)
	}
	seen := make(map[string]struct{}, len(header))
	for _, name := range header {
		if name == "" || strings.TrimSpace(name) != name {
			return nil, fmt.Errorf("%w: column %q has leading or trailing whitespace", ErrInvalidHeader, name)
		}
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrInvalidHeader, name)
		}
		seen[name] = struct{}{}
	}

	t := New(header...)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read table row %d: %w", line, err)
		}
		if blankRecord(record) {
			continue
		}
		if len(record) > len(header) {
			return nil, fmt.Errorf("read table row %d: %d fields for %d columns", line, len(record), len(header))
		}
		row := make([]string, len(header))
		copy(row, record)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// WriteTSV writes the header and rows.
func (t *Table) WriteTSV(out io.Writer) error {
	writer := csv.NewWriter(out)
	writer.Comma = '\t'
	if err := writer.Write(t.Columns); err != nil {
		return err
	}
	if err := writer.WriteAll(t.Rows); err != nil {
		return err
	}
	return writer.Error()
}

// WriteFile writes the table to path, creating parent directories.
func (t *Table) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := t.WriteTSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// String renders the table as TSV.
func (t *Table) String() string {
	var b strings.Builder
	_ = t.WriteTSV(&b)
	return b.String()
}

// Clone deep-copies the table.
func (t *Table) Clone() *Table {
	c := New(t.Columns...)
	c.Rows = make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		c.Rows[i] = append([]string(nil), row...)
	}
	return c
}

// Index returns the position of column, or -1.
func (t *Table) Index(column string) int {
	for i, c := range t.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

func (t *Table) Has(column string) bool { return t.Index(column) >= 0 }

// Require checks that every column is present.
func (t *Table) Require(columns ...string) error {
	for _, c := range columns {
		if !t.Has(c) {
			return fmt.Errorf("%w: %q", ErrMissingColumn, c)
		}
	}
	return nil
}

// Column returns a copy of the values of column.
func (t *Table) Column(column string) ([]string, error) {
	i := t.Index(column)
	if i < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, column)
	}
	out := make([]string, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out, nil
}

// Floats parses every value of column.
func (t *Table) Floats(column string) ([]float64, error) {
	values, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(values))
	for r, v := range values {
		f, err := ParseFloat(v)
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %w", column, r+1, err)
		}
		out[r] = f
	}
	return out, nil
}

// Get returns the cell at row, column; "" when the column is absent.
func (t *Table) Get(row int, column string) string {
	i := t.Index(column)
	if i < 0 {
		return ""
	}
	return t.Rows[row][i]
}

// AddColumn appends column with blank cells unless it already exists.
func (t *Table) AddColumn(column string) int {
	if i := t.Index(column); i >= 0 {
		return i
	}
	t.Columns = append(t.Columns, column)
	for r := range t.Rows {
		t.Rows[r] = append(t.Rows[r], "")
	}
	return len(t.Columns) - 1
}

// Set writes a cell, adding the column when missing.
func (t *Table) Set(row int, column, value string) {
	i := t.AddColumn(column)
	t.Rows[row][i] = value
}

// Append adds a row from column values, adding unknown columns.
func (t *Table) Append(values map[string]string) {
	for _, c := range sortedKeys(values) {
		t.AddColumn(c)
	}
	row := make([]string, len(t.Columns))
	for c, v := range values {
		row[t.Index(c)] = v
	}
	t.Rows = append(t.Rows, row)
}

// Record returns the row as a column -> value map.
func (t *Table) Record(row int) map[string]string {
	out := make(map[string]string, len(t.Columns))
	for i, c := range t.Columns {
		out[c] = t.Rows[row][i]
	}
	return out
}

// Find returns the first row whose column equals value, or -1.
func (t *Table) Find(column, value string) int {
	i := t.Index(column)
	if i < 0 {
		return -1
	}
	for r, row := range t.Rows {
		if row[i] == value {
			return r
		}
	}
	return -1
}

// Filter returns a copy holding the rows for which keep is true.
func (t *Table) Filter(keep func(row int) bool) *Table {
	out := New(t.Columns...)
	for r, row := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, append([]string(nil), row...))
		}
	}
	return out
}

// Concat stacks tables, taking the union of their columns in order of first
// appearance.
func Concat(tables ...*Table) *Table {
	out := New()
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, c := range t.Columns {
			out.AddColumn(c)
		}
	}
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, row := range t.Rows {
			merged := make([]string, len(out.Columns))
			for i, c := range t.Columns {
				merged[out.Index(c)] = row[i]
			}
			out.Rows = append(out.Rows, merged)
		}
	}
	return out
}

// ParseFloat parses a numeric cell, accepting inf, -inf and nan.
func ParseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("parse number %q: %w", s, err)
	}
	return f, nil
}
