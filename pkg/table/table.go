// Package table provides a small ordered table of float64 columns with
// string row keys, used for per-slice contrast results and per-subject
// summaries.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

var (
	ErrUnknownColumn = errors.New("unknown column")
	ErrRowLength     = errors.New("row length does not match columns")
)

// Table is an immutable ordered set of rows with fixed named columns
type Table struct {
	// IndexLabel names the key column when the table is written out
	IndexLabel string

	columns []string
	keys    []string
	rows    [][]float64
}

// Builder collects rows and constructs a Table once
type Builder struct {
	indexLabel string
	columns    []string
	keys       []string
	rows       [][]float64
	err        error
}

// NewBuilder starts a table with the given key label and value columns
func NewBuilder(indexLabel string, columns ...string) *Builder {
	return &Builder{
		indexLabel: indexLabel,
		columns:    append([]string(nil), columns...),
	}
}

// Add appends a row. Errors are deferred to Build.
func (b *Builder) Add(key string, values ...float64) *Builder {
	if b.err != nil {
		return b
	}
	if len(values) != len(b.columns) {
		b.err = fmt.Errorf("%w: row %q has %d values, want %d", ErrRowLength, key, len(values), len(b.columns))
		return b
	}
	b.keys = append(b.keys, key)
	b.rows = append(b.rows, append([]float64(nil), values...))
	return b
}

// Build returns the finished table
func (b *Builder) Build() (*Table, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &Table{
		IndexLabel: b.indexLabel,
		columns:    b.columns,
		keys:       b.keys,
		rows:       b.rows,
	}, nil
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// Columns returns a copy of the column names
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Keys returns a copy of the row keys in order
func (t *Table) Keys() []string {
	return append([]string(nil), t.keys...)
}

// Row returns a copy of row i
func (t *Table) Row(i int) []float64 {
	return append([]float64(nil), t.rows[i]...)
}

// ColumnIndex returns the position of a column, or -1
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of one column's values in row order
func (t *Table) Column(name string) ([]float64, error) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}
	out := make([]float64, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[idx]
	}
	return out, nil
}

// NSmallest returns the n rows with the smallest values in col, ascending.
// Ties keep their original order; NaN values are never selected.
func (t *Table) NSmallest(n int, col string) (*Table, error) {
	return t.selectN(n, col, func(a, b float64) bool { return a < b })
}

// NLargest returns the n rows with the largest values in col, descending
func (t *Table) NLargest(n int, col string) (*Table, error) {
	return t.selectN(n, col, func(a, b float64) bool { return a > b })
}

func (t *Table) selectN(n int, col string, less func(a, b float64) bool) (*Table, error) {
	idx := t.ColumnIndex(col)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, col)
	}

	order := make([]int, 0, len(t.rows))
	for i, row := range t.rows {
		if !math.IsNaN(row[idx]) {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return less(t.rows[order[a]][idx], t.rows[order[b]][idx])
	})
	if n < len(order) {
		order = order[:n]
	}
	return t.subset(order), nil
}

func (t *Table) subset(order []int) *Table {
	out := &Table{IndexLabel: t.IndexLabel, columns: t.columns}
	for _, i := range order {
		out.keys = append(out.keys, t.keys[i])
		out.rows = append(out.rows, append([]float64(nil), t.rows[i]...))
	}
	return out
}

// Mean returns the column-wise mean, skipping NaN values. A column with no
// values has a NaN mean.
func (t *Table) Mean() []float64 {
	out := make([]float64, len(t.columns))
	for j := range t.columns {
		values := make([]float64, 0, len(t.rows))
		for _, row := range t.rows {
			if !math.IsNaN(row[j]) {
				values = append(values, row[j])
			}
		}
		out[j] = meanOrNaN(values)
	}
	return out
}

// RowMean returns the mean of row i across columns, skipping NaN values
func (t *Table) RowMean(i int) float64 {
	values := make([]float64, 0, len(t.columns))
	for _, v := range t.rows[i] {
		if !math.IsNaN(v) {
			values = append(values, v)
		}
	}
	return meanOrNaN(values)
}

// Drop returns the table without the named column
func (t *Table) Drop(col string) (*Table, error) {
	idx := t.ColumnIndex(col)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, col)
	}
	out := &Table{IndexLabel: t.IndexLabel, keys: append([]string(nil), t.keys...)}
	out.columns = append(append([]string(nil), t.columns[:idx]...), t.columns[idx+1:]...)
	for _, row := range t.rows {
		out.rows = append(out.rows, append(append([]float64(nil), row[:idx]...), row[idx+1:]...))
	}
	return out, nil
}

func meanOrNaN(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return stat.Mean(values, nil)
}

// WriteDelimited writes a header row (index label, then columns) and one
// line per row, separated by sep.
func (t *Table) WriteDelimited(w io.Writer, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep

	header := append([]string{t.IndexLabel}, t.columns...)
	if err := cw.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for i, row := range t.rows {
		record[0] = t.keys[i]
		for j, v := range row {
			record[j+1] = FormatValue(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadDelimited parses a delimited table. With indexed set, the first column
// holds the row keys; otherwise every column is numeric and rows are keyed
// by their 0-based position. Empty cells and "NaN" read as NaN.
func ReadDelimited(r io.Reader, sep rune, indexed bool) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = sep

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var b *Builder
	if indexed {
		if len(header) < 1 {
			return nil, errors.New("indexed table has no columns")
		}
		b = NewBuilder(header[0], header[1:]...)
	} else {
		b = NewBuilder("", header...)
	}

	for n := 0; ; n++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", n, err)
		}

		key := strconv.Itoa(n)
		cells := record
		if indexed {
			key, cells = record[0], record[1:]
		}
		values := make([]float64, len(cells))
		for j, cell := range cells {
			if values[j], err = ParseValue(cell); err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", n, b.columns[j], err)
			}
		}
		b.Add(key, values...)
	}
	return b.Build()
}

// FormatValue renders a float with the shortest exact representation
func FormatValue(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseValue is the inverse of FormatValue; an empty cell is NaN
func ParseValue(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
