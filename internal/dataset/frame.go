// Package dataset holds the immutable tabular structure that uploaded files
// are loaded into and that generated analysis code reads as df.
package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the inferred type of a column.
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindDatetime    Kind = "datetime"
	KindCategorical Kind = "categorical"
	KindText        Kind = "text"
	KindBool        Kind = "bool"
	KindUnknown     Kind = "unknown"
)

// Column is a named vector of cells. Cells are nil (missing), int64, float64,
// string or bool.
type Column struct {
	Name   string
	Unit   string
	Kind   Kind
	Values []any
}

// Field describes a column without its values.
type Field struct {
	Name string
	Unit string
	Kind Kind
}

// Frame is an immutable table. Accessors return copies so callers cannot
// mutate the loaded dataset.
type Frame struct {
	name string
	cols []Column
	rows int
}

// New builds a frame from columns of equal length. Columns with an empty
// Kind get one inferred from their values.
func New(name string, cols []Column) (*Frame, error) {
	f := &Frame{name: name, cols: make([]Column, len(cols))}
	for i, c := range cols {
		if i == 0 {
			f.rows = len(c.Values)
		} else if len(c.Values) != f.rows {
			return nil, fmt.Errorf("column %q has %d values, want %d", c.Name, len(c.Values), f.rows)
		}
		vals := make([]any, len(c.Values))
		copy(vals, c.Values)
		kind := c.Kind
		if kind == "" {
			kind = inferKind(vals)
		}
		f.cols[i] = Column{Name: c.Name, Unit: c.Unit, Kind: kind, Values: vals}
	}
	return f, nil
}

// MustNew is New for literals in tests and fixtures.
func MustNew(name string, cols []Column) *Frame {
	f, err := New(name, cols)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Frame) Name() string { return f.name }

// Len returns the number of rows.
func (f *Frame) Len() int { return f.rows }

// Width returns the number of columns.
func (f *Frame) Width() int { return len(f.cols) }

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.cols))
	for i, c := range f.cols {
		out[i] = c.Name
	}
	return out
}

// Schema returns name, unit and kind per column.
func (f *Frame) Schema() []Field {
	out := make([]Field, len(f.cols))
	for i, c := range f.cols {
		out[i] = Field{Name: c.Name, Unit: c.Unit, Kind: c.Kind}
	}
	return out
}

// Column looks a column up by name.
func (f *Frame) Column(name string) (Column, bool) {
	for i := range f.cols {
		if f.cols[i].Name == name {
			return f.ColumnAt(i), true
		}
	}
	return Column{}, false
}

// Kind reports the inferred kind of a column, or KindUnknown.
func (f *Frame) Kind(name string) Kind {
	for i := range f.cols {
		if f.cols[i].Name == name {
			return f.cols[i].Kind
		}
	}
	return KindUnknown
}

// ColumnAt returns a copy of the i-th column.
func (f *Frame) ColumnAt(i int) Column {
	c := f.cols[i]
	vals := make([]any, len(c.Values))
	copy(vals, c.Values)
	c.Values = vals
	return c
}

// Cell returns the value at row, col.
func (f *Frame) Cell(row, col int) any { return f.cols[col].Values[row] }

// Row returns the values of one row.
func (f *Frame) Row(i int) []any {
	out := make([]any, len(f.cols))
	for j := range f.cols {
		out[j] = f.cols[j].Values[i]
	}
	return out
}

// Head returns the first n rows, or the whole frame when n is out of range.
func (f *Frame) Head(n int) *Frame {
	if n < 0 || n >= f.rows {
		return f
	}
	return f.slice(0, n)
}

// Tail returns the last n rows.
func (f *Frame) Tail(n int) *Frame {
	if n < 0 || n >= f.rows {
		return f
	}
	return f.slice(f.rows-n, f.rows)
}

func (f *Frame) slice(lo, hi int) *Frame {
	out := &Frame{name: f.name, cols: make([]Column, len(f.cols)), rows: hi - lo}
	for i, c := range f.cols {
		out.cols[i] = Column{Name: c.Name, Unit: c.Unit, Kind: c.Kind, Values: c.Values[lo:hi:hi]}
	}
	return out
}

// Records renders every row as strings, for table writers.
func (f *Frame) Records() [][]string {
	out := make([][]string, f.rows)
	for i := 0; i < f.rows; i++ {
		row := make([]string, len(f.cols))
		for j := range f.cols {
			row[j] = FormatCell(f.cols[j].Values[i])
		}
		out[i] = row
	}
	return out
}

// FormatCell renders a cell the way tables display it.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NaN"
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return FormatFloat(x)
	case bool:
		if x {
			return "True"
		}
		return "False"
	case time.Time:
		return x.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(x)
	}
}

// FormatFloat prints floats with up to six decimals and no trailing zeros,
// keeping one decimal for integral values.
func FormatFloat(x float64) string {
	switch {
	case math.IsNaN(x):
		return "NaN"
	case math.IsInf(x, 1):
		return "inf"
	case math.IsInf(x, -1):
		return "-inf"
	}
	if x == math.Trunc(x) && math.Abs(x) < 1e15 {
		return strconv.FormatFloat(x, 'f', 1, 64)
	}
	if a := math.Abs(x); a >= 1e15 || a < 1e-4 {
		return strconv.FormatFloat(x, 'e', 6, 64)
	}
	s := strconv.FormatFloat(x, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// AsFloat converts a numeric cell to float64.
func AsFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		if math.IsNaN(x) {
			return 0, false
		}
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func inferKind(vals []any) Kind {
	var num, str, bl, nonNull int
	for _, v := range vals {
		switch v.(type) {
		case nil:
			continue
		case int64, int, float64:
			num++
		case bool:
			bl++
		case string:
			str++
		}
		nonNull++
	}
	switch {
	case nonNull == 0:
		return KindUnknown
	case num == nonNull:
		return KindNumeric
	case bl == nonNull:
		return KindBool
	case str == nonNull:
		return KindCategorical
	}
	return KindUnknown
}
