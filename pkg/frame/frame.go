// Package frame provides the tabular dataset the dashboard passes between
// extraction, shrinking, caching and rendering.
//
// A Frame is an ordered set of named, equal-length columns. Columns are
// immutable once built; every transformation returns a new Frame that may
// share column storage with its source.
package frame

import (
	"fmt"
	"sort"
	"strings"
)

// Frame is an ordered collection of named columns of equal length.
type Frame struct {
	columns []Column
	index   map[string]int
	rows    int
}

// New builds a frame from columns. Names must be unique and non-empty and
// all columns must have the same length.
func New(columns ...Column) (*Frame, error) {
	f := &Frame{
		columns: make([]Column, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if c == nil {
			return nil, fmt.Errorf("column %d is nil", i)
		}
		if c.Name() == "" {
			return nil, fmt.Errorf("column %d has no name", i)
		}
		if _, dup := f.index[c.Name()]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name())
		}
		if i == 0 {
			f.rows = c.Len()
		} else if c.Len() != f.rows {
			return nil, fmt.Errorf("column %q has %d rows, want %d", c.Name(), c.Len(), f.rows)
		}
		f.index[c.Name()] = i
		f.columns = append(f.columns, c)
	}
	return f, nil
}

// MustNew is New that panics on error. Intended for tests and literals.
func MustNew(columns ...Column) *Frame {
	f, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return f
}

// Empty returns a frame with no rows and no columns.
func Empty() *Frame {
	return &Frame{index: map[string]int{}}
}

// Len returns the number of rows.
func (f *Frame) Len() int { return f.rows }

// Width returns the number of columns.
func (f *Frame) Width() int { return len(f.columns) }

// IsEmpty reports whether the frame has no rows.
func (f *Frame) IsEmpty() bool { return f.rows == 0 }

// Columns returns the columns in order. The slice must not be modified.
func (f *Frame) Columns() []Column { return f.columns }

// Names returns the column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.columns))
	for i, c := range f.columns {
		names[i] = c.Name()
	}
	return names
}

// Column looks up a column by name.
func (f *Frame) Column(name string) (Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.columns[i], true
}

// WithColumn returns a frame with the named column replaced by c, keeping its
// position. An unknown name appends c.
func (f *Frame) WithColumn(c Column) (*Frame, error) {
	cols := make([]Column, len(f.columns), len(f.columns)+1)
	copy(cols, f.columns)
	if i, ok := f.index[c.Name()]; ok {
		cols[i] = c
	} else {
		cols = append(cols, c)
	}
	return New(cols...)
}

// Take returns the rows at idx, in the given order.
func (f *Frame) Take(idx []int) *Frame {
	cols := make([]Column, len(f.columns))
	for i, c := range f.columns {
		cols[i] = c.Take(idx)
	}
	out := &Frame{columns: cols, index: make(map[string]int, len(cols)), rows: len(idx)}
	for i, c := range cols {
		out.index[c.Name()] = i
	}
	return out
}

// SortBy returns the frame stably sorted ascending by the named column.
func (f *Frame) SortBy(name string) (*Frame, error) {
	c, ok := f.Column(name)
	if !ok {
		return nil, fmt.Errorf("column %q not found", name)
	}
	idx := make([]int, f.rows)
	for i := range idx {
		idx[i] = i
	}
	less := lessFunc(c)
	sort.SliceStable(idx, func(a, b int) bool { return less(idx[a], idx[b]) })
	return f.Take(idx), nil
}

func lessFunc(c Column) func(i, j int) bool {
	switch col := c.(type) {
	case *TimeColumn:
		return func(i, j int) bool { return col.nanos[i] < col.nanos[j] }
	case *StringColumn:
		return func(i, j int) bool { return col.values[i] < col.values[j] }
	case *CategoryColumn:
		return func(i, j int) bool { return col.StringAt(i) < col.StringAt(j) }
	}
	if c.Kind().IsInteger() {
		return func(i, j int) bool { return c.Value(i).(int64) < c.Value(j).(int64) }
	}
	// Floats; NaN sorts last.
	return func(i, j int) bool {
		x, y := c.Value(i).(float64), c.Value(j).(float64)
		if x != x {
			return false
		}
		if y != y {
			return true
		}
		return x < y
	}
}

// Row returns the decoded values of row i keyed by column name.
func (f *Frame) Row(i int) map[string]any {
	row := make(map[string]any, len(f.columns))
	for _, c := range f.columns {
		row[c.Name()] = c.Value(i)
	}
	return row
}

// MemoryUsage estimates the bytes held by all columns.
func (f *Frame) MemoryUsage() int64 {
	var total int64
	for _, c := range f.columns {
		total += c.MemoryUsage()
	}
	return total
}

// Kinds returns the column kinds keyed by name.
func (f *Frame) Kinds() map[string]Kind {
	out := make(map[string]Kind, len(f.columns))
	for _, c := range f.columns {
		out[c.Name()] = c.Kind()
	}
	return out
}

// Equal reports whether both frames hold the same column names in the same
// order with equal decoded values. Storage kinds are not compared.
func (f *Frame) Equal(other *Frame) bool {
	if f == other {
		return true
	}
	if f == nil || other == nil {
		return false
	}
	if f.rows != other.rows || len(f.columns) != len(other.columns) {
		return false
	}
	for i, c := range f.columns {
		o := other.columns[i]
		if c.Name() != o.Name() {
			return false
		}
		for r := 0; r < f.rows; r++ {
			if !ValuesEqual(c.Value(r), o.Value(r)) {
				return false
			}
		}
	}
	return true
}

// String renders a short schema summary.
func (f *Frame) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Frame[%d rows", f.rows)
	for _, c := range f.columns {
		fmt.Fprintf(&b, ", %s:%s", c.Name(), c.Kind())
	}
	b.WriteString("]")
	return b.String()
}

// Result carries a frame produced by an operation that falls back instead of
// failing. Degraded is set whenever a fallback path was taken; Err then holds
// the cause.
type Result struct {
	Frame    *Frame
	Degraded bool
	Err      error
}

// OK wraps a frame produced without fallback.
func OK(f *Frame) Result { return Result{Frame: f} }

// Degrade wraps a fallback frame together with its cause.
func Degrade(f *Frame, err error) Result {
	return Result{Frame: f, Degraded: true, Err: err}
}
