package frame

import (
	"fmt"
	"math"
	"time"
	"unsafe"
)

// Kind is the storage type of a column.
type Kind int

const (
	KindInt8 Kind = iota
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindString
	KindCategory
	KindTime
)

var kindNames = [...]string{
	KindInt8:     "int8",
	KindInt16:    "int16",
	KindInt32:    "int32",
	KindInt64:    "int64",
	KindFloat32:  "float32",
	KindFloat64:  "float64",
	KindString:   "string",
	KindCategory: "category",
	KindTime:     "time",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown column kind %q", s)
}

// IsInteger reports whether k is one of the signed integer kinds.
func (k Kind) IsInteger() bool { return k >= KindInt8 && k <= KindInt64 }

// IsFloat reports whether k is a floating point kind.
func (k Kind) IsFloat() bool { return k == KindFloat32 || k == KindFloat64 }

// Column is the base interface for all column types. Value returns the
// decoded value: int64 for integer kinds, float64 for float kinds, string for
// string and category, time.Time (UTC) for time.
type Column interface {
	Name() string
	Kind() Kind
	Len() int
	Value(i int) any
	// Take returns a new column holding the rows at idx, in order.
	Take(idx []int) Column
	// Rename returns a copy of the column under a new name sharing storage.
	Rename(name string) Column
	// MemoryUsage estimates the bytes held by the column's storage.
	MemoryUsage() int64
}

// Integer lists the integer storage widths.
type Integer interface {
	int8 | int16 | int32 | int64
}

// Float lists the floating point storage widths.
type Float interface {
	float32 | float64
}

// IntColumn stores integers at a fixed width.
type IntColumn[T Integer] struct {
	name   string
	values []T
}

// NewIntColumn creates an integer column. The slice is referenced, not copied.
func NewIntColumn[T Integer](name string, values []T) *IntColumn[T] {
	return &IntColumn[T]{name: name, values: values}
}

// NewInt64 is shorthand for NewIntColumn[int64].
func NewInt64(name string, values []int64) *IntColumn[int64] {
	return NewIntColumn(name, values)
}

func (c *IntColumn[T]) Name() string { return c.name }
func (c *IntColumn[T]) Len() int     { return len(c.values) }
func (c *IntColumn[T]) Value(i int) any {
	return int64(c.values[i])
}

// Values exposes the underlying storage.
func (c *IntColumn[T]) Values() []T { return c.values }

func (c *IntColumn[T]) Kind() Kind {
	var zero T
	switch any(zero).(type) {
	case int8:
		return KindInt8
	case int16:
		return KindInt16
	case int32:
		return KindInt32
	default:
		return KindInt64
	}
}

// Int64At returns row i widened to int64.
func (c *IntColumn[T]) Int64At(i int) int64 { return int64(c.values[i]) }

// MinMax returns the observed range. ok is false for an empty column.
func (c *IntColumn[T]) MinMax() (min, max int64, ok bool) {
	if len(c.values) == 0 {
		return 0, 0, false
	}
	min, max = int64(c.values[0]), int64(c.values[0])
	for _, v := range c.values[1:] {
		x := int64(v)
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	return min, max, true
}

func (c *IntColumn[T]) Take(idx []int) Column {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = c.values[j]
	}
	return &IntColumn[T]{name: c.name, values: out}
}

func (c *IntColumn[T]) Rename(name string) Column {
	return &IntColumn[T]{name: name, values: c.values}
}

func (c *IntColumn[T]) MemoryUsage() int64 {
	var zero T
	return int64(len(c.values)) * int64(unsafe.Sizeof(zero))
}

// FloatColumn stores floating point values at a fixed width.
type FloatColumn[T Float] struct {
	name   string
	values []T
}

// NewFloatColumn creates a float column. The slice is referenced, not copied.
func NewFloatColumn[T Float](name string, values []T) *FloatColumn[T] {
	return &FloatColumn[T]{name: name, values: values}
}

// NewFloat64 is shorthand for NewFloatColumn[float64].
func NewFloat64(name string, values []float64) *FloatColumn[float64] {
	return NewFloatColumn(name, values)
}

func (c *FloatColumn[T]) Name() string { return c.name }
func (c *FloatColumn[T]) Len() int     { return len(c.values) }
func (c *FloatColumn[T]) Value(i int) any {
	return float64(c.values[i])
}

// Values exposes the underlying storage.
func (c *FloatColumn[T]) Values() []T { return c.values }

func (c *FloatColumn[T]) Kind() Kind {
	var zero T
	if _, ok := any(zero).(float32); ok {
		return KindFloat32
	}
	return KindFloat64
}

// Float64At returns row i widened to float64.
func (c *FloatColumn[T]) Float64At(i int) float64 { return float64(c.values[i]) }

func (c *FloatColumn[T]) Take(idx []int) Column {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = c.values[j]
	}
	return &FloatColumn[T]{name: c.name, values: out}
}

func (c *FloatColumn[T]) Rename(name string) Column {
	return &FloatColumn[T]{name: name, values: c.values}
}

func (c *FloatColumn[T]) MemoryUsage() int64 {
	var zero T
	return int64(len(c.values)) * int64(unsafe.Sizeof(zero))
}

// StringColumn stores text values.
type StringColumn struct {
	name   string
	values []string
}

// NewStringColumn creates a string column. The slice is referenced, not copied.
func NewStringColumn(name string, values []string) *StringColumn {
	return &StringColumn{name: name, values: values}
}

func (c *StringColumn) Name() string          { return c.name }
func (c *StringColumn) Kind() Kind            { return KindString }
func (c *StringColumn) Len() int              { return len(c.values) }
func (c *StringColumn) Value(i int) any       { return c.values[i] }
func (c *StringColumn) Values() []string      { return c.values }
func (c *StringColumn) StringAt(i int) string { return c.values[i] }

// Distinct counts the distinct values.
func (c *StringColumn) Distinct() int {
	unique := make(map[string]struct{}, len(c.values)/2+1)
	for _, v := range c.values {
		unique[v] = struct{}{}
	}
	return len(unique)
}

func (c *StringColumn) Take(idx []int) Column {
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = c.values[j]
	}
	return &StringColumn{name: c.name, values: out}
}

func (c *StringColumn) Rename(name string) Column {
	return &StringColumn{name: name, values: c.values}
}

func (c *StringColumn) MemoryUsage() int64 {
	var total int64
	for _, v := range c.values {
		total += int64(len(v))
		total += 16 // string header overhead
	}
	return total
}

// CategoryColumn stores text as dictionary codes. Codes index Dictionary;
// the dictionary keeps first-appearance order.
type CategoryColumn struct {
	name  string
	codes []int32
	dict  []string
}

// NewCategoryColumn creates a category column from codes and dictionary.
// Every code must index dict.
func NewCategoryColumn(name string, codes []int32, dict []string) (*CategoryColumn, error) {
	for i, code := range codes {
		if code < 0 || int(code) >= len(dict) {
			return nil, fmt.Errorf("column %q: code %d at row %d outside dictionary of %d", name, code, i, len(dict))
		}
	}
	return &CategoryColumn{name: name, codes: codes, dict: dict}, nil
}

// EncodeCategory dictionary-encodes values.
func EncodeCategory(name string, values []string) *CategoryColumn {
	index := make(map[string]int32)
	dict := make([]string, 0)
	codes := make([]int32, len(values))
	for i, v := range values {
		code, ok := index[v]
		if !ok {
			code = int32(len(dict))
			index[v] = code
			dict = append(dict, v)
		}
		codes[i] = code
	}
	return &CategoryColumn{name: name, codes: codes, dict: dict}
}

func (c *CategoryColumn) Name() string          { return c.name }
func (c *CategoryColumn) Kind() Kind            { return KindCategory }
func (c *CategoryColumn) Len() int              { return len(c.codes) }
func (c *CategoryColumn) Value(i int) any       { return c.dict[c.codes[i]] }
func (c *CategoryColumn) StringAt(i int) string { return c.dict[c.codes[i]] }
func (c *CategoryColumn) Codes() []int32        { return c.codes }
func (c *CategoryColumn) Dictionary() []string  { return c.dict }

// Decode expands the column back to plain strings.
func (c *CategoryColumn) Decode() *StringColumn {
	out := make([]string, len(c.codes))
	for i, code := range c.codes {
		out[i] = c.dict[code]
	}
	return &StringColumn{name: c.name, values: out}
}

func (c *CategoryColumn) Take(idx []int) Column {
	out := make([]int32, len(idx))
	for i, j := range idx {
		out[i] = c.codes[j]
	}
	return &CategoryColumn{name: c.name, codes: out, dict: c.dict}
}

func (c *CategoryColumn) Rename(name string) Column {
	return &CategoryColumn{name: name, codes: c.codes, dict: c.dict}
}

func (c *CategoryColumn) MemoryUsage() int64 {
	total := int64(len(c.codes)) * 4
	for _, v := range c.dict {
		total += int64(len(v)) + 16
	}
	return total
}

// TimeColumn stores instants as Unix nanoseconds.
type TimeColumn struct {
	name  string
	nanos []int64
}

// NewTimeColumn creates a time column. Values are normalized to UTC.
func NewTimeColumn(name string, values []time.Time) *TimeColumn {
	nanos := make([]int64, len(values))
	for i, v := range values {
		nanos[i] = v.UnixNano()
	}
	return &TimeColumn{name: name, nanos: nanos}
}

// NewTimeColumnNanos creates a time column from Unix nanoseconds.
func NewTimeColumnNanos(name string, nanos []int64) *TimeColumn {
	return &TimeColumn{name: name, nanos: nanos}
}

func (c *TimeColumn) Name() string { return c.name }
func (c *TimeColumn) Kind() Kind   { return KindTime }
func (c *TimeColumn) Len() int     { return len(c.nanos) }
func (c *TimeColumn) Value(i int) any {
	return time.Unix(0, c.nanos[i]).UTC()
}

// Nanos exposes the underlying storage.
func (c *TimeColumn) Nanos() []int64 { return c.nanos }

// TimeAt returns row i.
func (c *TimeColumn) TimeAt(i int) time.Time { return time.Unix(0, c.nanos[i]).UTC() }

func (c *TimeColumn) Take(idx []int) Column {
	out := make([]int64, len(idx))
	for i, j := range idx {
		out[i] = c.nanos[j]
	}
	return &TimeColumn{name: c.name, nanos: out}
}

func (c *TimeColumn) Rename(name string) Column {
	return &TimeColumn{name: name, nanos: c.nanos}
}

func (c *TimeColumn) MemoryUsage() int64 { return int64(len(c.nanos)) * 8 }

// ValuesEqual compares two decoded values. NaN equals NaN so that a frame
// compares equal to its own round trip.
func ValuesEqual(a, b any) bool {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		if !ok {
			return false
		}
		if math.IsNaN(x) && math.IsNaN(y) {
			return true
		}
		return x == y
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	default:
		return a == b
	}
}
