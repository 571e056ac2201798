package codec

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/econdash/pkg/frame"
	"github.com/ajitpratap0/econdash/pkg/pool"
)

var (
	timestampType  = &arrow.TimestampType{Unit: arrow.Nanosecond, TimeZone: "UTC"}
	categoryType   = &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int32, ValueType: arrow.BinaryTypes.String}
	errNotArrowIPC = errors.New("not an arrow ipc stream")
)

type arrowCodec struct {
	mem memory.Allocator
}

// Arrow returns the Arrow IPC codec. A nil allocator uses the Go allocator.
func Arrow(mem memory.Allocator) Codec {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &arrowCodec{mem: mem}
}

func (c *arrowCodec) Name() string { return ArrowName }

func (c *arrowCodec) Encode(f *frame.Frame) ([]byte, error) {
	fields := make([]arrow.Field, 0, f.Width())
	arrays := make([]arrow.Array, 0, f.Width())
	defer func() {
		for _, arr := range arrays {
			arr.Release()
		}
	}()

	for _, col := range f.Columns() {
		arr, err := c.toArrow(col)
		if err != nil {
			return nil, err
		}
		arrays = append(arrays, arr)
		fields = append(fields, arrow.Field{Name: col.Name(), Type: arr.DataType()})
	}

	schema := arrow.NewSchema(fields, nil)
	rec := array.NewRecord(schema, arrays, int64(f.Len()))
	defer rec.Release()

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)
	w := ipc.NewWriter(buf, ipc.WithSchema(schema), ipc.WithAllocator(c.mem))
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to write arrow record: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close arrow writer: %w", err)
	}
	return pool.Detach(buf), nil
}

func (c *arrowCodec) toArrow(col frame.Column) (arrow.Array, error) {
	switch v := col.(type) {
	case *frame.IntColumn[int8]:
		b := array.NewInt8Builder(c.mem)
		defer b.Release()
		b.AppendValues(v.Values(), nil)
		return b.NewArray(), nil
	case *frame.IntColumn[int16]:
		b := array.NewInt16Builder(c.mem)
		defer b.Release()
		b.AppendValues(v.Values(), nil)
		return b.NewArray(), nil
	case *frame.IntColumn[int32]:
		b := array.NewInt32Builder(c.mem)
		defer b.Release()
		b.AppendValues(v.Values(), nil)
		return b.NewArray(), nil
	case *frame.IntColumn[int64]:
		b := array.NewInt64Builder(c.mem)
		defer b.Release()
		b.AppendValues(v.Values(), nil)
		return b.NewArray(), nil
	case *frame.FloatColumn[float32]:
		b := array.NewFloat32Builder(c.mem)
		defer b.Release()
		b.AppendValues(v.Values(), nil)
		return b.NewArray(), nil
	case *frame.FloatColumn[float64]:
		b := array.NewFloat64Builder(c.mem)
		defer b.Release()
		b.AppendValues(v.Values(), nil)
		return b.NewArray(), nil
	case *frame.StringColumn:
		b := array.NewStringBuilder(c.mem)
		defer b.Release()
		b.AppendValues(v.Values(), nil)
		return b.NewArray(), nil
	case *frame.TimeColumn:
		b := array.NewTimestampBuilder(c.mem, timestampType)
		defer b.Release()
		for _, n := range v.Nanos() {
			b.Append(arrow.Timestamp(n))
		}
		return b.NewArray(), nil
	case *frame.CategoryColumn:
		ib := array.NewInt32Builder(c.mem)
		defer ib.Release()
		ib.AppendValues(v.Codes(), nil)
		indices := ib.NewArray()
		defer indices.Release()

		db := array.NewStringBuilder(c.mem)
		defer db.Release()
		db.AppendValues(v.Dictionary(), nil)
		dict := db.NewArray()
		defer dict.Release()

		return array.NewDictionaryArray(categoryType, indices, dict), nil
	default:
		return nil, fmt.Errorf("column %q: unsupported column type %T", col.Name(), col)
	}
}

func (c *arrowCodec) Decode(data []byte) (f *frame.Frame, err error) {
	// Flatbuffer parsing of corrupt input can panic inside the reader.
	defer func() {
		if r := recover(); r != nil {
			f, err = nil, fmt.Errorf("%w: %v", errNotArrowIPC, r)
		}
	}()

	rdr, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(c.mem))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errNotArrowIPC, err)
	}
	defer rdr.Release()

	schema := rdr.Schema()
	acc := make([]*accumulator, len(schema.Fields()))
	for i, field := range schema.Fields() {
		kind, err := kindOf(field.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field.Name, err)
		}
		acc[i] = &accumulator{name: field.Name, kind: kind}
	}

	for rdr.Next() {
		rec := rdr.Record()
		for i, a := range acc {
			if err := a.add(rec.Column(i)); err != nil {
				return nil, err
			}
		}
	}
	if err := rdr.Err(); err != nil {
		return nil, fmt.Errorf("failed to read arrow stream: %w", err)
	}

	cols := make([]frame.Column, len(acc))
	for i, a := range acc {
		cols[i] = a.build()
	}
	return frame.New(cols...)
}

func kindOf(dt arrow.DataType) (frame.Kind, error) {
	switch dt.ID() {
	case arrow.INT8:
		return frame.KindInt8, nil
	case arrow.INT16:
		return frame.KindInt16, nil
	case arrow.INT32:
		return frame.KindInt32, nil
	case arrow.INT64:
		return frame.KindInt64, nil
	case arrow.FLOAT32:
		return frame.KindFloat32, nil
	case arrow.FLOAT64:
		return frame.KindFloat64, nil
	case arrow.STRING:
		return frame.KindString, nil
	case arrow.TIMESTAMP:
		return frame.KindTime, nil
	case arrow.DICTIONARY:
		dict := dt.(*arrow.DictionaryType)
		if dict.IndexType.ID() != arrow.INT32 || dict.ValueType.ID() != arrow.STRING {
			return 0, fmt.Errorf("unsupported dictionary type %s", dt)
		}
		return frame.KindCategory, nil
	default:
		return 0, fmt.Errorf("unsupported arrow type %s", dt)
	}
}

// accumulator gathers one column across record batches. Values are copied
// out because batch buffers are released by the reader.
type accumulator struct {
	name string
	kind frame.Kind

	i8    []int8
	i16   []int16
	i32   []int32
	i64   []int64
	f32   []float32
	f64   []float64
	strs  []string
	nanos []int64

	codes     []int32
	dict      []string
	dictIndex map[string]int32
}

func (a *accumulator) add(arr arrow.Array) error {
	if arr.NullN() > 0 {
		return fmt.Errorf("column %q holds %d nulls", a.name, arr.NullN())
	}

	switch v := arr.(type) {
	case *array.Int8:
		a.i8 = append(a.i8, v.Int8Values()...)
	case *array.Int16:
		a.i16 = append(a.i16, v.Int16Values()...)
	case *array.Int32:
		a.i32 = append(a.i32, v.Int32Values()...)
	case *array.Int64:
		a.i64 = append(a.i64, v.Int64Values()...)
	case *array.Float32:
		a.f32 = append(a.f32, v.Float32Values()...)
	case *array.Float64:
		a.f64 = append(a.f64, v.Float64Values()...)
	case *array.String:
		for i := 0; i < v.Len(); i++ {
			a.strs = append(a.strs, strings.Clone(v.Value(i)))
		}
	case *array.Timestamp:
		unit := v.DataType().(*arrow.TimestampType).Unit
		for _, ts := range v.TimestampValues() {
			a.nanos = append(a.nanos, ts.ToTime(unit).UnixNano())
		}
	case *array.Dictionary:
		return a.addDictionary(v)
	default:
		return fmt.Errorf("column %q: unexpected array %T", a.name, arr)
	}
	return nil
}

// addDictionary remaps batch-local codes onto a merged dictionary that
// keeps first-appearance order across batches.
func (a *accumulator) addDictionary(v *array.Dictionary) error {
	indices, ok := v.Indices().(*array.Int32)
	if !ok {
		return fmt.Errorf("column %q: unexpected index array %T", a.name, v.Indices())
	}
	values, ok := v.Dictionary().(*array.String)
	if !ok {
		return fmt.Errorf("column %q: unexpected dictionary array %T", a.name, v.Dictionary())
	}
	if a.dictIndex == nil {
		a.dictIndex = make(map[string]int32, values.Len())
	}

	remap := make([]int32, values.Len())
	for i := 0; i < values.Len(); i++ {
		s := values.Value(i)
		code, seen := a.dictIndex[s]
		if !seen {
			s = strings.Clone(s)
			code = int32(len(a.dict))
			a.dictIndex[s] = code
			a.dict = append(a.dict, s)
		}
		remap[i] = code
	}
	for _, code := range indices.Int32Values() {
		if code < 0 || int(code) >= len(remap) {
			return fmt.Errorf("column %q: dictionary code %d out of range", a.name, code)
		}
		a.codes = append(a.codes, remap[code])
	}
	return nil
}

func (a *accumulator) build() frame.Column {
	switch a.kind {
	case frame.KindInt8:
		return frame.NewIntColumn(a.name, nonNil(a.i8))
	case frame.KindInt16:
		return frame.NewIntColumn(a.name, nonNil(a.i16))
	case frame.KindInt32:
		return frame.NewIntColumn(a.name, nonNil(a.i32))
	case frame.KindInt64:
		return frame.NewIntColumn(a.name, nonNil(a.i64))
	case frame.KindFloat32:
		return frame.NewFloatColumn(a.name, nonNil(a.f32))
	case frame.KindFloat64:
		return frame.NewFloatColumn(a.name, nonNil(a.f64))
	case frame.KindTime:
		return frame.NewTimeColumnNanos(a.name, nonNil(a.nanos))
	case frame.KindCategory:
		col, _ := frame.NewCategoryColumn(a.name, nonNil(a.codes), nonNil(a.dict))
		return col
	default:
		return frame.NewStringColumn(a.name, nonNil(a.strs))
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
