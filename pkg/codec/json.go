package codec

import (
	"fmt"
	"math"
	"strconv"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/econdash/pkg/frame"
)

const (
	jsonFormat  = "econdash.frame"
	jsonVersion = 1
)

type jsonDocument struct {
	Format  string       `json:"format"`
	Version int          `json:"version"`
	Rows    int          `json:"rows"`
	Columns []jsonColumn `json:"columns"`
}

type jsonColumn struct {
	Name       string      `json:"name"`
	Kind       string      `json:"kind"`
	Ints       []int64     `json:"ints,omitempty"`
	Floats     []jsonFloat `json:"floats,omitempty"`
	Strings    []string    `json:"strings,omitempty"`
	Codes      []int32     `json:"codes,omitempty"`
	Dictionary []string    `json:"dictionary,omitempty"`
	Times      []time.Time `json:"times,omitempty"`
}

// jsonFloat writes non-finite values as the strings "NaN", "+Inf", "-Inf".
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

func (f *jsonFloat) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case `"NaN"`:
		*f = jsonFloat(math.NaN())
		return nil
	case `"+Inf"`:
		*f = jsonFloat(math.Inf(1))
		return nil
	case `"-Inf"`:
		*f = jsonFloat(math.Inf(-1))
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("invalid float %s", b)
	}
	*f = jsonFloat(v)
	return nil
}

type jsonCodec struct{}

// JSON returns the JSON codec.
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) Name() string { return JSONName }

func (jsonCodec) Encode(f *frame.Frame) ([]byte, error) {
	doc := jsonDocument{
		Format:  jsonFormat,
		Version: jsonVersion,
		Rows:    f.Len(),
		Columns: make([]jsonColumn, 0, f.Width()),
	}
	for _, col := range f.Columns() {
		jc := jsonColumn{Name: col.Name(), Kind: col.Kind().String()}
		switch v := col.(type) {
		case *frame.StringColumn:
			jc.Strings = v.Values()
		case *frame.CategoryColumn:
			jc.Codes = v.Codes()
			jc.Dictionary = v.Dictionary()
		case *frame.TimeColumn:
			jc.Times = make([]time.Time, v.Len())
			for i := range jc.Times {
				jc.Times[i] = v.TimeAt(i)
			}
		default:
			switch {
			case col.Kind().IsInteger():
				jc.Ints = make([]int64, col.Len())
				for i := range jc.Ints {
					jc.Ints[i] = col.Value(i).(int64)
				}
			case col.Kind().IsFloat():
				jc.Floats = make([]jsonFloat, col.Len())
				for i := range jc.Floats {
					jc.Floats[i] = jsonFloat(col.Value(i).(float64))
				}
			default:
				return nil, fmt.Errorf("column %q: unsupported column type %T", col.Name(), col)
			}
		}
		doc.Columns = append(doc.Columns, jc)
	}

	data, err := gojson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame: %w", err)
	}
	return data, nil
}

func (jsonCodec) Decode(data []byte) (*frame.Frame, error) {
	var doc jsonDocument
	if err := gojson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal frame: %w", err)
	}
	if doc.Format != jsonFormat {
		return nil, fmt.Errorf("not an %s document", jsonFormat)
	}
	if doc.Version != jsonVersion {
		return nil, fmt.Errorf("unsupported %s version %d", jsonFormat, doc.Version)
	}

	cols := make([]frame.Column, 0, len(doc.Columns))
	for _, jc := range doc.Columns {
		col, err := jc.column(doc.Rows)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return frame.New(cols...)
}

func (jc jsonColumn) column(rows int) (frame.Column, error) {
	kind, err := frame.ParseKind(jc.Kind)
	if err != nil {
		return nil, fmt.Errorf("column %q: %w", jc.Name, err)
	}

	var n int
	switch {
	case kind.IsInteger():
		n = len(jc.Ints)
	case kind.IsFloat():
		n = len(jc.Floats)
	case kind == frame.KindString:
		n = len(jc.Strings)
	case kind == frame.KindCategory:
		n = len(jc.Codes)
	case kind == frame.KindTime:
		n = len(jc.Times)
	}
	if n != rows {
		return nil, fmt.Errorf("column %q has %d values, want %d", jc.Name, n, rows)
	}

	switch kind {
	case frame.KindInt8:
		return narrowInts[int8](jc.Name, jc.Ints, math.MinInt8, math.MaxInt8)
	case frame.KindInt16:
		return narrowInts[int16](jc.Name, jc.Ints, math.MinInt16, math.MaxInt16)
	case frame.KindInt32:
		return narrowInts[int32](jc.Name, jc.Ints, math.MinInt32, math.MaxInt32)
	case frame.KindInt64:
		return frame.NewInt64(jc.Name, nonNil(jc.Ints)), nil
	case frame.KindFloat32:
		out := make([]float32, len(jc.Floats))
		for i, v := range jc.Floats {
			out[i] = float32(v)
		}
		return frame.NewFloatColumn(jc.Name, out), nil
	case frame.KindFloat64:
		out := make([]float64, len(jc.Floats))
		for i, v := range jc.Floats {
			out[i] = float64(v)
		}
		return frame.NewFloat64(jc.Name, out), nil
	case frame.KindString:
		return frame.NewStringColumn(jc.Name, nonNil(jc.Strings)), nil
	case frame.KindCategory:
		return frame.NewCategoryColumn(jc.Name, nonNil(jc.Codes), nonNil(jc.Dictionary))
	default:
		return frame.NewTimeColumn(jc.Name, jc.Times), nil
	}
}

func narrowInts[T frame.Integer](name string, values []int64, lo, hi int64) (frame.Column, error) {
	out := make([]T, len(values))
	for i, v := range values {
		if v < lo || v > hi {
			return nil, fmt.Errorf("column %q: value %d overflows %T", name, v, out[0])
		}
		out[i] = T(v)
	}
	return frame.NewIntColumn(name, out), nil
}
