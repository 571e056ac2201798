// Package shrink reduces the memory held by frames before they are cached
// or rendered.
//
// OptimizeTypes narrows column storage without changing any decoded value.
// Downsample keeps an evenly strided subset of a time series.
package shrink

import (
	"math"

	"go.uber.org/zap"

	"github.com/ajitpratap0/econdash/pkg/errors"
	"github.com/ajitpratap0/econdash/pkg/frame"
	"github.com/ajitpratap0/econdash/pkg/logger"
)

const (
	// DefaultCategoryRatio is the distinct/total ratio below which string
	// columns become categories.
	DefaultCategoryRatio = 0.5
	// DefaultDownsampleTarget is the row budget used when none is given.
	DefaultDownsampleTarget = 1000
)

// Options configures a Shrinker.
type Options struct {
	CategoryRatio    float64
	DownsampleTarget int
	Logger           *zap.Logger
}

// Shrinker applies type narrowing and downsampling.
type Shrinker struct {
	categoryRatio    float64
	downsampleTarget int
	logger           *zap.Logger
}

// New creates a Shrinker. Non-positive options take their defaults.
func New(opts Options) *Shrinker {
	if opts.CategoryRatio <= 0 {
		opts.CategoryRatio = DefaultCategoryRatio
	}
	if opts.DownsampleTarget <= 0 {
		opts.DownsampleTarget = DefaultDownsampleTarget
	}
	return &Shrinker{
		categoryRatio:    opts.CategoryRatio,
		downsampleTarget: opts.DownsampleTarget,
		logger:           logger.Named(opts.Logger, "shrink"),
	}
}

// OptimizeTypes returns f with every column stored in the narrowest kind
// that holds its values exactly:
//   - integers move to the smallest of int8, int16 and int32 covering their
//     range, and are never widened
//   - float64 moves to float32 when every value survives the round trip
//   - strings become categories when distinct/total is below the ratio
//
// A frame without rows is returned as is.
func (s *Shrinker) OptimizeTypes(f *frame.Frame) frame.Result {
	if f.Len() == 0 {
		return frame.OK(f)
	}

	before := f.MemoryUsage()
	cols := make([]frame.Column, f.Width())
	changed := false
	for i, col := range f.Columns() {
		cols[i] = s.narrow(col, f.Len())
		if cols[i] != col {
			changed = true
		}
	}
	if !changed {
		s.logger.Debug("no column could be narrowed", zap.Int("columns", f.Width()))
		return frame.OK(f)
	}

	out, err := frame.New(cols...)
	if err != nil {
		// Narrowing never changes names or lengths.
		return frame.Degrade(f, errors.Wrap(err, errors.ErrorTypeInternal, "failed to rebuild frame"))
	}

	after := out.MemoryUsage()
	reduction := 0.0
	if before > 0 {
		reduction = 1 - float64(after)/float64(before)
	}
	s.logger.Info("frame types optimized",
		zap.Int64("bytes_before", before),
		zap.Int64("bytes_after", after),
		zap.Float64("reduction", reduction))
	return frame.OK(out)
}

func (s *Shrinker) narrow(col frame.Column, rows int) frame.Column {
	switch c := col.(type) {
	case *frame.IntColumn[int64]:
		return narrowInt(c)
	case *frame.IntColumn[int32]:
		return narrowInt(c)
	case *frame.IntColumn[int16]:
		return narrowInt(c)
	case *frame.FloatColumn[float64]:
		if fitsFloat32(c.Values()) {
			return frame.NewFloatColumn(c.Name(), toFloat32(c.Values()))
		}
	case *frame.StringColumn:
		if float64(c.Distinct())/float64(rows) < s.categoryRatio {
			return frame.EncodeCategory(c.Name(), c.Values())
		}
	}
	return col
}

func narrowInt[T frame.Integer](c *frame.IntColumn[T]) frame.Column {
	lo, hi, ok := c.MinMax()
	if !ok {
		return c
	}
	target := c.Kind()
	switch {
	case lo >= math.MinInt8 && hi <= math.MaxInt8:
		target = frame.KindInt8
	case lo >= math.MinInt16 && hi <= math.MaxInt16:
		target = frame.KindInt16
	case lo >= math.MinInt32 && hi <= math.MaxInt32:
		target = frame.KindInt32
	}
	if target >= c.Kind() {
		return c
	}

	values := c.Values()
	switch target {
	case frame.KindInt8:
		return frame.NewIntColumn(c.Name(), convert[T, int8](values))
	case frame.KindInt16:
		return frame.NewIntColumn(c.Name(), convert[T, int16](values))
	default:
		return frame.NewIntColumn(c.Name(), convert[T, int32](values))
	}
}

func convert[From, To frame.Integer](values []From) []To {
	out := make([]To, len(values))
	for i, v := range values {
		out[i] = To(v)
	}
	return out
}

func fitsFloat32(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if float64(float32(v)) != v {
			return false
		}
	}
	return true
}

func toFloat32(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}

// Downsample sorts f by dateColumn and keeps every Nth row starting with the
// first, N = rows/target. A non-positive target uses the configured default.
// Frames within the target are returned unchanged. When dateColumn does not
// exist the original frame comes back degraded.
func (s *Shrinker) Downsample(f *frame.Frame, dateColumn string, target int) frame.Result {
	if target <= 0 {
		target = s.downsampleTarget
	}
	rows := f.Len()
	if rows <= target {
		return frame.OK(f)
	}

	sorted, err := f.SortBy(dateColumn)
	if err != nil {
		s.logger.Warn("downsample column missing, returning frame unchanged",
			zap.String("column", dateColumn),
			zap.Strings("columns", f.Names()))
		return frame.Degrade(f, errors.Wrap(err, errors.ErrorTypeNotFound, "downsample column missing").
			WithDetail("column", dateColumn))
	}

	step := rows / target
	idx := make([]int, 0, (rows+step-1)/step)
	for i := 0; i < rows; i += step {
		idx = append(idx, i)
	}
	out := sorted.Take(idx)

	s.logger.Debug("frame downsampled",
		zap.Int("rows_before", rows),
		zap.Int("rows_after", out.Len()),
		zap.Int("step", step))
	return frame.OK(out)
}
