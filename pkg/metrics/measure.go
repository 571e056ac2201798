package metrics

import (
	"context"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Measure wraps fn so that every successful call appends a sample under op.
// An empty op uses the function's own name. Results, errors and panics pass
// through unchanged; failed calls are counted but not sampled.
func Measure[T any](r *Recorder, op string, fn func() (T, error)) func() (T, error) {
	op = operationName(op, fn)
	return func() (T, error) {
		start := r.clock.Now()
		v, err := fn()
		r.finish(op, start, err)
		return v, err
	}
}

// Measure1 is Measure for functions taking one argument.
func Measure1[A, T any](r *Recorder, op string, fn func(A) (T, error)) func(A) (T, error) {
	op = operationName(op, fn)
	return func(a A) (T, error) {
		start := r.clock.Now()
		v, err := fn(a)
		r.finish(op, start, err)
		return v, err
	}
}

// MeasureErr is Measure for functions returning only an error.
func MeasureErr(r *Recorder, op string, fn func() error) func() error {
	op = operationName(op, fn)
	return func() error {
		start := r.clock.Now()
		err := fn()
		r.finish(op, start, err)
		return err
	}
}

// MeasureContext is Measure for context-aware functions. Each call also runs
// inside a span named op.
func MeasureContext[T any](r *Recorder, op string, fn func(context.Context) (T, error)) func(context.Context) (T, error) {
	op = operationName(op, fn)
	return func(ctx context.Context) (T, error) {
		ctx, span := r.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("econdash.operation", op)))
		defer span.End()

		start := r.clock.Now()
		v, err := fn(ctx)
		r.finish(op, start, err)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return v, err
	}
}

// Time starts a stopwatch for op. Calling the returned function records the
// elapsed time as a sample; further calls are ignored.
//
//	defer rec.Time("render")()
func (r *Recorder) Time(op string) func() {
	start := r.clock.Now()
	var once sync.Once
	return func() {
		once.Do(func() { r.Observe(op, r.clock.Now().Sub(start)) })
	}
}

func (r *Recorder) finish(op string, start time.Time, err error) {
	if err != nil {
		r.fail(op, err)
		return
	}
	r.Observe(op, r.clock.Now().Sub(start))
}

// operationName returns op, or the short name of fn when op is empty.
func operationName(op string, fn any) string {
	if op != "" {
		return op
	}
	f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if f == nil {
		return "unknown"
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
