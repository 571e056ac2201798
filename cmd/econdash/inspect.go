package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/guptarohit/asciigraph"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/econdash/pkg/codec"
	"github.com/ajitpratap0/econdash/pkg/compression"
	"github.com/ajitpratap0/econdash/pkg/frame"
	"github.com/ajitpratap0/econdash/pkg/lazy"
	"github.com/ajitpratap0/econdash/pkg/metrics"
	"github.com/ajitpratap0/econdash/pkg/payload"
	"github.com/ajitpratap0/econdash/pkg/presentation"
	"github.com/ajitpratap0/econdash/pkg/shrink"
	"github.com/ajitpratap0/econdash/pkg/store"
)

type inspectOptions struct {
	Comma      string
	DateColumn string
	Target     int
	Plot       string
	Save       bool
	Metrics    bool
}

type columnReport struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Optimized string `json:"optimized"`
}

type compressionReport struct {
	Algorithm string  `json:"algorithm"`
	Bytes     int     `json:"bytes"`
	Ratio     float64 `json:"ratio"`
	Degraded  bool    `json:"degraded"`
	RoundTrip bool    `json:"round_trip"`
	Error     string  `json:"error,omitempty"`
}

type inspectReport struct {
	File             string               `json:"file"`
	Rows             int                  `json:"rows"`
	Columns          []columnReport       `json:"columns"`
	MemoryBytes      int64                `json:"memory_bytes"`
	OptimizedBytes   int64                `json:"optimized_bytes"`
	Reduction        float64              `json:"reduction"`
	EncodedBytes     int                  `json:"encoded_bytes"`
	Compression      []compressionReport  `json:"compression"`
	DownsampledRows  int                  `json:"downsampled_rows"`
	DownsampleStatus string               `json:"downsample_status"`
	Stored           string               `json:"stored,omitempty"`
	Caches           presentation.Stats   `json:"caches"`
	Timings          metrics.Report       `json:"timings"`
	downsampled      *frame.Frame
}

func newInspectCmd(a *app) *cobra.Command {
	opts := inspectOptions{}
	cmd := &cobra.Command{
		Use:   "inspect <csv>",
		Short: "Shrink, compress and downsample a CSV dataset and report the results",
		Long: `Inspect reads a CSV export, narrows its column types, compresses it with
every supported algorithm and downsamples it by the date column.

Example:
  econdash inspect ipca.csv --date-column data --target 200 --plot valor`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Target <= 0 {
				opts.Target = a.cfg.Shrink.DownsampleTarget
			}
			report, err := a.inspect(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			return a.writeInspect(cmd.OutOrStdout(), report, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Comma, "comma", ",", "Field delimiter")
	cmd.Flags().StringVar(&opts.DateColumn, "date-column", "data", "Column ordering the downsample")
	cmd.Flags().IntVar(&opts.Target, "target", 0, "Downsample row target (default from configuration)")
	cmd.Flags().StringVar(&opts.Plot, "plot", "", "Plot this numeric column of the downsampled frame")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "Save the optimized frame to the payload store")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "Print timings in Prometheus text format")
	return cmd
}

// csvReader returns the shared, memoized CSV loader. Every caller gets the
// same "read_csv" cache.
func (a *app) csvReader(opts frame.CSVOptions) func(string) (*frame.Frame, error) {
	return presentation.CacheData(a.caches, "read_csv", a.cfg.Cache.DataTTL,
		metrics.Measure1(a.rec, "read_csv", func(p string) (*frame.Frame, error) {
			fh, err := os.Open(p) //nolint:gosec // path comes from the operator
			if err != nil {
				return nil, err
			}
			defer fh.Close()
			return frame.ReadCSV(fh, opts)
		}))
}

func (a *app) inspect(ctx context.Context, path string, opts inspectOptions) (*inspectReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	csvOpts := frame.CSVOptions{}
	if opts.Comma != "" {
		csvOpts.Comma = []rune(opts.Comma)[0]
	}

	readCSV := a.csvReader(csvOpts)

	shrinker := shrink.New(shrink.Options{
		CategoryRatio:    a.cfg.Shrink.CategoryRatio,
		DownsampleTarget: a.cfg.Shrink.DownsampleTarget,
		Logger:           a.log,
	})

	frames := lazy.New[*frame.Frame](lazy.Options{Logger: a.log, Observer: a.rec})
	frames.Register("raw", func() (*frame.Frame, error) { return readCSV(path) })
	frames.Register("optimized", func() (*frame.Frame, error) {
		raw, ok := frames.Get("raw")
		if !ok {
			return nil, fmt.Errorf("failed to load %s", path)
		}
		stop := a.rec.Time("optimize_types")
		defer stop()
		return shrinker.OptimizeTypes(raw).Frame, nil
	})

	raw, ok := frames.Get("raw")
	if !ok {
		return nil, fmt.Errorf("failed to read %s", path)
	}
	optimized, _ := frames.Get("optimized")

	report := &inspectReport{
		File:           filepath.Base(path),
		Rows:           raw.Len(),
		MemoryBytes:    raw.MemoryUsage(),
		OptimizedBytes: optimized.MemoryUsage(),
	}
	if report.MemoryBytes > 0 {
		report.Reduction = 1 - float64(report.OptimizedBytes)/float64(report.MemoryBytes)
	}
	for i, c := range raw.Columns() {
		report.Columns = append(report.Columns, columnReport{
			Name:      c.Name(),
			Kind:      c.Kind().String(),
			Optimized: optimized.Columns()[i].Kind().String(),
		})
	}

	primary, err := codec.ByName(a.cfg.Compression.Codec)
	if err != nil {
		return nil, err
	}
	if encoded, err := primary.Encode(optimized); err == nil {
		report.EncodedBytes = len(encoded)
	}

	level := compression.LevelFromInt(a.cfg.Compression.Level)
	for _, alg := range compression.Algorithms() {
		report.Compression = append(report.Compression, a.compressWith(alg, level, primary, optimized, report.EncodedBytes))
	}

	downsample := metrics.Measure1(a.rec, "downsample", func(f *frame.Frame) (frame.Result, error) {
		return shrinker.Downsample(f, opts.DateColumn, opts.Target), nil
	})
	res, _ := downsample(optimized)
	report.downsampled = res.Frame
	report.DownsampledRows = res.Frame.Len()
	report.DownsampleStatus = "ok"
	if res.Degraded {
		report.DownsampleStatus = res.Err.Error()
	}

	if opts.Save {
		key, err := a.save(ctx, report.File, optimized)
		if err != nil {
			return nil, err
		}
		report.Stored = key
	}

	report.Caches = a.caches.Stats()
	report.Timings = a.rec.Stats()
	return report, nil
}

func (a *app) compressWith(alg compression.Algorithm, level compression.Level, primary codec.Codec, f *frame.Frame, encoded int) compressionReport {
	out := compressionReport{Algorithm: string(alg)}
	comp, err := payload.New(payload.Options{Codec: primary, Algorithm: alg, Level: level, Logger: a.log})
	if err != nil {
		out.Error = err.Error()
		return out
	}

	stop := a.rec.Time("compress_" + string(alg))
	p := comp.Compress(f)
	stop()

	out.Bytes = len(p.Data)
	out.Degraded = p.Degraded
	if p.Err != nil {
		out.Error = p.Err.Error()
	}
	if out.Bytes > 0 && encoded > 0 {
		out.Ratio = float64(encoded) / float64(out.Bytes)
	}

	stop = a.rec.Time("decompress_" + string(alg))
	back := comp.Decompress(p.Data)
	stop()
	out.RoundTrip = !back.Degraded && f.Equal(back.Frame)
	return out
}

func (a *app) save(ctx context.Context, name string, f *frame.Frame) (string, error) {
	if !a.cfg.Cache.HasStore() {
		return "", fmt.Errorf("no payload store configured (cache.store_path)")
	}
	st, err := store.Open(a.cfg.Cache.StorePath, store.Options{})
	if err != nil {
		return "", err
	}
	defer st.Close()

	alg, err := compression.ParseAlgorithm(a.cfg.Compression.Algorithm)
	if err != nil {
		return "", err
	}
	primary, err := codec.ByName(a.cfg.Compression.Codec)
	if err != nil {
		return "", err
	}
	comp, err := payload.New(payload.Options{
		Codec:     primary,
		Algorithm: alg,
		Level:     compression.LevelFromInt(a.cfg.Compression.Level),
		Logger:    a.log,
	})
	if err != nil {
		return "", err
	}

	key := "inspect:" + name
	cache := payload.NewFrameCache(st, comp, a.rec, a.log)
	if err := cache.Save(ctx, key, f, a.cfg.Cache.TTLFor(a.cfg.Cache.DataTTL)); err != nil {
		return "", err
	}
	a.log.Info("frame saved", zap.String("key", key), zap.String("store", st.Path()))
	return key, nil
}

func (a *app) writeInspect(w io.Writer, report *inspectReport, opts inspectOptions) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if _, err := fmt.Fprintln(w, string(data)); err != nil {
		return err
	}

	if opts.Plot != "" {
		chart, err := plotColumn(report.downsampled, opts.Plot)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, chart)
	}

	if opts.Metrics {
		return writeMetrics(w, a.rec, a.cfg.Metrics.Namespace)
	}
	return nil
}

// plotColumn renders a numeric column as an ASCII line chart. NaN points are
// skipped.
func plotColumn(f *frame.Frame, name string) (string, error) {
	col, ok := f.Column(name)
	if !ok {
		return "", fmt.Errorf("column %q not found", name)
	}
	if !col.Kind().IsFloat() && !col.Kind().IsInteger() {
		return "", fmt.Errorf("column %q is %s, not numeric", name, col.Kind())
	}

	data := make([]float64, 0, col.Len())
	for i := 0; i < col.Len(); i++ {
		var v float64
		switch x := col.Value(i).(type) {
		case int64:
			v = float64(x)
		case float64:
			v = x
		}
		if v != v {
			continue
		}
		data = append(data, v)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("column %q has no values to plot", name)
	}

	return asciigraph.Plot(data,
		asciigraph.Height(12),
		asciigraph.Width(72),
		asciigraph.Caption(name),
	), nil
}

func writeMetrics(w io.Writer, rec *metrics.Recorder, namespace string) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(metrics.NewCollector(rec, namespace)); err != nil {
		return fmt.Errorf("failed to register collector: %w", err)
	}
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
