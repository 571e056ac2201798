package frame

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/econdash/pkg/errors"
)

// dateLayouts are tried in order when inferring time columns. The last one
// is the day-first layout used by BCB series exports.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// CSVOptions controls ReadCSV.
type CSVOptions struct {
	// Comma is the field delimiter; zero means ','.
	Comma rune
	// TimeColumns forces the listed columns to parse as time.
	TimeColumns []string
	// StringColumns disables inference for the listed columns.
	StringColumns []string
}

// ReadCSV reads a CSV document with a header row. Column kinds are inferred:
// int64 when every cell parses as an integer, float64 when every non-empty
// cell parses as a number (empty cells become NaN), time when every cell
// matches one date layout, otherwise string.
func ReadCSV(r io.Reader, opts CSVOptions) (*Frame, error) {
	cr := csv.NewReader(r)
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read csv")
	}
	if len(records) == 0 {
		return nil, errors.New(errors.ErrorTypeData, "csv has no header row")
	}

	header := records[0]
	rows := records[1:]
	forced := make(map[string]Kind)
	for _, name := range opts.TimeColumns {
		forced[name] = KindTime
	}
	for _, name := range opts.StringColumns {
		forced[name] = KindString
	}

	columns := make([]Column, len(header))
	for j, name := range header {
		name = strings.TrimSpace(name)
		cells := make([]string, len(rows))
		for i, rec := range rows {
			if j < len(rec) {
				cells[i] = strings.TrimSpace(rec[j])
			}
		}
		col, err := inferColumn(name, cells, forced)
		if err != nil {
			return nil, err
		}
		columns[j] = col
	}

	f, err := New(columns...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid csv layout")
	}
	return f, nil
}

func inferColumn(name string, cells []string, forced map[string]Kind) (Column, error) {
	switch forced[name] {
	case KindTime:
		col, layout := parseTimes(name, cells)
		if layout == "" {
			return nil, errors.Newf(errors.ErrorTypeData, "column %q does not hold dates", name)
		}
		return col, nil
	case KindString:
		return NewStringColumn(name, cells), nil
	}

	if len(cells) == 0 {
		return NewStringColumn(name, cells), nil
	}
	if ints, ok := parseInts(cells); ok {
		return NewInt64(name, ints), nil
	}
	if floats, ok := parseFloats(cells); ok {
		return NewFloat64(name, floats), nil
	}
	if col, layout := parseTimes(name, cells); layout != "" {
		return col, nil
	}
	return NewStringColumn(name, cells), nil
}

func parseInts(cells []string) ([]int64, bool) {
	out := make([]int64, len(cells))
	for i, s := range cells {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func parseFloats(cells []string) ([]float64, bool) {
	out := make([]float64, len(cells))
	seen := false
	for i, s := range cells {
		if s == "" {
			out[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
		seen = true
	}
	return out, seen
}

// parseTimes returns the layout that parsed every cell, or "" if none did.
func parseTimes(name string, cells []string) (*TimeColumn, string) {
	for _, layout := range dateLayouts {
		nanos := make([]int64, len(cells))
		ok := true
		for i, s := range cells {
			t, err := time.Parse(layout, s)
			if err != nil {
				ok = false
				break
			}
			nanos[i] = t.UnixNano()
		}
		if ok {
			return NewTimeColumnNanos(name, nanos), layout
		}
	}
	return nil, ""
}
