package query

import (
	"strconv"
	"strings"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/klytics/sheetkit/internal/table"
)

// Summary describes a dataset without filtering it.
type Summary struct {
	Records     int
	Columns     []string
	GeneratedAt time.Time
	Fields      []FieldSummary
}

// FieldSummary describes one column. Numeric is set only when every
// non-empty value in the column parses as a number.
type FieldSummary struct {
	Name     string
	NonEmpty int
	Numeric  *NumericSummary
}

// NumericSummary holds basic statistics for a numeric column.
type NumericSummary struct {
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	Median float64
	Sum    float64
}

// Stats summarizes ds as of now.
func Stats(ds *table.Dataset, now time.Time) Summary {
	s := Summary{Records: ds.Len(), Columns: []string{}, GeneratedAt: now}
	if ds == nil {
		return s
	}
	s.Columns = append(s.Columns, ds.Headers...)

	for _, h := range ds.Headers {
		fs := FieldSummary{Name: h}
		values := make([]float64, 0, len(ds.Rows))
		numeric := true
		for _, row := range ds.Rows {
			v := row.Get(h)
			if v == "" {
				continue
			}
			fs.NonEmpty++
			if !numeric {
				continue
			}
			f, ok := parseNumber(v)
			if !ok {
				numeric = false
				continue
			}
			values = append(values, f)
		}
		if numeric && len(values) > 0 {
			fs.Numeric = describe(values)
		}
		s.Fields = append(s.Fields, fs)
	}
	return s
}

// NumericFields returns the columns that carry numeric statistics.
func (s Summary) NumericFields() []FieldSummary {
	var out []FieldSummary
	for _, f := range s.Fields {
		if f.Numeric != nil {
			out = append(out, f)
		}
	}
	return out
}

func describe(data []float64) *NumericSummary {
	// Errors are only returned for empty input, which the caller excludes.
	min, _ := stats.Min(data)
	max, _ := stats.Max(data)
	mean, _ := stats.Mean(data)
	median, _ := stats.Median(data)
	sum, _ := stats.Sum(data)
	return &NumericSummary{
		Count:  len(data),
		Min:    min,
		Max:    max,
		Mean:   mean,
		Median: median,
		Sum:    sum,
	}
}

// parseNumber accepts plain numbers plus the thousands separators and
// currency or percent marks spreadsheets commonly export.
func parseNumber(v string) (float64, bool) {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "$")
	v = strings.TrimSuffix(v, "%")
	v = strings.ReplaceAll(v, ",", "")
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
