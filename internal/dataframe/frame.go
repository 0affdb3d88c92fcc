// Package dataframe holds the materialized time-series rows of one
// (client, platform) pair in a form that can be cached, serialized and
// summarized.
package dataframe

import (
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Frame is a date-indexed table of metric columns. A nil value is a missing
// observation.
type Frame struct {
	DateColumn string   `json:"date_column"`
	Columns    []string `json:"columns"`
	Rows       []Row    `json:"rows"`
}

// Row is one observation of every metric column on a date.
type Row struct {
	Date   time.Time  `json:"date"`
	Values []*float64 `json:"values"`
}

// DateRange bounds a query on the date column. Zero bounds are open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether d falls inside the range, bounds inclusive.
func (r DateRange) Contains(d time.Time) bool {
	if !r.Start.IsZero() && d.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && d.After(r.End) {
		return false
	}
	return true
}

// New returns an empty frame with the given layout.
func New(dateColumn string, columns []string) *Frame {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Frame{DateColumn: dateColumn, Columns: cols}
}

// Append adds a row. Dates are stored in UTC; values must align with Columns.
// NaN and infinite values are stored as missing.
func (f *Frame) Append(date time.Time, values []*float64) error {
	if len(values) != len(f.Columns) {
		return fmt.Errorf("row has %d values, frame has %d columns", len(values), len(f.Columns))
	}
	if !date.IsZero() {
		date = date.UTC()
	}
	f.Rows = append(f.Rows, Row{Date: date, Values: finite(values)})
	return nil
}

// finite returns values with non-finite entries set to nil. values is copied
// only when something changes.
func finite(values []*float64) []*float64 {
	out := values
	copied := false
	for i, v := range values {
		if v == nil || (!math.IsNaN(*v) && !math.IsInf(*v, 0)) {
			continue
		}
		if !copied {
			out = append([]*float64(nil), values...)
			copied = true
		}
		out[i] = nil
	}
	return out
}

// RowCount returns the number of rows.
func (f *Frame) RowCount() int { return len(f.Rows) }

// ColumnCount returns the number of columns including the date column.
func (f *Frame) ColumnCount() int { return len(f.Columns) + 1 }

// AllColumns returns the date column followed by the metric columns.
func (f *Frame) AllColumns() []string {
	return append([]string{f.DateColumn}, f.Columns...)
}

// ColumnIndex returns the position of a metric column, or -1.
func (f *Frame) ColumnIndex(name string) int {
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Series returns the values of a metric column.
func (f *Frame) Series(name string) ([]*float64, bool) {
	idx := f.ColumnIndex(name)
	if idx < 0 {
		return nil, false
	}
	out := make([]*float64, len(f.Rows))
	for i, r := range f.Rows {
		out[i] = r.Values[idx]
	}
	return out, true
}

// Filter returns a frame sharing row values with f but only holding rows inside r.
func (f *Frame) Filter(r DateRange) *Frame {
	out := New(f.DateColumn, f.Columns)
	for _, row := range f.Rows {
		if r.Contains(row.Date) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Float is a convenience constructor for a present value.
func Float(v float64) *float64 { return &v }

// CSV renders the frame with a header line. Missing values are empty cells.
func (f *Frame) CSV() string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	_ = w.Write(f.AllColumns())
	for _, row := range f.Rows {
		_ = w.Write(f.record(row))
	}
	w.Flush()
	return sb.String()
}

// Preview renders at most n rows as CSV, followed by a truncation marker when
// rows were left out.
func (f *Frame) Preview(n int) string {
	if n <= 0 || n >= len(f.Rows) {
		return f.CSV()
	}
	head := &Frame{DateColumn: f.DateColumn, Columns: f.Columns, Rows: f.Rows[:n]}
	return head.CSV() + fmt.Sprintf("... (%d linhas no total)\n", len(f.Rows))
}

func (f *Frame) record(row Row) []string {
	rec := make([]string, 0, len(row.Values)+1)
	if row.Date.IsZero() {
		rec = append(rec, "")
	} else {
		rec = append(rec, row.Date.Format("2006-01-02"))
	}
	for _, v := range row.Values {
		if v == nil {
			rec = append(rec, "")
			continue
		}
		rec = append(rec, strconv.FormatFloat(*v, 'f', -1, 64))
	}
	return rec
}
