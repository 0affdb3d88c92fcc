package dataframe

import (
	"math"
	"sort"
	"time"
)

// Column dtypes reported by Describe.
const (
	DTypeDate    = "datetime"
	DTypeFloat64 = "float64"
)

// ColumnType names the dtype of one column.
type ColumnType struct {
	Name  string
	DType string
}

// ColumnStats are the numeric summary statistics of a metric column,
// following the usual describe() layout: non-missing count, mean, sample
// standard deviation, min, quartiles and max.
type ColumnStats struct {
	Name   string
	Count  int
	Mean   float64
	Std    float64
	Min    float64
	Q25    float64
	Median float64
	Q75    float64
	Max    float64
}

// MissingCount reports missing observations of a column.
type MissingCount struct {
	Name    string
	Count   int
	Percent float64
}

// Summary is the full descriptive profile of a frame.
type Summary struct {
	RowCount    int
	ColumnCount int
	Columns     []string
	Types       []ColumnType
	Stats       []ColumnStats
	Missing     []MissingCount
	DateMin     time.Time
	DateMax     time.Time
}

// HasDates reports whether at least one row carried a date.
func (s Summary) HasDates() bool { return !s.DateMin.IsZero() }

// Describe computes the descriptive profile of f.
func (f *Frame) Describe() Summary {
	s := Summary{
		RowCount:    f.RowCount(),
		ColumnCount: f.ColumnCount(),
		Columns:     f.AllColumns(),
	}

	s.Types = append(s.Types, ColumnType{Name: f.DateColumn, DType: DTypeDate})
	for _, c := range f.Columns {
		s.Types = append(s.Types, ColumnType{Name: c, DType: DTypeFloat64})
	}

	missingDates := 0
	for _, r := range f.Rows {
		if r.Date.IsZero() {
			missingDates++
			continue
		}
		if s.DateMin.IsZero() || r.Date.Before(s.DateMin) {
			s.DateMin = r.Date
		}
		if s.DateMax.IsZero() || r.Date.After(s.DateMax) {
			s.DateMax = r.Date
		}
	}
	if missingDates > 0 {
		s.Missing = append(s.Missing, missing(f.DateColumn, missingDates, s.RowCount))
	}

	for i, c := range f.Columns {
		values := make([]float64, 0, len(f.Rows))
		for _, r := range f.Rows {
			if v := r.Values[i]; v != nil && !math.IsNaN(*v) {
				values = append(values, *v)
			}
		}
		if n := s.RowCount - len(values); n > 0 {
			s.Missing = append(s.Missing, missing(c, n, s.RowCount))
		}
		s.Stats = append(s.Stats, stats(c, values))
	}

	return s
}

func missing(name string, n, total int) MissingCount {
	return MissingCount{Name: name, Count: n, Percent: float64(n) / float64(total) * 100}
}

func stats(name string, values []float64) ColumnStats {
	st := ColumnStats{Name: name, Count: len(values)}
	if len(values) == 0 {
		nan := math.NaN()
		st.Mean, st.Std, st.Min, st.Q25, st.Median, st.Q75, st.Max = nan, nan, nan, nan, nan, nan, nan
		return st
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	st.Mean = sum / float64(len(sorted))

	if len(sorted) > 1 {
		var sq float64
		for _, v := range sorted {
			d := v - st.Mean
			sq += d * d
		}
		st.Std = math.Sqrt(sq / float64(len(sorted)-1))
	} else {
		st.Std = math.NaN()
	}

	st.Min = sorted[0]
	st.Max = sorted[len(sorted)-1]
	st.Q25 = quantile(sorted, 0.25)
	st.Median = quantile(sorted, 0.5)
	st.Q75 = quantile(sorted, 0.75)
	return st
}

// quantile uses linear interpolation between closest ranks on sorted input.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
