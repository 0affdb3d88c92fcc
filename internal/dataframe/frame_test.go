package dataframe

import (
	"encoding/json"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func sampleFrame(t *testing.T) *Frame {
	t.Helper()
	f := New("data", []string{"page_impressions", "page_follows"})
	rows := []struct {
		date   time.Time
		values []*float64
	}{
		{day(1), []*float64{Float(100), Float(3)}},
		{day(2), []*float64{Float(200), nil}},
		{day(3), []*float64{Float(300), Float(5)}},
		{day(4), []*float64{Float(400), Float(7)}},
	}
	for _, r := range rows {
		if err := f.Append(r.date, r.values); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return f
}

func TestFrame_AppendRejectsMisalignedRow(t *testing.T) {
	f := New("data", []string{"a", "b"})
	if err := f.Append(day(1), []*float64{Float(1)}); err == nil {
		t.Fatal("expected error for misaligned row")
	}
}

func TestFrame_AppendStoresNonFiniteAsMissing(t *testing.T) {
	f := New("data", []string{"reach", "impressions", "follows"})
	values := []*float64{Float(math.NaN()), Float(10), Float(math.Inf(1))}
	if err := f.Append(day(1), values); err != nil {
		t.Fatalf("append: %v", err)
	}

	row := f.Rows[0].Values
	if row[0] != nil || row[2] != nil {
		t.Errorf("expected non-finite values to be missing, got %v", row)
	}
	if row[1] == nil || *row[1] != 10 {
		t.Errorf("finite value changed: %v", row[1])
	}
	if values[0] == nil {
		t.Error("the caller's slice must not be modified")
	}

	raw, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("frame with NaN input must encode: %v", err)
	}
	if !strings.Contains(string(raw), `"values":[null,10,null]`) {
		t.Errorf("unexpected encoding %s", raw)
	}
}

func TestFrame_Counts(t *testing.T) {
	f := sampleFrame(t)
	if f.RowCount() != 4 {
		t.Errorf("expected 4 rows, got %d", f.RowCount())
	}
	if f.ColumnCount() != 3 {
		t.Errorf("expected 3 columns including date, got %d", f.ColumnCount())
	}
}

func TestFrame_Filter(t *testing.T) {
	f := sampleFrame(t)

	got := f.Filter(DateRange{Start: day(2), End: day(3)})
	if got.RowCount() != 2 {
		t.Fatalf("expected 2 rows, got %d", got.RowCount())
	}
	if !got.Rows[0].Date.Equal(day(2)) || !got.Rows[1].Date.Equal(day(3)) {
		t.Errorf("unexpected rows: %v", got.Rows)
	}

	if open := f.Filter(DateRange{}); open.RowCount() != 4 {
		t.Errorf("open range should keep every row, got %d", open.RowCount())
	}
}

func TestFrame_Series(t *testing.T) {
	f := sampleFrame(t)
	s, ok := f.Series("page_follows")
	if !ok {
		t.Fatal("expected series")
	}
	if s[1] != nil || *s[2] != 5 {
		t.Errorf("unexpected series values")
	}
	if _, ok := f.Series("unknown"); ok {
		t.Error("expected unknown column to be absent")
	}
}

func TestFrame_CSVAndPreview(t *testing.T) {
	f := sampleFrame(t)

	csv := f.CSV()
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected header + 4 rows, got %d lines", len(lines))
	}
	if lines[0] != "data,page_impressions,page_follows" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[2] != "2024-01-02,200," {
		t.Errorf("missing value should be an empty cell, got %q", lines[2])
	}

	preview := f.Preview(2)
	if !strings.Contains(preview, "(4 linhas no total)") {
		t.Errorf("preview should mention the total row count: %q", preview)
	}
	if strings.Contains(preview, "2024-01-03") {
		t.Error("preview should stop after two rows")
	}
}

func TestFrame_JSONRoundTrip(t *testing.T) {
	f := sampleFrame(t)

	raw, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Frame
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(f, &back) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", back, *f)
	}
}

func TestFrame_Describe(t *testing.T) {
	s := sampleFrame(t).Describe()

	if s.RowCount != 4 || s.ColumnCount != 3 {
		t.Errorf("unexpected shape %dx%d", s.RowCount, s.ColumnCount)
	}
	if !s.DateMin.Equal(day(1)) || !s.DateMax.Equal(day(4)) {
		t.Errorf("unexpected date range %v..%v", s.DateMin, s.DateMax)
	}
	if len(s.Types) != 3 || s.Types[0].DType != DTypeDate || s.Types[1].DType != DTypeFloat64 {
		t.Errorf("unexpected dtypes %+v", s.Types)
	}

	imp := s.Stats[0]
	if imp.Count != 4 || imp.Mean != 250 || imp.Min != 100 || imp.Max != 400 {
		t.Errorf("unexpected stats %+v", imp)
	}
	if imp.Median != 250 || imp.Q25 != 175 || imp.Q75 != 325 {
		t.Errorf("unexpected quartiles %+v", imp)
	}
	if math.Abs(imp.Std-129.0994) > 0.001 {
		t.Errorf("unexpected std %f", imp.Std)
	}

	if len(s.Missing) != 1 {
		t.Fatalf("expected one column with missing values, got %+v", s.Missing)
	}
	if s.Missing[0].Name != "page_follows" || s.Missing[0].Count != 1 || s.Missing[0].Percent != 25 {
		t.Errorf("unexpected missing count %+v", s.Missing[0])
	}
}

func TestFrame_DescribeEmptyColumn(t *testing.T) {
	f := New("data", []string{"reach"})
	_ = f.Append(day(1), []*float64{nil})

	st := f.Describe().Stats[0]
	if st.Count != 0 || !math.IsNaN(st.Mean) {
		t.Errorf("expected NaN stats for an all-missing column, got %+v", st)
	}
}
