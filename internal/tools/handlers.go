package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/easeaico/marketing-analyst/internal/dataframe"
	"github.com/easeaico/marketing-analyst/internal/memory"
	"github.com/easeaico/marketing-analyst/internal/platform"
)

const (
	defaultRowLimit = 50
	maxRowLimit     = 500
)

// Recaller looks up documents in the semantic memory of one client.
type Recaller interface {
	Retrieve(ctx context.Context, query string) ([]memory.Document, error)
}

// Handler provides implementations for all analyst tools over one frame.
type Handler struct {
	frame    *dataframe.Frame
	recaller Recaller
}

// NewHandler creates a tool handler bound to the frame of a (client,
// platform) pair. recaller may be nil, in which case past analyses are
// unavailable.
func NewHandler(frame *dataframe.Frame, recaller Recaller) *Handler {
	return &Handler{frame: frame, recaller: recaller}
}

// ToolResult represents the result of a tool execution.
type ToolResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func failure(format string, args ...any) ToolResult {
	return ToolResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

// HandleToolCall dispatches a tool call by name. input is the raw JSON
// arguments object sent by the model.
func (h *Handler) HandleToolCall(ctx context.Context, name string, input json.RawMessage) (string, error) {
	var result ToolResult

	switch name {
	case DescribeDatasetName:
		result = h.DescribeDataset()
	case QueryRowsName:
		var args QueryRowsArgs
		if result = decode(input, &args); result.Error == "" {
			result = h.QueryRows(args)
		}
	case AggregateMetricName:
		var args AggregateMetricArgs
		if result = decode(input, &args); result.Error == "" {
			result = h.AggregateMetric(args)
		}
	case SearchPastAnalysesName:
		var args SearchPastAnalysesArgs
		if result = decode(input, &args); result.Error == "" {
			result = h.SearchPastAnalyses(ctx, args)
		}
	default:
		result = failure("unknown tool: %s", name)
	}

	jsonResult, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}

	return string(jsonResult), nil
}

func decode(input json.RawMessage, v any) ToolResult {
	if len(input) == 0 {
		return ToolResult{Success: true}
	}
	if err := json.Unmarshal(input, v); err != nil {
		return failure("invalid arguments: %v", err)
	}
	return ToolResult{Success: true}
}

// DescribeDataset returns shape, types, statistics, missing values and the
// date span of the frame.
func (h *Handler) DescribeDataset() ToolResult {
	s := h.frame.Describe()

	stats := make([]map[string]any, 0, len(s.Stats))
	for _, c := range s.Stats {
		stats = append(stats, map[string]any{
			"column": c.Name,
			"count":  c.Count,
			"mean":   finite(c.Mean),
			"std":    finite(c.Std),
			"min":    finite(c.Min),
			"25%":    finite(c.Q25),
			"50%":    finite(c.Median),
			"75%":    finite(c.Q75),
			"max":    finite(c.Max),
		})
	}
	types := make(map[string]string, len(s.Types))
	for _, c := range s.Types {
		types[c.Name] = c.DType
	}
	missing := make(map[string]int, len(s.Missing))
	for _, m := range s.Missing {
		missing[m.Name] = m.Count
	}

	data := map[string]any{
		"rows":       s.RowCount,
		"columns":    s.Columns,
		"types":      types,
		"statistics": stats,
		"missing":    missing,
	}
	if s.HasDates() {
		data["date_min"] = s.DateMin.Format(platform.DateLayout)
		data["date_max"] = s.DateMax.Format(platform.DateLayout)
	}
	return ToolResult{Success: true, Data: data}
}

// QueryRows returns the rows inside an optional date window, restricted to
// the requested columns.
func (h *Handler) QueryRows(args QueryRowsArgs) ToolResult {
	window, err := parseWindow(args.Start, args.End)
	if err != nil {
		return failure("%v", err)
	}

	columns := args.Columns
	if len(columns) == 0 {
		columns = h.frame.Columns
	}
	idx := make([]int, len(columns))
	for i, c := range columns {
		if idx[i] = h.frame.ColumnIndex(c); idx[i] < 0 {
			return failure("unknown column %q; available: %s", c, strings.Join(h.frame.Columns, ", "))
		}
	}

	limit := args.Limit
	if limit <= 0 {
		limit = defaultRowLimit
	}
	limit = min(limit, maxRowLimit)

	filtered := h.frame.Filter(window)
	rows := make([]map[string]any, 0, min(limit, filtered.RowCount()))
	for _, r := range filtered.Rows {
		if len(rows) == limit {
			break
		}
		row := map[string]any{h.frame.DateColumn: r.Date.Format(platform.DateLayout)}
		for i, c := range columns {
			row[c] = r.Values[idx[i]]
		}
		rows = append(rows, row)
	}

	return ToolResult{Success: true, Data: map[string]any{
		"total":     filtered.RowCount(),
		"returned":  len(rows),
		"truncated": filtered.RowCount() > len(rows),
		"rows":      rows,
	}}
}

// Bucket is one aggregated period.
type Bucket struct {
	Period string   `json:"period"`
	Value  *float64 `json:"value"`
	Count  int      `json:"count"`
}

// AggregateMetric reduces one metric column over the whole window or per
// day, ISO week or month. Missing observations are skipped.
func (h *Handler) AggregateMetric(args AggregateMetricArgs) ToolResult {
	series, ok := h.frame.Series(args.Metric)
	if !ok {
		return failure("unknown metric %q; available: %s", args.Metric, strings.Join(h.frame.Columns, ", "))
	}
	reduce, ok := reducers[strings.ToLower(args.Op)]
	if !ok {
		return failure("unsupported op %q; use sum, mean, min or max", args.Op)
	}
	bucketOf, ok := periods[strings.ToLower(args.Period)]
	if !ok {
		return failure("unsupported period %q; use total, day, week or month", args.Period)
	}
	window, err := parseWindow(args.Start, args.End)
	if err != nil {
		return failure("%v", err)
	}

	grouped := map[string][]float64{}
	var order []string
	for i, r := range h.frame.Rows {
		if !window.Contains(r.Date) {
			continue
		}
		key := bucketOf(r.Date)
		if _, seen := grouped[key]; !seen {
			order = append(order, key)
			grouped[key] = nil
		}
		if v := series[i]; v != nil {
			grouped[key] = append(grouped[key], *v)
		}
	}
	sort.Strings(order)

	buckets := make([]Bucket, 0, len(order))
	for _, key := range order {
		values := grouped[key]
		b := Bucket{Period: key, Count: len(values)}
		if len(values) > 0 {
			b.Value = dataframe.Float(reduce(values))
		}
		buckets = append(buckets, b)
	}
	return ToolResult{Success: true, Data: map[string]any{
		"metric":  args.Metric,
		"op":      strings.ToLower(args.Op),
		"buckets": buckets,
	}}
}

// SearchPastAnalyses recalls summaries and earlier analyses of the client.
func (h *Handler) SearchPastAnalyses(ctx context.Context, args SearchPastAnalysesArgs) ToolResult {
	return searchPast(ctx, h.recaller, args)
}

func searchPast(ctx context.Context, recaller Recaller, args SearchPastAnalysesArgs) ToolResult {
	if args.Query == "" {
		return failure("query is required")
	}
	if recaller == nil {
		return failure("semantic memory is not available")
	}

	docs, err := recaller.Retrieve(ctx, args.Query)
	if err != nil {
		return failure("failed to search memory: %v", err)
	}
	if len(docs) == 0 {
		return ToolResult{Success: true, Data: "Nenhuma análise anterior relevante encontrada."}
	}

	var results []map[string]any
	for _, d := range docs {
		r := map[string]any{
			"type":       string(d.Kind),
			"content":    d.Content,
			"created_at": d.CreatedAt.Format(time.RFC3339),
		}
		if d.Platform != "" {
			r["platform"] = d.Platform
		}
		results = append(results, r)
	}
	return ToolResult{Success: true, Data: results}
}

var reducers = map[string]func([]float64) float64{
	"sum": func(v []float64) float64 {
		var s float64
		for _, x := range v {
			s += x
		}
		return s
	},
	"mean": func(v []float64) float64 {
		var s float64
		for _, x := range v {
			s += x
		}
		return s / float64(len(v))
	},
	"min": func(v []float64) float64 {
		m := v[0]
		for _, x := range v[1:] {
			m = math.Min(m, x)
		}
		return m
	},
	"max": func(v []float64) float64 {
		m := v[0]
		for _, x := range v[1:] {
			m = math.Max(m, x)
		}
		return m
	},
}

var periods = map[string]func(time.Time) string{
	"":      func(time.Time) string { return "total" },
	"total": func(time.Time) string { return "total" },
	"day":   func(t time.Time) string { return t.Format(platform.DateLayout) },
	"week": func(t time.Time) string {
		y, w := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", y, w)
	},
	"month": func(t time.Time) string { return t.Format("2006-01") },
}

func parseWindow(start, end string) (dataframe.DateRange, error) {
	var r dataframe.DateRange
	var err error
	if start != "" {
		if r.Start, err = time.Parse(platform.DateLayout, start); err != nil {
			return r, fmt.Errorf("invalid start date %q, expected YYYY-MM-DD", start)
		}
	}
	if end != "" {
		if r.End, err = time.Parse(platform.DateLayout, end); err != nil {
			return r, fmt.Errorf("invalid end date %q, expected YYYY-MM-DD", end)
		}
	}
	return r, nil
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
