// Package tools defines the data tools an analyst engine can call while it
// reasons about the time series of one (client, platform) pair.
package tools

import (
	"context"
	"strings"

	adkmemory "google.golang.org/adk/memory"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"github.com/easeaico/marketing-analyst/internal/memory"
)

// Tool names.
const (
	DescribeDatasetName    = "describe_dataset"
	QueryRowsName          = "query_rows"
	AggregateMetricName    = "aggregate_metric"
	SearchPastAnalysesName = "search_past_analyses"
)

// --- Tool Input Structs ---

// DescribeDatasetArgs is the input for describe_dataset tool.
type DescribeDatasetArgs struct{}

// QueryRowsArgs is the input for query_rows tool.
type QueryRowsArgs struct {
	Start   string   `json:"start,omitempty" jsonschema:"Data inicial inclusiva no formato YYYY-MM-DD"`
	End     string   `json:"end,omitempty" jsonschema:"Data final inclusiva no formato YYYY-MM-DD"`
	Columns []string `json:"columns,omitempty" jsonschema:"Colunas de métricas a retornar; vazio retorna todas"`
	Limit   int      `json:"limit,omitempty" jsonschema:"Número máximo de linhas (padrão 50, máximo 500)"`
}

// AggregateMetricArgs is the input for aggregate_metric tool.
type AggregateMetricArgs struct {
	Metric string `json:"metric" jsonschema:"Nome da coluna de métrica"`
	Op     string `json:"op" jsonschema:"Agregação: sum, mean, min ou max"`
	Period string `json:"period,omitempty" jsonschema:"Agrupamento: total, day, week ou month"`
	Start  string `json:"start,omitempty" jsonschema:"Data inicial inclusiva no formato YYYY-MM-DD"`
	End    string `json:"end,omitempty" jsonschema:"Data final inclusiva no formato YYYY-MM-DD"`
}

// SearchPastAnalysesArgs is the input for search_past_analyses tool.
type SearchPastAnalysesArgs struct {
	Query string `json:"query" jsonschema:"O que procurar nos resumos e análises anteriores do cliente"`
}

// Definition describes a tool to engines that take JSON-schema declarations.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

var descriptions = map[string]string{
	DescribeDatasetName:    "Retorna o formato do conjunto de dados: linhas, colunas, tipos, estatísticas básicas, valores ausentes e intervalo de datas.",
	QueryRowsName:          "Retorna linhas do conjunto de dados, opcionalmente filtradas por período e colunas.",
	AggregateMetricName:    "Agrega uma métrica (soma, média, mínimo ou máximo) no período inteiro ou por dia, semana ou mês.",
	SearchPastAnalysesName: "Busca na memória semântica do cliente resumos do conjunto de dados e análises anteriores relevantes.",
}

func dateProperty() map[string]any {
	return map[string]any{"type": "string", "description": "Data no formato YYYY-MM-DD"}
}

// Definitions returns the JSON-schema declarations of every tool.
func Definitions() []Definition {
	return []Definition{
		{
			Name:        DescribeDatasetName,
			Description: descriptions[DescribeDatasetName],
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        QueryRowsName,
			Description: descriptions[QueryRowsName],
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"start":   dateProperty(),
					"end":     dateProperty(),
					"columns": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"limit":   map[string]any{"type": "integer", "minimum": 1, "maximum": maxRowLimit},
				},
			},
		},
		{
			Name:        AggregateMetricName,
			Description: descriptions[AggregateMetricName],
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"metric": map[string]any{"type": "string"},
					"op":     map[string]any{"type": "string", "enum": []string{"sum", "mean", "min", "max"}},
					"period": map[string]any{"type": "string", "enum": []string{"total", "day", "week", "month"}},
					"start":  dateProperty(),
					"end":    dateProperty(),
				},
				"required": []string{"metric", "op"},
			},
		},
		{
			Name:        SearchPastAnalysesName,
			Description: descriptions[SearchPastAnalysesName],
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string"},
				},
				"required": []string{"query"},
			},
		},
	}
}

// BuildTools creates the ADK function tools backed by h. With runnerMemory
// set, search_past_analyses queries the memory service of the runner through
// the tool context instead of the handler's recaller.
func BuildTools(h *Handler, runnerMemory bool) ([]tool.Tool, error) {
	builders := []func(*Handler) (tool.Tool, error){
		createDescribeDatasetTool,
		createQueryRowsTool,
		createAggregateMetricTool,
	}

	out := make([]tool.Tool, 0, len(builders)+1)
	for _, build := range builders {
		t, err := build(h)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	search, err := createSearchPastAnalysesTool(h, runnerMemory)
	if err != nil {
		return nil, err
	}
	return append(out, search), nil
}

// memorySearcher is the part of tool.Context that reaches the runner's
// memory service.
type memorySearcher interface {
	SearchMemory(ctx context.Context, query string) (*adkmemory.SearchResponse, error)
}

// searchRecaller turns runner memory entries back into documents. The entry
// author holds the document kind.
type searchRecaller struct {
	searcher memorySearcher
}

func (r searchRecaller) Retrieve(ctx context.Context, query string) ([]memory.Document, error) {
	resp, err := r.searcher.SearchMemory(ctx, query)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}

	docs := make([]memory.Document, 0, len(resp.Memories))
	for _, m := range resp.Memories {
		if m.Content == nil {
			continue
		}
		var text strings.Builder
		for _, part := range m.Content.Parts {
			if part != nil {
				text.WriteString(part.Text)
			}
		}
		docs = append(docs, memory.Document{
			Kind:      memory.Kind(m.Author),
			Content:   text.String(),
			CreatedAt: m.Timestamp,
		})
	}
	return docs, nil
}

// --- Tool Handlers ---

func createDescribeDatasetTool(h *Handler) (tool.Tool, error) {
	handler := func(ctx tool.Context, args DescribeDatasetArgs) (ToolResult, error) {
		return h.DescribeDataset(), nil
	}

	return functiontool.New(functiontool.Config{
		Name:        DescribeDatasetName,
		Description: descriptions[DescribeDatasetName],
	}, handler)
}

func createQueryRowsTool(h *Handler) (tool.Tool, error) {
	handler := func(ctx tool.Context, args QueryRowsArgs) (ToolResult, error) {
		return h.QueryRows(args), nil
	}

	return functiontool.New(functiontool.Config{
		Name:        QueryRowsName,
		Description: descriptions[QueryRowsName],
	}, handler)
}

func createAggregateMetricTool(h *Handler) (tool.Tool, error) {
	handler := func(ctx tool.Context, args AggregateMetricArgs) (ToolResult, error) {
		return h.AggregateMetric(args), nil
	}

	return functiontool.New(functiontool.Config{
		Name:        AggregateMetricName,
		Description: descriptions[AggregateMetricName],
	}, handler)
}

func createSearchPastAnalysesTool(h *Handler, runnerMemory bool) (tool.Tool, error) {
	handler := func(ctx tool.Context, args SearchPastAnalysesArgs) (ToolResult, error) {
		if runnerMemory {
			return searchPast(ctx, searchRecaller{searcher: ctx}, args), nil
		}
		return h.SearchPastAnalyses(ctx, args), nil
	}

	return functiontool.New(functiontool.Config{
		Name:        SearchPastAnalysesName,
		Description: descriptions[SearchPastAnalysesName],
	}, handler)
}
