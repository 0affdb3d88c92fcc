package service

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/easeaico/marketing-analyst/internal/engine"
	"github.com/easeaico/marketing-analyst/internal/memory"
)

// scriptedModel implements model.LLM. It issues one function call per turn
// from calls, then answers with text, and keeps every function response it
// is sent.
type scriptedModel struct {
	mu        sync.Mutex
	turn      int
	calls     []*genai.FunctionCall
	answer    string
	responses []string
}

func (m *scriptedModel) Name() string { return "scripted" }

func (m *scriptedModel) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	m.mu.Lock()
	turn := m.turn
	m.turn++
	m.responses = m.responses[:0]
	for _, c := range req.Contents {
		for _, p := range c.Parts {
			if p.FunctionResponse != nil {
				m.responses = append(m.responses, p.FunctionResponse.Name+": "+fmt.Sprint(p.FunctionResponse.Response))
			}
		}
	}
	m.mu.Unlock()

	return func(yield func(*model.LLMResponse, error) bool) {
		if turn < len(m.calls) {
			yield(&model.LLMResponse{Content: &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{FunctionCall: m.calls[turn]}},
			}}, nil)
			return
		}
		yield(&model.LLMResponse{Content: genai.NewContentFromText(m.answer, genai.RoleModel)}, nil)
	}
}

func TestRunAnalysis_ADKEngine(t *testing.T) {
	llm := &scriptedModel{
		calls: []*genai.FunctionCall{
			{Name: "query_rows", Args: map[string]any{"start": "2024-01-02", "end": "2024-01-03"}},
			{Name: "aggregate_metric", Args: map[string]any{"metric": "page_impressions", "op": "sum"}},
			{Name: "search_past_analyses", Args: map[string]any{"query": "resumo do conjunto de dados"}},
		},
		answer: "As impressões somaram 600 no período, com pico em 3 de janeiro.",
	}

	a, store := newAnalyst(t, func(store *memory.Store) engine.Builder {
		limits := engine.Limits{MaxIterations: 5, MaxExecutionTime: time.Minute}
		return engine.NewADKBuilder(llm, 0, limits, memory.NewService(store))
	})

	res, err := a.RunAnalysis(context.Background(), Request{
		ClientID:    "1",
		Platform:    "facebook",
		CustomQuery: "Qual foi o total de impressões?",
	})
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status, res.Error)
	assert.Equal(t, llm.answer, res.Result)

	require.Len(t, llm.responses, 3)
	assert.Contains(t, llm.responses[0], "query_rows")
	assert.Contains(t, llm.responses[0], "2024-01-03")
	assert.NotContains(t, llm.responses[0], "2024-01-01")
	assert.Contains(t, llm.responses[1], "600")
	assert.Contains(t, llm.responses[2], string(memory.KindDatasetInfo))

	docs, err := store.Retrieve(context.Background(), "1", "total de impressões", 50, 50)
	require.NoError(t, err)
	var recorded []memory.Document
	for _, d := range docs {
		if d.Kind == memory.KindAnalysisRecord {
			recorded = append(recorded, d)
		}
	}
	require.Len(t, recorded, 1)
	assert.Equal(t, memory.AnalysisContent("Qual foi o total de impressões?", llm.answer), recorded[0].Content)
}
