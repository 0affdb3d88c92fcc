package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	adkmemory "google.golang.org/adk/memory"
	"google.golang.org/adk/model"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/easeaico/marketing-analyst/internal/memory"
)

// scriptedLLM implements model.LLM. It asks for a tool until toolTurns calls
// were made, then answers with text. The tool is describe_dataset unless
// tool is set.
type scriptedLLM struct {
	mu        sync.Mutex
	calls     int
	toolTurns int
	tool      string
	args      map[string]any
	answer    string
	responses []map[string]any
}

func (s *scriptedLLM) Name() string { return "scripted" }

func (s *scriptedLLM) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	s.mu.Lock()
	s.calls++
	call := s.calls
	for _, c := range req.Contents {
		for _, p := range c.Parts {
			if p.FunctionResponse != nil {
				s.responses = append(s.responses, p.FunctionResponse.Response)
			}
		}
	}
	s.mu.Unlock()

	name, args := s.tool, s.args
	if name == "" {
		name, args = "describe_dataset", map[string]any{}
	}
	return func(yield func(*model.LLMResponse, error) bool) {
		if call <= s.toolTurns {
			yield(&model.LLMResponse{Content: &genai.Content{
				Role: genai.RoleModel,
				Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{
					Name: name,
					Args: args,
				}}},
			}}, nil)
			return
		}
		yield(&model.LLMResponse{Content: genai.NewContentFromText(s.answer, genai.RoleModel)}, nil)
	}
}

// recordingMemory is an adkmemory.Service that records searches.
type recordingMemory struct {
	mu       sync.Mutex
	searches []*adkmemory.SearchRequest
}

func (m *recordingMemory) AddSession(ctx context.Context, s session.Session) error { return nil }

func (m *recordingMemory) Search(ctx context.Context, req *adkmemory.SearchRequest) (*adkmemory.SearchResponse, error) {
	m.mu.Lock()
	m.searches = append(m.searches, req)
	m.mu.Unlock()
	return &adkmemory.SearchResponse{Memories: []adkmemory.Entry{{
		Content:   genai.NewContentFromText("Consulta: alcance\n\nResultado da Análise: caiu 10%", genai.RoleModel),
		Author:    "analysis_record",
		Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}}}, nil
}

func TestADKEngine_AnswersAfterToolCall(t *testing.T) {
	llm := &scriptedLLM{toolTurns: 1, answer: "O pico de impressões foi em 10 de janeiro."}
	b := NewADKBuilder(llm, 0.2, Limits{MaxIterations: 4, MaxExecutionTime: time.Minute}, nil)

	eng, err := b.Build(context.Background(), testSpec(t))
	if err != nil {
		t.Fatalf("failed to build: %v", err)
	}
	if llm.calls != 0 {
		t.Fatal("Build must not call the model")
	}

	out, err := eng.Invoke(context.Background(), "Quando foi o pico de impressões?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != llm.answer {
		t.Errorf("unexpected answer %q", out)
	}
	if llm.calls != 2 {
		t.Errorf("expected 2 model calls, got %d", llm.calls)
	}
}

func TestADKEngine_IterationLimit(t *testing.T) {
	llm := &scriptedLLM{toolTurns: 100}
	b := NewADKBuilder(llm, 0, Limits{MaxIterations: 2, MaxExecutionTime: time.Minute}, nil)
	eng, err := b.Build(context.Background(), testSpec(t))
	if err != nil {
		t.Fatal(err)
	}

	_, err = eng.Invoke(context.Background(), "loop")
	if !errors.Is(err, ErrIterationLimit) {
		t.Fatalf("expected ErrIterationLimit, got %v", err)
	}
}

func TestADKEngine_SessionsAreIndependent(t *testing.T) {
	llm := &scriptedLLM{answer: "Resposta direta sem ferramentas."}
	b := NewADKBuilder(llm, 0, Limits{}, nil)
	eng, err := b.Build(context.Background(), testSpec(t))
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := eng.Invoke(context.Background(), "q")
			if err != nil || out != llm.answer {
				t.Errorf("unexpected result %q, %v", out, err)
			}
		}()
	}
	wg.Wait()
}

func TestADKEngine_DeletesSessions(t *testing.T) {
	llm := &scriptedLLM{toolTurns: 1, answer: "Resposta após consultar o conjunto de dados."}
	b := NewADKBuilder(llm, 0, Limits{}, nil)
	eng, err := b.Build(context.Background(), testSpec(t))
	if err != nil {
		t.Fatal(err)
	}

	for range 5 {
		if _, err := eng.Invoke(context.Background(), "q"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	llm.toolTurns = 100
	if _, err := eng.Invoke(context.Background(), "loop"); !errors.Is(err, ErrIterationLimit) {
		t.Fatalf("expected ErrIterationLimit, got %v", err)
	}

	sessions := eng.(*adkEngine).sessions
	resp, err := sessions.List(context.Background(), &session.ListRequest{AppName: appName, UserID: "1"})
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(resp.Sessions) != 0 {
		t.Errorf("expected no sessions left, got %d", len(resp.Sessions))
	}
}

func TestADKEngine_SearchesRunnerMemory(t *testing.T) {
	llm := &scriptedLLM{
		toolTurns: 1,
		tool:      "search_past_analyses",
		args:      map[string]any{"query": "alcance"},
		answer:    "O alcance caiu 10% segundo a análise anterior.",
	}
	mem := &recordingMemory{}
	spec := testSpec(t)
	spec.Recaller = failingRecaller{}
	eng, err := NewADKBuilder(llm, 0, Limits{}, mem).Build(context.Background(), spec)
	if err != nil {
		t.Fatal(err)
	}

	out, err := eng.Invoke(context.Background(), "O que aconteceu com o alcance?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != llm.answer {
		t.Errorf("unexpected answer %q", out)
	}
	if len(mem.searches) != 1 || mem.searches[0].UserID != "1" || mem.searches[0].Query != "alcance" {
		t.Fatalf("unexpected searches %+v", mem.searches)
	}
	if len(llm.responses) != 1 || !strings.Contains(fmt.Sprint(llm.responses[0]), "caiu 10%") {
		t.Errorf("expected the memory entry in the tool response, got %v", llm.responses)
	}
}

// failingRecaller fails every lookup; the runner memory must be used instead.
type failingRecaller struct{}

func (failingRecaller) Retrieve(ctx context.Context, query string) ([]memory.Document, error) {
	return nil, errors.New("recaller must not be used")
}
