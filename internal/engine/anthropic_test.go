package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/easeaico/marketing-analyst/internal/dataframe"
	"github.com/easeaico/marketing-analyst/internal/platform"
)

// scriptedMessages replays canned responses and records every request.
type scriptedMessages struct {
	responses []*anthropic.Message
	err       error
	requests  []anthropic.MessageNewParams
}

func (s *scriptedMessages) New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error) {
	s.requests = append(s.requests, params)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.requests) > len(s.responses) {
		return s.responses[len(s.responses)-1], nil
	}
	return s.responses[len(s.requests)-1], nil
}

func textMessage(text string) *anthropic.Message {
	return &anthropic.Message{Content: []anthropic.ContentBlockUnion{{Type: "text", Text: text}}}
}

func toolUseMessage(id, name, input string) *anthropic.Message {
	return &anthropic.Message{Content: []anthropic.ContentBlockUnion{
		{Type: "text", Text: "Vou consultar os dados."},
		{Type: "tool_use", ID: id, Name: name, Input: json.RawMessage(input)},
	}}
}

func testSpec(t *testing.T) Spec {
	t.Helper()
	f := dataframe.New(platform.DateColumn, platform.Facebook.Columns())
	for d := 1; d <= 10; d++ {
		date := time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
		if err := f.Append(date, []*float64{dataframe.Float(float64(d * 100)), dataframe.Float(float64(d * 50)), dataframe.Float(1)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return Spec{
		ClientID:    "1",
		Platform:    platform.Facebook,
		Instruction: platform.Facebook.Instruction(),
		Frame:       f,
	}
}

func TestSystemPrompt(t *testing.T) {
	prompt := SystemPrompt(testSpec(t))

	for _, want := range []string{
		"Você é um analista de dados avançado",
		"page_impressions_unique: Impressões únicas da página",
		"Cliente: 1",
		"10 linhas e as colunas: data, page_impressions, page_impressions_unique, page_follows",
		"2024-01-01,100,50,1",
		"... (10 linhas no total)",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "2024-01-06") {
		t.Error("preview should stop after the first rows")
	}

	if got := SystemPrompt(Spec{Instruction: "só instrução"}); got != "só instrução" {
		t.Errorf("expected bare instruction without a frame, got %q", got)
	}
}

func TestAnthropicEngine_ToolLoop(t *testing.T) {
	msgs := &scriptedMessages{responses: []*anthropic.Message{
		toolUseMessage("call_1", "aggregate_metric", `{"metric":"page_impressions","op":"sum"}`),
		textMessage("O total de impressões foi 5500."),
	}}
	b, err := newAnthropicBuilder(msgs, "claude-sonnet-4-5", 0.2, Limits{MaxIterations: 4, MaxExecutionTime: time.Minute})
	if err != nil {
		t.Fatalf("failed to create builder: %v", err)
	}

	eng, err := b.Build(context.Background(), testSpec(t))
	if err != nil {
		t.Fatalf("failed to build: %v", err)
	}
	if len(msgs.requests) != 0 {
		t.Fatal("Build must not call the API")
	}

	out, err := eng.Invoke(context.Background(), "Qual o total de impressões?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "O total de impressões foi 5500." {
		t.Errorf("unexpected answer %q", out)
	}

	if len(msgs.requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(msgs.requests))
	}
	first, second := msgs.requests[0], msgs.requests[1]
	if len(first.Tools) != 4 {
		t.Errorf("expected 4 tools declared, got %d", len(first.Tools))
	}
	if !strings.Contains(first.System[0].Text, "Prévia dos dados") {
		t.Error("system prompt should carry the data preview")
	}
	// user question, assistant tool_use, user tool_result
	if len(second.Messages) != 3 {
		t.Errorf("expected 3 messages on the second turn, got %d", len(second.Messages))
	}
	if second.Messages[1].Role != anthropic.MessageParamRoleAssistant {
		t.Errorf("expected assistant turn, got %s", second.Messages[1].Role)
	}
}

func TestAnthropicEngine_IterationLimit(t *testing.T) {
	msgs := &scriptedMessages{responses: []*anthropic.Message{
		toolUseMessage("call_1", "describe_dataset", `{}`),
	}}
	b, err := newAnthropicBuilder(msgs, "claude-sonnet-4-5", 0, Limits{MaxIterations: 3, MaxExecutionTime: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	eng, _ := b.Build(context.Background(), testSpec(t))

	_, err = eng.Invoke(context.Background(), "loop")
	if !errors.Is(err, ErrIterationLimit) {
		t.Fatalf("expected ErrIterationLimit, got %v", err)
	}
	if len(msgs.requests) != 3 {
		t.Errorf("expected exactly 3 requests, got %d", len(msgs.requests))
	}
}

func TestAnthropicEngine_APIError(t *testing.T) {
	msgs := &scriptedMessages{err: errors.New("overloaded")}
	b, _ := newAnthropicBuilder(msgs, "claude-sonnet-4-5", 0, Limits{})
	eng, _ := b.Build(context.Background(), testSpec(t))

	_, err := eng.Invoke(context.Background(), "q")
	if err == nil || !strings.Contains(err.Error(), "overloaded") {
		t.Fatalf("expected wrapped API error, got %v", err)
	}
}

func TestAnthropicEngine_CanceledContext(t *testing.T) {
	msgs := &scriptedMessages{responses: []*anthropic.Message{textMessage("x")}}
	b, _ := newAnthropicBuilder(msgs, "claude-sonnet-4-5", 0, Limits{})
	eng, _ := b.Build(context.Background(), testSpec(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := eng.Invoke(ctx, "q"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(msgs.requests) != 0 {
		t.Error("no request should be sent on a canceled context")
	}
}

func TestLimitsDefaults(t *testing.T) {
	got := Limits{MaxIterations: 2}.withDefaults()
	if got.MaxIterations != 2 || got.MaxExecutionTime != DefaultLimits.MaxExecutionTime {
		t.Errorf("unexpected limits %+v", got)
	}
}
