package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	adkmemory "google.golang.org/adk/memory"
	"google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/easeaico/marketing-analyst/internal/tools"
)

const appName = "marketing_analyst"

// NewGeminiModel creates the ADK gemini model used by ADKBuilder.
func NewGeminiModel(ctx context.Context, apiKey, modelName string) (model.LLM, error) {
	llm, err := gemini.NewModel(ctx, modelName, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM model: %w", err)
	}
	return llm, nil
}

// ADKBuilder builds engines on an ADK llm agent with the data tools.
type ADKBuilder struct {
	llm         model.LLM
	memory      adkmemory.Service
	temperature float32
	limits      Limits
}

// NewADKBuilder returns a builder for llm. mem is handed to the runner and
// backs search_past_analyses; when nil the tool uses the recaller of the
// Spec.
func NewADKBuilder(llm model.LLM, temperature float64, limits Limits, mem adkmemory.Service) *ADKBuilder {
	return &ADKBuilder{
		llm:         llm,
		memory:      mem,
		temperature: float32(temperature),
		limits:      limits.withDefaults(),
	}
}

// Build creates the agent and its runner. Sessions are created per Invoke.
func (b *ADKBuilder) Build(ctx context.Context, spec Spec) (Engine, error) {
	handler := tools.NewHandler(spec.Frame, spec.Recaller)
	agentTools, err := tools.BuildTools(handler, b.memory != nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build tools: %w", err)
	}

	llmAgent, err := llmagent.New(llmagent.Config{
		Name:        appName,
		Description: fmt.Sprintf("Analista de dados de marketing da plataforma %s", spec.Platform),
		Model:       b.llm,
		Instruction: SystemPrompt(spec),
		Tools:       agentTools,
		GenerateContentConfig: &genai.GenerateContentConfig{
			Temperature: genai.Ptr(b.temperature),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	sessions := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          llmAgent,
		SessionService: sessions,
		MemoryService:  b.memory,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}

	return &adkEngine{
		runner:   r,
		sessions: sessions,
		clientID: spec.ClientID,
		limits:   b.limits,
	}, nil
}

type adkEngine struct {
	runner   *runner.Runner
	sessions session.Service
	clientID string
	limits   Limits
}

// Invoke runs the agent on a fresh session, deleted on return. Every function
// call the model issues counts as one iteration.
func (e *adkEngine) Invoke(ctx context.Context, input string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.limits.MaxExecutionTime)
	defer cancel()

	created, err := e.sessions.Create(ctx, &session.CreateRequest{
		AppName: appName,
		UserID:  e.clientID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer e.deleteSession(context.WithoutCancel(ctx), created.Session.ID())

	var (
		steps  int
		answer string
	)
	msg := genai.NewContentFromText(input, genai.RoleUser)
	for event, err := range e.runner.Run(ctx, e.clientID, created.Session.ID(), msg, agent.RunConfig{}) {
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", fmt.Errorf("agent timed out: %w", ctxErr)
			}
			return "", fmt.Errorf("agent run failed: %w", err)
		}
		if event == nil || event.Content == nil || event.Partial || event.Author == "user" {
			continue
		}

		var text strings.Builder
		calls := 0
		for _, part := range event.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				calls++
			case part.FunctionResponse != nil, part.Thought:
			default:
				text.WriteString(part.Text)
			}
		}
		steps += calls
		if steps > e.limits.MaxIterations {
			return "", fmt.Errorf("%w (%d)", ErrIterationLimit, e.limits.MaxIterations)
		}
		if calls == 0 && text.Len() > 0 {
			answer = text.String()
		}
	}

	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("agent timed out: %w", err)
		}
		return "", err
	}
	return answer, nil
}

func (e *adkEngine) deleteSession(ctx context.Context, id string) {
	_ = e.sessions.Delete(ctx, &session.DeleteRequest{
		AppName:   appName,
		UserID:    e.clientID,
		SessionID: id,
	})
}
