package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/easeaico/marketing-analyst/internal/tools"
)

const defaultMaxTokens = 4096

type messagesAPI interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicBuilder builds engines on the Claude Messages API with a manual
// tool-use loop.
type AnthropicBuilder struct {
	msgs        messagesAPI
	model       string
	temperature float64
	limits      Limits
	tools       []anthropic.ToolUnionParam
}

// NewAnthropicBuilder returns a builder using apiKey and model.
func NewAnthropicBuilder(apiKey, model string, temperature float64, limits Limits) (*AnthropicBuilder, error) {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return newAnthropicBuilder(&client.Messages, model, temperature, limits)
}

func newAnthropicBuilder(msgs messagesAPI, model string, temperature float64, limits Limits) (*AnthropicBuilder, error) {
	apiTools, err := convertTools(tools.Definitions())
	if err != nil {
		return nil, err
	}
	return &AnthropicBuilder{
		msgs:        msgs,
		model:       model,
		temperature: temperature,
		limits:      limits.withDefaults(),
		tools:       apiTools,
	}, nil
}

// Build binds an engine to the frame and recaller of spec. No request is made.
func (b *AnthropicBuilder) Build(ctx context.Context, spec Spec) (Engine, error) {
	return &anthropicEngine{
		builder: b,
		system:  SystemPrompt(spec),
		handler: tools.NewHandler(spec.Frame, spec.Recaller),
	}, nil
}

type anthropicEngine struct {
	builder *AnthropicBuilder
	system  string
	handler *tools.Handler
}

// Invoke sends input and executes tool calls until the model answers
// without calling a tool. Each request counts as one iteration.
func (e *anthropicEngine) Invoke(ctx context.Context, input string) (string, error) {
	b := e.builder
	ctx, cancel := context.WithTimeout(ctx, b.limits.MaxExecutionTime)
	defer cancel()

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(input)),
	}

	for turn := 0; turn < b.limits.MaxIterations; turn++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("timed out: %w", err)
		}

		resp, err := b.msgs.New(ctx, anthropic.MessageNewParams{
			Model:       anthropic.Model(b.model),
			MaxTokens:   defaultMaxTokens,
			System:      []anthropic.TextBlockParam{{Text: e.system}},
			Messages:    messages,
			Tools:       b.tools,
			Temperature: anthropic.Float(b.temperature),
		})
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", fmt.Errorf("timed out: %w", ctx.Err())
			}
			return "", fmt.Errorf("claude API error: %w", err)
		}

		var (
			text      strings.Builder
			assistant []anthropic.ContentBlockParamUnion
			results   []anthropic.ContentBlockParamUnion
		)
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				text.WriteString(block.Text)
				assistant = append(assistant, anthropic.NewTextBlock(block.Text))
			case "tool_use":
				assistant = append(assistant, anthropic.NewToolUseBlock(block.ID, block.Input, block.Name))
				out, err := e.handler.HandleToolCall(ctx, block.Name, block.Input)
				if err != nil {
					results = append(results, anthropic.NewToolResultBlock(block.ID, err.Error(), true))
					continue
				}
				results = append(results, anthropic.NewToolResultBlock(block.ID, out, false))
			}
		}

		if len(results) == 0 {
			return text.String(), nil
		}
		messages = append(messages,
			anthropic.NewAssistantMessage(assistant...),
			anthropic.NewUserMessage(results...),
		)
	}

	return "", fmt.Errorf("%w (%d)", ErrIterationLimit, b.limits.MaxIterations)
}

func convertTools(defs []tools.Definition) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema, err := encodeSchema(def.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tool %s schema: %w", def.Name, err)
		}
		tool := anthropic.ToolParam{
			Name:        def.Name,
			Description: anthropic.String(def.Description),
			InputSchema: schema,
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out, nil
}

func encodeSchema(raw map[string]any) (anthropic.ToolInputSchemaParam, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return anthropic.ToolInputSchemaParam{}, err
	}
	var schema anthropic.ToolInputSchemaParam
	if err := json.Unmarshal(data, &schema); err != nil {
		return anthropic.ToolInputSchemaParam{}, err
	}
	return schema, nil
}
