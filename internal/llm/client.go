// Package llm provides the text embedders used by the semantic memory.
package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// Embedder provides text embedding capability.
type Embedder interface {
	// Embed generates an embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimensions returns the length of every vector Embed produces.
	Dimensions() int
}

// GenAIEmbedder embeds text with a Gemini embedding model.
type GenAIEmbedder struct {
	client *genai.Client
	model  string
	dims   int
}

// NewGenAIEmbedder creates an embedder over an existing genai client.
// dims is requested as the output dimensionality of the model.
func NewGenAIEmbedder(client *genai.Client, model string, dims int) *GenAIEmbedder {
	return &GenAIEmbedder{client: client, model: model, dims: dims}
}

// NewGeminiClient creates a genai client for the Gemini API backend.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return client, nil
}

// Embed generates an embedding vector for the given text.
func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	dims := int32(e.dims)
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}

	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, errors.New("no embedding returned")
	}
	values := resp.Embeddings[0].Values
	if len(values) != e.dims {
		return nil, fmt.Errorf("embedding has %d dimensions, expected %d", len(values), e.dims)
	}

	return values, nil
}

// Dimensions returns the configured output dimensionality.
func (e *GenAIEmbedder) Dimensions() int { return e.dims }

var _ Embedder = (*GenAIEmbedder)(nil)
