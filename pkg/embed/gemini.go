package embed

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini embedding models.
const (
	// ModelGeminiEmbedding is the current Gemini embedding model
	// (3072 dims by default, customizable via output dimensionality).
	ModelGeminiEmbedding = "gemini-embedding-001"
)

const (
	geminiDefaultDim   = 3072
	geminiDefaultModel = ModelGeminiEmbedding
)

// Gemini implements [Embedder] using Google's Gemini embedding API.
type Gemini struct {
	client *genai.Client
	model  string
	dim    int
}

var _ Embedder = (*Gemini)(nil)

// NewGemini creates a Gemini embedder. The apiKey is required.
func NewGemini(ctx context.Context, apiKey string, opts ...Option) (*Gemini, error) {
	cfg := config{
		model: geminiDefaultModel,
		dim:   geminiDefaultDim,
	}
	cfg.apply(opts)

	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.httpClient != nil {
		clientCfg.HTTPClient = cfg.httpClient
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("embed: gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  cfg.model,
		dim:    cfg.dim,
	}, nil
}

func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}

	dim := int32(g.dim)
	resp, err := g.client.Models.EmbedContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}},
		&genai.EmbedContentConfig{OutputDimensionality: &dim},
	)
	if err != nil {
		return nil, fmt.Errorf("embed: gemini: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("embed: gemini: empty response")
	}
	vec := resp.Embeddings[0].Values
	if len(vec) != g.dim {
		return nil, fmt.Errorf("embed: gemini: model returned %d dims, expected %d", len(vec), g.dim)
	}
	return vec, nil
}

// Dimension returns the configured vector dimensionality.
func (g *Gemini) Dimension() int {
	return g.dim
}

// Model returns the model identifier.
func (g *Gemini) Model() string {
	return g.model
}
