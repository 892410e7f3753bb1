// Package embed provides the text embedding capability behind the semantic
// speech cache.
//
// An Embedder converts text into a dense float32 vector whose dimensionality
// is fixed for the life of the embedder. The cache compares these vectors by
// cosine similarity to decide whether two phrases mean the same thing.
//
// # Implementations
//
//   - [OpenAI] — OpenAI embeddings API (text-embedding-3-small by default),
//     also usable with any OpenAI-compatible endpoint via WithBaseURL
//   - [Gemini] — Google Gemini embedding models via the genai SDK
//   - [Cached] — LRU wrapper that short-circuits repeated texts; the
//     pipeline embeds the same text once for lookup and once for store,
//     and the wrapper collapses those into a single API call
//
// # Quick Start
//
//	e := embed.NewOpenAI(apiKey, embed.WithModel("text-embedding-3-small"))
//	vec, err := e.Embed(ctx, "deploy complete")
package embed

import (
	"context"
	"errors"
)

// Embedder converts text into dense float32 vectors.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the dimensionality of the output vectors.
	Dimension() int
}

// ErrEmptyInput is returned when the input text is empty.
var ErrEmptyInput = errors.New("embed: empty input")
