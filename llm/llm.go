// Package llm defines the model capabilities the engine consumes and the
// services providing them. Extraction and answer synthesis go through a
// generative service, embeddings can come from the same service or from a
// local sentence transformer.
package llm

import (
	"context"

	"github.com/siherrmann/veritas/model"
)

// ExtractionInput is one span of source material handed to mention
// extraction. Provenance fields are copied onto every returned mention.
type ExtractionInput struct {
	SourceID string
	SpanID   string
	Text     string
	Speaker  string
	Offset   float64
}

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimensions returns the embedding size, fixed per model.
	Dimensions() int
}

// Extractor finds entity mentions in a span of text.
type Extractor interface {
	ExtractMentions(ctx context.Context, input *ExtractionInput) ([]*model.Mention, error)
}

// Generator produces free-form or JSON-constrained text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Service bundles the three capabilities. Implementations may back each
// one differently, e.g. local embeddings with generative extraction.
type Service interface {
	Embedder
	Extractor
	Generator
}
