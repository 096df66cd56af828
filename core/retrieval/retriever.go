// Package retrieval runs semantic search over embedded spans. The hybrid
// path narrows the candidate set to spans touching the structural scope
// before any scoring happens.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/siherrmann/veritas/helper"
	"github.com/siherrmann/veritas/llm"
	"github.com/siherrmann/veritas/model"
	"github.com/siherrmann/veritas/store"
)

// Config tunes the retrieval behavior.
type Config struct {
	// TopK is the maximum number of spans returned per search.
	TopK int
	// MinSimilarity drops spans scoring below it even when fewer than
	// TopK spans matched.
	MinSimilarity float64
}

// DefaultConfig returns the retrieval parameters used by the engine.
func DefaultConfig() Config {
	return Config{
		TopK:          8,
		MinSimilarity: 0.25,
	}
}

// Request is one semantic search. ScopeEntityIDs, when set, restricts the
// search to spans mentioning at least one of the entities.
type Request struct {
	Question       string
	Filters        *model.Filters
	ScopeEntityIDs []string
}

// Retriever embeds the question and searches the span index.
type Retriever struct {
	vectors  store.VectorStore
	embedder llm.Embedder
	config   Config
	logger   *slog.Logger
}

// NewRetriever creates a retriever over the vector store.
func NewRetriever(vectors store.VectorStore, embedder llm.Embedder, config Config, logger *slog.Logger) *Retriever {
	return &Retriever{vectors: vectors, embedder: embedder, config: config, logger: logger}
}

// Search returns evidence spans ranked by similarity. Scope and filters
// are pushed into the vector store so out-of-scope spans never displace
// in-scope ones.
func (r *Retriever) Search(ctx context.Context, request *Request) ([]model.Evidence, error) {
	if request == nil || strings.TrimSpace(request.Question) == "" {
		return nil, helper.NewError("retrieval request validation", fmt.Errorf("%w: question is empty", helper.ErrValidation))
	}

	embedding, err := r.embedder.Embed(ctx, request.Question)
	if err != nil {
		return nil, helper.NewError("embed question", err)
	}

	filter := &store.SpanFilter{EntityIDs: request.ScopeEntityIDs}
	if request.Filters != nil {
		filter.Collection = request.Filters.Collection
		filter.DateFrom = request.Filters.DateFrom
		filter.DateTo = request.Filters.DateTo
	}

	matches, err := r.vectors.Search(ctx, embedding, r.config.TopK, filter)
	if err != nil {
		return nil, helper.NewError("vector search", err)
	}

	evidence := make([]model.Evidence, 0, len(matches))
	for _, match := range matches {
		if match.Similarity < r.config.MinSimilarity {
			continue
		}
		evidence = append(evidence, model.Evidence{
			SourceID:   match.Span.SourceID,
			Collection: match.Span.Collection,
			Offset:     match.Span.Offset,
			Speaker:    match.Span.Speaker,
			Text:       match.Span.Text,
			Similarity: match.Similarity,
			Origin:     model.OriginVector,
			EntityIDs:  match.Span.EntityIDs,
		})
	}

	r.logger.Debug("Retrieved evidence",
		slog.Int("matches", len(matches)),
		slog.Int("kept", len(evidence)),
		slog.Int("scope_entities", len(request.ScopeEntityIDs)),
	)

	return evidence, nil
}
