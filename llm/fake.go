package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"github.com/siherrmann/veritas/model"
)

// Fake is a deterministic in-process Service for tests. Mentions are
// scripted per span, embeddings are derived from token hashes so related
// texts score higher than unrelated ones, and Generate answers from a
// substring-keyed script.
type Fake struct {
	mu sync.Mutex

	// Mentions maps a span id (or source id when no span id is set) to
	// the mentions extraction should return for it.
	Mentions map[string][]*model.Mention
	// Responses maps a prompt substring to the generated response. The
	// first matching entry wins.
	Responses map[string]string
	// ExtractErr, when set, fails every extraction call.
	ExtractErr error

	GenerateCalls []string
	ExtractCalls  int
}

// NewFake creates an empty fake service.
func NewFake() *Fake {
	return &Fake{
		Mentions:  map[string][]*model.Mention{},
		Responses: map[string]string{},
	}
}

const fakeDimensions = 64

// Embed hashes the lowercased tokens of the text into a fixed-dimension
// vector. Texts sharing tokens share vector mass, which is enough for
// ranking tests.
func (f *Fake) Embed(ctx context.Context, text string) ([]float32, error) {
	embedding := make([]float32, fakeDimensions)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,!?\"'")
		if token == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(token))
		embedding[h.Sum32()%fakeDimensions] += 1
	}

	var norm float64
	for _, v := range embedding {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range embedding {
			embedding[i] *= scale
		}
	}
	return embedding, nil
}

// Dimensions returns the fake embedding size.
func (f *Fake) Dimensions() int {
	return fakeDimensions
}

// ExtractMentions returns the scripted mentions for the span.
func (f *Fake) ExtractMentions(ctx context.Context, input *ExtractionInput) ([]*model.Mention, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ExtractCalls++
	if f.ExtractErr != nil {
		return nil, f.ExtractErr
	}

	key := input.SpanID
	if key == "" {
		key = input.SourceID
	}
	return f.Mentions[key], nil
}

// Generate returns the scripted response whose key is contained in the
// prompt.
func (f *Fake) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.GenerateCalls = append(f.GenerateCalls, prompt)
	for key, response := range f.Responses {
		if strings.Contains(prompt, key) {
			return response, nil
		}
	}
	return "", fmt.Errorf("no scripted response for prompt")
}
