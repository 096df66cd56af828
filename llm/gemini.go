package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/siherrmann/veritas/helper"
	"github.com/siherrmann/veritas/model"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// GeminiConfiguration holds the generative service parameters.
type GeminiConfiguration struct {
	APIKey            string
	GenerationModel   string
	EmbeddingModel    string
	Dimensions        int
	RequestsPerMinute int
}

// DefaultGeminiConfiguration returns the configuration used when only an
// API key is provided.
func DefaultGeminiConfiguration(apiKey string) *GeminiConfiguration {
	return &GeminiConfiguration{
		APIKey:            apiKey,
		GenerationModel:   "gemini-2.0-flash",
		EmbeddingModel:    "text-embedding-004",
		Dimensions:        768,
		RequestsPerMinute: 60,
	}
}

// GeminiService implements Service on the Gemini API. Every call is rate
// limited and retried on transient failure.
type GeminiService struct {
	client  *genai.Client
	config  *GeminiConfiguration
	limiter *rate.Limiter
	retry   helper.RetryPolicy
	logger  *slog.Logger
}

// NewGeminiService creates a Gemini-backed service.
func NewGeminiService(ctx context.Context, config *GeminiConfiguration, logger *slog.Logger) (*GeminiService, error) {
	if config == nil || config.APIKey == "" {
		return nil, helper.NewError("gemini configuration validation", fmt.Errorf("%w: api key is empty", helper.ErrValidation))
	}
	if config.GenerationModel == "" || config.EmbeddingModel == "" {
		return nil, helper.NewError("gemini configuration validation", fmt.Errorf("%w: model names are empty", helper.ErrValidation))
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, helper.NewError("create genai client", err)
	}

	perMinute := config.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 60
	}

	logger.Info("Initialized GeminiService",
		slog.String("generation_model", config.GenerationModel),
		slog.String("embedding_model", config.EmbeddingModel),
	)

	return &GeminiService{
		client:  client,
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		retry:   helper.DefaultRetryPolicy(),
		logger:  logger,
	}, nil
}

// Generate produces text for the prompt.
func (s *GeminiService) Generate(ctx context.Context, prompt string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", helper.NewError("rate limit wait", err)
	}

	var text string
	err := s.retry.Do(ctx, func() error {
		resp, err := s.client.Models.GenerateContent(ctx, s.config.GenerationModel, genai.Text(prompt), nil)
		if err != nil {
			return err
		}
		text = resp.Text()
		return nil
	})
	if err != nil {
		return "", helper.NewError("generate content", err)
	}

	return text, nil
}

// generateJSON asks for a JSON-only response and strips markdown fences
// some models still wrap around it.
func (s *GeminiService) generateJSON(ctx context.Context, prompt string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", helper.NewError("rate limit wait", err)
	}

	var text string
	err := s.retry.Do(ctx, func() error {
		resp, err := s.client.Models.GenerateContent(ctx, s.config.GenerationModel, genai.Text(prompt), &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
		})
		if err != nil {
			return err
		}
		text = resp.Text()
		return nil
	})
	if err != nil {
		return "", helper.NewError("generate json content", err)
	}

	return StripJSONFences(text), nil
}

// StripJSONFences removes a surrounding markdown code fence if present.
func StripJSONFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	return strings.TrimSpace(text)
}

// Embed generates an embedding for the text.
func (s *GeminiService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, helper.NewError("rate limit wait", err)
	}

	var embedding []float32
	err := s.retry.Do(ctx, func() error {
		resp, err := s.client.Models.EmbedContent(ctx, s.config.EmbeddingModel, genai.Text(text), nil)
		if err != nil {
			return err
		}
		if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
			return fmt.Errorf("no embedding returned")
		}
		embedding = resp.Embeddings[0].Values
		return nil
	})
	if err != nil {
		return nil, helper.NewError("embed content", err)
	}

	return embedding, nil
}

// Dimensions returns the configured embedding size.
func (s *GeminiService) Dimensions() int {
	return s.config.Dimensions
}

// rawMention mirrors the JSON schema the extraction prompt requests.
type rawMention struct {
	Type           string  `json:"type"`
	Value          string  `json:"value"`
	Context        string  `json:"context"`
	Sentiment      string  `json:"sentiment"`
	Confidence     float64 `json:"confidence"`
	SponsorContent bool    `json:"sponsor_content"`
}

const extractionPromptTemplate = `Extract every entity mentioned in the following transcript segment.
Entity types: person, organization, creative_work, product, place, topic, quote.
For each entity report how the speaker talks about it (positive, negative, neutral),
a confidence between 0 and 1, the immediate surrounding context, and whether the
mention is part of sponsored or advertising content.

Respond with a JSON array only, one object per mention:
[{"type": "...", "value": "...", "context": "...", "sentiment": "...", "confidence": 0.0, "sponsor_content": false}]

Transcript segment%s:
%s`

// ExtractMentions extracts entity mentions from the input span.
func (s *GeminiService) ExtractMentions(ctx context.Context, input *ExtractionInput) ([]*model.Mention, error) {
	if input == nil || strings.TrimSpace(input.Text) == "" {
		return nil, helper.NewError("extraction input validation", fmt.Errorf("%w: input text is empty", helper.ErrValidation))
	}

	speaker := ""
	if input.Speaker != "" {
		speaker = fmt.Sprintf(" (speaker: %v)", input.Speaker)
	}
	prompt := fmt.Sprintf(extractionPromptTemplate, speaker, input.Text)

	response, err := s.generateJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var raw []rawMention
	if err := json.Unmarshal([]byte(response), &raw); err != nil {
		return nil, helper.NewError("unmarshal extraction response", fmt.Errorf("%v (permanent): %w", err, helper.ErrValidation))
	}

	mentions := make([]*model.Mention, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r.Value) == "" {
			continue
		}
		mentions = append(mentions, &model.Mention{
			EntityType:     model.ParseEntityType(r.Type),
			RawValue:       strings.TrimSpace(r.Value),
			SourceID:       input.SourceID,
			SpanID:         input.SpanID,
			Offset:         input.Offset,
			Context:        r.Context,
			Speaker:        input.Speaker,
			Sentiment:      parseSentiment(r.Sentiment),
			Confidence:     r.Confidence,
			SponsorContent: r.SponsorContent,
		})
	}

	s.logger.Debug("Extracted mentions",
		slog.String("source_id", input.SourceID),
		slog.Int("count", len(mentions)),
	)

	return mentions, nil
}

func parseSentiment(raw string) model.Sentiment {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "positive":
		return model.SentimentPositive
	case "negative":
		return model.SentimentNegative
	default:
		return model.SentimentNeutral
	}
}
