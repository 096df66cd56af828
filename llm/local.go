package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/siherrmann/veritas/helper"
	"github.com/siherrmann/veritas/model"
)

// LocalEmbedder embeds text with a local sentence transformer. It avoids
// API calls entirely; the all-MiniLM-L6-v2 model produces 384-dimensional
// embeddings.
type LocalEmbedder struct {
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
}

// NewLocalEmbedder downloads the embedding model if needed and initializes
// the inference session.
func NewLocalEmbedder() (*LocalEmbedder, error) {
	modelName := "sentence-transformers/all-MiniLM-L6-v2"
	modelPath, err := helper.PrepareModel(modelName, "onnx/model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	return &LocalEmbedder{session: session, pipeline: sentencePipeline}, nil
}

// Embed generates an embedding for the text.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := e.pipeline.RunPipeline([]string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embedding generated")
	}
	return result.Embeddings[0], nil
}

// Dimensions returns the embedding size of all-MiniLM-L6-v2.
func (e *LocalEmbedder) Dimensions() int {
	return 384
}

// Close destroys the inference session.
func (e *LocalEmbedder) Close() error {
	return e.session.Destroy()
}

// LocalExtractor extracts entity mentions with a local NER model. It only
// detects coarse types (person, organization, place), so it serves as the
// fallback when no generative service is configured.
type LocalExtractor struct {
	session  *hugot.Session
	pipeline *pipelines.TokenClassificationPipeline
}

// NewLocalExtractor downloads the NER model if needed and initializes the
// inference session.
func NewLocalExtractor() (*LocalExtractor, error) {
	modelName := "KnightsAnalytics/distilbert-NER"
	modelPath, err := helper.PrepareModel(modelName, "model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "ner-pipeline",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}),
		},
	}
	nerPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create NER pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create NER pipeline: %w", err)
	}

	return &LocalExtractor{session: session, pipeline: nerPipeline}, nil
}

// ExtractMentions runs NER over the input text. NER yields no sentiment or
// sponsor signal; those fields stay at their zero values.
func (e *LocalExtractor) ExtractMentions(ctx context.Context, input *ExtractionInput) ([]*model.Mention, error) {
	if input == nil || strings.TrimSpace(input.Text) == "" {
		return nil, helper.NewError("extraction input validation", fmt.Errorf("%w: input text is empty", helper.ErrValidation))
	}

	result, err := e.pipeline.RunPipeline([]string{input.Text})
	if err != nil {
		return nil, fmt.Errorf("failed to run NER: %w", err)
	}
	if len(result.Entities) == 0 {
		return nil, nil
	}

	var mentions []*model.Mention
	for _, entity := range result.Entities[0] {
		value := strings.TrimSpace(entity.Word)
		if value == "" {
			continue
		}
		mentions = append(mentions, &model.Mention{
			EntityType: nerEntityType(entity.Entity),
			RawValue:   value,
			SourceID:   input.SourceID,
			SpanID:     input.SpanID,
			Offset:     input.Offset,
			Speaker:    input.Speaker,
			Sentiment:  model.SentimentNeutral,
			Confidence: float64(entity.Score),
		})
	}

	return mentions, nil
}

// Close destroys the inference session.
func (e *LocalExtractor) Close() error {
	return e.session.Destroy()
}

// nerEntityType maps BIO-tagged NER labels onto entity types.
func nerEntityType(label string) model.EntityType {
	label = strings.TrimPrefix(label, "B-")
	label = strings.TrimPrefix(label, "I-")
	switch strings.ToUpper(label) {
	case "PER", "PERSON":
		return model.EntityTypePerson
	case "ORG", "ORGANIZATION":
		return model.EntityTypeOrganization
	case "LOC", "LOCATION":
		return model.EntityTypePlace
	default:
		return model.EntityTypeOther
	}
}
