// Package ingest turns raw source material into graph and vector store
// writes. Units are processed concurrently under a bounded worker pool;
// a failing unit lands in the failure manifest and never aborts the
// batch. All writes are idempotent merges, so re-ingesting a unit only
// accumulates counters.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/veritas/core/resolver"
	"github.com/siherrmann/veritas/helper"
	"github.com/siherrmann/veritas/llm"
	"github.com/siherrmann/veritas/model"
	"github.com/siherrmann/veritas/store"
	"golang.org/x/sync/semaphore"
)

// Config tunes the ingestion pipeline.
type Config struct {
	// Workers bounds the number of units processed concurrently.
	Workers int
	// SpanMaxSentences caps the sentences grouped into one span when a
	// unit arrives as a raw transcript.
	SpanMaxSentences int
	// CacheSize is the memory tier capacity of the extraction cache.
	CacheSize int
	// CacheDir enables the disk tier of the extraction cache when set.
	CacheDir string
}

// DefaultConfig returns the ingestion parameters used by the engine.
func DefaultConfig() Config {
	return Config{
		Workers:          4,
		SpanMaxSentences: 5,
		CacheSize:        512,
	}
}

// Unit is one source to ingest. Spans are used as given when present,
// otherwise the transcript is segmented into spans.
type Unit struct {
	Source     *model.Source
	Spans      []*model.Span
	Transcript string
}

// Pipeline runs extraction, resolution and storage for batches of units.
type Pipeline struct {
	graph    store.GraphStore
	vectors  store.VectorStore
	service  llm.Service
	resolver *resolver.Resolver
	cache    *ExtractionCache
	retry    helper.RetryPolicy
	config   Config
	logger   *slog.Logger
}

// NewPipeline creates an ingestion pipeline over the given stores.
func NewPipeline(graph store.GraphStore, vectors store.VectorStore, service llm.Service, res *resolver.Resolver, config Config, logger *slog.Logger) *Pipeline {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.SpanMaxSentences < 1 {
		config.SpanMaxSentences = DefaultConfig().SpanMaxSentences
	}
	return &Pipeline{
		graph:    graph,
		vectors:  vectors,
		service:  service,
		resolver: res,
		cache:    NewExtractionCache(config.CacheSize, config.CacheDir),
		retry:    helper.DefaultRetryPolicy(),
		config:   config,
		logger:   logger,
	}
}

type unitResult struct {
	accepted        int
	skippedMentions int
	spansIndexed    int
	failures        []model.UnitFailure
}

// Run ingests the units and returns the batch report. Only an empty batch
// is an error; per-unit failures are reported, not returned.
func (p *Pipeline) Run(ctx context.Context, units []*Unit) (*model.IngestReport, error) {
	if len(units) == 0 {
		return nil, helper.NewError("ingest batch validation", fmt.Errorf("%w: batch is empty", helper.ErrValidation))
	}

	start := time.Now()
	report := &model.IngestReport{}

	sem := semaphore.NewWeighted(int64(p.config.Workers))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, unit := range units {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, helper.NewError("acquire ingest worker", err)
		}
		wg.Add(1)
		go func(unit *Unit) {
			defer wg.Done()
			defer sem.Release(1)

			result := p.processUnit(ctx, unit)

			mu.Lock()
			report.Accepted += result.accepted
			report.SkippedMentions += result.skippedMentions
			report.SpansIndexed += result.spansIndexed
			report.Failures = append(report.Failures, result.failures...)
			mu.Unlock()
		}(unit)
	}
	wg.Wait()

	report.Duration = time.Since(start)
	p.logger.Info("Ingested batch",
		slog.Int("units", len(units)),
		slog.Int("entities", report.Accepted),
		slog.Int("spans", report.SpansIndexed),
		slog.Int("failures", len(report.Failures)),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

func (p *Pipeline) processUnit(ctx context.Context, unit *Unit) *unitResult {
	result := &unitResult{}

	if unit == nil || unit.Source == nil || unit.Source.ID == "" {
		result.failures = append(result.failures, model.UnitFailure{Reason: "unit has no source id"})
		return result
	}
	source := unit.Source

	spans := unit.Spans
	if len(spans) == 0 {
		spans = segmentTranscript(source, unit.Transcript, p.config.SpanMaxSentences)
	}
	if len(spans) == 0 {
		result.failures = append(result.failures, model.UnitFailure{SourceID: source.ID, Reason: "unit has no spans or transcript"})
		return result
	}

	if err := p.graph.UpsertSource(ctx, source); err != nil {
		result.failures = append(result.failures, model.UnitFailure{SourceID: source.ID, Reason: "upsert source: " + err.Error()})
		return result
	}

	mentions, participantRoles := p.participantMentions(source)
	for _, span := range spans {
		key := p.cache.Key(source.ID, span.Text)
		extracted, ok := p.cache.Get(key)
		if ok {
			extracted = restampMentions(extracted, source, span)
		} else {
			var err error
			extracted, err = p.extractSpan(ctx, source, span)
			if err != nil {
				result.failures = append(result.failures, model.UnitFailure{
					SourceID: source.ID,
					SpanID:   span.ID,
					Reason:   "extract mentions: " + err.Error(),
				})
				continue
			}
			p.cache.Put(key, extracted)
		}
		mentions = append(mentions, extracted...)
	}

	var resolution *resolver.Resolution
	if len(mentions) > 0 {
		var err error
		resolution, err = p.resolver.Resolve(mentions)
		if err != nil {
			result.failures = append(result.failures, model.UnitFailure{SourceID: source.ID, Reason: "resolve mentions: " + err.Error()})
			return result
		}
		result.skippedMentions = resolution.SkippedMentions

		for _, entity := range resolution.Entities {
			if err := p.graph.UpsertEntity(ctx, entity); err != nil {
				result.failures = append(result.failures, model.UnitFailure{SourceID: source.ID, Reason: "upsert entity " + entity.ID + ": " + err.Error()})
				continue
			}
			result.accepted++
		}

		p.upsertEdges(ctx, source, resolution, participantRoles, result)
	}

	result.spansIndexed += p.indexSpans(ctx, source, spans, resolution, result)

	source.EntityCount = result.accepted
	if err := p.graph.UpsertSource(ctx, source); err != nil {
		result.failures = append(result.failures, model.UnitFailure{SourceID: source.ID, Reason: "update source counters: " + err.Error()})
	}

	return result
}

// participantMentions seeds the mention pool with the source's hosts and
// guests so transcript mentions of the same people dedupe into them.
func (p *Pipeline) participantMentions(source *model.Source) ([]*model.Mention, map[string]string) {
	var mentions []*model.Mention
	roles := map[string]string{}
	for _, participant := range source.Participants {
		if strings.TrimSpace(participant.Name) == "" {
			continue
		}
		mentions = append(mentions, &model.Mention{
			EntityType: model.EntityTypePerson,
			RawValue:   participant.Name,
			SourceID:   source.ID,
			Confidence: 1.0,
		})
		roles[resolver.Normalize(participant.Name)] = string(participant.Role)
	}
	return mentions, roles
}

func (p *Pipeline) extractSpan(ctx context.Context, source *model.Source, span *model.Span) ([]*model.Mention, error) {
	input := &llm.ExtractionInput{
		SourceID: source.ID,
		SpanID:   span.ID,
		Text:     span.Text,
		Speaker:  span.Speaker,
		Offset:   span.Offset,
	}

	var mentions []*model.Mention
	err := p.retry.Do(ctx, func() error {
		var extractErr error
		mentions, extractErr = p.service.ExtractMentions(ctx, input)
		return extractErr
	})
	if err != nil {
		return nil, err
	}
	if span.Sponsor {
		for _, mention := range mentions {
			mention.SponsorContent = true
		}
	}
	return mentions, nil
}

// restampMentions copies cached mentions onto the span being processed.
// Cache entries keep the provenance of the extraction that produced them;
// the copies carry the current span's ids and offset so span indexing and
// corroboration attribute them to this span, not the original one.
func restampMentions(cached []*model.Mention, source *model.Source, span *model.Span) []*model.Mention {
	mentions := make([]*model.Mention, 0, len(cached))
	for _, cachedMention := range cached {
		mention := *cachedMention
		mention.SourceID = source.ID
		mention.SpanID = span.ID
		mention.Offset = span.Offset
		if span.Sponsor {
			mention.SponsorContent = true
		}
		mentions = append(mentions, &mention)
	}
	return mentions
}

// upsertEdges derives the graph edges from the resolved entities. Edge
// upserts accumulate count and contexts, so one upsert per observation.
func (p *Pipeline) upsertEdges(ctx context.Context, source *model.Source, resolution *resolver.Resolution, participantRoles map[string]string, result *unitResult) {
	entityByID := make(map[string]*model.Entity, len(resolution.Entities))
	for _, entity := range resolution.Entities {
		entityByID[entity.ID] = entity
	}
	speakerID := func(speaker string) string {
		if speaker == "" {
			return ""
		}
		id := model.NewEntityID(model.EntityTypePerson, resolver.Normalize(speaker))
		if _, ok := entityByID[id]; ok {
			return id
		}
		return ""
	}

	seenParticipant := map[string]bool{}
	for mention, entityID := range resolution.MentionEntity {
		entity := entityByID[entityID]
		if entity == nil {
			continue
		}

		var edge *model.Relationship
		switch entity.Type {
		case model.EntityTypePerson:
			role, isParticipant := participantRoles[resolver.Normalize(entity.CanonicalValue)]
			if isParticipant {
				if seenParticipant[entityID] {
					// Appearance is a fact per source, not per mention.
					continue
				}
				seenParticipant[entityID] = true
				edge = &model.Relationship{
					FromID: entityID,
					ToID:   source.ID,
					Type:   model.RelationAppearedIn,
					Properties: model.RelationshipProperties{
						Role:       role,
						Confidence: entity.Confidence,
					},
				}
				break
			}
			edge = &model.Relationship{
				FromID: entityID,
				ToID:   source.ID,
				Type:   model.RelationDiscussedIn,
				Properties: p.edgeProperties(mention),
			}
			// A speaker naming another person is a cross-reference.
			if from := speakerID(mention.Speaker); from != "" && from != entityID {
				p.upsertEdge(ctx, &model.Relationship{
					FromID:     from,
					ToID:       entityID,
					Type:       model.RelationReferences,
					Properties: p.edgeProperties(mention),
				}, source.ID, result)
			}
		case model.EntityTypeQuote:
			edge = &model.Relationship{
				FromID:     entityID,
				ToID:       source.ID,
				Type:       model.RelationQuotedIn,
				Properties: p.edgeProperties(mention),
			}
		default:
			edge = &model.Relationship{
				FromID:     entityID,
				ToID:       source.ID,
				Type:       model.RelationDiscussedIn,
				Properties: p.edgeProperties(mention),
			}
			// A positive on-air mention of a work or product by a known
			// speaker counts as a recommendation.
			recommendable := entity.Type == model.EntityTypeCreativeWork || entity.Type == model.EntityTypeProduct
			if recommendable && mention.Sentiment == model.SentimentPositive {
				if by := speakerID(mention.Speaker); by != "" {
					p.upsertEdge(ctx, &model.Relationship{
						FromID:     entityID,
						ToID:       by,
						Type:       model.RelationRecommendedBy,
						Properties: p.edgeProperties(mention),
					}, source.ID, result)
				}
			}
		}

		if edge != nil {
			p.upsertEdge(ctx, edge, source.ID, result)
		}
	}

	// Participants can appear without being mentioned in any span.
	for _, entity := range resolution.Entities {
		if entity.Type != model.EntityTypePerson || seenParticipant[entity.ID] {
			continue
		}
		role, ok := participantRoles[resolver.Normalize(entity.CanonicalValue)]
		if !ok {
			continue
		}
		seenParticipant[entity.ID] = true
		p.upsertEdge(ctx, &model.Relationship{
			FromID: entity.ID,
			ToID:   source.ID,
			Type:   model.RelationAppearedIn,
			Properties: model.RelationshipProperties{
				Role:       role,
				Confidence: entity.Confidence,
			},
		}, source.ID, result)
	}
}

func (p *Pipeline) edgeProperties(mention *model.Mention) model.RelationshipProperties {
	return model.RelationshipProperties{
		Offset:     mention.Offset,
		Context:    mention.Context,
		Speaker:    mention.Speaker,
		Sentiment:  mention.Sentiment,
		Confidence: mention.Confidence,
	}
}

func (p *Pipeline) upsertEdge(ctx context.Context, edge *model.Relationship, sourceID string, result *unitResult) {
	if err := p.graph.UpsertRelationship(ctx, edge); err != nil {
		result.failures = append(result.failures, model.UnitFailure{
			SourceID: sourceID,
			Reason:   fmt.Sprintf("upsert %v edge %v: %v", edge.Type, edge.FromID, err),
		})
	}
}

// indexSpans embeds the spans and writes them to the vector store, tagged
// with the canonical entities their mentions resolved into.
func (p *Pipeline) indexSpans(ctx context.Context, source *model.Source, spans []*model.Span, resolution *resolver.Resolution, result *unitResult) int {
	spanEntities := map[string][]string{}
	if resolution != nil {
		seen := map[string]map[string]bool{}
		for mention, entityID := range resolution.MentionEntity {
			if mention.SpanID == "" {
				continue
			}
			if seen[mention.SpanID] == nil {
				seen[mention.SpanID] = map[string]bool{}
			}
			if !seen[mention.SpanID][entityID] {
				seen[mention.SpanID][entityID] = true
				spanEntities[mention.SpanID] = append(spanEntities[mention.SpanID], entityID)
			}
		}
	}

	indexed := 0
	for _, span := range spans {
		span.SourceID = source.ID
		if span.Collection == "" {
			span.Collection = source.Collection
		}
		if span.PublishDate.IsZero() {
			span.PublishDate = source.PublishDate
		}
		if ids := spanEntities[span.ID]; len(ids) > 0 {
			span.EntityIDs = ids
		}

		if len(span.Embedding) == 0 {
			err := p.retry.Do(ctx, func() error {
				embedding, embedErr := p.service.Embed(ctx, span.Text)
				if embedErr != nil {
					return embedErr
				}
				span.Embedding = embedding
				return nil
			})
			if err != nil {
				result.failures = append(result.failures, model.UnitFailure{SourceID: source.ID, SpanID: span.ID, Reason: "embed span: " + err.Error()})
				continue
			}
		}

		if err := p.vectors.UpsertSpan(ctx, span); err != nil {
			result.failures = append(result.failures, model.UnitFailure{SourceID: source.ID, SpanID: span.ID, Reason: "upsert span: " + err.Error()})
			continue
		}
		indexed++
	}
	return indexed
}

// segmentTranscript splits a raw transcript into spans of up to
// maxSentences sentences each.
func segmentTranscript(source *model.Source, transcript string, maxSentences int) []*model.Span {
	if strings.TrimSpace(transcript) == "" {
		return nil
	}

	text := strings.ReplaceAll(transcript, "! ", "!|")
	text = strings.ReplaceAll(text, "? ", "?|")
	text = strings.ReplaceAll(text, ". ", ".|")

	var sentences []string
	for _, sentence := range strings.Split(text, "|") {
		if sentence = strings.TrimSpace(sentence); sentence != "" {
			sentences = append(sentences, sentence)
		}
	}

	var spans []*model.Span
	for start := 0; start < len(sentences); start += maxSentences {
		end := start + maxSentences
		if end > len(sentences) {
			end = len(sentences)
		}
		spans = append(spans, &model.Span{
			ID:          uuid.NewString(),
			SourceID:    source.ID,
			Collection:  source.Collection,
			Text:        strings.Join(sentences[start:end], " "),
			PublishDate: source.PublishDate,
		})
	}
	return spans
}
