// Package memory provides in-process implementations of the store
// interfaces. They back the core tests and small corpora where structural
// queries must complete without any external service.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/siherrmann/veritas/helper"
	"github.com/siherrmann/veritas/model"
	"github.com/siherrmann/veritas/store"
)

// GraphStore is a mutex-guarded in-memory graph.
type GraphStore struct {
	mu       sync.RWMutex
	entities map[string]*model.Entity
	sources  map[string]*model.Source
	edges    map[string]*model.Relationship // keyed by from|type|to
}

// NewGraphStore creates an empty in-memory graph store.
func NewGraphStore() *GraphStore {
	return &GraphStore{
		entities: make(map[string]*model.Entity),
		sources:  make(map[string]*model.Source),
		edges:    make(map[string]*model.Relationship),
	}
}

func edgeKey(rel *model.Relationship) string {
	return rel.FromID + "|" + string(rel.Type) + "|" + rel.ToID
}

// UpsertEntity merges the entity into the graph, additively.
func (g *GraphStore) UpsertEntity(ctx context.Context, entity *model.Entity) error {
	if entity == nil || entity.ID == "" {
		return helper.NewError("upsert entity", fmt.Errorf("%w: entity id is empty", helper.ErrValidation))
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	existing, ok := g.entities[entity.ID]
	if !ok {
		clone := *entity
		clone.Aliases = append([]string{}, entity.Aliases...)
		clone.SentimentHistory = append([]model.SentimentObservation{}, entity.SentimentHistory...)
		g.entities[entity.ID] = &clone
		return nil
	}

	for _, alias := range entity.Aliases {
		existing.AddAlias(alias)
	}
	total := existing.MentionCount + entity.MentionCount
	if total > 0 {
		existing.Confidence = (existing.Confidence*float64(existing.MentionCount) +
			entity.Confidence*float64(entity.MentionCount)) / float64(total)
	}
	existing.MentionCount = total
	if !entity.FirstSeen.IsZero() && (existing.FirstSeen.IsZero() || entity.FirstSeen.Before(existing.FirstSeen)) {
		existing.FirstSeen = entity.FirstSeen
	}
	if entity.LastSeen.After(existing.LastSeen) {
		existing.LastSeen = entity.LastSeen
	}
	existing.SentimentHistory = append(existing.SentimentHistory, entity.SentimentHistory...)
	if existing.Attributes == nil {
		existing.Attributes = model.Metadata{}
	}
	for k, v := range entity.Attributes {
		existing.Attributes[k] = v
	}

	return nil
}

// UpsertSource creates the source if absent and refreshes counters otherwise.
func (g *GraphStore) UpsertSource(ctx context.Context, source *model.Source) error {
	if source == nil || source.ID == "" {
		return helper.NewError("upsert source", fmt.Errorf("%w: source id is empty", helper.ErrValidation))
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.sources[source.ID]; ok {
		if source.EntityCount > existing.EntityCount {
			existing.EntityCount = source.EntityCount
		}
		return nil
	}
	clone := *source
	g.sources[source.ID] = &clone
	return nil
}

// UpsertRelationship merges the edge on (from, type, to). References edges
// accumulate count and contexts.
func (g *GraphStore) UpsertRelationship(ctx context.Context, rel *model.Relationship) error {
	if rel == nil || rel.FromID == "" || rel.ToID == "" || rel.Type == "" {
		return helper.NewError("upsert relationship", fmt.Errorf("%w: incomplete relationship", helper.ErrValidation))
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	key := edgeKey(rel)
	existing, ok := g.edges[key]
	if !ok {
		clone := *rel
		if clone.CreatedAt.IsZero() {
			clone.CreatedAt = time.Now()
		}
		if clone.Properties.Count == 0 {
			clone.Properties.Count = 1
		}
		if clone.Properties.Context != "" && len(clone.Properties.Contexts) == 0 {
			clone.Properties.Contexts = []string{clone.Properties.Context}
		}
		g.edges[key] = &clone
		return nil
	}

	existing.Properties.Count++
	if rel.Properties.Context != "" {
		existing.Properties.Contexts = append(existing.Properties.Contexts, rel.Properties.Context)
	}
	if rel.Properties.Confidence > existing.Properties.Confidence {
		existing.Properties.Confidence = rel.Properties.Confidence
	}
	return nil
}

// FindEntities matches by canonical value or alias, case-insensitive.
func (g *GraphStore) FindEntities(ctx context.Context, name string, entityType model.EntityType, exact bool) ([]*model.Entity, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil, nil
	}

	var matches []*model.Entity
	for _, entity := range g.entities {
		if entityType != "" && entity.Type != entityType {
			continue
		}
		if entityMatches(entity, needle, exact) {
			matches = append(matches, entity)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	return matches, nil
}

func entityMatches(entity *model.Entity, needle string, exact bool) bool {
	candidates := append([]string{entity.CanonicalValue}, entity.Aliases...)
	for _, c := range candidates {
		c = strings.ToLower(c)
		if exact && c == needle {
			return true
		}
		if !exact && strings.Contains(c, needle) {
			return true
		}
	}
	return false
}

// Exists reports whether a matching entity is stored.
func (g *GraphStore) Exists(ctx context.Context, entityType model.EntityType, name string) (bool, error) {
	matches, err := g.FindEntities(ctx, name, entityType, true)
	if err != nil {
		return false, err
	}
	if len(matches) > 0 {
		return true, nil
	}
	matches, err = g.FindEntities(ctx, name, entityType, false)
	return len(matches) > 0, err
}

// Neighbors returns entities one hop from the anchor.
func (g *GraphStore) Neighbors(ctx context.Context, entityID string, relation model.RelationType, direction model.Direction) ([]*model.Entity, error) {
	ids := g.neighborIDs(entityID, relation, direction)

	g.mu.RLock()
	defer g.mu.RUnlock()

	var neighbors []*model.Entity
	for _, id := range ids {
		if entity, ok := g.entities[id]; ok {
			neighbors = append(neighbors, entity)
		}
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].ID < neighbors[j].ID })
	return neighbors, nil
}

func (g *GraphStore) neighborIDs(anchorID string, relation model.RelationType, direction model.Direction) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if direction == "" {
		direction = model.DirectionAny
	}

	seen := make(map[string]bool)
	var ids []string
	for _, edge := range g.edges {
		if relation != "" && edge.Type != relation {
			continue
		}
		var neighbor string
		if edge.FromID == anchorID && direction != model.DirectionIncoming {
			neighbor = edge.ToID
		} else if edge.ToID == anchorID && direction != model.DirectionOutgoing {
			neighbor = edge.FromID
		} else {
			continue
		}
		if !seen[neighbor] {
			seen[neighbor] = true
			ids = append(ids, neighbor)
		}
	}
	sort.Strings(ids)
	return ids
}

// RelationshipsBetween returns every edge connecting the two nodes.
func (g *GraphStore) RelationshipsBetween(ctx context.Context, fromID, toID string) ([]*model.Relationship, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var rels []*model.Relationship
	for _, edge := range g.edges {
		if (edge.FromID == fromID && edge.ToID == toID) || (edge.FromID == toID && edge.ToID == fromID) {
			rels = append(rels, edge)
		}
	}
	return rels, nil
}

// SourcesOf returns the source ids the entity connects to via the relation.
func (g *GraphStore) SourcesOf(ctx context.Context, entityID string, relation model.RelationType) ([]string, error) {
	ids := g.neighborIDs(entityID, relation, model.DirectionOutgoing)

	g.mu.RLock()
	defer g.mu.RUnlock()

	var sourceIDs []string
	for _, id := range ids {
		if _, ok := g.sources[id]; ok {
			sourceIDs = append(sourceIDs, id)
		}
	}
	return sourceIDs, nil
}

// Source fetches one source record.
func (g *GraphStore) Source(ctx context.Context, sourceID string) (*model.Source, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	source, ok := g.sources[sourceID]
	if !ok {
		return nil, helper.NewError("select source", fmt.Errorf("%w: source %v", helper.ErrNotFound, sourceID))
	}
	return source, nil
}

// Query executes a typed structural query against the in-memory graph.
func (g *GraphStore) Query(ctx context.Context, query *model.StructuralQuery) ([]store.Row, error) {
	if query == nil || len(query.AnchorIDs) == 0 {
		return nil, helper.NewError("structural query", fmt.Errorf("%w: query has no anchors", helper.ErrValidation))
	}

	switch query.Shape {
	case model.ShapeNeighbors:
		return g.queryNeighbors(query)
	case model.ShapeIntersection:
		return g.queryIntersection(query)
	case model.ShapeTimeline:
		return g.queryTimeline(query, false)
	case model.ShapeFirstMention:
		return g.queryTimeline(query, true)
	default:
		return nil, helper.NewError("structural query", fmt.Errorf("%w: unknown shape %v", helper.ErrValidation, query.Shape))
	}
}

func (g *GraphStore) queryNeighbors(query *model.StructuralQuery) ([]store.Row, error) {
	ids := g.neighborIDs(query.AnchorIDs[0], query.Relation, query.Direction)
	return g.rowsForIDs(ids, query), nil
}

// queryIntersection materializes both one-hop neighbor sets and intersects
// them. The anchors are never cross-joined.
func (g *GraphStore) queryIntersection(query *model.StructuralQuery) ([]store.Row, error) {
	if len(query.AnchorIDs) < 2 {
		return nil, helper.NewError("structural query", fmt.Errorf("%w: intersection needs two anchors", helper.ErrValidation))
	}

	left := g.neighborIDs(query.AnchorIDs[0], query.Relation, query.Direction)
	right := g.neighborIDs(query.AnchorIDs[1], query.Relation, query.Direction)

	inLeft := make(map[string]bool, len(left))
	for _, id := range left {
		inLeft[id] = true
	}
	var common []string
	for _, id := range right {
		if inLeft[id] {
			common = append(common, id)
		}
	}
	return g.rowsForIDs(common, query), nil
}

func (g *GraphStore) rowsForIDs(ids []string, query *model.StructuralQuery) []store.Row {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var rows []store.Row
	for _, id := range ids {
		if entity, ok := g.entities[id]; ok {
			if query.EntityType != "" && entity.Type != query.EntityType {
				continue
			}
			rows = append(rows, store.Row{
				"entity_id":   entity.ID,
				"entity_name": entity.CanonicalValue,
				"entity_type": string(entity.Type),
			})
			continue
		}
		if source, ok := g.sources[id]; ok {
			if !sourceInScope(source, query) {
				continue
			}
			rows = append(rows, store.Row{
				"source_id":  source.ID,
				"title":      source.Title,
				"collection": source.Collection,
				"date":       source.PublishDate,
			})
		}
	}
	if query.Limit > 0 && len(rows) > query.Limit {
		rows = rows[:query.Limit]
	}
	return rows
}

func sourceInScope(source *model.Source, query *model.StructuralQuery) bool {
	if query.Collection != "" && !strings.EqualFold(source.Collection, query.Collection) {
		return false
	}
	if !query.DateFrom.IsZero() && source.PublishDate.Before(query.DateFrom) {
		return false
	}
	if !query.DateTo.IsZero() && source.PublishDate.After(query.DateTo) {
		return false
	}
	return true
}

// queryTimeline orders the anchor's source observations by publish date
// and offset. With firstOnly it returns just the earliest observation.
func (g *GraphStore) queryTimeline(query *model.StructuralQuery, firstOnly bool) ([]store.Row, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	anchor := query.AnchorIDs[0]
	var rows []store.Row
	for _, edge := range g.edges {
		if edge.FromID != anchor {
			continue
		}
		if query.Relation != "" && edge.Type != query.Relation {
			continue
		}
		source, ok := g.sources[edge.ToID]
		if !ok || !sourceInScope(source, query) {
			continue
		}
		rows = append(rows, store.Row{
			"source_id": source.ID,
			"title":     source.Title,
			"date":      source.PublishDate,
			"offset":    edge.Properties.Offset,
			"sentiment": string(edge.Properties.Sentiment),
			"context":   edge.Properties.Context,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		di, dj := rows[i]["date"].(time.Time), rows[j]["date"].(time.Time)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return rows[i]["offset"].(float64) < rows[j]["offset"].(float64)
	})

	if firstOnly && len(rows) > 1 {
		rows = rows[:1]
	}
	if query.Limit > 0 && len(rows) > query.Limit {
		rows = rows[:query.Limit]
	}
	return rows, nil
}

// Stats counts stored nodes and relationships by type.
func (g *GraphStore) Stats(ctx context.Context) (map[string]int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := map[string]int{
		"sources":       len(g.sources),
		"relationships": len(g.edges),
	}
	for _, entity := range g.entities {
		stats["entities_"+string(entity.Type)]++
		stats["entities"]++
	}
	return stats, nil
}

// VectorStore is a mutex-guarded in-memory span index using cosine
// similarity.
type VectorStore struct {
	mu    sync.RWMutex
	spans map[string]*model.Span
}

// NewVectorStore creates an empty in-memory vector store.
func NewVectorStore() *VectorStore {
	return &VectorStore{spans: make(map[string]*model.Span)}
}

// UpsertSpan stores the span, replacing any span with the same id.
func (v *VectorStore) UpsertSpan(ctx context.Context, span *model.Span) error {
	if span == nil || span.ID == "" || len(span.Embedding) == 0 {
		return helper.NewError("upsert span", fmt.Errorf("%w: span needs id and embedding", helper.ErrValidation))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	clone := *span
	v.spans[span.ID] = &clone
	return nil
}

// Search scores only spans passing the filter, so scope narrowing can
// never be starved by higher-scoring out-of-scope spans.
func (v *VectorStore) Search(ctx context.Context, embedding []float32, topK int, filter *store.SpanFilter) ([]*store.SpanMatch, error) {
	if len(embedding) == 0 {
		return nil, helper.NewError("vector search", fmt.Errorf("%w: empty query embedding", helper.ErrValidation))
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	var matches []*store.SpanMatch
	for _, span := range v.spans {
		if !spanInScope(span, filter) {
			continue
		}
		matches = append(matches, &store.SpanMatch{
			Span:       span,
			Similarity: cosineSimilarity(embedding, span.Embedding),
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func spanInScope(span *model.Span, filter *store.SpanFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Collection != "" && !strings.EqualFold(span.Collection, filter.Collection) {
		return false
	}
	if filter.Speaker != "" && !strings.EqualFold(span.Speaker, filter.Speaker) {
		return false
	}
	if len(filter.SourceIDs) > 0 && !containsString(filter.SourceIDs, span.SourceID) {
		return false
	}
	if len(filter.EntityIDs) > 0 && !intersects(filter.EntityIDs, span.EntityIDs) {
		return false
	}
	if !filter.DateFrom.IsZero() && span.PublishDate.Before(filter.DateFrom) {
		return false
	}
	if !filter.DateTo.IsZero() && span.PublishDate.After(filter.DateTo) {
		return false
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, x := range a {
		if containsString(b, x) {
			return true
		}
	}
	return false
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
