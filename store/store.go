// Package store defines the storage capabilities the engine consumes. The
// planner and verifier speak these interfaces only; no component emits a
// store-specific query string.
package store

import (
	"context"
	"time"

	"github.com/siherrmann/veritas/model"
)

// Row is one record returned by a structural query. Keys depend on the
// query shape: "entity_id", "entity_name", "entity_type" for entity rows,
// plus "source_id", "date", "offset", "sentiment", "context" for
// timeline rows.
type Row map[string]interface{}

// GraphStore is the structural half of the knowledge base. All upserts are
// idempotent merges on the natural key: create-if-absent, additive update
// otherwise. Concurrent ingestion of overlapping sources converges to the
// same state regardless of interleaving.
type GraphStore interface {
	// UpsertEntity merges a canonical entity: aliases union, mention
	// counts add, first/last seen extend, sentiment history appends.
	UpsertEntity(ctx context.Context, entity *model.Entity) error
	// UpsertSource creates a source once; repeated upserts only refresh
	// denormalized counters.
	UpsertSource(ctx context.Context, source *model.Source) error
	// UpsertRelationship merges an edge on (from, to, type). Additive
	// properties (count, contexts) accumulate on repeat observation.
	UpsertRelationship(ctx context.Context, rel *model.Relationship) error

	// FindEntities matches stored entities by name, case-insensitive.
	// With exact=true only full matches return; otherwise substring
	// matches are included. entityType narrows the search when set.
	FindEntities(ctx context.Context, name string, entityType model.EntityType, exact bool) ([]*model.Entity, error)
	// Exists reports whether any entity of the type matches the name.
	Exists(ctx context.Context, entityType model.EntityType, name string) (bool, error)
	// Neighbors returns the entities one hop from the anchor via the
	// given relation. A zero relation matches every edge type.
	Neighbors(ctx context.Context, entityID string, relation model.RelationType, direction model.Direction) ([]*model.Entity, error)
	// RelationshipsBetween returns all edges connecting two nodes in
	// either direction.
	RelationshipsBetween(ctx context.Context, fromID, toID string) ([]*model.Relationship, error)
	// SourcesOf returns the ids of sources the entity is connected to
	// via the given relation.
	SourcesOf(ctx context.Context, entityID string, relation model.RelationType) ([]string, error)
	// Source fetches one source record.
	Source(ctx context.Context, sourceID string) (*model.Source, error)

	// Query executes a typed structural query.
	Query(ctx context.Context, query *model.StructuralQuery) ([]Row, error)
	// Stats counts nodes and relationships by type.
	Stats(ctx context.Context) (map[string]int, error)
}

// SpanFilter restricts a vector search before similarity scoring. Scope
// filters must be applied at or before scoring, never as post-hoc
// truncation of an unfiltered result set.
type SpanFilter struct {
	Collection string
	SourceIDs  []string
	EntityIDs  []string // hybrid narrowing scope
	Speaker    string
	DateFrom   time.Time
	DateTo     time.Time
}

// SpanMatch is a span with its similarity to the query embedding.
type SpanMatch struct {
	Span       *model.Span
	Similarity float64
}

// VectorStore is the semantic half of the knowledge base.
type VectorStore interface {
	// UpsertSpan stores an embedded span, replacing any span with the
	// same id.
	UpsertSpan(ctx context.Context, span *model.Span) error
	// Search returns up to topK spans ranked by scale-invariant
	// similarity, honoring the filter during scoring.
	Search(ctx context.Context, embedding []float32, topK int, filter *SpanFilter) ([]*SpanMatch, error)
}
