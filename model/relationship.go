package model

import "time"

// RelationType is the type of a directed edge in the knowledge graph.
type RelationType string

const (
	RelationAppearedIn    RelationType = "appeared_in"    // person -> source
	RelationDiscussedIn   RelationType = "discussed_in"   // work/topic/product -> source
	RelationRecommendedBy RelationType = "recommended_by" // work -> person
	RelationReferences    RelationType = "references"     // person -> person
	RelationBelongsTo     RelationType = "belongs_to"     // source -> collection
	RelationQuotedIn      RelationType = "quoted_in"      // person -> source
)

// RelationshipProperties carries the provenance of an edge. Every edge
// traces back to at least one mention, so these fields are never all empty.
type RelationshipProperties struct {
	Offset     float64   `json:"offset,omitempty"`
	Context    string    `json:"context,omitempty"`
	Speaker    string    `json:"speaker,omitempty"`
	Sentiment  Sentiment `json:"sentiment,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Role       string    `json:"role,omitempty"` // host/guest on appeared_in
	// References edges accumulate additively on repeat observation.
	Count    int      `json:"count,omitempty"`
	Contexts []string `json:"contexts,omitempty"`
	Extra    Metadata `json:"extra,omitempty"`
}

// Relationship is a typed, directed, property-bearing edge between two
// entities or between an entity and a source.
type Relationship struct {
	FromID     string                 `json:"from_id"`
	ToID       string                 `json:"to_id"`
	Type       RelationType           `json:"relation_type"`
	Properties RelationshipProperties `json:"properties"`
	CreatedAt  time.Time              `json:"created_at,omitempty"`
}
