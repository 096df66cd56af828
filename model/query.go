package model

import "time"

// Intent is the routing decision for a question.
type Intent string

const (
	IntentStructural   Intent = "structural"
	IntentSemantic     Intent = "semantic"
	IntentHybrid       Intent = "hybrid"
	IntentVerification Intent = "verification"
)

// Direction of a traversal relative to the anchor entity.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
	DirectionAny      Direction = "any"
)

// QueryShape names the structural query templates the planner emits.
type QueryShape string

const (
	// ShapeNeighbors lists entities of a type related to one anchor
	// entity via a relationship.
	ShapeNeighbors QueryShape = "neighbors"
	// ShapeIntersection lists entities related to both anchors,
	// materialized as two one-hop sets and intersected.
	ShapeIntersection QueryShape = "intersection"
	// ShapeTimeline orders relationship observations for an anchor by
	// source publish date (sentiment timelines, concept traces).
	ShapeTimeline QueryShape = "timeline"
	// ShapeFirstMention finds the earliest observation of an anchor.
	ShapeFirstMention QueryShape = "first_mention"
)

// StructuralQuery is a typed, store-agnostic traversal request. The
// planner never emits a store-specific query string.
type StructuralQuery struct {
	Shape      QueryShape   `json:"shape"`
	AnchorIDs  []string     `json:"anchor_ids"`            // 1 for neighbors/timeline, 2 for intersection
	EntityType EntityType   `json:"entity_type,omitempty"` // filter on result entities
	Relation   RelationType `json:"relation,omitempty"`
	Direction  Direction    `json:"direction,omitempty"`
	Collection string       `json:"collection,omitempty"`
	DateFrom   time.Time    `json:"date_from,omitempty"`
	DateTo     time.Time    `json:"date_to,omitempty"`
	Limit      int          `json:"limit,omitempty"`
}

// Filters narrows a question to a date range or collection. Optional on Ask.
type Filters struct {
	Collection string    `json:"collection,omitempty"`
	DateFrom   time.Time `json:"date_from,omitempty"`
	DateTo     time.Time `json:"date_to,omitempty"`
}
