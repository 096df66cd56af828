package model

import (
	"strings"
	"time"
)

// EntityType classifies what kind of real-world thing an entity is.
// Open-ended categories from extraction are mapped onto this closed set;
// anything that does not fit uses EntityTypeOther with a "subtype"
// attribute carrying the free-form category.
type EntityType string

const (
	EntityTypePerson       EntityType = "person"
	EntityTypeOrganization EntityType = "organization"
	EntityTypeCreativeWork EntityType = "creative_work"
	EntityTypeProduct      EntityType = "product"
	EntityTypePlace        EntityType = "place"
	EntityTypeTopic        EntityType = "topic"
	EntityTypeQuote        EntityType = "quote"
	EntityTypeOther        EntityType = "other"
)

// ParseEntityType maps a raw extraction label to an EntityType.
// Unknown labels map to EntityTypeOther, never to an untyped string.
func ParseEntityType(label string) EntityType {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "person", "per":
		return EntityTypePerson
	case "organization", "org", "company":
		return EntityTypeOrganization
	case "creative_work", "book", "movie", "music", "work":
		return EntityTypeCreativeWork
	case "product":
		return EntityTypeProduct
	case "place", "location", "loc":
		return EntityTypePlace
	case "topic":
		return EntityTypeTopic
	case "quote":
		return EntityTypeQuote
	default:
		return EntityTypeOther
	}
}

// Sentiment classifies how a mention talks about its entity.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Mention is a single raw observation of an entity in source material.
// Mentions are consumed by the resolver and not persisted independently.
type Mention struct {
	EntityType     EntityType `json:"entity_type"`
	RawValue       string     `json:"raw_value"`
	SourceID       string     `json:"source_id"`
	SpanID         string     `json:"span_id,omitempty"`
	Offset         float64    `json:"offset"` // seconds into the source
	Context        string     `json:"context,omitempty"`
	Speaker        string     `json:"speaker,omitempty"`
	Sentiment      Sentiment  `json:"sentiment,omitempty"`
	Confidence     float64    `json:"confidence"`
	SponsorContent bool       `json:"sponsor_content,omitempty"`
	Attributes     Metadata   `json:"attributes,omitempty"`
	ObservedAt     time.Time  `json:"observed_at,omitempty"`
}

// Valid reports whether the mention carries the fields the resolver needs.
func (m *Mention) Valid() bool {
	return m != nil && m.EntityType != "" && strings.TrimSpace(m.RawValue) != "" && m.SourceID != ""
}

// SentimentObservation is one entry in an entity's sentiment history.
type SentimentObservation struct {
	SourceID  string    `json:"source_id"`
	Offset    float64   `json:"offset"`
	Sentiment Sentiment `json:"sentiment"`
}

// Entity is the canonical, deduplicated record for one real-world thing.
// There is exactly one entity per (type, normalized canonical value).
type Entity struct {
	ID               string                 `json:"id"`
	Type             EntityType             `json:"entity_type"`
	CanonicalValue   string                 `json:"canonical_value"`
	Aliases          []string               `json:"aliases"`
	MentionCount     int                    `json:"mention_count"`
	Confidence       float64                `json:"confidence"`
	FirstSeen        time.Time              `json:"first_seen"`
	LastSeen         time.Time              `json:"last_seen"`
	SentimentHistory []SentimentObservation `json:"sentiment_history,omitempty"`
	Attributes       Metadata               `json:"attributes,omitempty"`
}

// HasAlias reports whether the entity has observed the given surface form.
func (e *Entity) HasAlias(raw string) bool {
	for _, a := range e.Aliases {
		if a == raw {
			return true
		}
	}
	return false
}

// AddAlias records a surface form if it is not already known.
func (e *Entity) AddAlias(raw string) {
	if !e.HasAlias(raw) {
		e.Aliases = append(e.Aliases, raw)
	}
}

// NewEntityID derives the deterministic entity id from type and
// normalized value, e.g. "person_abraham_lincoln".
func NewEntityID(entityType EntityType, normalizedValue string) string {
	v := strings.ReplaceAll(normalizedValue, " ", "_")
	v = strings.ReplaceAll(v, "'", "")
	return string(entityType) + "_" + v
}
