package model

import "time"

// ParticipantRole distinguishes hosts from guests on a source.
type ParticipantRole string

const (
	RoleHost  ParticipantRole = "host"
	RoleGuest ParticipantRole = "guest"
)

// Participant is a person taking part in a source.
type Participant struct {
	Name string          `json:"name"`
	Role ParticipantRole `json:"role"`
}

// Source is one ingested item of source material (an episode). Sources are
// created once and never mutated except for denormalized counters.
type Source struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Collection   string        `json:"collection"` // e.g. the podcast the episode belongs to
	PublishDate  time.Time     `json:"publish_date"`
	Duration     time.Duration `json:"duration"`
	Participants []Participant `json:"participants,omitempty"`
	Metadata     Metadata      `json:"metadata,omitempty"`
	// Denormalized aggregate, updated on ingestion.
	EntityCount int `json:"entity_count,omitempty"`
}

// Span is an embedded stretch of source text held in the vector store.
type Span struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	Collection  string    `json:"collection,omitempty"`
	Text        string    `json:"text"`
	Offset      float64   `json:"offset"` // seconds into the source
	EndOffset   float64   `json:"end_offset,omitempty"`
	Speaker     string    `json:"speaker,omitempty"`
	EntityIDs   []string  `json:"entity_ids,omitempty"` // canonical entities mentioned in the span
	PublishDate time.Time `json:"publish_date,omitempty"`
	Sponsor     bool      `json:"sponsor,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Metadata    Metadata  `json:"metadata,omitempty"`
}
