package model

import "time"

// EvidenceOrigin records which retrieval path produced an evidence item.
type EvidenceOrigin string

const (
	OriginGraph  EvidenceOrigin = "graph"
	OriginVector EvidenceOrigin = "vector"
)

// Evidence is one source citation backing an answer.
type Evidence struct {
	SourceID   string         `json:"source_id"`
	Collection string         `json:"collection,omitempty"`
	Offset     float64        `json:"offset,omitempty"`
	Speaker    string         `json:"speaker,omitempty"`
	Text       string         `json:"text,omitempty"`
	Similarity float64        `json:"similarity,omitempty"`
	Origin     EvidenceOrigin `json:"origin"`
	EntityIDs  []string       `json:"entity_ids,omitempty"`
}

// QueryResult is the answer to a question, grounded in evidence.
type QueryResult struct {
	Question        string              `json:"question"`
	Intent          Intent              `json:"intent"`
	Answer          string              `json:"answer"`
	Evidence        []Evidence          `json:"evidence"`
	Confidence      float64             `json:"confidence"`
	Verification    *VerificationResult `json:"verification,omitempty"`
	StructuralQuery *StructuralQuery    `json:"structural_query,omitempty"`
	// Degraded lists retrieval paths that failed and were skipped
	// instead of failing the whole query.
	Degraded []string      `json:"degraded,omitempty"`
	Latency  time.Duration `json:"latency"`
}

// UnitFailure is one entry in an ingestion failure manifest.
type UnitFailure struct {
	SourceID string `json:"source_id"`
	SpanID   string `json:"span_id,omitempty"`
	Reason   string `json:"reason"`
}

// IngestReport summarizes one ingestion batch. Per-unit failures never
// abort the batch.
type IngestReport struct {
	Accepted        int           `json:"accepted"` // resolved canonical entities upserted
	SkippedMentions int           `json:"skipped_mentions"`
	SpansIndexed    int           `json:"spans_indexed"`
	Failures        []UnitFailure `json:"failures,omitempty"`
	Duration        time.Duration `json:"duration"`
}
