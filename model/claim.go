package model

// Claim is a parsed verification request. Subject and object carry the
// entity ids they resolved to, when resolution succeeded.
type Claim struct {
	Text      string `json:"text"`
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
	SubjectID string `json:"subject_id,omitempty"`
	ObjectID  string `json:"object_id,omitempty"`
}

// Verdict is the three-valued outcome of claim verification. Collapsing
// undetermined into false would hide conflicting evidence from the caller.
type Verdict string

const (
	VerdictTrue         Verdict = "true"
	VerdictFalse        Verdict = "false"
	VerdictUndetermined Verdict = "undetermined"
)

// VerificationResult is the grounded outcome of checking a claim against
// the graph and the vector store.
type VerificationResult struct {
	Claim      Claim      `json:"claim"`
	Verdict    Verdict    `json:"verdict"`
	Reason     string     `json:"reason"`
	Confidence float64    `json:"confidence"`
	// Structural and semantic signals kept separate so disagreement
	// stays visible.
	StructuralMatch bool       `json:"structural_match"`
	Evidence        []Evidence `json:"evidence,omitempty"`
}
