// Package verifier checks claims against the knowledge base. A claim is
// parsed into a (subject, predicate, object) triple, checked structurally
// against the graph, and corroborated semantically against the span index.
// The verdict is three-valued: a claim whose subject exists but whose
// relationship cannot be confirmed is false, while disagreement between
// the structural and semantic checks stays undetermined.
package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/siherrmann/veritas/core/retrieval"
	"github.com/siherrmann/veritas/helper"
	"github.com/siherrmann/veritas/llm"
	"github.com/siherrmann/veritas/model"
	"github.com/siherrmann/veritas/store"
)

// Config tunes the verification thresholds.
type Config struct {
	// SemanticSupportThreshold is the similarity above which a retrieved
	// span counts as supporting the claim.
	SemanticSupportThreshold float64
}

// DefaultConfig returns the verification thresholds used by the engine.
func DefaultConfig() Config {
	return Config{SemanticSupportThreshold: 0.5}
}

// Verifier combines structural and semantic claim checking.
type Verifier struct {
	graph     store.GraphStore
	retriever *retrieval.Retriever
	generator llm.Generator
	config    Config
	logger    *slog.Logger
}

// NewVerifier creates a verifier. The generator is optional; without it
// claims are parsed by rules only.
func NewVerifier(graph store.GraphStore, retriever *retrieval.Retriever, generator llm.Generator, config Config, logger *slog.Logger) *Verifier {
	return &Verifier{
		graph:     graph,
		retriever: retriever,
		generator: generator,
		config:    config,
		logger:    logger,
	}
}

const claimPromptTemplate = `Extract the factual triple from this claim.
Respond with JSON only: {"subject": "...", "predicate": "...", "object": "..."}
The predicate is the relationship being claimed (e.g. interviewed, recommended, discussed, said).

Claim: "%s"`

// Verify checks the claim and returns a verdict with its evidence.
func (v *Verifier) Verify(ctx context.Context, claimText string) (*model.VerificationResult, error) {
	if strings.TrimSpace(claimText) == "" {
		return nil, helper.NewError("claim validation", fmt.Errorf("%w: claim is empty", helper.ErrValidation))
	}

	claim := v.parseClaim(ctx, claimText)
	result := &model.VerificationResult{}
	defer func() { result.Claim = *claim }()

	if claim.Subject == "" {
		result.Verdict = model.VerdictUndetermined
		result.Reason = "could not identify what the claim is about"
		return result, nil
	}

	subject := v.lookup(ctx, claim.Subject)
	if subject == nil {
		result.Verdict = model.VerdictFalse
		result.Reason = fmt.Sprintf("no entity matching %q is known", claim.Subject)
		return result, nil
	}
	claim.SubjectID = subject.ID

	var object *model.Entity
	if claim.Object != "" {
		object = v.lookup(ctx, claim.Object)
		if object == nil {
			result.Verdict = model.VerdictFalse
			result.Reason = fmt.Sprintf("no entity matching %q is known", claim.Object)
			return result, nil
		}
		claim.ObjectID = object.ID
	}

	structural, structuralReason, err := v.checkStructural(ctx, claim, subject, object)
	if err != nil {
		return nil, err
	}
	result.StructuralMatch = structural

	evidence, supported := v.checkSemantic(ctx, claim, claimText)
	result.Evidence = evidence

	switch {
	case structural && supported:
		result.Verdict = model.VerdictTrue
		result.Confidence = 0.9
		result.Reason = structuralReason + ", corroborated by recorded content"
	case structural:
		result.Verdict = model.VerdictTrue
		result.Confidence = 0.7
		result.Reason = structuralReason
	case supported:
		result.Verdict = model.VerdictUndetermined
		result.Confidence = 0.4
		result.Reason = "recorded content suggests the claim but the graph does not confirm it"
	default:
		result.Verdict = model.VerdictFalse
		result.Confidence = 0.7
		result.Reason = "no recorded relationship or content supports the claim"
	}

	v.logger.Debug("Verified claim",
		slog.String("verdict", string(result.Verdict)),
		slog.Bool("structural", structural),
		slog.Bool("semantic", supported),
	)

	return result, nil
}

// lookup resolves a name to a stored entity, exact match preferred.
func (v *Verifier) lookup(ctx context.Context, name string) *model.Entity {
	matches, err := v.graph.FindEntities(ctx, name, "", true)
	if err != nil || len(matches) == 0 {
		matches, err = v.graph.FindEntities(ctx, name, "", false)
		if err != nil || len(matches) == 0 {
			return nil
		}
	}
	best := matches[0]
	for _, entity := range matches[1:] {
		if entity.MentionCount > best.MentionCount {
			best = entity
		}
	}
	return best
}

// predicateRelations maps claim predicates onto the relationship types
// that would confirm them directly.
var predicateRelations = map[string][]model.RelationType{
	"recommend": {model.RelationRecommendedBy},
	"discuss":   {model.RelationDiscussedIn},
	"mention":   {model.RelationDiscussedIn},
	"reference": {model.RelationReferences},
	"quote":     {model.RelationQuotedIn},
	"appear":    {model.RelationAppearedIn},
}

// sharedSourcePredicates confirm via co-presence: two people are linked by
// having appeared in the same source.
var sharedSourcePredicates = []string{"interview", "appear", "talk", "speak", "host", "meet"}

func normalizePredicate(predicate string) string {
	predicate = strings.ToLower(strings.TrimSpace(predicate))
	for _, suffix := range []string{"ed", "s", "ing"} {
		predicate = strings.TrimSuffix(predicate, suffix)
	}
	return predicate
}

func (v *Verifier) checkStructural(ctx context.Context, claim *model.Claim, subject, object *model.Entity) (bool, string, error) {
	if object == nil {
		// Claims without an object ("X was on the show") reduce to the
		// subject having appeared anywhere.
		sources, err := v.graph.SourcesOf(ctx, subject.ID, model.RelationAppearedIn)
		if err != nil {
			return false, "", err
		}
		if len(sources) > 0 {
			return true, fmt.Sprintf("%v appears in %v recorded sources", subject.CanonicalValue, len(sources)), nil
		}
		return false, "", nil
	}

	predicate := normalizePredicate(claim.Predicate)

	// Direct edge between subject and object.
	rels, err := v.graph.RelationshipsBetween(ctx, subject.ID, object.ID)
	if err != nil {
		return false, "", err
	}
	wanted := predicateRelations[predicate]
	for _, rel := range rels {
		if len(wanted) == 0 {
			return true, fmt.Sprintf("the graph records %v between %v and %v", rel.Type, subject.CanonicalValue, object.CanonicalValue), nil
		}
		for _, want := range wanted {
			if rel.Type == want {
				return true, fmt.Sprintf("the graph records %v between %v and %v", rel.Type, subject.CanonicalValue, object.CanonicalValue), nil
			}
		}
	}

	// Co-presence predicates: both entities share at least one source.
	for _, p := range sharedSourcePredicates {
		if !strings.Contains(predicate, p) {
			continue
		}
		shared, err := v.sharedSources(ctx, subject.ID, object.ID)
		if err != nil {
			return false, "", err
		}
		if len(shared) > 0 {
			return true, fmt.Sprintf("%v and %v appear together in %v source(s)", subject.CanonicalValue, object.CanonicalValue, len(shared)), nil
		}
		break
	}

	return false, "", nil
}

func (v *Verifier) sharedSources(ctx context.Context, subjectID, objectID string) ([]string, error) {
	left, err := v.graph.SourcesOf(ctx, subjectID, model.RelationAppearedIn)
	if err != nil {
		return nil, err
	}
	right, err := v.graph.SourcesOf(ctx, objectID, model.RelationAppearedIn)
	if err != nil {
		return nil, err
	}

	inLeft := make(map[string]bool, len(left))
	for _, id := range left {
		inLeft[id] = true
	}
	var shared []string
	for _, id := range right {
		if inLeft[id] {
			shared = append(shared, id)
		}
	}
	return shared, nil
}

// checkSemantic searches spans scoped to the claim's entities and reports
// whether any passes the support threshold.
func (v *Verifier) checkSemantic(ctx context.Context, claim *model.Claim, claimText string) ([]model.Evidence, bool) {
	scope := []string{}
	if claim.SubjectID != "" {
		scope = append(scope, claim.SubjectID)
	}
	if claim.ObjectID != "" {
		scope = append(scope, claim.ObjectID)
	}

	evidence, err := v.retriever.Search(ctx, &retrieval.Request{
		Question:       claimText,
		ScopeEntityIDs: scope,
	})
	if err != nil {
		v.logger.Warn("Semantic claim check failed", slog.Any("error", err))
		return nil, false
	}

	for _, e := range evidence {
		if e.Similarity >= v.config.SemanticSupportThreshold {
			return evidence, true
		}
	}
	return evidence, false
}

// parsedClaim mirrors the JSON shape the claim prompt requests.
type parsedClaim struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

func (v *Verifier) parseClaim(ctx context.Context, claimText string) *model.Claim {
	if v.generator != nil {
		response, err := v.generator.Generate(ctx, fmt.Sprintf(claimPromptTemplate, claimText))
		if err == nil {
			var parsed parsedClaim
			if jsonErr := json.Unmarshal([]byte(llm.StripJSONFences(response)), &parsed); jsonErr == nil && parsed.Subject != "" {
				return &model.Claim{
					Text:      claimText,
					Subject:   strings.TrimSpace(parsed.Subject),
					Predicate: strings.TrimSpace(parsed.Predicate),
					Object:    strings.TrimSpace(parsed.Object),
				}
			}
		} else {
			v.logger.Warn("Claim parsing failed, falling back to rules", slog.Any("error", err))
		}
	}
	return ruleParseClaim(claimText)
}

var (
	claimPrefixes  = regexp.MustCompile(`(?i)^(is it true that|verify that|verify|did|does|has|have|was|were)\s+`)
	predicateVerbs = regexp.MustCompile(`(?i)\s+(interviewed|interview|recommended|recommend|discussed|discuss|mentioned|mention|quoted|quote|said|say|wrote|write|appeared on|appeared in|appeared|met|hosted|host)\s+`)
)

// ruleParseClaim splits the claim at its first known predicate verb.
func ruleParseClaim(claimText string) *model.Claim {
	text := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(claimText), "?"))
	text = claimPrefixes.ReplaceAllString(text, "")

	claim := &model.Claim{Text: claimText}

	loc := predicateVerbs.FindStringSubmatchIndex(text)
	if loc == nil {
		claim.Subject = text
		return claim
	}

	claim.Subject = strings.TrimSpace(text[:loc[0]])
	claim.Predicate = strings.ToLower(strings.TrimSpace(text[loc[2]:loc[3]]))
	object := strings.TrimSpace(text[loc[1]:])
	for _, prefix := range []string{"the ", "a ", "an ", "on ", "in ", "that "} {
		if strings.HasPrefix(strings.ToLower(object), prefix) {
			object = object[len(prefix):]
			break
		}
	}
	claim.Object = object

	return claim
}
