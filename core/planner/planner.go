// Package planner turns a structural question into a typed query against
// the graph store. The planner never emits a store-specific query string;
// it resolves anchor names to entity ids and fills a StructuralQuery the
// stores execute themselves.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/siherrmann/veritas/helper"
	"github.com/siherrmann/veritas/llm"
	"github.com/siherrmann/veritas/model"
	"github.com/siherrmann/veritas/store"
)

// Plan is a resolved structural query plus the entity scope it anchors.
type Plan struct {
	Query *model.StructuralQuery
	// AnchorEntities are the resolved anchors, in query order.
	AnchorEntities []*model.Entity
	// ScopeEntityIDs is the id set a hybrid retrieval narrows its vector
	// search to.
	ScopeEntityIDs []string
	// Unresolved lists anchor names no stored entity matched.
	Unresolved []string
}

// Planner resolves questions into plans. The generator is optional; with
// a nil generator only the rule-based parse runs.
type Planner struct {
	graph     store.GraphStore
	generator llm.Generator
	logger    *slog.Logger
}

// NewPlanner creates a planner over the graph store.
func NewPlanner(graph store.GraphStore, generator llm.Generator, logger *slog.Logger) *Planner {
	return &Planner{graph: graph, generator: generator, logger: logger}
}

// parsedPlan mirrors the JSON shape the planning prompt requests.
type parsedPlan struct {
	Shape      string   `json:"shape"`
	Anchors    []string `json:"anchors"`
	EntityType string   `json:"entity_type"`
	Relation   string   `json:"relation"`
	Direction  string   `json:"direction"`
}

const planningPromptTemplate = `Turn this question about archived conversations into a structural graph query.

Shapes:
- "neighbors": things related to one anchor ("Who appeared on X?", "Books recommended by Y")
- "intersection": things related to both anchors ("Common guests of X and Y")
- "timeline": observations of one anchor ordered by date ("How did sentiment on X change?")
- "first_mention": the earliest observation of one anchor ("When was X first mentioned?")

Relations: appeared_in, discussed_in, recommended_by, references, quoted_in.
Entity types: person, organization, creative_work, product, place, topic, quote.

Respond with JSON only:
{"shape": "...", "anchors": ["name", ...], "entity_type": "", "relation": "", "direction": ""}

Question: "%s"`

// Plan parses the question and resolves its anchors. Anchors that resolve
// to no stored entity are reported in Unresolved; a plan with no resolved
// anchor at all returns ErrNotFound.
func (p *Planner) Plan(ctx context.Context, question string, filters *model.Filters) (*Plan, error) {
	parsed := p.parse(ctx, question)
	if len(parsed.Anchors) == 0 {
		return nil, helper.NewError("plan question", fmt.Errorf("%w: no anchor entities in question", helper.ErrValidation))
	}

	plan := &Plan{
		Query: &model.StructuralQuery{
			Shape:     parseShape(parsed.Shape),
			Relation:  model.RelationType(parsed.Relation),
			Direction: parseDirection(parsed.Direction),
		},
	}
	if parsed.EntityType != "" {
		plan.Query.EntityType = model.ParseEntityType(parsed.EntityType)
	}
	if filters != nil {
		plan.Query.Collection = filters.Collection
		plan.Query.DateFrom = filters.DateFrom
		plan.Query.DateTo = filters.DateTo
	}

	for _, anchor := range parsed.Anchors {
		entity, err := p.resolveAnchor(ctx, anchor)
		if err != nil {
			return nil, err
		}
		if entity == nil {
			plan.Unresolved = append(plan.Unresolved, anchor)
			continue
		}
		plan.AnchorEntities = append(plan.AnchorEntities, entity)
		plan.Query.AnchorIDs = append(plan.Query.AnchorIDs, entity.ID)
		plan.ScopeEntityIDs = append(plan.ScopeEntityIDs, entity.ID)
	}

	if len(plan.Query.AnchorIDs) == 0 {
		return nil, helper.NewError("plan question", fmt.Errorf("%w: no anchor entity matched: %v", helper.ErrNotFound, strings.Join(plan.Unresolved, ", ")))
	}
	if plan.Query.Shape == model.ShapeIntersection && len(plan.Query.AnchorIDs) < 2 {
		// One anchor of the pair is missing, degrade to its neighbors.
		plan.Query.Shape = model.ShapeNeighbors
	}

	p.logger.Debug("Planned structural query",
		slog.String("shape", string(plan.Query.Shape)),
		slog.Any("anchors", plan.Query.AnchorIDs),
	)

	return plan, nil
}

func (p *Planner) parse(ctx context.Context, question string) *parsedPlan {
	if p.generator != nil {
		response, err := p.generator.Generate(ctx, fmt.Sprintf(planningPromptTemplate, question))
		if err == nil {
			var parsed parsedPlan
			if jsonErr := json.Unmarshal([]byte(llm.StripJSONFences(response)), &parsed); jsonErr == nil && len(parsed.Anchors) > 0 {
				return &parsed
			}
		} else {
			p.logger.Warn("Plan generation failed, falling back to rules", slog.Any("error", err))
		}
	}
	return ruleParse(question)
}

// resolveAnchor matches the name against stored entities, preferring a
// case-insensitive exact match over a substring match. Among several
// matches the most mentioned entity wins.
func (p *Planner) resolveAnchor(ctx context.Context, name string) (*model.Entity, error) {
	matches, err := p.graph.FindEntities(ctx, name, "", true)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		matches, err = p.graph.FindEntities(ctx, name, "", false)
		if err != nil {
			return nil, err
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}

	best := matches[0]
	for _, entity := range matches[1:] {
		if entity.MentionCount > best.MentionCount {
			best = entity
		}
	}
	return best, nil
}

func parseShape(raw string) model.QueryShape {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "intersection":
		return model.ShapeIntersection
	case "timeline":
		return model.ShapeTimeline
	case "first_mention":
		return model.ShapeFirstMention
	default:
		return model.ShapeNeighbors
	}
}

func parseDirection(raw string) model.Direction {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "outgoing":
		return model.DirectionOutgoing
	case "incoming":
		return model.DirectionIncoming
	default:
		return model.DirectionAny
	}
}

var (
	quotedName      = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	capitalizedName = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9']*(?:\s+(?:(?:of|the)\s+)?[A-Z][a-zA-Z0-9']*)*`)
)

// ruleParse extracts anchors and a shape without a model call. Anchors are
// quoted phrases first, capitalized name runs otherwise.
func ruleParse(question string) *parsedPlan {
	parsed := &parsedPlan{Shape: "neighbors"}
	q := strings.ToLower(question)

	for _, match := range quotedName.FindAllStringSubmatch(question, -1) {
		name := match[1]
		if name == "" {
			name = match[2]
		}
		parsed.Anchors = append(parsed.Anchors, strings.TrimSpace(name))
	}
	if len(parsed.Anchors) == 0 {
		for _, match := range capitalizedName.FindAllString(question, -1) {
			name := strings.TrimSpace(match)
			// A lone sentence-initial word is usually not a name.
			if strings.Index(question, name) == 0 && !strings.Contains(name, " ") {
				continue
			}
			parsed.Anchors = append(parsed.Anchors, name)
		}
	}

	switch {
	case (strings.Contains(q, "common") || strings.Contains(q, "both")) && len(parsed.Anchors) >= 2:
		parsed.Shape = "intersection"
	case strings.Contains(q, "first mention") || strings.Contains(q, "first mentioned"):
		parsed.Shape = "first_mention"
	case strings.Contains(q, "over time") || strings.Contains(q, "sentiment") || strings.Contains(q, "trace"):
		parsed.Shape = "timeline"
	}

	switch {
	case strings.Contains(q, "appear") || strings.Contains(q, "guest"):
		parsed.Relation = string(model.RelationAppearedIn)
	case strings.Contains(q, "recommend"):
		parsed.Relation = string(model.RelationRecommendedBy)
	case strings.Contains(q, "discuss"):
		parsed.Relation = string(model.RelationDiscussedIn)
	case strings.Contains(q, "quote"):
		parsed.Relation = string(model.RelationQuotedIn)
	}

	switch {
	case strings.Contains(q, "book"):
		parsed.EntityType = string(model.EntityTypeCreativeWork)
	case strings.Contains(q, "who") || strings.Contains(q, "guest"):
		parsed.EntityType = string(model.EntityTypePerson)
	}

	return parsed
}
