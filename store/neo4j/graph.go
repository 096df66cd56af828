// Package neo4j implements store.GraphStore on a Bolt-protocol graph
// database. It is an alternative to the Postgres graph for deployments
// that already run Neo4j or Memgraph; the vector half stays in Postgres.
package neo4j

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/siherrmann/veritas/helper"
	"github.com/siherrmann/veritas/model"
	"github.com/siherrmann/veritas/store"
)

// Configuration holds the Bolt connection parameters.
type Configuration struct {
	URI      string
	Username string
	Password string
}

// GraphDBHandler implements store.GraphStore over the Bolt protocol.
type GraphDBHandler struct {
	driver neo4j.DriverWithContext
	logger *slog.Logger
}

// NewGraphDBHandler connects to the graph database and verifies
// connectivity.
func NewGraphDBHandler(ctx context.Context, config *Configuration, logger *slog.Logger) (*GraphDBHandler, error) {
	if config == nil || config.URI == "" {
		return nil, helper.NewError("graph configuration validation", fmt.Errorf("%w: graph uri is empty", helper.ErrValidation))
	}

	auth := neo4j.NoAuth()
	if config.Username != "" {
		auth = neo4j.BasicAuth(config.Username, config.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(config.URI, auth)
	if err != nil {
		return nil, helper.NewError("create graph driver", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, helper.NewError("verify graph connectivity", err)
	}

	logger.Info("Initialized GraphDBHandler", slog.String("uri", config.URI))

	return &GraphDBHandler{driver: driver, logger: logger}, nil
}

// Close closes the underlying driver.
func (h *GraphDBHandler) Close(ctx context.Context) error {
	return h.driver.Close(ctx)
}

func (h *GraphDBHandler) executeWrite(ctx context.Context, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	session := h.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)
	return session.ExecuteWrite(ctx, work)
}

func (h *GraphDBHandler) executeRead(ctx context.Context, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	session := h.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)
	return session.ExecuteRead(ctx, work)
}

// sanitizeRelType keeps only characters that are safe inside a Cypher
// relationship type. Relationship types cannot be parameterized.
func sanitizeRelType(relation model.RelationType) string {
	var b strings.Builder
	for _, c := range string(relation) {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return "RELATED"
	}
	return strings.ToUpper(b.String())
}

// UpsertEntity merges the entity node on its id. Sentiment observations
// are stored as a list of JSON strings since node properties cannot nest.
func (h *GraphDBHandler) UpsertEntity(ctx context.Context, entity *model.Entity) error {
	if entity == nil || entity.ID == "" {
		return helper.NewError("upsert entity", fmt.Errorf("%w: entity id is empty", helper.ErrValidation))
	}

	history := make([]string, 0, len(entity.SentimentHistory))
	for _, obs := range entity.SentimentHistory {
		encoded, err := json.Marshal(obs)
		if err != nil {
			return helper.NewError("marshal sentiment observation", err)
		}
		history = append(history, string(encoded))
	}

	params := map[string]any{
		"id":            entity.ID,
		"entity_type":   string(entity.Type),
		"value":         entity.CanonicalValue,
		"aliases":       entity.Aliases,
		"mention_count": entity.MentionCount,
		"confidence":    entity.Confidence,
		"first_seen":    entity.FirstSeen.UTC(),
		"last_seen":     entity.LastSeen.UTC(),
		"history":       history,
	}
	if entity.Aliases == nil {
		params["aliases"] = []string{}
	}

	_, err := h.executeWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MERGE (e:Entity {id: $id})
			ON CREATE SET
				e.entity_type = $entity_type,
				e.canonical_value = $value,
				e.aliases = $aliases,
				e.mention_count = $mention_count,
				e.confidence = $confidence,
				e.first_seen = $first_seen,
				e.last_seen = $last_seen,
				e.sentiment_history = $history
			ON MATCH SET
				e.confidence = CASE WHEN e.mention_count + $mention_count > 0
					THEN (e.confidence * e.mention_count + $confidence * $mention_count) / (e.mention_count + $mention_count)
					ELSE e.confidence END,
				e.mention_count = e.mention_count + $mention_count,
				e.aliases = e.aliases + [a IN $aliases WHERE NOT a IN e.aliases],
				e.first_seen = CASE WHEN $first_seen < e.first_seen THEN $first_seen ELSE e.first_seen END,
				e.last_seen = CASE WHEN $last_seen > e.last_seen THEN $last_seen ELSE e.last_seen END,
				e.sentiment_history = e.sentiment_history + $history
		`, params)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return helper.NewError("merge entity", err)
	}

	return nil
}

// UpsertSource creates the source node once and only lifts the entity
// counter afterwards.
func (h *GraphDBHandler) UpsertSource(ctx context.Context, source *model.Source) error {
	if source == nil || source.ID == "" {
		return helper.NewError("upsert source", fmt.Errorf("%w: source id is empty", helper.ErrValidation))
	}

	_, err := h.executeWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MERGE (s:Source {id: $id})
			ON CREATE SET
				s.title = $title,
				s.collection = $collection,
				s.publish_date = $publish_date,
				s.duration = $duration,
				s.entity_count = $entity_count
			ON MATCH SET
				s.entity_count = CASE WHEN $entity_count > s.entity_count THEN $entity_count ELSE s.entity_count END
		`, map[string]any{
			"id":           source.ID,
			"title":        source.Title,
			"collection":   source.Collection,
			"publish_date": source.PublishDate.UTC(),
			"duration":     source.Duration,
			"entity_count": source.EntityCount,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return helper.NewError("merge source", err)
	}

	return nil
}

// UpsertRelationship merges the edge on (from, to, type). Both endpoints
// must already exist; the ingest pipeline upserts nodes first.
func (h *GraphDBHandler) UpsertRelationship(ctx context.Context, rel *model.Relationship) error {
	if rel == nil || rel.FromID == "" || rel.ToID == "" || rel.Type == "" {
		return helper.NewError("upsert relationship", fmt.Errorf("%w: incomplete relationship", helper.ErrValidation))
	}

	cypher := fmt.Sprintf(`
		MATCH (f {id: $from})
		MATCH (t {id: $to})
		MERGE (f)-[r:%s]->(t)
		ON CREATE SET
			r.offset = $offset,
			r.context = $context,
			r.speaker = $speaker,
			r.sentiment = $sentiment,
			r.confidence = $confidence,
			r.role = $role,
			r.count = 1,
			r.contexts = CASE WHEN $context <> '' THEN [$context] ELSE [] END,
			r.created_at = datetime()
		ON MATCH SET
			r.count = coalesce(r.count, 1) + 1,
			r.contexts = CASE WHEN $context <> ''
				THEN coalesce(r.contexts, []) + [$context]
				ELSE coalesce(r.contexts, []) END,
			r.confidence = CASE WHEN $confidence > r.confidence THEN $confidence ELSE r.confidence END
	`, sanitizeRelType(rel.Type))

	_, err := h.executeWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"from":       rel.FromID,
			"to":         rel.ToID,
			"offset":     rel.Properties.Offset,
			"context":    rel.Properties.Context,
			"speaker":    rel.Properties.Speaker,
			"sentiment":  string(rel.Properties.Sentiment),
			"confidence": rel.Properties.Confidence,
			"role":       rel.Properties.Role,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return helper.NewError("merge relationship", err)
	}

	return nil
}

// FindEntities matches entities by canonical value or alias.
func (h *GraphDBHandler) FindEntities(ctx context.Context, name string, entityType model.EntityType, exact bool) ([]*model.Entity, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil, nil
	}

	match := `toLower(e.canonical_value) = $needle OR any(a IN e.aliases WHERE toLower(a) = $needle)`
	if !exact {
		match = `toLower(e.canonical_value) CONTAINS $needle OR any(a IN e.aliases WHERE toLower(a) CONTAINS $needle)`
	}

	cypher := `MATCH (e:Entity) WHERE ($entity_type = '' OR e.entity_type = $entity_type) AND (` + match + `) RETURN e ORDER BY e.id`

	result, err := h.executeRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{
			"needle":      needle,
			"entity_type": string(entityType),
		})
		if err != nil {
			return nil, err
		}

		var entities []*model.Entity
		for res.Next(ctx) {
			node, ok := res.Record().Get("e")
			if !ok {
				continue
			}
			entity, err := entityFromNode(node.(neo4j.Node))
			if err != nil {
				return nil, err
			}
			entities = append(entities, entity)
		}
		return entities, res.Err()
	})
	if err != nil {
		return nil, helper.NewError("match entities", err)
	}

	return result.([]*model.Entity), nil
}

func entityFromNode(node neo4j.Node) (*model.Entity, error) {
	entity := &model.Entity{
		ID:             stringProp(node.Props, "id"),
		Type:           model.EntityType(stringProp(node.Props, "entity_type")),
		CanonicalValue: stringProp(node.Props, "canonical_value"),
		Confidence:     floatProp(node.Props, "confidence"),
		MentionCount:   int(intProp(node.Props, "mention_count")),
	}

	if t, ok := node.Props["first_seen"].(time.Time); ok {
		entity.FirstSeen = t
	}
	if t, ok := node.Props["last_seen"].(time.Time); ok {
		entity.LastSeen = t
	}
	for _, a := range listProp(node.Props, "aliases") {
		entity.AddAlias(a)
	}
	for _, encoded := range listProp(node.Props, "sentiment_history") {
		var obs model.SentimentObservation
		if err := json.Unmarshal([]byte(encoded), &obs); err != nil {
			return nil, helper.NewError("unmarshal sentiment observation", err)
		}
		entity.SentimentHistory = append(entity.SentimentHistory, obs)
	}

	return entity, nil
}

func stringProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func floatProp(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func intProp(props map[string]any, key string) int64 {
	switch v := props[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

func listProp(props map[string]any, key string) []string {
	raw, _ := props[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Exists reports whether any entity of the type matches the name.
func (h *GraphDBHandler) Exists(ctx context.Context, entityType model.EntityType, name string) (bool, error) {
	matches, err := h.FindEntities(ctx, name, entityType, true)
	if err != nil {
		return false, err
	}
	if len(matches) > 0 {
		return true, nil
	}
	matches, err = h.FindEntities(ctx, name, entityType, false)
	return len(matches) > 0, err
}

func directionPattern(direction model.Direction, relType string) string {
	rel := ""
	if relType != "" {
		rel = ":" + relType
	}
	switch direction {
	case model.DirectionOutgoing:
		return fmt.Sprintf(`(a {id: $anchor})-[r%s]->(n)`, rel)
	case model.DirectionIncoming:
		return fmt.Sprintf(`(a {id: $anchor})<-[r%s]-(n)`, rel)
	default:
		return fmt.Sprintf(`(a {id: $anchor})-[r%s]-(n)`, rel)
	}
}

// Neighbors returns entities one hop from the anchor.
func (h *GraphDBHandler) Neighbors(ctx context.Context, entityID string, relation model.RelationType, direction model.Direction) ([]*model.Entity, error) {
	relType := ""
	if relation != "" {
		relType = sanitizeRelType(relation)
	}
	cypher := `MATCH ` + directionPattern(direction, relType) + ` WHERE n:Entity RETURN DISTINCT n ORDER BY n.id`

	result, err := h.executeRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{"anchor": entityID})
		if err != nil {
			return nil, err
		}

		var entities []*model.Entity
		for res.Next(ctx) {
			node, ok := res.Record().Get("n")
			if !ok {
				continue
			}
			entity, err := entityFromNode(node.(neo4j.Node))
			if err != nil {
				return nil, err
			}
			entities = append(entities, entity)
		}
		return entities, res.Err()
	})
	if err != nil {
		return nil, helper.NewError("match neighbors", err)
	}

	return result.([]*model.Entity), nil
}

// RelationshipsBetween returns every edge connecting the two nodes.
func (h *GraphDBHandler) RelationshipsBetween(ctx context.Context, fromID, toID string) ([]*model.Relationship, error) {
	result, err := h.executeRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (f {id: $from})-[r]-(t {id: $to})
			RETURN DISTINCT type(r) AS rel_type, properties(r) AS props, startNode(r).id AS start_id, endNode(r).id AS end_id
		`, map[string]any{"from": fromID, "to": toID})
		if err != nil {
			return nil, err
		}

		var rels []*model.Relationship
		for res.Next(ctx) {
			record := res.Record()
			relType, _ := record.Get("rel_type")
			props, _ := record.Get("props")
			startID, _ := record.Get("start_id")
			endID, _ := record.Get("end_id")

			propsMap, _ := props.(map[string]any)
			rel := &model.Relationship{
				FromID: startID.(string),
				ToID:   endID.(string),
				Type:   model.RelationType(strings.ToLower(relType.(string))),
				Properties: model.RelationshipProperties{
					Offset:     floatProp(propsMap, "offset"),
					Context:    stringProp(propsMap, "context"),
					Speaker:    stringProp(propsMap, "speaker"),
					Sentiment:  model.Sentiment(stringProp(propsMap, "sentiment")),
					Confidence: floatProp(propsMap, "confidence"),
					Role:       stringProp(propsMap, "role"),
					Count:      int(intProp(propsMap, "count")),
					Contexts:   listProp(propsMap, "contexts"),
				},
			}
			rels = append(rels, rel)
		}
		return rels, res.Err()
	})
	if err != nil {
		return nil, helper.NewError("match relationships", err)
	}

	return result.([]*model.Relationship), nil
}

// SourcesOf returns the source ids the entity connects to via the relation.
func (h *GraphDBHandler) SourcesOf(ctx context.Context, entityID string, relation model.RelationType) ([]string, error) {
	relType := ""
	if relation != "" {
		relType = ":" + sanitizeRelType(relation)
	}
	cypher := fmt.Sprintf(`MATCH (e {id: $anchor})-[r%s]->(s:Source) RETURN DISTINCT s.id AS id ORDER BY id`, relType)

	result, err := h.executeRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{"anchor": entityID})
		if err != nil {
			return nil, err
		}

		var ids []string
		for res.Next(ctx) {
			if id, ok := res.Record().Get("id"); ok {
				ids = append(ids, id.(string))
			}
		}
		return ids, res.Err()
	})
	if err != nil {
		return nil, helper.NewError("match sources", err)
	}

	return result.([]string), nil
}

// Source fetches one source record.
func (h *GraphDBHandler) Source(ctx context.Context, sourceID string) (*model.Source, error) {
	result, err := h.executeRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (s:Source {id: $id}) RETURN s`, map[string]any{"id": sourceID})
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			node, ok := res.Record().Get("s")
			if !ok {
				return nil, nil
			}
			return sourceFromNode(node.(neo4j.Node)), nil
		}
		return nil, res.Err()
	})
	if err != nil {
		return nil, helper.NewError("match source", err)
	}
	if result == nil {
		return nil, helper.NewError("select source", fmt.Errorf("%w: source %v", helper.ErrNotFound, sourceID))
	}

	return result.(*model.Source), nil
}

func sourceFromNode(node neo4j.Node) *model.Source {
	source := &model.Source{
		ID:          stringProp(node.Props, "id"),
		Title:       stringProp(node.Props, "title"),
		Collection:  stringProp(node.Props, "collection"),
		Duration:    time.Duration(intProp(node.Props, "duration")),
		EntityCount: int(intProp(node.Props, "entity_count")),
	}
	if t, ok := node.Props["publish_date"].(time.Time); ok {
		source.PublishDate = t
	}
	return source
}

// Query executes a typed structural query.
func (h *GraphDBHandler) Query(ctx context.Context, query *model.StructuralQuery) ([]store.Row, error) {
	if query == nil || len(query.AnchorIDs) == 0 {
		return nil, helper.NewError("structural query", fmt.Errorf("%w: query has no anchors", helper.ErrValidation))
	}

	switch query.Shape {
	case model.ShapeNeighbors:
		ids, err := h.neighborIDs(ctx, query.AnchorIDs[0], query.Relation, query.Direction)
		if err != nil {
			return nil, err
		}
		return h.rowsForIDs(ctx, ids, query)
	case model.ShapeIntersection:
		return h.queryIntersection(ctx, query)
	case model.ShapeTimeline:
		return h.queryTimeline(ctx, query, false)
	case model.ShapeFirstMention:
		return h.queryTimeline(ctx, query, true)
	default:
		return nil, helper.NewError("structural query", fmt.Errorf("%w: unknown shape %v", helper.ErrValidation, query.Shape))
	}
}

func (h *GraphDBHandler) neighborIDs(ctx context.Context, anchorID string, relation model.RelationType, direction model.Direction) ([]string, error) {
	relType := ""
	if relation != "" {
		relType = sanitizeRelType(relation)
	}
	cypher := `MATCH ` + directionPattern(direction, relType) + ` RETURN DISTINCT n.id AS id ORDER BY id`

	result, err := h.executeRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{"anchor": anchorID})
		if err != nil {
			return nil, err
		}

		var ids []string
		for res.Next(ctx) {
			if id, ok := res.Record().Get("id"); ok {
				ids = append(ids, id.(string))
			}
		}
		return ids, res.Err()
	})
	if err != nil {
		return nil, helper.NewError("match neighbor ids", err)
	}

	return result.([]string), nil
}

func (h *GraphDBHandler) queryIntersection(ctx context.Context, query *model.StructuralQuery) ([]store.Row, error) {
	if len(query.AnchorIDs) < 2 {
		return nil, helper.NewError("structural query", fmt.Errorf("%w: intersection needs two anchors", helper.ErrValidation))
	}

	left, err := h.neighborIDs(ctx, query.AnchorIDs[0], query.Relation, query.Direction)
	if err != nil {
		return nil, err
	}
	right, err := h.neighborIDs(ctx, query.AnchorIDs[1], query.Relation, query.Direction)
	if err != nil {
		return nil, err
	}

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
	return h.rowsForIDs(ctx, common, query)
}

func (h *GraphDBHandler) rowsForIDs(ctx context.Context, ids []string, query *model.StructuralQuery) ([]store.Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	result, err := h.executeRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n) WHERE n.id IN $ids
			RETURN n ORDER BY n.id
		`, map[string]any{"ids": ids})
		if err != nil {
			return nil, err
		}

		var rows []store.Row
		for res.Next(ctx) {
			raw, ok := res.Record().Get("n")
			if !ok {
				continue
			}
			node := raw.(neo4j.Node)
			if hasLabel(node, "Entity") {
				entityType := stringProp(node.Props, "entity_type")
				if query.EntityType != "" && entityType != string(query.EntityType) {
					continue
				}
				rows = append(rows, store.Row{
					"entity_id":   stringProp(node.Props, "id"),
					"entity_name": stringProp(node.Props, "canonical_value"),
					"entity_type": entityType,
				})
				continue
			}
			if hasLabel(node, "Source") {
				source := sourceFromNode(node)
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
		return rows, res.Err()
	})
	if err != nil {
		return nil, helper.NewError("match query rows", err)
	}

	rows := result.([]store.Row)
	if query.Limit > 0 && len(rows) > query.Limit {
		rows = rows[:query.Limit]
	}
	return rows, nil
}

func hasLabel(node neo4j.Node, label string) bool {
	for _, l := range node.Labels {
		if l == label {
			return true
		}
	}
	return false
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

func (h *GraphDBHandler) queryTimeline(ctx context.Context, query *model.StructuralQuery, firstOnly bool) ([]store.Row, error) {
	relType := ""
	if query.Relation != "" {
		relType = ":" + sanitizeRelType(query.Relation)
	}
	cypher := fmt.Sprintf(`
		MATCH (a {id: $anchor})-[r%s]->(s:Source)
		RETURN s.id AS source_id, s.title AS title, s.collection AS collection, s.publish_date AS date,
			coalesce(r.offset, 0.0) AS offset, coalesce(r.sentiment, '') AS sentiment, coalesce(r.context, '') AS context
		ORDER BY date, offset
	`, relType)

	result, err := h.executeRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{"anchor": query.AnchorIDs[0]})
		if err != nil {
			return nil, err
		}

		var rows []store.Row
		for res.Next(ctx) {
			record := res.Record().AsMap()
			source := &model.Source{Collection: stringProp(record, "collection")}
			if t, ok := record["date"].(time.Time); ok {
				source.PublishDate = t
			}
			if !sourceInScope(source, query) {
				continue
			}
			rows = append(rows, store.Row{
				"source_id": stringProp(record, "source_id"),
				"title":     stringProp(record, "title"),
				"date":      source.PublishDate,
				"offset":    floatProp(record, "offset"),
				"sentiment": stringProp(record, "sentiment"),
				"context":   stringProp(record, "context"),
			})
		}
		return rows, res.Err()
	})
	if err != nil {
		return nil, helper.NewError("match timeline", err)
	}

	rows := result.([]store.Row)
	if firstOnly && len(rows) > 1 {
		rows = rows[:1]
	}
	if query.Limit > 0 && len(rows) > query.Limit {
		rows = rows[:query.Limit]
	}
	return rows, nil
}

// Stats counts nodes and relationships by type.
func (h *GraphDBHandler) Stats(ctx context.Context) (map[string]int, error) {
	result, err := h.executeRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		stats := map[string]int{}

		res, err := tx.Run(ctx, `MATCH (e:Entity) RETURN e.entity_type AS entity_type, count(*) AS count`, nil)
		if err != nil {
			return nil, err
		}
		for res.Next(ctx) {
			record := res.Record().AsMap()
			count := int(intProp(record, "count"))
			stats["entities_"+stringProp(record, "entity_type")] = count
			stats["entities"] += count
		}
		if err := res.Err(); err != nil {
			return nil, err
		}

		res, err = tx.Run(ctx, `MATCH (s:Source) RETURN count(*) AS count`, nil)
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			stats["sources"] = int(intProp(res.Record().AsMap(), "count"))
		}

		res, err = tx.Run(ctx, `MATCH ()-[r]->() RETURN count(*) AS count`, nil)
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			stats["relationships"] = int(intProp(res.Record().AsMap(), "count"))
		}

		return stats, res.Err()
	})
	if err != nil {
		return nil, helper.NewError("count graph stats", err)
	}

	return result.(map[string]int), nil
}
