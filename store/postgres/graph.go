// Package postgres implements the store interfaces on Postgres. The graph
// half uses plain relational tables with jsonb properties, the vector half
// uses pgvector. All merges happen inside single upsert statements so
// concurrent ingestion stays idempotent without advisory locks.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/siherrmann/veritas/helper"
	"github.com/siherrmann/veritas/model"
	"github.com/siherrmann/veritas/store"
)

// GraphDBHandlerFunctions defines the interface for graph database operations.
type GraphDBHandlerFunctions interface {
	store.GraphStore
}

// GraphDBHandler implements store.GraphStore on Postgres.
type GraphDBHandler struct {
	db *helper.Database
}

// NewGraphDBHandler creates a new graph database handler and ensures the
// entity, source and relationship tables exist.
func NewGraphDBHandler(db *helper.Database) (*GraphDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	handler := &GraphDBHandler{db: db}
	if err := handler.CreateTables(); err != nil {
		return nil, helper.NewError("create tables", err)
	}

	db.Logger.Info("Initialized GraphDBHandler")

	return handler, nil
}

// CreateTables creates the graph tables and indexes if they do not exist.
func (h *GraphDBHandler) CreateTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			entity_type TEXT NOT NULL,
			canonical_value TEXT NOT NULL,
			aliases JSONB NOT NULL DEFAULT '[]'::jsonb,
			mention_count INTEGER NOT NULL DEFAULT 0,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			first_seen TIMESTAMPTZ,
			last_seen TIMESTAMPTZ,
			sentiment_history JSONB NOT NULL DEFAULT '[]'::jsonb,
			attributes JSONB NOT NULL DEFAULT '{}'::jsonb
		);
		CREATE INDEX IF NOT EXISTS idx_entities_type ON entities (entity_type);
		CREATE INDEX IF NOT EXISTS idx_entities_value ON entities (LOWER(canonical_value));

		CREATE TABLE IF NOT EXISTS sources (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			collection TEXT NOT NULL DEFAULT '',
			publish_date TIMESTAMPTZ,
			duration DOUBLE PRECISION NOT NULL DEFAULT 0,
			participants JSONB NOT NULL DEFAULT '[]'::jsonb,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			entity_count INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_sources_collection ON sources (collection);

		CREATE TABLE IF NOT EXISTS relationships (
			from_id TEXT NOT NULL,
			to_id TEXT NOT NULL,
			relation_type TEXT NOT NULL,
			properties JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (from_id, to_id, relation_type)
		);
		CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships (from_id);
		CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships (to_id);
	`)
	if err != nil {
		return helper.NewError("exec", err)
	}

	h.db.Logger.Info("Checked/created graph tables")

	return nil
}

// UpsertEntity merges the entity on its id. Aliases union, mention counts
// add, confidence averages weighted by mention count, seen range extends.
func (h *GraphDBHandler) UpsertEntity(ctx context.Context, entity *model.Entity) error {
	if entity == nil || entity.ID == "" {
		return helper.NewError("upsert entity", fmt.Errorf("%w: entity id is empty", helper.ErrValidation))
	}

	aliases, err := json.Marshal(entity.Aliases)
	if err != nil {
		return helper.NewError("marshal aliases", err)
	}
	history, err := json.Marshal(entity.SentimentHistory)
	if err != nil {
		return helper.NewError("marshal sentiment history", err)
	}

	_, err = h.db.Instance.ExecContext(ctx, `
		INSERT INTO entities (id, entity_type, canonical_value, aliases, mention_count, confidence, first_seen, last_seen, sentiment_history, attributes)
		VALUES ($1, $2, $3, COALESCE($4::jsonb, '[]'::jsonb), $5, $6, $7, $8, COALESCE($9::jsonb, '[]'::jsonb), COALESCE($10::jsonb, '{}'::jsonb))
		ON CONFLICT (id) DO UPDATE SET
			aliases = (
				SELECT COALESCE(jsonb_agg(DISTINCT a), '[]'::jsonb)
				FROM jsonb_array_elements(entities.aliases || EXCLUDED.aliases) AS a
			),
			confidence = CASE WHEN entities.mention_count + EXCLUDED.mention_count > 0
				THEN (entities.confidence * entities.mention_count + EXCLUDED.confidence * EXCLUDED.mention_count)
					/ (entities.mention_count + EXCLUDED.mention_count)
				ELSE entities.confidence END,
			mention_count = entities.mention_count + EXCLUDED.mention_count,
			first_seen = LEAST(entities.first_seen, EXCLUDED.first_seen),
			last_seen = GREATEST(entities.last_seen, EXCLUDED.last_seen),
			sentiment_history = entities.sentiment_history || EXCLUDED.sentiment_history,
			attributes = entities.attributes || EXCLUDED.attributes
	`,
		entity.ID,
		string(entity.Type),
		entity.CanonicalValue,
		string(aliases),
		entity.MentionCount,
		entity.Confidence,
		nullTime(entity.FirstSeen),
		nullTime(entity.LastSeen),
		string(history),
		entity.Attributes,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}

	return nil
}

// UpsertSource creates the source once. Repeated upserts only lift the
// denormalized entity counter.
func (h *GraphDBHandler) UpsertSource(ctx context.Context, source *model.Source) error {
	if source == nil || source.ID == "" {
		return helper.NewError("upsert source", fmt.Errorf("%w: source id is empty", helper.ErrValidation))
	}

	participants, err := json.Marshal(source.Participants)
	if err != nil {
		return helper.NewError("marshal participants", err)
	}

	_, err = h.db.Instance.ExecContext(ctx, `
		INSERT INTO sources (id, title, collection, publish_date, duration, participants, metadata, entity_count)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6::jsonb, '[]'::jsonb), COALESCE($7::jsonb, '{}'::jsonb), $8)
		ON CONFLICT (id) DO UPDATE SET
			entity_count = GREATEST(sources.entity_count, EXCLUDED.entity_count)
	`,
		source.ID,
		source.Title,
		source.Collection,
		nullTime(source.PublishDate),
		source.Duration,
		string(participants),
		source.Metadata,
		source.EntityCount,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}

	return nil
}

// UpsertRelationship merges the edge on (from, to, type). Count increments
// and the new context appends on repeat observation.
func (h *GraphDBHandler) UpsertRelationship(ctx context.Context, rel *model.Relationship) error {
	if rel == nil || rel.FromID == "" || rel.ToID == "" || rel.Type == "" {
		return helper.NewError("upsert relationship", fmt.Errorf("%w: incomplete relationship", helper.ErrValidation))
	}

	props := rel.Properties
	if props.Count == 0 {
		props.Count = 1
	}
	if props.Context != "" && len(props.Contexts) == 0 {
		props.Contexts = []string{props.Context}
	}
	properties, err := json.Marshal(props)
	if err != nil {
		return helper.NewError("marshal properties", err)
	}

	_, err = h.db.Instance.ExecContext(ctx, `
		INSERT INTO relationships (from_id, to_id, relation_type, properties)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (from_id, to_id, relation_type) DO UPDATE SET
			properties = relationships.properties
				|| jsonb_build_object('count', COALESCE((relationships.properties->>'count')::int, 1) + 1)
				|| CASE WHEN EXCLUDED.properties->>'context' IS NOT NULL AND EXCLUDED.properties->>'context' <> ''
					THEN jsonb_build_object('contexts',
						COALESCE(relationships.properties->'contexts', '[]'::jsonb) || to_jsonb(EXCLUDED.properties->>'context'))
					ELSE '{}'::jsonb END
	`,
		rel.FromID,
		rel.ToID,
		string(rel.Type),
		string(properties),
	)
	if err != nil {
		return helper.NewError("exec", err)
	}

	return nil
}

// FindEntities matches entities by canonical value or alias.
func (h *GraphDBHandler) FindEntities(ctx context.Context, name string, entityType model.EntityType, exact bool) ([]*model.Entity, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil, nil
	}

	match := `LOWER(canonical_value) = $1 OR EXISTS (
		SELECT 1 FROM jsonb_array_elements_text(aliases) AS a WHERE LOWER(a) = $1
	)`
	if !exact {
		needle = "%" + needle + "%"
		match = `LOWER(canonical_value) LIKE $1 OR EXISTS (
			SELECT 1 FROM jsonb_array_elements_text(aliases) AS a WHERE LOWER(a) LIKE $1
		)`
	}

	query := `SELECT id, entity_type, canonical_value, aliases, mention_count, confidence, first_seen, last_seen, sentiment_history, attributes
		FROM entities WHERE (` + match + `)`
	args := []interface{}{needle}
	if entityType != "" {
		query += ` AND entity_type = $2`
		args = append(args, string(entityType))
	}
	query += ` ORDER BY id`

	rows, err := h.db.Instance.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var entities []*model.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return entities, nil
}

func scanEntity(rows *sql.Rows) (*model.Entity, error) {
	entity := &model.Entity{}
	var aliases, history []byte
	var firstSeen, lastSeen sql.NullTime

	err := rows.Scan(
		&entity.ID,
		&entity.Type,
		&entity.CanonicalValue,
		&aliases,
		&entity.MentionCount,
		&entity.Confidence,
		&firstSeen,
		&lastSeen,
		&history,
		&entity.Attributes,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	if err := json.Unmarshal(aliases, &entity.Aliases); err != nil {
		return nil, helper.NewError("unmarshal aliases", err)
	}
	if err := json.Unmarshal(history, &entity.SentimentHistory); err != nil {
		return nil, helper.NewError("unmarshal sentiment history", err)
	}
	entity.FirstSeen = firstSeen.Time
	entity.LastSeen = lastSeen.Time

	return entity, nil
}

// Exists reports whether any entity of the type matches the name, trying
// exact first and falling back to substring.
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

// Neighbors returns entities one hop from the anchor.
func (h *GraphDBHandler) Neighbors(ctx context.Context, entityID string, relation model.RelationType, direction model.Direction) ([]*model.Entity, error) {
	where, args := neighborClause(entityID, relation, direction)

	rows, err := h.db.Instance.QueryContext(ctx, `
		SELECT DISTINCT e.id, e.entity_type, e.canonical_value, e.aliases, e.mention_count, e.confidence, e.first_seen, e.last_seen, e.sentiment_history, e.attributes
		FROM relationships r
		JOIN entities e ON e.id = CASE WHEN r.from_id = $1 THEN r.to_id ELSE r.from_id END
		WHERE `+where+`
		ORDER BY e.id
	`, args...)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var entities []*model.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return entities, nil
}

func neighborClause(anchorID string, relation model.RelationType, direction model.Direction) (string, []interface{}) {
	args := []interface{}{anchorID}

	var where string
	switch direction {
	case model.DirectionOutgoing:
		where = `r.from_id = $1`
	case model.DirectionIncoming:
		where = `r.to_id = $1`
	default:
		where = `(r.from_id = $1 OR r.to_id = $1)`
	}
	if relation != "" {
		where += fmt.Sprintf(` AND r.relation_type = $%d`, len(args)+1)
		args = append(args, string(relation))
	}
	return where, args
}

// RelationshipsBetween returns every edge connecting the two nodes.
func (h *GraphDBHandler) RelationshipsBetween(ctx context.Context, fromID, toID string) ([]*model.Relationship, error) {
	rows, err := h.db.Instance.QueryContext(ctx, `
		SELECT from_id, to_id, relation_type, properties, created_at
		FROM relationships
		WHERE (from_id = $1 AND to_id = $2) OR (from_id = $2 AND to_id = $1)
	`, fromID, toID)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var rels []*model.Relationship
	for rows.Next() {
		rel := &model.Relationship{}
		var properties []byte
		err := rows.Scan(&rel.FromID, &rel.ToID, &rel.Type, &properties, &rel.CreatedAt)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		if err := json.Unmarshal(properties, &rel.Properties); err != nil {
			return nil, helper.NewError("unmarshal properties", err)
		}
		rels = append(rels, rel)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return rels, nil
}

// SourcesOf returns the source ids the entity connects to via the relation.
func (h *GraphDBHandler) SourcesOf(ctx context.Context, entityID string, relation model.RelationType) ([]string, error) {
	query := `
		SELECT DISTINCT s.id
		FROM relationships r
		JOIN sources s ON s.id = r.to_id
		WHERE r.from_id = $1`
	args := []interface{}{entityID}
	if relation != "" {
		query += ` AND r.relation_type = $2`
		args = append(args, string(relation))
	}
	query += ` ORDER BY s.id`

	rows, err := h.db.Instance.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, helper.NewError("scan", err)
		}
		ids = append(ids, id)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return ids, nil
}

// Source fetches one source record.
func (h *GraphDBHandler) Source(ctx context.Context, sourceID string) (*model.Source, error) {
	source := &model.Source{}
	var participants []byte
	var publishDate sql.NullTime

	row := h.db.Instance.QueryRowContext(ctx, `
		SELECT id, title, collection, publish_date, duration, participants, metadata, entity_count
		FROM sources WHERE id = $1
	`, sourceID)

	err := row.Scan(
		&source.ID,
		&source.Title,
		&source.Collection,
		&publishDate,
		&source.Duration,
		&participants,
		&source.Metadata,
		&source.EntityCount,
	)
	if err == sql.ErrNoRows {
		return nil, helper.NewError("select source", fmt.Errorf("%w: source %v", helper.ErrNotFound, sourceID))
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	if err := json.Unmarshal(participants, &source.Participants); err != nil {
		return nil, helper.NewError("unmarshal participants", err)
	}
	source.PublishDate = publishDate.Time

	return source, nil
}

// Query executes a typed structural query.
func (h *GraphDBHandler) Query(ctx context.Context, query *model.StructuralQuery) ([]store.Row, error) {
	if query == nil || len(query.AnchorIDs) == 0 {
		return nil, helper.NewError("structural query", fmt.Errorf("%w: query has no anchors", helper.ErrValidation))
	}

	switch query.Shape {
	case model.ShapeNeighbors:
		return h.queryNeighbors(ctx, query)
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

func (h *GraphDBHandler) queryNeighbors(ctx context.Context, query *model.StructuralQuery) ([]store.Row, error) {
	ids, err := h.neighborIDs(ctx, query.AnchorIDs[0], query.Relation, query.Direction)
	if err != nil {
		return nil, err
	}
	return h.rowsForIDs(ctx, ids, query)
}

// queryIntersection materializes both one-hop neighbor id sets and keeps
// the ids present in both.
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

func (h *GraphDBHandler) neighborIDs(ctx context.Context, anchorID string, relation model.RelationType, direction model.Direction) ([]string, error) {
	where, args := neighborClause(anchorID, relation, direction)

	rows, err := h.db.Instance.QueryContext(ctx, `
		SELECT DISTINCT CASE WHEN r.from_id = $1 THEN r.to_id ELSE r.from_id END AS neighbor
		FROM relationships r
		WHERE `+where+`
		ORDER BY neighbor
	`, args...)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, helper.NewError("scan", err)
		}
		ids = append(ids, id)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return ids, nil
}

func (h *GraphDBHandler) rowsForIDs(ctx context.Context, ids []string, query *model.StructuralQuery) ([]store.Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var out []store.Row

	entityQuery := `SELECT id, canonical_value, entity_type FROM entities WHERE id = ANY($1)`
	args := []interface{}{pq.Array(ids)}
	if query.EntityType != "" {
		entityQuery += ` AND entity_type = $2`
		args = append(args, string(query.EntityType))
	}
	entityQuery += ` ORDER BY id`

	rows, err := h.db.Instance.QueryContext(ctx, entityQuery, args...)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name, entityType string
		if err := rows.Scan(&id, &name, &entityType); err != nil {
			return nil, helper.NewError("scan", err)
		}
		out = append(out, store.Row{"entity_id": id, "entity_name": name, "entity_type": entityType})
	}
	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	sourceQuery := `SELECT id, title, collection, publish_date FROM sources WHERE id = ANY($1)`
	sourceArgs := []interface{}{pq.Array(ids)}
	if query.Collection != "" {
		sourceQuery += fmt.Sprintf(` AND LOWER(collection) = LOWER($%d)`, len(sourceArgs)+1)
		sourceArgs = append(sourceArgs, query.Collection)
	}
	if !query.DateFrom.IsZero() {
		sourceQuery += fmt.Sprintf(` AND publish_date >= $%d`, len(sourceArgs)+1)
		sourceArgs = append(sourceArgs, query.DateFrom)
	}
	if !query.DateTo.IsZero() {
		sourceQuery += fmt.Sprintf(` AND publish_date <= $%d`, len(sourceArgs)+1)
		sourceArgs = append(sourceArgs, query.DateTo)
	}
	sourceQuery += ` ORDER BY id`

	sourceRows, err := h.db.Instance.QueryContext(ctx, sourceQuery, sourceArgs...)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer sourceRows.Close()

	for sourceRows.Next() {
		var id, title, collection string
		var publishDate sql.NullTime
		if err := sourceRows.Scan(&id, &title, &collection, &publishDate); err != nil {
			return nil, helper.NewError("scan", err)
		}
		out = append(out, store.Row{"source_id": id, "title": title, "collection": collection, "date": publishDate.Time})
	}
	if err := sourceRows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func (h *GraphDBHandler) queryTimeline(ctx context.Context, query *model.StructuralQuery, firstOnly bool) ([]store.Row, error) {
	sqlQuery := `
		SELECT s.id, s.title, s.publish_date,
			COALESCE((r.properties->>'offset')::double precision, 0),
			COALESCE(r.properties->>'sentiment', ''),
			COALESCE(r.properties->>'context', '')
		FROM relationships r
		JOIN sources s ON s.id = r.to_id
		WHERE r.from_id = $1`
	args := []interface{}{query.AnchorIDs[0]}
	if query.Relation != "" {
		sqlQuery += fmt.Sprintf(` AND r.relation_type = $%d`, len(args)+1)
		args = append(args, string(query.Relation))
	}
	if query.Collection != "" {
		sqlQuery += fmt.Sprintf(` AND LOWER(s.collection) = LOWER($%d)`, len(args)+1)
		args = append(args, query.Collection)
	}
	if !query.DateFrom.IsZero() {
		sqlQuery += fmt.Sprintf(` AND s.publish_date >= $%d`, len(args)+1)
		args = append(args, query.DateFrom)
	}
	if !query.DateTo.IsZero() {
		sqlQuery += fmt.Sprintf(` AND s.publish_date <= $%d`, len(args)+1)
		args = append(args, query.DateTo)
	}
	sqlQuery += ` ORDER BY s.publish_date, (r.properties->>'offset')::double precision NULLS FIRST`

	limit := query.Limit
	if firstOnly {
		limit = 1
	}
	if limit > 0 {
		sqlQuery += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}

	rows, err := h.db.Instance.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var out []store.Row
	for rows.Next() {
		var id, title, sentiment, context string
		var offset float64
		var publishDate sql.NullTime
		if err := rows.Scan(&id, &title, &publishDate, &offset, &sentiment, &context); err != nil {
			return nil, helper.NewError("scan", err)
		}
		out = append(out, store.Row{
			"source_id": id,
			"title":     title,
			"date":      publishDate.Time,
			"offset":    offset,
			"sentiment": sentiment,
			"context":   context,
		})
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return out, nil
}

// Stats counts nodes and relationships by type.
func (h *GraphDBHandler) Stats(ctx context.Context) (map[string]int, error) {
	stats := map[string]int{}

	row := h.db.Instance.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`)
	var sources int
	if err := row.Scan(&sources); err != nil {
		return nil, helper.NewError("scan", err)
	}
	stats["sources"] = sources

	row = h.db.Instance.QueryRowContext(ctx, `SELECT COUNT(*) FROM relationships`)
	var rels int
	if err := row.Scan(&rels); err != nil {
		return nil, helper.NewError("scan", err)
	}
	stats["relationships"] = rels

	rows, err := h.db.Instance.QueryContext(ctx, `SELECT entity_type, COUNT(*) FROM entities GROUP BY entity_type`)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entityType string
		var count int
		if err := rows.Scan(&entityType, &count); err != nil {
			return nil, helper.NewError("scan", err)
		}
		stats["entities_"+entityType] = count
		stats["entities"] += count
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return stats, nil
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
