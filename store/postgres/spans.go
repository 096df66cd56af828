package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/veritas/helper"
	"github.com/siherrmann/veritas/model"
	"github.com/siherrmann/veritas/store"
)

// SpansDBHandlerFunctions defines the interface for span database operations.
type SpansDBHandlerFunctions interface {
	store.VectorStore
}

// SpansDBHandler implements store.VectorStore on Postgres with pgvector.
type SpansDBHandler struct {
	db         *helper.Database
	dimensions int
}

// NewSpansDBHandler creates a new spans database handler. The dimensions
// are fixed per index; every upserted embedding must match them.
func NewSpansDBHandler(db *helper.Database, dimensions int) (*SpansDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if dimensions <= 0 {
		return nil, helper.NewError("dimensions validation", fmt.Errorf("%w: embedding dimensions must be positive", helper.ErrValidation))
	}

	handler := &SpansDBHandler{db: db, dimensions: dimensions}
	if err := handler.CreateTable(); err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized SpansDBHandler")

	return handler, nil
}

// CreateTable enables the vector extension and creates the spans table.
func (h *SpansDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS spans (
			id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL,
			collection TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			span_offset DOUBLE PRECISION NOT NULL DEFAULT 0,
			end_offset DOUBLE PRECISION NOT NULL DEFAULT 0,
			speaker TEXT NOT NULL DEFAULT '',
			entity_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
			publish_date TIMESTAMPTZ,
			sponsor BOOLEAN NOT NULL DEFAULT FALSE,
			embedding vector(%d) NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb
		);
		CREATE INDEX IF NOT EXISTS idx_spans_source ON spans (source_id);
		CREATE INDEX IF NOT EXISTS idx_spans_collection ON spans (collection);
	`, h.dimensions))
	if err != nil {
		return helper.NewError("exec", err)
	}

	h.db.Logger.Info("Checked/created table spans")

	return nil
}

// UpsertSpan stores the embedded span, replacing any span with the same id.
func (h *SpansDBHandler) UpsertSpan(ctx context.Context, span *model.Span) error {
	if span == nil || span.ID == "" || len(span.Embedding) == 0 {
		return helper.NewError("upsert span", fmt.Errorf("%w: span needs id and embedding", helper.ErrValidation))
	}
	if len(span.Embedding) != h.dimensions {
		return helper.NewError("upsert span", fmt.Errorf("%w: embedding has %v dimensions, index expects %v", helper.ErrValidation, len(span.Embedding), h.dimensions))
	}

	entityIDs, err := json.Marshal(span.EntityIDs)
	if err != nil {
		return helper.NewError("marshal entity ids", err)
	}

	_, err = h.db.Instance.ExecContext(ctx, `
		INSERT INTO spans (id, source_id, collection, content, span_offset, end_offset, speaker, entity_ids, publish_date, sponsor, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8::jsonb, '[]'::jsonb), $9, $10, $11, COALESCE($12::jsonb, '{}'::jsonb))
		ON CONFLICT (id) DO UPDATE SET
			source_id = EXCLUDED.source_id,
			collection = EXCLUDED.collection,
			content = EXCLUDED.content,
			span_offset = EXCLUDED.span_offset,
			end_offset = EXCLUDED.end_offset,
			speaker = EXCLUDED.speaker,
			entity_ids = EXCLUDED.entity_ids,
			publish_date = EXCLUDED.publish_date,
			sponsor = EXCLUDED.sponsor,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata
	`,
		span.ID,
		span.SourceID,
		span.Collection,
		span.Text,
		span.Offset,
		span.EndOffset,
		span.Speaker,
		string(entityIDs),
		nullTime(span.PublishDate),
		span.Sponsor,
		pgvector.NewVector(span.Embedding),
		span.Metadata,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}

	return nil
}

// Search ranks spans by cosine similarity. The filter narrows the candidate
// set inside the query, before ranking.
func (h *SpansDBHandler) Search(ctx context.Context, embedding []float32, topK int, filter *store.SpanFilter) ([]*store.SpanMatch, error) {
	if len(embedding) == 0 {
		return nil, helper.NewError("vector search", fmt.Errorf("%w: empty query embedding", helper.ErrValidation))
	}

	query := `
		SELECT id, source_id, collection, content, span_offset, end_offset, speaker, entity_ids, publish_date, sponsor, metadata,
			1 - (embedding <=> $1) AS similarity
		FROM spans
		WHERE TRUE`
	args := []interface{}{pgvector.NewVector(embedding)}

	if filter != nil {
		if filter.Collection != "" {
			query += fmt.Sprintf(` AND LOWER(collection) = LOWER($%d)`, len(args)+1)
			args = append(args, filter.Collection)
		}
		if filter.Speaker != "" {
			query += fmt.Sprintf(` AND LOWER(speaker) = LOWER($%d)`, len(args)+1)
			args = append(args, filter.Speaker)
		}
		if len(filter.SourceIDs) > 0 {
			query += fmt.Sprintf(` AND source_id = ANY($%d)`, len(args)+1)
			args = append(args, pq.Array(filter.SourceIDs))
		}
		if len(filter.EntityIDs) > 0 {
			query += fmt.Sprintf(` AND entity_ids ?| $%d`, len(args)+1)
			args = append(args, pq.Array(filter.EntityIDs))
		}
		if !filter.DateFrom.IsZero() {
			query += fmt.Sprintf(` AND publish_date >= $%d`, len(args)+1)
			args = append(args, filter.DateFrom)
		}
		if !filter.DateTo.IsZero() {
			query += fmt.Sprintf(` AND publish_date <= $%d`, len(args)+1)
			args = append(args, filter.DateTo)
		}
	}

	query += ` ORDER BY embedding <=> $1`
	if topK > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, topK)
	}

	rows, err := h.db.Instance.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var matches []*store.SpanMatch
	for rows.Next() {
		span := &model.Span{}
		var entityIDs []byte
		var publishDate sql.NullTime
		var similarity float64

		err := rows.Scan(
			&span.ID,
			&span.SourceID,
			&span.Collection,
			&span.Text,
			&span.Offset,
			&span.EndOffset,
			&span.Speaker,
			&entityIDs,
			&publishDate,
			&span.Sponsor,
			&span.Metadata,
			&similarity,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		if err := json.Unmarshal(entityIDs, &span.EntityIDs); err != nil {
			return nil, helper.NewError("unmarshal entity ids", err)
		}
		span.PublishDate = publishDate.Time

		matches = append(matches, &store.SpanMatch{Span: span, Similarity: similarity})
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return matches, nil
}
