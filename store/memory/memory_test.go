package memory

import (
	"context"
	"testing"
	"time"

	"github.com/siherrmann/veritas/helper"
	"github.com/siherrmann/veritas/model"
	"github.com/siherrmann/veritas/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(day int) time.Time {
	return time.Date(2024, time.March, day, 0, 0, 0, 0, time.UTC)
}

func seedGraph(t *testing.T) *GraphStore {
	t.Helper()
	ctx := context.Background()
	g := NewGraphStore()

	entities := []*model.Entity{
		{ID: "person_jane_doe", Type: model.EntityTypePerson, CanonicalValue: "Jane Doe", MentionCount: 2, Confidence: 0.9},
		{ID: "person_alex_roe", Type: model.EntityTypePerson, CanonicalValue: "Alex Roe", MentionCount: 1, Confidence: 0.8},
		{ID: "creative_work_atomic_habits", Type: model.EntityTypeCreativeWork, CanonicalValue: "Atomic Habits", Aliases: []string{"atomic habits"}, MentionCount: 3, Confidence: 0.95},
	}
	for _, e := range entities {
		require.NoError(t, g.UpsertEntity(ctx, e))
	}

	sources := []*model.Source{
		{ID: "ep-001", Title: "Habits Revisited", Collection: "deepwork", PublishDate: date(1)},
		{ID: "ep-002", Title: "Focus and Flow", Collection: "deepwork", PublishDate: date(8)},
		{ID: "ep-101", Title: "Morning Routines", Collection: "health", PublishDate: date(4)},
	}
	for _, s := range sources {
		require.NoError(t, g.UpsertSource(ctx, s))
	}

	rels := []*model.Relationship{
		{FromID: "person_jane_doe", ToID: "ep-001", Type: model.RelationAppearedIn, Properties: model.RelationshipProperties{Offset: 12, Sentiment: model.SentimentPositive}},
		{FromID: "person_jane_doe", ToID: "ep-002", Type: model.RelationAppearedIn, Properties: model.RelationshipProperties{Offset: 30}},
		{FromID: "person_alex_roe", ToID: "ep-002", Type: model.RelationAppearedIn, Properties: model.RelationshipProperties{Offset: 40}},
		{FromID: "person_alex_roe", ToID: "ep-101", Type: model.RelationAppearedIn, Properties: model.RelationshipProperties{Offset: 5}},
		{FromID: "creative_work_atomic_habits", ToID: "ep-001", Type: model.RelationDiscussedIn, Properties: model.RelationshipProperties{Offset: 100, Sentiment: model.SentimentPositive, Context: "habit stacking"}},
		{FromID: "creative_work_atomic_habits", ToID: "ep-101", Type: model.RelationDiscussedIn, Properties: model.RelationshipProperties{Offset: 200, Sentiment: model.SentimentNeutral}},
	}
	for _, r := range rels {
		require.NoError(t, g.UpsertRelationship(ctx, r))
	}
	return g
}

func TestGraphStoreUpserts(t *testing.T) {
	ctx := context.Background()

	t.Run("Entity upsert is an additive merge", func(t *testing.T) {
		g := NewGraphStore()
		first := &model.Entity{
			ID: "person_jane_doe", Type: model.EntityTypePerson, CanonicalValue: "Jane Doe",
			Aliases: []string{"Jane"}, MentionCount: 2, Confidence: 0.8,
			FirstSeen: date(3), LastSeen: date(3),
		}
		second := &model.Entity{
			ID: "person_jane_doe", Type: model.EntityTypePerson, CanonicalValue: "Jane Doe",
			Aliases: []string{"Dr. Doe", "Jane"}, MentionCount: 2, Confidence: 1.0,
			FirstSeen: date(1), LastSeen: date(9),
		}
		require.NoError(t, g.UpsertEntity(ctx, first))
		require.NoError(t, g.UpsertEntity(ctx, second))

		merged, err := g.FindEntities(ctx, "Jane Doe", model.EntityTypePerson, true)
		require.NoError(t, err)
		require.Len(t, merged, 1)
		assert.Equal(t, 4, merged[0].MentionCount)
		assert.ElementsMatch(t, []string{"Jane", "Dr. Doe"}, merged[0].Aliases)
		assert.Equal(t, date(1), merged[0].FirstSeen)
		assert.Equal(t, date(9), merged[0].LastSeen)
		assert.InDelta(t, 0.9, merged[0].Confidence, 0.001)
	})

	t.Run("Repeated relationship upserts accumulate count and contexts", func(t *testing.T) {
		g := NewGraphStore()
		rel := func(context string) *model.Relationship {
			return &model.Relationship{
				FromID: "creative_work_atomic_habits", ToID: "creative_work_deep_work",
				Type:       model.RelationReferences,
				Properties: model.RelationshipProperties{Context: context},
			}
		}
		require.NoError(t, g.UpsertRelationship(ctx, rel("both cover focus")))
		require.NoError(t, g.UpsertRelationship(ctx, rel("mentioned together again")))

		rels, err := g.RelationshipsBetween(ctx, "creative_work_atomic_habits", "creative_work_deep_work")
		require.NoError(t, err)
		require.Len(t, rels, 1, "Expected one merged edge, not duplicates")
		assert.Equal(t, 2, rels[0].Properties.Count)
		assert.Contains(t, rels[0].Properties.Contexts, "mentioned together again")
	})

	t.Run("Rejects entities without an id", func(t *testing.T) {
		g := NewGraphStore()
		err := g.UpsertEntity(ctx, &model.Entity{CanonicalValue: "nobody"})
		assert.ErrorIs(t, err, helper.ErrValidation)
	})
}

func TestGraphStoreLookups(t *testing.T) {
	ctx := context.Background()
	g := seedGraph(t)

	t.Run("Exact find matches canonical value and aliases case-insensitively", func(t *testing.T) {
		byCanonical, err := g.FindEntities(ctx, "atomic habits", model.EntityTypeCreativeWork, true)
		require.NoError(t, err)
		require.Len(t, byCanonical, 1)
		assert.Equal(t, "creative_work_atomic_habits", byCanonical[0].ID)
	})

	t.Run("Substring find returns partial matches", func(t *testing.T) {
		matches, err := g.FindEntities(ctx, "doe", model.EntityTypePerson, false)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "person_jane_doe", matches[0].ID)
	})

	t.Run("Neighbors respects relation and direction", func(t *testing.T) {
		// Entities that appeared in ep-002, reached against the edge direction.
		neighbors, err := g.Neighbors(ctx, "ep-002", model.RelationAppearedIn, model.DirectionIncoming)
		require.NoError(t, err)
		ids := make([]string, 0, len(neighbors))
		for _, n := range neighbors {
			ids = append(ids, n.ID)
		}
		assert.ElementsMatch(t, []string{"person_jane_doe", "person_alex_roe"}, ids)
	})

	t.Run("SourcesOf returns only source ids", func(t *testing.T) {
		sources, err := g.SourcesOf(ctx, "person_jane_doe", model.RelationAppearedIn)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"ep-001", "ep-002"}, sources)
	})

	t.Run("Source lookup fails with not found for unknown ids", func(t *testing.T) {
		_, err := g.Source(ctx, "ep-999")
		assert.ErrorIs(t, err, helper.ErrNotFound)
	})
}

func TestGraphStoreQueryShapes(t *testing.T) {
	ctx := context.Background()
	g := seedGraph(t)

	t.Run("Neighbors shape lists sources an anchor appeared in", func(t *testing.T) {
		rows, err := g.Query(ctx, &model.StructuralQuery{
			Shape:     model.ShapeNeighbors,
			AnchorIDs: []string{"person_jane_doe"},
			Relation:  model.RelationAppearedIn,
			Direction: model.DirectionOutgoing,
		})
		require.NoError(t, err)
		require.Len(t, rows, 2)
	})

	t.Run("Intersection returns only shared neighbors", func(t *testing.T) {
		rows, err := g.Query(ctx, &model.StructuralQuery{
			Shape:     model.ShapeIntersection,
			AnchorIDs: []string{"person_jane_doe", "person_alex_roe"},
			Relation:  model.RelationAppearedIn,
			Direction: model.DirectionOutgoing,
		})
		require.NoError(t, err)
		require.Len(t, rows, 1, "Expected only the shared source")
		assert.Equal(t, "ep-002", rows[0]["source_id"])
	})

	t.Run("Intersection with disjoint anchors is empty", func(t *testing.T) {
		rows, err := g.Query(ctx, &model.StructuralQuery{
			Shape:     model.ShapeIntersection,
			AnchorIDs: []string{"person_jane_doe", "creative_work_atomic_habits"},
			Relation:  model.RelationAppearedIn,
			Direction: model.DirectionOutgoing,
		})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("Timeline orders observations by publish date", func(t *testing.T) {
		rows, err := g.Query(ctx, &model.StructuralQuery{
			Shape:     model.ShapeTimeline,
			AnchorIDs: []string{"creative_work_atomic_habits"},
			Relation:  model.RelationDiscussedIn,
		})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "ep-001", rows[0]["source_id"])
		assert.Equal(t, "ep-101", rows[1]["source_id"])
	})

	t.Run("Timeline honors collection scope", func(t *testing.T) {
		rows, err := g.Query(ctx, &model.StructuralQuery{
			Shape:      model.ShapeTimeline,
			AnchorIDs:  []string{"creative_work_atomic_habits"},
			Relation:   model.RelationDiscussedIn,
			Collection: "health",
		})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "ep-101", rows[0]["source_id"])
	})

	t.Run("First mention returns the earliest observation only", func(t *testing.T) {
		rows, err := g.Query(ctx, &model.StructuralQuery{
			Shape:     model.ShapeFirstMention,
			AnchorIDs: []string{"creative_work_atomic_habits"},
		})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "ep-001", rows[0]["source_id"])
	})

	t.Run("Queries without anchors are rejected", func(t *testing.T) {
		_, err := g.Query(ctx, &model.StructuralQuery{Shape: model.ShapeNeighbors})
		assert.Error(t, err)
	})
}

func TestVectorStoreSearch(t *testing.T) {
	ctx := context.Background()

	spans := []*model.Span{
		{ID: "s1", SourceID: "ep-001", Collection: "deepwork", Text: "habit stacking works", PublishDate: date(1), EntityIDs: []string{"creative_work_atomic_habits"}, Embedding: []float32{1, 0, 0}},
		{ID: "s2", SourceID: "ep-002", Collection: "deepwork", Text: "deep focus sessions", PublishDate: date(8), EntityIDs: []string{"person_jane_doe"}, Embedding: []float32{0.9, 0.1, 0}},
		{ID: "s3", SourceID: "ep-101", Collection: "health", Text: "cold showers every day", PublishDate: date(4), EntityIDs: []string{"person_alex_roe"}, Embedding: []float32{0, 1, 0}},
	}

	newStore := func(t *testing.T) *VectorStore {
		v := NewVectorStore()
		for _, s := range spans {
			require.NoError(t, v.UpsertSpan(ctx, s))
		}
		return v
	}

	t.Run("Ranks by cosine similarity", func(t *testing.T) {
		v := newStore(t)
		matches, err := v.Search(ctx, []float32{1, 0, 0}, 2, nil)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "s1", matches[0].Span.ID)
		assert.InDelta(t, 1.0, matches[0].Similarity, 0.001)
		assert.Equal(t, "s2", matches[1].Span.ID)
	})

	t.Run("Similarity is invariant to embedding magnitude", func(t *testing.T) {
		v := newStore(t)
		small, err := v.Search(ctx, []float32{0.1, 0, 0}, 1, nil)
		require.NoError(t, err)
		large, err := v.Search(ctx, []float32{100, 0, 0}, 1, nil)
		require.NoError(t, err)
		assert.InDelta(t, small[0].Similarity, large[0].Similarity, 0.0001)
	})

	t.Run("Entity scope excludes higher scoring out-of-scope spans", func(t *testing.T) {
		v := newStore(t)
		matches, err := v.Search(ctx, []float32{1, 0, 0}, 10, &store.SpanFilter{
			EntityIDs: []string{"person_jane_doe"},
		})
		require.NoError(t, err)
		require.Len(t, matches, 1, "Expected s1 to be filtered despite its higher score")
		assert.Equal(t, "s2", matches[0].Span.ID)
	})

	t.Run("Collection and date filters narrow the candidates", func(t *testing.T) {
		v := newStore(t)
		matches, err := v.Search(ctx, []float32{1, 1, 0}, 10, &store.SpanFilter{
			Collection: "deepwork",
			DateFrom:   date(2),
		})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "s2", matches[0].Span.ID)
	})

	t.Run("Upserting the same span id replaces it", func(t *testing.T) {
		v := newStore(t)
		require.NoError(t, v.UpsertSpan(ctx, &model.Span{
			ID: "s1", SourceID: "ep-001", Collection: "deepwork",
			Text: "revised", Embedding: []float32{0, 0, 1},
		}))
		matches, err := v.Search(ctx, []float32{0, 0, 1}, 1, nil)
		require.NoError(t, err)
		assert.Equal(t, "s1", matches[0].Span.ID)
		assert.Equal(t, "revised", matches[0].Span.Text)
	})
}
