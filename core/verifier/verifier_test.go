package verifier

import (
	"context"
	"log/slog"
	"testing"

	"github.com/siherrmann/veritas/core/retrieval"
	"github.com/siherrmann/veritas/llm"
	"github.com/siherrmann/veritas/model"
	"github.com/siherrmann/veritas/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	graph    *memory.GraphStore
	vectors  *memory.VectorStore
	fake     *llm.Fake
	verifier *Verifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	graph := memory.NewGraphStore()
	vectors := memory.NewVectorStore()
	fake := llm.NewFake()

	entities := []*model.Entity{
		{ID: "person_jane_doe", Type: model.EntityTypePerson, CanonicalValue: "Jane Doe", MentionCount: 3, Confidence: 0.9},
		{ID: "person_alex_roe", Type: model.EntityTypePerson, CanonicalValue: "Alex Roe", MentionCount: 2, Confidence: 0.8},
		{ID: "person_sam_lee", Type: model.EntityTypePerson, CanonicalValue: "Sam Lee", MentionCount: 1, Confidence: 0.8},
		{ID: "creative_work_atomic_habits", Type: model.EntityTypeCreativeWork, CanonicalValue: "Atomic Habits", MentionCount: 2, Confidence: 0.9},
	}
	for _, e := range entities {
		require.NoError(t, graph.UpsertEntity(ctx, e))
	}
	require.NoError(t, graph.UpsertSource(ctx, &model.Source{ID: "ep-001", Title: "Habits Revisited", Collection: "test"}))
	require.NoError(t, graph.UpsertSource(ctx, &model.Source{ID: "ep-002", Title: "Another Episode", Collection: "test"}))

	for _, edge := range []*model.Relationship{
		{FromID: "person_jane_doe", ToID: "ep-001", Type: model.RelationAppearedIn, Properties: model.RelationshipProperties{Role: "host"}},
		{FromID: "person_alex_roe", ToID: "ep-001", Type: model.RelationAppearedIn, Properties: model.RelationshipProperties{Role: "guest"}},
		{FromID: "person_sam_lee", ToID: "ep-002", Type: model.RelationAppearedIn, Properties: model.RelationshipProperties{Role: "guest"}},
		{FromID: "creative_work_atomic_habits", ToID: "person_alex_roe", Type: model.RelationRecommendedBy},
	} {
		require.NoError(t, graph.UpsertRelationship(ctx, edge))
	}

	spans := []*model.Span{
		{
			ID: "s1", SourceID: "ep-001", Collection: "test",
			Text:      "Jane Doe interviewed Alex Roe about habits",
			EntityIDs: []string{"person_jane_doe", "person_alex_roe"},
		},
		{
			ID: "s2", SourceID: "ep-002", Collection: "test",
			Text:      "Sam Lee praised Atomic Habits",
			EntityIDs: []string{"person_sam_lee", "creative_work_atomic_habits"},
		},
	}
	for _, span := range spans {
		embedding, err := fake.Embed(ctx, span.Text)
		require.NoError(t, err)
		span.Embedding = embedding
		require.NoError(t, vectors.UpsertSpan(ctx, span))
	}

	retriever := retrieval.NewRetriever(vectors, fake, retrieval.Config{TopK: 5, MinSimilarity: 0}, logger)
	return &fixture{
		graph:    graph,
		vectors:  vectors,
		fake:     fake,
		verifier: NewVerifier(graph, retriever, nil, DefaultConfig(), logger),
	}
}

func TestVerifierVerify(t *testing.T) {
	ctx := context.Background()

	t.Run("Confirmed co-presence with content support is true", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.verifier.Verify(ctx, "Did Jane Doe interview Alex Roe?")
		require.NoError(t, err)
		assert.Equal(t, model.VerdictTrue, result.Verdict)
		assert.True(t, result.StructuralMatch)
		assert.NotEmpty(t, result.Evidence)
		assert.GreaterOrEqual(t, result.Confidence, 0.7)
	})

	t.Run("Unknown subject is false, not undetermined", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.verifier.Verify(ctx, "Did Nobody Special interview Alex Roe?")
		require.NoError(t, err)
		assert.Equal(t, model.VerdictFalse, result.Verdict)
		assert.Contains(t, result.Reason, "Nobody Special")
	})

	t.Run("Known entities without a connection are false", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.verifier.Verify(ctx, "Did Jane Doe interview Sam Lee?")
		require.NoError(t, err)
		assert.Equal(t, model.VerdictFalse, result.Verdict)
		assert.False(t, result.StructuralMatch)
	})

	t.Run("Direct recommendation edge confirms the claim", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.verifier.Verify(ctx, "Did Alex Roe recommend Atomic Habits?")
		require.NoError(t, err)
		assert.Equal(t, model.VerdictTrue, result.Verdict)
		assert.True(t, result.StructuralMatch)
	})

	t.Run("Content support without a graph edge stays undetermined", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.verifier.Verify(ctx, "Did Sam Lee recommend Atomic Habits?")
		require.NoError(t, err)
		assert.Equal(t, model.VerdictUndetermined, result.Verdict)
		assert.False(t, result.StructuralMatch)
		assert.NotEmpty(t, result.Evidence, "Expected the supporting span to be reported as evidence")
		assert.InDelta(t, 0.4, result.Confidence, 0.001)
	})

	t.Run("A true verdict always names its reason", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.verifier.Verify(ctx, "Did Jane Doe interview Alex Roe?")
		require.NoError(t, err)
		assert.NotEmpty(t, result.Reason)
	})

	t.Run("Empty claims are rejected", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.verifier.Verify(ctx, "  ")
		assert.Error(t, err)
	})
}

func TestRuleParseClaim(t *testing.T) {
	t.Run("Splits at the predicate verb", func(t *testing.T) {
		claim := ruleParseClaim("Did Jane Doe interview Alex Roe?")
		assert.Equal(t, "Jane Doe", claim.Subject)
		assert.Equal(t, "interview", claim.Predicate)
		assert.Equal(t, "Alex Roe", claim.Object)
	})

	t.Run("Strips claim prefixes", func(t *testing.T) {
		claim := ruleParseClaim("Is it true that Alex Roe recommended Atomic Habits?")
		assert.Equal(t, "Alex Roe", claim.Subject)
		assert.Equal(t, "recommended", claim.Predicate)
		assert.Equal(t, "Atomic Habits", claim.Object)
	})

	t.Run("Keeps the whole text as subject without a verb", func(t *testing.T) {
		claim := ruleParseClaim("Atomic Habits")
		assert.Equal(t, "Atomic Habits", claim.Subject)
		assert.Empty(t, claim.Predicate)
	})
}
