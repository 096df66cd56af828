package resolver

import (
	"log/slog"
	"testing"

	"github.com/siherrmann/veritas/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver() *Resolver {
	return NewResolver(DefaultConfig(), slog.New(slog.DiscardHandler))
}

func TestNormalize(t *testing.T) {
	t.Run("Lowercases and trims", func(t *testing.T) {
		assert.Equal(t, "atomic habits", Normalize("  Atomic Habits  "))
	})

	t.Run("Strips a leading determiner", func(t *testing.T) {
		assert.Equal(t, "lean startup", Normalize("The Lean Startup"))
		assert.Equal(t, "great book", Normalize("a Great Book"))
	})

	t.Run("Strips trailing punctuation", func(t *testing.T) {
		assert.Equal(t, "atomic habits", Normalize("Atomic Habits!."))
	})

	t.Run("Collapses internal whitespace", func(t *testing.T) {
		assert.Equal(t, "james clear", Normalize("James   Clear"))
	})

	t.Run("Only the first determiner is stripped", func(t *testing.T) {
		assert.Equal(t, "a b c", Normalize("the a b c"))
	})
}

func TestJaroWinkler(t *testing.T) {
	t.Run("Exact match scores one", func(t *testing.T) {
		assert.Equal(t, 1.0, jaroWinkler("atomic habits", "atomic habits"))
	})

	t.Run("Near spellings score above the merge threshold", func(t *testing.T) {
		assert.GreaterOrEqual(t, jaroWinkler("atomic habits", "atomic habit"), 0.92)
	})

	t.Run("Unrelated strings score low", func(t *testing.T) {
		assert.Less(t, jaroWinkler("atomic habits", "deep work"), 0.5)
	})

	t.Run("Empty strings score zero", func(t *testing.T) {
		assert.Equal(t, 0.0, jaroWinkler("", "anything"))
	})
}

func TestResolverResolve(t *testing.T) {
	t.Run("Different spellings of one work resolve to a single entity", func(t *testing.T) {
		mentions := []*model.Mention{
			{EntityType: model.EntityTypeCreativeWork, RawValue: "Atomic Habits", SourceID: "ep-001", Confidence: 0.9},
			{EntityType: model.EntityTypeCreativeWork, RawValue: "atomic habits", SourceID: "ep-001", Confidence: 0.8},
			{EntityType: model.EntityTypeCreativeWork, RawValue: "The Atomic Habits book", SourceID: "ep-002", Confidence: 0.7},
			{EntityType: model.EntityTypeCreativeWork, RawValue: "ATOMIC HABITS", SourceID: "ep-003", Confidence: 0.85},
		}

		resolution, err := newTestResolver().Resolve(mentions)
		require.NoError(t, err)

		// "atomic habits book" is close enough to merge with the exact spellings.
		require.Len(t, resolution.Entities, 1)
		assert.Equal(t, "creative_work_atomic_habits", resolution.Entities[0].ID)
		assert.Equal(t, 4, resolution.Entities[0].MentionCount)
	})

	t.Run("Entity ids are deterministic across runs", func(t *testing.T) {
		mentions := func() []*model.Mention {
			return []*model.Mention{
				{EntityType: model.EntityTypePerson, RawValue: "James Clear", SourceID: "ep-001", Confidence: 0.9},
				{EntityType: model.EntityTypeTopic, RawValue: "habit formation", SourceID: "ep-001", Confidence: 0.8},
			}
		}

		first, err := newTestResolver().Resolve(mentions())
		require.NoError(t, err)
		second, err := newTestResolver().Resolve(mentions())
		require.NoError(t, err)

		require.Len(t, first.Entities, 2)
		require.Len(t, second.Entities, 2)
		for i := range first.Entities {
			assert.Equal(t, first.Entities[i].ID, second.Entities[i].ID)
			assert.Equal(t, first.Entities[i].Confidence, second.Entities[i].Confidence)
		}
	})

	t.Run("Same value with different types stays separate", func(t *testing.T) {
		mentions := []*model.Mention{
			{EntityType: model.EntityTypePerson, RawValue: "Tesla", SourceID: "ep-001", Confidence: 0.9},
			{EntityType: model.EntityTypeOrganization, RawValue: "Tesla", SourceID: "ep-001", Confidence: 0.9},
		}

		resolution, err := newTestResolver().Resolve(mentions)
		require.NoError(t, err)
		assert.Len(t, resolution.Entities, 2)
	})

	t.Run("Every accepted mention maps to an entity", func(t *testing.T) {
		mentions := []*model.Mention{
			{EntityType: model.EntityTypePerson, RawValue: "Jane Doe", SourceID: "ep-001", Confidence: 0.9},
			{EntityType: model.EntityTypePerson, RawValue: "jane doe", SourceID: "ep-002", Confidence: 0.8},
			{EntityType: model.EntityTypeTopic, RawValue: "productivity", SourceID: "ep-001", Confidence: 0.7},
		}

		resolution, err := newTestResolver().Resolve(mentions)
		require.NoError(t, err)

		assert.Len(t, resolution.MentionEntity, 3, "Expected every mention to be mapped")
		total := 0
		for _, entity := range resolution.Entities {
			total += entity.MentionCount
		}
		assert.Equal(t, 3, total, "Expected mention counts to cover all accepted mentions")
	})

	t.Run("Low confidence mentions are skipped", func(t *testing.T) {
		mentions := []*model.Mention{
			{EntityType: model.EntityTypePerson, RawValue: "Jane Doe", SourceID: "ep-001", Confidence: 0.9},
			{EntityType: model.EntityTypePerson, RawValue: "maybe someone", SourceID: "ep-001", Confidence: 0.2},
			{EntityType: model.EntityTypePerson, RawValue: "", SourceID: "ep-001", Confidence: 0.9},
		}

		resolution, err := newTestResolver().Resolve(mentions)
		require.NoError(t, err)
		assert.Len(t, resolution.Entities, 1)
		assert.Equal(t, 2, resolution.SkippedMentions)
	})

	t.Run("Aggregate confidence averages the mention confidences", func(t *testing.T) {
		resolution, err := newTestResolver().Resolve([]*model.Mention{
			{EntityType: model.EntityTypeTopic, RawValue: "deep work", SourceID: "ep-001", Confidence: 0.9},
			{EntityType: model.EntityTypeTopic, RawValue: "deep work", SourceID: "ep-001", Confidence: 0.5},
		})
		require.NoError(t, err)
		require.Len(t, resolution.Entities, 1)
		assert.InDelta(t, 0.7, resolution.Entities[0].Confidence, 0.001, "Expected the average, not the maximum")
	})

	t.Run("Corroboration across sources raises confidence", func(t *testing.T) {
		single, err := newTestResolver().Resolve([]*model.Mention{
			{EntityType: model.EntityTypeTopic, RawValue: "stoicism", SourceID: "ep-001", Confidence: 0.8},
		})
		require.NoError(t, err)

		corroborated, err := newTestResolver().Resolve([]*model.Mention{
			{EntityType: model.EntityTypeTopic, RawValue: "stoicism", SourceID: "ep-001", Confidence: 0.8},
			{EntityType: model.EntityTypeTopic, RawValue: "stoicism", SourceID: "ep-002", Confidence: 0.8},
			{EntityType: model.EntityTypeTopic, RawValue: "stoicism", SourceID: "ep-003", Confidence: 0.8},
		})
		require.NoError(t, err)

		assert.InDelta(t, 0.8, single.Entities[0].Confidence, 0.001)
		assert.InDelta(t, 0.9, corroborated.Entities[0].Confidence, 0.001)
	})

	t.Run("Confidence never exceeds one", func(t *testing.T) {
		mentions := make([]*model.Mention, 0, 10)
		for i := 0; i < 10; i++ {
			mentions = append(mentions, &model.Mention{
				EntityType: model.EntityTypeTopic,
				RawValue:   "meditation",
				SourceID:   string(rune('a' + i)),
				Confidence: 0.99,
			})
		}

		resolution, err := newTestResolver().Resolve(mentions)
		require.NoError(t, err)
		assert.Equal(t, 1.0, resolution.Entities[0].Confidence)
	})

	t.Run("Majority spelling wins the canonical value", func(t *testing.T) {
		mentions := []*model.Mention{
			{EntityType: model.EntityTypePerson, RawValue: "James Clear", SourceID: "ep-001", Confidence: 0.7},
			{EntityType: model.EntityTypePerson, RawValue: "James Clear", SourceID: "ep-002", Confidence: 0.7},
			{EntityType: model.EntityTypePerson, RawValue: "james clear", SourceID: "ep-003", Confidence: 0.99},
		}

		resolution, err := newTestResolver().Resolve(mentions)
		require.NoError(t, err)
		require.Len(t, resolution.Entities, 1)
		assert.Equal(t, "James Clear", resolution.Entities[0].CanonicalValue)
		assert.ElementsMatch(t, []string{"James Clear", "james clear"}, resolution.Entities[0].Aliases)
	})

	t.Run("Sponsor reads do not pick the canonical spelling", func(t *testing.T) {
		mentions := []*model.Mention{
			{EntityType: model.EntityTypeProduct, RawValue: "ACME PRODUCT", SourceID: "ep-001", Confidence: 0.99, SponsorContent: true},
			{EntityType: model.EntityTypeProduct, RawValue: "ACME PRODUCT", SourceID: "ep-001", Confidence: 0.99, SponsorContent: true},
			{EntityType: model.EntityTypeProduct, RawValue: "Acme Product", SourceID: "ep-002", Confidence: 0.8},
		}

		resolution, err := newTestResolver().Resolve(mentions)
		require.NoError(t, err)
		require.Len(t, resolution.Entities, 1)
		assert.Equal(t, "Acme Product", resolution.Entities[0].CanonicalValue, "Expected the organic spelling to win over the sponsor read")
		assert.Equal(t, 3, resolution.Entities[0].MentionCount, "Expected sponsor mentions to stay in the group")
		assert.ElementsMatch(t, []string{"ACME PRODUCT", "Acme Product"}, resolution.Entities[0].Aliases)
		assert.InDelta(t, 0.85, resolution.Entities[0].Confidence, 0.001, "Expected sponsor confidences to be excluded from the average")
	})

	t.Run("An entity seen only in sponsor reads still resolves", func(t *testing.T) {
		resolution, err := newTestResolver().Resolve([]*model.Mention{
			{EntityType: model.EntityTypeProduct, RawValue: "MattressCo", SourceID: "ep-001", Confidence: 0.9, SponsorContent: true},
		})
		require.NoError(t, err)
		require.Len(t, resolution.Entities, 1)
		assert.Equal(t, "MattressCo", resolution.Entities[0].CanonicalValue)
		assert.InDelta(t, 0.9, resolution.Entities[0].Confidence, 0.001)
	})

	t.Run("Equal confidence and offset fall back to the spelling", func(t *testing.T) {
		mentions := []*model.Mention{
			{EntityType: model.EntityTypePerson, RawValue: "james clear", SourceID: "ep-001", Offset: 10, Confidence: 0.7},
			{EntityType: model.EntityTypePerson, RawValue: "James Clear", SourceID: "ep-002", Offset: 10, Confidence: 0.7},
		}

		resolution, err := newTestResolver().Resolve(mentions)
		require.NoError(t, err)
		require.Len(t, resolution.Entities, 1)
		assert.Equal(t, "James Clear", resolution.Entities[0].CanonicalValue)
	})

	t.Run("Re-resolving canonical output converges", func(t *testing.T) {
		first, err := newTestResolver().Resolve([]*model.Mention{
			{EntityType: model.EntityTypeCreativeWork, RawValue: "Atomic Habits", SourceID: "ep-001", Confidence: 0.9},
			{EntityType: model.EntityTypeCreativeWork, RawValue: "atomic habits", SourceID: "ep-002", Confidence: 0.8},
		})
		require.NoError(t, err)
		require.Len(t, first.Entities, 1)

		second, err := newTestResolver().Resolve([]*model.Mention{
			{EntityType: first.Entities[0].Type, RawValue: first.Entities[0].CanonicalValue, SourceID: "ep-001", Confidence: first.Entities[0].Confidence},
		})
		require.NoError(t, err)
		require.Len(t, second.Entities, 1)
		assert.Equal(t, first.Entities[0].ID, second.Entities[0].ID)
		assert.Equal(t, first.Entities[0].CanonicalValue, second.Entities[0].CanonicalValue)
	})

	t.Run("Resolving nothing is an error", func(t *testing.T) {
		_, err := newTestResolver().Resolve(nil)
		assert.Error(t, err)
	})
}
