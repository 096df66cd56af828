package llm

import (
	"context"
	"testing"

	"github.com/siherrmann/veritas/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripJSONFences(t *testing.T) {
	t.Run("Removes a json fence", func(t *testing.T) {
		assert.Equal(t, `{"a": 1}`, StripJSONFences("```json\n{\"a\": 1}\n```"))
	})

	t.Run("Removes a bare fence", func(t *testing.T) {
		assert.Equal(t, `[]`, StripJSONFences("```\n[]\n```"))
	})

	t.Run("Leaves plain json alone", func(t *testing.T) {
		assert.Equal(t, `{"a": 1}`, StripJSONFences(`{"a": 1}`))
	})
}

func TestNerEntityType(t *testing.T) {
	t.Run("Strips BIO prefixes and maps labels", func(t *testing.T) {
		assert.Equal(t, model.EntityTypePerson, nerEntityType("B-PER"))
		assert.Equal(t, model.EntityTypeOrganization, nerEntityType("I-ORG"))
		assert.Equal(t, model.EntityTypePlace, nerEntityType("B-LOC"))
		assert.Equal(t, model.EntityTypeOther, nerEntityType("MISC"))
	})
}

func TestFakeEmbed(t *testing.T) {
	ctx := context.Background()
	fake := NewFake()

	t.Run("Identical texts embed identically", func(t *testing.T) {
		a, err := fake.Embed(ctx, "habit stacking works")
		require.NoError(t, err)
		b, err := fake.Embed(ctx, "habit stacking works")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("Overlapping texts score higher than disjoint texts", func(t *testing.T) {
		query, err := fake.Embed(ctx, "atomic habits book")
		require.NoError(t, err)
		related, err := fake.Embed(ctx, "the atomic habits book is great")
		require.NoError(t, err)
		unrelated, err := fake.Embed(ctx, "quarterly revenue numbers dropped")
		require.NoError(t, err)

		assert.Greater(t, dot(query, related), dot(query, unrelated))
	})

	t.Run("Embeddings are unit length", func(t *testing.T) {
		v, err := fake.Embed(ctx, "some text")
		require.NoError(t, err)
		assert.InDelta(t, 1.0, dot(v, v), 0.001)
	})
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
