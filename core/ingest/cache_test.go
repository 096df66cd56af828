package ingest

import (
	"fmt"
	"testing"

	"github.com/siherrmann/veritas/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractionCache(t *testing.T) {
	mentions := []*model.Mention{{EntityType: model.EntityTypePerson, RawValue: "Jane Doe", SourceID: "ep-001", Confidence: 0.9}}

	t.Run("Stores and returns by content hash", func(t *testing.T) {
		cache := NewExtractionCache(4, "")
		key := cache.Key("ep-001", "some span text")
		cache.Put(key, mentions)

		got, ok := cache.Get(key)
		require.True(t, ok)
		assert.Equal(t, "Jane Doe", got[0].RawValue)
	})

	t.Run("Keys are scoped to the source", func(t *testing.T) {
		cache := NewExtractionCache(4, "")
		assert.Equal(t, cache.Key("ep-001", "same text"), cache.Key("ep-001", "same text"))
		assert.NotEqual(t, cache.Key("ep-001", "same text"), cache.Key("ep-002", "same text"), "Expected identical text in another source to key separately")
		assert.NotEqual(t, cache.Key("ep-001", "same text"), cache.Key("ep-001", "other text"))
	})

	t.Run("Evicts the least recently used entry", func(t *testing.T) {
		cache := NewExtractionCache(2, "")
		for i := 0; i < 3; i++ {
			cache.Put(cache.Key("ep-001", fmt.Sprintf("span %d", i)), mentions)
		}
		assert.Equal(t, 2, cache.Len())

		_, ok := cache.Get(cache.Key("ep-001", "span 0"))
		assert.False(t, ok, "Expected the oldest entry to be evicted")
		_, ok = cache.Get(cache.Key("ep-001", "span 2"))
		assert.True(t, ok)
	})

	t.Run("Reads fall through to disk and promote", func(t *testing.T) {
		dir := t.TempDir()

		writer := NewExtractionCache(4, dir)
		key := writer.Key("ep-001", "persisted span")
		writer.Put(key, mentions)

		// A fresh cache has an empty memory tier but shares the disk tier.
		reader := NewExtractionCache(4, dir)
		got, ok := reader.Get(key)
		require.True(t, ok)
		assert.Equal(t, "Jane Doe", got[0].RawValue)
		assert.Equal(t, 1, reader.Len(), "Expected the disk hit to be promoted into memory")
	})

	t.Run("Missing keys miss both tiers", func(t *testing.T) {
		cache := NewExtractionCache(4, t.TempDir())
		_, ok := cache.Get(cache.Key("ep-001", "never stored"))
		assert.False(t, ok)
	})
}
