package ingest

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/siherrmann/veritas/model"
)

// ExtractionCache memoizes mention extraction by span content hash. The
// first tier is an in-process LRU, the second an optional directory of
// JSON files keyed by the same hash. Reads promote disk hits into memory,
// writes populate both tiers.
type ExtractionCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	items    map[string]*list.Element
	dir      string
}

type cacheEntry struct {
	key      string
	mentions []*model.Mention
}

// NewExtractionCache creates a cache holding up to capacity entries in
// memory. An empty dir disables the disk tier.
func NewExtractionCache(capacity int, dir string) *ExtractionCache {
	if capacity < 1 {
		capacity = 1
	}
	return &ExtractionCache{
		capacity: capacity,
		order:    list.New(),
		items:    map[string]*list.Element{},
		dir:      dir,
	}
}

// Key derives the cache key for a span's text within a source. Keys are
// scoped to the source so cached provenance never leaks across sources
// that happen to share span text.
func (c *ExtractionCache) Key(sourceID, text string) string {
	sum := sha256.Sum256([]byte(sourceID + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached mentions for the key, checking memory before
// disk. A disk hit is promoted into the memory tier.
func (c *ExtractionCache) Get(key string) ([]*model.Mention, bool) {
	c.mu.Lock()
	if element, ok := c.items[key]; ok {
		c.order.MoveToFront(element)
		mentions := element.Value.(*cacheEntry).mentions
		c.mu.Unlock()
		return mentions, true
	}
	c.mu.Unlock()

	if c.dir == "" {
		return nil, false
	}
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}
	var mentions []*model.Mention
	if err := json.Unmarshal(data, &mentions); err != nil {
		return nil, false
	}

	c.mu.Lock()
	c.insert(key, mentions)
	c.mu.Unlock()
	return mentions, true
}

// Put stores the mentions in both tiers. Disk failures are ignored, the
// cache is an optimization, never a source of truth.
func (c *ExtractionCache) Put(key string, mentions []*model.Mention) {
	c.mu.Lock()
	c.insert(key, mentions)
	c.mu.Unlock()

	if c.dir == "" {
		return
	}
	if data, err := json.Marshal(mentions); err == nil {
		if err := os.MkdirAll(c.dir, 0o755); err == nil {
			_ = os.WriteFile(c.path(key), data, 0o644)
		}
	}
}

// Len returns the number of entries in the memory tier.
func (c *ExtractionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *ExtractionCache) insert(key string, mentions []*model.Mention) {
	if element, ok := c.items[key]; ok {
		element.Value.(*cacheEntry).mentions = mentions
		c.order.MoveToFront(element)
		return
	}
	c.items[key] = c.order.PushFront(&cacheEntry{key: key, mentions: mentions})
	for len(c.items) > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

func (c *ExtractionCache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}
