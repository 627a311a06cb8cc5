package depcheck

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Sumatoshi-tech/monokit/pkg/importparse"
)

// DefaultParseCacheSize is the number of files a ParseCache remembers.
const DefaultParseCacheSize = 4096

type cacheKey struct {
	path    string
	size    int64
	modTime int64
}

// ParseCache remembers the imports of files keyed by path, size and
// modification time, so long-lived processes skip unchanged files.
// It is safe for concurrent use.
type ParseCache struct {
	entries *lru.Cache[cacheKey, []importparse.Record]
}

// NewParseCache creates a cache holding up to size files.
func NewParseCache(size int) (*ParseCache, error) {
	if size <= 0 {
		size = DefaultParseCacheSize
	}

	entries, err := lru.New[cacheKey, []importparse.Record](size)
	if err != nil {
		return nil, fmt.Errorf("create parse cache: %w", err)
	}

	return &ParseCache{entries: entries}, nil
}

// Len returns the number of cached files.
func (c *ParseCache) Len() int {
	return c.entries.Len()
}

// Purge drops every entry.
func (c *ParseCache) Purge() {
	c.entries.Purge()
}

func (c *ParseCache) get(key cacheKey) ([]importparse.Record, bool) {
	return c.entries.Get(key)
}

func (c *ParseCache) add(key cacheKey, records []importparse.Record) {
	c.entries.Add(key, records)
}
