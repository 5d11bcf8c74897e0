package schema

import (
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache memoizes compiled schemas by index name and document content, so a
// schema document is parsed and compiled once.
type Cache struct {
	lru *lru.Cache[uint64, *Schema]
}

// DefaultCacheSize is the number of compiled schemas kept by NewCache(0).
const DefaultCacheSize = 128

// NewCache creates a Cache holding up to size schemas.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[uint64, *Schema](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

// Fingerprint identifies a schema document.
func Fingerprint(name string, document []byte) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(name)
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(document)
	return d.Sum64()
}

// Get returns the compiled schema of document, compiling it on a miss.
func (c *Cache) Get(name string, document []byte) (*Schema, error) {
	key := Fingerprint(name, document)
	if s, ok := c.lru.Get(key); ok {
		return s, nil
	}
	b, err := Parse(document)
	if err != nil {
		return nil, err
	}
	s, err := b.Build(name)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, s)
	return s, nil
}

// Len returns the number of cached schemas.
func (c *Cache) Len() int { return c.lru.Len() }

// Purge drops every cached schema.
func (c *Cache) Purge() { c.lru.Purge() }
