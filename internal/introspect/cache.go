package introspect

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache memoizes introspection results for the life of the process. The
// underlying schema is assumed static, so entries are never evicted.
type Cache struct {
	entries sync.Map
	group   singleflight.Group
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{}
}

// Get returns the cached value for key, computing it once on first use.
// Concurrent first callers share a single computation; failures are not cached.
func (c *Cache) Get(key string, compute func() (interface{}, error)) (interface{}, error) {
	if v, ok := c.entries.Load(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.entries.Load(key); ok {
			return v, nil
		}
		v, err := compute()
		if err != nil {
			return nil, err
		}
		actual, _ := c.entries.LoadOrStore(key, v)
		return actual, nil
	})
	return v, err
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
