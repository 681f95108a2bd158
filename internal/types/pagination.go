package types

import (
	"context"
	"strings"
	"sync"

	"github.com/graphql-go/graphql"
)

// Pagination describes where a page sits in a list result
type Pagination struct {
	TotalCount      int  `json:"totalCount"`
	Page            int  `json:"page"`
	NumPages        int  `json:"numPages"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

// Paginate derives page data from a total count and skip/take arguments.
// Without a positive take the whole result is a single page.
func Paginate(total, skip, take int) Pagination {
	if skip < 0 {
		skip = 0
	}
	if take <= 0 {
		return Pagination{TotalCount: total, NumPages: 1}
	}

	numPages := (total + take - 1) / take
	page := skip / take
	return Pagination{
		TotalCount:      total,
		Page:            page,
		NumPages:        numPages,
		HasNextPage:     page < numPages-1,
		HasPreviousPage: page > 0,
	}
}

// Collector gathers the pagination of every list field in one request
type Collector struct {
	mu      sync.Mutex
	entries map[string]Pagination
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{entries: make(map[string]Pagination)}
}

// Record stores the pagination of the list at path
func (c *Collector) Record(path string, p Pagination) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = p
}

// Entries returns a copy of everything recorded
func (c *Collector) Entries() map[string]Pagination {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Pagination, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

type collectorKey struct{}

// WithCollector attaches a collector to the request context
func WithCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, collectorKey{}, c)
}

// CollectorFrom returns the request's collector, if any
func CollectorFrom(ctx context.Context) (*Collector, bool) {
	c, ok := ctx.Value(collectorKey{}).(*Collector)
	return c, ok && c != nil
}

// PathString renders a response path such as "users" or "user.posts"
func PathString(path *graphql.ResponsePath) string {
	var parts []string
	for p := path; p != nil; p = p.Prev {
		if key, ok := p.Key.(string); ok {
			parts = append(parts, key)
		}
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

// Depth counts the named fields on a response path
func Depth(path *graphql.ResponsePath) int {
	n := 0
	for p := path; p != nil; p = p.Prev {
		if _, ok := p.Key.(string); ok {
			n++
		}
	}
	return n
}
