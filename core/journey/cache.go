package journey

import (
	"context"
	"sync"
)

// catalogCache holds the last fetched Catalog until a change invalidates it.
// A fetch that started before an invalidation is returned to its caller but never stored.
type catalogCache struct {
	mu  sync.Mutex
	gen uint64
	cat *Catalog
}

func (c *catalogCache) get(ctx context.Context, load func(context.Context) (Catalog, error)) (Catalog, error) {
	c.mu.Lock()
	if c.cat != nil {
		cat := *c.cat
		c.mu.Unlock()
		return cat, nil
	}
	gen := c.gen
	c.mu.Unlock()

	cat, err := load(ctx)
	if err != nil {
		return Catalog{}, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.cat = &cat
	}
	c.mu.Unlock()
	return cat, nil
}

func (c *catalogCache) invalidate() {
	c.mu.Lock()
	c.gen++
	c.cat = nil
	c.mu.Unlock()
}
