package ml

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// LoadObserver is told about every Load: whether it was served from the
// cache, how long the underlying load took and its error.
type LoadObserver func(id string, cached bool, elapsed time.Duration, err error)

// CachedLoader is a read-through cache in front of another Loader.
// Concurrent loads of one identifier share a single underlying call, and
// failed loads are not cached. A size of zero disables retention, so every
// call reaches the underlying loader.
type CachedLoader struct {
	next     Loader
	cache    *lru.Cache[string, Artifact]
	group    singleflight.Group
	observer LoadObserver
}

type CacheOption func(*CachedLoader)

func WithLoadObserver(observer LoadObserver) CacheOption {
	return func(c *CachedLoader) {
		c.observer = observer
	}
}

// NewCachedLoader keeps up to size artifacts from next in an LRU cache.
func NewCachedLoader(next Loader, size int, opts ...CacheOption) (*CachedLoader, error) {
	c := &CachedLoader{next: next}
	if size > 0 {
		cache, err := lru.New[string, Artifact](size)
		if err != nil {
			return nil, err
		}
		c.cache = cache
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *CachedLoader) Load(ctx context.Context, id string) (Artifact, error) {
	if c.cache != nil {
		if a, ok := c.cache.Get(id); ok {
			c.observe(id, true, 0, nil)
			return a, nil
		}
	}

	// The shared load must not be cancelled by whichever caller started it.
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(id, func() (interface{}, error) {
		if c.cache != nil {
			if a, ok := c.cache.Get(id); ok {
				return a, nil
			}
		}
		start := time.Now()
		a, err := c.next.Load(loadCtx, id)
		c.observe(id, false, time.Since(start), err)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			c.cache.Add(id, a)
		}
		return a, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Artifact), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports how many artifacts are retained.
func (c *CachedLoader) Len() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.Len()
}

func (c *CachedLoader) Purge() {
	if c.cache != nil {
		c.cache.Purge()
	}
}

func (c *CachedLoader) observe(id string, cached bool, elapsed time.Duration, err error) {
	if c.observer != nil {
		c.observer(id, cached, elapsed, err)
	}
}
