package invite

import (
	"context"
	"time"

	"restricted-promotion/models"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// CachingResolver remembers successful resolutions for a while and collapses
// concurrent lookups of the same code into one request. Failures are not cached.
type CachingResolver struct {
	next  Resolver
	data  *expirable.LRU[string, models.ResolvedInvite]
	group singleflight.Group
}

var _ Resolver = (*CachingResolver)(nil)

func NewCachingResolver(next Resolver, capacity int, ttl time.Duration) *CachingResolver {
	return &CachingResolver{
		next: next,
		data: expirable.NewLRU[string, models.ResolvedInvite](capacity, nil, ttl),
	}
}

// Resolve returns the cached resolution of code or looks it up. The shared
// lookup does not inherit the cancellation of whichever caller started it;
// the wrapped resolver bounds it with its own timeout. A caller whose ctx
// ends first gets ctx.Err() while the lookup finishes for the others.
func (c *CachingResolver) Resolve(ctx context.Context, code string) (models.ResolvedInvite, error) {
	if v, ok := c.data.Get(code); ok {
		return v, nil
	}
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(code, func() (interface{}, error) {
		res, err := c.next.Resolve(shared, code)
		if err != nil {
			return nil, err
		}
		c.data.Add(code, res)
		return res, nil
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return models.ResolvedInvite{}, r.Err
		}
		return r.Val.(models.ResolvedInvite), nil
	case <-ctx.Done():
		return models.ResolvedInvite{}, ctx.Err()
	}
}

// Purge drops a cached resolution.
func (c *CachingResolver) Purge(code string) {
	c.data.Remove(code)
}
