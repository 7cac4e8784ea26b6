package core

import (
	"context"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/signalsfoundry/contact-scheduler/model"
)

// DefaultPassCacheSize bounds the number of memoised pass lists.
const DefaultPassCacheSize = 1024

// CachedOracle memoises another VisibilityOracle. Entries are keyed on
// satellite, TLE, station position and mask, and the window, so catalog
// edits never serve stale passes.
type CachedOracle struct {
	next  VisibilityOracle
	cache *lru.Cache[string, []model.Pass]

	hits, misses atomic.Uint64
}

// NewCachedOracle wraps next with an LRU of the given size.
func NewCachedOracle(next VisibilityOracle, size int) (*CachedOracle, error) {
	if size <= 0 {
		size = DefaultPassCacheSize
	}
	c, err := lru.New[string, []model.Pass](size)
	if err != nil {
		return nil, fmt.Errorf("create pass cache: %w", err)
	}
	return &CachedOracle{next: next, cache: c}, nil
}

func (c *CachedOracle) FindPasses(ctx context.Context, sat model.Satellite, gs model.GroundStation, window model.Interval) ([]model.Pass, error) {
	key := fmt.Sprintf("%s|%s|%s|%g,%g,%g,%g|%d|%d",
		sat.ID, sat.TLE, gs.ID, gs.Lat, gs.Lon, gs.Height, gs.Mask,
		window.Start.UnixNano(), window.End.UnixNano())
	if passes, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return clonePasses(passes), nil
	}
	c.misses.Add(1)
	passes, err := c.next.FindPasses(ctx, sat, gs, window)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, clonePasses(passes))
	return passes, nil
}

// Len reports the number of cached entries.
func (c *CachedOracle) Len() int { return c.cache.Len() }

// HitRatio is hits / lookups since construction, 0 before any lookup.
func (c *CachedOracle) HitRatio() float64 {
	hits, misses := c.hits.Load(), c.misses.Load()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

func clonePasses(in []model.Pass) []model.Pass {
	if in == nil {
		return nil
	}
	out := make([]model.Pass, len(in))
	copy(out, in)
	return out
}
