package template

import (
	"context"
	"sync"
)

// SnapshotCache serves read-mostly template snapshots in front of a [Store].
// A cached template is reused until [SnapshotCache.Invalidate] is called or a
// newer version is observed through [SnapshotCache.Refresh].
//
// The router reads exclusively through this cache so that one turn always sees
// a single consistent template version.
type SnapshotCache struct {
	store     Store
	onReplace func(*Template)

	mu    sync.RWMutex
	cache map[string]*Template
}

// NewSnapshotCache creates a cache over store.
func NewSnapshotCache(store Store) *SnapshotCache {
	return &SnapshotCache{
		store: store,
		cache: make(map[string]*Template),
	}
}

// OnReplace registers fn to run whenever a fresh snapshot replaces the cached
// one, the first load included. It keeps derived state, such as the trigger
// embedding index, in step with template versions. fn runs outside the cache
// lock and must treat the template as read-only. Set it before the cache is
// shared between goroutines.
func (c *SnapshotCache) OnReplace(fn func(*Template)) {
	c.onReplace = fn
}

// LoadTemplate returns the cached snapshot for id, loading it from the store
// on first use. The returned value is shared between callers and must be
// treated as read-only.
func (c *SnapshotCache) LoadTemplate(ctx context.Context, id string) (*Template, error) {
	c.mu.RLock()
	t, ok := c.cache[id]
	c.mu.RUnlock()
	if ok {
		return t, nil
	}
	return c.Refresh(ctx, id)
}

// Refresh reloads id from the store and replaces the cached snapshot when the
// stored version is newer (or when nothing was cached). It returns whichever
// snapshot is current after the call.
func (c *SnapshotCache) Refresh(ctx context.Context, id string) (*Template, error) {
	fresh, err := c.store.LoadTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if cur, ok := c.cache[id]; ok && cur.Version >= fresh.Version {
		c.mu.Unlock()
		return cur, nil
	}
	c.cache[id] = fresh
	c.mu.Unlock()

	if c.onReplace != nil {
		c.onReplace(fresh)
	}
	return fresh, nil
}

// Invalidate drops the cached snapshot for id (or all snapshots when id is
// empty). The next load goes to the store.
func (c *SnapshotCache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == "" {
		c.cache = make(map[string]*Template)
		return
	}
	delete(c.cache, id)
}

// ApplyPatterns writes through to the underlying store and invalidates the
// cached snapshot on success so the next turn sees the learned patterns.
func (c *SnapshotCache) ApplyPatterns(ctx context.Context, id string, patterns []Pattern, expectedVersion int64) (*ApplyResult, error) {
	res, err := c.store.ApplyPatterns(ctx, id, patterns, expectedVersion)
	if err != nil {
		return nil, err
	}
	if len(res.Applied) > 0 {
		c.Invalidate(id)
	}
	return res, nil
}

// Compile-time check: the cache itself satisfies [Store] so the router and
// learner can depend on one interface.
var _ Store = (*SnapshotCache)(nil)
