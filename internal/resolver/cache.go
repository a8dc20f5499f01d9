package resolver

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// SnapshotCache is a short-TTL per-user cache of resolved snapshots.
// Administration mutations must call Invalidate for affected users
// before returning, so a revoke is never answered from a stale entry
// beyond the mutation call itself.
type SnapshotCache struct {
	lru *expirable.LRU[string, *Snapshot]
}

func NewSnapshotCache(size int, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{
		lru: expirable.NewLRU[string, *Snapshot](size, nil, ttl),
	}
}

func (c *SnapshotCache) Get(userID string) (*Snapshot, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(userID)
}

func (c *SnapshotCache) Add(userID string, snap *Snapshot) {
	if c == nil {
		return
	}
	c.lru.Add(userID, snap)
}

func (c *SnapshotCache) Invalidate(userID string) {
	if c == nil {
		return
	}
	c.lru.Remove(userID)
}
