package cache

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/conflictmapper/pkg/snapshot"
)

// DefaultTTL is how long a cached snapshot stays valid
const DefaultTTL = time.Hour

// SnapshotCache stores complete snapshots keyed by input fingerprint.
// Any backing store failure is reported as a *CacheError and callers fall
// back to recomputing.
type SnapshotCache struct {
	store   Store
	ttl     time.Duration
	log     *logrus.Logger
	metrics metrics
}

// NewSnapshotCache wraps store. A non-positive ttl selects DefaultTTL.
func NewSnapshotCache(store Store, ttl time.Duration, log *logrus.Logger) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logrus.New()
	}
	return &SnapshotCache{
		store: store,
		ttl:   ttl,
		log:   log,
	}
}

// Get returns the snapshot cached under fingerprint. A missing or expired
// entry returns ErrCacheMiss. Undecodable entries are deleted and reported
// as a *CacheError.
func (c *SnapshotCache) Get(ctx context.Context, fingerprint string) (*snapshot.Snapshot, error) {
	key := SnapshotKey(fingerprint)

	data, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrCacheMiss) {
		c.metrics.recordMiss()
		return nil, ErrCacheMiss
	}
	if err != nil {
		c.metrics.recordMiss()
		return nil, &CacheError{Op: "get", Key: key, Err: err}
	}

	snap, err := snapshot.Unmarshal(data)
	if err != nil {
		c.metrics.recordMiss()
		c.log.WithError(err).WithField("key", key).Warn("Discarding corrupt cached snapshot")
		if delErr := c.store.Delete(ctx, key); delErr != nil {
			c.log.WithError(delErr).WithField("key", key).Warn("Failed to delete corrupt cache entry")
		}
		return nil, &CacheError{Op: "decode", Key: key, Err: err}
	}

	c.metrics.recordHit()
	return snap, nil
}

// Set caches snap under its fingerprint
func (c *SnapshotCache) Set(ctx context.Context, snap *snapshot.Snapshot) error {
	key := SnapshotKey(snap.Fingerprint)

	data, err := snapshot.Marshal(snap)
	if err != nil {
		return &CacheError{Op: "encode", Key: key, Err: err}
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		return &CacheError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// Invalidate removes the snapshot cached under fingerprint
func (c *SnapshotCache) Invalidate(ctx context.Context, fingerprint string) error {
	key := SnapshotKey(fingerprint)
	if err := c.store.Delete(ctx, key); err != nil {
		return &CacheError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// TTL returns the entry lifetime
func (c *SnapshotCache) TTL() time.Duration {
	return c.ttl
}

// Stats returns hit and miss counts at the snapshot level
func (c *SnapshotCache) Stats() Stats {
	return c.metrics.stats()
}

// Close closes the backing store
func (c *SnapshotCache) Close() error {
	return c.store.Close()
}
