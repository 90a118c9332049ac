package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/conflictmapper/pkg/conflicts"
	"github.com/platinummonkey/conflictmapper/pkg/overlap"
	"github.com/platinummonkey/conflictmapper/pkg/plugins"
	"github.com/platinummonkey/conflictmapper/pkg/ranking"
	"github.com/platinummonkey/conflictmapper/pkg/snapshot"
)

func testSnapshot(fp string) *snapshot.Snapshot {
	return &snapshot.Snapshot{
		ID:          3,
		RunID:       "run-1",
		Timestamp:   time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		ScanType:    plugins.ScanModeAll,
		Fingerprint: fp,
		PluginCount: 1,
		Plugins: []plugins.Plugin{
			{ID: "a", Name: "A", Version: "1.0.0", Hooks: []plugins.HookRegistration{}, Capabilities: []plugins.CapabilityTag{}, Resources: []plugins.Resource{}},
		},
		Conflicts:        []conflicts.ConflictRecord{},
		ConflictSummary:  conflicts.Summary{ByType: map[conflicts.ConflictType]int{}},
		Overlaps:         []overlap.Cluster{},
		HookSimilarities: []overlap.HookSimilarity{},
		Ranked: []ranking.RankedPlugin{
			{PluginID: "a", Name: "A", Score: 100, Recommendation: ranking.RecommendKeep, ContributingFactors: map[string]float64{"base_quality": 100}, Rank: 1},
		},
		Warnings: []snapshot.Warning{},
	}
}

// failingStore fails every operation
type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func (failingStore) Delete(context.Context, string) error {
	return errors.New("connection refused")
}

func (failingStore) Close() error { return nil }

func TestSnapshotCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore(4)
	require.NoError(t, err)
	c := NewSnapshotCache(store, time.Minute, nil)

	_, err = c.Get(ctx, "fp")
	assert.ErrorIs(t, err, ErrCacheMiss)

	original := testSnapshot("fp")
	require.NoError(t, c.Set(ctx, original))

	got, err := c.Get(ctx, "fp")
	require.NoError(t, err)
	assert.Equal(t, original, got)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 0.5, stats.HitRate)
}

func TestSnapshotCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore(4)
	require.NoError(t, err)
	c := NewSnapshotCache(store, 0, nil)
	assert.Equal(t, DefaultTTL, c.TTL())

	require.NoError(t, c.Set(ctx, testSnapshot("fp")))
	require.NoError(t, c.Invalidate(ctx, "fp"))

	_, err = c.Get(ctx, "fp")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestSnapshotCache_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore(4)
	require.NoError(t, err)
	c := NewSnapshotCache(store, time.Minute, nil)

	require.NoError(t, store.Set(ctx, SnapshotKey("fp"), []byte("{garbage"), time.Minute))

	_, err = c.Get(ctx, "fp")
	var cacheErr *CacheError
	require.ErrorAs(t, err, &cacheErr)
	assert.Equal(t, "decode", cacheErr.Op)

	// corrupt entry is removed
	_, err = store.Get(ctx, SnapshotKey("fp"))
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestSnapshotCache_StoreFailure(t *testing.T) {
	ctx := context.Background()
	c := NewSnapshotCache(failingStore{}, time.Minute, nil)

	_, err := c.Get(ctx, "fp")
	var cacheErr *CacheError
	require.ErrorAs(t, err, &cacheErr)
	assert.Equal(t, "get", cacheErr.Op)
	assert.NotErrorIs(t, err, ErrCacheMiss)

	err = c.Set(ctx, testSnapshot("fp"))
	require.ErrorAs(t, err, &cacheErr)
	assert.Equal(t, "set", cacheErr.Op)
}

func TestSnapshotCache_Redis(t *testing.T) {
	ctx := context.Background()
	store, mr := setupRedisStoreTest(t)
	c := NewSnapshotCache(store, time.Minute, nil)

	original := testSnapshot("fp")
	require.NoError(t, c.Set(ctx, original))

	got, err := c.Get(ctx, "fp")
	require.NoError(t, err)
	assert.Equal(t, original, got)

	mr.FastForward(time.Hour)
	_, err = c.Get(ctx, "fp")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
