// Package cache keeps recently computed snapshots keyed by a fingerprint of
// the installed plugin set.
//
// Two Store backends are provided: MemoryStore, an in-process LRU with
// per-entry expiry, and RedisStore for deployments sharing a cache between
// processes. SnapshotCache layers snapshot encoding on top of either.
package cache
