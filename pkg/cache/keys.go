package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Cache key generation for scan snapshots.
//
// CRITICAL INVARIANT: SORTED ORDER REQUIREMENT
// The fingerprint MUST be computed over entries sorted by ID, then Version,
// so the same installed set produces the same key regardless of the order the
// registry lists it in.
//
// Fingerprint Format Version: v1
// Key Format: conflictmap:v1:{fingerprint}
//
// CHANGING THE SORT ORDER OR HASH LAYOUT INVALIDATES EVERY CACHED SNAPSHOT.
// Bump fingerprintVersion when doing so.

const (
	fingerprintVersion = "v1"
	keyPrefix          = "conflictmap"
)

// Entry is one (plugin id, version) pair contributing to a fingerprint
type Entry struct {
	ID      string
	Version string
}

// Fingerprint returns a stable SHA-256 hash of the scan type and the sorted
// set of entries.
//
// Algorithm:
// 1. Hash fingerprintVersion + \0 + scanType + \0
// 2. Sort entries by (ID, Version)
// 3. Hash each entry: id + \0 + version + \0
func Fingerprint(scanType string, entries []Entry) string {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID ||
			(sorted[i].ID == sorted[j].ID && sorted[i].Version < sorted[j].Version)
	})

	hasher := sha256.New()
	hasher.Write([]byte(fingerprintVersion))
	hasher.Write([]byte{0})
	hasher.Write([]byte(scanType))
	hasher.Write([]byte{0})

	for _, e := range sorted {
		hasher.Write([]byte(e.ID))
		hasher.Write([]byte{0}) // Separator
		hasher.Write([]byte(e.Version))
		hasher.Write([]byte{0})
	}

	return hex.EncodeToString(hasher.Sum(nil))
}

// SnapshotKey formats the storage key of a snapshot fingerprint
func SnapshotKey(fingerprint string) string {
	return strings.Join([]string{keyPrefix, fingerprintVersion, fingerprint}, ":")
}
