// Package storage persists scan snapshots.
//
// SQLStore keeps scan history in a relational database. Two dialects are
// supported: SQLite (github.com/mattn/go-sqlite3), the default for single
// host installs, and PostgreSQL (github.com/lib/pq). Each scan is one row in
// the scans table holding the full snapshot JSON plus summary columns, with
// one row per detected conflict in the conflicts table. SaveScan writes both
// in a single transaction so a failed save leaves nothing behind.
//
// Archivers copy saved snapshots to long-term storage. S3Archiver uploads to
// any S3 compatible bucket, FileArchiver writes below a local directory.
// Keys follow snapshots/<yyyy>/<mm>/<id>-<run_id>.json.
//
// # Errors
//
// Database failures are returned as *PersistenceError. GetScan and
// LatestScan return nil, nil when there is nothing to return; DeleteScan
// returns ErrNotFound for an unknown id.
package storage
