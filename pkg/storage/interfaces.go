package storage

import (
	"context"
	"time"

	"github.com/platinummonkey/conflictmapper/pkg/snapshot"
)

// ScanWriter persists snapshots
type ScanWriter interface {
	// SaveScan writes the snapshot and its conflict rows atomically and
	// returns the new scan id. Nothing is written when an error is returned.
	SaveScan(ctx context.Context, snap *snapshot.Snapshot) (int64, error)

	// DeleteScan removes one scan. Returns ErrNotFound when id does not exist.
	DeleteScan(ctx context.Context, id int64) error

	// DeleteOldScans removes scans taken before olderThan and returns the
	// number removed.
	DeleteOldScans(ctx context.Context, olderThan time.Time) (int64, error)
}

// ScanReader reads persisted snapshots
type ScanReader interface {
	// GetScan returns nil, nil when no scan has the given id
	GetScan(ctx context.Context, id int64) (*snapshot.Snapshot, error)

	// LatestScan returns nil, nil when nothing has been saved yet
	LatestScan(ctx context.Context) (*snapshot.Snapshot, error)

	// ListScans returns summaries, newest first
	ListScans(ctx context.Context, limit, offset int) ([]snapshot.Summary, error)

	// Stats returns aggregate numbers over the stored scans
	Stats(ctx context.Context) (*Stats, error)
}

// HealthChecker reports backend health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Store is the full persistence interface used by the application
type Store interface {
	ScanWriter
	ScanReader
	HealthChecker
	Close() error
}

// Archiver copies a saved snapshot to long-term storage and returns the
// location written.
type Archiver interface {
	Archive(ctx context.Context, snap *snapshot.Snapshot) (string, error)
}

// Stats are aggregate numbers over the stored scans
type Stats struct {
	TotalScans        int64      `json:"total_scans"`
	AverageConflicts  float64    `json:"average_conflicts"`
	CriticalConflicts int64      `json:"critical_conflicts"`
	LastScanAt        *time.Time `json:"last_scan_at,omitempty"`
}

// Config for storage backend
type Config struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`

	MaxConns        int           `yaml:"max_conns"`
	MinConns        int           `yaml:"min_conns"`
	Timeout         time.Duration `yaml:"timeout"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`

	// Archive config. S3 is used when S3Bucket is set, the local directory
	// when ArchiveDir is set.
	ArchiveDir     string `yaml:"archive_dir"`
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3Region       string `yaml:"s3_region"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3Prefix       string `yaml:"s3_prefix"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`
	S3CreateBucket bool   `yaml:"s3_create_bucket"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Driver:          string(DialectSQLite),
		DSN:             "conflictmap.db",
		MaxConns:        10,
		MinConns:        2,
		Timeout:         10 * time.Second,
		ConnMaxLifetime: 1 * time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		S3Region:        "us-east-1",
	}
}
