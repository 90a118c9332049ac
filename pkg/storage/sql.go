package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/conflictmapper/pkg/conflicts"
	"github.com/platinummonkey/conflictmapper/pkg/plugins"
	"github.com/platinummonkey/conflictmapper/pkg/snapshot"
)

var tracer = otel.Tracer("conflictmapper/storage")

// SQLStore implements Store on PostgreSQL or SQLite
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	log     *logrus.Logger
}

// Open connects to the configured database, verifies the connection and
// ensures the schema exists.
func Open(config Config, log *logrus.Logger) (*SQLStore, error) {
	dialect, err := ParseDialect(config.Driver)
	if err != nil {
		return nil, err
	}
	if config.DSN == "" {
		return nil, fmt.Errorf("storage DSN is required")
	}

	db, err := sql.Open(dialect.driverName(), config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dialect, err)
	}

	// Configure connection pool
	if dialect == DialectSQLite {
		// one writer; also keeps :memory: databases on a single connection
		db.SetMaxOpenConns(1)
	} else {
		if config.MaxConns > 0 {
			db.SetMaxOpenConns(config.MaxConns)
		}
		if config.MinConns > 0 {
			db.SetMaxIdleConns(config.MinConns)
		}
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}

	// Test connection
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", dialect, err)
	}

	store, err := NewSQLStore(db, dialect, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an open database and ensures the schema exists
func NewSQLStore(db *sql.DB, dialect Dialect, log *logrus.Logger) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if log == nil {
		log = logrus.New()
	}

	s := &SQLStore{
		db:      db,
		dialect: dialect,
		log:     log,
	}

	if err := s.ensureTables(); err != nil {
		return nil, fmt.Errorf("failed to ensure scan tables: %w", err)
	}

	return s, nil
}

// ensureTables creates the scans and conflicts tables if they don't exist
func (s *SQLStore) ensureTables() error {
	_, err := s.db.Exec(s.dialect.schema())
	return err
}

// Dialect returns the SQL dialect in use
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// SaveScan implements ScanWriter. On success snap.ID is set to the new id.
func (s *SQLStore) SaveScan(ctx context.Context, snap *snapshot.Snapshot) (int64, error) {
	ctx, span := tracer.Start(ctx, "Storage.SaveScan",
		trace.WithAttributes(
			attribute.String("db.system", string(s.dialect)),
			attribute.String("scan.run_id", snap.RunID),
			attribute.Int("scan.conflicts", len(snap.Conflicts)),
		),
	)
	defer span.End()

	id, err := s.saveScan(ctx, snap)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save scan")
		return 0, persistErr("save", err)
	}

	snap.ID = id
	span.SetAttributes(attribute.Int64("scan.id", id))
	span.SetStatus(codes.Ok, "scan saved")

	s.log.WithFields(logrus.Fields{
		"scan_id":   id,
		"run_id":    snap.RunID,
		"conflicts": len(snap.Conflicts),
	}).Debug("Scan saved")
	return id, nil
}

func (s *SQLStore) saveScan(ctx context.Context, snap *snapshot.Snapshot) (int64, error) {
	fullData, err := snapshot.Marshal(snap)
	if err != nil {
		return 0, err
	}

	// Start transaction
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	scanQuery := `
		INSERT INTO scans (
			run_id, scanned_at, scan_type, fingerprint,
			plugin_count, conflict_count, overlap_count, full_data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	args := []interface{}{
		snap.RunID,
		snap.Timestamp.UTC(),
		string(snap.ScanType),
		snap.Fingerprint,
		snap.PluginCount,
		len(snap.Conflicts),
		len(snap.Overlaps),
		string(fullData),
	}

	var scanID int64
	if s.dialect == DialectPostgres {
		err = tx.QueryRowContext(ctx, s.dialect.rebind(scanQuery+" RETURNING id"), args...).Scan(&scanID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert scan: %w", err)
		}
	} else {
		res, err := tx.ExecContext(ctx, scanQuery, args...)
		if err != nil {
			return 0, fmt.Errorf("failed to insert scan: %w", err)
		}
		if scanID, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("failed to read scan id: %w", err)
		}
	}

	conflictQuery := s.dialect.rebind(`
		INSERT INTO conflicts (scan_id, conflict_type, severity, hook_name, plugin_ids, description)
		VALUES (?, ?, ?, ?, ?, ?)`)

	for i, c := range snap.Conflicts {
		ids, err := json.Marshal(c.PluginIDs)
		if err != nil {
			return 0, fmt.Errorf("failed to encode conflict %d plugin ids: %w", i, err)
		}

		var hook sql.NullString
		if c.HookName != "" {
			hook = sql.NullString{String: c.HookName, Valid: true}
		}

		_, err = tx.ExecContext(ctx, conflictQuery,
			scanID,
			string(c.Type),
			c.Severity.String(),
			hook,
			string(ids),
			c.Description,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert conflict %d: %w", i, err)
		}
	}

	// Commit transaction
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return scanID, nil
}

// GetScan implements ScanReader
func (s *SQLStore) GetScan(ctx context.Context, id int64) (*snapshot.Snapshot, error) {
	query := s.dialect.rebind(`SELECT id, full_data FROM scans WHERE id = ?`)
	snap, err := s.loadScan(ctx, query, id)
	if err != nil {
		return nil, persistErr("get", err)
	}
	return snap, nil
}

// LatestScan implements ScanReader
func (s *SQLStore) LatestScan(ctx context.Context) (*snapshot.Snapshot, error) {
	query := `SELECT id, full_data FROM scans ORDER BY scanned_at DESC, id DESC LIMIT 1`
	snap, err := s.loadScan(ctx, query)
	if err != nil {
		return nil, persistErr("latest", err)
	}
	return snap, nil
}

func (s *SQLStore) loadScan(ctx context.Context, query string, args ...interface{}) (*snapshot.Snapshot, error) {
	var (
		id       int64
		fullData string
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id, &fullData)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to query scan: %w", err)
	}

	snap, err := snapshot.Unmarshal([]byte(fullData))
	if err != nil {
		return nil, fmt.Errorf("scan %d: %w", id, err)
	}
	snap.ID = id
	return snap, nil
}

// ListScans implements ScanReader
func (s *SQLStore) ListScans(ctx context.Context, limit, offset int) ([]snapshot.Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := s.dialect.rebind(`
		SELECT id, run_id, scanned_at, scan_type, fingerprint, plugin_count, conflict_count, overlap_count
		FROM scans
		ORDER BY scanned_at DESC, id DESC
		LIMIT ? OFFSET ?`)

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, persistErr("list", fmt.Errorf("failed to list scans: %w", err))
	}
	defer rows.Close()

	summaries := make([]snapshot.Summary, 0)
	for rows.Next() {
		var (
			sum      snapshot.Summary
			scanType string
		)
		err := rows.Scan(
			&sum.ID,
			&sum.RunID,
			&sum.Timestamp,
			&scanType,
			&sum.Fingerprint,
			&sum.PluginCount,
			&sum.ConflictCount,
			&sum.OverlapCount,
		)
		if err != nil {
			return nil, persistErr("list", fmt.Errorf("failed to scan row: %w", err))
		}
		sum.Timestamp = sum.Timestamp.UTC()
		sum.ScanType = plugins.ScanMode(scanType)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list", fmt.Errorf("error iterating scans: %w", err))
	}

	return summaries, nil
}

// DeleteScan implements ScanWriter
func (s *SQLStore) DeleteScan(ctx context.Context, id int64) error {
	n, err := s.deleteWhere(ctx, "id = ?", id)
	if err != nil {
		return persistErr("delete", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteOldScans implements ScanWriter
func (s *SQLStore) DeleteOldScans(ctx context.Context, olderThan time.Time) (int64, error) {
	n, err := s.deleteWhere(ctx, "scanned_at < ?", olderThan.UTC())
	if err != nil {
		return 0, persistErr("cleanup", err)
	}

	if n > 0 {
		s.log.WithFields(logrus.Fields{
			"deleted":    n,
			"older_than": olderThan,
		}).Info("Old scans deleted")
	}
	return n, nil
}

// deleteWhere removes the matching scans and their conflict rows in one
// transaction. SQLite does not enforce the cascade without a pragma, so the
// conflict rows are removed explicitly.
func (s *SQLStore) deleteWhere(ctx context.Context, where string, arg interface{}) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		s.dialect.rebind("DELETE FROM conflicts WHERE scan_id IN (SELECT id FROM scans WHERE "+where+")"), arg)
	if err != nil {
		return 0, fmt.Errorf("failed to delete conflicts: %w", err)
	}

	res, err := tx.ExecContext(ctx, s.dialect.rebind("DELETE FROM scans WHERE "+where), arg)
	if err != nil {
		return 0, fmt.Errorf("failed to delete scans: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted scans: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return n, nil
}

// Stats implements ScanReader
func (s *SQLStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(conflict_count), 0) FROM scans`,
	).Scan(&stats.TotalScans, &stats.AverageConflicts)
	if err != nil {
		return nil, persistErr("stats", fmt.Errorf("failed to aggregate scans: %w", err))
	}

	err = s.db.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT COUNT(*) FROM conflicts WHERE severity = ?`),
		conflicts.SeverityCritical.String(),
	).Scan(&stats.CriticalConflicts)
	if err != nil {
		return nil, persistErr("stats", fmt.Errorf("failed to count critical conflicts: %w", err))
	}

	var last time.Time
	err = s.db.QueryRowContext(ctx,
		`SELECT scanned_at FROM scans ORDER BY scanned_at DESC, id DESC LIMIT 1`,
	).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, persistErr("stats", fmt.Errorf("failed to read last scan time: %w", err))
	default:
		last = last.UTC()
		stats.LastScanAt = &last
	}

	return stats, nil
}

// HealthCheck implements HealthChecker
func (s *SQLStore) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%s unhealthy: %w", s.dialect, err)
	}
	return nil
}

// DB returns the database connection for health checks
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}
