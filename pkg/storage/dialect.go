package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects SQL syntax differences between supported databases
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect accepts the configured driver name
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pq":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported storage driver %q", driver)
	}
}

// driverName is the database/sql driver registered for the dialect
func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

// rebind rewrites ? placeholders into $n for postgres
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) schema() string {
	if d == DialectPostgres {
		return postgresSchema
	}
	return sqliteSchema
}

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS scans (
		id BIGSERIAL PRIMARY KEY,
		run_id VARCHAR(64) NOT NULL,
		scanned_at TIMESTAMP WITH TIME ZONE NOT NULL,
		scan_type VARCHAR(20) NOT NULL,
		fingerprint VARCHAR(64) NOT NULL,
		plugin_count INTEGER NOT NULL,
		conflict_count INTEGER NOT NULL,
		overlap_count INTEGER NOT NULL,
		full_data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conflicts (
		id BIGSERIAL PRIMARY KEY,
		scan_id BIGINT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
		conflict_type VARCHAR(50) NOT NULL,
		severity VARCHAR(20) NOT NULL,
		hook_name VARCHAR(255),
		plugin_ids TEXT NOT NULL,
		description TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scans_scanned_at ON scans(scanned_at DESC);
	CREATE INDEX IF NOT EXISTS idx_conflicts_scan_id ON conflicts(scan_id);
	CREATE INDEX IF NOT EXISTS idx_conflicts_severity ON conflicts(severity);
	`

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS scans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		scanned_at TIMESTAMP NOT NULL,
		scan_type TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		plugin_count INTEGER NOT NULL,
		conflict_count INTEGER NOT NULL,
		overlap_count INTEGER NOT NULL,
		full_data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conflicts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id INTEGER NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
		conflict_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		hook_name TEXT,
		plugin_ids TEXT NOT NULL,
		description TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scans_scanned_at ON scans(scanned_at);
	CREATE INDEX IF NOT EXISTS idx_conflicts_scan_id ON conflicts(scan_id);
	CREATE INDEX IF NOT EXISTS idx_conflicts_severity ON conflicts(severity);
	`
