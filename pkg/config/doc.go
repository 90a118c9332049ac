// Package config provides application configuration management from
// environment variables and an optional YAML file.
//
// # Overview
//
// Configuration is built in three layers: built-in defaults, then the YAML
// file passed to Load (if any), then CONFLICTMAP_* environment variables.
// The result is validated before it is returned.
//
// # Configuration Structure
//
// Scan settings:
//
//	CONFLICTMAP_PLUGINS_ROOT="/var/www/wp-content/plugins"
//	CONFLICTMAP_SCAN_MODE="all"  # all, active-only
//	CONFLICTMAP_LATE_PRIORITY="999"
//	CONFLICTMAP_FINALIZER_PRIORITY="100"
//	CONFLICTMAP_KNOWN_CONFLICTS_FILE="/etc/conflictmap/known.yaml"
//	CONFLICTMAP_SCAN_TIMEOUT="2m"
//
// Cache settings:
//
//	CONFLICTMAP_CACHE_BACKEND="memory"  # memory, redis, none
//	CONFLICTMAP_CACHE_TTL="1h"
//	CONFLICTMAP_REDIS_URL="redis://localhost:6379"
//
// Storage settings:
//
//	CONFLICTMAP_STORAGE_DRIVER="sqlite"  # sqlite, postgres
//	CONFLICTMAP_STORAGE_DSN="conflictmap.db"
//	CONFLICTMAP_RETENTION="720h"
//	CONFLICTMAP_S3_BUCKET="conflictmap-snapshots"
//
// Schedule settings:
//
//	CONFLICTMAP_SCAN_CRON="0 */6 * * *"
//	CONFLICTMAP_RETENTION_CRON="@daily"
//	CONFLICTMAP_WATCH="true"
//
// Notification settings (one webhook; list more under notify.webhooks in
// the YAML file):
//
//	CONFLICTMAP_WEBHOOK_URL="https://hooks.example.com/conflictmap"
//	CONFLICTMAP_WEBHOOK_SECRET="..."
//	CONFLICTMAP_WEBHOOK_EVENTS="critical_conflicts,scan_failed"
//
// Observability settings:
//
//	CONFLICTMAP_LOG_LEVEL="info"  # debug, info, warn, error
//	CONFLICTMAP_LOG_FORMAT="text"  # text, json
//	CONFLICTMAP_OTEL_ENABLED="true"
//	CONFLICTMAP_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.Load("/etc/conflictmap/config.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Plugins: %s (%s)\n", cfg.Scan.PluginsRoot, cfg.ScanMode())
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/cache: Uses cache configuration
//   - pkg/observability: Uses observability configuration
//   - pkg/webhooks: Uses notification configuration
package config
