package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/conflictmapper/pkg/events"
	"github.com/platinummonkey/conflictmapper/pkg/plugins"
	"github.com/platinummonkey/conflictmapper/pkg/webhooks"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(EnvPrefix+tt.key, tt.envValue)
			}
			assert.Equal(t, tt.want, getEnv(tt.key, tt.defaultValue))
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{name: "returns true for 'true'", envValue: "true", want: true},
		{name: "returns true for 'TRUE'", envValue: "TRUE", want: true},
		{name: "returns true for '1'", envValue: "1", want: true},
		{name: "returns false for 'false'", defaultValue: true, envValue: "false", want: false},
		{name: "returns default when unset", defaultValue: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(EnvPrefix+"TEST_BOOL", tt.envValue)
			}
			assert.Equal(t, tt.want, getEnvBool("TEST_BOOL", tt.defaultValue))
		})
	}
}

func TestGetEnvNumbers(t *testing.T) {
	t.Setenv(EnvPrefix+"TEST_INT", "42")
	t.Setenv(EnvPrefix+"TEST_BAD_INT", "forty-two")
	t.Setenv(EnvPrefix+"TEST_FLOAT", "0.25")
	t.Setenv(EnvPrefix+"TEST_DURATION", "90s")
	t.Setenv(EnvPrefix+"TEST_BAD_DURATION", "soon")

	assert.Equal(t, 42, getEnvInt("TEST_INT", 1))
	assert.Equal(t, 1, getEnvInt("TEST_BAD_INT", 1))
	assert.Equal(t, 0.25, getEnvFloat("TEST_FLOAT", 1))
	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("TEST_BAD_DURATION", time.Second))
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, plugins.ScanModeAll, cfg.ScanMode())
	assert.Equal(t, 999, cfg.Scan.LatePriority)
	assert.Equal(t, 100, cfg.Scan.FinalizerPriority)
	assert.Equal(t, 2*time.Minute, cfg.Scan.Timeout)
	assert.Equal(t, CacheBackendMemory, cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 30*24*time.Hour, cfg.Storage.Retention)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "@daily", cfg.Schedule.RetentionCron)
	assert.Empty(t, cfg.Schedule.ScanCron)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.False(t, cfg.Observability.OTelEnabled)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("CONFLICTMAP_PLUGINS_ROOT", "/srv/plugins")
	t.Setenv("CONFLICTMAP_SCAN_MODE", "active-only")
	t.Setenv("CONFLICTMAP_CACHE_BACKEND", "Redis")
	t.Setenv("CONFLICTMAP_REDIS_URL", "redis://cache:6379/2")
	t.Setenv("CONFLICTMAP_STORAGE_DRIVER", "postgres")
	t.Setenv("CONFLICTMAP_STORAGE_DSN", "postgres://localhost/conflictmap")
	t.Setenv("CONFLICTMAP_S3_BUCKET", "snapshots")
	t.Setenv("CONFLICTMAP_S3_USE_PATH_STYLE", "true")
	t.Setenv("CONFLICTMAP_SCAN_CRON", "*/15 * * * *")
	t.Setenv("CONFLICTMAP_OTEL_SAMPLE_RATIO", "0.5")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/srv/plugins", cfg.Scan.PluginsRoot)
	assert.Equal(t, plugins.ScanModeActiveOnly, cfg.ScanMode())
	assert.Equal(t, CacheBackendRedis, cfg.Cache.Backend)
	assert.Equal(t, "redis://cache:6379/2", cfg.Cache.RedisURL)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "snapshots", cfg.Storage.S3Bucket)
	assert.True(t, cfg.Storage.S3UsePathStyle)
	assert.Equal(t, "*/15 * * * *", cfg.Schedule.ScanCron)
	assert.Equal(t, 0.5, cfg.OTel().SampleRatio)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scan:
  plugins_root: /from/file
  late_priority: 500
cache:
  backend: none
storage:
  driver: sqlite
  dsn: /tmp/file.db
  retention: 168h
  s3_bucket: archive
server:
  port: "9000"
schedule:
  watch: true
`), 0644))

	t.Setenv("CONFLICTMAP_PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/from/file", cfg.Scan.PluginsRoot)
	assert.Equal(t, 500, cfg.Scan.LatePriority)
	assert.Equal(t, 2*time.Minute, cfg.Scan.Timeout, "keys absent from the file keep defaults")
	assert.Equal(t, CacheBackendNone, cfg.Cache.Backend)
	assert.Equal(t, "/tmp/file.db", cfg.Storage.DSN)
	assert.Equal(t, 168*time.Hour, cfg.Storage.Retention)
	assert.Equal(t, "archive", cfg.Storage.S3Bucket)
	assert.Equal(t, 10, cfg.Storage.MaxConns)
	assert.True(t, cfg.Schedule.Watch)
	assert.Equal(t, "9100", cfg.Server.Port, "env overrides the file")
}

func TestLoad_FileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scan: [unclosed"), 0644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{name: "empty plugins root", mutate: func(c *Config) { c.Scan.PluginsRoot = "" }, wantErr: "plugins root"},
		{name: "bad scan mode", mutate: func(c *Config) { c.Scan.Mode = "some" }, wantErr: "scan mode"},
		{name: "zero late priority", mutate: func(c *Config) { c.Scan.LatePriority = 0 }, wantErr: "late priority"},
		{name: "zero finalizer priority", mutate: func(c *Config) { c.Scan.FinalizerPriority = 0 }, wantErr: "finalizer priority"},
		{name: "zero timeout", mutate: func(c *Config) { c.Scan.Timeout = 0 }, wantErr: "scan timeout"},
		{name: "unknown cache backend", mutate: func(c *Config) { c.Cache.Backend = "memcached" }, wantErr: "cache backend"},
		{name: "zero cache TTL", mutate: func(c *Config) { c.Cache.TTL = 0 }, wantErr: "TTL"},
		{name: "no TTL needed without cache", mutate: func(c *Config) { c.Cache.Backend = CacheBackendNone; c.Cache.TTL = 0 }},
		{name: "redis without URL", mutate: func(c *Config) { c.Cache.Backend = CacheBackendRedis; c.Cache.RedisURL = "" }, wantErr: "redis URL"},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "mysql" }, wantErr: "unsupported storage driver"},
		{name: "empty DSN", mutate: func(c *Config) { c.Storage.DSN = "" }, wantErr: "DSN"},
		{name: "negative retention", mutate: func(c *Config) { c.Storage.Retention = -time.Hour }, wantErr: "retention"},
		{name: "empty port", mutate: func(c *Config) { c.Server.Port = "" }, wantErr: "port"},
		{name: "bad scan cron", mutate: func(c *Config) { c.Schedule.ScanCron = "every hour" }, wantErr: "scan schedule"},
		{name: "invalid webhook URL", mutate: func(c *Config) {
			c.Notify.Webhooks = []webhooks.Webhook{{URL: "mailto:ops@example.com"}}
		}, wantErr: "invalid webhook URL"},
		{name: "webhook with unknown event", mutate: func(c *Config) {
			c.Notify.Webhooks = []webhooks.Webhook{{URL: "https://example.com", Events: []string{"deploy"}}}
		}, wantErr: "unknown event"},
		{name: "webhook without timeout", mutate: func(c *Config) {
			c.Notify.Webhooks = []webhooks.Webhook{{URL: "https://example.com"}}
			c.Notify.Timeout = 0
		}, wantErr: "webhook timeout"},
		{name: "bad log level", mutate: func(c *Config) { c.Observability.LogLevel = "loud" }, wantErr: "log level"},
		{name: "otel without endpoint", mutate: func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = ""
		}, wantErr: "endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_Webhooks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
notify:
  webhooks:
    - name: ops
      url: https://hooks.example.com/conflicts
      secret: file-secret
  retry:
    max_attempts: 2
`), 0644))

	t.Setenv("CONFLICTMAP_WEBHOOK_URL", "http://localhost:9000/hook")
	t.Setenv("CONFLICTMAP_WEBHOOK_SECRET", "env-secret")
	t.Setenv("CONFLICTMAP_WEBHOOK_EVENTS", "scan_completed, scan_failed")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Notify.Webhooks, 2)
	assert.Equal(t, "ops", cfg.Notify.Webhooks[0].Name)
	assert.Equal(t, "file-secret", cfg.Notify.Webhooks[0].Secret)
	assert.Empty(t, cfg.Notify.Webhooks[0].Events)

	env := cfg.Notify.Webhooks[1]
	assert.Equal(t, "env", env.Name)
	assert.Equal(t, "http://localhost:9000/hook", env.URL)
	assert.Equal(t, "env-secret", env.Secret)
	assert.Equal(t, []string{events.EventScanCompleted, events.EventScanFailed}, env.Events)

	assert.Equal(t, 2, cfg.Notify.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Notify.Retry.InitialDelay, "keys absent from the file keep defaults")
	assert.Equal(t, 2*time.Minute, cfg.Notify.Timeout)
}

func TestLoad_NoWebhooksByDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Notify.Webhooks)
}
