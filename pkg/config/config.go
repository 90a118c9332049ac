package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/conflictmapper/pkg/conflicts"
	"github.com/platinummonkey/conflictmapper/pkg/observability"
	"github.com/platinummonkey/conflictmapper/pkg/plugins"
	"github.com/platinummonkey/conflictmapper/pkg/storage"
	"github.com/platinummonkey/conflictmapper/pkg/webhooks"
)

// EnvPrefix prefixes every environment variable read by this package
const EnvPrefix = "CONFLICTMAP_"

// Cache backends
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
	CacheBackendNone   = "none"
)

// Config holds all application configuration
type Config struct {
	Scan          ScanConfig          `yaml:"scan"`
	Cache         CacheConfig         `yaml:"cache"`
	Storage       StorageConfig       `yaml:"storage"`
	Server        ServerConfig        `yaml:"server"`
	Schedule      ScheduleConfig      `yaml:"schedule"`
	Notify        NotifyConfig        `yaml:"notify"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ScanConfig holds pipeline settings
type ScanConfig struct {
	PluginsRoot        string        `yaml:"plugins_root"`
	Mode               string        `yaml:"mode"` // all or active-only
	LatePriority       int           `yaml:"late_priority"`
	FinalizerPriority  int           `yaml:"finalizer_priority"`
	KnownConflictsFile string        `yaml:"known_conflicts_file"`
	Timeout            time.Duration `yaml:"timeout"`

	// ReadOnly processes serve stored snapshots and never run a scan
	ReadOnly bool `yaml:"read_only"`
}

// CacheConfig holds snapshot cache settings
type CacheConfig struct {
	Backend    string        `yaml:"backend"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`

	RedisURL        string `yaml:"redis_url"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	RedisPoolSize   int    `yaml:"redis_pool_size"`
	RedisMaxRetries int    `yaml:"redis_max_retries"`
}

// StorageConfig holds persistence settings
type StorageConfig struct {
	storage.Config `yaml:",inline"`

	// Retention is the age after which scans are pruned; zero keeps everything
	Retention time.Duration `yaml:"retention"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ScheduleConfig holds background job settings. Empty cron expressions
// disable the job.
type ScheduleConfig struct {
	ScanCron      string        `yaml:"scan_cron"`
	RetentionCron string        `yaml:"retention_cron"`
	Watch         bool          `yaml:"watch"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// NotifyConfig holds webhook notification settings
type NotifyConfig struct {
	Webhooks []webhooks.Webhook   `yaml:"webhooks"`
	Retry    webhooks.RetryConfig `yaml:"retry"`
	Timeout  time.Duration        `yaml:"timeout"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"` // Use insecure gRPC connection
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			PluginsRoot:       "./plugins",
			Mode:              string(plugins.ScanModeAll),
			LatePriority:      conflicts.DefaultLatePriority,
			FinalizerPriority: conflicts.DefaultFinalizerPriority,
			Timeout:           2 * time.Minute,
		},
		Cache: CacheConfig{
			Backend:       CacheBackendMemory,
			TTL:           time.Hour,
			MaxEntries:    128,
			RedisURL:      "redis://localhost:6379",
			RedisPoolSize: 10,
		},
		Storage: StorageConfig{
			Config:    storage.DefaultConfig(),
			Retention: 30 * 24 * time.Hour,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    3 * time.Minute,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Schedule: ScheduleConfig{
			RetentionCron: "@daily",
			WatchDebounce: 2 * time.Second,
		},
		Notify: NotifyConfig{
			Retry:   webhooks.DefaultRetryConfig(),
			Timeout: 2 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			LogFormat:          observability.FormatText,
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "conflictmapper",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1.0,
		},
	}
}

// LoadConfig loads configuration from environment variables over defaults
func LoadConfig() (*Config, error) {
	return Load("")
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when empty), then environment variables, and validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadScanConfig()
	cfg.loadCacheConfig()
	cfg.loadStorageConfig()
	cfg.loadServerConfig()
	cfg.loadScheduleConfig()
	cfg.loadNotifyConfig()
	cfg.loadObservabilityConfig()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile overlays the YAML document at path onto c. Keys absent from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// loadScanConfig loads scan configuration from environment
func (c *Config) loadScanConfig() {
	s := &c.Scan
	s.PluginsRoot = getEnv("PLUGINS_ROOT", s.PluginsRoot)
	s.Mode = getEnv("SCAN_MODE", s.Mode)
	s.LatePriority = getEnvInt("LATE_PRIORITY", s.LatePriority)
	s.FinalizerPriority = getEnvInt("FINALIZER_PRIORITY", s.FinalizerPriority)
	s.KnownConflictsFile = getEnv("KNOWN_CONFLICTS_FILE", s.KnownConflictsFile)
	s.Timeout = getEnvDuration("SCAN_TIMEOUT", s.Timeout)
	s.ReadOnly = getEnvBool("READ_ONLY", s.ReadOnly)
}

// loadCacheConfig loads cache configuration from environment
func (c *Config) loadCacheConfig() {
	cc := &c.Cache
	cc.Backend = strings.ToLower(getEnv("CACHE_BACKEND", cc.Backend))
	cc.TTL = getEnvDuration("CACHE_TTL", cc.TTL)
	cc.MaxEntries = getEnvInt("CACHE_SIZE", cc.MaxEntries)
	cc.RedisURL = getEnv("REDIS_URL", cc.RedisURL)
	cc.RedisPassword = getEnv("REDIS_PASSWORD", cc.RedisPassword)
	cc.RedisDB = getEnvInt("REDIS_DB", cc.RedisDB)
	cc.RedisPoolSize = getEnvInt("REDIS_POOL_SIZE", cc.RedisPoolSize)
	cc.RedisMaxRetries = getEnvInt("REDIS_MAX_RETRIES", cc.RedisMaxRetries)
}

// loadStorageConfig loads storage configuration from environment
func (c *Config) loadStorageConfig() {
	s := &c.Storage
	s.Driver = getEnv("STORAGE_DRIVER", s.Driver)
	s.DSN = getEnv("STORAGE_DSN", s.DSN)
	s.MaxConns = getEnvInt("STORAGE_MAX_CONNS", s.MaxConns)
	s.MinConns = getEnvInt("STORAGE_MIN_CONNS", s.MinConns)
	s.Timeout = getEnvDuration("STORAGE_TIMEOUT", s.Timeout)
	s.Retention = getEnvDuration("RETENTION", s.Retention)

	// Archive config
	s.ArchiveDir = getEnv("ARCHIVE_DIR", s.ArchiveDir)
	s.S3Endpoint = getEnv("S3_ENDPOINT", s.S3Endpoint)
	s.S3Region = getEnv("S3_REGION", s.S3Region)
	s.S3Bucket = getEnv("S3_BUCKET", s.S3Bucket)
	s.S3Prefix = getEnv("S3_PREFIX", s.S3Prefix)
	s.S3AccessKey = getEnv("S3_ACCESS_KEY", s.S3AccessKey)
	s.S3SecretKey = getEnv("S3_SECRET_KEY", s.S3SecretKey)
	s.S3UsePathStyle = getEnvBool("S3_USE_PATH_STYLE", s.S3UsePathStyle)
	s.S3CreateBucket = getEnvBool("S3_CREATE_BUCKET", s.S3CreateBucket)
}

// loadServerConfig loads server configuration from environment
func (c *Config) loadServerConfig() {
	s := &c.Server
	s.Host = getEnv("HOST", s.Host)
	s.Port = getEnv("PORT", s.Port)
	s.ReadTimeout = getEnvDuration("READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
}

// loadScheduleConfig loads background job configuration from environment
func (c *Config) loadScheduleConfig() {
	s := &c.Schedule
	s.ScanCron = getEnv("SCAN_CRON", s.ScanCron)
	s.RetentionCron = getEnv("RETENTION_CRON", s.RetentionCron)
	s.Watch = getEnvBool("WATCH", s.Watch)
	s.WatchDebounce = getEnvDuration("WATCH_DEBOUNCE", s.WatchDebounce)
}

// loadNotifyConfig appends the webhook named by CONFLICTMAP_WEBHOOK_URL to
// any from the config file
func (c *Config) loadNotifyConfig() {
	n := &c.Notify
	if url := getEnv("WEBHOOK_URL", ""); url != "" {
		hook := webhooks.Webhook{
			Name:   "env",
			URL:    url,
			Secret: getEnv("WEBHOOK_SECRET", ""),
		}
		for _, e := range strings.Split(getEnv("WEBHOOK_EVENTS", ""), ",") {
			if e = strings.TrimSpace(e); e != "" {
				hook.Events = append(hook.Events, e)
			}
		}
		n.Webhooks = append(n.Webhooks, hook)
	}
	n.Retry.MaxAttempts = getEnvInt("WEBHOOK_MAX_ATTEMPTS", n.Retry.MaxAttempts)
	n.Timeout = getEnvDuration("WEBHOOK_TIMEOUT", n.Timeout)
}

// loadObservabilityConfig loads observability configuration from environment
func (c *Config) loadObservabilityConfig() {
	o := &c.Observability
	o.LogLevel = getEnv("LOG_LEVEL", o.LogLevel)
	o.LogFormat = getEnv("LOG_FORMAT", o.LogFormat)
	o.MetricsEnabled = getEnvBool("METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Scan
	if c.Scan.PluginsRoot == "" {
		return fmt.Errorf("plugins root is required")
	}
	if _, ok := plugins.ParseScanMode(c.Scan.Mode); !ok {
		return fmt.Errorf("invalid scan mode: %s (must be all or active-only)", c.Scan.Mode)
	}
	if c.Scan.LatePriority <= 0 {
		return fmt.Errorf("late priority must be positive")
	}
	if c.Scan.FinalizerPriority <= 0 {
		return fmt.Errorf("finalizer priority must be positive")
	}
	if c.Scan.Timeout <= 0 {
		return fmt.Errorf("scan timeout must be positive")
	}

	// Cache
	switch c.Cache.Backend {
	case CacheBackendNone:
	case CacheBackendMemory:
		if c.Cache.MaxEntries <= 0 {
			return fmt.Errorf("cache size must be positive for the memory cache")
		}
	case CacheBackendRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis cache")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be memory, redis, or none)", c.Cache.Backend)
	}
	if c.Cache.Backend != CacheBackendNone && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}

	// Storage
	if _, err := storage.ParseDialect(c.Storage.Driver); err != nil {
		return err
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage DSN is required")
	}
	if c.Storage.Retention < 0 {
		return fmt.Errorf("retention must not be negative")
	}

	// Server
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	// Schedule
	if err := validateCron("scan", c.Schedule.ScanCron); err != nil {
		return err
	}
	if err := validateCron("retention", c.Schedule.RetentionCron); err != nil {
		return err
	}

	// Notify
	for _, hook := range c.Notify.Webhooks {
		if err := hook.Validate(); err != nil {
			return err
		}
	}
	if len(c.Notify.Webhooks) > 0 && c.Notify.Timeout <= 0 {
		return fmt.Errorf("webhook timeout must be positive")
	}

	// Observability
	if _, err := observability.NewLogger(c.Observability.LogLevel, c.Observability.LogFormat, nil); err != nil {
		return err
	}
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// ScanMode returns the parsed scan mode
func (c *Config) ScanMode() plugins.ScanMode {
	mode, _ := plugins.ParseScanMode(c.Scan.Mode)
	return mode
}

// OTel returns the tracing settings in the form InitOTel takes
func (c *Config) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.Observability.OTelEnabled,
		Endpoint:       c.Observability.OTelEndpoint,
		ServiceName:    c.Observability.OTelServiceName,
		ServiceVersion: c.Observability.OTelServiceVersion,
		Insecure:       c.Observability.OTelInsecure,
		SampleRatio:    c.Observability.OTelSampleRatio,
	}
}

func validateCron(name, spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid %s schedule %q: %w", name, spec, err)
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
