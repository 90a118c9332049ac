package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/conflictmapper/pkg/app"
	"github.com/platinummonkey/conflictmapper/pkg/cache"
	"github.com/platinummonkey/conflictmapper/pkg/config"
	"github.com/platinummonkey/conflictmapper/pkg/conflicts"
	"github.com/platinummonkey/conflictmapper/pkg/events"
	"github.com/platinummonkey/conflictmapper/pkg/observability"
	"github.com/platinummonkey/conflictmapper/pkg/plugins"
	"github.com/platinummonkey/conflictmapper/pkg/storage"
	"github.com/platinummonkey/conflictmapper/pkg/webhooks"
)

// Version is reported by health checks and OTel resources
const Version = "1.0.0"

// Runtime holds the components built from a configuration
type Runtime struct {
	Config   *config.Config
	App      *app.App
	Store    *storage.SQLStore
	Cache    *cache.SnapshotCache // nil when caching is disabled
	Events   *events.Manager
	Metrics  *observability.Metrics // nil when metrics are disabled
	Registry *prometheus.Registry
	Health   *observability.HealthChecker
	Notifier *webhooks.Notifier // nil when no webhooks are configured
	Log      *logrus.Logger

	closers []func() error
}

// Build opens the store, cache and archiver named by cfg and wires them into
// an App. Close releases everything that was opened, also after a failure
// part way through.
func Build(cfg *config.Config, log *logrus.Logger) (*Runtime, error) {
	if log == nil {
		log = logrus.New()
	}

	rt := &Runtime{
		Config: cfg,
		Events: events.NewManager(log),
		Health: observability.NewHealthChecker(Version),
		Log:    log,
	}

	if cfg.Observability.MetricsEnabled {
		rt.Registry = prometheus.NewRegistry()
		rt.Metrics = observability.NewMetrics(rt.Registry)
	}

	store, err := storage.Open(cfg.Storage.Config, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	rt.Store = store
	rt.closers = append(rt.closers, store.Close)
	rt.Health.Register("store", true, store.HealthCheck)

	archiver, err := storage.NewArchiver(cfg.Storage.Config)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create archiver: %w", err)
	}

	cacheStore, err := NewCacheStore(cfg.Cache)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if cacheStore != nil {
		rt.Cache = cache.NewSnapshotCache(cacheStore, cfg.Cache.TTL, log)
		rt.closers = append(rt.closers, rt.Cache.Close)
		if pinger, ok := cacheStore.(interface{ Ping(context.Context) error }); ok {
			rt.Health.Register("cache", false, pinger.Ping)
		}
	}

	if len(cfg.Notify.Webhooks) > 0 {
		notifier, err := webhooks.NewNotifier(cfg.Notify.Webhooks, webhooks.Options{
			Retry:   cfg.Notify.Retry,
			Timeout: cfg.Notify.Timeout,
			Metrics: rt.Metrics,
			Log:     log,
		})
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to create webhook notifier: %w", err)
		}
		notifier.Subscribe(rt.Events)
		rt.Notifier = notifier
		rt.closers = append(rt.closers, notifier.Close)
	}

	dataset, err := LoadDataset(cfg.Scan.KnownConflictsFile)
	if err != nil {
		rt.Close()
		return nil, err
	}

	opts := app.Options{
		Mode:     cfg.ScanMode(),
		ReadOnly: cfg.Scan.ReadOnly,
		Detector: conflicts.NewDetector(conflicts.Options{
			LatePriority:      cfg.Scan.LatePriority,
			FinalizerPriority: cfg.Scan.FinalizerPriority,
			Dataset:           dataset,
			Log:               log,
		}),
		Store:       store,
		Cache:       rt.Cache,
		Archiver:    archiver,
		Events:      rt.Events,
		Metrics:     rt.Metrics,
		ScanTimeout: cfg.Scan.Timeout,
		Log:         log,
	}
	if !cfg.Scan.ReadOnly {
		opts.Registry = plugins.NewFilesystemRegistry(cfg.Scan.PluginsRoot, log)
	}

	a, err := app.New(opts)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create app: %w", err)
	}
	rt.App = a

	return rt, nil
}

// NewCacheStore opens the cache backend named by cfg; "none" yields nil
func NewCacheStore(cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Backend {
	case config.CacheBackendNone:
		return nil, nil
	case config.CacheBackendRedis:
		store, err := cache.NewRedisStore(cache.RedisConfig{
			URL:        cfg.RedisURL,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			MaxRetries: cfg.RedisMaxRetries,
			PoolSize:   cfg.RedisPoolSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open redis cache: %w", err)
		}
		return store, nil
	default:
		store, err := cache.NewMemoryStore(cfg.MaxEntries)
		if err != nil {
			return nil, fmt.Errorf("failed to create memory cache: %w", err)
		}
		return store, nil
	}
}

// LoadDataset returns the known-conflicts dataset at path, or the built-in
// one when path is empty.
func LoadDataset(path string) (*conflicts.Dataset, error) {
	if path == "" {
		return conflicts.DefaultDataset()
	}
	ds, err := conflicts.LoadDataset(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load known conflicts from %s: %w", path, err)
	}
	return ds, nil
}

// Close releases resources in reverse order of opening
func (r *Runtime) Close() error {
	var firstErr error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.closers = nil
	return firstErr
}
