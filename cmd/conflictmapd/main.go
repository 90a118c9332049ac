package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/conflictmapper/pkg/api"
	"github.com/platinummonkey/conflictmapper/pkg/bootstrap"
	"github.com/platinummonkey/conflictmapper/pkg/config"
	"github.com/platinummonkey/conflictmapper/pkg/events"
	"github.com/platinummonkey/conflictmapper/pkg/observability"
	"github.com/platinummonkey/conflictmapper/pkg/scheduler"
	"github.com/platinummonkey/conflictmapper/pkg/watcher"
)

var (
	configPath  = flag.String("config", "", "Path to a YAML config file")
	pluginsDir  = flag.String("plugins", "", "Plugins root directory (overrides config)")
	scanOnStart = flag.Bool("scan-on-start", true, "Run one scan before serving")
)

// loggedEvents are forwarded to the process log
var loggedEvents = []string{
	events.EventScanCompleted,
	events.EventScanFailed,
	events.EventCriticalConflicts,
	events.EventSnapshotArchived,
	events.EventScansPruned,
	events.EventPluginsChanged,
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *pluginsDir != "" {
		cfg.Scan.PluginsRoot = *pluginsDir
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("conflictmapd stopped with an error")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := observability.InitOTel(ctx, cfg.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	rt, err := bootstrap.Build(cfg, logger)
	if err != nil {
		return err
	}

	for _, name := range loggedEvents {
		rt.Events.On(name, "log", events.LogHandler(logger))
	}

	scanCron, retentionCron := jobSpecs(cfg)
	sched, err := scheduler.New(rt.App, scheduler.Options{
		ScanSpec:      scanCron,
		RetentionSpec: retentionCron,
		Retention:     cfg.Storage.Retention,
		Log:           logger,
	})
	if err != nil {
		rt.Close()
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	var fsWatcher *watcher.Watcher
	if cfg.Schedule.Watch && !cfg.Scan.ReadOnly {
		fsWatcher, err = watcher.New(cfg.Scan.PluginsRoot, rt.App, watcher.Options{
			Debounce: cfg.Schedule.WatchDebounce,
			Events:   rt.Events,
			Log:      logger,
			OnChange: func(ctx context.Context, _ []string) {
				sched.RunScan(ctx)
			},
		})
		if err != nil {
			rt.Close()
			return fmt.Errorf("failed to watch plugins root: %w", err)
		}
	}

	apiServer := api.NewServer(api.Options{
		App:       rt.App,
		Health:    rt.Health,
		Metrics:   rt.Metrics,
		Registry:  rt.Registry,
		Retention: cfg.Storage.Retention,
		Log:       logger,
	})

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return rt.Close()
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		sched.Stop()
		return nil
	})
	if fsWatcher != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			cancel()
			return fsWatcher.Close()
		})
	}

	if *scanOnStart && !cfg.Scan.ReadOnly {
		sched.RunScan(ctx)
	}

	sched.Start(ctx)
	if fsWatcher != nil {
		go func() {
			defer observability.RecoverPanic(logger, "plugin watcher")
			if err := fsWatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Error("Plugin watcher stopped")
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":      httpServer.Addr,
			"plugins":   cfg.Scan.PluginsRoot,
			"driver":    cfg.Storage.Driver,
			"cache":     cfg.Cache.Backend,
			"read_only": cfg.Scan.ReadOnly,
			"webhooks":  len(cfg.Notify.Webhooks),
			"jobs":      sched.Jobs(),
		}).Info("Starting conflictmapd")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	waitCtx, stopWaiting := context.WithCancel(ctx)
	defer stopWaiting()
	go func() {
		if err, ok := <-serverErr; ok && err != nil {
			logger.WithError(err).Error("HTTP server failed")
			stopWaiting()
		}
	}()

	return shutdown.WaitForShutdown(waitCtx)
}

// jobSpecs returns the scan and retention schedules; a read-only process
// runs neither.
func jobSpecs(cfg *config.Config) (string, string) {
	if cfg.Scan.ReadOnly {
		return "", ""
	}
	return cfg.Schedule.ScanCron, cfg.Schedule.RetentionCron
}
