// Package observability provides structured logging, Prometheus metrics,
// health checks and OpenTelemetry tracing for the conflict mapper.
//
// # Logging
//
//	logger, err := observability.NewLogger("info", "json", os.Stderr)
//	observability.FromContext(ctx).Info("scan started")
//
// FromContext adds request_id, run_id and, when a span is recording,
// trace_id and span_id.
//
// # Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordScan(observability.ScanStatusSuccess, elapsed)
//	http.Handle("/metrics", observability.MetricsHandler(registry))
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version)
//	checker.Register("database", true, store.HealthCheck)
//	checker.Register("redis", false, redisStore.Ping)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
