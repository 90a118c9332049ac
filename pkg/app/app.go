package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/conflictmapper/pkg/cache"
	"github.com/platinummonkey/conflictmapper/pkg/conflicts"
	"github.com/platinummonkey/conflictmapper/pkg/events"
	"github.com/platinummonkey/conflictmapper/pkg/observability"
	"github.com/platinummonkey/conflictmapper/pkg/overlap"
	"github.com/platinummonkey/conflictmapper/pkg/plugins"
	"github.com/platinummonkey/conflictmapper/pkg/ranking"
	"github.com/platinummonkey/conflictmapper/pkg/snapshot"
	"github.com/platinummonkey/conflictmapper/pkg/storage"
)

// DefaultScanTimeout bounds one RunFullScan call
const DefaultScanTimeout = 2 * time.Minute

var tracer = otel.Tracer("conflictmapper/app")

// Options configures an App. Registry and Store are required unless
// ReadOnly is set, in which case only Store is.
type Options struct {
	Registry plugins.HostRegistry
	Mode     plugins.ScanMode
	ReadOnly bool

	Detector *conflicts.Detector
	Analyzer *overlap.Analyzer
	Ranker   *ranking.Engine

	Store    storage.Store
	Cache    *cache.SnapshotCache // nil disables caching
	Archiver storage.Archiver     // nil disables archiving

	Events  *events.Manager
	Metrics *observability.Metrics

	ScanTimeout time.Duration
	Log         *logrus.Logger
	Now         func() time.Time
}

// Result is the outcome of one RunFullScan call
type Result struct {
	Snapshot        *snapshot.Snapshot `json:"snapshot"`
	Cached          bool               `json:"cached"`
	ArchiveLocation string             `json:"archive_location,omitempty"`

	// Warnings holds the snapshot's scan warnings plus any cache or
	// archive problems hit during this run.
	Warnings []snapshot.Warning `json:"warnings"`
}

// App wires the scanner, detector, analyzer, ranking engine, cache and
// store into the full analysis pipeline.
type App struct {
	registry plugins.HostRegistry
	scanner  *plugins.Scanner
	mode     plugins.ScanMode
	readOnly bool

	detector *conflicts.Detector
	analyzer *overlap.Analyzer
	ranker   *ranking.Engine

	store    storage.Store
	cache    *cache.SnapshotCache
	archiver storage.Archiver

	events  *events.Manager
	metrics *observability.Metrics

	scanTimeout time.Duration
	log         *logrus.Logger
	now         func() time.Time

	// mu serializes runs so two identical runs never both persist
	mu              sync.Mutex
	lastFingerprint string
}

// New creates an App, filling unset components with defaults
func New(opts Options) (*App, error) {
	if opts.Store == nil {
		return nil, ErrNoStore
	}
	if opts.Registry == nil && !opts.ReadOnly {
		return nil, ErrNoRegistry
	}
	if opts.Log == nil {
		opts.Log = logrus.New()
	}
	if opts.Mode == "" {
		opts.Mode = plugins.ScanModeAll
	}
	if opts.Detector == nil {
		ds, err := conflicts.DefaultDataset()
		if err != nil {
			return nil, fmt.Errorf("failed to load known conflicts: %w", err)
		}
		opts.Detector = conflicts.NewDetector(conflicts.Options{Dataset: ds, Log: opts.Log})
	}
	if opts.Analyzer == nil {
		opts.Analyzer = overlap.NewAnalyzer(opts.Log)
	}
	if opts.Ranker == nil {
		opts.Ranker = ranking.NewEngine(ranking.Options{Log: opts.Log})
	}
	if opts.Events == nil {
		opts.Events = events.NewManager(opts.Log)
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = DefaultScanTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	a := &App{
		registry:    opts.Registry,
		mode:        opts.Mode,
		readOnly:    opts.ReadOnly,
		detector:    opts.Detector,
		analyzer:    opts.Analyzer,
		ranker:      opts.Ranker,
		store:       opts.Store,
		cache:       opts.Cache,
		archiver:    opts.Archiver,
		events:      opts.Events,
		metrics:     opts.Metrics,
		scanTimeout: opts.ScanTimeout,
		log:         opts.Log,
		now:         opts.Now,
	}
	if opts.Registry != nil {
		a.scanner = plugins.NewScanner(opts.Registry, plugins.ScanOptions{Mode: opts.Mode, Log: opts.Log})
	}
	return a, nil
}

// Events returns the event manager handlers are registered on
func (a *App) Events() *events.Manager {
	return a.events
}

// Store returns the snapshot store
func (a *App) Store() storage.Store {
	return a.store
}

// Mode returns the scan mode
func (a *App) Mode() plugins.ScanMode {
	return a.mode
}

// ReadOnly reports whether scans are disabled
func (a *App) ReadOnly() bool {
	return a.readOnly
}

// RunFullScan runs scanner, detector, analyzer and ranking over the
// installed plugins, persists the snapshot and caches it. When the
// installed set is unchanged since a cached run the cached snapshot is
// returned without persisting a new one.
func (a *App) RunFullScan(ctx context.Context) (*Result, error) {
	if a.readOnly {
		return nil, ErrReadOnly
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, a.scanTimeout)
	defer cancel()

	runID := uuid.NewString()
	ctx = observability.WithRunID(ctx, runID)
	ctx, span := tracer.Start(ctx, "App.RunFullScan",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.String("scan_type", string(a.mode)),
		),
	)
	defer span.End()

	start := time.Now()
	log := a.log.WithFields(logrus.Fields{
		"run_id":    runID,
		"scan_type": a.mode,
	})
	a.events.Emit(ctx, events.EventScanStarted, map[string]any{
		"run_id":    runID,
		"scan_type": string(a.mode),
	})

	result, err := a.run(ctx, runID, log)
	elapsed := time.Since(start)

	if err != nil {
		code := DiagnosticCode(err)
		observability.FailSpan(span, err)
		a.metrics.RecordScan(observability.ScanStatusFailed, elapsed)
		log.WithError(err).WithField("code", code).Error("Scan failed")
		a.events.Emit(ctx, events.EventScanFailed, map[string]any{
			"run_id": runID,
			"code":   code,
			"error":  err.Error(),
		})
		return nil, err
	}

	status := observability.ScanStatusSuccess
	if result.Cached {
		status = observability.ScanStatusCached
	}
	a.metrics.RecordScan(status, elapsed)
	span.SetAttributes(
		attribute.Bool("cached", result.Cached),
		attribute.Int64("snapshot_id", result.Snapshot.ID),
	)

	log.WithFields(logrus.Fields{
		"snapshot_id": result.Snapshot.ID,
		"plugins":     result.Snapshot.PluginCount,
		"conflicts":   len(result.Snapshot.Conflicts),
		"cached":      result.Cached,
		"duration_ms": elapsed.Milliseconds(),
	}).Info("Scan complete")

	return result, nil
}

func (a *App) run(ctx context.Context, runID string, log *logrus.Entry) (*Result, error) {
	exts, err := a.registry.ListInstalled(ctx)
	if err != nil {
		return nil, scanFailure(err)
	}

	fingerprint, err := a.fingerprint(ctx, exts)
	if err != nil {
		return nil, err
	}
	a.lastFingerprint = fingerprint
	log = log.WithField("fingerprint", fingerprint)

	var runWarnings []snapshot.Warning

	if a.cache != nil {
		cached, err := a.cache.Get(ctx, fingerprint)
		switch {
		case err == nil:
			a.cacheHit()
			log.Debug("Serving snapshot from cache")
			a.events.Emit(ctx, events.EventCacheHit, map[string]any{
				"run_id":      runID,
				"fingerprint": fingerprint,
				"snapshot_id": cached.ID,
			})
			return &Result{
				Snapshot: cached,
				Cached:   true,
				Warnings: append([]snapshot.Warning{}, cached.Warnings...),
			}, nil
		case errors.Is(err, cache.ErrCacheMiss):
			a.cacheMiss()
		default:
			a.cacheError("get")
			log.WithError(err).Warn("Cache unavailable, recomputing")
			runWarnings = append(runWarnings, snapshot.Warning{
				Code:    snapshot.WarningCacheUnavailable,
				Message: err.Error(),
			})
		}
	}

	snap, err := a.analyze(ctx, runID, fingerprint, exts)
	if err != nil {
		return nil, err
	}

	if err := a.persist(ctx, snap); err != nil {
		return nil, err
	}

	result := &Result{Snapshot: snap}

	if a.cache != nil {
		if err := a.cache.Set(ctx, snap); err != nil {
			a.cacheError("set")
			log.WithError(err).Warn("Failed to cache snapshot")
			runWarnings = append(runWarnings, snapshot.Warning{
				Code:    snapshot.WarningCacheUnavailable,
				Message: err.Error(),
			})
		}
	}

	if a.archiver != nil {
		location, err := a.archiver.Archive(ctx, snap)
		if err != nil {
			log.WithError(err).Warn("Failed to archive snapshot")
			runWarnings = append(runWarnings, snapshot.Warning{
				Code:    snapshot.WarningArchiveFailed,
				Message: err.Error(),
			})
		} else {
			result.ArchiveLocation = location
			a.events.Emit(ctx, events.EventSnapshotArchived, map[string]any{
				"snapshot_id": snap.ID,
				"location":    location,
			})
		}
	}

	result.Warnings = append(append([]snapshot.Warning{}, snap.Warnings...), runWarnings...)
	a.recordSnapshot(snap)

	if snap.ConflictSummary.Critical > 0 {
		critical := make([]string, 0, snap.ConflictSummary.Critical)
		for _, c := range snap.Conflicts {
			if c.Severity == conflicts.SeverityCritical {
				critical = append(critical, c.Description)
			}
		}
		a.events.Emit(ctx, events.EventCriticalConflicts, map[string]any{
			"run_id":      runID,
			"snapshot_id": snap.ID,
			"count":       snap.ConflictSummary.Critical,
			"conflicts":   critical,
		})
	}
	a.events.Emit(ctx, events.EventScanCompleted, map[string]any{
		"run_id":      runID,
		"snapshot_id": snap.ID,
		"plugins":     snap.PluginCount,
		"conflicts":   snap.ConflictSummary.Total,
	})

	return result, nil
}

// fingerprint hashes the (id, version) pairs of the extensions the scan
// covers. In active-only mode inactive extensions are left out so toggling
// activation changes the key.
func (a *App) fingerprint(ctx context.Context, exts []plugins.RawExtension) (string, error) {
	entries := make([]cache.Entry, 0, len(exts))
	for _, ext := range exts {
		id := ext.ID()
		if a.mode == plugins.ScanModeActiveOnly {
			active, err := a.registry.IsActive(ctx, id)
			if err != nil {
				return "", scanFailure(err)
			}
			if !active {
				continue
			}
		}
		entries = append(entries, cache.Entry{ID: id, Version: ext.VersionOrDefault()})
	}
	return cache.Fingerprint(string(a.mode), entries), nil
}

// analyze builds the snapshot for one run. The detector, analyzer and
// hook-similarity pass share the immutable plugin slice and run
// concurrently; ranking waits for all three.
func (a *App) analyze(ctx context.Context, runID, fingerprint string, exts []plugins.RawExtension) (*snapshot.Snapshot, error) {
	started := a.now()

	scanCtx, scanSpan := tracer.Start(ctx, "Scanner.ScanExtensions")
	scanned, err := a.scanner.ScanExtensions(scanCtx, exts)
	scanSpan.End()
	if err != nil {
		return nil, scanFailure(err)
	}
	list := scanned.Plugins

	var (
		records      []conflicts.ConflictRecord
		clusters     []overlap.Cluster
		similarities []overlap.HookSimilarity
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, span := tracer.Start(gctx, "Detector.Detect")
		defer span.End()
		records = a.detector.Detect(list)
		return nil
	})
	g.Go(func() error {
		_, span := tracer.Start(gctx, "Analyzer.Analyze")
		defer span.End()
		clusters = a.analyzer.Analyze(list)
		return nil
	})
	g.Go(func() error {
		_, span := tracer.Start(gctx, "SimilarHookUsage")
		defer span.End()
		similarities = overlap.SimilarHookUsage(list)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, rankSpan := tracer.Start(ctx, "Ranker.Rank")
	ranked := a.ranker.Rank(list, records, clusters)
	rankSpan.End()

	snap := &snapshot.Snapshot{
		RunID:            runID,
		Timestamp:        started.UTC(),
		ScanType:         a.mode,
		Fingerprint:      fingerprint,
		PluginCount:      len(list),
		Plugins:          list,
		Conflicts:        records,
		ConflictSummary:  conflicts.Summarize(records),
		Overlaps:         clusters,
		HookSimilarities: similarities,
		Ranked:           ranked,
		Warnings:         snapshot.FromScanWarnings(scanned.Warnings),
		DurationMs:       a.now().Sub(started).Milliseconds(),
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("inconsistent snapshot: %w", err)
	}
	return snap, nil
}

// persist saves the snapshot; nothing is cached when this fails
func (a *App) persist(ctx context.Context, snap *snapshot.Snapshot) error {
	id, err := a.store.SaveScan(ctx, snap)
	a.metrics.RecordStorage("save", err)
	if err != nil {
		return asPersistenceError("save", err)
	}
	snap.ID = id
	return nil
}

// GetLatestSnapshot returns the newest stored snapshot, or nil when no scan
// has been saved.
func (a *App) GetLatestSnapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	snap, err := a.store.LatestScan(ctx)
	a.metrics.RecordStorage("latest", err)
	if err != nil {
		return nil, asPersistenceError("latest", err)
	}
	return snap, nil
}

// GetSnapshot returns a stored snapshot by id, or nil when absent
func (a *App) GetSnapshot(ctx context.Context, id int64) (*snapshot.Snapshot, error) {
	snap, err := a.store.GetScan(ctx, id)
	a.metrics.RecordStorage("get", err)
	if err != nil {
		return nil, asPersistenceError("get", err)
	}
	return snap, nil
}

// ListSnapshots returns stored snapshot summaries, newest first
func (a *App) ListSnapshots(ctx context.Context, limit, offset int) ([]snapshot.Summary, error) {
	list, err := a.store.ListScans(ctx, limit, offset)
	a.metrics.RecordStorage("list", err)
	if err != nil {
		return nil, asPersistenceError("list", err)
	}
	return list, nil
}

// Stats returns aggregate numbers over the stored scans
func (a *App) Stats(ctx context.Context) (*storage.Stats, error) {
	stats, err := a.store.Stats(ctx)
	a.metrics.RecordStorage("stats", err)
	if err != nil {
		return nil, asPersistenceError("stats", err)
	}
	return stats, nil
}

// DeleteSnapshot removes one stored snapshot and drops its cache entry so a
// later run cannot serve the deleted id. Returns storage.ErrNotFound when id
// does not exist.
func (a *App) DeleteSnapshot(ctx context.Context, id int64) error {
	if a.readOnly {
		return ErrReadOnly
	}

	snap, err := a.store.GetScan(ctx, id)
	a.metrics.RecordStorage("get", err)
	if err != nil {
		return asPersistenceError("get", err)
	}
	if snap == nil {
		return storage.ErrNotFound
	}

	err = a.store.DeleteScan(ctx, id)
	a.metrics.RecordStorage("delete", err)
	if errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if err != nil {
		return asPersistenceError("delete", err)
	}

	log := a.log.WithFields(logrus.Fields{"snapshot_id": id, "fingerprint": snap.Fingerprint})
	if a.cache != nil && snap.Fingerprint != "" {
		if err := a.cache.Invalidate(ctx, snap.Fingerprint); err != nil {
			a.cacheError("delete")
			log.WithError(err).Warn("Failed to drop cached snapshot")
		}
	}
	log.Info("Deleted scan")
	return nil
}

// Prune removes snapshots taken before olderThan and returns how many were removed
func (a *App) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	if a.readOnly {
		return 0, ErrReadOnly
	}

	n, err := a.store.DeleteOldScans(ctx, olderThan)
	a.metrics.RecordStorage("prune", err)
	if err != nil {
		return 0, asPersistenceError("prune", err)
	}

	if a.metrics != nil {
		a.metrics.ScansPrunedTotal.Add(float64(n))
	}
	a.log.WithFields(logrus.Fields{
		"removed":    n,
		"older_than": olderThan.UTC().Format(time.RFC3339),
	}).Info("Pruned old scans")
	if n > 0 {
		a.events.Emit(ctx, events.EventScansPruned, map[string]any{
			"removed":    n,
			"older_than": olderThan.UTC(),
		})
	}
	return n, nil
}

// InvalidateCache drops the cached snapshot of the current plugin set so the
// next RunFullScan recomputes. Before the first run of this process the
// fingerprint is computed from the registry, since a shared cache may hold
// an entry written by an earlier process.
func (a *App) InvalidateCache(ctx context.Context) error {
	if a.cache == nil {
		return nil
	}

	a.mu.Lock()
	fingerprint := a.lastFingerprint
	a.mu.Unlock()

	if fingerprint == "" {
		if a.registry == nil {
			return nil
		}
		exts, err := a.registry.ListInstalled(ctx)
		if err != nil {
			return scanFailure(err)
		}
		if fingerprint, err = a.fingerprint(ctx, exts); err != nil {
			return err
		}
	}
	if err := a.cache.Invalidate(ctx, fingerprint); err != nil {
		a.cacheError("delete")
		return err
	}
	a.log.WithField("fingerprint", fingerprint).Debug("Invalidated cached snapshot")
	return nil
}

// HealthCheck reports whether the store is reachable
func (a *App) HealthCheck(ctx context.Context) error {
	return a.store.HealthCheck(ctx)
}

func (a *App) recordSnapshot(snap *snapshot.Snapshot) {
	if a.metrics == nil {
		return
	}
	a.metrics.PluginsScanned.Set(float64(snap.PluginCount))
	a.metrics.OverlapClusters.Set(float64(len(snap.Overlaps)))
	a.metrics.MalformedPlugins.Set(float64(len(snap.Warnings)))
	a.metrics.SetConflicts(map[string]int{
		conflicts.SeverityCritical.String(): snap.ConflictSummary.Critical,
		conflicts.SeverityHigh.String():     snap.ConflictSummary.High,
		conflicts.SeverityMedium.String():   snap.ConflictSummary.Medium,
		conflicts.SeverityLow.String():      snap.ConflictSummary.Low,
	})
}

func (a *App) cacheHit() {
	if a.metrics != nil {
		a.metrics.CacheHitsTotal.Inc()
	}
}

func (a *App) cacheMiss() {
	if a.metrics != nil {
		a.metrics.CacheMissesTotal.Inc()
	}
}

func (a *App) cacheError(op string) {
	if a.metrics != nil {
		a.metrics.CacheErrorsTotal.WithLabelValues(op).Inc()
	}
}

// scanFailure wraps registry failures as ScanError, leaving context errors as they are
func scanFailure(err error) error {
	var se *plugins.ScanError
	if errors.As(err, &se) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return &plugins.ScanError{Err: err}
}

func asPersistenceError(op string, err error) error {
	var pe *storage.PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &storage.PersistenceError{Op: op, Err: err}
}
