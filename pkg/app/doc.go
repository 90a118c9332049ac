// Package app is the composition root of the analysis pipeline.
//
// An App holds the host registry, scanner, conflict detector, overlap
// analyzer, ranking engine, snapshot cache and store as explicit fields.
// There is no package-level state; build one with New and pass it to the
// HTTP server, CLI commands, scheduler and watcher.
//
// # Running a scan
//
//	a, err := app.New(app.Options{
//		Registry: plugins.NewFilesystemRegistry("/var/www/wp-content/plugins", log),
//		Store:    store,
//		Cache:    cache.NewSnapshotCache(mem, time.Hour, log),
//	})
//	result, err := a.RunFullScan(ctx)
//	if err != nil {
//		fmt.Println(app.DiagnosticCode(err)) // SCAN_FAILED, PERSISTENCE_FAILED, SCAN_TIMEOUT
//	}
//
// RunFullScan fingerprints the installed (id, version) set first. A cached
// snapshot for the same fingerprint is returned as is; otherwise the
// detector and overlap analyzer run concurrently over the scanned plugins,
// ranking combines their output and the snapshot is saved in one
// transaction before it is cached and optionally archived.
//
// Cache and archive failures never fail a run. They are returned as
// warnings on the Result.
package app
