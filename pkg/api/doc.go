// Package api exposes the conflict analysis pipeline over HTTP.
//
// Routes:
//
//	POST   /api/v1/scans                  run a full scan (201, or 200 on a cache hit)
//	GET    /api/v1/scans?limit=&offset=   list stored scan summaries, newest first
//	GET    /api/v1/scans/latest           newest stored snapshot
//	GET    /api/v1/scans/{id}             one stored snapshot
//	DELETE /api/v1/scans?older_than=720h  prune scans older than the given age
//	GET    /api/v1/stats                  aggregate scan statistics
//	DELETE /api/v1/cache                  drop the cached snapshot of the last run
//	GET    /healthz                       readiness, including the store probe
//	GET    /livez                         liveness
//	GET    /metrics                       Prometheus exposition
//
// Every body is an httputil.Envelope. Pipeline failures are returned as 500
// with success=false and the diagnostic code from app.DiagnosticCode
// (SCAN_FAILED, PERSISTENCE_FAILED, SCAN_TIMEOUT). READ_ONLY is returned as
// 403. Scan warnings travel in the envelope's warnings field while the
// request itself succeeds.
//
// The handler chain is otelhttp, recovery, request id, access logging and a
// body size limit, with per-route Prometheus metrics applied inside the
// router so requests are labelled by route template.
package api
