package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/conflictmapper/pkg/app"
	"github.com/platinummonkey/conflictmapper/pkg/cache"
	"github.com/platinummonkey/conflictmapper/pkg/conflicts"
	"github.com/platinummonkey/conflictmapper/pkg/httputil"
	"github.com/platinummonkey/conflictmapper/pkg/observability"
	"github.com/platinummonkey/conflictmapper/pkg/snapshot"
	"github.com/platinummonkey/conflictmapper/pkg/storage"
)

// ListResponse is the data of GET /api/v1/scans
type ListResponse struct {
	Scans  []snapshot.Summary `json:"scans"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// PruneResponse is the data of DELETE /api/v1/scans
type PruneResponse struct {
	Removed   int64     `json:"removed"`
	OlderThan time.Time `json:"older_than"`
}

// ConflictsResponse is the data of GET /api/v1/scans/{id}/conflicts
type ConflictsResponse struct {
	ScanID       int64                      `json:"scan_id"`
	Plugin       string                     `json:"plugin,omitempty"`
	CriticalOnly bool                       `json:"critical_only"`
	Conflicts    []conflicts.ConflictRecord `json:"conflicts"`
	Summary      conflicts.Summary          `json:"summary"`
}

// CacheResponse is the data of DELETE /api/v1/cache when the cache backend
// could not be reached
type CacheResponse struct {
	Invalidated bool `json:"invalidated"`
}

// runScan handles POST /api/v1/scans
func (s *Server) runScan(w http.ResponseWriter, r *http.Request) {
	res, err := s.app.RunFullScan(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Cached {
		status = http.StatusOK
	}
	httputil.WriteData(w, status, res, warnings(res.Warnings))
}

// listScans handles GET /api/v1/scans
func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseQueryInt(r, "limit", defaultListLimit)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	list, err := s.app.ListSnapshots(r.Context(), limit, offset)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if list == nil {
		list = []snapshot.Summary{}
	}

	httputil.WriteOK(w, ListResponse{Scans: list, Limit: limit, Offset: offset})
}

// latestScan handles GET /api/v1/scans/latest
func (s *Server) latestScan(w http.ResponseWriter, r *http.Request) {
	snap, err := s.app.GetLatestSnapshot(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if snap == nil {
		httputil.WriteNotFound(w, "no scans recorded yet")
		return
	}
	httputil.WriteData(w, http.StatusOK, snap, warnings(snap.Warnings))
}

// getScan handles GET /api/v1/scans/{id}
func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	snap, err := s.app.GetSnapshot(r.Context(), id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if snap == nil {
		httputil.WriteNotFound(w, "scan not found")
		return
	}
	httputil.WriteData(w, http.StatusOK, snap, warnings(snap.Warnings))
}

// deleteScan handles DELETE /api/v1/scans/{id}
func (s *Server) deleteScan(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.app.DeleteSnapshot(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFound(w, "scan not found")
			return
		}
		s.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// scanConflicts handles GET /api/v1/scans/{id}/conflicts and
// /api/v1/scans/latest/conflicts, filtered by ?plugin= and ?critical_only=
func (s *Server) scanConflicts(w http.ResponseWriter, r *http.Request) {
	criticalOnly, err := httputil.ParseQueryBool(r, "critical_only", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	pluginID := r.URL.Query().Get("plugin")

	var snap *snapshot.Snapshot
	if _, byID := mux.Vars(r)["id"]; byID {
		id, ok := httputil.ParsePathInt64OrError(w, r, "id")
		if !ok {
			return
		}
		snap, err = s.app.GetSnapshot(r.Context(), id)
	} else {
		snap, err = s.app.GetLatestSnapshot(r.Context())
	}
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if snap == nil {
		httputil.WriteNotFound(w, "scan not found")
		return
	}

	records := snap.Conflicts
	if pluginID != "" {
		records = conflicts.ForPlugin(records, pluginID)
	}
	filtered := make([]conflicts.ConflictRecord, 0, len(records))
	for _, c := range records {
		if criticalOnly && c.Severity != conflicts.SeverityCritical {
			continue
		}
		filtered = append(filtered, c)
	}

	httputil.WriteOK(w, ConflictsResponse{
		ScanID:       snap.ID,
		Plugin:       pluginID,
		CriticalOnly: criticalOnly,
		Conflicts:    filtered,
		Summary:      conflicts.Summarize(filtered),
	})
}

// pruneScans handles DELETE /api/v1/scans?older_than=720h
func (s *Server) pruneScans(w http.ResponseWriter, r *http.Request) {
	if s.app.ReadOnly() {
		s.writeAppError(w, r, app.ErrReadOnly)
		return
	}

	age, err := httputil.ParseQueryDuration(r, "older_than", s.retention)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if age <= 0 {
		httputil.WriteBadRequest(w, "older_than must be positive")
		return
	}

	cutoff := time.Now().Add(-age).UTC()
	n, err := s.app.Prune(r.Context(), cutoff)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	httputil.WriteOK(w, PruneResponse{Removed: n, OlderThan: cutoff})
}

// stats handles GET /api/v1/stats
func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.app.Stats(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	httputil.WriteOK(w, stats)
}

// invalidateCache handles DELETE /api/v1/cache
func (s *Server) invalidateCache(w http.ResponseWriter, r *http.Request) {
	if err := s.app.InvalidateCache(r.Context()); err != nil {
		var cacheErr *cache.CacheError
		if !errors.As(err, &cacheErr) {
			s.writeAppError(w, r, err)
			return
		}
		s.log.WithError(err).Warn("Cache invalidation failed")
		httputil.WriteData(w, http.StatusOK, CacheResponse{Invalidated: false}, []snapshot.Warning{{
			Code:    snapshot.WarningCacheUnavailable,
			Message: err.Error(),
		}})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeAppError maps an app error onto its status and diagnostic code
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	code := app.DiagnosticCode(err)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, app.ErrReadOnly):
		status = http.StatusForbidden
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	}

	observability.FromContext(observability.WithLogger(r.Context(), s.log)).WithFields(logrus.Fields{
		"code":  code,
		"error": err.Error(),
	}).Error("API request failed")

	if code == app.CodeInternal {
		httputil.WriteFailure(w, status, code, "internal server error")
		return
	}
	httputil.WriteError(w, status, code, err)
}

// warnings returns nil for an empty list so the envelope omits it
func warnings(ws []snapshot.Warning) interface{} {
	if len(ws) == 0 {
		return nil
	}
	return ws
}
