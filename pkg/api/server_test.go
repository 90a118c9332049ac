package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/conflictmapper/pkg/app"
	"github.com/platinummonkey/conflictmapper/pkg/cache"
	"github.com/platinummonkey/conflictmapper/pkg/httputil"
	"github.com/platinummonkey/conflictmapper/pkg/observability"
	"github.com/platinummonkey/conflictmapper/pkg/plugins"
	"github.com/platinummonkey/conflictmapper/pkg/snapshot"
	"github.com/platinummonkey/conflictmapper/pkg/storage"
)

type envelope struct {
	Success  bool              `json:"success"`
	Code     string            `json:"code"`
	Error    string            `json:"error"`
	Data     json.RawMessage   `json:"data"`
	Warnings []json.RawMessage `json:"warnings"`
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func writePlugin(t *testing.T, root, slug, manifest string) {
	t.Helper()
	dir := filepath.Join(root, slug)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.yaml"), []byte(manifest), 0644))
}

type testServer struct {
	server *Server
	store  *storage.SQLStore
	root   string
}

func setupServer(t *testing.T, mutate func(o *app.Options)) *testServer {
	t.Helper()

	root := t.TempDir()
	log := quietLogger()

	store, err := storage.Open(storage.Config{Driver: "sqlite", DSN: ":memory:"}, log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mem, err := cache.NewMemoryStore(16)
	require.NoError(t, err)
	snapCache := cache.NewSnapshotCache(mem, time.Hour, log)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	opts := app.Options{
		Registry: plugins.NewFilesystemRegistry(root, log),
		Store:    store,
		Cache:    snapCache,
		Metrics:  metrics,
		Log:      log,
	}
	if mutate != nil {
		mutate(&opts)
	}
	a, err := app.New(opts)
	require.NoError(t, err)

	srv := NewServer(Options{
		App:      a,
		Metrics:  metrics,
		Registry: registry,
		Log:      log,
	})
	return &testServer{server: srv, store: store, root: root}
}

func (ts *testServer) do(t *testing.T, method, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	ts.server.ServeHTTP(w, httptest.NewRequest(method, target, nil))

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func writeCollision(t *testing.T, root string) {
	writePlugin(t, root, "alpha", `
name: Alpha
version: 1.0.0
hooks:
  - name: init
    callback: alpha_init
    priority: 10
`)
	writePlugin(t, root, "beta", `
name: Beta
version: 1.0.0
hooks:
  - name: init
    callback: beta_init
    priority: 10
`)
}

func TestRunScan_CreatedThenCached(t *testing.T) {
	ts := setupServer(t, nil)
	writeCollision(t, ts.root)

	w, env := ts.do(t, "POST", "/api/v1/scans")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, w.Header().Get(httputil.RequestIDHeader))

	var res app.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.False(t, res.Cached)
	require.NotNil(t, res.Snapshot)
	assert.Equal(t, 2, res.Snapshot.PluginCount)
	assert.Equal(t, 1, res.Snapshot.ConflictSummary.Total)

	w, env = ts.do(t, "POST", "/api/v1/scans")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.Cached)
}

func TestRunScan_WarningsInEnvelope(t *testing.T) {
	ts := setupServer(t, nil)
	writePlugin(t, ts.root, "nameless", "version: 1.0.0\n")

	w, env := ts.do(t, "POST", "/api/v1/scans")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.Warnings)
}

func TestRunScan_ScanFailed(t *testing.T) {
	ts := setupServer(t, func(o *app.Options) {
		o.Registry = plugins.NewFilesystemRegistry(filepath.Join(t.TempDir(), "missing"), quietLogger())
	})

	w, env := ts.do(t, "POST", "/api/v1/scans")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, app.CodeScanFailed, env.Code)
	assert.NotEmpty(t, env.Error)
}

func TestRunScan_ReadOnly(t *testing.T) {
	ts := setupServer(t, func(o *app.Options) {
		o.ReadOnly = true
	})

	w, env := ts.do(t, "POST", "/api/v1/scans")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, app.CodeReadOnly, env.Code)

	w, env = ts.do(t, "DELETE", "/api/v1/scans")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, app.CodeReadOnly, env.Code)

	w, env = ts.do(t, "DELETE", "/api/v1/scans/1")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, app.CodeReadOnly, env.Code)
}

func TestLatestScan(t *testing.T) {
	ts := setupServer(t, nil)

	w, env := ts.do(t, "GET", "/api/v1/scans/latest")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, httputil.CodeNotFound, env.Code)

	writeCollision(t, ts.root)
	w, _ = ts.do(t, "POST", "/api/v1/scans")
	require.Equal(t, http.StatusCreated, w.Code)

	w, env = ts.do(t, "GET", "/api/v1/scans/latest")
	require.Equal(t, http.StatusOK, w.Code)

	var snap struct {
		ID          int64 `json:"id"`
		PluginCount int   `json:"plugin_count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, 2, snap.PluginCount)
}

func TestGetScan(t *testing.T) {
	ts := setupServer(t, nil)
	writeCollision(t, ts.root)

	w, env := ts.do(t, "POST", "/api/v1/scans")
	require.Equal(t, http.StatusCreated, w.Code)
	var res app.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))

	w, env = ts.do(t, "GET", "/api/v1/scans/"+itoa(res.Snapshot.ID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	w, env = ts.do(t, "GET", "/api/v1/scans/9999")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, env.Success)

	w, _ = ts.do(t, "GET", "/api/v1/scans/abc")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteScan(t *testing.T) {
	ts := setupServer(t, nil)
	writeCollision(t, ts.root)

	w, env := ts.do(t, "POST", "/api/v1/scans")
	require.Equal(t, http.StatusCreated, w.Code)
	var res app.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	target := "/api/v1/scans/" + itoa(res.Snapshot.ID)

	w, _ = ts.do(t, "DELETE", target)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = ts.do(t, "GET", target)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = ts.do(t, "DELETE", target)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, httputil.CodeNotFound, env.Code)

	// the deleted snapshot is not served from cache
	w, _ = ts.do(t, "POST", "/api/v1/scans")
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestScanConflicts(t *testing.T) {
	ts := setupServer(t, nil)
	writeCollision(t, ts.root)
	writePlugin(t, ts.root, "w3-total-cache", "name: W3 Total Cache\nversion: 1.0.0\n")
	writePlugin(t, ts.root, "wp-super-cache", "name: WP Super Cache\nversion: 1.0.0\n")

	w, env := ts.do(t, "GET", "/api/v1/scans/latest/conflicts")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, httputil.CodeNotFound, env.Code)

	w, env = ts.do(t, "POST", "/api/v1/scans")
	require.Equal(t, http.StatusCreated, w.Code)
	var res app.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	base := "/api/v1/scans/" + itoa(res.Snapshot.ID) + "/conflicts"

	var got ConflictsResponse
	w, env = ts.do(t, "GET", base)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, res.Snapshot.ID, got.ScanID)
	assert.Len(t, got.Conflicts, 2)

	w, env = ts.do(t, "GET", base+"?plugin=alpha")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Len(t, got.Conflicts, 1)
	assert.Equal(t, []string{"alpha", "beta"}, got.Conflicts[0].PluginIDs)
	assert.Equal(t, "alpha", got.Plugin)

	w, env = ts.do(t, "GET", base+"?critical_only=true")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Len(t, got.Conflicts, 1)
	assert.Equal(t, []string{"w3-total-cache", "wp-super-cache"}, got.Conflicts[0].PluginIDs)
	assert.Equal(t, 1, got.Summary.Critical)
	assert.True(t, got.CriticalOnly)

	w, env = ts.do(t, "GET", "/api/v1/scans/latest/conflicts?plugin=alpha&critical_only=1")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.NotNil(t, got.Conflicts)
	assert.Empty(t, got.Conflicts)

	w, env = ts.do(t, "GET", base+"?critical_only=maybe")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, httputil.CodeBadRequest, env.Code)

	w, _ = ts.do(t, "GET", "/api/v1/scans/9999/conflicts")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListScans(t *testing.T) {
	ts := setupServer(t, nil)

	w, env := ts.do(t, "GET", "/api/v1/scans")
	require.Equal(t, http.StatusOK, w.Code)
	var list ListResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Empty(t, list.Scans)
	assert.NotNil(t, list.Scans)
	assert.Equal(t, defaultListLimit, list.Limit)

	writeCollision(t, ts.root)
	ts.do(t, "POST", "/api/v1/scans")

	w, env = ts.do(t, "GET", "/api/v1/scans?limit=500&offset=-3")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list.Scans, 1)
	assert.Equal(t, defaultListLimit, list.Limit)
	assert.Equal(t, 0, list.Offset)

	w, env = ts.do(t, "GET", "/api/v1/scans?limit=many")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, httputil.CodeBadRequest, env.Code)
}

func TestPruneScans(t *testing.T) {
	ts := setupServer(t, nil)
	writeCollision(t, ts.root)
	ts.do(t, "POST", "/api/v1/scans")

	w, env := ts.do(t, "DELETE", "/api/v1/scans?older_than=720h")
	require.Equal(t, http.StatusOK, w.Code)
	var pruned PruneResponse
	require.NoError(t, json.Unmarshal(env.Data, &pruned))
	assert.Equal(t, int64(0), pruned.Removed)

	w, env = ts.do(t, "DELETE", "/api/v1/scans?older_than=-1h")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, httputil.CodeBadRequest, env.Code)

	w, _ = ts.do(t, "DELETE", "/api/v1/scans?older_than=later")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStats(t *testing.T) {
	ts := setupServer(t, nil)
	writeCollision(t, ts.root)
	ts.do(t, "POST", "/api/v1/scans")

	w, env := ts.do(t, "GET", "/api/v1/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var stats storage.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(1), stats.TotalScans)
	assert.NotNil(t, stats.LastScanAt)
}

func TestInvalidateCache(t *testing.T) {
	ts := setupServer(t, nil)
	writeCollision(t, ts.root)
	ts.do(t, "POST", "/api/v1/scans")

	w, _ := ts.do(t, "DELETE", "/api/v1/cache")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = ts.do(t, "POST", "/api/v1/scans")
	assert.Equal(t, http.StatusCreated, w.Code)
}

// unreachableDeletes serves reads and writes but fails every delete
type unreachableDeletes struct {
	*cache.MemoryStore
}

func (unreachableDeletes) Delete(ctx context.Context, key string) error {
	return errors.New("connection refused")
}

func TestInvalidateCache_BackendDown(t *testing.T) {
	mem, err := cache.NewMemoryStore(16)
	require.NoError(t, err)
	ts := setupServer(t, func(o *app.Options) {
		o.Cache = cache.NewSnapshotCache(unreachableDeletes{mem}, time.Hour, quietLogger())
	})
	writeCollision(t, ts.root)
	ts.do(t, "POST", "/api/v1/scans")

	w, env := ts.do(t, "DELETE", "/api/v1/cache")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	var data CacheResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.False(t, data.Invalidated)

	require.Len(t, env.Warnings, 1)
	var warning snapshot.Warning
	require.NoError(t, json.Unmarshal(env.Warnings[0], &warning))
	assert.Equal(t, snapshot.WarningCacheUnavailable, warning.Code)
	assert.Contains(t, warning.Message, "connection refused")
}

func TestHealthAndMetrics(t *testing.T) {
	ts := setupServer(t, nil)

	w, _ := ts.do(t, "GET", "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "store")

	w, _ = ts.do(t, "GET", "/livez")
	assert.Equal(t, http.StatusOK, w.Code)

	ts.do(t, "GET", "/api/v1/scans")
	w, _ = ts.do(t, "GET", "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `path="/api/v1/scans"`)
}

func TestHealth_StoreDown(t *testing.T) {
	ts := setupServer(t, nil)
	require.NoError(t, ts.store.Close())

	w, _ := ts.do(t, "GET", "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestUnknownRoute(t *testing.T) {
	ts := setupServer(t, nil)

	w, env := ts.do(t, "GET", "/api/v2/nothing")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, httputil.CodeNotFound, env.Code)
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
