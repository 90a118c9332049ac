package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/conflictmapper/pkg/app"
	"github.com/platinummonkey/conflictmapper/pkg/httputil"
	"github.com/platinummonkey/conflictmapper/pkg/observability"
)

// DefaultRetention is the prune cutoff used when older_than is omitted
const DefaultRetention = 30 * 24 * time.Hour

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodyBytes     = 1 << 20
)

// Options configures a Server
type Options struct {
	App *app.App

	// Health serves /healthz and /livez; nil registers a store probe
	Health *observability.HealthChecker

	// Metrics and Registry enable request metrics and /metrics
	Metrics  *observability.Metrics
	Registry *prometheus.Registry

	Retention time.Duration
	Log       *logrus.Logger
}

// Server exposes the analysis pipeline over HTTP
type Server struct {
	app       *app.App
	router    *mux.Router
	handler   http.Handler
	health    *observability.HealthChecker
	metrics   *observability.Metrics
	registry  *prometheus.Registry
	retention time.Duration
	log       *logrus.Logger
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	s := &Server{
		app:       opts.App,
		router:    mux.NewRouter(),
		health:    opts.Health,
		metrics:   opts.Metrics,
		registry:  opts.Registry,
		retention: opts.Retention,
		log:       opts.Log,
	}
	if s.log == nil {
		s.log = logrus.New()
	}
	if s.retention <= 0 {
		s.retention = DefaultRetention
	}
	if s.health == nil {
		s.health = observability.NewHealthChecker("")
		s.health.Register("store", true, s.app.HealthCheck)
	}

	s.setupRoutes()

	s.handler = otelhttp.NewHandler(httputil.Chain(s.router,
		httputil.RecoveryMiddleware(s.log),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.log),
		httputil.MaxBytesMiddleware(maxBodyBytes),
	), "conflictmapper-api")

	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	if s.metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.metrics, routeTemplate))
	}

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/scans", s.runScan).Methods("POST")
	v1.HandleFunc("/scans", s.listScans).Methods("GET")
	v1.HandleFunc("/scans", s.pruneScans).Methods("DELETE")
	v1.HandleFunc("/scans/latest", s.latestScan).Methods("GET")
	v1.HandleFunc("/scans/latest/conflicts", s.scanConflicts).Methods("GET")
	v1.HandleFunc("/scans/{id:[0-9]+}", s.getScan).Methods("GET")
	v1.HandleFunc("/scans/{id:[0-9]+}", s.deleteScan).Methods("DELETE")
	v1.HandleFunc("/scans/{id:[0-9]+}/conflicts", s.scanConflicts).Methods("GET")
	v1.HandleFunc("/stats", s.stats).Methods("GET")
	v1.HandleFunc("/cache", s.invalidateCache).Methods("DELETE")

	s.router.HandleFunc("/healthz", s.health.Readiness).Methods("GET")
	s.router.HandleFunc("/livez", s.health.Liveness).Methods("GET")
	if s.registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(s.registry)).Methods("GET")
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "no route for "+r.URL.Path)
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router returns the underlying router without middleware
func (s *Server) Router() *mux.Router {
	return s.router
}

// routeTemplate labels metrics by route template so ids do not explode
// label cardinality.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
