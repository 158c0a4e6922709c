// Package api provides the REST endpoints for catalog queries, user
// corrections and route analysis.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"aeronav/internal/aero"
	"aeronav/internal/catalog"
	"aeronav/internal/openaip"
	"aeronav/internal/route"
	"aeronav/internal/storage"
)

// Catalogs is the cache service seen by the API. Implemented by
// *catalog.Service.
type Catalogs interface {
	Get(ctx context.Context, q openaip.Query) *catalog.Catalog
	RefreshAll(ctx context.Context)
	Status() []catalog.EntryStatus
	ApplyOverride(id string, o aero.AirspaceOverride) (aero.Airspace, error)
	Invalidate()
}

// ReportRecorder stores analysis reports. Implemented by *storage.ClickHouseDB.
type ReportRecorder interface {
	RecordReport(ctx context.Context, r *route.Report) error
}

// ConflictPublisher announces route conflicts. Implemented by
// *publisher.NATSPublisher.
type ConflictPublisher interface {
	PublishConflicts(ctx context.Context, sessionID string, r *route.Report) error
}

// AnalysisMetrics observes route analyses. Implemented by *metrics.Collector.
type AnalysisMetrics interface {
	AnalysisObserve(d time.Duration, conflicts int, cached bool)
}

// Session defaults.
const (
	DefaultSessionTTL  = 30 * time.Minute
	DefaultMaxSessions = 1024
)

// Server exposes the catalog and the analyzer over HTTP.
type Server struct {
	catalogs  Catalogs
	analyzer  *route.Analyzer
	overrides storage.OverrideStore
	recorder  ReportRecorder
	conflicts ConflictPublisher
	metrics   AnalysisMetrics
	log       *slog.Logger

	port        int
	country     string
	authEnabled bool
	apiKeys     map[string]bool // Simple API key auth (when enabled).

	sessionsMu sync.Mutex
	sessions   *expirable.LRU[string, *route.Session]
}

// Config holds configuration for the API server. Optional collaborators may
// be nil.
type Config struct {
	Port        int
	AuthEnabled bool
	APIKeys     []string // List of valid API keys.
	// Country selects the catalog served by the listing endpoints.
	Country string

	Overrides storage.OverrideStore
	Recorder  ReportRecorder
	Conflicts ConflictPublisher
	Metrics   AnalysisMetrics
	Logger    *slog.Logger

	SessionTTL  time.Duration
	MaxSessions int
}

// NewServer creates a server over the cache service and the analyzer.
func NewServer(catalogs Catalogs, analyzer *route.Analyzer, cfg Config) *Server {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}
	if cfg.Country == "" {
		cfg.Country = catalog.DefaultCountry
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Server{
		catalogs:    catalogs,
		analyzer:    analyzer,
		overrides:   cfg.Overrides,
		recorder:    cfg.Recorder,
		conflicts:   cfg.Conflicts,
		metrics:     cfg.Metrics,
		log:         cfg.Logger,
		port:        cfg.Port,
		country:     cfg.Country,
		authEnabled: cfg.AuthEnabled,
		apiKeys:     keys,
		sessions:    expirable.NewLRU[string, *route.Session](cfg.MaxSessions, nil, cfg.SessionTTL),
	}
}

// Handler returns the full HTTP handler with middleware and the /api/v1
// routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS for browser access.
	r.Use(corsMiddleware)

	r.Mount("/api/v1", s.Router())
	return r
}

// Router returns the configured chi router for embedding in other servers.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	// Health check (no auth required).
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		// Optional authentication.
		if s.authEnabled {
			r.Use(s.authMiddleware)
		}

		r.Get("/catalog/status", s.handleStatus)
		r.Post("/catalog/refresh", s.handleRefresh)

		r.Get("/airspaces", s.handleAirspaces)
		r.Get("/airspaces/{id}", s.handleAirspace)
		r.Put("/airspaces/{id}/correction", s.handleCorrection)

		r.Get("/airports", s.handleAirports)
		r.Get("/airports/{icao}", s.handleAirport)

		r.Get("/navaids", s.handleNavaids)

		r.Post("/route/analyze", s.handleAnalyze)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("API starting", "addr", "http://localhost"+srv.Addr, "auth", s.authEnabled)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// apiKey extracts the key from X-API-Key, a Bearer token or the api_key
// query parameter, in that order.
func apiKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("api_key")
}

// authMiddleware validates API key authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := apiKey(r)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}
		if !s.apiKeys[key] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// author identifies the submitter of a correction.
func author(r *http.Request) string {
	if key := apiKey(r); key != "" {
		if len(key) > 4 {
			key = key[:4]
		}
		return "key:" + key
	}
	return "anonymous@" + r.RemoteAddr
}

// Helper functions.

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
