// Package main provides the aeronav-api server.
//
// The server keeps a merged catalog of airspaces, airports and navaids in
// memory, built from the primary AIXM document and the secondary airspace
// API, and answers catalog queries and route analyses over HTTP.
//
// Usage:
//
//	aeronav-api [options]
//
// Options:
//
//	-port N             HTTP port (default: 8081, env: AERONAV_PORT)
//	-auth               Enable API key authentication (env: AERONAV_AUTH)
//	-api-keys KEYS      Comma-separated list of valid API keys (env: AERONAV_API_KEYS)
//	-aixm PATH          Primary AIXM document (env: AERONAV_AIXM_PATH)
//
// Every other setting is read from .env and the environment; see
// internal/config.
//
// API Endpoints:
//
//	GET  /api/v1/health
//	GET  /api/v1/catalog/status
//	POST /api/v1/catalog/refresh
//	GET  /api/v1/airspaces?bbox=&types=&format=geojson
//	GET  /api/v1/airspaces/{id}
//	PUT  /api/v1/airspaces/{id}/correction
//	GET  /api/v1/airports?bbox=&near=lat,lon&radius_km=&min_runway_m=
//	GET  /api/v1/airports/{icao}
//	GET  /api/v1/navaids?bbox=&types=
//	POST /api/v1/route/analyze
//
// Authentication:
//
//	When -auth is enabled, requests must include an API key via:
//	  - X-API-Key header
//	  - Authorization: Bearer <key> header
//	  - ?api_key=<key> query parameter
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"aeronav/internal/api"
	"aeronav/internal/catalog"
	"aeronav/internal/config"
	"aeronav/internal/enrichment"
	"aeronav/internal/extractor"
	"aeronav/internal/logging"
	"aeronav/internal/metrics"
	"aeronav/internal/openaip"
	"aeronav/internal/publisher"
	"aeronav/internal/route"
	"aeronav/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// API server flags.
	port := flag.Int("port", cfg.Port, "HTTP port for API server")
	authEnabled := flag.Bool("auth", cfg.AuthEnabled, "Enable API key authentication")
	apiKeys := flag.String("api-keys", strings.Join(cfg.APIKeys, ","), "Comma-separated list of valid API keys (when auth enabled)")
	aixm := flag.String("aixm", cfg.AIXMPath, "Primary AIXM document")
	flag.Parse()

	cfg.Port = *port
	cfg.AuthEnabled = *authEnabled
	cfg.AIXMPath = *aixm
	cfg.APIKeys = nil
	for _, k := range strings.Split(*apiKeys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			cfg.APIKeys = append(cfg.APIKeys, k)
		}
	}

	logger := logging.New(cfg.LogLevel, cfg.LogDir)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()
	if cfg.MetricsAddr != "" {
		srv := collector.Serve(cfg.MetricsAddr, logger)
		defer srv.Close()
	}

	db, err := storage.Open(ctx, cfg.Storage())
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()
	if err := db.CreateSchemas(ctx); err != nil {
		return err
	}

	var observers []catalog.Observer
	if db.PG != nil {
		observers = append(observers, db.PG)
	}
	var pub *publisher.NATSPublisher
	if cfg.NATSURL != "" {
		pub, err = publisher.Connect(cfg.NATSURL, collector, logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		observers = append(observers, pub)
	}

	rules, err := catalog.LoadRules(cfg.ExceptionsPath)
	if err != nil {
		return fmt.Errorf("load exceptions: %w", err)
	}

	sc := catalog.Config{
		Secondary: openaip.NewClient(openaip.Config{
			BaseURL: cfg.OpenAIPBaseURL,
			APIKey:  cfg.OpenAIPAPIKey,
			Timeout: cfg.OpenAIPTimeout,
			Logger:  logger,
		}),
		Overrides: db.Overrides(),
		Observers: observers,
		Metrics:   collector,
		Rules:     rules,
		TTL:       cfg.CatalogTTL,
		Logger:    logger,
	}
	if cfg.AIXMPath != "" {
		ex := extractor.New(extractor.Options{Logger: logger})
		sc.Primary = catalog.NewFilePrimary(cfg.AIXMPath, ex, enrichment.Options{VORDMETolerance: cfg.VORDMETolerance}, logger)
	} else {
		logger.Warn("no primary document configured")
	}
	if cfg.SnapshotDir != "" {
		snapshots, err := storage.NewSnapshotDir(cfg.SnapshotDir)
		if err != nil {
			return err
		}
		sc.Snapshots = snapshots
	}

	svc := catalog.NewService(sc)
	listing := openaip.Query{Country: cfg.OpenAIPCountry}
	if err := svc.Warm(listing); err != nil && !errors.Is(err, storage.ErrNoSnapshot) {
		logger.Warn("snapshot unusable", "error", err)
	}
	go func() {
		// First build off the request path.
		svc.Get(ctx, listing)
	}()
	go refreshLoop(ctx, svc, cfg.CatalogTTL)

	analyzer := route.NewAnalyzer(svc, route.Options{
		AltitudeFilter:      cfg.AltitudeFilter,
		ProximityKm:         cfg.ProximityKm,
		BBoxMargin:          cfg.BBoxMarginDeg,
		PlannedAltitudeFeet: cfg.PlannedAltitudeFeet,
		Rules:               rules,
		Logger:              logger,
	})

	ac := api.Config{
		Port:        cfg.Port,
		AuthEnabled: cfg.AuthEnabled,
		APIKeys:     cfg.APIKeys,
		Country:     cfg.OpenAIPCountry,
		Overrides:   db.Overrides(),
		Metrics:     collector,
		Logger:      logger,
	}
	if db.CH != nil {
		ac.Recorder = db.CH
	}
	if pub != nil {
		ac.Conflicts = pub
	}

	return api.NewServer(svc, analyzer, ac).Run(ctx)
}

// refreshLoop rebuilds every cached catalog once per TTL.
func refreshLoop(ctx context.Context, svc *catalog.Service, ttl time.Duration) {
	t := time.NewTicker(ttl)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			svc.RefreshAll(ctx)
		}
	}
}
