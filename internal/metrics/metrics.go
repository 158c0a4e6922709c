// Package metrics exposes the service counters on a private Prometheus
// registry.
package metrics

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aeronav/internal/aero"
	"aeronav/internal/extractor"
)

type Collector struct {
	reg *prometheus.Registry

	CacheHits   *prometheus.CounterVec // scope label: bbox|country
	CacheMisses *prometheus.CounterVec
	StaleServes *prometheus.CounterVec

	CatalogBuilds  *prometheus.CounterVec // source label
	CatalogSource  prometheus.Gauge       // completeness of the latest build, 3 = MERGED
	BuildDuration  prometheus.Histogram
	ExtractOutcome *prometheus.CounterVec // status, reason

	Analyses         prometheus.Counter
	AnalysisDuration prometheus.Histogram
	Conflicts        prometheus.Counter
	MemoHits         prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aeronav_catalog_cache_hits_total",
			Help: "Catalog requests served from a fresh cache entry.",
		}, []string{"scope"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aeronav_catalog_cache_misses_total",
			Help: "Catalog requests that triggered a build.",
		}, []string{"scope"}),
		StaleServes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aeronav_catalog_stale_served_total",
			Help: "Catalog requests served from a stale entry after a failure.",
		}, []string{"scope"}),
		CatalogBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aeronav_catalog_builds_total",
			Help: "Catalog builds by resulting source.",
		}, []string{"source"}),
		CatalogSource: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aeronav_catalog_source_level",
			Help: "Source of the latest build: 3 merged, 2 primary only, 1 minimal.",
		}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aeronav_catalog_build_duration_seconds",
			Help:    "Duration of catalog builds including source fetches.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		ExtractOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aeronav_extraction_elements_total",
			Help: "Primary document elements by outcome and reason.",
		}, []string{"status", "reason"}),
		Analyses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeronav_route_analyses_total",
			Help: "Route analyses performed.",
		}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aeronav_route_analysis_duration_seconds",
			Help:    "Duration of route analyses.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		Conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeronav_route_conflicts_total",
			Help: "Conflicting airspaces reported by route analyses.",
		}),
		MemoHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeronav_route_memo_hits_total",
			Help: "Route analyses answered from the memo.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeronav_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeronav_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aeronav_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aeronav_nats_publish_duration_seconds",
			Help:    "Duration to publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
	}

	reg.MustRegister(
		c.CacheHits, c.CacheMisses, c.StaleServes,
		c.CatalogBuilds, c.CatalogSource, c.BuildDuration, c.ExtractOutcome,
		c.Analyses, c.AnalysisDuration, c.Conflicts, c.MemoHits,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
	)

	return c
}

// scope reduces a cache key to its kind so bbox keys do not explode the
// label space.
func scope(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "other"
}

func (c *Collector) CacheHit(key string)    { c.CacheHits.WithLabelValues(scope(key)).Inc() }
func (c *Collector) CacheMiss(key string)   { c.CacheMisses.WithLabelValues(scope(key)).Inc() }
func (c *Collector) StaleServed(key string) { c.StaleServes.WithLabelValues(scope(key)).Inc() }

func (c *Collector) CatalogBuilt(source aero.Source, d time.Duration) {
	c.CatalogBuilds.WithLabelValues(string(source)).Inc()
	c.CatalogSource.Set(float64(source.Level()))
	c.BuildDuration.Observe(d.Seconds())
}

// Extraction records the outcome counts of one primary document run.
func (c *Collector) Extraction(s extractor.Summary) {
	if s.Extracted > 0 {
		c.ExtractOutcome.WithLabelValues("extracted", "").Add(float64(s.Extracted))
	}
	for reason, n := range s.Reasons {
		c.ExtractOutcome.WithLabelValues("rejected", string(reason)).Add(float64(n))
	}
}

// AnalysisObserve records one route analysis.
func (c *Collector) AnalysisObserve(d time.Duration, conflicts int, cached bool) {
	c.Analyses.Inc()
	c.AnalysisDuration.Observe(d.Seconds())
	c.Conflicts.Add(float64(conflicts))
	if cached {
		c.MemoHits.Inc()
	}
}

func (c *Collector) NATSPublishedInc()              { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc()             { c.NATSPublishErrs.Inc() }
func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	logger.Info("metrics listening", "addr", addr)
	return srv
}
