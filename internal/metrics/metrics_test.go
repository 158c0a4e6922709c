package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"aeronav/internal/aero"
	"aeronav/internal/catalog"
	"aeronav/internal/extractor"
	"aeronav/internal/publisher"
)

var (
	_ catalog.Metrics   = (*Collector)(nil)
	_ publisher.Metrics = (*Collector)(nil)
)

func TestCacheCounters(t *testing.T) {
	c := NewCollector()
	c.CacheHit("bbox:1.0000,47.0000,3.0000,49.0000")
	c.CacheHit("bbox:0.0000,40.0000,1.0000,41.0000")
	c.CacheMiss("country:FR")
	c.StaleServed("country:FR")

	if got := testutil.ToFloat64(c.CacheHits.WithLabelValues("bbox")); got != 2 {
		t.Errorf("bbox hits = %v", got)
	}
	if got := testutil.ToFloat64(c.CacheMisses.WithLabelValues("country")); got != 1 {
		t.Errorf("country misses = %v", got)
	}
	if got := testutil.ToFloat64(c.StaleServes.WithLabelValues("country")); got != 1 {
		t.Errorf("stale serves = %v", got)
	}
}

func TestCatalogBuilt(t *testing.T) {
	c := NewCollector()
	c.CatalogBuilt(aero.SourcePrimaryOnly, 2*time.Second)
	c.CatalogBuilt(aero.SourceMinimal, time.Second)

	if got := testutil.ToFloat64(c.CatalogBuilds.WithLabelValues("PRIMARY_ONLY")); got != 1 {
		t.Errorf("primary only builds = %v", got)
	}
	if got := testutil.ToFloat64(c.CatalogSource); got != float64(aero.SourceMinimal.Level()) {
		t.Errorf("fallback level = %v", got)
	}
}

func TestExtraction(t *testing.T) {
	c := NewCollector()
	c.Extraction(extractor.Summary{
		Extracted: 10,
		Reasons: map[extractor.Reason]int{
			extractor.ReasonLandingSite: 2,
			extractor.ReasonMalformed:   1,
		},
	})

	if got := testutil.ToFloat64(c.ExtractOutcome.WithLabelValues("extracted", "")); got != 10 {
		t.Errorf("extracted = %v", got)
	}
	if got := testutil.ToFloat64(c.ExtractOutcome.WithLabelValues("rejected", "landing_site")); got != 2 {
		t.Errorf("landing sites = %v", got)
	}
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.AnalysisObserve(10*time.Millisecond, 3, true)
	c.NATSSetConnected(true)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"aeronav_route_conflicts_total 3",
		"aeronav_route_memo_hits_total 1",
		"aeronav_nats_connected 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
