package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brunoga/deep"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"aeronav/internal/aero"
	"aeronav/internal/extractor"
	"aeronav/internal/geo"
	"aeronav/internal/openaip"
)

// State is the lifecycle state of one cache entry.
type State string

const (
	StateUninitialized State = "UNINITIALIZED"
	StateLoading       State = "LOADING"
	StateReady         State = "READY"
	StateRefreshing    State = "REFRESHING"
	StateFailed        State = "FAILED"
)

// Defaults.
const (
	DefaultTTL          = 30 * time.Minute
	DefaultRetryAfter   = time.Minute
	DefaultCountry      = "FR"
	DefaultRefreshLimit = 4
)

// OverrideStore lists the persisted user corrections keyed by airspace ID.
type OverrideStore interface {
	Overrides(ctx context.Context) (map[string]aero.AirspaceOverride, error)
}

// SnapshotStore persists published catalogs across restarts.
type SnapshotStore interface {
	Save(key string, c *Catalog) error
	Load(key string) (*Catalog, error)
}

// Observer is notified after a catalog has been published.
type Observer interface {
	CatalogPublished(ctx context.Context, c *Catalog) error
}

// Metrics receives cache and build events.
type Metrics interface {
	CacheHit(key string)
	CacheMiss(key string)
	StaleServed(key string)
	CatalogBuilt(source aero.Source, d time.Duration)
	Extraction(s extractor.Summary)
}

type noopMetrics struct{}

func (noopMetrics) CacheHit(string)                         {}
func (noopMetrics) CacheMiss(string)                        {}
func (noopMetrics) StaleServed(string)                      {}
func (noopMetrics) CatalogBuilt(aero.Source, time.Duration) {}
func (noopMetrics) Extraction(extractor.Summary)            {}

// Config wires a Service. Primary and Secondary may be nil. IdleTTL is how
// long a bbox entry survives without a Get (default twice TTL); country
// entries are never evicted. RefreshLimit bounds the concurrent rebuilds of
// RefreshAll.
type Config struct {
	Primary      Primary
	Secondary    Secondary
	Overrides    OverrideStore
	Snapshots    SnapshotStore
	Observers    []Observer
	Metrics      Metrics
	Rules        *Rules
	TTL          time.Duration
	RetryAfter   time.Duration
	IdleTTL      time.Duration
	RefreshLimit int
	Logger       *slog.Logger
	Now          func() time.Time
}

type entry struct {
	key     string
	query   openaip.Query
	catalog *Catalog
	state   State
	expires time.Time
	retryAt time.Time
	lastErr string
	updated time.Time

	accessed atomic.Int64 // unix nanoseconds of the last Get
}

// Service caches merged catalogs per query key. Entries are replaced whole;
// concurrent loads of the same key share one build.
type Service struct {
	primary      Primary
	secondary    Secondary
	overrides    OverrideStore
	snapshots    SnapshotStore
	observers    []Observer
	metrics      Metrics
	rules        *Rules
	ttl          time.Duration
	retryAfter   time.Duration
	idleTTL      time.Duration
	refreshLimit int
	log          *slog.Logger
	now          func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
	group   singleflight.Group
	version atomic.Uint64
}

// NewService creates a catalog service.
func NewService(cfg Config) *Service {
	s := &Service{
		primary:    cfg.Primary,
		secondary:  cfg.Secondary,
		overrides:  cfg.Overrides,
		snapshots:  cfg.Snapshots,
		observers:  cfg.Observers,
		metrics:    cfg.Metrics,
		rules:      cfg.Rules,
		ttl:          cfg.TTL,
		retryAfter:   cfg.RetryAfter,
		idleTTL:      cfg.IdleTTL,
		refreshLimit: cfg.RefreshLimit,
		log:          cfg.Logger,
		now:          cfg.Now,
		entries:      make(map[string]*entry),
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.rules == nil {
		s.rules = DefaultRules()
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.retryAfter <= 0 {
		s.retryAfter = DefaultRetryAfter
	}
	if s.idleTTL <= 0 {
		s.idleTTL = 2 * s.ttl
	}
	if s.refreshLimit <= 0 {
		s.refreshLimit = DefaultRefreshLimit
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Key returns the cache key of a query.
func Key(q openaip.Query) string {
	if q.BBox != nil {
		b := *q.BBox
		return fmt.Sprintf("bbox:%.4f,%.4f,%.4f,%.4f", b.Min[0], b.Min[1], b.Max[0], b.Max[1])
	}
	country := q.Country
	if country == "" {
		country = DefaultCountry
	}
	return "country:" + country
}

// Get returns the catalog for q. A fresh entry is served from memory; an
// expired one is rebuilt, with concurrent callers sharing the build. Get
// never fails: when nothing can be loaded the minimal catalog is returned.
func (s *Service) Get(ctx context.Context, q openaip.Query) *Catalog {
	key := Key(q)
	now := s.now()

	s.mu.RLock()
	e := s.entries[key]
	var cached *Catalog
	fresh, backoff := false, false
	if e != nil {
		e.accessed.Store(now.UnixNano())
	}
	if e != nil && e.catalog != nil {
		cached = e.catalog
		fresh = now.Before(e.expires)
		backoff = e.state == StateFailed && now.Before(e.retryAt)
	}
	s.mu.RUnlock()

	switch {
	case fresh:
		s.metrics.CacheHit(key)
		return cached
	case backoff:
		s.metrics.StaleServed(key)
		return cached
	}

	s.metrics.CacheMiss(key)
	ch := s.group.DoChan(key, func() (any, error) {
		return s.build(context.WithoutCancel(ctx), key, q), nil
	})

	select {
	case res := <-ch:
		return res.Val.(*Catalog)
	case <-ctx.Done():
		if cached != nil {
			s.metrics.StaleServed(key)
			return cached
		}
		return Minimal(key)
	}
}

// Refresh rebuilds the entry for q regardless of its age.
func (s *Service) Refresh(ctx context.Context, q openaip.Query) *Catalog {
	key := Key(q)
	v, _, _ := s.group.Do(key, func() (any, error) {
		return s.build(context.WithoutCancel(ctx), key, q), nil
	})
	return v.(*Catalog)
}

// RefreshAll evicts idle bbox entries, then rebuilds the remaining ones with
// at most RefreshLimit builds in flight.
func (s *Service) RefreshAll(ctx context.Context) {
	s.Evict()

	s.mu.RLock()
	queries := make([]openaip.Query, 0, len(s.entries))
	for _, e := range s.entries {
		queries = append(queries, e.query)
	}
	s.mu.RUnlock()

	var g errgroup.Group
	g.SetLimit(s.refreshLimit)
	for _, q := range queries {
		g.Go(func() error {
			s.Refresh(ctx, q)
			return nil
		})
	}
	_ = g.Wait()
}

// Warm seeds the entry for q from its snapshot. The seeded entry is already
// expired, so it is served only while the first rebuild is failing.
func (s *Service) Warm(q openaip.Query) error {
	if s.snapshots == nil {
		return nil
	}
	key := Key(q)
	c, err := s.snapshots.Load(key)
	if err != nil {
		return err
	}
	c.Version = s.version.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key, q)
	if e.catalog == nil {
		e.catalog = c
		e.state = StateFailed
		e.updated = s.now()
		e.lastErr = "seeded from snapshot"
	}
	s.log.Info("catalog warmed from snapshot", "key", key, "source", c.Source, "airspaces", len(c.Airspaces))
	return nil
}

// Evict drops the bbox entries not read within IdleTTL and returns how many
// were removed. Route analyses create one such entry per distinct route.
func (s *Service) Evict() int {
	cutoff := s.now().Add(-s.idleTTL).UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, e := range s.entries {
		if e.query.BBox == nil || e.accessed.Load() >= cutoff {
			continue
		}
		delete(s.entries, key)
		n++
	}
	if n > 0 {
		s.log.Info("idle catalog entries evicted", "count", n, "remaining", len(s.entries))
	}
	return n
}

// entry returns the entry for key, creating it. Callers hold s.mu.
func (s *Service) entry(key string, q openaip.Query) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{key: key, query: q, state: StateUninitialized}
		e.accessed.Store(s.now().UnixNano())
		s.entries[key] = e
	}
	return e
}

func (s *Service) setState(key string, q openaip.Query) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key, q)
	if e.catalog == nil {
		e.state = StateLoading
	} else {
		e.state = StateRefreshing
	}
	e.updated = s.now()
}

// build loads both sources concurrently, merges them and publishes the
// result unless it would degrade a better catalog already in memory.
func (s *Service) build(ctx context.Context, key string, q openaip.Query) *Catalog {
	s.setState(key, q)
	start := s.now()

	var (
		doc        *extractor.Document
		primaryErr error
		secondary  []aero.Airspace
	)
	g, gctx := errgroup.WithContext(ctx)
	if s.primary != nil {
		g.Go(func() error {
			doc, primaryErr = s.primary.Load(gctx)
			return nil
		})
	}
	if s.secondary != nil {
		g.Go(func() error {
			secondary = s.secondary.Airspaces(gctx, q)
			return nil
		})
	}
	_ = g.Wait()

	if primaryErr != nil {
		s.log.Warn("primary document unavailable", "key", key, "error", primaryErr)
	}
	if doc != nil {
		s.metrics.Extraction(doc.Summary)
	}

	overrides := s.loadOverrides(ctx)
	next := s.assemble(key, q, doc, secondary, overrides)
	next.BuiltAt = s.now()
	s.metrics.CatalogBuilt(next.Source, s.now().Sub(start))

	published, degraded := s.publish(key, q, next, primaryErr)
	if degraded {
		return published
	}

	if next.Source != aero.SourceMinimal {
		if s.snapshots != nil {
			if err := s.snapshots.Save(key, next); err != nil {
				s.log.Warn("snapshot save failed", "key", key, "error", err)
			}
		}
		for _, o := range s.observers {
			if err := o.CatalogPublished(ctx, next); err != nil {
				s.log.Warn("catalog observer failed", "key", key, "error", err)
			}
		}
	}

	s.log.Info("catalog published",
		"key", key,
		"source", next.Source,
		"version", next.Version,
		"airspaces", len(next.Airspaces),
		"airports", len(next.Airports),
		"duration", s.now().Sub(start).Round(time.Millisecond))
	return next
}

// publish installs next unless a better catalog is cached, in which case the
// cached one is kept and the entry backs off. degraded reports the latter.
func (s *Service) publish(key string, q openaip.Query, next *Catalog, cause error) (*Catalog, bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key, q)
	e.updated = now

	if prev := e.catalog; prev != nil && next.Source.Level() < prev.Source.Level() {
		e.state = StateFailed
		e.retryAt = now.Add(s.retryAfter)
		e.lastErr = fmt.Sprintf("rebuild produced %s, keeping %s", next.Source, prev.Source)
		if cause != nil {
			e.lastErr += ": " + cause.Error()
		}
		s.log.Warn("catalog rebuild degraded, serving stale", "key", key, "stale_source", prev.Source, "rebuilt_source", next.Source)
		return prev, true
	}

	next.Version = s.version.Add(1)
	e.catalog = next
	if next.Source == aero.SourceMinimal {
		e.state = StateFailed
		e.expires = now
		e.retryAt = now.Add(s.retryAfter)
		e.lastErr = "no source available"
		return next, false
	}
	e.state = StateReady
	e.expires = now.Add(s.ttl)
	e.lastErr = ""
	return next, false
}

func (s *Service) loadOverrides(ctx context.Context) map[string]aero.AirspaceOverride {
	if s.overrides == nil {
		return nil
	}
	o, err := s.overrides.Overrides(ctx)
	if err != nil {
		s.log.Warn("override store unavailable", "error", err)
		return nil
	}
	return o
}

// assemble picks the richest source available: merged, primary only, minimal.
func (s *Service) assemble(key string, q openaip.Query, doc *extractor.Document, secondary []aero.Airspace, overrides map[string]aero.AirspaceOverride) *Catalog {
	c := &Catalog{
		Key:       key,
		Navaids:   []aero.Navaid{},
		Waypoints: []aero.Waypoint{},
		Obstacles: []aero.Obstacle{},
		Routes:    []aero.Route{},
	}

	var corrections map[string]aero.AirspaceOverride
	if doc != nil {
		c.Airports = pointFilter(doc.Airports, q.BBox, func(a aero.Airport) aero.GeoPoint { return a.Coordinates })
		c.Navaids = pointFilter(doc.Navaids, q.BBox, func(n aero.Navaid) aero.GeoPoint { return n.Coordinates })
		c.Waypoints = pointFilter(doc.Waypoints, q.BBox, func(w aero.Waypoint) aero.GeoPoint { return w.Coordinates })
		c.Obstacles = pointFilter(doc.Obstacles, q.BBox, func(o aero.Obstacle) aero.GeoPoint { return o.Coordinates })
		c.Routes = append(c.Routes, doc.Routes...)
		corrections = doc.Corrections
		summary := doc.Summary
		c.Summary = &summary
	}

	switch {
	case len(secondary) > 0:
		c.Source = aero.SourceMerged
		c.Airspaces = s.rules.Merge(MergeInput{
			Secondary:   secondary,
			Corrections: corrections,
			Airports:    c.Airports,
			Overrides:   overrides,
		})
	case doc != nil && len(doc.Airspaces) > 0:
		c.Source = aero.SourcePrimaryOnly
		c.Airspaces = PrimaryOnly(boundFilter(doc.Airspaces, q.BBox), overrides)
	default:
		m := Minimal(key)
		if len(c.Airports) > 0 {
			m.Airports = c.Airports
			m.Navaids = c.Navaids
			m.Waypoints = c.Waypoints
			m.Obstacles = c.Obstacles
			m.Routes = c.Routes
			m.Summary = c.Summary
		}
		return m
	}
	if c.Airports == nil {
		c.Airports = append([]aero.Airport(nil), minimalAirports...)
	}
	return c
}

func pointFilter[T any](items []T, b *orb.Bound, pos func(T) aero.GeoPoint) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if inBound(b, pos(it)) {
			out = append(out, it)
		}
	}
	return out
}

func boundFilter(airspaces []aero.Airspace, b *orb.Bound) []aero.Airspace {
	if b == nil {
		return airspaces
	}
	out := make([]aero.Airspace, 0, len(airspaces))
	for _, a := range airspaces {
		ab, ok := geo.Bound(a.Geometry)
		if !ok || geo.BoundsOverlap(ab, *b) {
			out = append(out, a)
		}
	}
	return out
}

// ErrUnknownAirspace is returned when a correction targets no cached airspace.
var ErrUnknownAirspace = errors.New("unknown airspace")

// ApplyOverride publishes a user correction into every cached catalog that
// holds the airspace. Each affected catalog is copied, corrected and swapped
// in; readers holding the previous version are unaffected.
func (s *Service) ApplyOverride(id string, o aero.AirspaceOverride) (aero.Airspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		updated aero.Airspace
		found   bool
	)
	for _, e := range s.entries {
		if e.catalog == nil {
			continue
		}
		idx := -1
		for i := range e.catalog.Airspaces {
			if e.catalog.Airspaces[i].ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}

		next := *e.catalog
		next.Airspaces = deep.MustCopy(e.catalog.Airspaces)
		o.Apply(&next.Airspaces[idx])
		next.Version = s.version.Add(1)
		e.catalog = &next

		updated = next.Airspaces[idx]
		found = true
	}
	if !found {
		return aero.Airspace{}, ErrUnknownAirspace
	}
	s.log.Info("airspace corrected", "id", id)
	return updated, nil
}

// Invalidate expires every entry so the next Get rebuilds it.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		e.expires = time.Time{}
		e.retryAt = time.Time{}
	}
}

// EntryStatus describes one cache entry.
type EntryStatus struct {
	Key       string             `json:"key"`
	State     State              `json:"state"`
	Source    aero.Source        `json:"source,omitempty"`
	Version   uint64             `json:"version"`
	BuiltAt   time.Time          `json:"built_at,omitempty"`
	ExpiresAt time.Time          `json:"expires_at,omitempty"`
	Updated   time.Time          `json:"updated_at"`
	LastError string             `json:"last_error,omitempty"`
	Counts    Counts             `json:"counts"`
	Summary   *extractor.Summary `json:"summary,omitempty"`
}

// Status lists every entry ordered by key.
func (s *Service) Status() []EntryStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]EntryStatus, 0, len(s.entries))
	for _, e := range s.entries {
		st := EntryStatus{
			Key:       e.key,
			State:     e.state,
			ExpiresAt: e.expires,
			Updated:   e.updated,
			LastError: e.lastErr,
		}
		if c := e.catalog; c != nil {
			st.Source = c.Source
			st.Version = c.Version
			st.BuiltAt = c.BuiltAt
			st.Counts = c.Counts()
			st.Summary = c.Summary
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
