package route

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/brunoga/deep"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"aeronav/internal/aero"
	"aeronav/internal/catalog"
	"aeronav/internal/geo"
	"aeronav/internal/openaip"
)

// Defaults.
const (
	DefaultProximityKm         = 5.0
	DefaultBBoxMargin          = 0.5
	DefaultPlannedAltitudeFeet = 3000
	DefaultMemoSize            = 256
	DefaultMemoTTL             = 10 * time.Minute
)

// Catalogs supplies the merged catalog covering a query.
type Catalogs interface {
	Get(ctx context.Context, q openaip.Query) *catalog.Catalog
}

// Options tunes the analysis.
type Options struct {
	AltitudeFilter      bool    // Apply each airspace's floor/ceiling.
	ProximityKm         float64 // Near-route threshold for the centroid fallback.
	BBoxMargin          float64 // Degrees added around the route for catalog acquisition.
	PlannedAltitudeFeet int
	MemoSize            int
	MemoTTL             time.Duration
	Rules               *catalog.Rules // Name to aerodrome lookup for frequencies.
	Logger              *slog.Logger
}

// DefaultOptions returns the historical settings.
func DefaultOptions() Options {
	return Options{
		AltitudeFilter:      true,
		ProximityKm:         DefaultProximityKm,
		BBoxMargin:          DefaultBBoxMargin,
		PlannedAltitudeFeet: DefaultPlannedAltitudeFeet,
	}
}

// Report is the outcome of one analysis.
type Report struct {
	ID              string          `json:"id"`
	Fingerprint     string          `json:"fingerprint"`
	GeneratedAt     time.Time       `json:"generated_at"`
	CatalogKey      string          `json:"catalog_key"`
	CatalogVersion  uint64          `json:"catalog_version"`
	Source          aero.Source     `json:"source"`
	BBox            [4]float64      `json:"bbox"` // minLon, minLat, maxLon, maxLat
	AltitudeFilter  bool            `json:"altitude_filter"`
	TotalDistanceKm float64         `json:"total_distance_km"`
	Segments        []SegmentResult `json:"segments"`
	Traversed       []Entry         `json:"all_traversed"`
	Cached          bool            `json:"cached,omitempty"`
}

// clone returns a copy that shares no slices with r. Memoised reports are
// handed out as clones so callers cannot alter the memo.
func (r *Report) clone() *Report {
	c := *r
	c.Segments = deep.MustCopy(r.Segments)
	c.Traversed = deep.MustCopy(r.Traversed)
	return &c
}

// ConflictCount returns the number of conflicting airspaces on the route.
func (r *Report) ConflictCount() int {
	n := 0
	for _, s := range r.Segments {
		n += len(s.Conflicts)
	}
	return n
}

// Analyzer runs traversal analyses against the catalog service.
type Analyzer struct {
	catalogs Catalogs
	opts     Options
	rules    *catalog.Rules
	memo     *expirable.LRU[string, *Report]
	log      *slog.Logger
}

// NewAnalyzer creates an analyzer. Zero numeric options take their defaults.
func NewAnalyzer(catalogs Catalogs, opts Options) *Analyzer {
	if opts.ProximityKm <= 0 {
		opts.ProximityKm = DefaultProximityKm
	}
	if opts.BBoxMargin < 0 {
		opts.BBoxMargin = DefaultBBoxMargin
	}
	if opts.PlannedAltitudeFeet <= 0 {
		opts.PlannedAltitudeFeet = DefaultPlannedAltitudeFeet
	}
	if opts.MemoSize <= 0 {
		opts.MemoSize = DefaultMemoSize
	}
	if opts.MemoTTL <= 0 {
		opts.MemoTTL = DefaultMemoTTL
	}
	rules := opts.Rules
	if rules == nil {
		rules = catalog.DefaultRules()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{
		catalogs: catalogs,
		opts:     opts,
		rules:    rules,
		memo:     expirable.NewLRU[string, *Report](opts.MemoSize, nil, opts.MemoTTL),
		log:      log,
	}
}

// Analyze acquires the catalog around the route and computes its report.
// Identical routes against the same catalog version are served from memory.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Report, error) {
	segments, err := Segments(req, a.opts.PlannedAltitudeFeet)
	if err != nil {
		return nil, err
	}

	bbox := Bound(segments, a.opts.BBoxMargin)
	cat := a.catalogs.Get(ctx, openaip.Query{BBox: &bbox})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fp := a.fingerprint(segments)
	memoKey := fmt.Sprintf("%s|%s|%d", fp, cat.Key, cat.Version)
	if cached, ok := a.memo.Get(memoKey); ok {
		r := cached.clone()
		r.ID = uuid.NewString()
		r.GeneratedAt = time.Now().UTC()
		r.Cached = true
		return r, nil
	}

	r, err := a.Traverse(ctx, cat, segments)
	if err != nil {
		return nil, err
	}
	r.Fingerprint = fp
	r.BBox = [4]float64{bbox.Min[0], bbox.Min[1], bbox.Max[0], bbox.Max[1]}
	a.memo.Add(memoKey, r.clone())

	a.log.Debug("route analysed",
		"report", r.ID,
		"segments", len(r.Segments),
		"traversed", len(r.Traversed),
		"conflicts", r.ConflictCount(),
		"catalog", cat.Key,
		"source", cat.Source)
	return r, nil
}

// fingerprint hashes everything the result depends on besides the catalog.
func (a *Analyzer) fingerprint(segments []Segment) string {
	h := xxhash.New()
	fmt.Fprintf(h, "%t|%g|", a.opts.AltitudeFilter, a.opts.ProximityKm)
	for _, s := range segments {
		fmt.Fprintf(h, "%s|%.6f,%.6f|%.6f,%.6f|%d|%d;",
			s.ID, s.From.Lat, s.From.Lon, s.To.Lat, s.To.Lon, s.StartFeet, s.EndFeet)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// candidate is an airspace prepared for repeated spatial tests.
type candidate struct {
	a     *aero.Airspace
	bound orb.Bound
}

// Traverse computes the report of segments against cat. Segments are
// processed in route order; an airspace (by name and type) is reported only
// on the first segment that meets it.
func (a *Analyzer) Traverse(ctx context.Context, cat *catalog.Catalog, segments []Segment) (*Report, error) {
	candidates := make([]candidate, 0, len(cat.Airspaces))
	for i := range cat.Airspaces {
		if b, ok := geo.Bound(cat.Airspaces[i].Geometry); ok {
			candidates = append(candidates, candidate{a: &cat.Airspaces[i], bound: b})
		}
	}

	r := &Report{
		ID:             uuid.NewString(),
		GeneratedAt:    time.Now().UTC(),
		CatalogKey:     cat.Key,
		CatalogVersion: cat.Version,
		Source:         cat.Source,
		AltitudeFilter: a.opts.AltitudeFilter,
		Segments:       make([]SegmentResult, 0, len(segments)),
	}

	seen := make(map[string]bool)
	for _, s := range segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.TotalDistanceKm += s.DistanceKm
		r.Segments = append(r.Segments, a.segment(s, candidates, seen))
	}

	if err := a.enrichFrequencies(ctx, cat, r.Segments); err != nil {
		return nil, err
	}

	for _, sr := range r.Segments {
		r.Traversed = append(r.Traversed, sr.Controlled...)
		r.Traversed = append(r.Traversed, sr.Restricted...)
		r.Traversed = append(r.Traversed, sr.Informational...)
	}
	if r.Traversed == nil {
		r.Traversed = []Entry{}
	}
	return r, nil
}

func (a *Analyzer) segment(s Segment, candidates []candidate, seen map[string]bool) SegmentResult {
	res := SegmentResult{
		Segment:       s,
		Controlled:    []Entry{},
		Restricted:    []Entry{},
		Informational: []Entry{},
		Conflicts:     []Entry{},
	}

	p1, p2 := s.endpoints()
	reach := proximityBound(geo.SegmentBound(p1, p2), a.opts.ProximityKm)

	for _, c := range candidates {
		sp := c.a
		if a.opts.AltitudeFilter && !sp.ContainsAltitude(s.AltitudeFeet) {
			continue
		}
		if !geo.BoundsOverlap(reach, c.bound) {
			continue
		}

		direct := geo.SegmentIntersectsGeometry(p1, p2, sp.Geometry)
		var dist float64
		if !direct {
			d, ok := geo.CentroidDistanceKm(sp.Geometry, p1, p2)
			if !ok || d >= a.opts.ProximityKm {
				continue
			}
			dist = d
		}

		e := newEntry(sp, s.ID)
		if seen[e.key()] {
			continue
		}
		seen[e.key()] = true
		e.DirectlyTraversed = direct
		e.NearRoute = !direct
		e.DistanceKm = math.Round(dist*100) / 100

		switch e.Category {
		case CategoryRestricted:
			res.Restricted = append(res.Restricted, e)
		case CategoryControlled:
			res.Controlled = append(res.Controlled, e)
		default:
			res.Informational = append(res.Informational, e)
		}
		if e.Conflict {
			res.Conflicts = append(res.Conflicts, e)
		}
	}

	sortEntries(res.Controlled)
	sortEntries(res.Restricted)
	sortEntries(res.Informational)
	sortEntries(res.Conflicts)
	return res
}

func newEntry(a *aero.Airspace, segmentID string) Entry {
	return Entry{
		ID:          a.ID,
		Name:        a.Name,
		Type:        a.Type,
		Class:       a.Class,
		Floor:       a.Floor.Raw,
		Ceiling:     a.Ceiling.Raw,
		FloorFeet:   a.Floor.Feet,
		CeilingFeet: a.Ceiling.Feet,
		Frequencies: append([]aero.Frequency(nil), a.Frequencies...),
		Priority:    a.Priority,
		Category:    Classify(a),
		Conflict:    IsConflict(a),
		SegmentID:   segmentID,
		Source:      a.Source,
	}
}

// proximityBound pads a segment box by km in both axes.
func proximityBound(b orb.Bound, km float64) orb.Bound {
	latDeg := km / (geo.EarthRadiusKm * math.Pi / 180)
	lat := math.Max(math.Abs(b.Min[1]), math.Abs(b.Max[1]))
	cos := math.Cos(lat * math.Pi / 180)
	lonDeg := latDeg
	if cos > 0.01 {
		lonDeg = latDeg / cos
	}
	return orb.Bound{
		Min: orb.Point{b.Min[0] - lonDeg, b.Min[1] - latDeg},
		Max: orb.Point{b.Max[0] + lonDeg, b.Max[1] + latDeg},
	}
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority < entries[j].Priority
		}
		return entries[i].FloorFeet < entries[j].FloorFeet
	})
}

// enrichFrequencies gives informational airspaces without frequencies those
// of the aerodrome named in them. Segments are handled concurrently; each
// goroutine only writes its own segment and reads the immutable catalog.
func (a *Analyzer) enrichFrequencies(ctx context.Context, cat *catalog.Catalog, results []SegmentResult) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range results {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for j := range results[i].Informational {
				e := &results[i].Informational[j]
				if len(e.Frequencies) > 0 {
					continue
				}
				if icao, ok := a.rules.AerodromeFor(e.Name); ok {
					e.Frequencies = append([]aero.Frequency(nil), cat.AerodromeFrequencies(icao)...)
				}
			}
			return nil
		})
	}
	return g.Wait()
}
