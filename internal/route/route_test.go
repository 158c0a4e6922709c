package route

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"aeronav/internal/aero"
	"aeronav/internal/catalog"
	"aeronav/internal/openaip"
)

type fakeCatalogs struct {
	cat     *catalog.Catalog
	calls   atomic.Int32
	entered chan struct{}
	block   chan struct{}
}

func (f *fakeCatalogs) Get(ctx context.Context, _ openaip.Query) *catalog.Catalog {
	if f.calls.Add(1) == 1 && f.block != nil {
		close(f.entered)
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	return f.cat
}

func box(minLon, minLat, maxLon, maxLat float64) orb.MultiPolygon {
	return orb.MultiPolygon{{{
		{minLon, minLat}, {maxLon, minLat}, {maxLon, maxLat}, {minLon, maxLat}, {minLon, minLat},
	}}}
}

func airspace(id, name string, t aero.AirspaceType, c aero.Class, floor, ceiling int, g orb.MultiPolygon) aero.Airspace {
	a := aero.Airspace{
		ID:       id,
		Name:     name,
		Class:    c,
		Floor:    aero.AltitudeLimit{Feet: floor, Raw: "floor", Datum: aero.DatumMSL},
		Ceiling:  aero.AltitudeLimit{Feet: ceiling, Raw: "ceiling", Datum: aero.DatumMSL},
		Geometry: g,
	}
	if floor == 0 {
		a.Floor = aero.Surface()
	}
	a.SetType(t)
	return a
}

func parisRoute(feet int) Request {
	return Request{
		Waypoints: []Waypoint{
			{ID: "LFPB", Lat: 48.9694, Lon: 2.4414},
			{ID: "LFPO", Lat: 48.7233, Lon: 2.3794},
		},
		PlannedAltitudeFeet: feet,
	}
}

func parisCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		Key:     "bbox:test",
		Version: 7,
		Source:  aero.SourceMerged,
		Airspaces: []aero.Airspace{
			airspace("CTR_PARIS", "PARIS CTR", aero.TypeCTR, aero.ClassD, 0, 1500, box(2.2, 48.6, 2.6, 49.1)),
		},
	}
}

func TestSegments(t *testing.T) {
	req := Request{
		Waypoints: []Waypoint{
			{ID: "A", Lat: 48, Lon: 2},
			{ID: "X"},
			{Lat: 48.5, Lon: 2.5},
			{ID: "C", Lat: 49, Lon: 3},
		},
		SegmentAltitudes: map[string]SegmentAltitude{"WP3-C": {StartFeet: 2000, EndFeet: 4500}},
	}
	segs, err := Segments(req, 3000)
	if err != nil {
		t.Fatal(err)
	}
	if len(segs) != 2 {
		t.Fatalf("got %d segments", len(segs))
	}
	if segs[0].ID != "A-WP3" || segs[0].AltitudeFeet != 3000 {
		t.Errorf("segment 0 = %+v", segs[0])
	}
	if segs[1].ID != "WP3-C" || segs[1].AltitudeFeet != 3250 {
		t.Errorf("segment 1 = %+v", segs[1])
	}
	if segs[0].DistanceKm < 60 || segs[0].DistanceKm > 70 {
		t.Errorf("distance = %.1f", segs[0].DistanceKm)
	}

	if _, err := Segments(Request{Waypoints: []Waypoint{{ID: "A", Lat: 48, Lon: 2}, {ID: "B"}}}, 3000); !errors.Is(err, ErrTooFewWaypoints) {
		t.Errorf("err = %v", err)
	}
}

func TestSegmentsRevisitedLegs(t *testing.T) {
	req := Request{
		Waypoints: []Waypoint{
			{ID: "A", Lat: 48, Lon: 2},
			{ID: "B", Lat: 48.5, Lon: 2.5},
			{ID: "A", Lat: 48, Lon: 2},
			{ID: "B", Lat: 48.5, Lon: 2.5},
		},
		SegmentAltitudes: map[string]SegmentAltitude{
			"A-B":   {StartFeet: 2000, EndFeet: 2000},
			"A-B#2": {StartFeet: 6000, EndFeet: 6000},
		},
	}
	segs, err := Segments(req, 3000)
	if err != nil {
		t.Fatal(err)
	}

	want := []struct {
		id   string
		feet int
	}{
		{"A-B", 2000},
		{"B-A", 3000},
		{"A-B#2", 6000},
	}
	if len(segs) != len(want) {
		t.Fatalf("got %d segments", len(segs))
	}
	for i, w := range want {
		if segs[i].ID != w.id || segs[i].AltitudeFeet != w.feet {
			t.Errorf("segment %d = %s at %d ft, want %s at %d ft", i, segs[i].ID, segs[i].AltitudeFeet, w.id, w.feet)
		}
	}
}

func TestSegmentMeanAltitudeRounds(t *testing.T) {
	tests := []struct {
		start, end int
		want       int
	}{
		{5000, 5001, 5001},
		{4999, 5000, 5000},
		{1000, 1000, 1000},
		{2000, 4500, 3250},
	}
	for _, tt := range tests {
		req := Request{
			Waypoints:        []Waypoint{{ID: "A", Lat: 48, Lon: 2}, {ID: "B", Lat: 48.5, Lon: 2.5}},
			SegmentAltitudes: map[string]SegmentAltitude{"A-B": {StartFeet: tt.start, EndFeet: tt.end}},
		}
		segs, err := Segments(req, 3000)
		if err != nil {
			t.Fatal(err)
		}
		if got := segs[0].AltitudeFeet; got != tt.want {
			t.Errorf("mean of %d and %d = %d, want %d", tt.start, tt.end, got, tt.want)
		}
	}

	// A leg climbing from 5000 to 5001 ft is above a 5000 ft ceiling.
	ctr := aero.Airspace{Floor: aero.Surface(), Ceiling: aero.AltitudeLimit{Feet: 5000, Raw: "5000ft", Datum: aero.DatumMSL}}
	if ctr.ContainsAltitude(5001) {
		t.Error("5001 ft inside a 5000 ft ceiling")
	}
}

func TestAnalyzeControlZoneByAltitude(t *testing.T) {
	a := NewAnalyzer(&fakeCatalogs{cat: parisCatalog()}, DefaultOptions())

	high, err := a.Analyze(context.Background(), parisRoute(3000))
	if err != nil {
		t.Fatal(err)
	}
	if len(high.Traversed) != 0 {
		t.Errorf("CTR reported above its ceiling: %+v", high.Traversed)
	}

	low, err := a.Analyze(context.Background(), parisRoute(1200))
	if err != nil {
		t.Fatal(err)
	}
	seg := low.Segments[0]
	if len(seg.Controlled) != 1 || seg.Controlled[0].ID != "CTR_PARIS" {
		t.Fatalf("controlled = %+v", seg.Controlled)
	}
	e := seg.Controlled[0]
	if !e.DirectlyTraversed || e.NearRoute {
		t.Errorf("traversal flags = %+v", e)
	}
	if len(seg.Conflicts) != 1 || !e.Conflict {
		t.Error("class D crossing must be a conflict")
	}
	if low.Source != aero.SourceMerged || low.CatalogVersion != 7 {
		t.Errorf("report catalog = %s/%d", low.Source, low.CatalogVersion)
	}
	if low.BBox[0] > 2.3794-0.5+1e-9 || low.BBox[3] < 48.9694+0.5-1e-9 {
		t.Errorf("bbox not padded: %v", low.BBox)
	}
}

func TestAnalyzeAltitudeBoundaries(t *testing.T) {
	cat := &catalog.Catalog{Airspaces: []aero.Airspace{
		airspace("TMA_X", "TMA X", aero.TypeTMA, aero.ClassE, 1000, 5000, box(1, 47, 3, 49)),
	}}
	a := NewAnalyzer(&fakeCatalogs{cat: cat}, DefaultOptions())

	tests := []struct {
		feet int
		want bool
	}{
		{999, false},
		{1000, true},
		{3000, true},
		{5000, true},
		{5001, false},
	}
	for _, tt := range tests {
		req := Request{
			Waypoints:        []Waypoint{{ID: "A", Lat: 47.5, Lon: 1.5}, {ID: "B", Lat: 48.5, Lon: 2.5}},
			SegmentAltitudes: map[string]SegmentAltitude{"A-B": {StartFeet: tt.feet, EndFeet: tt.feet}},
		}
		r, err := a.Analyze(context.Background(), req)
		if err != nil {
			t.Fatal(err)
		}
		if got := len(r.Traversed) == 1; got != tt.want {
			t.Errorf("altitude %d: included = %v, want %v", tt.feet, got, tt.want)
		}
	}
}

func TestAnalyzeWithoutAltitudeFilter(t *testing.T) {
	opts := DefaultOptions()
	opts.AltitudeFilter = false
	a := NewAnalyzer(&fakeCatalogs{cat: parisCatalog()}, opts)

	r, err := a.Analyze(context.Background(), parisRoute(9000))
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Traversed) != 1 {
		t.Errorf("altitude filter disabled, traversed = %d", len(r.Traversed))
	}
}

func TestAnalyzeUnboundedAirspace(t *testing.T) {
	cat := &catalog.Catalog{Airspaces: []aero.Airspace{
		airspace("FIR_PARIS", "PARIS FIR", aero.TypeFIR, aero.ClassG, 0, aero.UnlimitedFeet, box(-5, 42, 8, 51)),
	}}
	a := NewAnalyzer(&fakeCatalogs{cat: cat}, DefaultOptions())
	r, err := a.Analyze(context.Background(), parisRoute(45000))
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Traversed) != 1 || r.Traversed[0].Category != CategoryInformational {
		t.Errorf("traversed = %+v", r.Traversed)
	}
}

func TestAnalyzeDeduplicatesAcrossSegments(t *testing.T) {
	cat := &catalog.Catalog{Airspaces: []aero.Airspace{
		airspace("R_1", "R 1", aero.TypeRestricted, aero.ClassG, 0, 5000, box(2.0, 47.9, 2.2, 48.1)),
	}}
	a := NewAnalyzer(&fakeCatalogs{cat: cat}, DefaultOptions())

	// Crosses R 1 eastbound, leaves it, then crosses it again westbound.
	req := Request{Waypoints: []Waypoint{
		{ID: "A", Lat: 48.0, Lon: 1.9},
		{ID: "B", Lat: 48.0, Lon: 2.3},
		{ID: "C", Lat: 48.3, Lon: 2.3},
		{ID: "D", Lat: 47.95, Lon: 1.9},
	}}
	r, err := a.Analyze(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Traversed) != 1 {
		t.Fatalf("aggregate view has %d entries, want 1", len(r.Traversed))
	}
	if r.Traversed[0].SegmentID != "A-B" {
		t.Errorf("reported on %s", r.Traversed[0].SegmentID)
	}
	if len(r.Segments[2].Restricted) != 0 {
		t.Error("airspace reported again on a later segment")
	}
	if r.ConflictCount() != 1 {
		t.Errorf("conflicts = %d", r.ConflictCount())
	}
}

func TestAnalyzeNearRoute(t *testing.T) {
	cat := &catalog.Catalog{Airspaces: []aero.Airspace{
		airspace("DANGER_NEAR", "D NEAR", aero.TypeDanger, aero.ClassG, 0, 5000, box(2.245, 48.018, 2.255, 48.022)),
		airspace("DANGER_FAR", "D FAR", aero.TypeDanger, aero.ClassG, 0, 5000, box(2.245, 48.098, 2.255, 48.102)),
	}}
	a := NewAnalyzer(&fakeCatalogs{cat: cat}, DefaultOptions())

	req := Request{Waypoints: []Waypoint{{ID: "A", Lat: 48.0, Lon: 2.0}, {ID: "B", Lat: 48.0, Lon: 2.5}}}
	r, err := a.Analyze(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Traversed) != 1 {
		t.Fatalf("traversed = %+v", r.Traversed)
	}
	e := r.Traversed[0]
	if e.ID != "DANGER_NEAR" || !e.NearRoute || e.DirectlyTraversed {
		t.Errorf("entry = %+v", e)
	}
	if e.DistanceKm < 2 || e.DistanceKm > 2.5 {
		t.Errorf("distance = %.2f", e.DistanceKm)
	}
}

func TestAnalyzeClassificationAndOrdering(t *testing.T) {
	g := box(1, 47, 3, 49)
	cat := &catalog.Catalog{
		Airspaces: []aero.Airspace{
			airspace("TMA_HIGH", "TMA HIGH", aero.TypeTMA, aero.ClassE, 2000, 9000, g),
			airspace("TMA_LOW", "TMA LOW", aero.TypeTMA, aero.ClassC, 1000, 9000, g),
			airspace("CTR_A", "CTR A", aero.TypeCTR, aero.ClassD, 0, 9000, g),
			airspace("P_1", "P 1", aero.TypeProhibited, aero.ClassNone, 0, 9000, g),
			airspace("OTHER_SIV", "SIV STRASBOURG", aero.TypeOther, aero.ClassG, 0, 9000, g),
			airspace("NOGEO", "NO GEOMETRY", aero.TypeCTR, aero.ClassD, 0, 9000, nil),
		},
		Airports: []aero.Airport{{ICAO: "LFST", Frequencies: []aero.Frequency{{Kind: "INFO", Value: "120.700", Unit: "MHz"}}}},
	}
	a := NewAnalyzer(&fakeCatalogs{cat: cat}, DefaultOptions())

	req := Request{Waypoints: []Waypoint{{ID: "A", Lat: 47.5, Lon: 1.5}, {ID: "B", Lat: 48.5, Lon: 2.5}}}
	r, err := a.Analyze(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	seg := r.Segments[0]

	var order []string
	for _, e := range seg.Controlled {
		order = append(order, e.ID)
	}
	if len(order) != 3 || order[0] != "CTR_A" || order[1] != "TMA_LOW" || order[2] != "TMA_HIGH" {
		t.Errorf("controlled order = %v", order)
	}
	if len(seg.Restricted) != 1 || seg.Restricted[0].ID != "P_1" {
		t.Errorf("restricted = %+v", seg.Restricted)
	}
	if len(seg.Informational) != 1 || len(seg.Informational[0].Frequencies) != 1 {
		t.Errorf("informational = %+v", seg.Informational)
	}

	conflicts := map[string]bool{}
	for _, e := range seg.Conflicts {
		conflicts[e.ID] = true
	}
	if len(conflicts) != 3 || !conflicts["CTR_A"] || !conflicts["TMA_LOW"] || !conflicts["P_1"] {
		t.Errorf("conflicts = %v", conflicts)
	}
	if len(r.Traversed) != 5 {
		t.Errorf("airspace without geometry must be excluded, traversed = %d", len(r.Traversed))
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		typ      aero.AirspaceType
		class    aero.Class
		want     Category
		conflict bool
	}{
		{aero.TypeCTR, aero.ClassD, CategoryControlled, true},
		{aero.TypeTMA, aero.ClassA, CategoryControlled, true},
		{aero.TypeTMA, aero.ClassE, CategoryControlled, false},
		{aero.TypeRestricted, aero.ClassG, CategoryRestricted, true},
		{aero.TypeDanger, aero.ClassE, CategoryRestricted, true},
		{aero.TypeFIR, aero.ClassG, CategoryInformational, false},
		{aero.TypeTMZ, aero.ClassNone, CategoryInformational, false},
	}
	for _, tt := range tests {
		a := aero.Airspace{Type: tt.typ, Class: tt.class}
		if got := Classify(&a); got != tt.want {
			t.Errorf("Classify(%s/%s) = %s, want %s", tt.typ, tt.class, got, tt.want)
		}
		if got := IsConflict(&a); got != tt.conflict {
			t.Errorf("IsConflict(%s/%s) = %v", tt.typ, tt.class, got)
		}
	}
}

func TestAnalyzeMemo(t *testing.T) {
	a := NewAnalyzer(&fakeCatalogs{cat: parisCatalog()}, DefaultOptions())

	first, err := a.Analyze(context.Background(), parisRoute(1200))
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Analyze(context.Background(), parisRoute(1200))
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached || first.Cached {
		t.Error("second identical analysis should be served from memory")
	}
	if second.ID == first.ID || second.Fingerprint != first.Fingerprint {
		t.Error("cached report must keep the fingerprint under a new id")
	}

	third, _ := a.Analyze(context.Background(), parisRoute(1300))
	if third.Cached || third.Fingerprint == first.Fingerprint {
		t.Error("different altitude must not hit the memo")
	}
}

func TestAnalyzeMemoIsolatedFromCallers(t *testing.T) {
	a := NewAnalyzer(&fakeCatalogs{cat: parisCatalog()}, DefaultOptions())

	first, err := a.Analyze(context.Background(), parisRoute(1200))
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Traversed) == 0 || len(first.Segments) == 0 {
		t.Fatal("route traverses nothing")
	}
	wantName := first.Traversed[0].Name
	wantSegment := first.Segments[0].Segment.ID

	first.Traversed[0].Name = "CHANGED"
	first.Segments[0].Segment.ID = "CHANGED"

	second, err := a.Analyze(context.Background(), parisRoute(1200))
	if err != nil {
		t.Fatal(err)
	}
	second.Traversed[0].Name = "CHANGED AGAIN"

	third, err := a.Analyze(context.Background(), parisRoute(1200))
	if err != nil {
		t.Fatal(err)
	}
	if !third.Cached {
		t.Fatal("expected a memo hit")
	}
	if third.Traversed[0].Name != wantName || third.Segments[0].Segment.ID != wantSegment {
		t.Errorf("memo altered by a caller: %q / %q", third.Traversed[0].Name, third.Segments[0].Segment.ID)
	}
}

func TestSessionSupersedes(t *testing.T) {
	cats := &fakeCatalogs{cat: parisCatalog(), entered: make(chan struct{}), block: make(chan struct{})}
	defer close(cats.block)
	s := NewAnalyzer(cats, DefaultOptions()).NewSession()

	errs := make(chan error, 1)
	go func() {
		_, err := s.Analyze(context.Background(), parisRoute(1200))
		errs <- err
	}()

	select {
	case <-cats.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first analysis never started")
	}

	r, err := s.Analyze(context.Background(), parisRoute(1000))
	if err != nil {
		t.Fatalf("latest analysis failed: %v", err)
	}
	if r.Segments[0].Segment.AltitudeFeet != 1000 {
		t.Errorf("latest report altitude = %d", r.Segments[0].Segment.AltitudeFeet)
	}

	select {
	case err := <-errs:
		if !errors.Is(err, ErrSuperseded) {
			t.Errorf("stale analysis err = %v, want ErrSuperseded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stale analysis never returned")
	}
}

func TestAnalyzeRejectsShortRoute(t *testing.T) {
	a := NewAnalyzer(&fakeCatalogs{cat: parisCatalog()}, DefaultOptions())
	_, err := a.Analyze(context.Background(), Request{Waypoints: []Waypoint{{ID: "A", Lat: 48, Lon: 2}}})
	if !errors.Is(err, ErrTooFewWaypoints) {
		t.Errorf("err = %v", err)
	}
}
