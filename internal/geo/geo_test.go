package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}

// square is a closed 1x1 degree box with its lower-left corner at (2, 48).
var square = orb.Ring{{2, 48}, {3, 48}, {3, 49}, {2, 49}, {2, 48}}

func TestPointInRing(t *testing.T) {
	tests := []struct {
		name string
		p    orb.Point
		want bool
	}{
		{"centre", orb.Point{2.5, 48.5}, true},
		{"west", orb.Point{1.5, 48.5}, false},
		{"north", orb.Point{2.5, 49.5}, false},
		{"near corner inside", orb.Point{2.001, 48.001}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PointInRing(tt.p, square); got != tt.want {
				t.Errorf("PointInRing(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}

	open := square[:4]
	if !PointInRing(orb.Point{2.5, 48.5}, open) {
		t.Error("open ring should behave like the closed one")
	}
}

func TestBoundsOverlap(t *testing.T) {
	a := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}
	tests := []struct {
		name string
		b    orb.Bound
		want bool
	}{
		{"overlapping", orb.Bound{Min: orb.Point{0.5, 0.5}, Max: orb.Point{2, 2}}, true},
		{"touching edge", orb.Bound{Min: orb.Point{1, 0}, Max: orb.Point{2, 1}}, true},
		{"disjoint x", orb.Bound{Min: orb.Point{1.1, 0}, Max: orb.Point{2, 1}}, false},
		{"disjoint y only", orb.Bound{Min: orb.Point{0, 2}, Max: orb.Point{1, 3}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BoundsOverlap(a, tt.b); got != tt.want {
				t.Errorf("BoundsOverlap = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSegmentIntersectsRing(t *testing.T) {
	tests := []struct {
		name   string
		p1, p2 orb.Point
		want   bool
	}{
		{"both inside", orb.Point{2.2, 48.2}, orb.Point{2.8, 48.8}, true},
		{"one endpoint inside", orb.Point{2.5, 48.5}, orb.Point{4, 48.5}, true},
		{"crosses through", orb.Point{1, 48.5}, orb.Point{4, 48.5}, true},
		{"passes by", orb.Point{1, 47}, orb.Point{4, 47.5}, false},
		{"parallel outside", orb.Point{1, 49.5}, orb.Point{4, 49.5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SegmentIntersectsRing(tt.p1, tt.p2, square); got != tt.want {
				t.Errorf("SegmentIntersectsRing = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSegmentIntersectsGeometryMultiPolygon(t *testing.T) {
	far := orb.Ring{{10, 10}, {11, 10}, {11, 11}, {10, 10}}
	degenerate := orb.Ring{{2, 48}, {3, 48}, {2, 48}}

	mp := orb.MultiPolygon{{far}, {square}}
	if !SegmentIntersectsGeometry(orb.Point{1, 48.5}, orb.Point{4, 48.5}, mp) {
		t.Error("second polygon should match")
	}
	if SegmentIntersectsGeometry(orb.Point{1, 48.5}, orb.Point{4, 48.5}, orb.MultiPolygon{{far}}) {
		t.Error("far polygon should not match")
	}
	if SegmentIntersectsGeometry(orb.Point{1, 48}, orb.Point{4, 48}, orb.MultiPolygon{{degenerate}}) {
		t.Error("degenerate ring must be excluded")
	}
	if SegmentIntersectsGeometry(orb.Point{1, 48}, orb.Point{4, 48}, nil) {
		t.Error("empty geometry must not match")
	}
}

func TestCentroid(t *testing.T) {
	c := Centroid(square)
	if !almostEqual(c[0], 2.5, 1e-9) || !almostEqual(c[1], 48.5, 1e-9) {
		t.Errorf("Centroid = %v, want [2.5 48.5]", c)
	}
}

func TestHaversineKm(t *testing.T) {
	// Paris CDG to Paris Orly.
	d := HaversineKm(orb.Point{2.55, 49.0097}, orb.Point{2.3794, 48.7233})
	if !almostEqual(d, 34.2, 0.1) {
		t.Errorf("HaversineKm = %f, want about 34.2", d)
	}
	if HaversineKm(orb.Point{2, 48}, orb.Point{2, 48}) != 0 {
		t.Error("distance to self should be zero")
	}
}

func TestPointSegmentDistanceKm(t *testing.T) {
	// One minute of latitude north of an east-west segment is about 1.853 km.
	p := orb.Point{2.5, 48 + 1.0/60}
	d := PointSegmentDistanceKm(p, orb.Point{2, 48}, orb.Point{3, 48})
	if !almostEqual(d, 1.853, 0.01) {
		t.Errorf("distance = %f, want about 1.853", d)
	}

	// Beyond the segment end the distance is to the endpoint.
	d = PointSegmentDistanceKm(orb.Point{3.1, 48}, orb.Point{2, 48}, orb.Point{3, 48})
	if !almostEqual(d, HaversineKm(orb.Point{3.1, 48}, orb.Point{3, 48}), 0.05) {
		t.Errorf("endpoint distance = %f", d)
	}

	// Zero-length segment.
	if d := PointSegmentDistanceKm(orb.Point{2, 48}, orb.Point{2, 48}, orb.Point{2, 48}); d != 0 {
		t.Errorf("zero-length distance = %f", d)
	}
}

func TestCentroidDistanceKm(t *testing.T) {
	d, ok := CentroidDistanceKm(orb.MultiPolygon{{square}}, orb.Point{2.5, 48.5}, orb.Point{2.5, 48.6})
	if !ok || d > 0.001 {
		t.Errorf("distance = %f, %v; want 0, true", d, ok)
	}
	if _, ok := CentroidDistanceKm(nil, orb.Point{0, 0}, orb.Point{1, 1}); ok {
		t.Error("empty geometry should report !ok")
	}
}

func TestCloseRing(t *testing.T) {
	r := CloseRing(orb.Ring{{1, 1}, {2, 1}, {2, 2}})
	if len(r) != 4 || r[0] != r[3] {
		t.Errorf("CloseRing = %v", r)
	}
	closed := CloseRing(square)
	if len(closed) != len(square) {
		t.Error("closed ring should be unchanged")
	}
	one := CloseRing(orb.Ring{{1, 1}})
	if len(one) != 1 || one[0] != one[len(one)-1] {
		t.Errorf("single vertex ring = %v", one)
	}
}

func TestBoundAndPad(t *testing.T) {
	b, ok := Bound(orb.MultiPolygon{{square}})
	if !ok || b.Min != (orb.Point{2, 48}) || b.Max != (orb.Point{3, 49}) {
		t.Errorf("Bound = %v, %v", b, ok)
	}
	p := Pad(b, 0.5)
	if p.Min != (orb.Point{1.5, 47.5}) || p.Max != (orb.Point{3.5, 49.5}) {
		t.Errorf("Pad = %v", p)
	}
}
