// Package geo implements the planar and great-circle primitives used to test
// route segments against airspace polygons. Points are orb points in
// (longitude, latitude) order.
package geo

import (
	"math"

	"github.com/paulmach/orb"

	"aeronav/internal/aero"
)

// EarthRadiusKm is the mean Earth radius used for distances.
const EarthRadiusKm = 6371.0

// PointInRing reports whether p lies inside the ring using the ray casting
// parity test. The ring may or may not repeat its first vertex.
func PointInRing(p orb.Point, ring orb.Ring) bool {
	inside := false
	n := len(ring)
	for i := 0; i < n; i++ {
		p0, p1 := ring[i], ring[(i+1)%n]
		if (p0[1] <= p[1] && p[1] < p1[1]) || (p1[1] <= p[1] && p[1] < p0[1]) {
			x := p0[0] + (p[1]-p0[1])*(p1[0]-p0[0])/(p1[1]-p0[1])
			if x > p[0] {
				inside = !inside
			}
		}
	}
	return inside
}

// BoundsOverlap reports whether two boxes overlap on both axes. Boxes that
// fail this test cannot intersect.
func BoundsOverlap(a, b orb.Bound) bool {
	x := a.Max[0] >= b.Min[0] && a.Min[0] <= b.Max[0]
	y := a.Max[1] >= b.Min[1] && a.Min[1] <= b.Max[1]
	return x && y
}

// SegmentBound returns the bounding box of a segment.
func SegmentBound(p1, p2 orb.Point) orb.Bound {
	return orb.Bound{
		Min: orb.Point{math.Min(p1[0], p2[0]), math.Min(p1[1], p2[1])},
		Max: orb.Point{math.Max(p1[0], p2[0]), math.Max(p1[1], p2[1])},
	}
}

// Pad grows a box by margin degrees on every side.
func Pad(b orb.Bound, margin float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.Min[0] - margin, b.Min[1] - margin},
		Max: orb.Point{b.Max[0] + margin, b.Max[1] + margin},
	}
}

// BoundOf returns the bounding box of a set of points.
func BoundOf(points []orb.Point) orb.Bound {
	if len(points) == 0 {
		return orb.Bound{}
	}
	return orb.MultiPoint(points).Bound()
}

func ccw(a, b, c orb.Point) bool {
	return (c[1]-a[1])*(b[0]-a[0]) > (b[1]-a[1])*(c[0]-a[0])
}

// SegmentsIntersect reports whether segment ab crosses segment cd, using the
// counter-clockwise orientation test on both pairs.
func SegmentsIntersect(a, b, c, d orb.Point) bool {
	return ccw(a, c, d) != ccw(b, c, d) && ccw(a, b, c) != ccw(a, b, d)
}

// SegmentIntersectsRing reports whether the segment p1-p2 touches the area of
// the ring: either endpoint lies inside, or some edge crosses the segment.
func SegmentIntersectsRing(p1, p2 orb.Point, ring orb.Ring) bool {
	if len(ring) < 3 {
		return false
	}
	if PointInRing(p1, ring) || PointInRing(p2, ring) {
		return true
	}
	n := len(ring)
	for i := 0; i < n; i++ {
		if SegmentsIntersect(p1, p2, ring[i], ring[(i+1)%n]) {
			return true
		}
	}
	return false
}

// SegmentIntersectsGeometry tests every constituent polygon's outer ring
// independently and ORs the results. Degenerate rings never match.
func SegmentIntersectsGeometry(p1, p2 orb.Point, mp orb.MultiPolygon) bool {
	seg := SegmentBound(p1, p2)
	for _, poly := range mp {
		if len(poly) == 0 || !aero.UsableRing(poly[0]) {
			continue
		}
		if !BoundsOverlap(seg, poly[0].Bound()) {
			continue
		}
		if SegmentIntersectsRing(p1, p2, poly[0]) {
			return true
		}
	}
	return false
}

// Centroid returns the arithmetic mean of a ring's vertices, ignoring the
// closing duplicate.
func Centroid(ring orb.Ring) orb.Point {
	pts := ring
	if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	if len(pts) == 0 {
		return orb.Point{}
	}
	var sx, sy float64
	for _, p := range pts {
		sx += p[0]
		sy += p[1]
	}
	n := float64(len(pts))
	return orb.Point{sx / n, sy / n}
}

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(a, b orb.Point) float64 {
	rad := func(d float64) float64 { return d / 180 * math.Pi }
	lat1, lon1 := rad(a[1]), rad(a[0])
	lat2, lon2 := rad(b[1]), rad(b[0])
	dlat, dlon := lat2-lat1, lon2-lon1

	x := math.Pow(math.Sin(dlat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dlon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(x), math.Sqrt(1-x))
	return EarthRadiusKm * c
}

// PointSegmentDistanceKm returns the distance from p to the segment v-w. The
// segment is projected onto a local equirectangular plane centred on p, which
// is accurate enough for the few-kilometre proximity checks it serves.
func PointSegmentDistanceKm(p, v, w orb.Point) float64 {
	kmPerLat := EarthRadiusKm * math.Pi / 180
	kmPerLon := kmPerLat * math.Cos(p[1]*math.Pi/180)

	toKm := func(q orb.Point) [2]float64 {
		return [2]float64{(q[0] - p[0]) * kmPerLon, (q[1] - p[1]) * kmPerLat}
	}
	a, b := toKm(v), toKm(w)

	dx, dy := b[0]-a[0], b[1]-a[1]
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(a[0], a[1])
	}
	t := -(a[0]*dx + a[1]*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(a[0]+t*dx, a[1]+t*dy)
}

// CentroidDistanceKm returns the smallest distance between the segment p1-p2
// and the centroid of any usable polygon in mp. ok is false when mp has no
// usable polygon.
func CentroidDistanceKm(mp orb.MultiPolygon, p1, p2 orb.Point) (float64, bool) {
	best, ok := math.Inf(1), false
	for _, poly := range mp {
		if len(poly) == 0 || !aero.UsableRing(poly[0]) {
			continue
		}
		d := PointSegmentDistanceKm(Centroid(poly[0]), p1, p2)
		if d < best {
			best, ok = d, true
		}
	}
	return best, ok
}

// Bound returns the bounding box of all usable polygons in mp.
func Bound(mp orb.MultiPolygon) (orb.Bound, bool) {
	var b orb.Bound
	found := false
	for _, poly := range mp {
		if len(poly) == 0 || !aero.UsableRing(poly[0]) {
			continue
		}
		rb := poly[0].Bound()
		if !found {
			b, found = rb, true
			continue
		}
		b = b.Union(rb)
	}
	return b, found
}

// CloseRing appends the first vertex when the ring is not already closed.
func CloseRing(r orb.Ring) orb.Ring {
	if len(r) > 0 && r[0] != r[len(r)-1] {
		r = append(r, r[0])
	}
	return r
}
