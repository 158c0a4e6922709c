// Package route computes which airspaces an ordered route traverses, segment
// by segment, at the altitude planned for each segment.
package route

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"

	"aeronav/internal/aero"
	"aeronav/internal/geo"
)

var (
	// ErrTooFewWaypoints is returned for routes with fewer than two usable waypoints.
	ErrTooFewWaypoints = errors.New("route needs at least two waypoints with coordinates")
	// ErrSuperseded is returned when a newer analysis replaced this one.
	ErrSuperseded = errors.New("analysis superseded by a newer route")
)

// Waypoint is one route point.
type Waypoint struct {
	ID   string  `json:"id"`
	Name string  `json:"name,omitempty"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

func (w Waypoint) position() aero.GeoPoint {
	return aero.GeoPoint{Lat: w.Lat, Lon: w.Lon}
}

// SegmentAltitude is the altitude assigned to one segment.
type SegmentAltitude struct {
	StartFeet int `json:"start_ft"`
	EndFeet   int `json:"end_ft"`
}

// Request is an analysis request. SegmentAltitudes is keyed by segment ID
// ("fromID-toID", with "#n" appended to the n-th repeat of the same pair);
// segments without an entry fly at PlannedAltitudeFeet.
type Request struct {
	SessionID           string                     `json:"session_id,omitempty"`
	Waypoints           []Waypoint                 `json:"waypoints"`
	SegmentAltitudes    map[string]SegmentAltitude `json:"segment_altitudes,omitempty"`
	PlannedAltitudeFeet int                        `json:"planned_altitude_ft,omitempty"`
}

// Segment is a leg between two consecutive waypoints.
type Segment struct {
	ID           string   `json:"id"`
	From         Waypoint `json:"from"`
	To           Waypoint `json:"to"`
	StartFeet    int      `json:"start_ft"`
	EndFeet      int      `json:"end_ft"`
	AltitudeFeet int      `json:"altitude_ft"` // Mean of start and end, rounded half away from zero.
	DistanceKm   float64  `json:"distance_km"`
}

func (s Segment) endpoints() (orb.Point, orb.Point) {
	return s.From.position().Point(), s.To.position().Point()
}

// Segments builds the route legs. Waypoints without valid coordinates are
// dropped; missing IDs are numbered.
func Segments(req Request, plannedFeet int) ([]Segment, error) {
	if req.PlannedAltitudeFeet > 0 {
		plannedFeet = req.PlannedAltitudeFeet
	}

	points := make([]Waypoint, 0, len(req.Waypoints))
	for i, w := range req.Waypoints {
		if !w.position().Valid() {
			continue
		}
		if strings.TrimSpace(w.ID) == "" {
			w.ID = fmt.Sprintf("WP%d", i+1)
		}
		points = append(points, w)
	}
	if len(points) < 2 {
		return nil, ErrTooFewWaypoints
	}

	out := make([]Segment, 0, len(points)-1)
	legs := make(map[string]int)
	for i := 0; i+1 < len(points); i++ {
		from, to := points[i], points[i+1]
		id := from.ID + "-" + to.ID
		legs[id]++
		if n := legs[id]; n > 1 {
			id = fmt.Sprintf("%s#%d", id, n)
		}
		s := Segment{
			ID:        id,
			From:      from,
			To:        to,
			StartFeet: plannedFeet,
			EndFeet:   plannedFeet,
		}
		if alt, ok := req.SegmentAltitudes[s.ID]; ok {
			s.StartFeet, s.EndFeet = alt.StartFeet, alt.EndFeet
		}
		s.AltitudeFeet = int(math.Round(float64(s.StartFeet+s.EndFeet) / 2))
		p1, p2 := s.endpoints()
		s.DistanceKm = geo.HaversineKm(p1, p2)
		out = append(out, s)
	}
	return out, nil
}

// Bound returns the box enclosing every segment, padded by margin degrees.
func Bound(segments []Segment, margin float64) orb.Bound {
	pts := make([]orb.Point, 0, len(segments)+1)
	for _, s := range segments {
		p1, p2 := s.endpoints()
		pts = append(pts, p1, p2)
	}
	return geo.Pad(geo.BoundOf(pts), margin)
}

// Category is how a traversed airspace is reported.
type Category string

const (
	CategoryControlled    Category = "controlled"
	CategoryRestricted    Category = "restricted"
	CategoryInformational Category = "informational"
)

// Classify returns the category of an airspace: restricted types first,
// then classes A to E, then everything else.
func Classify(a *aero.Airspace) Category {
	switch {
	case a.Type.IsRestricted():
		return CategoryRestricted
	case a.Class.Controlled():
		return CategoryControlled
	default:
		return CategoryInformational
	}
}

// IsConflict reports whether crossing the airspace needs attention: class A
// to D, or any restricted type. Class E and informational airspaces never do.
func IsConflict(a *aero.Airspace) bool {
	return a.Type.IsRestricted() || a.Class.Clearance()
}

// Entry is one traversed airspace, carrying everything needed for display.
type Entry struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Type              aero.AirspaceType `json:"type"`
	Class             aero.Class        `json:"class,omitempty"`
	Floor             string            `json:"floor"`
	Ceiling           string            `json:"ceiling"`
	FloorFeet         int               `json:"floor_ft"`
	CeilingFeet       int               `json:"ceiling_ft"`
	Frequencies       []aero.Frequency  `json:"frequencies,omitempty"`
	Priority          int               `json:"priority"`
	Category          Category          `json:"category"`
	Conflict          bool              `json:"conflict"`
	DirectlyTraversed bool              `json:"is_directly_traversed"`
	NearRoute         bool              `json:"is_near_route"`
	DistanceKm        float64           `json:"distance_km,omitempty"` // Centroid distance for near-route entries.
	SegmentID         string            `json:"segment_id"`
	Source            aero.Source       `json:"source,omitempty"`
}

func (e Entry) key() string {
	return string(e.Type) + "|" + e.Name
}

// SegmentResult lists the airspaces first met on one segment.
type SegmentResult struct {
	Segment       Segment `json:"segment"`
	Controlled    []Entry `json:"controlled_airspaces"`
	Restricted    []Entry `json:"restricted_zones"`
	Informational []Entry `json:"informational_airspaces"`
	Conflicts     []Entry `json:"conflicts"`
}
