// Package catalog reconciles the primary and secondary airspace sources into
// one published catalog and serves it through a caching service.
package catalog

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"aeronav/internal/aero"
	"aeronav/internal/extractor"
	"aeronav/internal/geo"
)

// ErrNotFound is returned by lookups for unknown identifiers.
var ErrNotFound = errors.New("not found")

// Catalog is an immutable published snapshot. Callers must not modify it;
// the service replaces whole catalogs instead.
type Catalog struct {
	Key       string             `json:"key" msgpack:"key"`
	Version   uint64             `json:"version" msgpack:"version"`
	Source    aero.Source        `json:"source" msgpack:"source"`
	BuiltAt   time.Time          `json:"built_at" msgpack:"built_at"`
	Airspaces []aero.Airspace    `json:"airspaces" msgpack:"airspaces"`
	Airports  []aero.Airport     `json:"airports" msgpack:"airports"`
	Navaids   []aero.Navaid      `json:"navaids" msgpack:"navaids"`
	Waypoints []aero.Waypoint    `json:"waypoints" msgpack:"waypoints"`
	Obstacles []aero.Obstacle    `json:"obstacles" msgpack:"obstacles"`
	Routes    []aero.Route       `json:"routes" msgpack:"routes"`
	Summary   *extractor.Summary `json:"summary,omitempty" msgpack:"summary"`
}

// AirspaceFilter selects airspaces. Zero values match everything.
type AirspaceFilter struct {
	Types []aero.AirspaceType
	BBox  *orb.Bound
}

// AirportFilter selects airports. Zero values match everything.
type AirportFilter struct {
	BBox       *orb.Bound
	Near       *aero.GeoPoint
	RadiusKm   float64
	MinRunwayM int
}

// NavaidFilter selects navaids. Zero values match everything.
type NavaidFilter struct {
	Types []aero.NavaidType
	BBox  *orb.Bound
}

func inBound(b *orb.Bound, p aero.GeoPoint) bool {
	return b == nil || b.Contains(p.Point())
}

// FilterAirspaces returns the airspaces matching f in catalog order.
// Airspaces without usable geometry match any box.
func (c *Catalog) FilterAirspaces(f AirspaceFilter) []aero.Airspace {
	out := make([]aero.Airspace, 0)
	for _, a := range c.Airspaces {
		if len(f.Types) > 0 && !containsType(f.Types, a.Type) {
			continue
		}
		if f.BBox != nil {
			if b, ok := geo.Bound(a.Geometry); ok && !geo.BoundsOverlap(b, *f.BBox) {
				continue
			}
		}
		out = append(out, a)
	}
	return out
}

func containsType(types []aero.AirspaceType, t aero.AirspaceType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

// Airspace looks an airspace up by identifier.
func (c *Catalog) Airspace(id string) (aero.Airspace, error) {
	for _, a := range c.Airspaces {
		if a.ID == id {
			return a, nil
		}
	}
	return aero.Airspace{}, ErrNotFound
}

// FilterAirports returns the airports matching f. With Near set, results are
// ordered by distance, otherwise by ICAO code.
func (c *Catalog) FilterAirports(f AirportFilter) []aero.Airport {
	type hit struct {
		a    aero.Airport
		dist float64
	}
	var hits []hit
	for _, a := range c.Airports {
		if !inBound(f.BBox, a.Coordinates) {
			continue
		}
		if f.MinRunwayM > 0 && a.LongestRunwayM() < f.MinRunwayM {
			continue
		}
		var d float64
		if f.Near != nil {
			d = geo.HaversineKm(f.Near.Point(), a.Coordinates.Point())
			if f.RadiusKm > 0 && d > f.RadiusKm {
				continue
			}
		}
		hits = append(hits, hit{a, d})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if f.Near != nil && hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].a.ICAO < hits[j].a.ICAO
	})

	out := make([]aero.Airport, len(hits))
	for i, h := range hits {
		out[i] = h.a
	}
	return out
}

// Airport looks an airport up by ICAO code, case-insensitively.
func (c *Catalog) Airport(icao string) (aero.Airport, error) {
	icao = strings.ToUpper(strings.TrimSpace(icao))
	for _, a := range c.Airports {
		if a.ICAO == icao {
			return a, nil
		}
	}
	return aero.Airport{}, ErrNotFound
}

// AerodromeFrequencies returns the frequencies published for an aerodrome.
func (c *Catalog) AerodromeFrequencies(icao string) []aero.Frequency {
	a, err := c.Airport(icao)
	if err != nil {
		return nil
	}
	return a.Frequencies
}

// FilterNavaids returns the navaids matching f.
func (c *Catalog) FilterNavaids(f NavaidFilter) []aero.Navaid {
	out := make([]aero.Navaid, 0)
	for _, n := range c.Navaids {
		if len(f.Types) > 0 && !containsNavaidType(f.Types, n.Type) {
			continue
		}
		if !inBound(f.BBox, n.Coordinates) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func containsNavaidType(types []aero.NavaidType, t aero.NavaidType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

// Counts summarises the catalog contents.
type Counts struct {
	Airspaces int `json:"airspaces"`
	Airports  int `json:"airports"`
	Navaids   int `json:"navaids"`
	Waypoints int `json:"waypoints"`
	Obstacles int `json:"obstacles"`
	Routes    int `json:"routes"`
}

// Counts returns the number of records per kind.
func (c *Catalog) Counts() Counts {
	return Counts{
		Airspaces: len(c.Airspaces),
		Airports:  len(c.Airports),
		Navaids:   len(c.Navaids),
		Waypoints: len(c.Waypoints),
		Obstacles: len(c.Obstacles),
		Routes:    len(c.Routes),
	}
}
