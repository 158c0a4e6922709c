// Package enrichment completes an extracted document after the element walk:
// it attaches runways, frequencies and reporting points to their aerodromes,
// derives airport categories, merges co-located VOR and DME stations and
// assigns airspace priorities. Every pass is idempotent.
package enrichment

import (
	"math"
	"sort"

	"aeronav/internal/aero"
	"aeronav/internal/extractor"
	"aeronav/internal/geo"
)

// Default tuning values.
const (
	DefaultVORDMETolerance   = 0.001 // degrees, about 100 m
	DefaultReportingRadiusKm = 15.0
)

// Options tunes the enrichment passes. Zero values use the defaults.
type Options struct {
	VORDMETolerance   float64
	ReportingRadiusKm float64
}

func (o Options) withDefaults() Options {
	if o.VORDMETolerance <= 0 {
		o.VORDMETolerance = DefaultVORDMETolerance
	}
	if o.ReportingRadiusKm <= 0 {
		o.ReportingRadiusKm = DefaultReportingRadiusKm
	}
	return o
}

// Enrich runs every pass over doc in place.
func Enrich(doc *extractor.Document, opts Options) {
	if doc == nil {
		return
	}
	opts = opts.withDefaults()

	JoinRunways(doc.Airports, doc.Runways)
	JoinFrequencies(doc.Airports, doc.Frequencies)
	AssignCategories(doc.Airports)
	doc.Navaids = MergeVORDME(doc.Navaids, opts.VORDMETolerance)
	AssignPriorities(doc.Airspaces)
	AssociateReportingPoints(doc.Airports, doc.Waypoints, opts.ReportingRadiusKm)
}

// JoinRunways attaches runways to their airport by AirportID == ICAO.
// Existing runway lists are replaced, so the join can be re-run at will.
func JoinRunways(airports []aero.Airport, runways []aero.Runway) {
	byAirport := make(map[string][]aero.Runway)
	for _, r := range runways {
		byAirport[r.AirportID] = append(byAirport[r.AirportID], r)
	}
	for i := range airports {
		airports[i].Runways = byAirport[airports[i].ICAO]
	}
}

// JoinFrequencies attaches aerodrome frequencies by ICAO, dropping duplicates
// of the same kind and value.
func JoinFrequencies(airports []aero.Airport, freqs []aero.AerodromeFrequency) {
	byAirport := make(map[string][]aero.Frequency)
	seen := make(map[string]bool)
	for _, f := range freqs {
		key := f.AirportID + "|" + f.Kind + "|" + f.Value
		if seen[key] {
			continue
		}
		seen[key] = true
		byAirport[f.AirportID] = append(byAirport[f.AirportID], f.Frequency)
	}
	for i := range airports {
		airports[i].Frequencies = byAirport[airports[i].ICAO]
	}
}

// Category classifies an airport by its longest runway in meters.
func Category(longestM int) string {
	switch {
	case longestM > 2000:
		return aero.CategoryLarge
	case longestM > 1000:
		return aero.CategoryMedium
	default:
		return aero.CategorySmall
	}
}

// AssignCategories derives each airport's category from its runways.
func AssignCategories(airports []aero.Airport) {
	for i := range airports {
		airports[i].Category = Category(airports[i].LongestRunwayM())
	}
}

// MergeVORDME folds every DME into the VOR with the same identifier that lies
// within tolerance degrees on both axes. The VOR becomes a VOR-DME and takes
// the DME channel; the DME record disappears. A DME is absorbed at most once.
func MergeVORDME(navaids []aero.Navaid, tolerance float64) []aero.Navaid {
	absorbed := make(map[int]bool)

	for i := range navaids {
		vor := &navaids[i]
		if vor.Type != aero.NavaidVOR {
			continue
		}
		for j := range navaids {
			dme := navaids[j]
			if dme.Type != aero.NavaidDME || absorbed[j] || dme.Identifier != vor.Identifier {
				continue
			}
			if math.Abs(dme.Coordinates.Lat-vor.Coordinates.Lat) > tolerance ||
				math.Abs(dme.Coordinates.Lon-vor.Coordinates.Lon) > tolerance {
				continue
			}
			vor.Type = aero.NavaidVORDME
			if vor.Channel == "" {
				vor.Channel = dme.Channel
			}
			absorbed[j] = true
			break
		}
	}

	if len(absorbed) == 0 {
		return navaids
	}
	out := make([]aero.Navaid, 0, len(navaids)-len(absorbed))
	for i, n := range navaids {
		if !absorbed[i] {
			out = append(out, n)
		}
	}
	return out
}

// AssignPriorities recomputes every airspace priority from its type.
func AssignPriorities(airspaces []aero.Airspace) {
	for i := range airspaces {
		airspaces[i].Priority = airspaces[i].Type.Priority()
	}
}

// AssociateReportingPoints attaches visual reporting points to airports: by
// their explicit aerodrome reference when present, otherwise to the nearest
// airport within radiusKm.
func AssociateReportingPoints(airports []aero.Airport, waypoints []aero.Waypoint, radiusKm float64) {
	index := make(map[string]int, len(airports))
	for i := range airports {
		airports[i].ReportingPoints = nil
		index[airports[i].ICAO] = i
	}

	for _, w := range waypoints {
		if w.Type != aero.WaypointReporting {
			continue
		}
		if i, ok := index[w.AirportID]; ok {
			airports[i].ReportingPoints = append(airports[i].ReportingPoints, w)
			continue
		}
		if !w.Coordinates.Valid() {
			continue
		}

		best, bestKm := -1, radiusKm
		for i := range airports {
			if !airports[i].Coordinates.Valid() {
				continue
			}
			d := geo.HaversineKm(w.Coordinates.Point(), airports[i].Coordinates.Point())
			if d <= bestKm {
				best, bestKm = i, d
			}
		}
		if best >= 0 {
			airports[best].ReportingPoints = append(airports[best].ReportingPoints, w)
		}
	}

	for i := range airports {
		sort.SliceStable(airports[i].ReportingPoints, func(a, b int) bool {
			return airports[i].ReportingPoints[a].Identifier < airports[i].ReportingPoints[b].Identifier
		})
	}
}
