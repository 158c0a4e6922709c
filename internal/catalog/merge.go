package catalog

import (
	"fmt"
	"sort"
	"strings"

	"aeronav/internal/aero"
)

// aerodromeKinds are the aerodrome frequencies copied onto CTR/TMA records.
var aerodromeKinds = map[string]bool{
	"TWR":  true,
	"APP":  true,
	"AFIS": true,
	"INFO": true,
	"ATIS": true,
}

// MergeInput carries everything one merge needs.
type MergeInput struct {
	Secondary   []aero.Airspace
	Corrections map[string]aero.AirspaceOverride // keyed by aero.JoinKey
	Airports    []aero.Airport
	Overrides   map[string]aero.AirspaceOverride // user corrections keyed by airspace ID
}

// Merge reconciles the secondary catalog with the primary corrections.
// Geometry comes from the secondary record, corrections from the primary
// document, then named exceptions and finally user overrides. The input is
// not modified and the result is sorted by ID.
func (r *Rules) Merge(in MergeInput) []aero.Airspace {
	freqs := aerodromeFrequencies(in.Airports)

	out := make([]aero.Airspace, 0, len(in.Secondary))
	for _, src := range in.Secondary {
		a := cloneAirspace(src)

		if strings.TrimSpace(a.Name) == "" {
			a.Name = fmt.Sprintf("%s %s", a.Type, a.SourceID)
		}

		if c, ok := in.Corrections[aero.JoinKey(a.Type, a.Name)]; ok {
			c.Apply(&a)
		}

		a.ID = aero.AirspaceID(a.Type, a.SourceID)
		a.Source = aero.SourceMerged

		if (a.Type == aero.TypeCTR || a.Type == aero.TypeTMA) && len(a.Frequencies) == 0 {
			if icao, ok := r.AerodromeFor(a.Name); ok {
				a.Frequencies = append([]aero.Frequency(nil), freqs[icao]...)
			}
		}

		r.applyExceptions(&a)

		if o, ok := in.Overrides[a.ID]; ok {
			o.Apply(&a)
		}

		a.Priority = a.Type.Priority()
		out = append(out, a)
	}

	sortByID(out)
	return out
}

// PrimaryOnly publishes the primary airspaces when the secondary catalog is
// unavailable. Only user overrides are layered on top.
func PrimaryOnly(airspaces []aero.Airspace, overrides map[string]aero.AirspaceOverride) []aero.Airspace {
	out := make([]aero.Airspace, 0, len(airspaces))
	for _, src := range airspaces {
		a := cloneAirspace(src)
		a.Source = aero.SourcePrimaryOnly
		if o, ok := overrides[a.ID]; ok {
			o.Apply(&a)
		}
		a.Priority = a.Type.Priority()
		out = append(out, a)
	}
	sortByID(out)
	return out
}

// aerodromeFrequencies indexes the filtered aerodrome frequencies by ICAO code.
func aerodromeFrequencies(airports []aero.Airport) map[string][]aero.Frequency {
	out := make(map[string][]aero.Frequency, len(airports))
	for _, ap := range airports {
		for _, f := range ap.Frequencies {
			if aerodromeKinds[strings.ToUpper(f.Kind)] {
				out[ap.ICAO] = append(out[ap.ICAO], f)
			}
		}
	}
	return out
}

// cloneAirspace copies the slices a merge may rewrite.
func cloneAirspace(a aero.Airspace) aero.Airspace {
	if a.Frequencies != nil {
		a.Frequencies = append([]aero.Frequency(nil), a.Frequencies...)
	}
	return a
}

func sortByID(airspaces []aero.Airspace) {
	sort.SliceStable(airspaces, func(i, j int) bool {
		return airspaces[i].ID < airspaces[j].ID
	})
}
