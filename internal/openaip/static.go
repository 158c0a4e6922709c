package openaip

import (
	"context"
	"fmt"
	"os"

	"aeronav/internal/aero"
	"aeronav/internal/geo"
)

// Static serves a previously downloaded catalog, e.g. a GeoJSON export.
type Static []aero.Airspace

// LoadFile reads a response body saved to disk.
func LoadFile(path string) (Static, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	out, _, err := Decode(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return Static(out), nil
}

// Airspaces returns the airspaces whose geometry overlaps the query box.
// Airspaces without usable geometry are always included.
func (s Static) Airspaces(_ context.Context, q Query) []aero.Airspace {
	if q.BBox == nil {
		return append([]aero.Airspace(nil), s...)
	}
	var out []aero.Airspace
	for _, a := range s {
		b, ok := geo.Bound(a.Geometry)
		if !ok || geo.BoundsOverlap(b, *q.BBox) {
			out = append(out, a)
		}
	}
	return out
}
