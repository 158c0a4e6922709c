package openaip

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"

	"aeronav/internal/aero"
	"aeronav/internal/codes"
	"aeronav/internal/geo"
	"aeronav/internal/patterns"
)

// maxRingVertices bounds ring size; longer rings are simplified.
const maxRingVertices = 2000

// Limit is a vertical limit as published by the catalog.
type Limit struct {
	Value          float64 `json:"value"`
	Unit           int     `json:"unit"`
	ReferenceDatum int     `json:"referenceDatum"`
}

// Item is one airspace of a paged response.
type Item struct {
	ID         string            `json:"_id"`
	Name       string            `json:"name"`
	Type       int               `json:"type"`
	ICAOClass  int               `json:"icaoClass"`
	Country    string            `json:"country"`
	UpperLimit *Limit            `json:"upperLimit"`
	LowerLimit *Limit            `json:"lowerLimit"`
	Geometry   *geojson.Geometry `json:"geometry"`
}

// page is either a paged object or a GeoJSON FeatureCollection.
type page struct {
	Type       string `json:"type"`
	Items      []Item `json:"items"`
	TotalPages int    `json:"totalPages"`
	TotalCount int    `json:"totalCount"`
}

// Decode parses one response body into canonical airspaces and returns the
// total page count announced by a paged response (1 for a FeatureCollection).
func Decode(body []byte) ([]aero.Airspace, int, error) {
	var p page
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, 0, fmt.Errorf("decode response: %w", err)
	}

	switch {
	case p.Items != nil:
		out := make([]aero.Airspace, 0, len(p.Items))
		for _, it := range p.Items {
			out = append(out, it.Airspace())
		}
		total := p.TotalPages
		if total < 1 {
			total = 1
		}
		return out, total, nil

	case p.Type == "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(body)
		if err != nil {
			return nil, 0, fmt.Errorf("decode feature collection: %w", err)
		}
		out := make([]aero.Airspace, 0, len(fc.Features))
		for _, f := range fc.Features {
			out = append(out, featureItem(f).Airspace())
		}
		return out, 1, nil
	}

	return nil, 0, fmt.Errorf("unexpected response format")
}

func getProp[T any](m map[string]interface{}, name string) (T, bool) {
	p, ok := m[name]
	if !ok {
		var t T
		return t, false
	}

	pv, ok := p.(T)
	if !ok {
		var t T
		return t, false
	}

	return pv, true
}

func limitProp(m map[string]interface{}, name string) *Limit {
	lm, ok := getProp[map[string]interface{}](m, name)
	if !ok {
		return nil
	}
	value, _ := getProp[float64](lm, "value")
	unit, _ := getProp[float64](lm, "unit")
	ref, _ := getProp[float64](lm, "referenceDatum")
	return &Limit{Value: value, Unit: int(unit), ReferenceDatum: int(ref)}
}

// featureItem converts a GeoJSON feature into the paged item shape.
func featureItem(f *geojson.Feature) Item {
	props := map[string]interface{}(f.Properties)

	id, ok := getProp[string](props, "_id")
	if !ok {
		id, _ = getProp[string](props, "id")
	}
	name, _ := getProp[string](props, "name")
	typ, _ := getProp[float64](props, "type")
	class, _ := getProp[float64](props, "icaoClass")
	country, _ := getProp[string](props, "country")

	it := Item{
		ID:         id,
		Name:       name,
		Type:       int(typ),
		ICAOClass:  int(class),
		Country:    country,
		UpperLimit: limitProp(props, "upperLimit"),
		LowerLimit: limitProp(props, "lowerLimit"),
	}
	if f.Geometry != nil {
		it.Geometry = geojson.NewGeometry(f.Geometry)
	}
	return it
}

// Altitude normalises a limit. A missing limit, or a zero height above
// ground, is the surface. A non-zero height above ground renders as a plain
// value and carries no datum: GROUND is reserved for the surface.
func (l *Limit) Altitude() aero.AltitudeLimit {
	if l == nil {
		return aero.Surface()
	}
	value := strconv.FormatFloat(l.Value, 'f', -1, 64)
	unit := codes.SecondaryUnit(l.Unit)

	ref := codes.SecondaryReference(l.ReferenceDatum)
	if ref != "AGL" {
		return patterns.ParseAltitude(value, unit, ref)
	}
	if l.Value == 0 {
		return aero.Surface()
	}
	lim := patterns.ParseAltitude(value, unit, "")
	if lim.Datum == aero.DatumMSL {
		lim.Datum = ""
	}
	return lim
}

// Airspace maps the item onto the canonical model. Merge-time fields (ID,
// Source, missing names) are left to the caller.
func (it Item) Airspace() aero.Airspace {
	a := aero.Airspace{
		Name:     it.Name,
		Class:    codes.SecondaryClass(it.ICAOClass),
		Floor:    it.LowerLimit.Altitude(),
		Ceiling:  it.UpperLimit.Altitude(),
		SourceID: it.ID,
	}
	a.SetType(codes.SecondaryType(it.Type))
	if !a.Ceiling.Known() {
		a.Ceiling = aero.Unlimited()
	}
	if !a.Floor.Known() {
		a.Floor = aero.Surface()
	}
	if it.Geometry != nil {
		a.Geometry = multiPolygon(it.Geometry.Geometry())
	}
	return a
}

func multiPolygon(g orb.Geometry) orb.MultiPolygon {
	var mp orb.MultiPolygon
	switch v := g.(type) {
	case orb.Polygon:
		mp = orb.MultiPolygon{v}
	case orb.MultiPolygon:
		mp = v
	default:
		return nil
	}

	out := make(orb.MultiPolygon, 0, len(mp))
	for _, poly := range mp {
		if len(poly) == 0 {
			continue
		}
		r := poly[0]
		if len(r) > maxRingVertices {
			if s, ok := simplify.DouglasPeucker(0.00001).Simplify(r.Clone()).(orb.Ring); ok {
				r = s
			}
		}
		out = append(out, orb.Polygon{geo.CloseRing(r)})
	}
	return out
}
