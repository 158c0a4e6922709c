// Package aero defines the normalised aeronautical data model shared by the
// extractor, the secondary-source adapter, the merge service and the route analyzer.
package aero

import (
	"math"
	"regexp"
	"strings"

	"github.com/paulmach/orb"
)

// GeoPoint is a WGS84 position in decimal degrees.
type GeoPoint struct {
	Lat float64 `json:"lat" msgpack:"lat"`
	Lon float64 `json:"lon" msgpack:"lon"`
}

// Point returns the position as an orb point (lon, lat order).
func (p GeoPoint) Point() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// IsZero reports whether the position was never resolved.
func (p GeoPoint) IsZero() bool {
	return p.Lat == 0 && p.Lon == 0
}

// Valid reports whether the position is inside the WGS84 range.
func (p GeoPoint) Valid() bool {
	return !p.IsZero() && !math.IsNaN(p.Lat) && !math.IsNaN(p.Lon) &&
		p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Datum is the vertical reference of an altitude limit.
type Datum string

const (
	DatumGround   Datum = "GROUND"
	DatumMSL      Datum = "MEAN_SEA_LEVEL"
	DatumStandard Datum = "STANDARD"
)

// UnlimitedFeet is the sentinel used for unbounded ceilings.
const UnlimitedFeet = 99999

// AltitudeLimit is a normalised floor or ceiling.
// A GROUND datum always carries Feet == 0.
type AltitudeLimit struct {
	Feet  int    `json:"value_ft" msgpack:"ft"`
	Raw   string `json:"raw" msgpack:"raw"`
	Datum Datum  `json:"reference,omitempty" msgpack:"ref"`
}

// Surface returns the SFC limit.
func Surface() AltitudeLimit {
	return AltitudeLimit{Feet: 0, Raw: "SFC", Datum: DatumGround}
}

// Unlimited returns the unbounded ceiling.
func Unlimited() AltitudeLimit {
	return AltitudeLimit{Feet: UnlimitedFeet, Raw: "UNLIMITED", Datum: DatumStandard}
}

// Known reports whether the limit was parsed successfully.
func (l AltitudeLimit) Known() bool {
	return l.Raw != ""
}

// AirspaceType is the canonical airspace category.
type AirspaceType string

const (
	TypeCTR        AirspaceType = "CTR"
	TypeTMA        AirspaceType = "TMA"
	TypeCTA        AirspaceType = "CTA"
	TypeRestricted AirspaceType = "RESTRICTED"
	TypeProhibited AirspaceType = "PROHIBITED"
	TypeDanger     AirspaceType = "DANGER"
	TypeTMZ        AirspaceType = "TMZ"
	TypeRMZ        AirspaceType = "RMZ"
	TypeAWY        AirspaceType = "AWY"
	TypeFIR        AirspaceType = "FIR"
	TypeUIR        AirspaceType = "UIR"
	TypeATZ        AirspaceType = "ATZ"
	TypeOther      AirspaceType = "OTHER"
)

// AirspaceTypes lists every canonical type in declaration order.
var AirspaceTypes = []AirspaceType{
	TypeCTR, TypeTMA, TypeCTA, TypeRestricted, TypeProhibited, TypeDanger,
	TypeTMZ, TypeRMZ, TypeAWY, TypeFIR, TypeUIR, TypeATZ, TypeOther,
}

// IsRestricted reports whether the type is a restricted, prohibited or danger area.
func (t AirspaceType) IsRestricted() bool {
	return t == TypeRestricted || t == TypeProhibited || t == TypeDanger
}

// Priority returns the operational significance of the type (lower is more significant).
func (t AirspaceType) Priority() int {
	switch t {
	case TypeCTR:
		return 1
	case TypeTMA:
		return 2
	case TypeRestricted, TypeProhibited, TypeDanger:
		return 3
	case TypeCTA:
		return 4
	case TypeAWY:
		return 5
	case TypeFIR:
		return 10
	default:
		return 99
	}
}

// Class is the ICAO airspace class. ClassNone means not applicable.
type Class string

const (
	ClassA    Class = "A"
	ClassB    Class = "B"
	ClassC    Class = "C"
	ClassD    Class = "D"
	ClassE    Class = "E"
	ClassF    Class = "F"
	ClassG    Class = "G"
	ClassNone Class = ""
)

// Controlled reports whether the class is A to E.
func (c Class) Controlled() bool {
	switch c {
	case ClassA, ClassB, ClassC, ClassD, ClassE:
		return true
	}
	return false
}

// Clearance reports whether entry requires a clearance (A to D).
func (c Class) Clearance() bool {
	return c.Controlled() && c != ClassE
}

// Source tags where a published airspace record came from.
type Source string

const (
	SourceMerged      Source = "MERGED"
	SourcePrimaryOnly Source = "PRIMARY_ONLY"
	SourceMinimal     Source = "MINIMAL"
)

// Level orders sources by completeness (higher is better).
func (s Source) Level() int {
	switch s {
	case SourceMerged:
		return 3
	case SourcePrimaryOnly:
		return 2
	case SourceMinimal:
		return 1
	}
	return 0
}

// Frequency is a radio frequency attached to an airspace or aerodrome.
type Frequency struct {
	Kind     string `json:"kind" msgpack:"kind"` // TWR, APP, AFIS, INFO, ATIS...
	Value    string `json:"value" msgpack:"value"`
	Unit     string `json:"unit" msgpack:"unit"`
	CallSign string `json:"callsign,omitempty" msgpack:"callsign,omitempty"`
}

// Airspace is one canonical airspace record.
type Airspace struct {
	ID          string           `json:"id" msgpack:"id"`
	Name        string           `json:"name" msgpack:"name"`
	Type        AirspaceType     `json:"type" msgpack:"type"`
	Class       Class            `json:"class,omitempty" msgpack:"class"`
	Floor       AltitudeLimit    `json:"floor" msgpack:"floor"`
	Ceiling     AltitudeLimit    `json:"ceiling" msgpack:"ceiling"`
	Geometry    orb.MultiPolygon `json:"geometry" msgpack:"geometry"`
	Frequencies []Frequency      `json:"frequencies,omitempty" msgpack:"frequencies"`
	Remarks     string           `json:"remarks,omitempty" msgpack:"remarks"`
	Schedule    string           `json:"schedule,omitempty" msgpack:"schedule"`
	Priority    int              `json:"priority" msgpack:"priority"`
	Source      Source           `json:"source,omitempty" msgpack:"source"`
	SourceID    string           `json:"source_id,omitempty" msgpack:"source_id"` // Identifier in the originating catalog.
}

// SetType changes the type and recomputes the priority.
func (a *Airspace) SetType(t AirspaceType) {
	a.Type = t
	a.Priority = t.Priority()
}

// Unbounded reports whether the airspace spans every altitude.
func (a *Airspace) Unbounded() bool {
	return a.Floor.Feet == 0 && a.Ceiling.Feet >= UnlimitedFeet
}

// ContainsAltitude reports whether feet lies within floor and ceiling, inclusive.
func (a *Airspace) ContainsAltitude(feet int) bool {
	if a.Unbounded() {
		return true
	}
	return a.Floor.Feet <= feet && feet <= a.Ceiling.Feet
}

// HasGeometry reports whether at least one ring is usable for spatial tests.
func (a *Airspace) HasGeometry() bool {
	for _, poly := range a.Geometry {
		if len(poly) > 0 && UsableRing(poly[0]) {
			return true
		}
	}
	return false
}

// UsableRing reports whether a ring has at least three distinct vertices.
func UsableRing(r orb.Ring) bool {
	if len(r) < 3 {
		return false
	}
	distinct := 0
	seen := make(map[orb.Point]bool, len(r))
	for _, p := range r {
		if !seen[p] {
			seen[p] = true
			distinct++
		}
	}
	return distinct >= 3
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// AirspaceID builds the stable identifier TYPE_id, whitespace replaced by underscores.
func AirspaceID(t AirspaceType, id string) string {
	return whitespaceRe.ReplaceAllString(string(t)+"_"+strings.TrimSpace(id), "_")
}

// JoinKey is the reconciliation key shared by both sources for the same airspace.
func JoinKey(t AirspaceType, name string) string {
	return strings.ToUpper(whitespaceRe.ReplaceAllString(string(t)+"_"+strings.TrimSpace(name), "_"))
}
