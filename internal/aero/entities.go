package aero

// Runway is attached to its airport by AirportID == Airport.ICAO.
type Runway struct {
	AirportID   string `json:"airport_id" msgpack:"airport_id"`
	Designation string `json:"designation" msgpack:"designation"`
	LengthM     int    `json:"length_m" msgpack:"length_m"`
	WidthM      int    `json:"width_m,omitempty" msgpack:"width_m"`
	Surface     string `json:"surface,omitempty" msgpack:"surface"`
}

// AerodromeFrequency is a frequency published for an aerodrome.
type AerodromeFrequency struct {
	AirportID string `json:"airport_id" msgpack:"airport_id"`
	Frequency
}

// Airport categories derived from the longest runway.
const (
	CategoryLarge  = "large"
	CategoryMedium = "medium"
	CategorySmall  = "small"
)

// Airport is an aerodrome record.
type Airport struct {
	ICAO            string      `json:"icao" msgpack:"icao"`
	IATA            string      `json:"iata,omitempty" msgpack:"iata"`
	Name            string      `json:"name" msgpack:"name"`
	City            string      `json:"city,omitempty" msgpack:"city"`
	Kind            string      `json:"kind,omitempty" msgpack:"kind"` // aerodrome, airport_heliport, heliport
	Coordinates     GeoPoint    `json:"coordinates" msgpack:"coordinates"`
	ElevationFeet   int         `json:"elevation_ft" msgpack:"elevation_ft"`
	TransitionAlt   int         `json:"transition_alt_ft,omitempty" msgpack:"transition_alt_ft"`
	Category        string      `json:"category" msgpack:"category"`
	Runways         []Runway    `json:"runways,omitempty" msgpack:"runways"`
	Frequencies     []Frequency `json:"frequencies,omitempty" msgpack:"frequencies"`
	ReportingPoints []Waypoint  `json:"reporting_points,omitempty" msgpack:"reporting_points"`
	Remarks         string      `json:"remarks,omitempty" msgpack:"remarks"`
}

// LongestRunwayM returns the length of the longest attached runway.
func (a *Airport) LongestRunwayM() int {
	longest := 0
	for _, r := range a.Runways {
		if r.LengthM > longest {
			longest = r.LengthM
		}
	}
	return longest
}

// NavaidType is the kind of radio navigation aid.
type NavaidType string

const (
	NavaidVOR    NavaidType = "VOR"
	NavaidNDB    NavaidType = "NDB"
	NavaidDME    NavaidType = "DME"
	NavaidVORDME NavaidType = "VOR-DME"
)

// Navaid is a radio navigation aid.
type Navaid struct {
	ID            string     `json:"id" msgpack:"id"`
	Identifier    string     `json:"identifier" msgpack:"identifier"`
	Name          string     `json:"name" msgpack:"name"`
	Type          NavaidType `json:"type" msgpack:"type"`
	Frequency     float64    `json:"frequency,omitempty" msgpack:"frequency"`
	Channel       string     `json:"channel,omitempty" msgpack:"channel"`
	Coordinates   GeoPoint   `json:"coordinates" msgpack:"coordinates"`
	ElevationFeet int        `json:"elevation_ft" msgpack:"elevation_ft"`
	RangeNM       float64    `json:"range_nm,omitempty" msgpack:"range_nm"`
}

// Obstacle is a vertical obstruction.
type Obstacle struct {
	ID            string   `json:"id" msgpack:"id"`
	Name          string   `json:"name,omitempty" msgpack:"name"`
	Kind          string   `json:"kind,omitempty" msgpack:"kind"`
	Coordinates   GeoPoint `json:"coordinates" msgpack:"coordinates"`
	HeightFeet    int      `json:"height_ft" msgpack:"height_ft"`
	ElevationFeet int      `json:"elevation_ft" msgpack:"elevation_ft"`
	Lighted       bool     `json:"lighted,omitempty" msgpack:"lighted"`
}

// Route is an ATS route designator.
type Route struct {
	ID         string `json:"id" msgpack:"id"`
	Designator string `json:"designator" msgpack:"designator"`
	Location   string `json:"location,omitempty" msgpack:"location"`
	Remarks    string `json:"remarks,omitempty" msgpack:"remarks"`
}

// WaypointReporting marks visual reporting points.
const WaypointReporting = "VRP"

// Waypoint is a designated point.
type Waypoint struct {
	ID          string   `json:"id" msgpack:"id"`
	Identifier  string   `json:"identifier" msgpack:"identifier"`
	Name        string   `json:"name,omitempty" msgpack:"name"`
	Type        string   `json:"type" msgpack:"type"`
	Coordinates GeoPoint `json:"coordinates" msgpack:"coordinates"`
	AirportID   string   `json:"airport_id,omitempty" msgpack:"airport_id"`
}
