package catalog

import (
	"github.com/paulmach/orb"

	"aeronav/internal/aero"
)

// minimalAirports is served when no source could be loaded.
var minimalAirports = []aero.Airport{
	{ICAO: "LFPG", IATA: "CDG", Name: "Paris Charles de Gaulle", City: "Paris", Coordinates: aero.GeoPoint{Lat: 49.012779, Lon: 2.55}, ElevationFeet: 392, Category: aero.CategoryLarge},
	{ICAO: "LFPO", IATA: "ORY", Name: "Paris Orly", City: "Paris", Coordinates: aero.GeoPoint{Lat: 48.725278, Lon: 2.359444}, ElevationFeet: 291, Category: aero.CategoryLarge},
	{ICAO: "LFST", IATA: "SXB", Name: "Strasbourg Entzheim", City: "Strasbourg", Coordinates: aero.GeoPoint{Lat: 48.538333, Lon: 7.628056}, ElevationFeet: 505, Category: aero.CategoryMedium},
	{ICAO: "LFMN", IATA: "NCE", Name: "Nice Côte d'Azur", City: "Nice", Coordinates: aero.GeoPoint{Lat: 43.658411, Lon: 7.215872}, ElevationFeet: 12, Category: aero.CategoryLarge},
	{ICAO: "LFML", IATA: "MRS", Name: "Marseille Provence", City: "Marseille", Coordinates: aero.GeoPoint{Lat: 43.436667, Lon: 5.215}, ElevationFeet: 74, Category: aero.CategoryLarge},
}

// Minimal returns the hard-coded catalog used when every source failed.
func Minimal(key string) *Catalog {
	ctr := aero.Airspace{
		ID:      aero.AirspaceID(aero.TypeCTR, "LFPG"),
		Name:    "PARIS CDG CTR",
		Class:   aero.ClassD,
		Floor:   aero.Surface(),
		Ceiling: aero.AltitudeLimit{Feet: 1500, Raw: "1500ft", Datum: aero.DatumMSL},
		Geometry: orb.MultiPolygon{{{
			{2.35, 48.95}, {2.65, 48.95}, {2.65, 49.15}, {2.35, 49.15}, {2.35, 48.95},
		}}},
		Source:   aero.SourceMinimal,
		SourceID: "LFPG",
	}
	ctr.SetType(aero.TypeCTR)

	return &Catalog{
		Key:       key,
		Source:    aero.SourceMinimal,
		Airspaces: []aero.Airspace{ctr},
		Airports:  append([]aero.Airport(nil), minimalAirports...),
		Navaids:   []aero.Navaid{},
		Waypoints: []aero.Waypoint{},
		Obstacles: []aero.Obstacle{},
		Routes:    []aero.Route{},
	}
}
