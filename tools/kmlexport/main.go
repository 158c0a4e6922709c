// Package main exports a published airspace catalog to KML. Airspaces become
// polygons, airports become placemarks. KML (Keyhole Markup Language) files can
// be viewed in Google Earth, Google Maps, and other mapping applications.
//
// The catalog is read either from a snapshot file written by the API server or
// from the catalog_airspaces table in PostgreSQL.
package main

import (
	"context"
	"encoding/xml"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"aeronav/internal/aero"
	"aeronav/internal/storage"
)

// KML structures for XML marshalling.
// These follow the KML 2.2 specification: https://developers.google.com/kml/documentation/kmlreference

// KML is the root element of a KML document.
type KML struct {
	XMLName   xml.Name `xml:"kml"`
	Namespace string   `xml:"xmlns,attr"`
	Document  Document `xml:"Document"`
}

// Document contains the document metadata and features.
type Document struct {
	Name        string      `xml:"name"`
	Description string      `xml:"description,omitempty"`
	Styles      []Style     `xml:"Style,omitempty"`
	Folders     []Folder    `xml:"Folder,omitempty"`
	Placemarks  []Placemark `xml:"Placemark,omitempty"`
}

// Folder groups placemarks.
type Folder struct {
	Name       string      `xml:"name"`
	Placemarks []Placemark `xml:"Placemark"`
}

// Style defines the visual appearance of features.
type Style struct {
	ID        string     `xml:"id,attr"`
	IconStyle *IconStyle `xml:"IconStyle,omitempty"`
	LineStyle *LineStyle `xml:"LineStyle,omitempty"`
	PolyStyle *PolyStyle `xml:"PolyStyle,omitempty"`
}

// IconStyle defines how icons are displayed.
type IconStyle struct {
	Scale float64 `xml:"scale,omitempty"`
	Icon  Icon    `xml:"Icon"`
}

// Icon specifies the icon image.
type Icon struct {
	Href string `xml:"href"`
}

// LineStyle defines polygon outlines. Colours are aabbggrr.
type LineStyle struct {
	Color string  `xml:"color"`
	Width float64 `xml:"width,omitempty"`
}

// PolyStyle defines polygon fills.
type PolyStyle struct {
	Color string `xml:"color"`
}

// Placemark represents a geographic feature with geometry and metadata.
type Placemark struct {
	Name          string         `xml:"name"`
	Description   string         `xml:"description,omitempty"`
	StyleURL      string         `xml:"styleUrl,omitempty"`
	Point         *Point         `xml:"Point,omitempty"`
	MultiGeometry *MultiGeometry `xml:"MultiGeometry,omitempty"`
	ExtendedData  *ExtendedData  `xml:"ExtendedData,omitempty"`
}

// Point represents a geographic location.
type Point struct {
	Coordinates string `xml:"coordinates"` // Format: lon,lat,altitude
}

// MultiGeometry holds the polygons of one airspace.
type MultiGeometry struct {
	Polygons []Polygon `xml:"Polygon"`
}

// Polygon is an outer boundary. Holes are not exported.
type Polygon struct {
	OuterBoundary Boundary `xml:"outerBoundaryIs"`
}

// Boundary wraps a linear ring.
type Boundary struct {
	LinearRing LinearRing `xml:"LinearRing"`
}

// LinearRing is a closed list of coordinates.
type LinearRing struct {
	Coordinates string `xml:"coordinates"`
}

// ExtendedData holds custom data associated with a placemark.
type ExtendedData struct {
	Data []Data `xml:"Data"`
}

// Data represents a single piece of extended data.
type Data struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

// Per-type polygon colours.
var typeColors = map[aero.AirspaceType]string{
	aero.TypeCTR:        "ff0000ff",
	aero.TypeTMA:        "ffff0000",
	aero.TypeCTA:        "ffff5500",
	aero.TypeRestricted: "ff00a5ff",
	aero.TypeProhibited: "ff0000aa",
	aero.TypeDanger:     "ff00ffff",
}

const defaultColor = "ff888888"

func main() {
	snapshot := flag.String("snapshot", "", "Catalog snapshot file (.msgpack.zst)")
	key := flag.String("key", "", "Catalog key to read from PostgreSQL (e.g. country:FR)")

	// PostgreSQL connection flags.
	pgHost := flag.String("pg-host", "localhost", "PostgreSQL host")
	pgPort := flag.Int("pg-port", 5432, "PostgreSQL port")
	pgUser := flag.String("pg-user", "aeronav", "PostgreSQL user")
	pgPassword := flag.String("pg-password", "", "PostgreSQL password")
	pgDB := flag.String("pg-db", "aeronav", "PostgreSQL database")

	output := flag.String("output", "", "Output KML file (default: stdout)")
	types := flag.String("types", "", "Comma-separated airspace types to include (default: all)")
	showStats := flag.Bool("stats", false, "Show refresh history only, don't export (PostgreSQL)")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	ctx := context.Background()

	var (
		name      string
		airspaces []aero.Airspace
		airports  []aero.Airport
	)

	switch {
	case *snapshot != "":
		c, err := storage.ReadSnapshot(*snapshot)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading snapshot: %v\n", err)
			os.Exit(1)
		}
		name = c.Key
		airspaces, airports = c.Airspaces, c.Airports

	case *key != "" || *showStats:
		pg, err := storage.OpenPostgres(ctx, storage.PostgresConfig{
			Host:     *pgHost,
			Port:     *pgPort,
			Database: *pgDB,
			User:     *pgUser,
			Password: *pgPassword,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening PostgreSQL: %v\n", err)
			os.Exit(1)
		}
		defer pg.Close()

		if *showStats {
			showRefreshStats(ctx, pg)
			return
		}

		airspaces, err = pg.PublishedAirspaces(ctx, *key)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error querying airspaces: %v\n", err)
			os.Exit(1)
		}
		name = *key

	default:
		fmt.Fprintln(os.Stderr, "Either -snapshot or -key is required")
		flag.Usage()
		os.Exit(2)
	}

	airspaces = filterTypes(airspaces, *types)
	if len(airspaces) == 0 && len(airports) == 0 {
		fmt.Fprintf(os.Stderr, "No features found matching criteria\n")
		os.Exit(0)
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "Exporting %d airspaces and %d airports to KML\n", len(airspaces), len(airports))
	}

	kml := generateKML(name, airspaces, airports, time.Now())

	xmlData, err := xml.MarshalIndent(kml, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating KML: %v\n", err)
		os.Exit(1)
	}
	xmlOutput := xml.Header + string(xmlData)

	if *output != "" {
		if err := os.WriteFile(*output, []byte(xmlOutput), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "Wrote %s\n", *output)
		}
	} else {
		fmt.Println(xmlOutput)
	}
}

// filterTypes keeps the airspaces whose type is listed in csv. An empty list
// keeps everything.
func filterTypes(airspaces []aero.Airspace, csv string) []aero.Airspace {
	if strings.TrimSpace(csv) == "" {
		return airspaces
	}
	want := make(map[aero.AirspaceType]bool)
	for _, t := range strings.Split(csv, ",") {
		want[aero.AirspaceType(strings.ToUpper(strings.TrimSpace(t)))] = true
	}
	var out []aero.Airspace
	for _, a := range airspaces {
		if want[a.Type] {
			out = append(out, a)
		}
	}
	return out
}

// generateKML creates a KML document with one folder of airspaces and one of
// airports.
func generateKML(name string, airspaces []aero.Airspace, airports []aero.Airport, now time.Time) KML {
	styles := []Style{
		{
			ID: "airportStyle",
			IconStyle: &IconStyle{
				Scale: 0.8,
				Icon: Icon{
					Href: "http://maps.google.com/mapfiles/kml/shapes/airports.png",
				},
			},
		},
	}
	seen := make(map[string]bool)

	spaces := make([]Placemark, 0, len(airspaces))
	for _, a := range airspaces {
		styleID := "airspace" + string(a.Type)
		if !seen[styleID] {
			seen[styleID] = true
			color, ok := typeColors[a.Type]
			if !ok {
				color = defaultColor
			}
			styles = append(styles, Style{
				ID:        styleID,
				LineStyle: &LineStyle{Color: color, Width: 2},
				PolyStyle: &PolyStyle{Color: "40" + color[2:]},
			})
		}

		mg := &MultiGeometry{}
		for _, poly := range a.Geometry {
			if len(poly) == 0 || !aero.UsableRing(poly[0]) {
				continue
			}
			mg.Polygons = append(mg.Polygons, Polygon{
				OuterBoundary: Boundary{LinearRing: LinearRing{Coordinates: ringCoordinates(poly[0])}},
			})
		}
		if len(mg.Polygons) == 0 {
			continue
		}

		spaces = append(spaces, Placemark{
			Name:          a.Name,
			Description:   fmt.Sprintf("%s class %s\n%s to %s", a.Type, classLabel(a.Class), a.Floor.Raw, a.Ceiling.Raw),
			StyleURL:      "#" + styleID,
			MultiGeometry: mg,
			ExtendedData: &ExtendedData{
				Data: []Data{
					{Name: "id", Value: a.ID},
					{Name: "type", Value: string(a.Type)},
					{Name: "floor_ft", Value: fmt.Sprintf("%d", a.Floor.Feet)},
					{Name: "ceiling_ft", Value: fmt.Sprintf("%d", a.Ceiling.Feet)},
					{Name: "source", Value: string(a.Source)},
				},
			},
		})
	}

	ports := make([]Placemark, len(airports))
	for i, ap := range airports {
		ports[i] = Placemark{
			Name:        ap.ICAO,
			Description: fmt.Sprintf("%s\nElevation: %d ft", ap.Name, ap.ElevationFeet),
			StyleURL:    "#airportStyle",
			Point: &Point{
				Coordinates: fmt.Sprintf("%.6f,%.6f,0", ap.Coordinates.Lon, ap.Coordinates.Lat),
			},
			ExtendedData: &ExtendedData{
				Data: []Data{
					{Name: "category", Value: ap.Category},
					{Name: "runways", Value: fmt.Sprintf("%d", len(ap.Runways))},
				},
			},
		}
	}

	var folders []Folder
	if len(spaces) > 0 {
		folders = append(folders, Folder{Name: "Airspaces", Placemarks: spaces})
	}
	if len(ports) > 0 {
		folders = append(folders, Folder{Name: "Airports", Placemarks: ports})
	}

	return KML{
		Namespace: "http://www.opengis.net/kml/2.2",
		Document: Document{
			Name:        "Airspace catalog " + name,
			Description: fmt.Sprintf("Generated %s.", now.Format("2006-01-02 15:04:05")),
			Styles:      styles,
			Folders:     folders,
		},
	}
}

// ringCoordinates formats a ring as KML coordinates, closing it if needed.
func ringCoordinates(r orb.Ring) string {
	var b strings.Builder
	for i, p := range r {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%.6f,%.6f,0", p[0], p[1])
	}
	if len(r) > 0 && r[0] != r[len(r)-1] {
		fmt.Fprintf(&b, " %.6f,%.6f,0", r[0][0], r[0][1])
	}
	return b.String()
}

func classLabel(c aero.Class) string {
	if c == aero.ClassNone {
		return "-"
	}
	return string(c)
}

// showRefreshStats displays the latest catalog refreshes.
func showRefreshStats(ctx context.Context, pg *storage.PostgresDB) {
	refreshes, err := pg.RecentRefreshes(ctx, 20)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying refreshes: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Catalog Refreshes")
	fmt.Println("─────────────────")
	if len(refreshes) == 0 {
		fmt.Println("No refreshes recorded")
		return
	}
	fmt.Printf("%-20s %8s %-14s %9s %8s %7s  %s\n", "Key", "Version", "Source", "Airspaces", "Airports", "Navaids", "Published")
	for _, r := range refreshes {
		fmt.Printf("%-20s %8d %-14s %9d %8d %7d  %s\n",
			r.CatalogKey, r.Version, r.Source, r.Airspaces, r.Airports, r.Navaids,
			r.PublishedAt.Format("2006-01-02 15:04:05"))
	}
}
