// Package extractor walks an AIXM 4.5 snapshot document and produces typed
// aeronautical records. Every top-level element yields an Outcome; malformed
// elements are skipped with a reason code and never abort the run.
// This package is storage-agnostic and can be used with any backend.
package extractor

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"aeronav/internal/aero"
	"aeronav/internal/codes"
	"aeronav/internal/geo"
	"aeronav/internal/patterns"
)

// Document is everything extracted from one primary document.
type Document struct {
	Airports    []aero.Airport            `json:"airports"`
	Airspaces   []aero.Airspace           `json:"airspaces"`
	Navaids     []aero.Navaid             `json:"navaids"`
	Runways     []aero.Runway             `json:"runways"`
	Frequencies []aero.AerodromeFrequency `json:"frequencies"`
	Obstacles   []aero.Obstacle           `json:"obstacles"`
	Routes      []aero.Route              `json:"routes"`
	Waypoints   []aero.Waypoint           `json:"waypoints"`

	// Corrections carries the metadata of each airspace keyed by
	// aero.JoinKey(type, name), holding only the fields the document set.
	Corrections map[string]aero.AirspaceOverride `json:"corrections"`

	Summary Summary `json:"summary"`
}

// Options configures an Extractor.
type Options struct {
	Logger *slog.Logger
	// AirportNames overrides the built-in ICAO to display name table.
	AirportNames map[string]string
	// OnOutcome, if set, is called for every element outcome.
	OnOutcome func(Outcome)
}

// Extractor converts primary documents into a Document.
type Extractor struct {
	log       *slog.Logger
	names     map[string]string
	onOutcome func(Outcome)
}

// New creates an Extractor.
func New(opts Options) *Extractor {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{log: log, names: opts.AirportNames, onOutcome: opts.OnOutcome}
}

// run holds the per-document state of one extraction.
type run struct {
	*Extractor
	doc        *Document
	airspaceAt map[string]int     // airspace id -> index in doc.Airspaces
	boundaries map[string][]*node // airspace id -> top-level Abd elements
	boundaryOf map[string]string  // airspace id -> codeId, for outcomes
	navaidIDs  map[string]int     // generated id -> occurrences
}

// ExtractFile opens and extracts a document from disk.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return e.Extract(ctx, f)
}

// Extract streams the document. The returned error only reports an unreadable
// stream or a cancelled context; the Document then holds everything read up
// to that point.
func (e *Extractor) Extract(ctx context.Context, r io.Reader) (*Document, error) {
	rn := &run{
		Extractor:  e,
		doc:        &Document{Corrections: make(map[string]aero.AirspaceOverride)},
		airspaceAt: make(map[string]int),
		boundaries: make(map[string][]*node),
		boundaryOf: make(map[string]string),
		navaidIDs:  make(map[string]int),
	}

	dec := xml.NewDecoder(r)
	count := 0
	var streamErr error

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			streamErr = fmt.Errorf("read document: %w", err)
			break
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		handler, known := handlers[start.Name.Local]
		if !known {
			continue
		}

		var n node
		if err := dec.DecodeElement(&n, &start); err != nil {
			streamErr = fmt.Errorf("decode %s: %w", start.Name.Local, err)
			break
		}

		rn.record(rn.guard(start.Name.Local, func() Outcome { return handler(rn, &n) }))

		count++
		if count%1000 == 0 {
			if err := ctx.Err(); err != nil {
				streamErr = err
				break
			}
		}
	}

	rn.attachBoundaries()

	e.log.Info("document extracted",
		"summary", rn.doc.Summary.String(),
		"airports", len(rn.doc.Airports),
		"airspaces", len(rn.doc.Airspaces),
		"navaids", len(rn.doc.Navaids),
		"runways", len(rn.doc.Runways))

	return rn.doc, streamErr
}

// handlers dispatches top-level elements by local name.
var handlers = map[string]func(*run, *node) Outcome{
	"Ahp": (*run).airport,
	"Ase": (*run).airspace,
	"Abd": (*run).boundary,
	"Vor": (*run).vor,
	"Ndb": (*run).ndb,
	"Dme": (*run).dme,
	"Rwy": (*run).runway,
	"Fqy": (*run).frequency,
	"Obs": (*run).obstacle,
	"Rte": (*run).route,
	"Dpn": (*run).designatedPoint,
}

// guard converts a panic while handling one element into a failed outcome.
func (rn *run) guard(element string, fn func() Outcome) (o Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o = Outcome{Element: element, Status: StatusFailed, Reason: ReasonMalformed, Err: fmt.Errorf("%v", r)}
		}
	}()
	return fn()
}

func (rn *run) record(o Outcome) {
	if o.Status == statusDeferred {
		return
	}
	rn.doc.Summary.Add(o)
	switch o.Status {
	case StatusSkipped:
		rn.log.Debug("element skipped", "element", o.Element, "id", o.ID, "reason", string(o.Reason))
	case StatusFailed:
		rn.log.Warn("element failed", "element", o.Element, "id", o.ID, "error", o.Err)
	}
	if rn.onOutcome != nil {
		rn.onOutcome(o)
	}
}

// position reads geoLat/geoLong beneath n. Malformed tokens give a zero point.
func position(n *node) aero.GeoPoint {
	lat, okLat := patterns.ParseLatitude(n.get("geoLat"))
	lon, okLon := patterns.ParseLongitude(n.get("geoLong"))
	if !okLat || !okLon {
		return aero.GeoPoint{}
	}
	return aero.GeoPoint{Lat: lat, Lon: lon}
}

func parseNum(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// elevationFeet converts an elevation to feet according to its vertical unit.
func elevationFeet(n *node) int {
	v := parseNum(n.get("valElev"))
	if strings.EqualFold(n.get("uomDistVer"), "M") {
		return patterns.MetersToFeet(v)
	}
	return int(v)
}

var airportKinds = map[string]string{
	"AD": "aerodrome",
	"AH": "airport_heliport",
	"HP": "heliport",
}

func (rn *run) airport(n *node) Outcome {
	icao := n.path("AhpUid", "codeId")
	if icao == "" {
		return skipped("Ahp", "", ReasonMissingIdentifier)
	}
	codeType := strings.ToUpper(n.get("codeType"))
	if codeType == "LS" {
		return skipped("Ahp", icao, ReasonLandingSite)
	}

	kind, ok := airportKinds[codeType]
	if !ok {
		kind = airportKinds["AD"]
	}

	city := n.get("txtNameCitySer")
	rn.doc.Airports = append(rn.doc.Airports, aero.Airport{
		ICAO:          icao,
		IATA:          n.get("codeIata"),
		Name:          resolveAirportName(icao, n.get("txtName"), n.get("txtNameAlt"), city, rn.names),
		City:          city,
		Kind:          kind,
		Coordinates:   position(n),
		ElevationFeet: elevationFeet(n),
		TransitionAlt: int(parseNum(n.get("valTransitionAlt"))),
		Remarks:       n.get("txtRmk"),
	})
	return extracted("Ahp", icao)
}

// limit reads one vertical limit (Lower or Upper) of an airspace.
// present is false when the element carries no value at all.
func limit(n *node, side string) (aero.AltitudeLimit, bool) {
	value := n.get("valDistVer" + side)
	ref := n.get("codeDistVer" + side)
	if value == "" && ref == "" {
		return aero.AltitudeLimit{}, false
	}
	return patterns.ParseAltitude(value, n.get("uomDistVer"+side), ref), true
}

// ring builds a closed ring from the Avx vertices beneath n. Vertices whose
// coordinates do not parse are skipped.
func ring(n *node) orb.Ring {
	var r orb.Ring
	for _, avx := range n.findAll("Avx") {
		lat, okLat := patterns.ParseLatitude(avx.get("geoLat"))
		lon, okLon := patterns.ParseLongitude(avx.get("geoLong"))
		if !okLat || !okLon {
			continue
		}
		r = append(r, orb.Point{lon, lat})
	}
	return geo.CloseRing(r)
}

func (rn *run) airspace(n *node) Outcome {
	uid := n.child("AseUid")
	codeType := uid.get("codeType")
	codeID := uid.get("codeId")
	if codeID == "" || codeType == "" {
		return skipped("Ase", codeID, ReasonMissingIdentifier)
	}

	typ := codes.PrimaryType(codeType)
	name := n.get("txtName")
	if name == "" {
		name = codeType + " " + codeID
	}

	a := aero.Airspace{
		ID:       aero.AirspaceID(typ, codeID),
		Name:     name,
		Class:    codes.PrimaryClass(firstNonEmpty(n.get("codeClass"), n.get("txtClass"))),
		Remarks:  n.get("txtRmk"),
		Schedule: n.get("txtRmkWorkHr"),
		SourceID: codeID,
		Floor:    aero.Surface(),
		Ceiling:  aero.Unlimited(),
	}
	a.SetType(typ)

	floor, hasFloor := limit(n, "Lower")
	if hasFloor && floor.Known() {
		a.Floor = floor
	}
	ceiling, hasCeiling := limit(n, "Upper")
	if hasCeiling && ceiling.Known() {
		a.Ceiling = ceiling
	}

	abds := n.findAll("Abd")
	if len(abds) == 0 {
		// Vertices directly beneath the airspace.
		if r := ring(n); len(r) > 0 {
			a.Geometry = orb.MultiPolygon{{r}}
		}
	}
	for _, abd := range abds {
		if r := ring(abd); len(r) > 0 {
			a.Geometry = append(a.Geometry, orb.Polygon{r})
		}
	}

	if i, dup := rn.airspaceAt[a.ID]; dup {
		// Same airspace published twice: keep the first metadata, gather geometry.
		rn.doc.Airspaces[i].Geometry = append(rn.doc.Airspaces[i].Geometry, a.Geometry...)
	} else {
		rn.airspaceAt[a.ID] = len(rn.doc.Airspaces)
		rn.doc.Airspaces = append(rn.doc.Airspaces, a)
	}

	rn.addCorrection(typ, name, a, hasFloor && floor.Known(), hasCeiling && ceiling.Known())
	return extracted("Ase", codeID)
}

// addCorrection records the document's own metadata for the airspace so the
// merge can lay it over the secondary catalog.
func (rn *run) addCorrection(typ aero.AirspaceType, name string, a aero.Airspace, hasFloor, hasCeiling bool) {
	var o aero.AirspaceOverride
	if a.Class != aero.ClassNone {
		class := a.Class
		o.Class = &class
	}
	if hasFloor {
		floor := a.Floor
		o.Floor = &floor
	}
	if hasCeiling {
		ceiling := a.Ceiling
		o.Ceiling = &ceiling
	}
	if a.Remarks != "" {
		remarks := a.Remarks
		o.Remarks = &remarks
		o.Frequencies = patterns.ParseFrequencies(a.Remarks)
	}
	if o.IsEmpty() {
		return
	}

	key := aero.JoinKey(typ, name)
	if existing, ok := rn.doc.Corrections[key]; ok {
		// The first occurrence wins field by field.
		o = o.Combine(existing)
	}
	rn.doc.Corrections[key] = o
}

// boundary handles a top-level Abd that references its airspace through
// AbdUid/AseUid. Attachment happens once the whole document has been read.
func (rn *run) boundary(n *node) Outcome {
	ase := n.find("AseUid")
	codeType := ase.get("codeType")
	codeID := ase.get("codeId")
	if codeType == "" || codeID == "" {
		return skipped("Abd", "", ReasonMissingIdentifier)
	}

	id := aero.AirspaceID(codes.PrimaryType(codeType), codeID)
	rn.boundaries[id] = append(rn.boundaries[id], n)
	rn.boundaryOf[id] = codeID
	return Outcome{Element: "Abd", ID: codeID, Status: statusDeferred}
}

func (rn *run) attachBoundaries() {
	for id, abds := range rn.boundaries {
		i, ok := rn.airspaceAt[id]
		if !ok {
			for range abds {
				rn.record(skipped("Abd", rn.boundaryOf[id], ReasonOrphanBoundary))
			}
			continue
		}
		for _, abd := range abds {
			if r := ring(abd); len(r) > 0 {
				rn.doc.Airspaces[i].Geometry = append(rn.doc.Airspaces[i].Geometry, orb.Polygon{r})
			}
			rn.record(extracted("Abd", rn.boundaryOf[id]))
		}
	}
}

func (rn *run) navaidID(t aero.NavaidType, ident string) string {
	id := string(t) + "_" + ident
	rn.navaidIDs[id]++
	if c := rn.navaidIDs[id]; c > 1 {
		id = fmt.Sprintf("%s_%d", id, c)
	}
	return id
}

func (rn *run) navaid(element, uidName string, t aero.NavaidType, n *node) Outcome {
	uid := n.child(uidName)
	ident := uid.get("codeId")
	if ident == "" {
		return skipped(element, "", ReasonMissingIdentifier)
	}

	rn.doc.Navaids = append(rn.doc.Navaids, aero.Navaid{
		ID:            rn.navaidID(t, ident),
		Identifier:    ident,
		Name:          firstNonEmpty(n.get("txtName"), ident),
		Type:          t,
		Frequency:     parseNum(n.get("valFreq")),
		Channel:       n.get("codeChannel"),
		Coordinates:   position(n),
		ElevationFeet: elevationFeet(n),
		RangeNM:       parseNum(n.get("valRadioRange")),
	})
	return extracted(element, ident)
}

func (rn *run) vor(n *node) Outcome { return rn.navaid("Vor", "VorUid", aero.NavaidVOR, n) }
func (rn *run) ndb(n *node) Outcome { return rn.navaid("Ndb", "NdbUid", aero.NavaidNDB, n) }
func (rn *run) dme(n *node) Outcome { return rn.navaid("Dme", "DmeUid", aero.NavaidDME, n) }

func (rn *run) runway(n *node) Outcome {
	uid := n.child("RwyUid")
	airportID := uid.path("AhpUid", "codeId")
	designation := uid.get("txtDesig")
	if airportID == "" {
		return skipped("Rwy", designation, ReasonMissingIdentifier)
	}
	if designation == "" {
		return skipped("Rwy", airportID, ReasonMissingDesignation)
	}

	length := parseNum(n.get("valLen"))
	width := parseNum(n.get("valWid"))
	var lengthM, widthM int
	if strings.EqualFold(n.get("uomDimRwy"), "FT") {
		lengthM, widthM = patterns.FeetToMeters(length), patterns.FeetToMeters(width)
	} else {
		lengthM, widthM = int(length), int(width)
	}

	rn.doc.Runways = append(rn.doc.Runways, aero.Runway{
		AirportID:   airportID,
		Designation: designation,
		LengthM:     lengthM,
		WidthM:      widthM,
		Surface:     n.get("codeComposition"),
	})
	return extracted("Rwy", airportID+" "+designation)
}

// unitICAORe extracts the aerodrome from a unit name such as "LFST STRASBOURG".
var unitICAORe = regexp.MustCompile(`^([A-Z]{4})\s`)

func (rn *run) frequency(n *node) Outcome {
	ser := n.find("SerUid")
	airportID := ser.path("AhpUid", "codeId")
	if airportID == "" {
		if m := unitICAORe.FindStringSubmatch(ser.path("UniUid", "txtName")); m != nil {
			airportID = m[1]
		}
	}
	value := n.get("valFreqTrans")
	if airportID == "" || value == "" {
		return skipped("Fqy", airportID, ReasonMissingIdentifier)
	}
	if normalised, ok := patterns.ParseFrequency(value); ok {
		value = normalised
	}

	rn.doc.Frequencies = append(rn.doc.Frequencies, aero.AerodromeFrequency{
		AirportID: airportID,
		Frequency: aero.Frequency{
			Kind:     strings.ToUpper(firstNonEmpty(ser.get("codeType"), "INFO")),
			Value:    value,
			Unit:     firstNonEmpty(n.get("uomFreq"), "MHZ"),
			CallSign: n.get("txtCallSign"),
		},
	})
	return extracted("Fqy", airportID)
}

func (rn *run) obstacle(n *node) Outcome {
	pos := position(n.child("ObsUid"))
	if pos.IsZero() {
		pos = position(n)
	}
	if pos.IsZero() {
		return skipped("Obs", n.get("txtName"), ReasonMalformed)
	}

	m := strings.EqualFold(n.get("uomDistVer"), "M")
	toFeet := func(v float64) int {
		if m {
			return patterns.MetersToFeet(v)
		}
		return int(v)
	}

	id := fmt.Sprintf("OBS_%d", len(rn.doc.Obstacles)+1)
	rn.doc.Obstacles = append(rn.doc.Obstacles, aero.Obstacle{
		ID:            id,
		Name:          n.get("txtName"),
		Kind:          n.get("codeType"),
		Coordinates:   pos,
		HeightFeet:    toFeet(parseNum(n.get("valHgt"))),
		ElevationFeet: toFeet(parseNum(n.get("valElev"))),
		Lighted:       strings.EqualFold(n.get("codeLgt"), "Y"),
	})
	return extracted("Obs", id)
}

func (rn *run) route(n *node) Outcome {
	uid := n.child("RteUid")
	designator := uid.get("txtDesig")
	if designator == "" {
		return skipped("Rte", "", ReasonMissingDesignation)
	}
	location := uid.get("txtLocDesig")

	rn.doc.Routes = append(rn.doc.Routes, aero.Route{
		ID:         strings.TrimSuffix("RTE_"+designator+"_"+location, "_"),
		Designator: designator,
		Location:   location,
		Remarks:    n.get("txtRmk"),
	})
	return extracted("Rte", designator)
}

func (rn *run) designatedPoint(n *node) Outcome {
	uid := n.child("DpnUid")
	ident := uid.get("codeId")
	if ident == "" {
		return skipped("Dpn", "", ReasonMissingIdentifier)
	}
	pos := position(uid)
	if pos.IsZero() {
		return skipped("Dpn", ident, ReasonMalformed)
	}

	codeType := strings.ToUpper(n.get("codeType"))
	remarks := n.get("txtRmk")
	typ := codeType
	if strings.Contains(codeType, "VFR") || strings.Contains(strings.ToUpper(remarks), "VRP") {
		typ = aero.WaypointReporting
	}

	airportID := n.path("AhpUidAssoc", "codeId")
	rn.doc.Waypoints = append(rn.doc.Waypoints, aero.Waypoint{
		ID:          strings.TrimSuffix("WPT_"+ident+"_"+airportID, "_"),
		Identifier:  ident,
		Name:        firstNonEmpty(n.get("txtName"), ident),
		Type:        typ,
		Coordinates: pos,
		AirportID:   airportID,
	})
	return extracted("Dpn", ident)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
