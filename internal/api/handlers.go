package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"aeronav/internal/aero"
	"aeronav/internal/catalog"
	"aeronav/internal/codes"
	"aeronav/internal/openaip"
	"aeronav/internal/route"
)

// Near-point searches without radius_km use this radius.
const defaultRadiusKm = 50

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// StatusResponse lists the cache entries.
type StatusResponse struct {
	Entries []catalog.EntryStatus `json:"entries"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Entries: s.catalogs.Status()})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if len(s.catalogs.Status()) == 0 {
		// Nothing cached yet: build the listing catalog.
		s.catalogs.Get(r.Context(), s.query())
	} else {
		s.catalogs.RefreshAll(r.Context())
	}
	writeJSON(w, http.StatusOK, StatusResponse{Entries: s.catalogs.Status()})
}

// query selects the catalog backing the listing endpoints. Boxes given to
// those endpoints filter it in memory.
func (s *Server) query() openaip.Query {
	return openaip.Query{Country: s.country}
}

// AirspacesResponse is the JSON response for airspace listings.
type AirspacesResponse struct {
	Source    aero.Source     `json:"source"`
	Version   uint64          `json:"version"`
	Count     int             `json:"count"`
	Airspaces []aero.Airspace `json:"airspaces"`
}

func (s *Server) handleAirspaces(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bbox, err := parseBBox(q.Get("bbox"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	types, err := parseAirspaceTypes(q.Get("types"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cat := s.catalogs.Get(r.Context(), s.query())
	airspaces := cat.FilterAirspaces(catalog.AirspaceFilter{Types: types, BBox: bbox})

	if q.Get("format") == "geojson" {
		writeGeoJSON(w, airspaces)
		return
	}
	writeJSON(w, http.StatusOK, AirspacesResponse{
		Source:    cat.Source,
		Version:   cat.Version,
		Count:     len(airspaces),
		Airspaces: airspaces,
	})
}

func writeGeoJSON(w http.ResponseWriter, airspaces []aero.Airspace) {
	fc := geojson.NewFeatureCollection()
	for _, a := range airspaces {
		if len(a.Geometry) == 0 {
			continue
		}
		var g orb.Geometry = a.Geometry
		if len(a.Geometry) == 1 {
			g = a.Geometry[0]
		}
		f := geojson.NewFeature(g)
		f.ID = a.ID
		f.Properties["name"] = a.Name
		f.Properties["type"] = a.Type
		f.Properties["class"] = a.Class
		f.Properties["floor"] = a.Floor.Raw
		f.Properties["ceiling"] = a.Ceiling.Raw
		f.Properties["source"] = a.Source
		fc.Append(f)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleAirspace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := s.catalogs.Get(r.Context(), s.query()).Airspace(id)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Airspace not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// CorrectionResponse reports a stored correction.
type CorrectionResponse struct {
	ID       string                `json:"id"`
	Override aero.AirspaceOverride `json:"override"`
	// Airspace is the corrected record, absent when the airspace is not in
	// any cached catalog yet.
	Airspace *aero.Airspace `json:"airspace,omitempty"`
}

func (s *Server) handleCorrection(w http.ResponseWriter, r *http.Request) {
	if s.overrides == nil {
		writeError(w, http.StatusServiceUnavailable, "No correction store configured")
		return
	}
	id := chi.URLParam(r, "id")

	var c catalog.Correction
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	o, err := c.Override()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if o.IsEmpty() {
		writeError(w, http.StatusBadRequest, "Correction changes nothing")
		return
	}

	stored, err := s.overrides.SaveOverride(r.Context(), id, o, author(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := CorrectionResponse{ID: id, Override: stored}
	a, err := s.catalogs.ApplyOverride(id, stored)
	switch {
	case errors.Is(err, catalog.ErrUnknownAirspace):
		// Not cached anywhere: the next build picks it up from the store.
		s.catalogs.Invalidate()
		writeJSON(w, http.StatusAccepted, resp)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp.Airspace = &a
	writeJSON(w, http.StatusOK, resp)
}

// AirportsResponse is the JSON response for airport listings.
type AirportsResponse struct {
	Count    int            `json:"count"`
	Airports []aero.Airport `json:"airports"`
}

func (s *Server) handleAirports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f catalog.AirportFilter
	var err error

	if f.BBox, err = parseBBox(q.Get("bbox")); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if f.Near, err = parsePoint(q.Get("near")); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if v := q.Get("radius_km"); v != "" {
		if f.RadiusKm, err = strconv.ParseFloat(v, 64); err != nil || f.RadiusKm <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid radius_km")
			return
		}
	} else if f.Near != nil {
		f.RadiusKm = defaultRadiusKm
	}
	if v := q.Get("min_runway_m"); v != "" {
		if f.MinRunwayM, err = strconv.Atoi(v); err != nil || f.MinRunwayM < 0 {
			writeError(w, http.StatusBadRequest, "Invalid min_runway_m")
			return
		}
	}

	airports := s.catalogs.Get(r.Context(), s.query()).FilterAirports(f)
	writeJSON(w, http.StatusOK, AirportsResponse{Count: len(airports), Airports: airports})
}

func (s *Server) handleAirport(w http.ResponseWriter, r *http.Request) {
	a, err := s.catalogs.Get(r.Context(), s.query()).Airport(chi.URLParam(r, "icao"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Airport not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// NavaidsResponse is the JSON response for navaid listings.
type NavaidsResponse struct {
	Count   int           `json:"count"`
	Navaids []aero.Navaid `json:"navaids"`
}

func (s *Server) handleNavaids(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bbox, err := parseBBox(q.Get("bbox"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	types, err := parseNavaidTypes(q.Get("types"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	navaids := s.catalogs.Get(r.Context(), s.query()).FilterNavaids(catalog.NavaidFilter{Types: types, BBox: bbox})
	writeJSON(w, http.StatusOK, NavaidsResponse{Count: len(navaids), Navaids: navaids})
}

// session returns the analysis session for id, creating it.
func (s *Server) session(id string) *route.Session {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	if sess, ok := s.sessions.Get(id); ok {
		return sess
	}
	sess := s.analyzer.NewSession()
	s.sessions.Add(id, sess)
	return sess
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req route.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	start := time.Now()
	var (
		rep *route.Report
		err error
	)
	if req.SessionID != "" {
		rep, err = s.session(req.SessionID).Analyze(r.Context(), req)
	} else {
		rep, err = s.analyzer.Analyze(r.Context(), req)
	}

	switch {
	case err == nil:
	case errors.Is(err, route.ErrTooFewWaypoints):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, route.ErrSuperseded):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "Analysis cancelled")
		return
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.metrics != nil {
		s.metrics.AnalysisObserve(time.Since(start), rep.ConflictCount(), rep.Cached)
	}
	s.record(r.Context(), req.SessionID, rep)

	writeJSON(w, http.StatusOK, rep)
}

// record stores the report and announces its conflicts. Failures are logged;
// the caller still gets its report.
func (s *Server) record(ctx context.Context, sessionID string, rep *route.Report) {
	ctx = context.WithoutCancel(ctx)
	if s.recorder != nil {
		if err := s.recorder.RecordReport(ctx, rep); err != nil {
			s.log.Warn("failed to record report", "report", rep.ID, "error", err)
		}
	}
	if s.conflicts != nil {
		if err := s.conflicts.PublishConflicts(ctx, sessionID, rep); err != nil {
			s.log.Warn("failed to publish conflicts", "report", rep.ID, "error", err)
		}
	}
}

// parseBBox parses the bbox parameter. An empty string is no box.
func parseBBox(s string) (*orb.Bound, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	b, err := openaip.ParseBBox(s)
	if err != nil {
		return nil, fmt.Errorf("invalid bbox: %w", err)
	}
	return &b, nil
}

// parsePoint parses "lat,lon". An empty string is no point.
func parsePoint(s string) (*aero.GeoPoint, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	v, err := parseFloats(s, 2)
	if err != nil {
		return nil, fmt.Errorf("invalid near: %w", err)
	}
	p := aero.GeoPoint{Lat: v[0], Lon: v[1]}
	if !p.Valid() {
		return nil, errors.New("invalid near: out of range")
	}
	return &p, nil
}

func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d comma-separated numbers", n)
	}
	out := make([]float64, n)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", p)
		}
		out[i] = f
	}
	return out, nil
}

func parseAirspaceTypes(s string) ([]aero.AirspaceType, error) {
	var out []aero.AirspaceType
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		t, ok := codes.ParseType(part)
		if !ok {
			return nil, fmt.Errorf("unknown airspace type %q", part)
		}
		out = append(out, t)
	}
	return out, nil
}

func parseNavaidTypes(s string) ([]aero.NavaidType, error) {
	var out []aero.NavaidType
	for _, part := range strings.Split(s, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		switch t := aero.NavaidType(part); t {
		case aero.NavaidVOR, aero.NavaidNDB, aero.NavaidDME, aero.NavaidVORDME:
			out = append(out, t)
		default:
			return nil, fmt.Errorf("unknown navaid type %q", part)
		}
	}
	return out, nil
}
