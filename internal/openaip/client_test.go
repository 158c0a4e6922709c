package openaip

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"aeronav/internal/aero"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const pagedItem = `{
  "_id": "%s",
  "name": "%s",
  "type": 4,
  "icaoClass": 4,
  "upperLimit": {"value": 1500, "unit": 1, "referenceDatum": 2},
  "lowerLimit": {"value": 0, "unit": 1, "referenceDatum": 0},
  "geometry": {"type": "Polygon", "coordinates": [[[2.35,48.95],[2.65,48.95],[2.65,49.15],[2.35,49.15],[2.35,48.95]]]}
}`

func TestClientPagination(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		if q.Get("format") != "geojson" || q.Get("limit") != "1000" || q.Get("apiKey") != "secret" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if q.Get("bbox") != "-5.5,41,10,51.5" {
			t.Errorf("bbox = %q, want France default", q.Get("bbox"))
		}

		page, _ := strconv.Atoi(q.Get("page"))
		switch page {
		case 1:
			fmt.Fprintf(w, `{"items":[`+pagedItem+`],"totalPages":3,"totalCount":3}`, "a1", "PARIS CTR")
		case 2:
			http.Error(w, "boom", http.StatusInternalServerError)
		case 3:
			fmt.Fprintf(w, `{"items":[`+pagedItem+`],"totalPages":3,"totalCount":3}`, "a3", "ORLY CTR")
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "secret", Logger: quietLogger()})
	got := c.Airspaces(context.Background(), Query{Country: "FR"})

	if calls.Load() != 3 {
		t.Errorf("made %d requests, want 3", calls.Load())
	}
	if len(got) != 2 {
		t.Fatalf("got %d airspaces, want 2 (failed page skipped)", len(got))
	}

	a := got[0]
	if a.SourceID != "a1" || a.Type != aero.TypeCTR || a.Class != aero.ClassD {
		t.Errorf("airspace = %+v", a)
	}
	if a.Ceiling.Raw != "1500m" || a.Ceiling.Feet != 4921 {
		t.Errorf("ceiling = %+v", a.Ceiling)
	}
	if a.Floor.Raw != "SFC" || a.Floor.Datum != aero.DatumGround {
		t.Errorf("floor = %+v", a.Floor)
	}
	if !a.HasGeometry() {
		t.Error("geometry missing")
	}
}

func TestClientFailureYieldsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Logger: quietLogger()})
	if got := c.Airspaces(context.Background(), Query{}); len(got) != 0 {
		t.Errorf("got %d airspaces, want none", len(got))
	}
}

func TestClientTimeoutYieldsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond, Logger: quietLogger()})
	if got := c.Airspaces(context.Background(), Query{}); len(got) != 0 {
		t.Errorf("got %d airspaces, want none", len(got))
	}
}

func TestClientCapsPageCount(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		fmt.Fprintf(w, `{"items":[`+pagedItem+`],"totalPages":1000000,"totalCount":1000000}`, fmt.Sprintf("a%d", n), "CTR")
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, MaxPages: 5, Logger: quietLogger()})
	got := c.Airspaces(context.Background(), Query{})
	if calls.Load() != 5 {
		t.Errorf("made %d requests, want 5", calls.Load())
	}
	if len(got) != 5 {
		t.Errorf("got %d airspaces, want 5", len(got))
	}
}

func TestClientStopsPagingAfterTimeout(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("page") == "1" {
			fmt.Fprintf(w, `{"items":[`+pagedItem+`],"totalPages":40,"totalCount":40}`, "a1", "PARIS CTR")
			return
		}
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 100 * time.Millisecond, Logger: quietLogger()})
	got := c.Airspaces(context.Background(), Query{})
	if n := calls.Load(); n != 2 {
		t.Errorf("made %d requests after the timeout, want 2", n)
	}
	if len(got) != 1 {
		t.Errorf("got %d airspaces, want the first page", len(got))
	}
}

func TestClientBBoxQuery(t *testing.T) {
	var gotBBox string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBBox = r.URL.Query().Get("bbox")
		fmt.Fprint(w, `{"type":"FeatureCollection","features":[]}`)
	}))
	defer srv.Close()

	b := orb.Bound{Min: orb.Point{1.5, 48}, Max: orb.Point{3.25, 49.5}}
	c := NewClient(Config{BaseURL: srv.URL, Logger: quietLogger()})
	c.Airspaces(context.Background(), Query{BBox: &b})
	if gotBBox != "1.5,48,3.25,49.5" {
		t.Errorf("bbox = %q", gotBBox)
	}
}

func TestDecodeFeatureCollection(t *testing.T) {
	body := []byte(`{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{"_id":"x1","name":"R 45","type":1,"icaoClass":8,
	    "upperLimit":{"value":65,"unit":6,"referenceDatum":1},
	    "lowerLimit":{"value":1000,"unit":0,"referenceDatum":0}},
	   "geometry":{"type":"Polygon","coordinates":[[[7,48],[7.1,48],[7.1,48.1],[7,48]]]}},
	  {"type":"Feature","properties":{"id":"x2","type":99,"icaoClass":42,
	    "upperLimit":{"value":120000,"unit":0,"referenceDatum":2}},
	   "geometry":{"type":"MultiPolygon","coordinates":[[[[1,1],[2,1],[2,2]]]]}}
	]}`)

	got, pages, err := Decode(body)
	if err != nil {
		t.Fatal(err)
	}
	if pages != 1 || len(got) != 2 {
		t.Fatalf("pages=%d airspaces=%d", pages, len(got))
	}

	r := got[0]
	if r.Type != aero.TypeRestricted || r.Class != aero.ClassG || r.Priority != 3 {
		t.Errorf("restricted = %s/%s/%d", r.Type, r.Class, r.Priority)
	}
	if r.Ceiling.Raw != "FL065" || r.Ceiling.Feet != 6500 {
		t.Errorf("ceiling = %+v", r.Ceiling)
	}
	if r.Floor.Raw != "1000ft" || r.Floor.Feet != 1000 || r.Floor.Datum != "" {
		t.Errorf("floor = %+v", r.Floor)
	}

	o := got[1]
	if o.SourceID != "x2" || o.Type != aero.TypeOther || o.Class != aero.ClassG {
		t.Errorf("other = %+v", o)
	}
	if o.Ceiling.Raw != "UNLIMITED" || o.Floor.Raw != "SFC" {
		t.Errorf("limits = %+v / %+v", o.Floor, o.Ceiling)
	}
	ring := o.Geometry[0][0]
	if ring[0] != ring[len(ring)-1] {
		t.Errorf("ring not closed: %v", ring)
	}
}

func TestDecodeRejectsUnknownFormat(t *testing.T) {
	if _, _, err := Decode([]byte(`{"hello":"world"}`)); err == nil {
		t.Error("expected error")
	}
	if _, _, err := Decode([]byte(`not json`)); err == nil {
		t.Error("expected error")
	}
}

func TestStaticFiltersByBBox(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	body := fmt.Sprintf(`{"items":[`+pagedItem+`],"totalPages":1}`, "a1", "PARIS CTR")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Airspaces(context.Background(), Query{}); len(got) != 1 {
		t.Errorf("unbounded query = %d airspaces", len(got))
	}

	far := orb.Bound{Min: orb.Point{7, 43}, Max: orb.Point{8, 44}}
	if got := s.Airspaces(context.Background(), Query{BBox: &far}); len(got) != 0 {
		t.Errorf("far query = %d airspaces", len(got))
	}
	near := orb.Bound{Min: orb.Point{2.5, 49}, Max: orb.Point{3, 50}}
	if got := s.Airspaces(context.Background(), Query{BBox: &near}); len(got) != 1 {
		t.Errorf("near query = %d airspaces", len(got))
	}
}

func TestParseBBox(t *testing.T) {
	tests := []struct {
		in      string
		want    orb.Bound
		wantErr bool
	}{
		{in: "-5.5,41,10,51.5", want: FranceBBox},
		{in: " 1 , 47 , 3 , 49 ", want: orb.Bound{Min: orb.Point{1, 47}, Max: orb.Point{3, 49}}},
		{in: "1,47,3", wantErr: true},
		{in: "1,47,x,49", wantErr: true},
		{in: "3,47,1,49", wantErr: true},
		{in: "1,-95,3,49", wantErr: true},
		{in: "NaN,47,3,49", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBBox(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("bound = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLimitAltitude(t *testing.T) {
	tests := []struct {
		name  string
		limit *Limit
		want  aero.AltitudeLimit
	}{
		{"missing", nil, aero.Surface()},
		{"ground zero", &Limit{Value: 0, Unit: 0, ReferenceDatum: 0}, aero.Surface()},
		{"height feet", &Limit{Value: 1000, Unit: 0, ReferenceDatum: 0}, aero.AltitudeLimit{Feet: 1000, Raw: "1000ft"}},
		{"height meters", &Limit{Value: 300, Unit: 1, ReferenceDatum: 0}, aero.AltitudeLimit{Feet: 984, Raw: "300m"}},
		{"flight level", &Limit{Value: 65, Unit: 6, ReferenceDatum: 1}, aero.AltitudeLimit{Feet: 6500, Raw: "FL065", Datum: aero.DatumStandard}},
		{"msl feet", &Limit{Value: 2500, Unit: 0, ReferenceDatum: 2}, aero.AltitudeLimit{Feet: 2500, Raw: "2500ft", Datum: aero.DatumMSL}},
		{"above sentinel", &Limit{Value: 120000, Unit: 0, ReferenceDatum: 2}, aero.Unlimited()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.limit.Altitude(); got != tt.want {
				t.Errorf("Altitude() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
