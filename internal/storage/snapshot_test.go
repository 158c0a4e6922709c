package storage

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"aeronav/internal/aero"
	"aeronav/internal/catalog"
	"aeronav/internal/extractor"
)

func TestSnapshotRoundTrip(t *testing.T) {
	dir, err := NewSnapshotDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	built := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	in := &catalog.Catalog{
		Key:     "bbox:1.0000,47.0000,3.0000,49.0000",
		Version: 4,
		Source:  aero.SourceMerged,
		BuiltAt: built,
		Airspaces: []aero.Airspace{{
			ID:          "CTR_X",
			Name:        "X CTR",
			Type:        aero.TypeCTR,
			Class:       aero.ClassD,
			Floor:       aero.Surface(),
			Ceiling:     aero.AltitudeLimit{Feet: 1500, Raw: "1500ft", Datum: aero.DatumMSL},
			Geometry:    orb.MultiPolygon{{{{1, 47}, {2, 47}, {2, 48}, {1, 47}}}},
			Frequencies: []aero.Frequency{{Kind: "TWR", Value: "118.650", Unit: "MHz"}},
			Priority:    1,
			Source:      aero.SourceMerged,
		}},
		Airports: []aero.Airport{{ICAO: "LFPG", Coordinates: aero.GeoPoint{Lat: 49, Lon: 2.5}}},
		Summary: &extractor.Summary{
			Total:   3,
			Reasons: map[extractor.Reason]int{extractor.ReasonLandingSite: 1},
		},
	}

	if err := dir.Save(in.Key, in); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir.Path(in.Key)); err != nil {
		t.Fatalf("snapshot file: %v", err)
	}

	out, err := dir.Load(in.Key)
	if err != nil {
		t.Fatal(err)
	}
	if out.Key != in.Key || out.Version != 4 || out.Source != aero.SourceMerged || !out.BuiltAt.Equal(built) {
		t.Errorf("header = %+v", out)
	}
	if len(out.Airspaces) != 1 || out.Airspaces[0].Ceiling != in.Airspaces[0].Ceiling {
		t.Errorf("airspaces = %+v", out.Airspaces)
	}
	if len(out.Airspaces[0].Geometry[0][0]) != 4 || out.Airspaces[0].Frequencies[0].Value != "118.650" {
		t.Errorf("airspace detail lost: %+v", out.Airspaces[0])
	}
	if out.Summary == nil || out.Summary.Reasons[extractor.ReasonLandingSite] != 1 {
		t.Errorf("summary = %+v", out.Summary)
	}
}

func TestSnapshotMissing(t *testing.T) {
	dir, err := NewSnapshotDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dir.Load("country:FR"); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("err = %v, want ErrNoSnapshot", err)
	}
}

func TestSnapshotPath(t *testing.T) {
	dir := &SnapshotDir{dir: "/var/lib/aeronav"}
	if got := dir.Path("country:FR"); got != "/var/lib/aeronav/country_FR.msgpack.zst" {
		t.Errorf("path = %q", got)
	}
}

func TestReadSnapshotCorrupt(t *testing.T) {
	path := t.TempDir() + "/bad.msgpack.zst"
	if err := os.WriteFile(path, []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := ReadSnapshot(path)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrNoSnapshot) {
		t.Errorf("corrupt file reported as missing: %v", err)
	}
}
