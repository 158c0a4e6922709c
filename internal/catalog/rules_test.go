package catalog

import (
	"testing"

	"aeronav/internal/aero"
)

func TestAerodromeFor(t *testing.T) {
	r := DefaultRules()
	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"PARIS CTR 1", "LFPG", true},
		{"TMA STRASBOURG 2", "LFST", true},
		{"CTR LFMT MONTPELLIER", "LFMT", true},
		{"TMA LYON", "LFLL", true},
		{"CTR bordeaux", "LFBD", true},
		{"CTR LFPGX", "", false},
		{"TMA DIJON", "", false},
	}
	for _, tt := range tests {
		got, ok := r.AerodromeFor(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("AerodromeFor(%q) = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseRules(t *testing.T) {
	doc := []byte(`
cities:
  - {name: dijon, icao: lfsd}
exceptions:
  - type: CTR
    name_contains: dijon
    floor: SFC
    ceiling: 2500 FT AMSL
`)
	r, err := ParseRules(doc)
	if err != nil {
		t.Fatal(err)
	}
	if icao, ok := r.AerodromeFor("CTR DIJON"); !ok || icao != "LFSD" {
		t.Errorf("city lookup = %q, %v", icao, ok)
	}

	a := aero.Airspace{Name: "Dijon CTR", Type: aero.TypeCTR, Ceiling: aero.Unlimited()}
	r.applyExceptions(&a)
	if a.Ceiling.Feet != 2500 || a.Floor != aero.Surface() {
		t.Errorf("exception not applied: %+v / %+v", a.Floor, a.Ceiling)
	}
}

func TestParseRulesErrors(t *testing.T) {
	tests := map[string]string{
		"bad yaml":     "cities: [",
		"short icao":   "cities: [{name: X, icao: LF}]",
		"unknown type": "exceptions: [{type: BLOB, name_contains: X, class: D}]",
		"no name":      "exceptions: [{type: TMA, class: D}]",
		"no fields":    "exceptions: [{type: TMA, name_contains: X}]",
		"bad class":    "exceptions: [{type: TMA, name_contains: X, class: Q}]",
		"bad floor":    "exceptions: [{type: TMA, name_contains: X, floor: lots}]",
	}
	for name, doc := range tests {
		if _, err := ParseRules([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestCorrectionOverride(t *testing.T) {
	o, err := Correction{
		Type:        "tma",
		Class:       "c",
		Floor:       "FL 65",
		Frequencies: "APP 119.250 TWR 118.7",
	}.Override()
	if err != nil {
		t.Fatal(err)
	}
	if *o.Type != aero.TypeTMA || *o.Class != aero.ClassC {
		t.Errorf("type/class = %s/%s", *o.Type, *o.Class)
	}
	if o.Floor.Raw != "FL065" || o.Floor.Feet != 6500 {
		t.Errorf("floor = %+v", *o.Floor)
	}
	if o.Ceiling != nil || o.Remarks != nil {
		t.Error("absent fields must stay nil")
	}
	if len(o.Frequencies) != 2 || o.Frequencies[1].Kind != "TWR" || o.Frequencies[1].Value != "118.700" {
		t.Errorf("frequencies = %+v", o.Frequencies)
	}

	if _, err := (Correction{Frequencies: "none here"}).Override(); err == nil {
		t.Error("expected error for unparseable frequencies")
	}
	if _, err := (Correction{Type: "nope"}).Override(); err == nil {
		t.Error("expected error for unknown type")
	}
}
