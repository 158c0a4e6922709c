package patterns

import (
	"math"
	"testing"
)

// almostEqual checks if two floats are equal within a tolerance.
func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   float64
		wantOK bool
	}{
		{"latitude north", "485045N", 48.845833, true},
		{"latitude with decimal seconds", "485045.00N", 48.845833, true},
		{"latitude south", "335210S", -33.869444, true},
		{"longitude east", "0022250E", 2.380556, true},
		{"longitude west with decimals", "0013015.5W", -1.504306, true},
		{"lowercase hemisphere", "485045n", 48.845833, true},
		{"surrounding space", "  0022250E ", 2.380556, true},
		{"pole", "900000N", 90, true},
		{"antimeridian", "1800000W", -180, true},

		{"latitude out of range", "910000N", 0, false},
		{"longitude out of range", "1810000E", 0, false},
		{"minutes overflow", "486045N", 0, false},
		{"seconds overflow", "485060N", 0, false},
		{"no hemisphere", "485045", 0, false},
		{"degrees and minutes only", "4850N", 0, false},
		{"garbage", "ABCDEFN", 0, false},
		{"empty", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseCoordinate(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseCoordinate(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if !almostEqual(got, tt.want, 0.000001) {
				t.Errorf("ParseCoordinate(%q) = %f, want %f", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseCoordinateRoundsToSixPlaces(t *testing.T) {
	got, ok := ParseCoordinate("0022250.123456E")
	if !ok {
		t.Fatal("expected ok")
	}
	if got != Round(got, 6) {
		t.Errorf("%v is not rounded to six places", got)
	}
}

func TestParseLatitudeLongitudeHemisphere(t *testing.T) {
	if _, ok := ParseLatitude("0022250E"); ok {
		t.Error("ParseLatitude accepted an east token")
	}
	if _, ok := ParseLongitude("485045N"); ok {
		t.Error("ParseLongitude accepted a north token")
	}
	if v, ok := ParseLatitude("485045N"); !ok || !almostEqual(v, 48.845833, 0.000001) {
		t.Errorf("ParseLatitude = %f, %v", v, ok)
	}
	if v, ok := ParseLongitude("0022250W"); !ok || !almostEqual(v, -2.380556, 0.000001) {
		t.Errorf("ParseLongitude = %f, %v", v, ok)
	}
}
