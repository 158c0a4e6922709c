// This file contains altitude and unit conversion utilities.

package patterns

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"aeronav/internal/aero"
)

// Conversion factors.
const (
	FeetPerMeter  = 3.28084
	MetersPerFoot = 0.3048
)

// MetersToFeet converts and rounds to the nearest foot.
func MetersToFeet(m float64) int {
	return int(math.Round(m * FeetPerMeter))
}

// FeetToMeters converts and rounds to the nearest meter.
func FeetToMeters(ft float64) int {
	return int(math.Round(ft * MetersPerFoot))
}

func isSurfaceToken(s string) bool {
	switch s {
	case "SFC", "GND", "SURFACE":
		return true
	}
	return false
}

func isUnlimitedToken(s string) bool {
	switch s {
	case "UNL", "UNLIM", "UNLIMITED":
		return true
	}
	return false
}

func isHeightReference(s string) bool {
	switch s {
	case "HEI", "AGL", "ASFC":
		return true
	}
	return false
}

// ParseAltitude converts a raw value, a unit code (FT, M, FL) and a reference
// token into an AltitudeLimit.
//
//   - SFC/GND (as value or reference) short-circuits to the surface.
//   - UNL/UNLIM short-circuits to the unlimited sentinel.
//   - M is converted with 3.28084 and rounded, FL is multiplied by 100.
//   - An empty value is the surface; a non-numeric value is unknown (zero limit).
//
// Reference tokens: HEI/AGL/ASFC (height above ground), ALT/MSL/AMSL, STD.
func ParseAltitude(value, unit, reference string) aero.AltitudeLimit {
	v := strings.ToUpper(strings.TrimSpace(value))
	u := strings.ToUpper(strings.TrimSpace(unit))
	r := strings.ToUpper(strings.TrimSpace(reference))

	switch {
	case isSurfaceToken(r) || isSurfaceToken(v) || v == "":
		return aero.Surface()
	case isUnlimitedToken(r) || isUnlimitedToken(v):
		return aero.Unlimited()
	}

	n, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return aero.AltitudeLimit{}
	}
	num := strconv.FormatFloat(n, 'f', -1, 64)

	var lim aero.AltitudeLimit
	switch u {
	case "FL":
		lim = aero.AltitudeLimit{
			Feet:  int(math.Round(n * 100)),
			Raw:   fmt.Sprintf("FL%03d", int(math.Round(n))),
			Datum: aero.DatumStandard,
		}
	case "M":
		lim = aero.AltitudeLimit{Feet: MetersToFeet(n), Raw: num + "m", Datum: aero.DatumMSL}
	default:
		lim = aero.AltitudeLimit{Feet: int(math.Round(n)), Raw: num + "ft", Datum: aero.DatumMSL}
	}

	switch {
	case r == "STD" && u != "FL":
		// Pressure altitude given in feet or meters: display as a flight level.
		lim.Datum = aero.DatumStandard
		lim.Raw = fmt.Sprintf("FL%03d", int(math.Round(float64(lim.Feet)/100)))
	case isHeightReference(r):
		if lim.Feet == 0 {
			return aero.Surface()
		}
		lim.Raw += " AGL"
	}

	if lim.Feet >= aero.UnlimitedFeet {
		return aero.Unlimited()
	}
	return lim
}

// Free-text altitude layouts, tried in order.
var altitudeFormats = []Format{
	{Name: "surface", Pattern: `^(?P<sfc>{SFC})$`},
	{Name: "unlimited", Pattern: `^(?P<unl>{UNL})$`},
	{Name: "flight_level", Pattern: `^FL{SPACE}(?P<value>{FLN})$`},
	{Name: "height", Pattern: `^(?P<value>{NUM}){SPACE}(?P<unit>{UNIT})?{SPACE}(?P<ref>{REF})?$`},
}

var altitudeCompiler = MustCompile(altitudeFormats, nil)

// ParseAltitudeText normalises a free-text limit such as "SFC", "FL 115",
// "1500 FT AMSL" or "300m ASFC". ok is false when no layout matches.
func ParseAltitudeText(raw string) (aero.AltitudeLimit, bool) {
	m, ok := altitudeCompiler.Match(raw)
	if !ok {
		return aero.AltitudeLimit{}, false
	}

	switch m.Format {
	case "surface":
		return aero.Surface(), true
	case "unlimited":
		return aero.Unlimited(), true
	case "flight_level":
		return ParseAltitude(m.Get("value", ""), "FL", "STD"), true
	}

	unit := m.Get("unit", "FT")
	if unit == "F" {
		unit = "FT"
	}
	lim := ParseAltitude(m.Get("value", ""), unit, m.Get("ref", "MSL"))
	return lim, lim.Known()
}
