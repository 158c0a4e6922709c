// Package codes holds the lookup tables that translate source-specific type,
// class, unit and reference codes into the canonical taxonomy. Both the
// primary extractor and the secondary adapter resolve codes through here.
package codes

import (
	"strings"

	"aeronav/internal/aero"
)

// secondaryTypeNames are the secondary catalog's numeric airspace type codes.
var secondaryTypeNames = map[int]string{
	0:  "OTHER",
	1:  "RESTRICTED",
	2:  "DANGER",
	3:  "PROHIBITED",
	4:  "CTR",
	5:  "TMA",
	6:  "TRA",
	7:  "TIZ",
	8:  "TIA",
	9:  "MTA",
	10: "ATZ",
	11: "ADIZ",
	12: "CTA",
	13: "ACC",
	14: "FIR",
	15: "AWY",
	16: "TMZ",
	17: "RMZ",
	18: "TSA",
	19: "UIR",
	20: "OCA",
	21: "CBA",
	22: "LTA",
	23: "MATZ",
	24: "SRZ",
	25: "TFR",
	26: "NOTAM",
}

// secondaryClasses are the secondary catalog's numeric ICAO class codes.
var secondaryClasses = map[int]aero.Class{
	0:  aero.ClassG,
	1:  aero.ClassA,
	2:  aero.ClassB,
	3:  aero.ClassC,
	4:  aero.ClassD,
	5:  aero.ClassE,
	6:  aero.ClassF,
	7:  aero.ClassG,
	8:  aero.ClassG,
	9:  aero.ClassG,
	10: aero.ClassG,
	11: aero.ClassG,
}

// primaryTypes maps the primary document's codeType values.
var primaryTypes = map[string]aero.AirspaceType{
	"CTR":        aero.TypeCTR,
	"CTR-P":      aero.TypeCTR,
	"TMA":        aero.TypeTMA,
	"TMA-P":      aero.TypeTMA,
	"CTA":        aero.TypeCTA,
	"CTA-P":      aero.TypeCTA,
	"UTA":        aero.TypeCTA,
	"R":          aero.TypeRestricted,
	"R-AMC":      aero.TypeRestricted,
	"RESTRICTED": aero.TypeRestricted,
	"P":          aero.TypeProhibited,
	"PROHIBITED": aero.TypeProhibited,
	"D":          aero.TypeDanger,
	"D-AMC":      aero.TypeDanger,
	"D-OTHER":    aero.TypeDanger,
	"DANGER":     aero.TypeDanger,
	"TMZ":        aero.TypeTMZ,
	"RMZ":        aero.TypeRMZ,
	"AWY":        aero.TypeAWY,
	"FIR":        aero.TypeFIR,
	"FIR-P":      aero.TypeFIR,
	"UIR":        aero.TypeUIR,
	"UIR-P":      aero.TypeUIR,
	"ATZ":        aero.TypeATZ,
	"ATZ-P":      aero.TypeATZ,
}

// SecondaryTypeName returns the source's own name for a type code, or "" when unknown.
func SecondaryTypeName(code int) string {
	return secondaryTypeNames[code]
}

// SecondaryType maps a numeric type code onto the canonical taxonomy.
// Unmapped and unknown codes become OTHER.
func SecondaryType(code int) aero.AirspaceType {
	name, ok := secondaryTypeNames[code]
	if !ok {
		return aero.TypeOther
	}
	return canonicalType(name)
}

// SecondaryClass maps a numeric class code; unknown codes become G.
func SecondaryClass(code int) aero.Class {
	if c, ok := secondaryClasses[code]; ok {
		return c
	}
	return aero.ClassG
}

// SecondaryUnit maps a numeric unit code onto a unit token understood by the
// altitude normalizer: 1 = meters, 6 = flight level, anything else feet.
func SecondaryUnit(code int) string {
	switch code {
	case 1:
		return "M"
	case 6:
		return "FL"
	default:
		return "FT"
	}
}

// SecondaryReference maps a numeric reference datum code onto a reference token:
// 0 = height above ground, 1 = standard pressure, 2 = mean sea level.
func SecondaryReference(code int) string {
	switch code {
	case 0:
		return "AGL"
	case 1:
		return "STD"
	default:
		return "MSL"
	}
}

// PrimaryType maps the primary document's codeType onto the canonical taxonomy.
func PrimaryType(codeType string) aero.AirspaceType {
	return canonicalType(codeType)
}

// PrimaryClass normalises a primary class code. An empty code is "not applicable";
// anything outside A-G becomes G.
func PrimaryClass(code string) aero.Class {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return aero.ClassNone
	}
	code = strings.TrimPrefix(code, "AIRSPACE_")
	switch c := aero.Class(code); c {
	case aero.ClassA, aero.ClassB, aero.ClassC, aero.ClassD, aero.ClassE, aero.ClassF, aero.ClassG:
		return c
	}
	return aero.ClassG
}

// ParseType accepts a canonical type name (case-insensitive) or a primary code.
func ParseType(s string) (aero.AirspaceType, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, t := range aero.AirspaceTypes {
		if string(t) == s {
			return t, true
		}
	}
	if t, ok := primaryTypes[s]; ok {
		return t, true
	}
	return aero.TypeOther, false
}

func canonicalType(code string) aero.AirspaceType {
	code = strings.ToUpper(strings.TrimSpace(code))
	if t, ok := primaryTypes[code]; ok {
		return t
	}
	if t, ok := ParseType(code); ok {
		return t
	}
	return aero.TypeOther
}
