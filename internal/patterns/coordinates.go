// Package patterns provides the coordinate and altitude normalizer used by every
// data source. All functions are total: malformed input yields a well-defined
// unknown value instead of an error.
//
// This file contains coordinate conversion utilities.

package patterns

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// dmsRe matches fixed-width sexagesimal tokens: DD(D)MMSS(.ss) plus hemisphere.
// e.g. 485045.00N, 0022250.5E, 4350N is rejected (no seconds).
var dmsRe = regexp.MustCompile(`^(\d{2,3})(\d{2})(\d{2}(?:\.\d+)?)([NSEW])$`)

// ParseCoordinate converts a sexagesimal token into decimal degrees rounded to
// six decimal places. S and W negate the value. ok is false when the token is
// malformed or out of range.
func ParseCoordinate(token string) (float64, bool) {
	m := dmsRe.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(token)))
	if m == nil {
		return 0, false
	}

	deg, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	min, err := strconv.Atoi(m[2])
	if err != nil || min >= 60 {
		return 0, false
	}
	sec, err := strconv.ParseFloat(m[3], 64)
	if err != nil || sec >= 60 {
		return 0, false
	}

	hemi := m[4]
	limit := 180
	if hemi == "N" || hemi == "S" {
		limit = 90
	}

	result := float64(deg) + float64(min)/60.0 + sec/3600.0
	if result > float64(limit) {
		return 0, false
	}

	// Apply direction.
	if hemi == "S" || hemi == "W" {
		result = -result
	}

	return Round(result, 6), true
}

// ParseLatitude parses a sexagesimal latitude (N/S hemisphere only).
func ParseLatitude(token string) (float64, bool) {
	token = strings.ToUpper(strings.TrimSpace(token))
	if !strings.HasSuffix(token, "N") && !strings.HasSuffix(token, "S") {
		return 0, false
	}
	return ParseCoordinate(token)
}

// ParseLongitude parses a sexagesimal longitude (E/W hemisphere only).
func ParseLongitude(token string) (float64, bool) {
	token = strings.ToUpper(strings.TrimSpace(token))
	if !strings.HasSuffix(token, "E") && !strings.HasSuffix(token, "W") {
		return 0, false
	}
	return ParseCoordinate(token)
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
