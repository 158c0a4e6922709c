// This file contains radio frequency parsing.

package patterns

import (
	"regexp"
	"strconv"
	"strings"

	"aeronav/internal/aero"
)

// freqRe matches an optional service kind followed by a VHF frequency,
// e.g. "TWR 118.700", "ATIS: 126.025", "119.250".
var freqRe = regexp.MustCompile(`(?:\b(TWR|APP|AFIS|INFO|ATIS|GND|DEL|APRON|CTL|FIS)\b\s*:?\s*)?\b(1[1-3]\d\.\d{1,3})\b`)

// ParseFrequency normalises a single frequency value to three decimals (MHz).
// ok is false outside the 108-137 MHz aeronautical band.
func ParseFrequency(value string) (string, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || f < 108 || f > 137 {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', 3, 64), true
}

// ParseFrequencies extracts every frequency from free text. A frequency with no
// preceding service keyword inherits the last kind seen, or INFO.
func ParseFrequencies(text string) []aero.Frequency {
	var out []aero.Frequency
	kind := "INFO"
	seen := make(map[string]bool)

	for _, m := range freqRe.FindAllStringSubmatch(strings.ToUpper(text), -1) {
		if m[1] != "" {
			kind = m[1]
		}
		value, ok := ParseFrequency(m[2])
		if !ok {
			continue
		}
		key := kind + "|" + value
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, aero.Frequency{Kind: kind, Value: value, Unit: "MHz"})
	}

	return out
}
