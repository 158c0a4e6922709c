package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"go.yaml.in/yaml/v3"

	"aeronav/internal/aero"
	"aeronav/internal/codes"
	"aeronav/internal/patterns"
)

//go:embed defaults.yaml
var defaultRules []byte

// City maps a name fragment to the aerodrome serving it.
type City struct {
	Name string `yaml:"name"`
	ICAO string `yaml:"icao"`
}

// Exception forces fields on airspaces of a type whose name contains a fragment.
type Exception struct {
	Type         string `yaml:"type"`
	NameContains string `yaml:"name_contains"`
	Class        string `yaml:"class,omitempty"`
	Floor        string `yaml:"floor,omitempty"`
	Ceiling      string `yaml:"ceiling,omitempty"`
	Remarks      string `yaml:"remarks,omitempty"`
	Note         string `yaml:"note,omitempty"`

	typ      aero.AirspaceType
	override aero.AirspaceOverride
}

// Rules is the external merge configuration.
type Rules struct {
	Cities     []City      `yaml:"cities"`
	Exceptions []Exception `yaml:"exceptions"`
}

// DefaultRules returns the embedded configuration.
func DefaultRules() *Rules {
	r, err := ParseRules(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("embedded rules: %v", err))
	}
	return r
}

// LoadRules reads a YAML rules file. An empty path yields the embedded defaults.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes and validates a rules document.
func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}

	for i := range r.Cities {
		r.Cities[i].Name = strings.ToUpper(strings.TrimSpace(r.Cities[i].Name))
		r.Cities[i].ICAO = strings.ToUpper(strings.TrimSpace(r.Cities[i].ICAO))
		if r.Cities[i].Name == "" || len(r.Cities[i].ICAO) != 4 {
			return nil, fmt.Errorf("city %d: name and 4-letter icao required", i)
		}
	}

	for i := range r.Exceptions {
		ex := &r.Exceptions[i]
		t, ok := codes.ParseType(ex.Type)
		if !ok {
			return nil, fmt.Errorf("exception %d: unknown type %q", i, ex.Type)
		}
		if strings.TrimSpace(ex.NameContains) == "" {
			return nil, fmt.Errorf("exception %d: name_contains required", i)
		}
		ex.typ = t
		ex.NameContains = strings.ToUpper(strings.TrimSpace(ex.NameContains))

		o, err := textOverride(ex.Class, ex.Floor, ex.Ceiling, ex.Remarks)
		if err != nil {
			return nil, fmt.Errorf("exception %d: %w", i, err)
		}
		if o.IsEmpty() {
			return nil, fmt.Errorf("exception %d: no field to force", i)
		}
		ex.override = o
	}

	return &r, nil
}

// textOverride builds an override from free-text fields; empty fields are absent.
func textOverride(class, floor, ceiling, remarks string) (aero.AirspaceOverride, error) {
	var o aero.AirspaceOverride
	if class = strings.TrimSpace(class); class != "" {
		c := codes.PrimaryClass(class)
		if string(c) != strings.TrimPrefix(strings.ToUpper(class), "AIRSPACE_") {
			return o, fmt.Errorf("invalid class %q", class)
		}
		o.Class = &c
	}
	if floor != "" {
		l, ok := patterns.ParseAltitudeText(floor)
		if !ok {
			return o, fmt.Errorf("invalid floor %q", floor)
		}
		o.Floor = &l
	}
	if ceiling != "" {
		l, ok := patterns.ParseAltitudeText(ceiling)
		if !ok {
			return o, fmt.Errorf("invalid ceiling %q", ceiling)
		}
		o.Ceiling = &l
	}
	if remarks != "" {
		o.Remarks = &remarks
	}
	return o, nil
}

// Correction is the free-text form of a user correction.
type Correction struct {
	Type        string `json:"type,omitempty"`
	Class       string `json:"class,omitempty"`
	Floor       string `json:"floor,omitempty"`
	Ceiling     string `json:"ceiling,omitempty"`
	Remarks     string `json:"remarks,omitempty"`
	Frequencies string `json:"frequencies,omitempty"`
}

// Override validates the correction and converts it into a typed override.
// Frequencies are parsed from text such as "TWR 118.700, ATIS 126.025".
func (c Correction) Override() (aero.AirspaceOverride, error) {
	o, err := textOverride(c.Class, c.Floor, c.Ceiling, c.Remarks)
	if err != nil {
		return o, err
	}
	if strings.TrimSpace(c.Type) != "" {
		t, ok := codes.ParseType(c.Type)
		if !ok {
			return o, fmt.Errorf("invalid type %q", c.Type)
		}
		o.Type = &t
	}
	frequencies := c.Frequencies
	if strings.TrimSpace(frequencies) != "" {
		o.Frequencies = patterns.ParseFrequencies(frequencies)
		if len(o.Frequencies) == 0 {
			return o, fmt.Errorf("no frequency found in %q", frequencies)
		}
	}
	return o, nil
}

// applyExceptions forces the configured fields on a matching airspace.
func (r *Rules) applyExceptions(a *aero.Airspace) {
	name := strings.ToUpper(a.Name)
	for _, ex := range r.Exceptions {
		if a.Type == ex.typ && strings.Contains(name, ex.NameContains) {
			ex.override.Apply(a)
		}
	}
}

var icaoLiteralRe = regexp.MustCompile(`\bLF[A-Z]{2}\b`)

// AerodromeFor derives the aerodrome serving an airspace from its name: a
// literal LFxx token first, then the ordered city table.
func (r *Rules) AerodromeFor(name string) (string, bool) {
	name = strings.ToUpper(name)
	if m := icaoLiteralRe.FindString(name); m != "" {
		return m, true
	}
	for _, c := range r.Cities {
		if strings.Contains(name, c.Name) {
			return c.ICAO, true
		}
	}
	return "", false
}
