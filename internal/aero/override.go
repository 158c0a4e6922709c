package aero

// AirspaceOverride is a partial correction. A nil field (or nil Frequencies)
// means "absent" and leaves the target untouched.
type AirspaceOverride struct {
	Type        *AirspaceType  `json:"type,omitempty" yaml:"type,omitempty"`
	Class       *Class         `json:"class,omitempty" yaml:"class,omitempty"`
	Floor       *AltitudeLimit `json:"floor,omitempty" yaml:"floor,omitempty"`
	Ceiling     *AltitudeLimit `json:"ceiling,omitempty" yaml:"ceiling,omitempty"`
	Remarks     *string        `json:"remarks,omitempty" yaml:"remarks,omitempty"`
	Frequencies []Frequency    `json:"frequencies,omitempty" yaml:"frequencies,omitempty"`
}

// IsEmpty reports whether the override carries no field at all.
func (o AirspaceOverride) IsEmpty() bool {
	return o.Type == nil && o.Class == nil && o.Floor == nil && o.Ceiling == nil &&
		o.Remarks == nil && len(o.Frequencies) == 0
}

// Apply copies every present field onto a. Changing the type recomputes the priority.
func (o AirspaceOverride) Apply(a *Airspace) {
	if o.Type != nil {
		a.SetType(*o.Type)
	}
	if o.Class != nil {
		a.Class = *o.Class
	}
	if o.Floor != nil && o.Floor.Known() {
		a.Floor = *o.Floor
	}
	if o.Ceiling != nil && o.Ceiling.Known() {
		a.Ceiling = *o.Ceiling
	}
	if o.Remarks != nil && *o.Remarks != "" {
		a.Remarks = *o.Remarks
	}
	if len(o.Frequencies) > 0 {
		a.Frequencies = append([]Frequency(nil), o.Frequencies...)
	}
}

// Combine layers next on top of o; fields present in next win.
func (o AirspaceOverride) Combine(next AirspaceOverride) AirspaceOverride {
	out := o
	if next.Type != nil {
		out.Type = next.Type
	}
	if next.Class != nil {
		out.Class = next.Class
	}
	if next.Floor != nil {
		out.Floor = next.Floor
	}
	if next.Ceiling != nil {
		out.Ceiling = next.Ceiling
	}
	if next.Remarks != nil {
		out.Remarks = next.Remarks
	}
	if len(next.Frequencies) > 0 {
		out.Frequencies = next.Frequencies
	}
	return out
}
