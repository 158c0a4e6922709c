package extractor

import (
	"fmt"
	"sort"
	"strings"
)

// Status is the result of extracting one element.
type Status int

const (
	StatusExtracted Status = iota
	StatusSkipped
	StatusFailed

	// statusDeferred marks an element whose outcome is recorded later.
	statusDeferred Status = -1
)

func (s Status) String() string {
	switch s {
	case StatusExtracted:
		return "extracted"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Reason explains why an element was skipped or failed.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonMissingIdentifier  Reason = "missing_identifier"
	ReasonMissingDesignation Reason = "missing_designation"
	ReasonLandingSite        Reason = "landing_site"
	ReasonOrphanBoundary     Reason = "orphan_boundary"
	ReasonMalformed          Reason = "malformed"
)

// Outcome records what happened to a single document element.
type Outcome struct {
	Element string // Element name, e.g. Ahp, Ase, Rwy.
	ID      string // Identifier when one could be read.
	Status  Status
	Reason  Reason
	Err     error // Set for failed elements.
}

func extracted(element, id string) Outcome {
	return Outcome{Element: element, ID: id, Status: StatusExtracted}
}

func skipped(element, id string, reason Reason) Outcome {
	return Outcome{Element: element, ID: id, Status: StatusSkipped, Reason: reason}
}

// Summary aggregates the outcomes of one extraction run.
type Summary struct {
	Total     int            `json:"total"`
	Extracted int            `json:"extracted"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Elements  map[string]int `json:"elements"` // Extracted count per element name.
	Reasons   map[Reason]int `json:"reasons"`  // Skipped/failed count per reason.
}

// Add folds one outcome into the summary.
func (s *Summary) Add(o Outcome) {
	if s.Elements == nil {
		s.Elements = make(map[string]int)
	}
	if s.Reasons == nil {
		s.Reasons = make(map[Reason]int)
	}

	s.Total++
	switch o.Status {
	case StatusExtracted:
		s.Extracted++
		s.Elements[o.Element]++
	case StatusSkipped:
		s.Skipped++
		s.Reasons[o.Reason]++
	case StatusFailed:
		s.Failed++
		s.Reasons[o.Reason]++
	}
}

// String renders a compact single-line report.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d elements: %d extracted, %d skipped, %d failed", s.Total, s.Extracted, s.Skipped, s.Failed)

	if len(s.Reasons) > 0 {
		reasons := make([]string, 0, len(s.Reasons))
		for r := range s.Reasons {
			reasons = append(reasons, string(r))
		}
		sort.Strings(reasons)
		b.WriteString(" (")
		for i, r := range reasons {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%d", r, s.Reasons[Reason(r)])
		}
		b.WriteString(")")
	}
	return b.String()
}
