// Package cadastral models reverse-geocode lookup results and the HTTP
// client that fetches them from the cadastral lookup service.
package cadastral

import "github.com/agrimap/parcel-onboarding/internal/geom"

// Candidate is one cadastral lookup result for a coordinate. A candidate
// without geometry can be shown to the user but can never reach
// submission.
type Candidate struct {
	CadastralReference string        `json:"cadastralReference"`
	Municipality       string        `json:"municipality"`
	Province           string        `json:"province"`
	Address            string        `json:"address"`
	Geometry           geom.Geometry `json:"geometry,omitzero"`
	// Classification is a free-form tag (urban/rustic etc) used only for
	// display grouping.
	Classification string `json:"classification,omitempty"`
	Region         string `json:"region,omitempty"`
}

// HasGeometry reports whether the candidate can proceed past display.
func (c Candidate) HasGeometry() bool {
	return c.Geometry.Usable()
}

type ResultKind int

const (
	ResultEmpty ResultKind = iota
	ResultSingle
	ResultMultiple
)

// Result is the tagged outcome of one coordinate lookup. The shape is
// explicit so call sites never probe for an optional candidates field.
type Result struct {
	Kind       ResultKind
	Candidates []Candidate
}

// NewResult normalizes a candidate list into the tagged variant.
// Candidates that carry neither a reference nor an address are treated
// as absent.
func NewResult(cands []Candidate) Result {
	kept := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if c.CadastralReference == "" && c.Address == "" && !c.HasGeometry() {
			continue
		}
		kept = append(kept, c)
	}
	switch len(kept) {
	case 0:
		return Result{Kind: ResultEmpty}
	case 1:
		return Result{Kind: ResultSingle, Candidates: kept}
	default:
		return Result{Kind: ResultMultiple, Candidates: kept}
	}
}

// Single returns the sole candidate of a ResultSingle.
func (r Result) Single() Candidate {
	return r.Candidates[0]
}
