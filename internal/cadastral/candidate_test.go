package cadastral

import (
	"testing"

	"github.com/agrimap/parcel-onboarding/internal/geom"
)

func TestNewResultNormalizes(t *testing.T) {
	withRef := Candidate{CadastralReference: "REF"}
	withAddr := Candidate{Address: "Calle Mayor 1"}
	empty := Candidate{}

	tests := []struct {
		name     string
		in       []Candidate
		wantKind ResultKind
		wantLen  int
	}{
		{"nil input", nil, ResultEmpty, 0},
		{"all empty", []Candidate{empty, empty}, ResultEmpty, 0},
		{"single", []Candidate{withRef}, ResultSingle, 1},
		{"single after filtering", []Candidate{empty, withAddr}, ResultSingle, 1},
		{"multiple", []Candidate{withRef, withAddr}, ResultMultiple, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewResult(tt.in)
			if res.Kind != tt.wantKind {
				t.Fatalf("kind = %v, want %v", res.Kind, tt.wantKind)
			}
			if len(res.Candidates) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(res.Candidates), tt.wantLen)
			}
		})
	}
}

func TestNewResultKeepsGeometryOnlyCandidate(t *testing.T) {
	c := Candidate{Geometry: geom.Geometry{
		Type: geom.TypePolygon,
		Polygon: [][][]float64{{
			{0, 0}, {0.001, 0}, {0.001, 0.001}, {0, 0},
		}},
	}}
	res := NewResult([]Candidate{c})
	if res.Kind != ResultSingle {
		t.Fatalf("kind = %v, want single", res.Kind)
	}
}
