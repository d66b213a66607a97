// Package present renders workflow snapshots for a terminal and hosts
// the search-bar interaction model.
package present

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/agrimap/parcel-onboarding/internal/cadastral"
	"github.com/agrimap/parcel-onboarding/internal/errclass"
	"github.com/agrimap/parcel-onboarding/internal/workflow"
)

// Renderer writes each snapshot as a short status block. It is the demo
// harness's stand-in for the map-side UI.
type Renderer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

// Render formats one snapshot. Safe for concurrent use with the
// workflow's subscriber goroutine.
func (r *Renderer) Render(s workflow.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = io.WriteString(r.out, Format(s))
}

// Format returns the text block for a snapshot.
func Format(s workflow.Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s]", s.State)
	if s.State == workflow.StateQuerying {
		fmt.Fprintf(&b, " %ds", s.ElapsedSeconds)
		if s.SlowHint {
			b.WriteString(" (still searching, the cadastre is slow today)")
		}
	}
	b.WriteByte('\n')

	if len(s.Candidates) > 0 {
		fmt.Fprintf(&b, "  %d parcels found:\n", len(s.Candidates))
		for i, c := range s.Candidates {
			fmt.Fprintf(&b, "  %d. %s", i+1, candidateLabel(c))
			b.WriteByte('\n')
		}
	}

	if p := s.Pending; p != nil {
		fmt.Fprintf(&b, "  confirm parcel %s (%.4f ha)? [y/n]\n",
			candidateLabel(p.Candidate), p.AreaHectares)
	}

	if n := s.Notification; n != nil {
		fmt.Fprintf(&b, "  %s %s\n", severityMark(n.Severity), n.Message)
	}
	return b.String()
}

func candidateLabel(c cadastral.Candidate) string {
	ref := c.CadastralReference
	if ref == "" {
		ref = "(no reference)"
	}
	parts := []string{ref}
	if c.Municipality != "" {
		parts = append(parts, c.Municipality)
	}
	if c.Province != "" {
		parts = append(parts, c.Province)
	}
	return strings.Join(parts, ", ")
}

func severityMark(s errclass.Severity) string {
	switch s {
	case errclass.SeverityError:
		return "✗"
	case errclass.SeverityWarning:
		return "!"
	case errclass.SeveritySuccess:
		return "✓"
	default:
		return "·"
	}
}
