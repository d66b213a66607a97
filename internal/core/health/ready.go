package health

import (
	"context"
	"encoding/json"
	"net/http"
)

// Check probes one backing dependency.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Readiness reports 200 only when every check passes, listing the
// failing dependencies otherwise.
func Readiness(checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type resp struct {
			Status  string   `json:"status"`
			Failing []string `json:"failing,omitempty"`
		}

		var failing []string
		for _, c := range checks {
			if c.Probe == nil {
				continue
			}
			if err := c.Probe(r.Context()); err != nil {
				failing = append(failing, c.Name)
			}
		}

		out := resp{Status: "ready"}
		w.Header().Set("Content-Type", "application/json")
		if len(failing) > 0 {
			out.Status = "not_ready"
			out.Failing = failing
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
