// Package invalidation drops cached lookup results when parcels change
// upstream. Events arrive over Kafka from the registry sync pipeline.
package invalidation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	h3 "github.com/uber/h3-go/v4"

	"github.com/agrimap/parcel-onboarding/internal/cadastral/coordcache"
	"github.com/agrimap/parcel-onboarding/internal/geom"
)

// Event describes one parcel change. Geometry localizes which cached
// coordinate lookups are stale; the reference additionally drops the
// per-parcel geometry entry.
type Event struct {
	Version            int           `json:"version"`
	Op                 string        `json:"op"`
	Region             string        `json:"region"`
	CadastralReference string        `json:"cadastralReference,omitempty"`
	TS                 time.Time     `json:"ts"`
	Geometry           geom.Geometry `json:"geometry,omitzero"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case "insert", "update", "delete":
	default:
		return fmt.Errorf("op must be insert|update|delete")
	}
	if strings.TrimSpace(e.Region) == "" {
		return fmt.Errorf("region is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if e.Geometry.IsZero() && strings.TrimSpace(e.CadastralReference) == "" {
		return fmt.Errorf("at least one of geometry or cadastralReference is required")
	}
	return nil
}

// CoarseCells returns the sorted coarse-resolution cells covering the
// event geometry, the same cells the coordinate cache indexes under.
func (e Event) CoarseCells() ([]string, error) {
	if e.Geometry.IsZero() {
		return nil, nil
	}

	seen := make(map[string]struct{})
	var out []string
	for _, ring := range e.Geometry.ExteriorRings() {
		loop := toLoop(ring)
		if len(loop) < 3 {
			continue
		}
		cells, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: loop}, coordcache.IndexRes)
		if err != nil {
			return nil, fmt.Errorf("h3 polyfill: %w", err)
		}
		for _, c := range cells {
			s := c.String()
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
		// small parcels fit inside one coarse cell and polyfill finds
		// no cell centers; fall back to the vertex cells
		if len(cells) == 0 {
			for _, ll := range loop {
				c, err := h3.LatLngToCell(ll, coordcache.IndexRes)
				if err != nil {
					continue
				}
				s := c.String()
				if _, ok := seen[s]; ok {
					continue
				}
				seen[s] = struct{}{}
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Convert a GeoJSON ring [[lon,lat], ...] to an h3.GeoLoop, dropping
// the duplicated closing vertex if present.
func toLoop(coords [][]float64) h3.GeoLoop {
	loop := make(h3.GeoLoop, 0, len(coords))
	for _, xy := range coords {
		if len(xy) < 2 {
			continue
		}
		loop = append(loop, h3.LatLng{Lat: xy[1], Lng: xy[0]})
	}
	if len(loop) >= 2 {
		last := loop[len(loop)-1]
		first := loop[0]
		if last.Lat == first.Lat && last.Lng == first.Lng {
			loop = loop[:len(loop)-1]
		}
	}
	return loop
}
