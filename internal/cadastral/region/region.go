// Package region routes coordinates to the cadastral authority that
// covers them. Navarra and Euskadi run their own registries; everything
// else falls through to the national Catastro.
package region

import "github.com/agrimap/parcel-onboarding/internal/geom"

type Region string

const (
	Navarra Region = "navarra"
	Euskadi Region = "euskadi"
	Spain   Region = "spain"
)

// bbox is an axis-aligned lon/lat rectangle, inclusive on all edges.
type bbox struct {
	minLon, maxLon float64
	minLat, maxLat float64
}

func (b bbox) contains(c geom.Coordinate) bool {
	return c.Lon >= b.minLon && c.Lon <= b.maxLon &&
		c.Lat >= b.minLat && c.Lat <= b.maxLat
}

// The two boxes overlap around the Navarra/Gipuzkoa border; rule order
// decides, so Navarra is listed first.
var rules = []struct {
	region Region
	box    bbox
}{
	{Navarra, bbox{minLon: -2.5, maxLon: -1.0, minLat: 42.0, maxLat: 43.5}},
	{Euskadi, bbox{minLon: -3.5, maxLon: -1.5, minLat: 42.8, maxLat: 43.6}},
}

// Resolve maps a coordinate to its cadastral region.
func Resolve(c geom.Coordinate) Region {
	for _, r := range rules {
		if r.box.contains(c) {
			return r.region
		}
	}
	return Spain
}
