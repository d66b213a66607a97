// Package geom holds the geometry model and the planar area math used
// when staging a cadastral parcel for confirmation.
package geom

import (
	"encoding/json"
	"fmt"
)

// Coordinate is a WGS84 (longitude, latitude) pair in degrees.
type Coordinate struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Valid reports whether the coordinate lies inside the WGS84 domain.
func (c Coordinate) Valid() bool {
	return c.Lon >= -180 && c.Lon <= 180 && c.Lat >= -90 && c.Lat <= 90
}

const (
	TypePolygon      = "Polygon"
	TypeMultiPolygon = "MultiPolygon"
)

// Geometry is a GeoJSON Polygon or MultiPolygon. Exactly one of Polygon
// or MultiPolygon is populated, matching Type.
type Geometry struct {
	Type         string
	Polygon      [][][]float64   // [ring][i][lon,lat]
	MultiPolygon [][][][]float64 // [poly][ring][i][lon,lat]
}

// IsZero reports whether no geometry was decoded at all.
func (g Geometry) IsZero() bool {
	return g.Type == ""
}

// Usable reports whether the geometry can proceed to area computation
// and submission: a supported type with at least one non-empty ring.
func (g Geometry) Usable() bool {
	switch g.Type {
	case TypePolygon:
		return len(g.Polygon) > 0 && len(g.Polygon[0]) > 0
	case TypeMultiPolygon:
		for _, rings := range g.MultiPolygon {
			if len(rings) > 0 && len(rings[0]) > 0 {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (g *Geometry) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*g = Geometry{}
		return nil
	}
	var hdr struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &hdr); err != nil {
		return fmt.Errorf("parse geojson: %w", err)
	}

	switch hdr.Type {
	case TypePolygon:
		var tmp struct {
			Coordinates [][][]float64 `json:"coordinates"`
		}
		if err := json.Unmarshal(b, &tmp); err != nil {
			return fmt.Errorf("parse polygon coords: %w", err)
		}
		g.Type = TypePolygon
		g.Polygon = tmp.Coordinates
		g.MultiPolygon = nil
		return nil

	case TypeMultiPolygon:
		var tmp struct {
			Coordinates [][][][]float64 `json:"coordinates"`
		}
		if err := json.Unmarshal(b, &tmp); err != nil {
			return fmt.Errorf("parse multipolygon coords: %w", err)
		}
		g.Type = TypeMultiPolygon
		g.MultiPolygon = tmp.Coordinates
		g.Polygon = nil
		return nil

	default:
		// Points, lines and the like carry no parcel surface. Decode to
		// the zero geometry so the candidate still reaches geometry
		// validation instead of failing the whole response.
		*g = Geometry{}
		return nil
	}
}

func (g Geometry) MarshalJSON() ([]byte, error) {
	switch g.Type {
	case TypePolygon:
		return json.Marshal(struct {
			Type        string        `json:"type"`
			Coordinates [][][]float64 `json:"coordinates"`
		}{g.Type, g.Polygon})
	case TypeMultiPolygon:
		return json.Marshal(struct {
			Type        string          `json:"type"`
			Coordinates [][][][]float64 `json:"coordinates"`
		}{g.Type, g.MultiPolygon})
	default:
		return nil, fmt.Errorf("cannot marshal geometry of type %q", g.Type)
	}
}

// ExteriorRings returns the first ring of each member polygon. Holes are
// intentionally excluded; see AreaHectares.
func (g Geometry) ExteriorRings() [][][]float64 {
	switch g.Type {
	case TypePolygon:
		if len(g.Polygon) == 0 {
			return nil
		}
		return [][][]float64{g.Polygon[0]}
	case TypeMultiPolygon:
		out := make([][][]float64, 0, len(g.MultiPolygon))
		for _, rings := range g.MultiPolygon {
			if len(rings) > 0 {
				out = append(out, rings[0])
			}
		}
		return out
	default:
		return nil
	}
}
