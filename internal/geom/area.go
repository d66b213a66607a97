package geom

import "math"

// EarthRadiusM is the WGS84 equatorial radius in meters.
const EarthRadiusM = 6378137.0

// AreaHectares computes the planar-projected area of the geometry's
// exterior ring(s) in hectares, rounded to 4 decimal places.
//
// Each ring is projected to local planar meters with an equirectangular
// approximation around the ring's mean latitude and measured with the
// shoelace formula. For a MultiPolygon the member areas are summed and
// hole rings are NOT subtracted — a deliberate approximation carried
// over from the product behavior, adequate for parcel-sized shapes.
//
// Degenerate input (missing geometry, empty rings, fewer than 3 distinct
// vertices) yields 0; malformed geometry is a data-quality condition,
// not a fault, so this function never fails.
func AreaHectares(g Geometry) float64 {
	var sqm float64
	for _, ring := range g.ExteriorRings() {
		sqm += ringAreaSqMeters(ring)
	}
	return round4(sqm / 10000.0)
}

// ringAreaSqMeters measures one closed [lon,lat] ring in square meters.
func ringAreaSqMeters(ring [][]float64) float64 {
	pts := dropClosingVertex(ring)
	if len(pts) < 3 {
		return 0
	}

	var latSum float64
	for _, p := range pts {
		latSum += p[1]
	}
	refLat := latSum / float64(len(pts))
	cosRef := math.Cos(refLat * math.Pi / 180)

	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i] = p[0] * math.Pi / 180 * EarthRadiusM * cosRef
		ys[i] = p[1] * math.Pi / 180 * EarthRadiusM
	}

	var cross float64
	for i := range pts {
		j := (i + 1) % len(pts)
		cross += xs[i]*ys[j] - xs[j]*ys[i]
	}
	return math.Abs(cross) / 2
}

// dropClosingVertex strips malformed vertices and the duplicated closing
// point if the ring is explicitly closed.
func dropClosingVertex(ring [][]float64) [][]float64 {
	pts := make([][]float64, 0, len(ring))
	for _, p := range ring {
		if len(p) < 2 {
			continue
		}
		pts = append(pts, p)
	}
	if len(pts) >= 2 {
		first, last := pts[0], pts[len(pts)-1]
		if first[0] == last[0] && first[1] == last[1] {
			pts = pts[:len(pts)-1]
		}
	}
	return pts
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// PointInRing reports whether the point lies inside the closed [lon,lat]
// ring, by ray casting. Points exactly on an edge are not guaranteed
// either way; callers use this for coarse region routing only.
func PointInRing(c Coordinate, ring [][]float64) bool {
	pts := dropClosingVertex(ring)
	if len(pts) < 3 {
		return false
	}
	inside := false
	j := len(pts) - 1
	for i := 0; i < len(pts); i++ {
		xi, yi := pts[i][0], pts[i][1]
		xj, yj := pts[j][0], pts[j][1]
		if (yi > c.Lat) != (yj > c.Lat) &&
			c.Lon < (xj-xi)*(c.Lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}
