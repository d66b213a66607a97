package geom

import (
	"encoding/json"
	"math"
	"testing"
)

func closedSquare(lon, lat, sideDeg float64) [][]float64 {
	return [][]float64{
		{lon, lat},
		{lon + sideDeg, lat},
		{lon + sideDeg, lat + sideDeg},
		{lon, lat + sideDeg},
		{lon, lat},
	}
}

func polygon(rings ...[][]float64) Geometry {
	return Geometry{Type: TypePolygon, Polygon: rings}
}

func almostEq(t *testing.T, got, want, eps float64) {
	t.Helper()
	if math.Abs(got-want) > eps {
		t.Fatalf("got=%g want=%g (eps=%g)", got, want, eps)
	}
}

func TestAreaRectangleAtEquator(t *testing.T) {
	const side = 0.01 // degrees
	g := polygon(closedSquare(0, 0, side))

	// independently computed planar sides at the ring's mean latitude
	refLat := side / 2
	w := side * math.Pi / 180 * EarthRadiusM * math.Cos(refLat*math.Pi/180)
	h := side * math.Pi / 180 * EarthRadiusM
	want := w * h / 10000

	got := AreaHectares(g)
	almostEq(t, got, want, 1e-3)

	// rounded to exactly 4 decimal places
	if scaled := got * 1e4; scaled != math.Trunc(scaled) {
		t.Fatalf("area %v is not rounded to 4 decimals", got)
	}
}

func TestAreaDegenerateInputsReturnZero(t *testing.T) {
	cases := []struct {
		name string
		g    Geometry
	}{
		{"zero geometry", Geometry{}},
		{"empty polygon", polygon()},
		{"empty ring", polygon([][]float64{})},
		{"single point", polygon([][]float64{{1, 1}})},
		{"two distinct closed", polygon([][]float64{{0, 0}, {1, 1}, {0, 0}})},
		{"malformed vertices", polygon([][]float64{{0}, {1}, {2}})},
		{"empty multipolygon", Geometry{Type: TypeMultiPolygon}},
	}
	for _, tc := range cases {
		if got := AreaHectares(tc.g); got != 0 {
			t.Fatalf("%s: got %g, want 0", tc.name, got)
		}
	}
}

func TestAreaWindingInvariance(t *testing.T) {
	ccw := closedSquare(-1.5, 42.5, 0.002)
	cw := make([][]float64, len(ccw))
	for i, p := range ccw {
		cw[len(ccw)-1-i] = p
	}
	a1 := AreaHectares(polygon(ccw))
	a2 := AreaHectares(polygon(cw))
	if a1 <= 0 {
		t.Fatalf("expected positive area, got %g", a1)
	}
	if a1 != a2 {
		t.Fatalf("winding changed area: ccw=%g cw=%g", a1, a2)
	}
}

func TestAreaMultiPolygonSumsMembers(t *testing.T) {
	r1 := closedSquare(0, 0, 0.004)
	r2 := closedSquare(1, 0, 0.002)

	sum := AreaHectares(polygon(r1)) + AreaHectares(polygon(r2))
	multi := AreaHectares(Geometry{
		Type:         TypeMultiPolygon,
		MultiPolygon: [][][][]float64{{r1}, {r2}},
	})
	almostEq(t, multi, sum, 1e-4)
}

func TestAreaIgnoresHoleRings(t *testing.T) {
	outer := closedSquare(0, 0, 0.01)
	hole := closedSquare(0.002, 0.002, 0.002)

	withHole := AreaHectares(polygon(outer, hole))
	without := AreaHectares(polygon(outer))
	if withHole != without {
		t.Fatalf("hole ring affected area: with=%g without=%g", withHole, without)
	}
}

func TestGeometryUnmarshal(t *testing.T) {
	var g Geometry
	if err := json.Unmarshal([]byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`), &g); err != nil {
		t.Fatalf("polygon unmarshal: %v", err)
	}
	if g.Type != TypePolygon || len(g.Polygon) != 1 || len(g.Polygon[0]) != 4 {
		t.Fatalf("unexpected polygon decode: %+v", g)
	}
	if !g.Usable() {
		t.Fatal("polygon should be usable")
	}

	if err := json.Unmarshal([]byte(`{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]]]}`), &g); err != nil {
		t.Fatalf("multipolygon unmarshal: %v", err)
	}
	if g.Type != TypeMultiPolygon || len(g.MultiPolygon) != 1 {
		t.Fatalf("unexpected multipolygon decode: %+v", g)
	}

}

// Registries occasionally return centroid points or boundary lines for
// features; those candidates must still decode so they can reach the
// no-geometry warning path instead of failing the whole response.
func TestGeometryUnmarshalNonAreaTypesDecodeToZero(t *testing.T) {
	payloads := []string{
		`{"type":"Point","coordinates":[1,2]}`,
		`{"type":"LineString","coordinates":[[0,0],[1,1]]}`,
		`{"type":"GeometryCollection","geometries":[]}`,
	}
	for _, p := range payloads {
		g := polygon(closedSquare(0, 0, 1)) // stale value must be cleared
		if err := json.Unmarshal([]byte(p), &g); err != nil {
			t.Fatalf("unmarshal %s: %v", p, err)
		}
		if !g.IsZero() || g.Usable() {
			t.Fatalf("%s should decode to the zero geometry, got %+v", p, g)
		}
	}
}

func TestGeometryMarshalRoundTrip(t *testing.T) {
	in := polygon(closedSquare(-1.7, 42.8, 0.001))
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Geometry
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if AreaHectares(out) != AreaHectares(in) {
		t.Fatal("area changed across round trip")
	}
}

func TestPointInRing(t *testing.T) {
	ring := closedSquare(-2.5, 42.0, 1.5)
	if !PointInRing(Coordinate{Lon: -1.8, Lat: 42.7}, ring) {
		t.Fatal("interior point reported outside")
	}
	if PointInRing(Coordinate{Lon: 0.5, Lat: 42.7}, ring) {
		t.Fatal("exterior point reported inside")
	}
	if PointInRing(Coordinate{Lon: 0, Lat: 0}, [][]float64{{0, 0}, {1, 1}}) {
		t.Fatal("degenerate ring must contain nothing")
	}
}

func TestCoordinateValid(t *testing.T) {
	if !(Coordinate{Lon: -1.64, Lat: 42.81}).Valid() {
		t.Fatal("valid coordinate rejected")
	}
	if (Coordinate{Lon: -181, Lat: 0}).Valid() || (Coordinate{Lon: 0, Lat: 91}).Valid() {
		t.Fatal("out-of-range coordinate accepted")
	}
}
