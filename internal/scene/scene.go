// Package scene declares the thin interface the workflow needs from the
// 3D map: picking, unprojecting, camera moves, and an entity reload hook.
// The map itself is an external collaborator and is not implemented here.
package scene

import "github.com/agrimap/parcel-onboarding/internal/geom"

// ScreenClick is one pointer event in screen space. Created per event,
// consumed immediately, never persisted.
type ScreenClick struct {
	X, Y float64
}

// PickResult is what the scene reports for a screen position.
type PickResult struct {
	// EntityHit is true when an existing map entity sits at the point.
	EntityHit bool
	// Ground is the unprojected WGS84 ground coordinate, nil when the
	// point does not resolve to terrain (sky, horizon, failed pick).
	Ground *geom.Coordinate
}

// BoundingBox is a lon/lat extent the camera can fly to.
type BoundingBox struct {
	West, South, East, North float64
}

type Scene interface {
	// PickAt resolves a screen click against the scene.
	PickAt(click ScreenClick) PickResult
	// FlyTo moves the camera to frame the given extent.
	FlyTo(bbox BoundingBox)
	// ReloadEntities asks the scene to refetch its entity layer.
	ReloadEntities()
}
