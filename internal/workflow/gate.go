package workflow

import "github.com/agrimap/parcel-onboarding/internal/scene"

// ShouldAccept decides whether a map click may enter the workflow. It is
// the sole gatekeeper against duplicate concurrent submissions: a click
// is accepted only when the workflow is resting in Idle, the pick did
// not land on an existing entity, and the screen point unprojected to a
// valid ground coordinate.
func ShouldAccept(state State, pick scene.PickResult) bool {
	if state != StateIdle {
		return false
	}
	if pick.EntityHit {
		return false
	}
	return pick.Ground != nil && pick.Ground.Valid()
}
