package workflow

import (
	"time"

	"github.com/agrimap/parcel-onboarding/internal/cadastral"
	"github.com/agrimap/parcel-onboarding/internal/errclass"
)

type State int

const (
	StateIdle State = iota
	StateQuerying
	StateCandidateSelection
	StateAwaitingConfirmation
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateQuerying:
		return "querying"
	case StateCandidateSelection:
		return "candidate_selection"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateSubmitting:
		return "submitting"
	default:
		return "unknown"
	}
}

// PendingParcel is the one-at-a-time slot holding a user-confirmable
// candidate plus its computed area. It exists only between geometry
// validation and confirm/cancel.
type PendingParcel struct {
	Candidate    cadastral.Candidate
	AreaHectares float64
}

// Notification is a transient user-facing message. It clears itself
// after ClearDelay.
type Notification struct {
	Message    string
	Severity   errclass.Severity
	ClearDelay time.Duration
}

// Snapshot is the immutable view of the workflow the presentation layer
// renders. It carries no authority: intents flow back through the
// workflow's methods.
type Snapshot struct {
	State          State
	ElapsedSeconds int
	// SlowHint turns on once a lookup has been running for a while.
	SlowHint     bool
	Candidates   []cadastral.Candidate
	Pending      *PendingParcel
	Notification *Notification
}
