// Package workflow implements the click-to-parcel state machine: one
// accepted map click is resolved to a coordinate, reverse-geocoded,
// disambiguated if needed, validated, area-computed, confirmed by the
// user, and submitted to the entity store.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agrimap/parcel-onboarding/internal/cadastral"
	"github.com/agrimap/parcel-onboarding/internal/errclass"
	"github.com/agrimap/parcel-onboarding/internal/geom"
	"github.com/agrimap/parcel-onboarding/internal/parcels"
	"github.com/agrimap/parcel-onboarding/internal/scene"
)

// CadastralLookup reverse-geocodes one coordinate into a tagged result.
type CadastralLookup interface {
	QueryByCoordinate(ctx context.Context, c geom.Coordinate) (cadastral.Result, error)
}

// ParcelCreator submits a normalized parcel to the downstream store.
type ParcelCreator interface {
	CreateParcel(ctx context.Context, s parcels.Submission) (parcels.Created, error)
}

const (
	// slowHintSeconds is how long a lookup runs before the processing
	// indicator appends a "taking longer than usual" hint.
	slowHintSeconds = 5
	// reloadDelay gives the entity store time to propagate a creation
	// before the scene refetches. A trade-off, not a consistency
	// guarantee.
	reloadDelay = 1500 * time.Millisecond

	msgNoGeometry = "The selected parcel has no usable geometry and cannot be added."
	msgNoParcel   = "No cadastral information was found for this location."
)

type Config struct {
	Scene   scene.Scene
	Lookup  CadastralLookup
	Creator ParcelCreator
	// Toggle is the shared click-enabled flag; nil means always enabled.
	Toggle *ToggleStore
	Logger *slog.Logger
}

// Workflow is one instance of the state machine. All mutation happens
// under mu; every continuation of an async step is guarded by the
// generation counter so results landing after a transition (or after
// Close) are discarded instead of mutating disposed state.
type Workflow struct {
	scn     scene.Scene
	lookup  CadastralLookup
	creator ParcelCreator
	toggle  *ToggleStore
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	gen        uint64
	elapsed    int
	candidates []cadastral.Candidate
	pending    *PendingParcel
	note       *Notification
	noteSeq    uint64
	closed     bool

	subs   map[int]func(Snapshot)
	nextID int

	// test seams
	tickInterval time.Duration
	after        func(d time.Duration, fn func())
}

func New(cfg Config) *Workflow {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Workflow{
		scn:          cfg.Scene,
		lookup:       cfg.Lookup,
		creator:      cfg.Creator,
		toggle:       cfg.Toggle,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		subs:         make(map[int]func(Snapshot)),
		tickInterval: time.Second,
		after: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
}

// Close cancels the instance's scope. In-flight lookups and submissions
// are abandoned; their results are discarded by the generation guard.
func (w *Workflow) Close() {
	w.mu.Lock()
	w.closed = true
	w.gen++
	w.mu.Unlock()
	w.cancel()
}

// Subscribe registers a snapshot listener and returns its unsubscribe
// func. The listener is invoked after every observable transition.
func (w *Workflow) Subscribe(fn func(Snapshot)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.subs[id] = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.subs, id)
		w.mu.Unlock()
	}
}

// Snapshot returns a copy of the current observable state.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Workflow) snapshotLocked() Snapshot {
	s := Snapshot{
		State:          w.state,
		ElapsedSeconds: w.elapsed,
		SlowHint:       w.state == StateQuerying && w.elapsed >= slowHintSeconds,
	}
	if len(w.candidates) > 0 {
		s.Candidates = append([]cadastral.Candidate(nil), w.candidates...)
	}
	if w.pending != nil {
		p := *w.pending
		s.Pending = &p
	}
	if w.note != nil {
		n := *w.note
		s.Notification = &n
	}
	return s
}

func (w *Workflow) publish() {
	w.mu.Lock()
	snap := w.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(w.subs))
	for _, fn := range w.subs {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// HandleClick feeds one pointer event into the machine. It reports
// whether the click was accepted; rejected clicks (disabled toggle,
// busy state, entity hit, unresolvable ground point) are dropped
// silently.
func (w *Workflow) HandleClick(click scene.ScreenClick) bool {
	if w.toggle != nil && !w.toggle.Enabled() {
		return false
	}
	pick := w.scn.PickAt(click)

	w.mu.Lock()
	if w.closed || !ShouldAccept(w.state, pick) {
		w.mu.Unlock()
		return false
	}
	coord := *pick.Ground
	w.state = StateQuerying
	w.elapsed = 0
	w.gen++
	gen := w.gen
	w.mu.Unlock()

	w.logger.Debug("cadastral lookup started", "lon", coord.Lon, "lat", coord.Lat)
	w.publish()
	go w.runTicker(gen)
	go w.runLookup(gen, coord)
	return true
}

// runTicker drives the per-second elapsed counter for user feedback
// while a lookup is outstanding.
func (w *Workflow) runTicker(gen uint64) {
	t := time.NewTicker(w.tickInterval)
	defer t.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-t.C:
			w.mu.Lock()
			if w.closed || w.gen != gen || w.state != StateQuerying {
				w.mu.Unlock()
				return
			}
			w.elapsed++
			w.mu.Unlock()
			w.publish()
		}
	}
}

func (w *Workflow) runLookup(gen uint64, coord geom.Coordinate) {
	res, err := w.lookup.QueryByCoordinate(w.ctx, coord)

	w.mu.Lock()
	if w.closed || w.gen != gen || w.state != StateQuerying {
		// a newer transition already owns the machine
		w.mu.Unlock()
		return
	}

	if err != nil {
		class := errclass.Classify(err)
		w.logger.Warn("cadastral lookup failed", "kind", class.Kind.String(), "err", err)
		w.toIdleLocked(&Notification{
			Message:    class.Message,
			Severity:   class.Severity,
			ClearDelay: class.ClearDelay,
		})
		w.mu.Unlock()
		w.publish()
		return
	}

	switch res.Kind {
	case cadastral.ResultEmpty:
		w.toIdleLocked(&Notification{
			Message:    msgNoParcel,
			Severity:   errclass.SeverityWarning,
			ClearDelay: 5 * time.Second,
		})
	case cadastral.ResultMultiple:
		w.state = StateCandidateSelection
		w.candidates = res.Candidates
		w.gen++
	default:
		w.stageLocked(res.Single())
	}
	w.mu.Unlock()
	w.publish()
}

// stageLocked runs geometry validation: a transition, not a resting
// state. Valid geometry computes the area and arms the one PendingParcel
// slot; anything else drops back to Idle with a warning.
func (w *Workflow) stageLocked(c cadastral.Candidate) {
	if !c.HasGeometry() {
		w.toIdleLocked(&Notification{
			Message:    msgNoGeometry,
			Severity:   errclass.SeverityWarning,
			ClearDelay: 5 * time.Second,
		})
		return
	}
	area := geom.AreaHectares(c.Geometry)
	w.candidates = nil
	w.pending = &PendingParcel{Candidate: c, AreaHectares: area}
	w.state = StateAwaitingConfirmation
	w.gen++
}

// SelectCandidate resolves the disambiguation list to one candidate.
// Only valid while candidates are awaiting selection.
func (w *Workflow) SelectCandidate(i int) bool {
	w.mu.Lock()
	if w.closed || w.state != StateCandidateSelection || i < 0 || i >= len(w.candidates) {
		w.mu.Unlock()
		return false
	}
	w.stageLocked(w.candidates[i])
	w.mu.Unlock()
	w.publish()
	return true
}

// Cancel abandons the current selection or confirmation, returning to
// Idle with no notification. It is a no-op elsewhere.
func (w *Workflow) Cancel() bool {
	w.mu.Lock()
	if w.closed || (w.state != StateCandidateSelection && w.state != StateAwaitingConfirmation) {
		w.mu.Unlock()
		return false
	}
	w.toIdleLocked(nil)
	w.mu.Unlock()
	w.publish()
	return true
}

// Confirm submits the pending parcel. Only valid while one awaits
// confirmation.
func (w *Workflow) Confirm() bool {
	w.mu.Lock()
	if w.closed || w.state != StateAwaitingConfirmation || w.pending == nil {
		w.mu.Unlock()
		return false
	}
	pending := *w.pending
	w.state = StateSubmitting
	w.gen++
	gen := w.gen
	w.mu.Unlock()

	w.publish()
	go w.runSubmit(gen, pending)
	return true
}

func (w *Workflow) runSubmit(gen uint64, pending PendingParcel) {
	sub := parcels.NewSubmission(pending.Candidate, pending.AreaHectares)
	created, err := w.creator.CreateParcel(w.ctx, sub)

	w.mu.Lock()
	if w.closed || w.gen != gen || w.state != StateSubmitting {
		w.mu.Unlock()
		return
	}

	if err != nil {
		class := errclass.Classify(err)
		w.logger.Warn("parcel submission failed", "kind", class.Kind.String(), "err", err)
		w.toIdleLocked(&Notification{
			Message:    class.Message,
			Severity:   class.Severity,
			ClearDelay: class.ClearDelay,
		})
		w.mu.Unlock()
		w.publish()
		return
	}

	ref := pending.Candidate.CadastralReference
	if ref == "" {
		ref = sub.Name
	}
	w.logger.Info("parcel created", "id", created.ID, "reference", ref, "area_ha", pending.AreaHectares)
	w.toIdleLocked(&Notification{
		Message:    fmt.Sprintf("Parcel %s added (%.4f ha).", ref, pending.AreaHectares),
		Severity:   errclass.SeveritySuccess,
		ClearDelay: 5 * time.Second,
	})
	w.mu.Unlock()
	w.publish()

	// let the creation propagate before the scene refetches
	w.after(reloadDelay, func() {
		w.mu.Lock()
		closed := w.closed
		w.mu.Unlock()
		if !closed {
			w.scn.ReloadEntities()
		}
	})
}

// toIdleLocked resets every transient slot and optionally arms a
// self-clearing notification. Callers hold the lock.
func (w *Workflow) toIdleLocked(n *Notification) {
	w.state = StateIdle
	w.elapsed = 0
	w.candidates = nil
	w.pending = nil
	w.gen++
	w.note = n
	w.noteSeq++
	if n == nil {
		return
	}
	seq := w.noteSeq
	w.after(n.ClearDelay, func() {
		w.mu.Lock()
		if w.closed || w.noteSeq != seq || w.note == nil {
			w.mu.Unlock()
			return
		}
		w.note = nil
		w.mu.Unlock()
		w.publish()
	})
}
