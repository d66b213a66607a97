package workflow

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agrimap/parcel-onboarding/internal/cadastral"
	"github.com/agrimap/parcel-onboarding/internal/errclass"
	"github.com/agrimap/parcel-onboarding/internal/geom"
	"github.com/agrimap/parcel-onboarding/internal/parcels"
	"github.com/agrimap/parcel-onboarding/internal/scene"
)

// --- fakes ---

type fakeScene struct {
	pick    scene.PickResult
	reloads atomic.Int32
}

func (f *fakeScene) PickAt(scene.ScreenClick) scene.PickResult { return f.pick }
func (f *fakeScene) FlyTo(scene.BoundingBox)                   {}
func (f *fakeScene) ReloadEntities()                           { f.reloads.Add(1) }

type fakeLookup struct {
	res   cadastral.Result
	err   error
	block chan struct{} // when non-nil, Query waits until closed
	calls atomic.Int32
}

func (f *fakeLookup) QueryByCoordinate(ctx context.Context, _ geom.Coordinate) (cadastral.Result, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return cadastral.Result{}, ctx.Err()
		}
	}
	return f.res, f.err
}

type fakeCreator struct {
	created parcels.Created
	err     error
	calls   atomic.Int32

	mu   sync.Mutex
	last parcels.Submission
}

func (f *fakeCreator) CreateParcel(_ context.Context, s parcels.Submission) (parcels.Created, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = s
	f.mu.Unlock()
	return f.created, f.err
}

// afterRecorder captures scheduled callbacks instead of arming timers.
type afterRecorder struct {
	mu      sync.Mutex
	entries []afterEntry
}

type afterEntry struct {
	d  time.Duration
	fn func()
}

func (a *afterRecorder) after(d time.Duration, fn func()) {
	a.mu.Lock()
	a.entries = append(a.entries, afterEntry{d, fn})
	a.mu.Unlock()
}

func (a *afterRecorder) fire(d time.Duration) int {
	a.mu.Lock()
	var fns []func()
	kept := a.entries[:0]
	for _, e := range a.entries {
		if e.d == d {
			fns = append(fns, e.fn)
		} else {
			kept = append(kept, e)
		}
	}
	a.entries = kept
	a.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

func (a *afterRecorder) scheduled(d time.Duration) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.entries {
		if e.d == d {
			n++
		}
	}
	return n
}

// --- helpers ---

func groundPick(lon, lat float64) scene.PickResult {
	return scene.PickResult{Ground: &geom.Coordinate{Lon: lon, Lat: lat}}
}

func validPolygon() geom.Geometry {
	return geom.Geometry{
		Type: geom.TypePolygon,
		Polygon: [][][]float64{{
			{-1.64, 42.81}, {-1.63, 42.81}, {-1.63, 42.82}, {-1.64, 42.82}, {-1.64, 42.81},
		}},
	}
}

func candidateWithGeometry(ref string) cadastral.Candidate {
	return cadastral.Candidate{
		CadastralReference: ref,
		Municipality:       "Pamplona",
		Province:           "Navarra",
		Geometry:           validPolygon(),
	}
}

func newTestWorkflow(t *testing.T, lookup CadastralLookup, creator ParcelCreator) (*Workflow, *fakeScene, *afterRecorder) {
	t.Helper()
	scn := &fakeScene{pick: groundPick(-1.635, 42.815)}
	rec := &afterRecorder{}
	w := New(Config{Scene: scn, Lookup: lookup, Creator: creator})
	w.after = rec.after
	t.Cleanup(w.Close)
	return w, scn, rec
}

func waitState(t *testing.T, w *Workflow, want State) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := w.Snapshot()
		if snap.State == want {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %v (now %v)", want, w.Snapshot().State)
	return Snapshot{}
}

// --- scenarios ---

func TestSingleCandidateReachesConfirmation(t *testing.T) {
	cand := candidateWithGeometry("31900A00100023")
	lookup := &fakeLookup{res: cadastral.NewResult([]cadastral.Candidate{cand})}
	w, _, _ := newTestWorkflow(t, lookup, &fakeCreator{})

	if !w.HandleClick(scene.ScreenClick{X: 10, Y: 20}) {
		t.Fatal("click on empty ground must be accepted")
	}
	snap := waitState(t, w, StateAwaitingConfirmation)

	if snap.Pending == nil {
		t.Fatal("expected a pending parcel")
	}
	want := geom.AreaHectares(cand.Geometry)
	if snap.Pending.AreaHectares != want {
		t.Fatalf("area mismatch: got %v want %v", snap.Pending.AreaHectares, want)
	}
	if want <= 0 {
		t.Fatal("test geometry should have positive area")
	}
	if len(snap.Candidates) != 0 {
		t.Fatal("candidate list and pending parcel must never coexist")
	}
}

func TestMultipleCandidatesRequireSelection(t *testing.T) {
	cands := []cadastral.Candidate{
		candidateWithGeometry("REF-0"),
		candidateWithGeometry("REF-1"),
		candidateWithGeometry("REF-2"),
	}
	lookup := &fakeLookup{res: cadastral.NewResult(cands)}
	w, _, _ := newTestWorkflow(t, lookup, &fakeCreator{})

	w.HandleClick(scene.ScreenClick{})
	snap := waitState(t, w, StateCandidateSelection)
	if len(snap.Candidates) != 3 {
		t.Fatalf("got %d candidates, want 3", len(snap.Candidates))
	}
	if snap.Pending != nil {
		t.Fatal("no pending parcel may exist during selection")
	}

	if !w.SelectCandidate(1) {
		t.Fatal("selecting a listed candidate must succeed")
	}
	snap = waitState(t, w, StateAwaitingConfirmation)
	if snap.Pending.Candidate.CadastralReference != "REF-1" {
		t.Fatalf("staged wrong candidate: %s", snap.Pending.Candidate.CadastralReference)
	}
}

func TestCandidateWithoutGeometryWarnsAndIdles(t *testing.T) {
	cand := cadastral.Candidate{CadastralReference: "REF-NOGEO", Municipality: "Bilbao"}
	lookup := &fakeLookup{res: cadastral.NewResult([]cadastral.Candidate{cand})}
	w, _, _ := newTestWorkflow(t, lookup, &fakeCreator{})

	w.HandleClick(scene.ScreenClick{})
	snap := waitState(t, w, StateIdle)
	if snap.Pending != nil {
		t.Fatal("no pending parcel may survive geometry validation failure")
	}
	if snap.Notification == nil || snap.Notification.Severity != errclass.SeverityWarning {
		t.Fatalf("expected warning notification, got %+v", snap.Notification)
	}
}

func TestLookupTimeoutNotifiesWithLongClearDelay(t *testing.T) {
	lookup := &fakeLookup{err: context.DeadlineExceeded}
	w, _, rec := newTestWorkflow(t, lookup, &fakeCreator{})

	w.HandleClick(scene.ScreenClick{})
	snap := waitState(t, w, StateIdle)
	if snap.Notification == nil {
		t.Fatal("expected a notification")
	}
	if snap.Notification.Severity != errclass.SeverityError {
		t.Fatalf("severity: got %v want error", snap.Notification.Severity)
	}
	if snap.Notification.ClearDelay != 8*time.Second {
		t.Fatalf("clear delay: got %v want 8s", snap.Notification.ClearDelay)
	}

	// firing the scheduled clear removes the notification
	if n := rec.fire(8 * time.Second); n != 1 {
		t.Fatalf("expected exactly one clear timer, fired %d", n)
	}
	if w.Snapshot().Notification != nil {
		t.Fatal("notification should have cleared")
	}
}

func TestConfirmSubmitsAndSchedulesOneReload(t *testing.T) {
	cand := candidateWithGeometry("31900A00100023")
	lookup := &fakeLookup{res: cadastral.NewResult([]cadastral.Candidate{cand})}
	creator := &fakeCreator{created: parcels.Created{ID: "urn:ngsi-ld:AgriParcel:1"}}
	w, scn, rec := newTestWorkflow(t, lookup, creator)

	w.HandleClick(scene.ScreenClick{})
	snap := waitState(t, w, StateAwaitingConfirmation)
	area := snap.Pending.AreaHectares

	if !w.Confirm() {
		t.Fatal("confirm must be accepted in AwaitingConfirmation")
	}
	snap = waitState(t, w, StateIdle)

	if snap.Notification == nil || snap.Notification.Severity != errclass.SeveritySuccess {
		t.Fatalf("expected success notification, got %+v", snap.Notification)
	}
	msg := snap.Notification.Message
	if !strings.Contains(msg, "31900A00100023") {
		t.Fatalf("success message must name the reference: %q", msg)
	}

	creator.mu.Lock()
	sub := creator.last
	creator.mu.Unlock()
	if sub.AreaHectares != area || sub.Category != parcels.CategoryCadastral {
		t.Fatalf("unexpected submission: %+v", sub)
	}
	if !sub.AnalyticsEnabled || sub.CropType != "" {
		t.Fatalf("submission defaults wrong: %+v", sub)
	}

	if got := rec.scheduled(reloadDelay); got != 1 {
		t.Fatalf("expected exactly one reload scheduled, got %d", got)
	}
	rec.fire(reloadDelay)
	if scn.reloads.Load() != 1 {
		t.Fatalf("expected one reload, got %d", scn.reloads.Load())
	}
}

func TestSubmitFailureReturnsToIdleWithError(t *testing.T) {
	cand := candidateWithGeometry("REF-FAIL")
	lookup := &fakeLookup{res: cadastral.NewResult([]cadastral.Candidate{cand})}
	creator := &fakeCreator{err: &errclass.StatusError{StatusCode: 503}}
	w, scn, rec := newTestWorkflow(t, lookup, creator)

	w.HandleClick(scene.ScreenClick{})
	waitState(t, w, StateAwaitingConfirmation)
	w.Confirm()
	snap := waitState(t, w, StateIdle)

	if snap.Notification == nil || snap.Notification.Severity != errclass.SeverityError {
		t.Fatalf("expected error notification, got %+v", snap.Notification)
	}
	if rec.scheduled(reloadDelay) != 0 {
		t.Fatal("no reload may be scheduled on failure")
	}
	if scn.reloads.Load() != 0 {
		t.Fatal("scene must not reload on failure")
	}
}

func TestEmptyResultNotifiesNotFound(t *testing.T) {
	lookup := &fakeLookup{res: cadastral.Result{Kind: cadastral.ResultEmpty}}
	w, _, _ := newTestWorkflow(t, lookup, &fakeCreator{})

	w.HandleClick(scene.ScreenClick{})
	snap := waitState(t, w, StateIdle)
	if snap.Notification == nil || snap.Notification.Severity != errclass.SeverityWarning {
		t.Fatalf("expected not-found warning, got %+v", snap.Notification)
	}
}

func TestCancelIsCleanFromEitherState(t *testing.T) {
	cands := []cadastral.Candidate{candidateWithGeometry("A"), candidateWithGeometry("B")}
	lookup := &fakeLookup{res: cadastral.NewResult(cands)}
	w, _, _ := newTestWorkflow(t, lookup, &fakeCreator{})

	// cancel out of candidate selection
	w.HandleClick(scene.ScreenClick{})
	waitState(t, w, StateCandidateSelection)
	if !w.Cancel() {
		t.Fatal("cancel must be accepted during selection")
	}
	snap := w.Snapshot()
	if snap.State != StateIdle || snap.Notification != nil || snap.Pending != nil || len(snap.Candidates) != 0 {
		t.Fatalf("cancel left residue: %+v", snap)
	}

	// cancel out of confirmation
	w.HandleClick(scene.ScreenClick{})
	waitState(t, w, StateCandidateSelection)
	w.SelectCandidate(0)
	waitState(t, w, StateAwaitingConfirmation)
	if !w.Cancel() {
		t.Fatal("cancel must be accepted during confirmation")
	}
	snap = w.Snapshot()
	if snap.State != StateIdle || snap.Notification != nil || snap.Pending != nil {
		t.Fatalf("cancel left residue: %+v", snap)
	}

	// cancel in idle is a no-op
	if w.Cancel() {
		t.Fatal("cancel must be rejected in idle")
	}
}

func TestSecondClickRejectedWhileQuerying(t *testing.T) {
	lookup := &fakeLookup{res: cadastral.NewResult(nil), block: make(chan struct{})}
	w, _, _ := newTestWorkflow(t, lookup, &fakeCreator{})

	if !w.HandleClick(scene.ScreenClick{}) {
		t.Fatal("first click must be accepted")
	}
	if w.HandleClick(scene.ScreenClick{}) {
		t.Fatal("second click must be rejected while querying")
	}
	close(lookup.block)
	waitState(t, w, StateIdle)
	if lookup.calls.Load() != 1 {
		t.Fatalf("lookup called %d times, want 1", lookup.calls.Load())
	}
}

func TestElapsedTickerAndSlowHint(t *testing.T) {
	lookup := &fakeLookup{res: cadastral.NewResult(nil), block: make(chan struct{})}
	w, _, _ := newTestWorkflow(t, lookup, &fakeCreator{})
	w.tickInterval = 2 * time.Millisecond

	w.HandleClick(scene.ScreenClick{})

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := w.Snapshot()
		if snap.ElapsedSeconds >= slowHintSeconds {
			if !snap.SlowHint {
				t.Fatal("slow hint must be on once elapsed reaches the threshold")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("ticker never advanced: %+v", snap)
		}
		time.Sleep(time.Millisecond)
	}

	close(lookup.block)
	snap := waitState(t, w, StateIdle)
	if snap.ElapsedSeconds != 0 || snap.SlowHint {
		t.Fatalf("elapsed state must reset on completion: %+v", snap)
	}
}

func TestCloseDiscardsInFlightResult(t *testing.T) {
	cand := candidateWithGeometry("LATE")
	lookup := &fakeLookup{res: cadastral.NewResult([]cadastral.Candidate{cand}), block: make(chan struct{})}
	scn := &fakeScene{pick: groundPick(-1.6, 42.8)}
	w := New(Config{Scene: scn, Lookup: lookup, Creator: &fakeCreator{}})

	w.HandleClick(scene.ScreenClick{})
	w.Close()
	close(lookup.block)

	time.Sleep(20 * time.Millisecond)
	snap := w.Snapshot()
	if snap.Pending != nil || snap.State == StateAwaitingConfirmation {
		t.Fatalf("result applied after close: %+v", snap)
	}
}

func TestDisabledToggleBlocksClicks(t *testing.T) {
	lookup := &fakeLookup{res: cadastral.NewResult(nil)}
	scn := &fakeScene{pick: groundPick(-1.6, 42.8)}
	toggle := NewToggleStore(false)
	w := New(Config{Scene: scn, Lookup: lookup, Creator: &fakeCreator{}, Toggle: toggle})
	t.Cleanup(w.Close)

	if w.HandleClick(scene.ScreenClick{}) {
		t.Fatal("click must be rejected while toggle is off")
	}
	if lookup.calls.Load() != 0 {
		t.Fatal("lookup must not run while toggle is off")
	}

	toggle.Set(true)
	if !w.HandleClick(scene.ScreenClick{}) {
		t.Fatal("click must be accepted once toggle is on")
	}
}

func TestSubscribersSeeTransitions(t *testing.T) {
	cand := candidateWithGeometry("SUB")
	lookup := &fakeLookup{res: cadastral.NewResult([]cadastral.Candidate{cand})}
	w, _, _ := newTestWorkflow(t, lookup, &fakeCreator{})

	var mu sync.Mutex
	var states []State
	unsub := w.Subscribe(func(s Snapshot) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
	})
	defer unsub()

	w.HandleClick(scene.ScreenClick{})
	waitState(t, w, StateAwaitingConfirmation)

	mu.Lock()
	defer mu.Unlock()
	if len(states) < 2 || states[0] != StateQuerying {
		t.Fatalf("unexpected observed states: %v", states)
	}
}
