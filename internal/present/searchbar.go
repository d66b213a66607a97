package present

import (
	"context"
	"log/slog"
	"sync"

	"github.com/agrimap/parcel-onboarding/internal/geocode"
	"github.com/agrimap/parcel-onboarding/internal/scene"
)

// Key is the subset of keyboard input the search bar reacts to.
type Key int

const (
	KeyArrowUp Key = iota
	KeyArrowDown
	KeyEnter
	KeyEscape
)

// Searcher is what the bar needs from the geocode client.
type Searcher interface {
	Search(ctx context.Context, query string) ([]geocode.Place, error)
}

// SearchBar debounces free-text input into place queries and tracks a
// highlighted result the keyboard navigates. Selecting a result flies
// the camera to its bounding box and resets the bar.
type SearchBar struct {
	logger   *slog.Logger
	searcher Searcher
	scene    scene.Scene
	debounce *geocode.Debouncer

	mu        sync.Mutex
	query     string
	results   []geocode.Place
	highlight int
	expanded  bool
}

func NewSearchBar(logger *slog.Logger, searcher Searcher, sc scene.Scene, debounce *geocode.Debouncer) *SearchBar {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if debounce == nil {
		debounce = geocode.NewDebouncer(0)
	}
	return &SearchBar{logger: logger, searcher: searcher, scene: sc, debounce: debounce, highlight: -1}
}

// SetQuery records the current text and schedules a debounced search.
// Queries below the minimum length clear the result list immediately.
func (b *SearchBar) SetQuery(ctx context.Context, q string) {
	b.mu.Lock()
	b.query = q
	b.expanded = true
	if len([]rune(q)) < geocode.MinQueryLen {
		b.results = nil
		b.highlight = -1
		b.mu.Unlock()
		b.debounce.Cancel()
		return
	}
	b.mu.Unlock()

	b.debounce.Trigger(func() { b.runSearch(ctx, q) })
}

func (b *SearchBar) runSearch(ctx context.Context, q string) {
	places, err := b.searcher.Search(ctx, q)
	if err != nil {
		b.logger.Warn("place search failed", "query", q, "err", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	// The text moved on while the query was in flight.
	if b.query != q {
		return
	}
	b.results = places
	if len(places) > 0 {
		b.highlight = 0
	} else {
		b.highlight = -1
	}
}

// HandleKey applies one keystroke. Enter on a highlighted result flies
// the camera and collapses the bar; Escape collapses without flying.
func (b *SearchBar) HandleKey(k Key) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch k {
	case KeyArrowDown:
		if len(b.results) > 0 && b.highlight < len(b.results)-1 {
			b.highlight++
		}
	case KeyArrowUp:
		if b.highlight > 0 {
			b.highlight--
		}
	case KeyEnter:
		if b.highlight >= 0 && b.highlight < len(b.results) {
			b.selectLocked(b.results[b.highlight])
		}
	case KeyEscape:
		b.resetLocked()
	}
}

// Select picks a result by index, as a pointer click on the list would.
func (b *SearchBar) Select(i int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= len(b.results) {
		return
	}
	b.selectLocked(b.results[i])
}

func (b *SearchBar) selectLocked(p geocode.Place) {
	if b.scene != nil {
		// Nominatim order is south, north, west, east.
		b.scene.FlyTo(scene.BoundingBox{
			South: p.BoundingBox[0],
			North: p.BoundingBox[1],
			West:  p.BoundingBox[2],
			East:  p.BoundingBox[3],
		})
	}
	b.logger.Info("place selected", "name", p.DisplayName)
	b.resetLocked()
}

func (b *SearchBar) resetLocked() {
	b.query = ""
	b.results = nil
	b.highlight = -1
	b.expanded = false
	b.debounce.Cancel()
}

// View is the render-ready state of the bar.
type View struct {
	Query     string
	Results   []geocode.Place
	Highlight int
	Expanded  bool
}

func (b *SearchBar) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]geocode.Place, len(b.results))
	copy(out, b.results)
	return View{Query: b.query, Results: out, Highlight: b.highlight, Expanded: b.expanded}
}
