package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	providerRepo "github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/database/repository/provider"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
)

// fakeGeoIndex answers queries from a scripted map of radius -> matches.
type fakeGeoIndex struct {
	mu      sync.Mutex
	byRange map[float64][]models.ProviderMatch
	queries []providerRepo.GeoQuery
}

func (g *fakeGeoIndex) Query(_ context.Context, q providerRepo.GeoQuery) ([]models.ProviderMatch, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queries = append(g.queries, q)
	return append([]models.ProviderMatch(nil), g.byRange[q.RadiusKm]...), nil
}

func (g *fakeGeoIndex) GetByID(_ context.Context, providerID string) (*models.Provider, error) {
	return &models.Provider{ID: providerID}, nil
}

func (g *fakeGeoIndex) recordedQueries() []providerRepo.GeoQuery {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]providerRepo.GeoQuery(nil), g.queries...)
}

// recordingMatchEvents captures engine callbacks.
type recordingMatchEvents struct {
	mu       sync.Mutex
	found    [][]models.ProviderMatch
	timeouts []string
}

func (e *recordingMatchEvents) OnProvidersFound(_ string, matches []models.ProviderMatch) {
	e.mu.Lock()
	e.found = append(e.found, matches)
	e.mu.Unlock()
}

func (e *recordingMatchEvents) OnSearchTimeout(requestID string) {
	e.mu.Lock()
	e.timeouts = append(e.timeouts, requestID)
	e.mu.Unlock()
}

func (e *recordingMatchEvents) foundCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.found)
}

func (e *recordingMatchEvents) timeoutCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timeouts)
}

func searchingRequest(id string) *models.ServiceRequest {
	return &models.ServiceRequest{
		ID:          id,
		ClientID:    "client-1",
		ServiceType: models.ServiceTire,
		Origin:      models.Location{Geo: models.NewGeoPoint(-23.55, -46.63)},
		Status:      models.StatusSearching,
	}
}

func newTestEngine(geo *fakeGeoIndex, events MatchEvents, ladder []float64) *DefaultMatchingEngine {
	return &DefaultMatchingEngine{
		Geo:            geo,
		Events:         events,
		Logger:         zap.NewNop(),
		RadiusLadderKm: ladder,
		Dwell:          20 * time.Millisecond,
		Cooldown:       5 * time.Millisecond,
	}
}

func TestSearchClimbsRadiusLadder(t *testing.T) {
	geo := &fakeGeoIndex{byRange: map[float64][]models.ProviderMatch{
		15: {{ProviderID: "prov-1", DistanceKm: 12}},
	}}
	events := &recordingMatchEvents{}
	engine := newTestEngine(geo, events, []float64{5, 10, 15})

	req := searchingRequest("req-1")
	if _, err := engine.StartSearch(req); err != nil {
		t.Fatalf("start search failed: %v", err)
	}
	defer engine.EndSearch("req-1")

	waitFor(t, time.Second, func() bool { return events.foundCount() >= 1 })

	queries := geo.recordedQueries()
	if len(queries) < 3 {
		t.Fatalf("expected at least 3 queries, got %d", len(queries))
	}
	for i, want := range []float64{5, 10, 15} {
		if queries[i].RadiusKm != want {
			t.Fatalf("query %d radius = %v, want %v", i, queries[i].RadiusKm, want)
		}
	}

	session, ok := engine.Session("req-1")
	if !ok {
		t.Fatalf("session gone while provider found")
	}
	if session.RequestID != "req-1" || len(session.RadiusLadderKm) != 3 {
		t.Fatalf("unexpected session snapshot: %+v", session)
	}
}

func TestSearchTimesOutWhenLadderExhausted(t *testing.T) {
	geo := &fakeGeoIndex{byRange: map[float64][]models.ProviderMatch{}}
	events := &recordingMatchEvents{}
	engine := newTestEngine(geo, events, []float64{5, 10})

	if _, err := engine.StartSearch(searchingRequest("req-1")); err != nil {
		t.Fatalf("start search failed: %v", err)
	}

	waitFor(t, time.Second, func() bool { return events.timeoutCount() == 1 })
	if events.foundCount() != 0 {
		t.Fatalf("timeout search still reported providers")
	}
}

func TestDeclineExcludesProviderFromNextQuery(t *testing.T) {
	geo := &fakeGeoIndex{byRange: map[float64][]models.ProviderMatch{
		5:  {{ProviderID: "prov-1", DistanceKm: 3}},
		10: {{ProviderID: "prov-1", DistanceKm: 3}, {ProviderID: "prov-2", DistanceKm: 8}},
	}}
	events := &recordingMatchEvents{}
	engine := newTestEngine(geo, events, []float64{5, 10})
	engine.Dwell = 10 * time.Second // decline must cut this short

	req := searchingRequest("req-1")
	if _, err := engine.StartSearch(req); err != nil {
		t.Fatalf("start search failed: %v", err)
	}
	defer engine.EndSearch("req-1")

	waitFor(t, time.Second, func() bool { return events.foundCount() == 1 })

	engine.Decline("req-1", "prov-1")

	// The decline forces expansion well before the 10s dwell elapses, and
	// the next query must carry the exclusion.
	waitFor(t, time.Second, func() bool { return len(geo.recordedQueries()) >= 2 })
	queries := geo.recordedQueries()
	last := queries[len(queries)-1]
	found := false
	for _, id := range last.Excluding {
		if id == "prov-1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("declined provider missing from query exclusions: %+v", last.Excluding)
	}

	// prov-1 never comes back; prov-2 is offered.
	waitFor(t, time.Second, func() bool { return events.foundCount() >= 2 })
	events.mu.Lock()
	second := events.found[1]
	events.mu.Unlock()
	for _, m := range second {
		if m.ProviderID == "prov-1" {
			t.Fatalf("declined provider was re-offered")
		}
	}
}

func TestStartSearchCarriesPersistedExclusions(t *testing.T) {
	geo := &fakeGeoIndex{byRange: map[float64][]models.ProviderMatch{
		5: {{ProviderID: "prov-1", DistanceKm: 2}, {ProviderID: "prov-2", DistanceKm: 4}},
	}}
	events := &recordingMatchEvents{}
	engine := newTestEngine(geo, events, []float64{5})

	req := searchingRequest("req-1")
	req.Exclude("prov-1")
	if _, err := engine.StartSearch(req); err != nil {
		t.Fatalf("start search failed: %v", err)
	}
	defer engine.EndSearch("req-1")

	waitFor(t, time.Second, func() bool { return events.foundCount() >= 1 })
	events.mu.Lock()
	first := events.found[0]
	events.mu.Unlock()
	for _, m := range first {
		if m.ProviderID == "prov-1" {
			t.Fatalf("excluded provider leaked into matches")
		}
	}
}

func TestEndSearchStopsSession(t *testing.T) {
	geo := &fakeGeoIndex{byRange: map[float64][]models.ProviderMatch{}}
	events := &recordingMatchEvents{}
	engine := newTestEngine(geo, events, []float64{5, 10, 15})
	engine.Dwell = 10 * time.Second

	if _, err := engine.StartSearch(searchingRequest("req-1")); err != nil {
		t.Fatalf("start search failed: %v", err)
	}
	engine.EndSearch("req-1")

	if _, ok := engine.Session("req-1"); ok {
		t.Fatalf("session survived EndSearch")
	}

	// No timeout fires for a discarded session.
	time.Sleep(50 * time.Millisecond)
	if events.timeoutCount() != 0 {
		t.Fatalf("discarded session still timed out")
	}
}

func TestStartSearchReplacesPreviousSession(t *testing.T) {
	geo := &fakeGeoIndex{byRange: map[float64][]models.ProviderMatch{}}
	events := &recordingMatchEvents{}
	engine := newTestEngine(geo, events, []float64{5})
	engine.Dwell = 10 * time.Second

	if _, err := engine.StartSearch(searchingRequest("req-1")); err != nil {
		t.Fatalf("first search failed: %v", err)
	}
	first, _ := engine.Session("req-1")

	if _, err := engine.StartSearch(searchingRequest("req-1")); err != nil {
		t.Fatalf("second search failed: %v", err)
	}
	defer engine.EndSearch("req-1")

	second, ok := engine.Session("req-1")
	if !ok {
		t.Fatalf("no session after restart")
	}
	if first != nil && second.SessionID == first.SessionID {
		t.Fatalf("restart kept the old session")
	}
}
