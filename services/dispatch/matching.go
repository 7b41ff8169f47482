package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	providerRepo "github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/database/repository/provider"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
)

// MatchEvents receives the asynchronous outcomes of a search session. The
// lifecycle orchestrator implements it.
type MatchEvents interface {
	OnProvidersFound(requestID string, matches []models.ProviderMatch)
	OnSearchTimeout(requestID string)
}

// MatchingEngine owns the progressive radius-expansion search for chamados
// in searching status.
type MatchingEngine interface {
	// StartSearch launches a background search session for the request.
	// Any previous session for the same request is discarded first.
	StartSearch(req *models.ServiceRequest) (*models.SearchSession, error)
	// Decline excludes a provider and forces immediate radius expansion.
	// The exclusion is applied before the next GeoIndex query is issued.
	Decline(requestID, providerID string)
	// EndSearch discards the session because the request left searching
	// (a provider engaged, or the request was canceled).
	EndSearch(requestID string)
	// Session returns a snapshot of the current session, if any.
	Session(requestID string) (*models.SearchSession, bool)
}

// DefaultMatchingEngine implements MatchingEngine. One goroutine per active
// session walks the radius ladder; declines poke it awake.
type DefaultMatchingEngine struct {
	Geo            providerRepo.GeoIndex
	Events         MatchEvents
	Cache          *redis.Client // optional session mirror for ops visibility
	Logger         *zap.Logger
	RadiusLadderKm []float64
	Dwell          time.Duration
	Cooldown       time.Duration

	mu      sync.Mutex
	runners map[string]*searchRunner
}

const sessionCacheTTL = time.Hour

func (e *DefaultMatchingEngine) StartSearch(req *models.ServiceRequest) (*models.SearchSession, error) {
	if len(e.RadiusLadderKm) == 0 {
		return nil, fmt.Errorf("matching engine has no radius ladder configured")
	}

	now := time.Now()
	session := models.SearchSession{
		SessionID:           uuid.New().String(),
		RequestID:           req.ID,
		ServiceType:         req.ServiceType,
		Origin:              req.Origin.Geo,
		RadiusLadderKm:      append([]float64(nil), e.RadiusLadderKm...),
		CurrentIndex:        0,
		State:               models.SearchSearching,
		ExcludedProviderIDs: append([]string(nil), req.ExcludedProviderIDs...),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	ctx, cancel := context.WithCancel(context.Background())
	runner := &searchRunner{
		engine:  e,
		session: session,
		wake:    make(chan struct{}, 1),
		cancel:  cancel,
	}

	e.mu.Lock()
	if e.runners == nil {
		e.runners = make(map[string]*searchRunner)
	}
	if prev, ok := e.runners[req.ID]; ok {
		prev.stop(models.SearchCanceled)
	}
	e.runners[req.ID] = runner
	e.mu.Unlock()

	go runner.run(ctx)
	return &session, nil
}

func (e *DefaultMatchingEngine) Decline(requestID, providerID string) {
	e.mu.Lock()
	runner, ok := e.runners[requestID]
	e.mu.Unlock()
	if !ok {
		return
	}
	runner.exclude(providerID)
}

func (e *DefaultMatchingEngine) EndSearch(requestID string) {
	e.mu.Lock()
	runner, ok := e.runners[requestID]
	if ok {
		delete(e.runners, requestID)
	}
	e.mu.Unlock()
	if ok {
		runner.stop(models.SearchCanceled)
	}
}

func (e *DefaultMatchingEngine) Session(requestID string) (*models.SearchSession, bool) {
	e.mu.Lock()
	runner, ok := e.runners[requestID]
	e.mu.Unlock()
	if !ok {
		return nil, false
	}
	snapshot := runner.snapshot()
	return &snapshot, true
}

// searchRunner drives one SearchSession. All session mutations happen under
// mu; events are emitted with the lock released so a caller holding the
// request lock can always reach the engine.
type searchRunner struct {
	engine *DefaultMatchingEngine
	mu     sync.Mutex
	done   bool
	wake   chan struct{}
	cancel context.CancelFunc

	session models.SearchSession
}

func (r *searchRunner) run(ctx context.Context) {
	logger := r.engine.Logger
	defer r.cancel()

	for {
		query, proceed := r.beginQuery()
		if !proceed {
			return
		}

		matches, err := r.engine.Geo.Query(ctx, query)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warn("geo index query failed, retrying after cooldown",
				zap.String("requestId", r.session.RequestID),
				zap.Float64("radiusKm", query.RadiusKm),
				zap.Error(err))
			// A decline arriving during backoff cuts it short; either way
			// the next iteration requeries with exclusions applied.
			r.sleep(ctx, r.engine.Cooldown)
			if ctx.Err() != nil {
				return
			}
			continue
		}

		matches = r.filterExcluded(matches)
		if len(matches) > 0 {
			r.setState(models.SearchProviderFound)
			r.engine.Events.OnProvidersFound(r.session.RequestID, matches)
		}

		// Dwell: give an engaged-but-slow provider time to respond. A
		// decline cuts the wait short and forces expansion right away.
		forced := !r.sleep(ctx, r.engine.Dwell)
		if ctx.Err() != nil {
			return
		}

		if !forced {
			r.setCooldown()
			r.sleep(ctx, r.engine.Cooldown)
			if ctx.Err() != nil {
				return
			}
		}

		if !r.advance() {
			r.setState(models.SearchTimeout)
			r.engine.Events.OnSearchTimeout(r.session.RequestID)
			return
		}
	}
}

// beginQuery snapshots the next GeoIndex query. Returns false once the
// runner is stopped.
func (r *searchRunner) beginQuery() (providerRepo.GeoQuery, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return providerRepo.GeoQuery{}, false
	}
	r.session.State = models.SearchSearching
	r.session.UpdatedAt = time.Now()
	r.mirrorLocked()
	return providerRepo.GeoQuery{
		ServiceType: r.session.ServiceType,
		Origin:      r.session.Origin,
		RadiusKm:    r.session.CurrentRadiusKm(),
		Excluding:   append([]string(nil), r.session.ExcludedProviderIDs...),
	}, true
}

// sleep waits for d, a wake poke, or cancellation. Returns true when the
// full duration elapsed, false when a decline forced an early exit.
func (r *searchRunner) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-r.wake:
		return false
	case <-timer.C:
		return true
	}
}

func (r *searchRunner) filterExcluded(matches []models.ProviderMatch) []models.ProviderMatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := matches[:0]
	for _, m := range matches {
		excluded := false
		for _, id := range r.session.ExcludedProviderIDs {
			if id == m.ProviderID {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, m)
		}
	}
	return out
}

// exclude records the provider and forces expansion regardless of cooldown.
// A decline must never leave the client waiting on a dead lead.
func (r *searchRunner) exclude(providerID string) {
	r.mu.Lock()
	already := false
	for _, id := range r.session.ExcludedProviderIDs {
		if id == providerID {
			already = true
			break
		}
	}
	if !already {
		r.session.ExcludedProviderIDs = append(r.session.ExcludedProviderIDs, providerID)
	}
	r.session.State = models.SearchExpandingRadius
	r.session.UpdatedAt = time.Now()
	r.mirrorLocked()
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// advance climbs the ladder; returns false when it is exhausted.
func (r *searchRunner) advance() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.CurrentIndex++
	if r.session.CurrentIndex >= len(r.session.RadiusLadderKm) {
		return false
	}
	r.session.State = models.SearchExpandingRadius
	r.session.UpdatedAt = time.Now()
	r.mirrorLocked()
	return true
}

func (r *searchRunner) setState(s models.SearchState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.State = s
	r.session.UpdatedAt = time.Now()
	r.mirrorLocked()
}

func (r *searchRunner) setCooldown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.State = models.SearchWaitingCooldown
	r.session.CooldownDeadline = time.Now().Add(r.engine.Cooldown)
	r.session.UpdatedAt = time.Now()
	r.mirrorLocked()
}

func (r *searchRunner) stop(s models.SearchState) {
	r.mu.Lock()
	r.done = true
	r.session.State = s
	r.session.UpdatedAt = time.Now()
	r.mirrorLocked()
	r.mu.Unlock()
	r.cancel()
}

func (r *searchRunner) snapshot() models.SearchSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.session
	out.RadiusLadderKm = append([]float64(nil), r.session.RadiusLadderKm...)
	out.ExcludedProviderIDs = append([]string(nil), r.session.ExcludedProviderIDs...)
	return out
}

// mirrorLocked writes the session to the cache for ops visibility. Callers
// hold r.mu. Best effort only.
func (r *searchRunner) mirrorLocked() {
	if r.engine.Cache == nil {
		return
	}
	data, err := json.Marshal(r.session)
	if err != nil {
		return
	}
	ctx, cancelFn := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelFn()
	key := "search:session:" + r.session.RequestID
	if err := r.engine.Cache.Set(ctx, key, data, sessionCacheTTL).Err(); err != nil {
		r.engine.Logger.Debug("failed to mirror search session", zap.Error(err))
	}
}
