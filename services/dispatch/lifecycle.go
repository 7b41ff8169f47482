package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	requestRepo "github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/database/repository/request"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/services/notification"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/services/realtime"
)

// DefaultLifecycleService implements LifecycleService. All mutations to one
// chamado are serialized through a per-request lock; distinct requests are
// fully independent.
type DefaultLifecycleService struct {
	Repo        requestRepo.RequestRepository
	Matching    MatchingEngine
	Payments    *PaymentCoordinator
	Broadcaster realtime.Broadcaster
	Hub         *realtime.Hub
	Notifier    notification.NotificationService
	Nudger      RetryNudger
	Logger      *zap.Logger

	// Delay before the "still searching?" nudge after a search times out.
	NudgeDelay time.Duration

	locks sync.Map // requestID -> *sync.Mutex
}

func (s *DefaultLifecycleService) lockFor(id string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// mutation inspects and mutates the aggregate in memory. Returning
// changed=false skips the write (and any broadcast).
type mutation func(req *models.ServiceRequest) (changed bool, err error)

// mutate is the single write path: lock, load, apply, persist, broadcast.
// A mutation that fails leaves the stored aggregate untouched.
func (s *DefaultLifecycleService) mutate(ctx context.Context, id string, fn mutation) (*models.ServiceRequest, error) {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	req, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, requestRepo.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrExternalUnavailable, err)
	}

	before := models.NormalizeStatus(req.Status)
	changed, err := fn(req)
	if err != nil {
		return nil, err
	}
	if !changed {
		return req, nil
	}

	req.UpdatedAt = time.Now()
	if err := s.Repo.Update(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalUnavailable, err)
	}

	if after := models.NormalizeStatus(req.Status); after != before {
		s.broadcast(ctx, req)
	}
	return req, nil
}

// applyStatus moves the aggregate along the lifecycle graph or rejects the
// edge before any mutation.
func applyStatus(req *models.ServiceRequest, to models.RequestStatus) error {
	from := models.NormalizeStatus(req.Status)
	to = models.NormalizeStatus(to)
	if !CanTransition(from, to) {
		return newTransitionError(req.ID, from, to)
	}
	req.Status = to
	return nil
}

func (s *DefaultLifecycleService) broadcast(ctx context.Context, req *models.ServiceRequest) {
	ev := models.StatusEvent{
		RequestID:  req.ID,
		Status:     models.NormalizeStatus(req.Status),
		ProviderID: req.ProviderID,
		UpdatedAt:  req.UpdatedAt,
	}
	s.Broadcaster.Publish(ctx, ev)
	if ev.Status.IsTerminal() && s.Hub != nil {
		s.Hub.Forget(req.ID)
	}
}

// CreateRequest opens a chamado and immediately starts the provider search.
func (s *DefaultLifecycleService) CreateRequest(ctx context.Context, input CreateRequestInput) (*models.ServiceRequest, error) {
	if input.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client id", ErrInvalidValue)
	}
	if !input.ServiceType.Valid() {
		return nil, fmt.Errorf("%w: unknown service type %q", ErrInvalidValue, input.ServiceType)
	}
	if len(input.Origin.Geo.Coordinates) != 2 {
		return nil, fmt.Errorf("%w: origin coordinates are required", ErrInvalidValue)
	}
	if input.ServiceType.RequiresDestination() {
		if input.Destination == nil || len(input.Destination.Geo.Coordinates) != 2 {
			return nil, fmt.Errorf("%w: %s requires a destination", ErrInvalidValue, input.ServiceType)
		}
	} else if input.Destination != nil {
		return nil, fmt.Errorf("%w: %s does not take a destination", ErrInvalidValue, input.ServiceType)
	}

	now := time.Now()
	req := &models.ServiceRequest{
		ID:             uuid.New().String(),
		ClientID:       input.ClientID,
		ServiceType:    input.ServiceType,
		Origin:         input.Origin,
		Destination:    input.Destination,
		Status:         models.StatusIdle,
		LastProposalBy: models.PartyNone,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := applyStatus(req, models.StatusSearching); err != nil {
		return nil, err
	}

	if err := s.Repo.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalUnavailable, err)
	}
	s.broadcast(ctx, req)

	if _, err := s.Matching.StartSearch(req); err != nil {
		s.Logger.Error("failed to start provider search",
			zap.String("requestId", req.ID), zap.Error(err))
		return req, fmt.Errorf("failed to start provider search: %w", err)
	}

	s.Logger.Info("chamado created",
		zap.String("requestId", req.ID),
		zap.String("clientId", req.ClientID),
		zap.String("serviceType", string(req.ServiceType)))
	return req, nil
}

func (s *DefaultLifecycleService) GetRequest(ctx context.Context, id string) (*models.ServiceRequest, error) {
	req, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, requestRepo.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrExternalUnavailable, err)
	}
	return req, nil
}

func (s *DefaultLifecycleService) SearchSession(id string) (*models.SearchSession, bool) {
	return s.Matching.Session(id)
}

// Cancel ends a chamado from either side. Allowed from searching through
// in_service; pending_client_confirmation and terminal states refuse it.
func (s *DefaultLifecycleService) Cancel(ctx context.Context, id string, by models.Party, category models.CancelReason, reasonText string) (*models.ServiceRequest, error) {
	req, err := s.mutate(ctx, id, func(req *models.ServiceRequest) (bool, error) {
		// Terminal states refuse a repeat cancel; the original cancellation
		// record must survive.
		if models.NormalizeStatus(req.Status).IsTerminal() {
			return false, newTransitionError(req.ID, req.Status, models.StatusCanceled)
		}
		if err := applyStatus(req, models.StatusCanceled); err != nil {
			return false, err
		}
		req.Cancellation = &models.Cancellation{
			Category:   category,
			ReasonText: reasonText,
			CanceledBy: by,
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	// Interrupt background work. A late provider_found or payment
	// confirmation after this point is dropped: cancel wins.
	s.Matching.EndSearch(id)
	s.Payments.CancelWatch(id)

	s.Logger.Info("chamado canceled",
		zap.String("requestId", id),
		zap.String("by", string(by)),
		zap.String("category", string(category)))
	s.notifyCounterpart(req, by, "Chamado canceled",
		"The request was canceled by the other party.")
	return req, nil
}

// RetrySearch restarts matching after a timeout. The explicit retry clears
// the exclusion set, so previously declining providers may re-enter.
func (s *DefaultLifecycleService) RetrySearch(ctx context.Context, id string) (*models.ServiceRequest, error) {
	req, err := s.mutate(ctx, id, func(req *models.ServiceRequest) (bool, error) {
		if models.NormalizeStatus(req.Status) != models.StatusSearching {
			return false, newTransitionError(req.ID, req.Status, models.StatusSearching)
		}
		// Retry only re-arms an exhausted search. While the ladder is
		// still climbing, clearing exclusions would re-offer providers
		// that just declined.
		if session, ok := s.Matching.Session(req.ID); ok && session.State != models.SearchTimeout {
			return false, fmt.Errorf("%w: search is still in progress", ErrInvalidTransition)
		}
		req.ExcludedProviderIDs = nil
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.Matching.StartSearch(req); err != nil {
		return nil, fmt.Errorf("failed to restart provider search: %w", err)
	}
	s.Logger.Info("search retried", zap.String("requestId", id))
	return req, nil
}

// ProviderEngage is the external accept action: a provider takes the
// chamado. First engagement wins; the session is discarded.
func (s *DefaultLifecycleService) ProviderEngage(ctx context.Context, id, providerID string) (*models.ServiceRequest, error) {
	req, err := s.mutate(ctx, id, func(req *models.ServiceRequest) (bool, error) {
		if providerID == "" {
			return false, fmt.Errorf("%w: missing provider id", ErrInvalidValue)
		}
		if req.IsExcluded(providerID) {
			return false, fmt.Errorf("%w: provider %s already declined this chamado", ErrInvalidTransition, providerID)
		}
		// Explicit guard: the same-state edge is otherwise a no-op, and a
		// second engage must never swap the provider.
		if models.NormalizeStatus(req.Status) != models.StatusSearching {
			return false, newTransitionError(req.ID, req.Status, models.StatusAccepted)
		}
		if err := applyStatus(req, models.StatusAccepted); err != nil {
			return false, err
		}
		req.ProviderID = providerID
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.Matching.EndSearch(id)

	s.notifyClient(req, "Provider on the way",
		"A provider engaged your chamado. You can negotiate the price now.")
	return req, nil
}

// ProviderDecline excludes an offered provider while the search is live and
// forces immediate radius expansion. The exclusion is persisted before the
// engine is poked, so the next query can never re-offer the provider.
func (s *DefaultLifecycleService) ProviderDecline(ctx context.Context, id, providerID string) (*models.ServiceRequest, error) {
	req, err := s.mutate(ctx, id, func(req *models.ServiceRequest) (bool, error) {
		if models.NormalizeStatus(req.Status) != models.StatusSearching {
			return false, fmt.Errorf("%w: declines only apply while searching", ErrInvalidTransition)
		}
		if providerID == "" {
			return false, fmt.Errorf("%w: missing provider id", ErrInvalidValue)
		}
		if session, ok := s.Matching.Session(req.ID); !ok || session.State == models.SearchTimeout {
			// No live offers remain to decline.
			return false, fmt.Errorf("%w: the radius ladder is spent", ErrSearchExhausted)
		}
		if req.IsExcluded(providerID) {
			return false, nil
		}
		req.Exclude(providerID)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.Matching.Decline(id, providerID)
	return req, nil
}

// Propose registers a price proposal. The first proposal on an accepted
// chamado is what begins negotiation.
func (s *DefaultLifecycleService) Propose(ctx context.Context, id string, by models.Party, value float64) (*models.ServiceRequest, error) {
	return s.mutate(ctx, id, func(req *models.ServiceRequest) (bool, error) {
		status := models.NormalizeStatus(req.Status)
		if status != models.StatusAccepted && status != models.StatusNegotiating {
			return false, newTransitionError(req.ID, status, models.StatusNegotiating)
		}
		if status == models.StatusAccepted {
			if err := applyStatus(req, models.StatusNegotiating); err != nil {
				return false, err
			}
		}
		if err := proposeValue(req, by, value); err != nil {
			return false, err
		}
		return true, nil
	})
}

// AcceptProposal accepts the other side's outstanding offer. A repeat
// accept is a no-op: same agreed value, no extra chat entry.
func (s *DefaultLifecycleService) AcceptProposal(ctx context.Context, id string, by models.Party) (*models.ServiceRequest, error) {
	return s.mutate(ctx, id, func(req *models.ServiceRequest) (bool, error) {
		if models.NormalizeStatus(req.Status) != models.StatusNegotiating {
			return false, fmt.Errorf("%w: nothing to accept outside negotiation", ErrInvalidTransition)
		}
		return acceptValue(req, by)
	})
}

func (s *DefaultLifecycleService) SetDirectPayment(ctx context.Context, id string, direct bool) (*models.ServiceRequest, error) {
	return s.mutate(ctx, id, func(req *models.ServiceRequest) (bool, error) {
		if err := setDirectPayment(req, direct); err != nil {
			return false, err
		}
		return true, nil
	})
}

// ConfirmAndProceed is the client-only gate into awaiting_payment. It is
// unreachable without an accepted value.
func (s *DefaultLifecycleService) ConfirmAndProceed(ctx context.Context, id string) (*models.ServiceRequest, error) {
	req, err := s.mutate(ctx, id, func(req *models.ServiceRequest) (bool, error) {
		if !req.ValueAccepted {
			return false, fmt.Errorf("%w: confirm requires an accepted value", ErrInvalidTransition)
		}
		if err := applyStatus(req, models.StatusAwaitingPayment); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyProvider(req, "Value confirmed",
		fmt.Sprintf("The client confirmed R$ %.2f. Awaiting payment.", req.AgreedValue))
	return req, nil
}

// BeginPayment opens a charge for the agreed value. The coordinator is
// invoked outside the request lock; its confirmation callback re-enters
// through OnPaymentConfirmed, which takes the lock itself.
func (s *DefaultLifecycleService) BeginPayment(ctx context.Context, id string, method models.PaymentMethod) (*models.PaymentIntent, error) {
	req, err := s.mutate(ctx, id, func(req *models.ServiceRequest) (bool, error) {
		if models.NormalizeStatus(req.Status) != models.StatusAwaitingPayment {
			return false, fmt.Errorf("%w: payment requires awaiting_payment status", ErrInvalidTransition)
		}
		if !method.Valid() {
			return false, fmt.Errorf("%w: unknown payment method %q", ErrInvalidValue, method)
		}
		req.PaymentMethod = method
		if method == models.PaymentDirect {
			req.DirectPayment = true
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	intent, err := s.Payments.BeginPayment(ctx, req, method)
	if err != nil {
		return nil, err
	}
	return intent, nil
}

func (s *DefaultLifecycleService) PaymentState(id string) models.PaymentState {
	return s.Payments.State(id)
}

// CompleteService is the provider reporting the work done.
func (s *DefaultLifecycleService) CompleteService(ctx context.Context, id, providerID string) (*models.ServiceRequest, error) {
	req, err := s.mutate(ctx, id, func(req *models.ServiceRequest) (bool, error) {
		if req.ProviderID == "" || req.ProviderID != providerID {
			return false, fmt.Errorf("%w: only the engaged provider can complete the service", ErrInvalidTransition)
		}
		if err := applyStatus(req, models.StatusPendingClientConf); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyClient(req, "Service completed",
		"The provider marked the service as done. Please confirm.")
	return req, nil
}

// ConfirmCompletion is the client's final sign-off.
func (s *DefaultLifecycleService) ConfirmCompletion(ctx context.Context, id string) (*models.ServiceRequest, error) {
	req, err := s.mutate(ctx, id, func(req *models.ServiceRequest) (bool, error) {
		if err := applyStatus(req, models.StatusFinished); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyProvider(req, "Chamado finished",
		"The client confirmed completion. Thanks for the service!")
	return req, nil
}

// OnProvidersFound implements MatchEvents. No status change happens here:
// the chamado stays searching until a provider explicitly engages. Both the
// client and the candidates are notified.
func (s *DefaultLifecycleService) OnProvidersFound(requestID string, matches []models.ProviderMatch) {
	ctx := context.Background()
	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		s.Logger.Warn("providers found for unknown request",
			zap.String("requestId", requestID), zap.Error(err))
		return
	}
	if models.NormalizeStatus(req.Status) != models.StatusSearching {
		// Late event; the request already moved on. Cancel wins.
		return
	}

	s.Logger.Info("providers found",
		zap.String("requestId", requestID),
		zap.Int("count", len(matches)))

	s.notifyClient(req, "Providers nearby",
		fmt.Sprintf("We found %d provider(s) near you. Waiting for one to take the chamado.", len(matches)))
	for _, m := range matches {
		m := m
		go func() {
			data := map[string]string{
				"type":        "chamado_offer",
				"requestId":   req.ID,
				"serviceType": string(req.ServiceType),
				"distanceKm":  fmt.Sprintf("%.1f", m.DistanceKm),
			}
			if s.Notifier == nil {
				return
			}
			if err := s.Notifier.NotifyProvider(context.Background(), m.ProviderID,
				"New chamado near you",
				fmt.Sprintf("A %s request is %.1f km away.", req.ServiceType, m.DistanceKm),
				data); err != nil {
				s.Logger.Warn("failed to push offer to provider",
					zap.String("providerId", m.ProviderID), zap.Error(err))
			}
		}()
	}
}

// OnSearchTimeout implements MatchEvents. The chamado stays searching; the
// client decides whether to retry (clearing exclusions) or cancel.
func (s *DefaultLifecycleService) OnSearchTimeout(requestID string) {
	ctx := context.Background()
	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return
	}
	if models.NormalizeStatus(req.Status) != models.StatusSearching {
		return
	}

	s.Logger.Info("search exhausted", zap.String("requestId", requestID))
	s.notifyClient(req, "No providers available",
		"We could not find a provider right now. You can retry or cancel the chamado.")

	if s.Nudger != nil {
		if err := s.Nudger.ScheduleSearchNudge(req.ID, req.ClientID, s.NudgeDelay); err != nil {
			s.Logger.Warn("failed to schedule search nudge",
				zap.String("requestId", req.ID), zap.Error(err))
		}
	}
}

// OnPaymentConfirmed implements PaymentEvents. Push and poll both funnel
// here; the status guard makes the second arrival a no-op, and a
// confirmation landing after cancellation is dropped.
func (s *DefaultLifecycleService) OnPaymentConfirmed(requestID string) {
	ctx := context.Background()
	req, err := s.mutate(ctx, requestID, func(req *models.ServiceRequest) (bool, error) {
		status := models.NormalizeStatus(req.Status)
		if status == models.StatusInService || status.IsTerminal() {
			return false, nil
		}
		if err := applyStatus(req, models.StatusInService); err != nil {
			return false, err
		}
		req.PaymentConfirmed = true
		appendSystemChat(req, "Payment confirmed. The service is now live.")
		return true, nil
	})
	if err != nil {
		s.Logger.Warn("payment confirmation could not be applied",
			zap.String("requestId", requestID), zap.Error(err))
		return
	}
	if models.NormalizeStatus(req.Status) != models.StatusInService {
		return
	}

	s.notifyClient(req, "Payment confirmed", "Your provider is on the way.")
	s.notifyProvider(req, "Payment confirmed", "The chamado is paid. You are good to go.")
}

// OnPaymentFailed implements PaymentEvents. No rollback of AgreedValue; the
// request stays awaiting_payment and the client may retry with any method.
func (s *DefaultLifecycleService) OnPaymentFailed(requestID string, reason string) {
	ctx := context.Background()
	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return
	}

	s.Logger.Warn("payment failed",
		zap.String("requestId", requestID), zap.String("reason", reason))
	s.notifyClient(req, "Payment failed",
		"Your payment did not go through. Please try again or pick another method.")
}

func (s *DefaultLifecycleService) notifyClient(req *models.ServiceRequest, title, body string) {
	if s.Notifier == nil {
		return
	}
	clientID := req.ClientID
	requestID := req.ID
	go func() {
		data := map[string]string{"type": "chamado_update", "requestId": requestID}
		if err := s.Notifier.NotifyClient(context.Background(), clientID, title, body, data); err != nil {
			s.Logger.Warn("failed to push notification to client",
				zap.String("clientId", clientID), zap.Error(err))
		}
	}()
}

func (s *DefaultLifecycleService) notifyProvider(req *models.ServiceRequest, title, body string) {
	if s.Notifier == nil || req.ProviderID == "" {
		return
	}
	providerID := req.ProviderID
	requestID := req.ID
	go func() {
		data := map[string]string{"type": "chamado_update", "requestId": requestID}
		if err := s.Notifier.NotifyProvider(context.Background(), providerID, title, body, data); err != nil {
			s.Logger.Warn("failed to push notification to provider",
				zap.String("providerId", providerID), zap.Error(err))
		}
	}()
}

func (s *DefaultLifecycleService) notifyCounterpart(req *models.ServiceRequest, actor models.Party, title, body string) {
	switch actor {
	case models.PartyClient:
		s.notifyProvider(req, title, body)
	case models.PartyProvider:
		s.notifyClient(req, title, body)
	default:
		s.notifyClient(req, title, body)
		s.notifyProvider(req, title, body)
	}
}
