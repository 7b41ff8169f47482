package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
)

// PaymentGateway is the external payment backend, one per method family.
type PaymentGateway interface {
	// CreateIntent opens a fresh gateway-side charge for the request.
	// Synchronous methods return the intent already confirmed; the
	// instant-transfer path returns a checkout handle confirmed later.
	CreateIntent(ctx context.Context, req *models.ServiceRequest, amount float64) (*models.PaymentIntent, error)
	// PollStatus checks an open intent. Used as a fallback alongside the
	// gateway's push notifications.
	PollStatus(ctx context.Context, handle string) (models.GatewayStatus, error)
}

// PaymentEvents receives the asynchronous outcomes of a payment attempt.
// The lifecycle orchestrator implements it; both push and poll confirmations
// funnel through OnPaymentConfirmed, which must be idempotent.
type PaymentEvents interface {
	OnPaymentConfirmed(requestID string)
	OnPaymentFailed(requestID string, reason string)
}

// PaymentCoordinator drives settlement once a chamado is awaiting_payment.
// It guarantees at most one in_service transition per successful payment:
// whichever confirmation signal lands first (gateway push or poll) wins and
// the loser is a no-op.
type PaymentCoordinator struct {
	Gateways     map[models.PaymentMethod]PaymentGateway
	Events       PaymentEvents
	Logger       *zap.Logger
	PollInterval time.Duration
	PollCeiling  time.Duration

	mu      sync.Mutex
	watches map[string]*paymentWatch
	states  map[string]models.PaymentState
}

type paymentWatch struct {
	handle string
	once   sync.Once
	done   chan struct{}
	cancel context.CancelFunc
}

func (w *paymentWatch) resolve() (first bool) {
	w.once.Do(func() {
		close(w.done)
		w.cancel()
		first = true
	})
	return first
}

// BeginPayment opens a charge for the agreed value. Retrying after a
// failure never double-charges: every call opens a fresh gateway intent and
// tears down any previous watch.
func (c *PaymentCoordinator) BeginPayment(ctx context.Context, req *models.ServiceRequest, method models.PaymentMethod) (*models.PaymentIntent, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalidValue, method)
	}
	if !req.ValueAccepted || req.AgreedValue <= 0 {
		return nil, fmt.Errorf("%w: payment requires an agreed value", ErrInvalidTransition)
	}

	c.stopWatch(req.ID)

	// Direct settlement never touches a gateway; the platform records the
	// method and the service goes live immediately.
	if method == models.PaymentDirect {
		intent := &models.PaymentIntent{
			Handle:    "direct-" + req.ID,
			Method:    method,
			Amount:    req.AgreedValue,
			Confirmed: true,
			CreatedAt: time.Now(),
		}
		c.setState(req.ID, models.PaymentStateConfirmed)
		c.Events.OnPaymentConfirmed(req.ID)
		return intent, nil
	}

	gateway, ok := c.Gateways[method]
	if !ok {
		return nil, fmt.Errorf("%w: no gateway configured for method %q", ErrExternalUnavailable, method)
	}

	intent, err := gateway.CreateIntent(ctx, req, req.AgreedValue)
	if err != nil {
		// The charge never opened (declined card, malformed charge). The
		// agreed value survives, so the user may retry with any method.
		c.setState(req.ID, models.PaymentStateError)
		return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	if intent.Confirmed {
		// Card/wallet path: the gateway confirmed synchronously.
		c.setState(req.ID, models.PaymentStateConfirmed)
		c.Events.OnPaymentConfirmed(req.ID)
		return intent, nil
	}

	// Instant-transfer path: confirmation arrives out-of-band. Subscribe to
	// pushes (HandleGatewayPush) and poll as a fallback, bounded by the
	// ceiling.
	c.startWatch(req.ID, intent.Handle, gateway)
	return intent, nil
}

// HandleGatewayPush is the push channel from the gateway (webhook delivery).
// First-writer-wins against the polling loop.
func (c *PaymentCoordinator) HandleGatewayPush(requestID string, status models.GatewayStatus) {
	switch status {
	case models.GatewayPaid:
		c.confirm(requestID, nil)
	case models.GatewayFailed:
		c.fail(requestID, nil, "gateway reported payment failed")
	default:
		// pending: nothing to do yet
	}
}

// State returns the coordinator's sub-state for a request.
func (c *PaymentCoordinator) State(requestID string) models.PaymentState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[requestID]; ok {
		return s
	}
	return models.PaymentStateIdle
}

// CancelWatch halts any background confirmation work for the request.
// Called on request cancellation; a late confirmation after this is dropped
// by the orchestrator's status guard (cancel wins).
func (c *PaymentCoordinator) CancelWatch(requestID string) {
	c.stopWatch(requestID)
	c.mu.Lock()
	delete(c.states, requestID)
	c.mu.Unlock()
}

func (c *PaymentCoordinator) startWatch(requestID, handle string, gateway PaymentGateway) {
	ctx, cancel := context.WithCancel(context.Background())
	watch := &paymentWatch{
		handle: handle,
		done:   make(chan struct{}),
		cancel: cancel,
	}

	c.mu.Lock()
	if c.watches == nil {
		c.watches = make(map[string]*paymentWatch)
	}
	c.watches[requestID] = watch
	c.mu.Unlock()
	c.setState(requestID, models.PaymentStateConfirming)

	go c.pollLoop(ctx, requestID, watch, gateway)
}

// pollLoop polls the gateway until confirmation, failure, the ceiling, or
// cancellation. Exhausting the ceiling is not a failure: the request stays
// confirming and the user may re-open the checkout or wait for the push.
func (c *PaymentCoordinator) pollLoop(ctx context.Context, requestID string, watch *paymentWatch, gateway PaymentGateway) {
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(c.PollCeiling)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-watch.done:
			return
		case <-deadline.C:
			c.Logger.Info("payment poll ceiling reached, still awaiting push confirmation",
				zap.String("requestId", requestID))
			return
		case <-ticker.C:
			pollCtx, cancelPoll := context.WithTimeout(ctx, c.PollInterval)
			status, err := gateway.PollStatus(pollCtx, watch.handle)
			cancelPoll()
			if err != nil {
				c.Logger.Warn("payment status poll failed",
					zap.String("requestId", requestID), zap.Error(err))
				continue
			}
			switch status {
			case models.GatewayPaid:
				c.confirm(requestID, watch)
				return
			case models.GatewayFailed:
				c.fail(requestID, watch, "poll reported payment failed")
				return
			}
		}
	}
}

// confirm applies a paid signal. A signal only counts against the watch it
// belongs to: from identifies the poll loop that produced it (nil for a
// gateway push, which always targets the registered watch). A poll signal
// from a superseded intent, or a push for a request with no open watch, is
// dropped on the floor.
func (c *PaymentCoordinator) confirm(requestID string, from *paymentWatch) {
	watch := c.signalWatch(requestID, from)
	if watch == nil || !watch.resolve() {
		// Stale signal, or the other channel got here first.
		return
	}
	c.setState(requestID, models.PaymentStateConfirmed)
	c.Events.OnPaymentConfirmed(requestID)
}

func (c *PaymentCoordinator) fail(requestID string, from *paymentWatch, reason string) {
	watch := c.signalWatch(requestID, from)
	if watch == nil || !watch.resolve() {
		return
	}
	// AgreedValue is untouched; the user may retry BeginPayment.
	c.setState(requestID, models.PaymentStateError)
	c.Events.OnPaymentFailed(requestID, reason)
}

// signalWatch maps an incoming gateway signal to the watch it may resolve,
// or nil when the signal no longer applies.
func (c *PaymentCoordinator) signalWatch(requestID string, from *paymentWatch) *paymentWatch {
	c.mu.Lock()
	current := c.watches[requestID]
	c.mu.Unlock()

	if current == nil {
		return nil
	}
	if from != nil && from != current {
		// A retry replaced the intent this poll was following.
		return nil
	}
	return current
}

func (c *PaymentCoordinator) stopWatch(requestID string) {
	c.mu.Lock()
	watch := c.watches[requestID]
	delete(c.watches, requestID)
	c.mu.Unlock()
	if watch != nil {
		watch.cancel()
	}
}

func (c *PaymentCoordinator) setState(requestID string, s models.PaymentState) {
	c.mu.Lock()
	if c.states == nil {
		c.states = make(map[string]models.PaymentState)
	}
	c.states[requestID] = s
	c.mu.Unlock()
}
