package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
)

// fakeGateway is a scripted PaymentGateway.
type fakeGateway struct {
	mu          sync.Mutex
	confirmed   bool                 // CreateIntent returns an already-confirmed intent
	createErr   error                //
	pollStatus  models.GatewayStatus // what PollStatus reports
	pollErr     error
	createCalls int
	pollCalls   int
}

func (g *fakeGateway) CreateIntent(_ context.Context, req *models.ServiceRequest, amount float64) (*models.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &models.PaymentIntent{
		Handle:    "intent-" + req.ID,
		Method:    req.PaymentMethod,
		Amount:    amount,
		Confirmed: g.confirmed,
		CreatedAt: time.Now(),
	}, nil
}

func (g *fakeGateway) PollStatus(_ context.Context, _ string) (models.GatewayStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pollCalls++
	return g.pollStatus, g.pollErr
}

func (g *fakeGateway) setPollStatus(s models.GatewayStatus) {
	g.mu.Lock()
	g.pollStatus = s
	g.mu.Unlock()
}

// countingEvents records every confirmation/failure signal.
type countingEvents struct {
	mu        sync.Mutex
	confirmed []string
	failed    []string
}

func (e *countingEvents) OnPaymentConfirmed(requestID string) {
	e.mu.Lock()
	e.confirmed = append(e.confirmed, requestID)
	e.mu.Unlock()
}

func (e *countingEvents) OnPaymentFailed(requestID, _ string) {
	e.mu.Lock()
	e.failed = append(e.failed, requestID)
	e.mu.Unlock()
}

func (e *countingEvents) counts() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.confirmed), len(e.failed)
}

func paidRequest(id string) *models.ServiceRequest {
	return &models.ServiceRequest{
		ID:            id,
		ClientID:      "client-1",
		Status:        models.StatusAwaitingPayment,
		ValueAccepted: true,
		AgreedValue:   150,
	}
}

func newCoordinator(events PaymentEvents, gateways map[models.PaymentMethod]PaymentGateway) *PaymentCoordinator {
	return &PaymentCoordinator{
		Gateways:     gateways,
		Events:       events,
		Logger:       zap.NewNop(),
		PollInterval: 10 * time.Millisecond,
		PollCeiling:  500 * time.Millisecond,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestBeginPaymentDirect(t *testing.T) {
	events := &countingEvents{}
	coord := newCoordinator(events, nil)

	intent, err := coord.BeginPayment(context.Background(), paidRequest("req-1"), models.PaymentDirect)
	if err != nil {
		t.Fatalf("direct payment failed: %v", err)
	}
	if !intent.Confirmed || intent.Amount != 150 {
		t.Fatalf("unexpected intent: %+v", intent)
	}
	if c, _ := events.counts(); c != 1 {
		t.Fatalf("expected 1 confirmation, got %d", c)
	}
	if coord.State("req-1") != models.PaymentStateConfirmed {
		t.Fatalf("state = %s, want confirmed", coord.State("req-1"))
	}
}

func TestBeginPaymentSynchronousCard(t *testing.T) {
	gw := &fakeGateway{confirmed: true}
	events := &countingEvents{}
	coord := newCoordinator(events, map[models.PaymentMethod]PaymentGateway{
		models.PaymentCard: gw,
	})

	intent, err := coord.BeginPayment(context.Background(), paidRequest("req-1"), models.PaymentCard)
	if err != nil {
		t.Fatalf("card payment failed: %v", err)
	}
	if !intent.Confirmed {
		t.Fatalf("card intent not confirmed")
	}
	if c, _ := events.counts(); c != 1 {
		t.Fatalf("expected 1 confirmation, got %d", c)
	}
}

func TestBeginPaymentRejections(t *testing.T) {
	coord := newCoordinator(&countingEvents{}, nil)

	t.Run("unknown method", func(t *testing.T) {
		_, err := coord.BeginPayment(context.Background(), paidRequest("req-1"), "barter")
		if !errors.Is(err, ErrInvalidValue) {
			t.Fatalf("expected ErrInvalidValue, got %v", err)
		}
	})

	t.Run("no agreed value", func(t *testing.T) {
		req := paidRequest("req-1")
		req.ValueAccepted = false
		_, err := coord.BeginPayment(context.Background(), req, models.PaymentCard)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("no gateway configured", func(t *testing.T) {
		_, err := coord.BeginPayment(context.Background(), paidRequest("req-1"), models.PaymentCard)
		if !errors.Is(err, ErrExternalUnavailable) {
			t.Fatalf("expected ErrExternalUnavailable, got %v", err)
		}
	})

	t.Run("gateway refuses the charge", func(t *testing.T) {
		gw := &fakeGateway{createErr: errors.New("card declined")}
		coord := newCoordinator(&countingEvents{}, map[models.PaymentMethod]PaymentGateway{
			models.PaymentCard: gw,
		})
		_, err := coord.BeginPayment(context.Background(), paidRequest("req-1"), models.PaymentCard)
		if !errors.Is(err, ErrPaymentFailed) {
			t.Fatalf("expected ErrPaymentFailed, got %v", err)
		}
		if coord.State("req-1") != models.PaymentStateError {
			t.Fatalf("state = %s, want error", coord.State("req-1"))
		}
	})
}

func TestAsyncPaymentConfirmedByPoll(t *testing.T) {
	gw := &fakeGateway{pollStatus: models.GatewayPending}
	events := &countingEvents{}
	coord := newCoordinator(events, map[models.PaymentMethod]PaymentGateway{
		models.PaymentInstantTransfer: gw,
	})

	intent, err := coord.BeginPayment(context.Background(), paidRequest("req-1"), models.PaymentInstantTransfer)
	if err != nil {
		t.Fatalf("instant transfer failed: %v", err)
	}
	if intent.Confirmed {
		t.Fatalf("instant transfer confirmed synchronously")
	}
	if coord.State("req-1") != models.PaymentStateConfirming {
		t.Fatalf("state = %s, want confirming", coord.State("req-1"))
	}

	gw.setPollStatus(models.GatewayPaid)
	waitFor(t, time.Second, func() bool {
		c, _ := events.counts()
		return c == 1
	})
	if coord.State("req-1") != models.PaymentStateConfirmed {
		t.Fatalf("state = %s, want confirmed", coord.State("req-1"))
	}
}

func TestAsyncPaymentPushAndPollRace(t *testing.T) {
	gw := &fakeGateway{pollStatus: models.GatewayPaid}
	events := &countingEvents{}
	coord := newCoordinator(events, map[models.PaymentMethod]PaymentGateway{
		models.PaymentInstantTransfer: gw,
	})

	if _, err := coord.BeginPayment(context.Background(), paidRequest("req-1"), models.PaymentInstantTransfer); err != nil {
		t.Fatalf("instant transfer failed: %v", err)
	}

	// Push lands while the poller is also seeing paid. Exactly one
	// confirmation must come out.
	coord.HandleGatewayPush("req-1", models.GatewayPaid)
	coord.HandleGatewayPush("req-1", models.GatewayPaid)

	waitFor(t, time.Second, func() bool {
		c, _ := events.counts()
		return c >= 1
	})
	time.Sleep(50 * time.Millisecond) // let any late poll fire
	if c, _ := events.counts(); c != 1 {
		t.Fatalf("expected exactly 1 confirmation, got %d", c)
	}
}

func TestAsyncPaymentFailureKeepsAgreedValue(t *testing.T) {
	gw := &fakeGateway{pollStatus: models.GatewayFailed}
	events := &countingEvents{}
	coord := newCoordinator(events, map[models.PaymentMethod]PaymentGateway{
		models.PaymentInstantTransfer: gw,
	})

	req := paidRequest("req-1")
	if _, err := coord.BeginPayment(context.Background(), req, models.PaymentInstantTransfer); err != nil {
		t.Fatalf("instant transfer failed: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		_, f := events.counts()
		return f == 1
	})
	if coord.State("req-1") != models.PaymentStateError {
		t.Fatalf("state = %s, want error", coord.State("req-1"))
	}
	if !req.ValueAccepted || req.AgreedValue != 150 {
		t.Fatalf("failure touched the agreed value: %+v", req)
	}

	// Retry with a working gateway opens a fresh intent.
	gw.setPollStatus(models.GatewayPaid)
	if _, err := coord.BeginPayment(context.Background(), req, models.PaymentInstantTransfer); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		c, _ := events.counts()
		return c == 1
	})
	if gw.createCalls != 2 {
		t.Fatalf("retry reused the old intent: %d create calls", gw.createCalls)
	}
}

func TestCancelWatchStopsConfirmation(t *testing.T) {
	gw := &fakeGateway{pollStatus: models.GatewayPending}
	events := &countingEvents{}
	coord := newCoordinator(events, map[models.PaymentMethod]PaymentGateway{
		models.PaymentInstantTransfer: gw,
	})

	if _, err := coord.BeginPayment(context.Background(), paidRequest("req-1"), models.PaymentInstantTransfer); err != nil {
		t.Fatalf("instant transfer failed: %v", err)
	}
	coord.CancelWatch("req-1")

	gw.setPollStatus(models.GatewayPaid)
	time.Sleep(50 * time.Millisecond)
	if c, _ := events.counts(); c != 0 {
		t.Fatalf("canceled watch still confirmed: %d", c)
	}
	if coord.State("req-1") != models.PaymentStateIdle {
		t.Fatalf("state = %s, want idle after cancel", coord.State("req-1"))
	}
}

// holdGateway hangs the first intent's poll until released, then reports
// failure for it. Later intents poll as pending.
type holdGateway struct {
	mu      sync.Mutex
	creates int
	polled  chan struct{}
	release chan struct{}
	first   sync.Once
}

func (g *holdGateway) CreateIntent(_ context.Context, req *models.ServiceRequest, amount float64) (*models.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.creates++
	return &models.PaymentIntent{
		Handle:    fmt.Sprintf("intent-%d", g.creates),
		Method:    req.PaymentMethod,
		Amount:    amount,
		CreatedAt: time.Now(),
	}, nil
}

func (g *holdGateway) PollStatus(_ context.Context, handle string) (models.GatewayStatus, error) {
	if handle != "intent-1" {
		return models.GatewayPending, nil
	}
	g.first.Do(func() { close(g.polled) })
	<-g.release
	return models.GatewayFailed, nil
}

func TestRetryIgnoresStalePollResult(t *testing.T) {
	gw := &holdGateway{polled: make(chan struct{}), release: make(chan struct{})}
	events := &countingEvents{}
	coord := newCoordinator(events, map[models.PaymentMethod]PaymentGateway{
		models.PaymentInstantTransfer: gw,
	})

	req := paidRequest("req-1")
	if _, err := coord.BeginPayment(context.Background(), req, models.PaymentInstantTransfer); err != nil {
		t.Fatalf("instant transfer failed: %v", err)
	}
	<-gw.polled // the first intent's poll is now in flight

	// The user re-opens the checkout while that poll is still hanging.
	if _, err := coord.BeginPayment(context.Background(), req, models.PaymentInstantTransfer); err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	// The old poll finally answers, reporting failure for the replaced
	// intent. It must not poison the fresh attempt.
	close(gw.release)
	time.Sleep(50 * time.Millisecond)
	if c, f := events.counts(); c != 0 || f != 0 {
		t.Fatalf("stale poll leaked through: confirmed=%d failed=%d", c, f)
	}
	if coord.State("req-1") != models.PaymentStateConfirming {
		t.Fatalf("state = %s, want confirming", coord.State("req-1"))
	}

	// The push for the fresh intent still lands.
	coord.HandleGatewayPush("req-1", models.GatewayPaid)
	if c, f := events.counts(); c != 1 || f != 0 {
		t.Fatalf("confirmed=%d failed=%d, want 1/0", c, f)
	}
	if coord.State("req-1") != models.PaymentStateConfirmed {
		t.Fatalf("state = %s, want confirmed", coord.State("req-1"))
	}
}

func TestStrayPushWithoutWatchIsDropped(t *testing.T) {
	gw := &fakeGateway{pollStatus: models.GatewayPending}
	events := &countingEvents{}
	coord := newCoordinator(events, map[models.PaymentMethod]PaymentGateway{
		models.PaymentInstantTransfer: gw,
	})

	// A push for a request no one is watching.
	coord.HandleGatewayPush("ghost", models.GatewayPaid)
	if c, f := events.counts(); c != 0 || f != 0 {
		t.Fatalf("watchless push produced signals: confirmed=%d failed=%d", c, f)
	}
	if coord.State("ghost") != models.PaymentStateIdle {
		t.Fatalf("state = %s, want idle", coord.State("ghost"))
	}

	// A push arriving after the watch was torn down by cancellation.
	if _, err := coord.BeginPayment(context.Background(), paidRequest("req-1"), models.PaymentInstantTransfer); err != nil {
		t.Fatalf("instant transfer failed: %v", err)
	}
	coord.CancelWatch("req-1")
	coord.HandleGatewayPush("req-1", models.GatewayPaid)
	if c, _ := events.counts(); c != 0 {
		t.Fatalf("push after cancel confirmed: %d", c)
	}
	if coord.State("req-1") != models.PaymentStateIdle {
		t.Fatalf("state = %s, want idle after cancel", coord.State("req-1"))
	}
}
