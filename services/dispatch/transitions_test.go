package dispatch

import (
	"errors"
	"testing"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name string
		from models.RequestStatus
		to   models.RequestStatus
		want bool
	}{
		{"idle to searching", models.StatusIdle, models.StatusSearching, true},
		{"searching to accepted", models.StatusSearching, models.StatusAccepted, true},
		{"searching to canceled", models.StatusSearching, models.StatusCanceled, true},
		{"accepted to negotiating", models.StatusAccepted, models.StatusNegotiating, true},
		{"negotiating to awaiting_payment", models.StatusNegotiating, models.StatusAwaitingPayment, true},
		{"awaiting_payment to in_service", models.StatusAwaitingPayment, models.StatusInService, true},
		{"in_service to pending confirmation", models.StatusInService, models.StatusPendingClientConf, true},
		{"pending confirmation to finished", models.StatusPendingClientConf, models.StatusFinished, true},

		{"no skipping negotiation", models.StatusSearching, models.StatusNegotiating, false},
		{"no skipping payment", models.StatusNegotiating, models.StatusInService, false},
		{"no direct finish", models.StatusInService, models.StatusFinished, false},
		{"no cancel after client confirmation gate", models.StatusPendingClientConf, models.StatusCanceled, false},
		{"finished is terminal", models.StatusFinished, models.StatusSearching, false},
		{"canceled is terminal", models.StatusCanceled, models.StatusSearching, false},
		{"no backwards edge", models.StatusAccepted, models.StatusSearching, false},

		{"same state is a no-op", models.StatusNegotiating, models.StatusNegotiating, true},
		{"legacy confirmed normalizes to in_service", models.StatusAwaitingPayment, "confirmed", true},
		{"legacy confirmed as source", "confirmed", models.StatusPendingClientConf, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanTransition(tc.from, tc.to); got != tc.want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestApplyStatusRejectsInvalidEdge(t *testing.T) {
	req := &models.ServiceRequest{ID: "req-1", Status: models.StatusSearching}
	err := applyStatus(req, models.StatusInService)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if req.Status != models.StatusSearching {
		t.Fatalf("status mutated on rejected edge: %s", req.Status)
	}

	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected *TransitionError, got %T", err)
	}
	if terr.From != models.StatusSearching || terr.To != models.StatusInService {
		t.Fatalf("unexpected edge in error: %s -> %s", terr.From, terr.To)
	}
}
