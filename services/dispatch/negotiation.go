package dispatch

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
)

// The negotiation protocol: a turn-based exchange of price proposals between
// client and provider. At most one proposal is outstanding at a time,
// attributed to exactly one side via LastProposalBy; a side cannot propose
// twice in a row. Acceptance freezes AgreedValue exactly once.
//
// These functions mutate the aggregate in memory only. The orchestrator
// calls them under the request lock and persists the result, so the turn
// invariant holds regardless of caller.

// proposeValue records a new price proposal from one side.
func proposeValue(req *models.ServiceRequest, by models.Party, value float64) error {
	if by != models.PartyClient && by != models.PartyProvider {
		return fmt.Errorf("%w: proposals must come from client or provider", ErrInvalidValue)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return fmt.Errorf("%w: proposal must be a positive amount, got %v", ErrInvalidValue, value)
	}
	if req.ValueAccepted {
		// AgreedValue is immutable once set.
		return fmt.Errorf("%w: value already accepted at R$ %.2f", ErrInvalidTransition, req.AgreedValue)
	}
	if req.LastProposalBy == by {
		return fmt.Errorf("%w: %s already holds the outstanding proposal", ErrInvalidTransition, by)
	}

	req.ProposedValue = value
	req.LastProposalBy = by
	req.ValueAccepted = false
	appendSystemChat(req, fmt.Sprintf("%s proposed R$ %.2f for the service.", partyLabel(by), value))
	return nil
}

// acceptValue accepts the other side's outstanding proposal. Repeating an
// accept on an already-accepted value is a no-op, not an error.
func acceptValue(req *models.ServiceRequest, by models.Party) (changed bool, err error) {
	if by != models.PartyClient && by != models.PartyProvider {
		return false, fmt.Errorf("%w: accepts must come from client or provider", ErrInvalidValue)
	}
	if req.ValueAccepted {
		return false, nil
	}
	if req.ProposedValue == 0 || req.LastProposalBy == models.PartyNone {
		return false, fmt.Errorf("%w: no proposal to accept", ErrInvalidTransition)
	}
	if req.LastProposalBy == by {
		return false, fmt.Errorf("%w: %s cannot accept its own proposal", ErrInvalidTransition, by)
	}

	req.ValueAccepted = true
	req.AgreedValue = req.ProposedValue
	appendSystemChat(req, fmt.Sprintf("%s accepted the proposal. Agreed value: R$ %.2f.", partyLabel(by), req.AgreedValue))
	return true, nil
}

// setDirectPayment marks that settlement happens outside the platform.
// Only allowed after the value is accepted and before the client confirms.
func setDirectPayment(req *models.ServiceRequest, direct bool) error {
	if !req.ValueAccepted {
		return fmt.Errorf("%w: direct payment requires an accepted value", ErrInvalidTransition)
	}
	if models.NormalizeStatus(req.Status) != models.StatusNegotiating &&
		models.NormalizeStatus(req.Status) != models.StatusAccepted {
		return fmt.Errorf("%w: direct payment can only be set while negotiating, status is %s", ErrInvalidTransition, req.Status)
	}
	req.DirectPayment = direct
	return nil
}

func appendSystemChat(req *models.ServiceRequest, text string) {
	req.Chat = append(req.Chat, models.ChatEntry{
		ID:        uuid.New().String(),
		Author:    models.PartySystem,
		Text:      text,
		CreatedAt: time.Now(),
	})
}

func partyLabel(p models.Party) string {
	switch p {
	case models.PartyClient:
		return "Client"
	case models.PartyProvider:
		return "Provider"
	default:
		return "System"
	}
}
