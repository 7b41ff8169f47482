package dispatch

import (
	"context"
	"time"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
)

// CreateRequestInput is what a client supplies to open a chamado.
type CreateRequestInput struct {
	ClientID    string             `json:"clientId"`
	ServiceType models.ServiceType `json:"serviceType"`
	Origin      models.Location    `json:"origin"`
	Destination *models.Location   `json:"destination,omitempty"`
}

// LifecycleService is the orchestrator for the chamado state machine. It is
// the only component allowed to mutate a request's canonical status.
type LifecycleService interface {
	CreateRequest(ctx context.Context, input CreateRequestInput) (*models.ServiceRequest, error)
	GetRequest(ctx context.Context, id string) (*models.ServiceRequest, error)
	SearchSession(id string) (*models.SearchSession, bool)

	Cancel(ctx context.Context, id string, by models.Party, category models.CancelReason, reasonText string) (*models.ServiceRequest, error)
	RetrySearch(ctx context.Context, id string) (*models.ServiceRequest, error)

	ProviderEngage(ctx context.Context, id, providerID string) (*models.ServiceRequest, error)
	ProviderDecline(ctx context.Context, id, providerID string) (*models.ServiceRequest, error)

	Propose(ctx context.Context, id string, by models.Party, value float64) (*models.ServiceRequest, error)
	AcceptProposal(ctx context.Context, id string, by models.Party) (*models.ServiceRequest, error)
	SetDirectPayment(ctx context.Context, id string, direct bool) (*models.ServiceRequest, error)
	ConfirmAndProceed(ctx context.Context, id string) (*models.ServiceRequest, error)

	BeginPayment(ctx context.Context, id string, method models.PaymentMethod) (*models.PaymentIntent, error)
	PaymentState(id string) models.PaymentState

	CompleteService(ctx context.Context, id, providerID string) (*models.ServiceRequest, error)
	ConfirmCompletion(ctx context.Context, id string) (*models.ServiceRequest, error)
}

// RetryNudger schedules a delayed "still searching?" nudge for the client.
// Implemented by the async worker; optional.
type RetryNudger interface {
	ScheduleSearchNudge(requestID, clientID string, delay time.Duration) error
}
