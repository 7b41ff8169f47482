package requestRepo

import (
	"context"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
)

// RequestRepository persists chamado aggregates. All writes go through the
// lifecycle orchestrator, which serializes them per request.
type RequestRepository interface {
	Create(ctx context.Context, req *models.ServiceRequest) error
	GetByID(ctx context.Context, id string) (*models.ServiceRequest, error)
	Update(ctx context.Context, req *models.ServiceRequest) error
	ListActiveByClient(ctx context.Context, clientID string) ([]models.ServiceRequest, error)
	ListActiveByProvider(ctx context.Context, providerID string) ([]models.ServiceRequest, error)
}
