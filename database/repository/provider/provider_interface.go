package providerRepo

import (
	"context"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
)

// GeoQuery describes one radius query of the provider index.
type GeoQuery struct {
	ServiceType models.ServiceType
	Origin      models.GeoPoint
	RadiusKm    float64
	Excluding   []string // provider ids never to return
}

// GeoIndex answers "which online providers offering service S are within
// radius R of point P". Provider records are externally owned; this index
// is read-only.
type GeoIndex interface {
	Query(ctx context.Context, q GeoQuery) ([]models.ProviderMatch, error)
	GetByID(ctx context.Context, providerID string) (*models.Provider, error)
}
