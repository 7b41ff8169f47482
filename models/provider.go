package models

import "time"

// Provider is the read-only view of a service professional as seen by the
// dispatch core. Provider records are owned by the registration backend;
// this core never mutates them.
type Provider struct {
	ID                 string        `bson:"_id" json:"id"`
	Name               string        `bson:"name" json:"name"`
	Online             bool          `bson:"online" json:"online"`
	ServicesOffered    []ServiceType `bson:"servicesOffered" json:"servicesOffered"`
	LocationGeo        GeoPoint      `bson:"locationGeo" json:"locationGeo"`
	SearchRadiusCapKm  float64       `bson:"searchRadiusCapKm,omitempty" json:"searchRadiusCapKm,omitempty"`
	Rating             float64       `bson:"rating,omitempty" json:"rating,omitempty"`
	CompletedCallouts  int           `bson:"completedCallouts,omitempty" json:"completedCallouts,omitempty"`
	LastLocationUpdate time.Time     `bson:"lastLocationUpdate,omitempty" json:"lastLocationUpdate,omitempty"`
}

// Offers reports whether the provider advertises the given service.
func (p *Provider) Offers(t ServiceType) bool {
	for _, s := range p.ServicesOffered {
		if s == t {
			return true
		}
	}
	return false
}

// ProviderMatch is a GeoIndex hit: a candidate provider with its distance
// from the chamado origin.
type ProviderMatch struct {
	ProviderID string   `json:"providerId"`
	Name       string   `json:"name"`
	Location   GeoPoint `json:"location"`
	DistanceKm float64  `json:"distanceKm"`
}

// ProviderPosition is one tracking feed sample.
type ProviderPosition struct {
	RequestID  string    `json:"requestId"`
	ProviderID string    `json:"providerId"`
	Location   GeoPoint  `json:"location"`
	RecordedAt time.Time `json:"recordedAt"`
}
