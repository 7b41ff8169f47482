package models

import "time"

// SearchState is the state of one progressive provider search session.
type SearchState string

const (
	SearchIdle            SearchState = "idle"
	SearchSearching       SearchState = "searching"
	SearchExpandingRadius SearchState = "expanding_radius"
	SearchWaitingCooldown SearchState = "waiting_cooldown"
	SearchProviderFound   SearchState = "provider_found"
	SearchTimeout         SearchState = "timeout"
	SearchCanceled        SearchState = "canceled"
)

// SearchSession is the ephemeral state of one matching attempt for one
// chamado. It lives while the request is in searching status and is
// discarded when the request leaves it.
type SearchSession struct {
	SessionID string `bson:"sessionId" json:"sessionId"`
	RequestID string `bson:"requestId" json:"requestId"`

	ServiceType ServiceType `bson:"serviceType" json:"serviceType"`
	Origin      GeoPoint    `bson:"origin" json:"origin"`

	RadiusLadderKm []float64   `bson:"radiusLadderKm" json:"radiusLadderKm"` // ascending
	CurrentIndex   int         `bson:"currentIndex" json:"currentIndex"`
	State          SearchState `bson:"state" json:"state"`

	CooldownDeadline time.Time `bson:"cooldownDeadline,omitempty" json:"cooldownDeadline,omitempty"`

	// Mirrors the request's exclusion set plus session-local additions.
	ExcludedProviderIDs []string `bson:"excludedProviderIds,omitempty" json:"excludedProviderIds,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// CurrentRadiusKm returns the radius the session is querying at, clamped to
// the last rung of the ladder.
func (s *SearchSession) CurrentRadiusKm() float64 {
	if len(s.RadiusLadderKm) == 0 {
		return 0
	}
	idx := s.CurrentIndex
	if idx >= len(s.RadiusLadderKm) {
		idx = len(s.RadiusLadderKm) - 1
	}
	return s.RadiusLadderKm[idx]
}
