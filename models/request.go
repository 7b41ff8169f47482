package models

import "time"

// RequestStatus is the canonical status of a service request. It is owned
// exclusively by the lifecycle orchestrator; every other component reads it.
type RequestStatus string

const (
	StatusIdle              RequestStatus = "idle"
	StatusSearching         RequestStatus = "searching"
	StatusAccepted          RequestStatus = "accepted"
	StatusNegotiating       RequestStatus = "negotiating"
	StatusAwaitingPayment   RequestStatus = "awaiting_payment"
	StatusInService         RequestStatus = "in_service"
	StatusPendingClientConf RequestStatus = "pending_client_confirmation"
	StatusFinished          RequestStatus = "finished"
	StatusCanceled          RequestStatus = "canceled"
)

// NormalizeStatus maps legacy status spellings onto the canonical set.
// Older mobile builds still send "confirmed" where they mean in_service.
func NormalizeStatus(s RequestStatus) RequestStatus {
	if s == "confirmed" {
		return StatusInService
	}
	return s
}

// IsTerminal reports whether no further transition can leave the status.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusFinished || s == StatusCanceled
}

// ServiceType enumerates the roadside services a chamado can ask for.
type ServiceType string

const (
	ServiceTowing     ServiceType = "towing"
	ServiceTire       ServiceType = "tire"
	ServiceMechanical ServiceType = "mechanical"
	ServiceLocksmith  ServiceType = "locksmith"
)

// RequiresDestination reports whether the service moves the vehicle and
// therefore needs a drop-off location.
func (t ServiceType) RequiresDestination() bool {
	return t == ServiceTowing
}

// Valid reports whether t is a known service type.
func (t ServiceType) Valid() bool {
	switch t {
	case ServiceTowing, ServiceTire, ServiceMechanical, ServiceLocksmith:
		return true
	}
	return false
}

// Party identifies which side of a chamado performed an action.
type Party string

const (
	PartyClient   Party = "client"
	PartyProvider Party = "provider"
	PartySystem   Party = "system"
	PartyNone     Party = "none"
)

// CancelReason categorizes why a chamado was canceled.
type CancelReason string

const (
	CancelReasonNoProviders    CancelReason = "no_providers"
	CancelReasonTooExpensive   CancelReason = "too_expensive"
	CancelReasonSolvedMyself   CancelReason = "solved_myself"
	CancelReasonProviderNoShow CancelReason = "provider_no_show"
	CancelReasonClientNoShow   CancelReason = "client_no_show"
	CancelReasonOther          CancelReason = "other"
)

// Cancellation records who canceled a chamado and why.
type Cancellation struct {
	Category   CancelReason `bson:"category" json:"category"`
	ReasonText string       `bson:"reasonText,omitempty" json:"reasonText,omitempty"`
	CanceledBy Party        `bson:"canceledBy" json:"canceledBy"`
}

// ServiceRequest is the chamado aggregate: one client-initiated request for a
// roadside service, from creation to a terminal state.
type ServiceRequest struct {
	ID         string `bson:"_id" json:"id"`
	ClientID   string `bson:"clientId" json:"clientId"`
	ProviderID string `bson:"providerId,omitempty" json:"providerId,omitempty"` // empty until a provider engages

	ServiceType ServiceType `bson:"serviceType" json:"serviceType"`
	Origin      Location    `bson:"origin" json:"origin"`
	Destination *Location   `bson:"destination,omitempty" json:"destination,omitempty"` // towing only

	Status RequestStatus `bson:"status" json:"status"`

	// Negotiation fields.
	ProposedValue  float64 `bson:"proposedValue,omitempty" json:"proposedValue,omitempty"`
	LastProposalBy Party   `bson:"lastProposalBy" json:"lastProposalBy"`
	ValueAccepted  bool    `bson:"valueAccepted" json:"valueAccepted"`
	AgreedValue    float64 `bson:"agreedValue,omitempty" json:"agreedValue,omitempty"` // frozen once ValueAccepted

	// Payment fields.
	PaymentMethod    PaymentMethod `bson:"paymentMethod,omitempty" json:"paymentMethod,omitempty"`
	PaymentConfirmed bool          `bson:"paymentConfirmed" json:"paymentConfirmed"`
	DirectPayment    bool          `bson:"directPayment" json:"directPayment"` // settled outside the platform

	// Search bookkeeping. Grows monotonically; a provider that declined is
	// never re-offered for this chamado.
	ExcludedProviderIDs []string `bson:"excludedProviderIds,omitempty" json:"excludedProviderIds,omitempty"`

	Cancellation *Cancellation `bson:"cancellation,omitempty" json:"cancellation,omitempty"`

	Chat []ChatEntry `bson:"chat,omitempty" json:"chat,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// IsExcluded reports whether providerID has already been ruled out.
func (r *ServiceRequest) IsExcluded(providerID string) bool {
	for _, id := range r.ExcludedProviderIDs {
		if id == providerID {
			return true
		}
	}
	return false
}

// Exclude adds providerID to the exclusion set if not already present.
func (r *ServiceRequest) Exclude(providerID string) {
	if providerID == "" || r.IsExcluded(providerID) {
		return
	}
	r.ExcludedProviderIDs = append(r.ExcludedProviderIDs, providerID)
}

// StatusEvent is what the orchestrator broadcasts after every transition.
// Delivery is at-least-once; consumers dedup by UpdatedAt.
type StatusEvent struct {
	RequestID  string        `json:"requestId"`
	Status     RequestStatus `json:"status"`
	ProviderID string        `json:"providerId,omitempty"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}
