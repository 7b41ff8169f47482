package dispatch

import (
	"errors"
	"fmt"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
)

var (
	// ErrInvalidTransition means an attempted state change violates the
	// lifecycle graph or the negotiation turn order. Rejected before any
	// mutation, never partially applied.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrInvalidValue means a proposal value was non-positive or not a number.
	ErrInvalidValue = errors.New("invalid value")

	// ErrSearchExhausted means the radius ladder was fully climbed with no
	// provider found. Not a failure: the client may retry or cancel.
	ErrSearchExhausted = errors.New("search exhausted")

	// ErrPaymentFailed is the gateway's explicit failure signal. Recoverable
	// by retrying BeginPayment.
	ErrPaymentFailed = errors.New("payment failed")

	// ErrExternalUnavailable wraps GeoIndex/gateway reachability failures.
	ErrExternalUnavailable = errors.New("external collaborator unavailable")

	// ErrRequestNotFound is returned for unknown request ids.
	ErrRequestNotFound = errors.New("service request not found")
)

// TransitionError carries the rejected edge for callers that want to show it.
type TransitionError struct {
	RequestID string
	From      models.RequestStatus
	To        models.RequestStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition for request %s: %s -> %s", e.RequestID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func newTransitionError(id string, from, to models.RequestStatus) error {
	return &TransitionError{RequestID: id, From: from, To: to}
}
