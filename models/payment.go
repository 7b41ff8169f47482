package models

import "time"

// PaymentMethod enumerates how a chamado can be settled.
type PaymentMethod string

const (
	PaymentCard            PaymentMethod = "card"
	PaymentInstantTransfer PaymentMethod = "instant_transfer" // PIX-style
	PaymentWallet          PaymentMethod = "wallet"
	PaymentDirect          PaymentMethod = "direct" // paid straight to the provider
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCard, PaymentInstantTransfer, PaymentWallet, PaymentDirect:
		return true
	}
	return false
}

// PaymentState is the coordinator's sub-state while a chamado sits in
// awaiting_payment.
type PaymentState string

const (
	PaymentStateIdle       PaymentState = "idle"
	PaymentStateConfirming PaymentState = "confirming"
	PaymentStateConfirmed  PaymentState = "confirmed"
	PaymentStateError      PaymentState = "error"
)

// PaymentIntent is what a gateway hands back when a charge is opened.
// Synchronous methods (card, wallet) come back already confirmed; the
// instant-transfer path returns a checkout handle confirmed out-of-band.
type PaymentIntent struct {
	Handle      string        `json:"handle"`
	Method      PaymentMethod `json:"method"`
	Amount      float64       `json:"amount"`
	CheckoutURL string        `json:"checkoutUrl,omitempty"`
	Confirmed   bool          `json:"confirmed"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// GatewayStatus is the result of a push notification or a poll against the
// payment gateway.
type GatewayStatus string

const (
	GatewayPaid    GatewayStatus = "paid"
	GatewayFailed  GatewayStatus = "failed"
	GatewayPending GatewayStatus = "pending"
)
