package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"go.uber.org/zap"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
)

// StripeGateway backs the card and wallet methods. Charges confirm
// synchronously: the intent comes back already succeeded or not at all.
// Relies on the package-level stripe.Key set at startup.
type StripeGateway struct {
	Logger *zap.Logger
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req *models.ServiceRequest, amount float64) (*models.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(int64(amount * 100)), // centavos
		Currency: stripe.String(string(stripe.CurrencyBRL)),
		Confirm:  stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx
	params.AddMetadata("requestId", req.ID)
	params.AddMetadata("clientId", req.ClientID)

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe intent creation failed: %w", err)
	}

	g.Logger.Info("stripe payment intent created",
		zap.String("requestId", req.ID),
		zap.String("intent", pi.ID),
		zap.String("status", string(pi.Status)))

	return &models.PaymentIntent{
		Handle:    pi.ID,
		Method:    req.PaymentMethod,
		Amount:    amount,
		Confirmed: pi.Status == stripe.PaymentIntentStatusSucceeded,
		CreatedAt: time.Now(),
	}, nil
}

func (g *StripeGateway) PollStatus(ctx context.Context, handle string) (models.GatewayStatus, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(handle, params)
	if err != nil {
		return models.GatewayPending, fmt.Errorf("stripe intent fetch failed: %w", err)
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return models.GatewayPaid, nil
	case stripe.PaymentIntentStatusCanceled:
		return models.GatewayFailed, nil
	default:
		return models.GatewayPending, nil
	}
}
