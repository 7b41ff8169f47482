package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	mpconfig "github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"go.uber.org/zap"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
)

// ErrMissingMercadoPagoAccessToken means the gateway cannot be configured.
var ErrMissingMercadoPagoAccessToken = errors.New("missing MERCADOPAGO_ACCESS_TOKEN")

// MercadoPagoGateway backs the instant-transfer (PIX) method. The charge is
// opened here; confirmation arrives out-of-band via webhook push or the
// coordinator's polling fallback.
type MercadoPagoGateway struct {
	client payment.Client
	logger *zap.Logger
}

// NewMercadoPagoGateway builds the gateway from an access token.
func NewMercadoPagoGateway(accessToken string, logger *zap.Logger) (*MercadoPagoGateway, error) {
	if accessToken == "" {
		return nil, ErrMissingMercadoPagoAccessToken
	}
	cfg, err := mpconfig.New(accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to configure mercado pago sdk: %w", err)
	}
	return &MercadoPagoGateway{client: payment.NewClient(cfg), logger: logger}, nil
}

func (g *MercadoPagoGateway) CreateIntent(ctx context.Context, req *models.ServiceRequest, amount float64) (*models.PaymentIntent, error) {
	mpReq := payment.Request{
		TransactionAmount: amount,
		PaymentMethodID:   "pix",
		Description:       fmt.Sprintf("Chamado %s (%s)", req.ID, req.ServiceType),
		ExternalReference: req.ID,
		Payer: &payment.PayerRequest{
			Email: fmt.Sprintf("client-%s@pagamentos.gigaserv.app", req.ClientID),
		},
	}

	resp, err := g.client.Create(ctx, mpReq)
	if err != nil {
		return nil, fmt.Errorf("mercado pago charge creation failed: %w", err)
	}

	var checkoutURL string
	if resp.PointOfInteraction.TransactionData.TicketURL != "" {
		checkoutURL = resp.PointOfInteraction.TransactionData.TicketURL
	}

	g.logger.Info("mercado pago charge created",
		zap.String("requestId", req.ID),
		zap.Int("paymentId", resp.ID),
		zap.String("status", resp.Status))

	return &models.PaymentIntent{
		Handle:      strconv.Itoa(resp.ID),
		Method:      req.PaymentMethod,
		Amount:      amount,
		CheckoutURL: checkoutURL,
		Confirmed:   resp.Status == "approved",
		CreatedAt:   time.Now(),
	}, nil
}

func (g *MercadoPagoGateway) PollStatus(ctx context.Context, handle string) (models.GatewayStatus, error) {
	id, err := strconv.Atoi(handle)
	if err != nil {
		return models.GatewayPending, fmt.Errorf("malformed mercado pago payment id %q: %w", handle, err)
	}

	resp, err := g.client.Get(ctx, id)
	if err != nil {
		return models.GatewayPending, fmt.Errorf("mercado pago status fetch failed: %w", err)
	}

	switch resp.Status {
	case "approved", "authorized":
		return models.GatewayPaid, nil
	case "rejected", "cancelled", "charged_back":
		return models.GatewayFailed, nil
	default:
		return models.GatewayPending, nil
	}
}
