package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/services/dispatch"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/utils"
)

// PaymentWebhookHandler receives gateway push notifications. It is the push
// half of the payment confirmation race; polling is the fallback half.
type PaymentWebhookHandler struct {
	Payments *dispatch.PaymentCoordinator
	Logger   *zap.Logger
}

func NewPaymentWebhookHandler(payments *dispatch.PaymentCoordinator, logger *zap.Logger) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{Payments: payments, Logger: logger}
}

// GatewayPush handles the gateway's payment notification. The gateway keys
// notifications by our request ID (sent as the external reference when the
// intent was created).
func (h *PaymentWebhookHandler) GatewayPush(c *gin.Context) {
	var payload struct {
		ExternalReference string `json:"externalReference" binding:"required"`
		Status            string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid webhook payload", err.Error())
		return
	}

	var status models.GatewayStatus
	switch payload.Status {
	case "paid", "approved", "authorized":
		status = models.GatewayPaid
	case "failed", "rejected", "cancelled", "charged_back":
		status = models.GatewayFailed
	default:
		status = models.GatewayPending
	}

	h.Logger.Info("payment gateway push received",
		zap.String("requestId", payload.ExternalReference),
		zap.String("status", payload.Status))

	h.Payments.HandleGatewayPush(payload.ExternalReference, status)
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}
