package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/services/dispatch"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/utils"
)

// ChamadoHandler exposes the request lifecycle over HTTP.
type ChamadoHandler struct {
	Svc    dispatch.LifecycleService
	Logger *zap.Logger
}

// NewChamadoHandler builds the handler.
func NewChamadoHandler(svc dispatch.LifecycleService, logger *zap.Logger) *ChamadoHandler {
	return &ChamadoHandler{Svc: svc, Logger: logger}
}

// respondError maps domain errors onto HTTP statuses.
func (h *ChamadoHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, dispatch.ErrRequestNotFound):
		utils.JSONError(c, http.StatusNotFound, "chamado not found", err.Error())
	case errors.Is(err, dispatch.ErrInvalidValue):
		utils.JSONError(c, http.StatusBadRequest, "invalid value", err.Error())
	case errors.Is(err, dispatch.ErrInvalidTransition):
		utils.JSONError(c, http.StatusConflict, "invalid transition", err.Error())
	case errors.Is(err, dispatch.ErrSearchExhausted):
		utils.JSONError(c, http.StatusConflict, "search exhausted", err.Error())
	case errors.Is(err, dispatch.ErrPaymentFailed):
		utils.JSONError(c, http.StatusPaymentRequired, "payment failed", err.Error())
	case errors.Is(err, dispatch.ErrExternalUnavailable):
		utils.JSONError(c, http.StatusServiceUnavailable, "upstream unavailable", err.Error())
	default:
		h.Logger.Error("unhandled chamado error", zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, "internal error", err.Error())
	}
}

// CreateRequest opens a chamado and starts the provider search.
func (h *ChamadoHandler) CreateRequest(c *gin.Context) {
	var input dispatch.CreateRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	req, err := h.Svc.CreateRequest(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// GetRequest returns the chamado plus its live search session, if any.
func (h *ChamadoHandler) GetRequest(c *gin.Context) {
	id := c.Param("id")
	req, err := h.Svc.GetRequest(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := gin.H{"request": req}
	if session, ok := h.Svc.SearchSession(id); ok {
		resp["searchSession"] = session
	}
	if state := h.Svc.PaymentState(id); state != models.PaymentStateIdle {
		resp["paymentState"] = state
	}
	c.JSON(http.StatusOK, resp)
}

// Cancel ends the chamado from either side.
func (h *ChamadoHandler) Cancel(c *gin.Context) {
	var input struct {
		By         models.Party        `json:"by" binding:"required"`
		Category   models.CancelReason `json:"category" binding:"required"`
		ReasonText string              `json:"reasonText"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	req, err := h.Svc.Cancel(c.Request.Context(), c.Param("id"), input.By, input.Category, input.ReasonText)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// RetrySearch restarts matching after a timeout, clearing exclusions.
func (h *ChamadoHandler) RetrySearch(c *gin.Context) {
	req, err := h.Svc.RetrySearch(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// Engage is a provider taking the chamado.
func (h *ChamadoHandler) Engage(c *gin.Context) {
	var input struct {
		ProviderID string `json:"providerId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	req, err := h.Svc.ProviderEngage(c.Request.Context(), c.Param("id"), input.ProviderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// Decline is an offered provider turning the chamado down.
func (h *ChamadoHandler) Decline(c *gin.Context) {
	var input struct {
		ProviderID string `json:"providerId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	req, err := h.Svc.ProviderDecline(c.Request.Context(), c.Param("id"), input.ProviderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// Propose registers a price proposal from either side.
func (h *ChamadoHandler) Propose(c *gin.Context) {
	var input struct {
		By    models.Party `json:"by" binding:"required"`
		Value float64      `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	req, err := h.Svc.Propose(c.Request.Context(), c.Param("id"), input.By, input.Value)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// Accept accepts the other side's outstanding proposal.
func (h *ChamadoHandler) Accept(c *gin.Context) {
	var input struct {
		By models.Party `json:"by" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	req, err := h.Svc.AcceptProposal(c.Request.Context(), c.Param("id"), input.By)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// SetDirectPayment toggles out-of-platform settlement.
func (h *ChamadoHandler) SetDirectPayment(c *gin.Context) {
	var input struct {
		Direct *bool `json:"direct" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	req, err := h.Svc.SetDirectPayment(c.Request.Context(), c.Param("id"), *input.Direct)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// Confirm is the client-only gate into awaiting_payment.
func (h *ChamadoHandler) Confirm(c *gin.Context) {
	req, err := h.Svc.ConfirmAndProceed(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// BeginPayment opens a charge for the agreed value.
func (h *ChamadoHandler) BeginPayment(c *gin.Context) {
	var input struct {
		Method models.PaymentMethod `json:"method" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	intent, err := h.Svc.BeginPayment(c.Request.Context(), c.Param("id"), input.Method)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

// Complete is the provider reporting the work done.
func (h *ChamadoHandler) Complete(c *gin.Context) {
	var input struct {
		ProviderID string `json:"providerId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	req, err := h.Svc.CompleteService(c.Request.Context(), c.Param("id"), input.ProviderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// ConfirmCompletion is the client's final sign-off.
func (h *ChamadoHandler) ConfirmCompletion(c *gin.Context) {
	req, err := h.Svc.ConfirmCompletion(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}
