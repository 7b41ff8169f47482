package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/services/tracking"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/utils"
)

// TrackingHandler exposes the live position feed for an in-service chamado.
type TrackingHandler struct {
	Feed   tracking.TrackingFeed
	Logger *zap.Logger
}

func NewTrackingHandler(feed tracking.TrackingFeed, logger *zap.Logger) *TrackingHandler {
	return &TrackingHandler{Feed: feed, Logger: logger}
}

// PublishPosition ingests one position sample from the provider's app.
func (h *TrackingHandler) PublishPosition(c *gin.Context) {
	var input struct {
		ProviderID string  `json:"providerId" binding:"required"`
		Lat        float64 `json:"lat" binding:"required"`
		Lng        float64 `json:"lng" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	pos := models.ProviderPosition{
		RequestID:  c.Param("id"),
		ProviderID: input.ProviderID,
		Location:   models.NewGeoPoint(input.Lat, input.Lng),
	}
	if err := h.Feed.PublishPosition(c.Request.Context(), pos); err != nil {
		h.Logger.Error("failed to publish position", zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, "failed to publish position", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "published"})
}

// LastPosition returns the most recent sample, if it is still fresh.
func (h *TrackingHandler) LastPosition(c *gin.Context) {
	pos, err := h.Feed.LastPosition(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.JSONError(c, http.StatusInternalServerError, "failed to fetch position", err.Error())
		return
	}
	if pos == nil {
		c.JSON(http.StatusNoContent, nil)
		return
	}
	c.JSON(http.StatusOK, pos)
}

// StreamPositions streams live samples as server-sent events until the
// client disconnects.
func (h *TrackingHandler) StreamPositions(c *gin.Context) {
	positions, cancel := h.Feed.Stream(c.Request.Context(), c.Param("id"))
	defer cancel()

	c.Stream(func(w io.Writer) bool {
		select {
		case pos, ok := <-positions:
			if !ok {
				return false
			}
			c.SSEvent("position", pos)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
