package handlers

import (
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/services/realtime"
)

// StatusStreamHandler streams a chamado's status changes to a party's app
// as server-sent events. Both the client and the engaged provider watch the
// same feed.
type StatusStreamHandler struct {
	Broadcaster realtime.Broadcaster
	Logger      *zap.Logger
}

func NewStatusStreamHandler(b realtime.Broadcaster, logger *zap.Logger) *StatusStreamHandler {
	return &StatusStreamHandler{Broadcaster: b, Logger: logger}
}

// StreamStatus subscribes to the request and relays events until the
// connection drops.
func (h *StatusStreamHandler) StreamStatus(c *gin.Context) {
	requestID := c.Param("id")
	events, cancel := h.Broadcaster.Subscribe(requestID)
	defer cancel()

	h.Logger.Debug("status stream opened", zap.String("requestId", requestID))

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("status", ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
