package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/handlers"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/middleware"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/utils"
)

// RegisterChamadoRoutes registers the request lifecycle endpoints.
func RegisterChamadoRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/chamados")
	api.Use(middleware.RateLimitMiddleware())
	{
		api.POST("", hb.Chamado.CreateRequest)
		api.GET("/:id", hb.Chamado.GetRequest)
		api.GET("/:id/stream", hb.Status.StreamStatus)
		api.POST("/:id/cancel", hb.Chamado.Cancel)
		api.POST("/:id/retry", hb.Chamado.RetrySearch)

		// Provider side of the match.
		api.POST("/:id/engage", hb.Chamado.Engage)
		api.POST("/:id/decline", hb.Chamado.Decline)

		// Negotiation.
		api.POST("/:id/propose", hb.Chamado.Propose)
		api.POST("/:id/accept", hb.Chamado.Accept)
		api.POST("/:id/direct-payment", hb.Chamado.SetDirectPayment)
		api.POST("/:id/confirm", hb.Chamado.Confirm)

		// Payment and completion.
		api.POST("/:id/payment", hb.Chamado.BeginPayment)
		api.POST("/:id/complete", hb.Chamado.Complete)
		api.POST("/:id/confirm-completion", hb.Chamado.ConfirmCompletion)
	}
}

// RegisterTrackingRoutes registers the live position feed endpoints.
func RegisterTrackingRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/tracking")
	api.Use(middleware.RateLimitMiddleware())
	{
		api.POST("/:id/position", hb.Tracking.PublishPosition)
		api.GET("/:id/position", hb.Tracking.LastPosition)
		api.GET("/:id/stream", hb.Tracking.StreamPositions)
	}
}

// RegisterWebhookRoutes registers gateway callback endpoints. These are
// called by the payment gateway, not by user apps, so they stay off the
// per-IP rate limiter: a throttled push would stall confirmation until the
// fallback poll.
func RegisterWebhookRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/webhooks")
	{
		api.POST("/payments", hb.Payments.GatewayPush)
	}
}

// RegisterHealthRoute registers a health-check endpoint backed by the
// dependency monitor.
func RegisterHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		status := utils.GetHealthStatus()
		code := http.StatusOK
		if !status.Mongo {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": "ok", "dependencies": status})
	})
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	RegisterChamadoRoutes(r, hb)
	RegisterTrackingRoutes(r, hb)
	RegisterWebhookRoutes(r, hb)
	RegisterHealthRoute(r)
}
