package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stripe/stripe-go/v76"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/config"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/cron"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/database"
	providerRepo "github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/database/repository/provider"
	requestRepo "github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/database/repository/request"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/handlers"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/routes"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/services/dispatch"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/services/notification"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/services/realtime"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/services/tracking"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/utils"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()

	database.InitDB()
	utils.InitRedis()
	utils.FirebaseInit()
	stripe.Key = config.AppConfig.StripeKey

	ctx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	// Repositories.
	reqRepo := requestRepo.NewMongoRequestRepo(database.DB())
	geoIndex := providerRepo.NewMongoGeoIndex(database.DB())
	if err := reqRepo.EnsureIndexes(ctx); err != nil {
		logger.Sugar().Fatalf("main: failed to ensure request indexes: %v", err)
	}

	// Realtime fan-out: orchestrator publishes plus change-stream replays,
	// merged and deduped in the hub.
	hub := realtime.NewHub(logger)
	broadcaster := realtime.NewRedisBroadcaster(ctx, utils.GetCacheClient(), hub, logger)

	statusEvents := make(chan models.StatusEvent, 64)
	go func() {
		if err := reqRepo.WatchStatusChanges(ctx, logger, statusEvents); err != nil {
			logger.Sugar().Warnf("main: change stream unavailable, relying on direct publishes: %v", err)
		}
	}()
	go func() {
		for ev := range statusEvents {
			hub.Publish(ctx, ev)
		}
	}()

	// Services.
	notificationService := notification.NewFCMNotificationService()

	gateways := map[models.PaymentMethod]dispatch.PaymentGateway{
		models.PaymentCard:   &dispatch.StripeGateway{Logger: logger},
		models.PaymentWallet: &dispatch.StripeGateway{Logger: logger},
	}
	if token := config.AppConfig.MercadoPagoAccessToken; token != "" {
		pixGateway, err := dispatch.NewMercadoPagoGateway(token, logger)
		if err != nil {
			logger.Sugar().Fatalf("main: failed to initialize pix gateway: %v", err)
		}
		gateways[models.PaymentInstantTransfer] = pixGateway
	}

	paymentCoordinator := &dispatch.PaymentCoordinator{
		Gateways:     gateways,
		Logger:       logger,
		PollInterval: config.AppConfig.PaymentPollInterval,
		PollCeiling:  config.AppConfig.PaymentPollCeiling,
	}

	matchingEngine := &dispatch.DefaultMatchingEngine{
		Geo:            geoIndex,
		Cache:          utils.GetCacheClient(),
		Logger:         logger,
		RadiusLadderKm: config.AppConfig.SearchRadiusLadderKm,
		Dwell:          config.AppConfig.SearchDwell,
		Cooldown:       config.AppConfig.SearchCooldown,
	}

	nudger := cron.NewNudger()
	lifecycleService := &dispatch.DefaultLifecycleService{
		Repo:        reqRepo,
		Matching:    matchingEngine,
		Payments:    paymentCoordinator,
		Broadcaster: broadcaster,
		Hub:         hub,
		Notifier:    notificationService,
		Nudger:      nudger,
		Logger:      logger,
		NudgeDelay:  30 * time.Second,
	}
	// The orchestrator is the event sink for both background engines.
	matchingEngine.Events = lifecycleService
	paymentCoordinator.Events = lifecycleService

	trackingFeed := &tracking.RedisTrackingFeed{
		Client: utils.GetTrackingCacheClient(),
		Logger: logger,
	}

	cron.InitNudgeWorker(reqRepo, notificationService)
	utils.StartHealthMonitor(
		[]*redis.Client{utils.GetCacheClient(), utils.GetTrackingCacheClient()},
		database.MongoClient,
	)

	// Handlers.
	handlerBundle := &handlers.HandlerBundle{
		Chamado:  handlers.NewChamadoHandler(lifecycleService, logger),
		Payments: handlers.NewPaymentWebhookHandler(paymentCoordinator, logger),
		Tracking: handlers.NewTrackingHandler(trackingFeed, logger),
		Status:   handlers.NewStatusStreamHandler(broadcaster, logger),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())

	routes.RegisterRoutes(router, handlerBundle)

	port := config.AppConfig.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	stopBackground()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar().Fatalf("main: server forced to shutdown: %v", err)
	}

	logger.Sugar().Info("main: server stopped gracefully")
}
