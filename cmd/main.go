package main

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"landed-cost-service/internal/cache"
	"landed-cost-service/internal/config"
	"landed-cost-service/internal/database"
	"landed-cost-service/internal/events"
	"landed-cost-service/internal/handlers"
	"landed-cost-service/internal/httpx"
	"landed-cost-service/internal/middleware"
	"landed-cost-service/internal/providers"
	"landed-cost-service/internal/repository"
	"landed-cost-service/internal/services"
	"landed-cost-service/internal/taric"
)

func main() {
	cfg := config.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	log.Info("connected to database")

	if err := database.RunMigrations(db, log); err != nil {
		log.WithError(err).Fatal("failed to run database migrations")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("invalid REDIS_URL")
		}
		redisClient = redis.NewClient(opts)
		log.Info("redis cache enabled")
	} else {
		log.Warn("REDIS_URL not set, rate caching disabled")
	}
	rateCache := cache.NewRateCache(redisClient, log)

	// Repositories
	shipmentRepo := repository.NewShipmentRepository(db)
	taricRepo := repository.NewTaricRepository(db)
	snapshotRepo := repository.NewRateSnapshotRepository(db)
	fallbackRepo := repository.NewFallbackRepository(db)

	// Rate providers share one fetcher; each upstream gets its own breaker
	fetcher := httpx.NewFetcher(log, rate.NewLimiter(rate.Limit(10), 10))
	ukBreaker := httpx.NewCircuitBreaker(3, 30*time.Second)
	euBreaker := httpx.NewCircuitBreaker(3, 30*time.Second)
	vatBreaker := httpx.NewCircuitBreaker(3, 30*time.Second)
	fxBreaker := httpx.NewCircuitBreaker(3, 30*time.Second)

	ukProvider := providers.NewUKTariffProvider(rateCache, snapshotRepo, fallbackRepo,
		fetcher, ukBreaker, cfg.UKTariffAPIBase, log)
	euProvider := providers.NewEUTaricProvider(rateCache, snapshotRepo, fallbackRepo,
		fetcher, euBreaker, cfg.EUTaricAPIBase, cfg.EUTaricAPIKey, log)
	vatProvider := providers.NewVatProvider(rateCache, snapshotRepo, fallbackRepo,
		fetcher, vatBreaker, cfg.VatAPIBase, cfg.VatAPIKey, log)
	fxProvider := providers.NewFxProvider(rateCache, snapshotRepo, fallbackRepo,
		fetcher, fxBreaker, cfg.ECBAPIBase, log)

	// Services
	resolver := services.NewTaricResolver(taricRepo, log)
	shipmentService := services.NewShipmentService(shipmentRepo, log)
	importer := taric.NewImporter(taricRepo, log)

	var notifier services.CalculationNotifier
	if cfg.NatsURL != "" {
		publisher, err := events.NewPublisher(cfg.NatsURL, log)
		if err != nil {
			log.WithError(err).Warn("events publisher unavailable, calculations will not be published")
		} else {
			defer publisher.Close()
			notifier = publisher
			log.Info("events publisher initialized")
		}
	}

	calculator := services.NewCalculator(shipmentRepo, resolver, ukProvider,
		vatProvider, fxProvider, notifier, log)

	// Handlers
	shipmentHandler := handlers.NewShipmentHandler(shipmentService)
	calculationHandler := handlers.NewCalculationHandler(calculator, shipmentService)
	taricHandler := handlers.NewTaricHandler(resolver, importer, taricRepo)
	ratesHandler := handlers.NewRatesHandler(fxProvider, ukProvider, euProvider)

	router := setupRouter(cfg, log, db,
		shipmentHandler, calculationHandler, taricHandler, ratesHandler)

	log.WithFields(logrus.Fields{
		"port": cfg.Port,
		"env":  cfg.Environment,
	}).Info("landed-cost service starting")
	if err := router.Run(":" + cfg.Port); err != nil {
		log.WithError(err).Fatal("failed to start server")
	}
}

// setupRouter configures the HTTP router
func setupRouter(cfg *config.Config, log *logrus.Logger, db *gorm.DB,
	shipmentHandler *handlers.ShipmentHandler,
	calculationHandler *handlers.CalculationHandler,
	taricHandler *handlers.TaricHandler,
	ratesHandler *handlers.RatesHandler) *gin.Engine {

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	// Health checks
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "landed-cost-service",
		})
	})
	router.GET("/livez", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/readyz", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil {
			c.JSON(503, gin.H{"status": "error", "message": "database not available"})
			return
		}
		if err := sqlDB.Ping(); err != nil {
			c.JSON(503, gin.H{"status": "error", "message": "database ping failed"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.JWTSecret))
	{
		shipments := v1.Group("/shipments")
		{
			shipments.POST("", shipmentHandler.Create)
			shipments.GET("", shipmentHandler.List)
			shipments.GET("/:id", shipmentHandler.Get)
			shipments.PATCH("/:id", shipmentHandler.Update)
			shipments.DELETE("/:id", shipmentHandler.Delete)

			shipments.POST("/:id/items", shipmentHandler.AddItem)
			shipments.PUT("/:id/items/:itemId", shipmentHandler.UpdateItem)
			shipments.DELETE("/:id/items/:itemId", shipmentHandler.DeleteItem)

			shipments.PUT("/:id/costs", shipmentHandler.UpsertCosts)
			shipments.GET("/:id/costs", shipmentHandler.GetCosts)

			shipments.POST("/:id/calculate", calculationHandler.Calculate)
			shipments.GET("/:id/calculation", calculationHandler.GetCalculation)
		}

		v1.GET("/taric/resolve", taricHandler.Resolve)
		v1.GET("/taric/goods", taricHandler.GoodsDescription)

		rates := v1.Group("/rates")
		{
			rates.GET("/fx", ratesHandler.GetFxRate)
			rates.GET("/uk-duty", ratesHandler.GetUKDuty)
			rates.GET("/eu-duty", ratesHandler.GetEUDuty)
		}

		admin := v1.Group("/admin", middleware.RequireAdmin())
		{
			admin.POST("/taric/import", taricHandler.ImportSnapshot)
		}
	}

	return router
}
