package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/JinxX404/BookNest-fullstack/internal/api/handlers"
	rediscache "github.com/JinxX404/BookNest-fullstack/internal/cache/redis"
	"github.com/JinxX404/BookNest-fullstack/internal/events"
	"github.com/JinxX404/BookNest-fullstack/internal/jobs"
	"github.com/JinxX404/BookNest-fullstack/internal/metrics"
	"github.com/JinxX404/BookNest-fullstack/internal/middleware/ratelimit"
	"github.com/JinxX404/BookNest-fullstack/internal/middleware/security"
	"github.com/JinxX404/BookNest-fullstack/internal/recsys"
	"github.com/JinxX404/BookNest-fullstack/internal/registry"
	"github.com/JinxX404/BookNest-fullstack/internal/storage/sqlite"
	"github.com/JinxX404/BookNest-fullstack/internal/trigger"
	"github.com/JinxX404/BookNest-fullstack/pkg/config"
	appLogger "github.com/JinxX404/BookNest-fullstack/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting BookNest recommendation API server")
	metrics.Init()

	db, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer db.Close()

	if err := db.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	// Redis is optional. Without it the service serves uncached and routes
	// rating events through the in-process bus instead of pub/sub.
	var cache *rediscache.Client
	if cfg.Redis.Enabled {
		cache, err = rediscache.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.CacheTTL)*time.Second,
		)
		if err != nil {
			appLogger.Warn("Redis unavailable, continuing without cache", zap.Error(err))
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	reg := registry.New(db)
	svc := recsys.NewService(db, reg, cache, cfg.Recommender)

	pool := jobs.NewPool(cfg.Jobs.Workers, cfg.Jobs.QueueSize)
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(rootCtx)

	var publisher events.Publisher
	var eventCh <-chan events.RatingEvent
	if cache != nil {
		publisher = cache
		eventCh = cache.SubscribeRatingEvents(rootCtx)
	} else {
		bus := events.NewBus()
		publisher = bus
		ch, unsubscribe := bus.Subscribe()
		defer unsubscribe()
		eventCh = ch
	}

	if cfg.Trigger.Enabled {
		trig := trigger.New(trigger.Config{
			Threshold: cfg.Trigger.RatingThreshold,
			TopN:      cfg.Recommender.TopN,
			Spec:      svc.DefaultSpec(),
		}, svc, db, pool)
		go trig.Run(rootCtx, eventCh)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
	})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(limiter.Middleware())

	ratingHandler := handlers.NewRatingHandler(db, publisher, cache, cfg.Recommender.ScaleMin, cfg.Recommender.ScaleMax)
	modelHandler := handlers.NewModelHandler(svc, reg, pool)
	recHandler := handlers.NewRecommendationHandler(svc, db, pool, cfg.Recommender.MinRatingsPerUser)
	jobHandler := handlers.NewJobHandler(pool)

	api := app.Group("/api/v1")

	api.Post("/ratings", ratingHandler.UpsertRating)

	api.Post("/models/train", modelHandler.TrainModel)
	api.Get("/models", modelHandler.ListModels)
	api.Post("/models/:id/activate", modelHandler.ActivateModel)

	api.Get("/recommendations", recHandler.GetRecommendations)
	api.Get("/recommendations/:user_id/stored", recHandler.GetStoredRecommendations)
	api.Post("/recommendations/generate", recHandler.GenerateRecommendations)

	api.Get("/jobs/:id", jobHandler.GetJob)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/jobs", websocket.New(jobHandler.HandleConnection))

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	cancel()
	pool.Stop()
	app.Shutdown()
	appLogger.Info("Server stopped")
}
