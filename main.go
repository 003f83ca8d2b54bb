package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"roi-distribution-system/configs"
	"roi-distribution-system/handlers"
	"roi-distribution-system/logger"
	"roi-distribution-system/middleware"
	"roi-distribution-system/models"
	"roi-distribution-system/services"
	"roi-distribution-system/utils"
	"roi-distribution-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := configs.Load()
	if err != nil {
		// logger not initialized yet
		zap.Must(zap.NewProduction()).Fatal("invalid configuration", zap.Error(err))
	}

	log := logger.Init(cfg.Env)
	defer logger.Sync()

	clock := clockwork.NewRealClock()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		NowFunc: func() time.Time { return clock.Now().UTC() },
	})
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := models.AutoMigrate(db); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sender workers.Sender = workers.LogSender{Log: log}
	if cfg.NotifyWebhookURL != "" {
		sender = workers.NewWebhookSender(cfg.NotifyWebhookURL, cfg.ServiceToken)
	}
	dispatcher := workers.NewNotificationDispatcher(sender, cfg.NotifyQueueSize, log)
	dispatcher.Start(ctx)

	engine := services.NewDistributionService(db, log, clock, dispatcher)
	if cfg.R2.Enabled() {
		store, err := utils.NewR2Store(ctx, cfg.R2)
		if err != nil {
			log.Fatal("failed to initialize R2 client", zap.Error(err))
		}
		engine.Archive = store
	} else {
		log.Info("R2 not configured, run summaries are not archived")
	}
	referrals := services.NewReferralService(db, log, clock)

	if cfg.SyncServiceURL != "" {
		workers.NewInvestorSyncWorker(db, referrals, log, cfg.SyncServiceURL, cfg.ServiceToken, cfg.SyncInterval).Start(ctx)
	} else {
		log.Warn("SYNC_SERVICE_URL not set, investor sync disabled")
	}

	hour, minute, _ := configs.ParseRunAt(cfg.RunAt)
	scheduler, err := services.NewScheduler(engine, services.NewRunGuard(), services.SchedulerConfig{
		Hour:         hour,
		Minute:       minute,
		RunOnStartup: cfg.RunOnStartup,
	}, clock, log)
	if err != nil {
		log.Fatal("failed to build scheduler", zap.Error(err))
	}
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal("failed to start scheduler", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed, except the health probe
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, log, "/health"))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-Service-Token, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "error": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "ok", "scheduler": scheduler.Status()})
	})

	handlers.SetupDistributionRoutes(app, &handlers.DistributionHandler{
		Scheduler: scheduler,
		Engine:    engine,
		Referrals: referrals,
		Log:       log,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("server error", zap.Error(err))
		}
	}()

	log.Info("✅ Server running", zap.String("port", cfg.Port))
	log.Info("✅ GatewayAuthMiddleware enforced globally")
	log.Info("✅ CORS configured", zap.Strings("origins", cfg.AllowedOrigins))

	<-ctx.Done()
	log.Info("Shutting down server...")

	if err := scheduler.Stop(); err != nil {
		log.Warn("scheduler shutdown", zap.Error(err))
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Warn("server shutdown", zap.Error(err))
	}
	dispatcher.Wait()
}
