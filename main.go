package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pong-match-system/config"
	"pong-match-system/handlers"
	"pong-match-system/middleware"
	"pong-match-system/models"
	"pong-match-system/services"
	"pong-match-system/utils"
	"pong-match-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot, _ := utils.NewLogger("info")
		boot.Fatal("invalid configuration", zap.Error(err))
	}

	logger, err := utils.NewLogger(cfg.LogLevel)
	if err != nil {
		boot, _ := utils.NewLogger("info")
		boot.Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := db.AutoMigrate(&models.ConnectedUser{}, &models.GameHistory{}); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	presence := services.NewPresenceService(db)
	if err := presence.ResetAll(ctx); err != nil {
		logger.Fatal("failed to reset presence", zap.Error(err))
	}
	history := services.NewHistoryService(db, cfg.HistoryLimit)

	recorders := services.MatchRecorders{history}
	r2 := utils.R2Settings{
		AccountID:       cfg.CloudflareAccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		AccessKeySecret: cfg.R2AccessKeySecret,
		Bucket:          cfg.R2BucketName,
	}
	if r2.Enabled() {
		client, err := utils.NewR2Client(ctx, r2)
		if err != nil {
			logger.Fatal("failed to initialize R2 client", zap.Error(err))
		}
		recorders = append(recorders, services.NewMatchArchive(client, r2.Bucket, logger))
		logger.Info("match archive enabled", zap.String("bucket", r2.Bucket))
	}

	var verifier middleware.Verifiers
	if cfg.JWTSecret != "" {
		verifier = append(verifier, middleware.NewJWTVerifier(cfg.JWTSecret))
	}
	if cfg.AuthServiceURL != "" {
		verifier = append(verifier, middleware.ServiceVerifier{
			Client: services.NewAuthServiceClient(cfg.AuthServiceURL, cfg.AuthServiceToken),
		})
	}

	lobbyCfg := services.DefaultLobbyConfig()
	lobbyCfg.Session.WinningScore = cfg.WinningScore
	lobby := services.NewLobby(lobbyCfg, presence, recorders, logger)
	lobbyDone := make(chan struct{})
	go func() {
		lobby.Run(ctx)
		close(lobbyDone)
	}()

	jobs := []services.Job{services.ReaperJob(lobby, cfg.PendingSessionTTL, logger)}
	if cfg.SyncServiceURL != "" {
		onboarding := workers.NewOnboardingWorker(presence, cfg.SyncServiceURL, cfg.GameServiceToken, logger)
		jobs = append(jobs, services.Job{
			Name:      "onboarding-sync",
			Every:     cfg.SyncInterval,
			Immediate: true,
			Run:       onboarding.Sync,
		})
	} else {
		logger.Warn("SYNC_SERVICE_URL not set, users are recorded on first connect only")
	}
	sched, err := services.StartScheduler(ctx, logger, jobs...)
	if err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	origins := cfg.Origins()
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	handlers.SetupGameRoutes(app, history, lobby, presence, verifier, cfg.GameServiceToken, logger)
	handlers.SetupSocketRoutes(app, lobby, verifier, logger)

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()
	logger.Info("server running", zap.String("addr", cfg.ListenAddr), zap.String("origins", origins))

	<-ctx.Done()
	logger.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := sched.Shutdown(); err != nil {
		logger.Warn("scheduler shutdown", zap.Error(err))
	}
	<-lobbyDone
}
