package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"questbot-system/handlers"
	"questbot-system/middleware"
	"questbot-system/models"
	"questbot-system/services"
	"questbot-system/utils"
	"questbot-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		sugar.Fatal("DATABASE_URL environment variable not set")
	}

	gatewayURL := os.Getenv("PLATFORM_GATEWAY_URL")
	if gatewayURL == "" {
		sugar.Fatal("PLATFORM_GATEWAY_URL environment variable not set")
	}
	serviceToken := os.Getenv("QUESTBOT_SERVICE_TOKEN")
	if serviceToken == "" {
		sugar.Fatal("QUESTBOT_SERVICE_TOKEN is not set — service cannot authenticate Gateway")
	}

	if err := utils.InitR2(); err != nil {
		sugar.Fatal("failed to initialize R2 client: ", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		sugar.Fatal("failed to connect to database: ", err)
	}

	if err := db.AutoMigrate(
		&models.UserRecord{},
		&models.QuestRecord{},
		&models.StreakGainEntry{},
		&models.CommunitySettings{},
	); err != nil {
		sugar.Fatal("failed to migrate database: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	platform := services.NewPlatformClient(gatewayURL, serviceToken, sugar)
	settingsService := services.NewSettingsService(db, sugar)
	streakService := services.NewStreakService(db, sugar)
	roleSyncService := services.NewRoleSyncService(sugar, platform)
	xpService := services.NewXPService(db, sugar, platform, settingsService, streakService)
	leaderboardService := services.NewLeaderboardService(db, sugar, xpService)
	reactorService := services.NewReactorService(db, sugar, platform, xpService, streakService, settingsService, roleSyncService)

	// Level-changing triggers schedule marker reconciliation here; the queue
	// serializes per (user, community) so concurrent triggers cannot
	// interleave role edits.
	reconcileQueue := workers.NewReconcileQueue(ctx, sugar, roleSyncService)
	xpService.Reconciler = reconcileQueue

	exportWorker := workers.NewLeaderboardExportWorker(db, sugar, platform, leaderboardService)
	exportScheduler, err := exportWorker.Start(ctx)
	if err != nil {
		sugar.Fatal("failed to start leaderboard export worker: ", err)
	}

	app := fiber.New(fiber.Config{})

	// 🔐 GLOBAL: only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware(serviceToken, sugar))

	handlers.SetupXPRoutes(app, sugar, xpService, leaderboardService, settingsService, roleSyncService, platform)
	handlers.SetupEventRoutes(app, sugar, reactorService)

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":5300"
	}
	go func() {
		if err := app.Listen(addr); err != nil {
			sugar.Errorf("Server error: %v", err)
		}
	}()

	sugar.Infof("✅ QuestBot service running on %s", addr)
	sugar.Info("✅ Leaderboard export worker running (hourly)")
	sugar.Info("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")

	<-ctx.Done()
	sugar.Info("Shutting down server...")
	if err := exportScheduler.Shutdown(); err != nil {
		sugar.Warnf("Export scheduler shutdown: %v", err)
	}
	reconcileQueue.Wait()
	_ = app.Shutdown()
}
