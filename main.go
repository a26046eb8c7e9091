package main

import (
	"context"
	"log" // Used until the zap logger is ready
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"                   // Import Fiber framework
	"github.com/gofiber/fiber/v2/middleware/logger" // Fiber logger middleware
	"go.uber.org/zap"

	"bloodbank/backend/cache"
	"bloodbank/backend/config"
	"bloodbank/backend/database"
	"bloodbank/backend/handlers"
	appLogger "bloodbank/backend/logger"
	"bloodbank/backend/middleware"
	"bloodbank/backend/services"
)

// main is the entry point of the application.
func main() {
	// Load configuration first
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := appLogger.NewLogger(cfg.LogLevel, cfg.LogFormat, "bloodbank-backend")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connection and schema
	pool, err := database.ConnectDB(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.CloseDB(pool, zl)

	if err := database.Migrate(ctx, pool, database.Migrations, zl); err != nil {
		zl.Fatal("Failed to apply migrations", zap.Error(err))
	}

	// Donor listing cache is optional
	var donorCache services.DonorCache
	if cfg.RedisAddr != "" {
		redisClient, err := cache.NewRedisClient(ctx, cfg)
		if err != nil {
			zl.Warn("Redis unavailable, donor cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			donorCache = cache.NewDonorCache(redisClient, cfg.DonorCacheTTL, zl)
			zl.Info("Donor cache enabled", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.DonorCacheTTL))
		}
	}

	var notifier services.Notifier
	if cfg.SMTPHost == "" || cfg.SMTPUsername == "" {
		zl.Warn("SMTP is not configured, verification emails will be logged")
		notifier = services.NewLogMailer(zl)
	} else {
		notifier = services.NewSMTPMailer(cfg)
	}

	// --- Setup application services ---
	authService := services.NewAuthService(cfg, pool, notifier, zl)
	profileService := services.NewProfileService(pool, donorCache, zl)
	roleService := services.NewRoleService(pool, zl)
	lifecycleService := services.NewLifecycleService(pool, donorCache, zl)
	dashboardService := services.NewDashboardService(pool, donorCache, zl)

	// Create a new Fiber app instance
	app := fiber.New(fiber.Config{
		AppName:      "bloodbank-backend",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})

	// Add logger middleware for http requests
	app.Use(logger.New())

	handlers.SetupHealthRoute(app, pool, zl)

	// Setup API v1 group
	apiV1 := app.Group("/api/v1")
	authMiddleware := middleware.Protected(cfg, authService, zl)

	// --- Setup routes ---
	handlers.SetupAuthRoutes(apiV1, authService, authMiddleware, zl)
	handlers.SetupProfileRoutes(apiV1, profileService, authMiddleware, zl)
	handlers.SetupRoleRoutes(apiV1, roleService, authMiddleware, zl)
	handlers.SetupRequestRoutes(apiV1, lifecycleService, authMiddleware, zl)
	handlers.SetupDonationRoutes(apiV1, lifecycleService, authMiddleware, zl)
	handlers.SetupDashboardRoutes(apiV1, dashboardService, authMiddleware, zl)

	go func() {
		<-ctx.Done()
		zl.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			zl.Error("Server shutdown failed", zap.Error(err))
		}
	}()

	zl.Info("Starting Blood Bank backend server", zap.String("port", cfg.ServerPort))
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		zl.Error("Server stopped with error", zap.Error(err))
	}
}
