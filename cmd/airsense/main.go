package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/airsense/airsense/internal/advisory"
	"github.com/airsense/airsense/internal/advisory/providers"
	httpapi "github.com/airsense/airsense/internal/api/http"
	"github.com/airsense/airsense/internal/broadcast"
	"github.com/airsense/airsense/internal/config"
	"github.com/airsense/airsense/internal/reading"
	"github.com/airsense/airsense/internal/scheduler"
	"github.com/airsense/airsense/internal/store"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Durable sqlite-backed stores.
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	readings := store.NewReadingStore(db)
	profiles := store.NewProfileStore(db)

	// Live fan-out to connected viewers, with a periodic keepalive so
	// dead connections get pruned between readings.
	broadcaster := broadcast.New(cfg.IAQCalibrationOffset)
	sched := scheduler.New(broadcaster, cfg.KeepaliveInterval)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Ingestion pipeline: validate, persist, then broadcast.
	ingest := reading.NewService(readings, broadcaster)

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.ProviderTimeout,
	}
	gemini := providers.NewGeminiClient(httpClient, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.ProviderTimeout)
	advisor := advisory.NewOrchestrator(profiles, gemini)

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "airsense",
		DisableStartupMessage: true,
		// No WriteTimeout: the live stream endpoint is long-lived.
		ReadTimeout: 10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "airsense",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, httpapi.Deps{
		Ingest:      ingest,
		Readings:    readings,
		Profiles:    profiles,
		Broadcaster: broadcaster,
		Advisor:     advisor,
		IAQOffset:   cfg.IAQCalibrationOffset,
	})

	// Start server with graceful shutdown
	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
