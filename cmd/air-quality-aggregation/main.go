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

	"github.com/aqwatch/air-quality-aggregation/internal/airquality"
	"github.com/aqwatch/air-quality-aggregation/internal/airquality/adapters"
	httpapi "github.com/aqwatch/air-quality-aggregation/internal/api/http"
	"github.com/aqwatch/air-quality-aggregation/internal/attribution"
	"github.com/aqwatch/air-quality-aggregation/internal/cache"
	"github.com/aqwatch/air-quality-aggregation/internal/config"
	"github.com/aqwatch/air-quality-aggregation/internal/geo"
	"github.com/aqwatch/air-quality-aggregation/internal/scheduler"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Source adapters with resilience (backoff + circuit breaker +
	// rate limiting). Keys without credentials stay registered; their
	// adapters fail with source_unavailable when called.
	registry := airquality.NewRegistry(
		adapters.NewOpenAQAdapter(httpClient, cfg.OpenAQAPIKey),
		adapters.NewAirNowAdapter(httpClient, cfg.AirNowAPIKey),
		adapters.NewTEMPOAdapter(httpClient),
		adapters.NewPandoraAdapter(httpClient),
		adapters.NewPurpleAirAdapter(httpClient, cfg.PurpleAirAPIKey),
		adapters.NewOpenWeatherAdapter(httpClient, cfg.OpenWeatherAPIKey),
	)

	// Process-wide state, created once here and torn down at exit.
	queryCache := cache.New()
	ledger := attribution.NewLedger(attribution.DefaultCatalog())
	siteRegistry := geo.NewRegistry(geo.DefaultSites(), func() ([]geo.Site, error) {
		// Wholesale refresh from the built-in roster until a live
		// listing source is wired in.
		return geo.DefaultSites(), nil
	})
	siteIndex := geo.NewLinearIndex(siteRegistry)

	orchCfg := airquality.OrchestratorConfig{
		TTL:             cfg.TTL,
		AdapterTimeout:  cfg.AdapterTimeout,
		DefaultRadiusKM: cfg.DefaultRadiusKM,
	}
	if cfg.GeocoderAPIKey != "" {
		orchCfg.Geocoder = geo.NewGoogleGeocoder(cfg.GeocoderAPIKey)
	}
	orch := airquality.NewOrchestrator(registry, queryCache, ledger, siteIndex, orchCfg)

	// Maintenance jobs: cache sweep and registry refresh.
	sched := scheduler.New(queryCache, cfg.SweepInterval, cfg.SweepGrace, siteRegistry, cfg.SiteRefreshInterval)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "air-quality-aggregation",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
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
			"service": "air-quality-aggregation",
			"sources": registry.Keys(),
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, orch, ledger, queryCache)

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
