package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	httpapi "github.com/solas-app/solas-agent/internal/api/http"
	"github.com/solas-app/solas-agent/internal/background"
	"github.com/solas-app/solas-agent/internal/config"
	"github.com/solas-app/solas-agent/internal/environment"
	"github.com/solas-app/solas-agent/internal/identity"
	"github.com/solas-app/solas-agent/internal/lifecycle"
	"github.com/solas-app/solas-agent/internal/location"
	"github.com/solas-app/solas-agent/internal/report"
)

func main() {
	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	// Shared HTTP client for all outbound calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	store, err := identity.OpenSQLite(cfg.IdentityDBPath)
	if err != nil {
		log.WithError(err).Fatal("failed to open identity store")
	}
	defer store.Close()

	sampler := location.NewTermuxSampler(log)
	gateway := environment.NewGateway(httpClient, cfg.WeatherAPIKey)
	reporter := report.NewClient(httpClient, cfg.ServerBaseURL, log)

	ctrl := lifecycle.New(lifecycle.Config{
		Identity:    identity.NewProvider(store, log),
		Sampler:     sampler,
		Environment: gateway,
		Reporter:    reporter,
		Interval:    cfg.PollInterval,
		Samples:     cfg.LocationSamples,
		Logger:      log,
	})

	// An unresolved identity disables reporting but the agent stays up;
	// the status endpoint surfaces the error state.
	if err := ctrl.Start(context.Background()); err != nil {
		log.WithError(err).Error("sampling loop not started")
	}
	defer ctrl.Stop()

	runner := background.New(background.Config{
		Store:       store,
		Sampler:     sampler,
		Environment: gateway,
		Reporter:    reporter,
		Interval:    cfg.BackgroundInterval,
		Logger:      log,
	})
	if err := runner.Arm(context.Background()); err != nil {
		log.WithError(err).Error("failed to arm background tracking")
	}
	defer runner.Disarm()

	app := fiber.New(fiber.Config{
		AppName:               "solas-agent",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
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

	app.Use(fiberlogger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "solas-agent",
		})
	})

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Controller:     ctrl,
		Visualiser:     reporter,
		GeocoderAPIKey: cfg.GeocoderAPIKey,
		Logger:         log,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.WithError(err).Error("fiber server stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.WithError(err).Error("error during shutdown")
	}
}
