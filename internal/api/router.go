// Package api provides the ops HTTP API of the forecast sync worker.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/forecastsync/forecastsync/internal/api/handler"
	"github.com/forecastsync/forecastsync/internal/api/middleware"
	"github.com/forecastsync/forecastsync/internal/forecaststore"
	"github.com/forecastsync/forecastsync/internal/preferences"
	"github.com/forecastsync/forecastsync/internal/provider/resilience"
)

// DefaultServiceName is used for tracing when RouterConfig.ServiceName is empty.
const DefaultServiceName = "forecastsync-worker"

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// DB is pinged by the readiness probe. Nil for in-memory deployments.
	DB handler.Pinger

	Providers   *resilience.Registry
	Cycles      handler.CycleSource
	Jobs        handler.SyncJob
	Schedule    handler.Schedule
	Forecasts   forecaststore.Repository
	Preferences preferences.Store

	PubSubEnabled bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.ContentTypeJSON)

	logger := cfg.Logger.With().Str("component", "api").Logger()

	opsCfg := handler.OpsConfig{
		Version:       cfg.Version,
		BuildTime:     cfg.BuildTime,
		DB:            cfg.DB,
		Providers:     cfg.Providers,
		Cycles:        cfg.Cycles,
		Schedule:      cfg.Schedule,
		PubSubEnabled: cfg.PubSubEnabled,
	}
	if cfg.Jobs != nil {
		opsCfg.Jobs = cfg.Jobs
	}
	opsHandler := handler.NewOpsHandler(opsCfg)

	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		if cfg.Forecasts != nil {
			forecastHandler := handler.NewForecastHandler(cfg.Forecasts, logger)
			r.With(standardRateLimit).Get("/forecast", forecastHandler.List)
			r.With(standardRateLimit).Get("/aviation", forecastHandler.Aviation)
		}

		if cfg.Preferences != nil {
			prefsHandler := handler.NewPreferencesHandler(cfg.Preferences, logger)
			r.Route("/preferences", func(r chi.Router) {
				r.Use(standardRateLimit)
				r.Get("/", prefsHandler.Get)
				r.With(middleware.RequireJSON).Put("/", prefsHandler.Update)
			})
		}

		if cfg.Jobs != nil {
			syncHandler := handler.NewSyncHandler(cfg.Jobs)
			r.With(middleware.RateLimitByIP(middleware.SyncTriggerRateLimit)).Post("/sync", syncHandler.Trigger)
		}
	})

	return r
}
