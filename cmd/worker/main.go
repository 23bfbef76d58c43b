// Package main provides the entrypoint for the forecast sync worker. The
// worker runs scheduled and on-demand sync cycles and serves the ops API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/forecastsync/forecastsync/internal/api"
	"github.com/forecastsync/forecastsync/internal/api/handler"
	"github.com/forecastsync/forecastsync/internal/api/middleware"
	"github.com/forecastsync/forecastsync/internal/database"
	"github.com/forecastsync/forecastsync/internal/forecaststore"
	"github.com/forecastsync/forecastsync/internal/notify"
	"github.com/forecastsync/forecastsync/internal/preferences"
	"github.com/forecastsync/forecastsync/internal/provider/resilience"
	"github.com/forecastsync/forecastsync/internal/syncer"
	"github.com/forecastsync/forecastsync/internal/telemetry"
	"github.com/forecastsync/forecastsync/internal/weather"
	"github.com/forecastsync/forecastsync/internal/weather/checkwx"
	"github.com/forecastsync/forecastsync/internal/weather/openweathermap"
	"github.com/forecastsync/forecastsync/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", telemetry.DefaultServiceName).
		Str("version", Version).
		Logger()

	if err := worker.LoadDotEnv(); err != nil {
		log.Fatal().Err(err).Msg("failed to load .env")
	}

	cfg, err := worker.ConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log = log.Level(cfg.LogLevel)

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Dur("sync_interval", cfg.SyncInterval).
		Msg("starting forecast sync worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("worker stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("worker stopped")
}

// stores are the persistence backends selected by configuration.
type stores struct {
	prefs     preferences.Store
	forecasts forecaststore.Repository
	db        handler.Pinger
	close     func()
}

func openStores(ctx context.Context, cfg worker.Config, log zerolog.Logger) (*stores, error) {
	defaults := preferences.Preferences{
		PreferredLocationName: cfg.DefaultLocation,
		NotificationsEnabled:  cfg.NotificationsEnabled,
	}

	if !cfg.DBEnabled {
		log.Warn().Msg("DB_ENABLED is false, using in-memory stores")
		return &stores{
			prefs:     preferences.NewInMemoryStore(defaults),
			forecasts: forecaststore.NewInMemoryRepository(),
			close:     func() {},
		}, nil
	}

	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	ev := log.Info().Int32("max_conns", dbConfig.MaxConns)
	if dbConfig.URL != "" {
		ev = ev.Str("source", "DATABASE_URL")
	} else {
		ev = ev.Str("host", dbConfig.Host).Int("port", dbConfig.Port).Str("database", dbConfig.Database)
	}
	ev.Msg("database connected")

	return &stores{
		prefs:     preferences.NewPostgresStore(pool, defaults),
		forecasts: forecaststore.NewPostgresRepository(pool),
		db:        pool,
		close:     pool.Close,
	}, nil
}

// newProviderClient builds a resilient client that logs circuit transitions.
func newProviderClient(name string, cfg worker.Config, registry *resilience.Registry, log zerolog.Logger) *resilience.Client {
	cb := resilience.DefaultCircuitBreakerConfig(name)
	cb.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn().
			Str("provider", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("circuit breaker state changed")
	}
	return resilience.NewClient(resilience.ClientConfig{
		Name:           name,
		Timeout:        cfg.FetchTimeout,
		CircuitBreaker: &cb,
		Registry:       registry,
	})
}

func run(ctx context.Context, cfg worker.Config, log zerolog.Logger) error {
	tp, err := telemetry.Init(ctx, telemetry.ConfigFromEnv(Version))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()

	httpMetrics, err := middleware.NewMetricsWithMeter(tp.Meter)
	if err != nil {
		return err
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	urls, err := weather.NewURLBuilder(cfg.Endpoints)
	if err != nil {
		return err
	}

	registry := resilience.GlobalRegistry
	forecastClient := newProviderClient(openweathermap.ProviderName, cfg, registry, log)
	aviationClient := newProviderClient(checkwx.ProviderName, cfg, registry, log)

	var psClient *pubsub.Client
	if cfg.PubSubEnabled() || cfg.NotifyTopicEnabled() {
		psClient, err = pubsub.NewClient(ctx, cfg.PubSubProjectID)
		if err != nil {
			return err
		}
		defer psClient.Close()
	}

	sinks := notify.Multi{notify.NewLogSink(log)}
	if cfg.NotifyTopicEnabled() {
		publisher := notify.NewTopicPublisher(psClient, cfg.PubSubNotifyTopic)
		defer publisher.Stop()

		pubsubSink := notify.NewPubSubSink(notify.PubSubSinkConfig{Publisher: publisher, Logger: log})
		defer pubsubSink.Wait()

		sinks = append(sinks, pubsubSink)
		log.Info().Str("topic", cfg.PubSubNotifyTopic).Msg("publishing notifications to pubsub")
	}

	orchestrator, err := syncer.NewOrchestrator(syncer.Config{
		URLs:            urls,
		ForecastFetcher: forecastClient,
		AviationFetcher: aviationClient,
		Preferences:     st.prefs,
		Store:           st.forecasts,
		Notifier:        sinks,
		Logger:          log,
		Tracer:          tp.Tracer,
		Meter:           tp.Meter,
		PersistAviation: cfg.PersistAviation,
		CycleTimeout:    cfg.SyncTimeout,
	})
	if err != nil {
		return err
	}

	job := worker.NewSyncJob(worker.SyncJobConfig{Runner: orchestrator, Logger: log})

	scheduler := worker.NewScheduler(worker.SchedulerConfig{
		Job:        job,
		Interval:   cfg.SyncInterval,
		RunOnStart: cfg.SyncOnStart,
		Logger:     log,
	})
	if err := scheduler.Start(); err != nil {
		return err
	}
	defer scheduler.Stop()

	if cfg.PubSubEnabled() {
		subscriber, err := worker.NewPubSubHandler(worker.PubSubConfig{
			Client:           psClient,
			SubscriptionName: cfg.PubSubSubscription,
			SyncJob:          job,
			Logger:           log,
		})
		if err != nil {
			return err
		}
		go func() {
			if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	}

	router := api.NewRouter(api.RouterConfig{
		Version:       Version,
		BuildTime:     BuildTime,
		Logger:        log,
		ServiceName:   telemetry.DefaultServiceName,
		Metrics:       httpMetrics,
		DB:            st.db,
		Providers:     registry,
		Cycles:        orchestrator,
		Jobs:          job,
		Schedule:      scheduler,
		Forecasts:     st.forecasts,
		Preferences:   st.prefs,
		PubSubEnabled: cfg.PubSubEnabled(),
	})

	// WriteTimeout leaves room for a full cycle behind POST /v1/sync.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.SyncTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-serverErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
