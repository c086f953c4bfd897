package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"example.com/fittrack/internal/api"
	"example.com/fittrack/internal/auth"
	"example.com/fittrack/internal/config"
	"example.com/fittrack/internal/consumer"
	"example.com/fittrack/internal/dashboard"
	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/gateway"
	"example.com/fittrack/internal/logging"
	"example.com/fittrack/internal/persistence/postgres"
	"example.com/fittrack/internal/store"
	httptransport "example.com/fittrack/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logging.Setup(logging.SetupParams{
		Level:    cfg.Log.Level,
		JSON:     cfg.Log.JSON,
		File:     cfg.Log.File,
		ToStdout: cfg.Log.ToStdout,
	})
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("invalid timezone: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var closers []func() error

	gw := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.Timeout)

	var source domain.Source = gw
	if cfg.Source == config.SourcePostgres {
		pool, err := postgres.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		closers = append(closers, func() error { pool.Close(); return nil })
		source = postgres.NewSource(pool)
	}

	var backend store.Backend
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		backend, err = store.DialRedis(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
	default:
		backend = store.NewMemoryBackend(cfg.Cache.SizeBytes)
	}

	activityStore := store.New(source, backend, cfg.Cache.TTL,
		store.WithLogger(log.WithField("component", "store")))
	closers = append(closers, activityStore.Close)

	service := dashboard.NewService(activityStore, gw,
		dashboard.WithLocation(loc),
		dashboard.WithLogger(log.WithField("component", "dashboard")))

	var wg sync.WaitGroup
	if cfg.Kafka.Enabled {
		consumer.StartReaders(ctx, &wg, cfg.Kafka, consumer.NewInvalidationHandler(activityStore),
			log.WithField("component", "consumer"))
	}

	handler := api.NewHandler(service, log.WithField("component", "api"))
	router := api.NewRouter(handler, api.RouterConfig{
		Auth: auth.Config{
			Secret:        cfg.Auth.JWTSecret,
			Issuer:        cfg.Auth.JWTIssuer,
			// Row-level security filters on the tenant, so an empty one reads nothing.
			RequireTenant: cfg.Source == config.SourcePostgres,
		},
		AllowedOrigin: cfg.HTTP.AllowedOrigin,
		Logger:        log.WithField("component", "http"),
	})

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTP.Address,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}, router, log.StandardLogger())

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.WithFields(log.Fields{
			"addr":   cfg.HTTP.Address,
			"source": cfg.Source,
			"cache":  cfg.Cache.Backend,
		}).Info("insights service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	log.Info("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
	wg.Wait()

	var closeErr error
	for i := len(closers) - 1; i >= 0; i-- {
		closeErr = multierr.Append(closeErr, closers[i]())
	}
	if closeErr != nil {
		log.WithError(closeErr).Warn("errors while releasing resources")
	}
}
