package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"example.com/fittrack/internal/config"
	"example.com/fittrack/internal/consumer"
	"example.com/fittrack/internal/logging"
	"example.com/fittrack/internal/store"
)

// The standalone consumer invalidates the shared redis cache for API
// replicas that run with Kafka disabled.
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
	if cfg.Cache.Backend != config.CacheRedis {
		log.Fatalf("standalone consumer requires CACHE_BACKEND=%s, got %q", config.CacheRedis, cfg.Cache.Backend)
	}
	if len(cfg.Kafka.Brokers) == 0 {
		log.Fatal("KAFKA_BROKERS is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := store.DialRedis(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	invalidator := store.New(nil, backend, cfg.Cache.TTL, store.WithLogger(log.WithField("component", "store")))
	defer invalidator.Close()

	metricsSrv := &http.Server{
		Addr:              cfg.HTTP.MetricsAddress,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.WithField("addr", cfg.HTTP.MetricsAddress).Info("consumer metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server error")
		}
	}()

	var wg sync.WaitGroup
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	consumer.StartReaders(ctx, &wg, cfg.Kafka, consumer.NewInvalidationHandler(invalidator),
		log.WithField("component", "consumer"))

	<-stop
	log.Info("consumer shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("metrics server shutdown error")
	}

	wg.Wait()
}
