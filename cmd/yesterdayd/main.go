// Command yesterdayd runs the temperature comparison service: the HTTP query
// API, the subscriber store, and the notification scheduler, against the KMA
// short-term forecast OpenAPI.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/ondamlab/yesterday/internal/adapter/httpapi"
	"github.com/ondamlab/yesterday/internal/adapter/kma"
	"github.com/ondamlab/yesterday/internal/adapter/push"
	"github.com/ondamlab/yesterday/internal/adapter/rediskv"
	"github.com/ondamlab/yesterday/internal/adapter/sqlite"
	"github.com/ondamlab/yesterday/internal/cache"
	"github.com/ondamlab/yesterday/internal/compare"
	"github.com/ondamlab/yesterday/internal/config"
	"github.com/ondamlab/yesterday/internal/observability"
	"github.com/ondamlab/yesterday/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Key-value store backing the comparison cache and the send records.
	var kvStore cache.Store
	var redisStore *rediskv.Store
	if cfg.RedisAddr != "" {
		redisStore, err = rediskv.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Error("redis connection failed", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		kvStore = redisStore
		logger.Info("using redis key-value store", "addr", cfg.RedisAddr)
	} else {
		kvStore = cache.NewMemoryStore(clockwork.NewRealClock())
		logger.Info("using in-process key-value store")
	}

	store, err := sqlite.New(cfg.SQLitePath, logger)
	if err != nil {
		logger.Error("subscriber store init failed", "path", cfg.SQLitePath, "error", err)
		os.Exit(1)
	}

	gateway := kma.NewClient(cfg.KMAAPIKey, cfg.KMABaseURL, cfg.KMATimeout, logger, metrics)
	comparer := compare.NewService(
		cache.New(kvStore, logger, metrics), gateway, logger, metrics,
		cfg.CompareCacheTTL, cfg.ExtremesCacheTTL,
	)

	var pusher scheduler.Pusher
	var kafkaPublisher *push.KafkaPublisher
	switch cfg.PushMode {
	case config.PushModeFCM:
		pusher = push.NewFCMSender(cfg.PushEndpoint, cfg.PushServerKey, cfg.KMATimeout, logger)
		logger.Info("push channel: fcm", "endpoint", cfg.PushEndpoint)
	case config.PushModeKafka:
		kafkaPublisher = push.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaPushTopic, logger)
		pusher = kafkaPublisher
		logger.Info("push channel: kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaPushTopic)
	default:
		pusher = push.NewLogSender(logger)
		logger.Info("push channel: log only")
	}

	sched := scheduler.New(
		scheduler.Config{
			Interval:    cfg.TickInterval,
			Jitter:      cfg.TickJitter,
			DueWindow:   cfg.DueWindow,
			Concurrency: cfg.FetchConcurrency,
		},
		store, comparer, pusher,
		scheduler.NewKVSendRecorder(kvStore, cfg.SendRecordTTL),
		logger, metrics, clockwork.NewRealClock(),
	)

	srv := httpapi.NewServer(cfg.HTTPAddr, store, comparer, pusher, cfg.DefaultTZ, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := sched.Run(ctx); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("subscriber store close error", "error", err)
	}
	if redisStore != nil {
		if err := redisStore.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
