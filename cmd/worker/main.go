package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/storefront-api/internal/app"
	"github.com/noah-isme/storefront-api/internal/config"
	"github.com/noah-isme/storefront-api/internal/db"
	"github.com/noah-isme/storefront-api/internal/events"
	"github.com/noah-isme/storefront-api/internal/notify"
	"github.com/noah-isme/storefront-api/internal/obs"
)

func main() {
	cfg := config.MustLoad()
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Str("component", "worker").Logger()
	ctx, stop := signal.NotifyContext(logger.WithContext(context.Background()), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := app.OpenPool(startCtx, cfg, "storefront-worker")
	if err != nil {
		cancel()
		logger.Fatal().Err(err).Msg("open database")
	}
	defer pool.Close()
	redisClient, err := app.OpenRedis(startCtx, cfg, false)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("open redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	consumers := []events.Consumer{
		notify.Consumer{Store: notify.NewStore(db.New(pool)), Redis: redisClient},
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := events.NewSyncProducer(cfg.KafkaBrokers, "storefront-worker")
		if err != nil {
			logger.Fatal().Err(err).Msg("connect kafka")
		}
		publisher := events.KafkaPublisher{Producer: producer, Topic: cfg.KafkaTopic}
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error().Err(err).Msg("close kafka producer")
			}
		}()
		consumers = append(consumers, publisher)
	}

	taskRedis, err := app.TaskRedis(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("task queue")
	}
	srv := asynq.NewServer(taskRedis, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		BaseContext: func() context.Context { return logger.WithContext(context.Background()) },
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
		ShutdownTimeout: 10 * time.Second,
	})
	if err := srv.Start(events.NewServeMux(events.Processor{Consumers: consumers})); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker started")

	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}
