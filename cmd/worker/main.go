package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"presence/internal/config"
	"presence/internal/logging"
	"presence/internal/queue"
	"presence/internal/store"
	"presence/internal/tally"
)

// Worker consumes presence events from Redis and maintains per-course tallies.
func main() {
	cfg := config.Load()

	logger, flush, err := logging.Install(cfg.Production(), cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer flush()

	if cfg.QueueBackend != "redis" {
		logger.Fatal("worker requires QUEUE_BACKEND=redis", zap.String("queue_backend", cfg.QueueBackend))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := store.NewRedis(cfg.RedisAddr)
	if err != nil {
		logger.Fatal("invalid redis address", zap.Error(err))
	}
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable yet, consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}

	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	counter := tally.NewRedisCounter(redisClient.Client, "")

	logger.Info("worker started", zap.String("queue", cfg.QueueKey))
	if err := tally.Run(ctx, q, counter); err != nil {
		logger.Fatal("queue consume failed", zap.Error(err))
	}
	logger.Info("worker stopped")
}
