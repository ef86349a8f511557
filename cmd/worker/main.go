package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"asistencia/internal/config"
	"asistencia/internal/queue"
	"asistencia/internal/store"
	"asistencia/internal/tally"
)

// Worker consumes attendance events and maintains the daily tallies.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadWorker(ctx)
	if err != nil {
		panic(err)
	}

	logger, err := zap.NewDevelopment()
	if cfg.Production() {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	rdb := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rdb.Close()
	if !rdb.Healthy(ctx) {
		logger.Warn("redis not reachable yet, consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}

	q := queue.NewRedisQueue(rdb.Client, cfg.QueueKey)
	messages, err := q.Consume(ctx)
	if err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}

	logger.Info("worker started, waiting for messages", zap.String("queue", cfg.QueueKey))
	tally.Run(ctx, messages, tally.NewRedis(rdb.Client, ""), logger.Named("tally"))
	logger.Info("worker stopped")
}
