// Package main runs the standalone match notification worker: it drains the
// Redis job queue and delivers APNs pushes, independent of the HTTP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/agreet/backend/config"
	"github.com/agreet/backend/internal/catalog"
	"github.com/agreet/backend/internal/devices"
	"github.com/agreet/backend/internal/notifier"
	"github.com/agreet/backend/internal/sessions"
	"github.com/agreet/backend/internal/worker"
	"github.com/agreet/backend/pkg/database"
	"github.com/agreet/backend/pkg/push"
	"github.com/agreet/backend/pkg/queue"
	"github.com/agreet/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if !cfg.APNs.Enabled() {
		logger.Fatal("APNs credentials required: set APPLE_TEAM_ID, APNS_KEY_ID, APNS_P8_KEY, APPLE_BUNDLE_ID")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	redisClient, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer func() { _ = redisClient.Close() }()

	apns, err := push.NewClient(push.Config{
		TeamID:     cfg.APNs.TeamID,
		KeyID:      cfg.APNs.KeyID,
		PrivateKey: cfg.APNs.PrivateKey,
		BundleID:   cfg.APNs.BundleID,
		Host:       cfg.APNs.Host,
	}, logger)
	if err != nil {
		logger.Fatal("apns", zap.Error(err))
	}

	sessionRepo := sessions.NewRepository(pool)
	catalogRepo := catalog.NewRepository(pool)
	deviceRepo := devices.NewRepository(pool)

	jobQueue := queue.NewQueue(redisClient.Client, logger)
	matchNotifier := notifier.New(apns, sessionRepo, catalogRepo, deviceRepo, logger)
	processor := worker.NewNotificationProcessor(matchNotifier, jobQueue, logger)

	runCtx, stop := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		stop()
	}()

	logger.Info("notification worker listening", zap.String("queue", queue.QueueNotifications))
	processor.Run(runCtx)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
