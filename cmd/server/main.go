// Package main runs the Agreet HTTP server with WebSocket fan-out and an
// inline notification worker, shutting down gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/agreet/backend/config"
	"github.com/agreet/backend/internal/auth"
	"github.com/agreet/backend/internal/catalog"
	"github.com/agreet/backend/internal/consensus"
	"github.com/agreet/backend/internal/devices"
	"github.com/agreet/backend/internal/middleware"
	"github.com/agreet/backend/internal/models"
	"github.com/agreet/backend/internal/notifier"
	"github.com/agreet/backend/internal/realtime"
	"github.com/agreet/backend/internal/sessions"
	"github.com/agreet/backend/internal/votes"
	"github.com/agreet/backend/internal/worker"
	"github.com/agreet/backend/pkg/database"
	"github.com/agreet/backend/pkg/push"
	"github.com/agreet/backend/pkg/queue"
	"github.com/agreet/backend/pkg/redis"
	"github.com/agreet/backend/pkg/response"
	"github.com/agreet/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	redisClient, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer func() { _ = redisClient.Close() }()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ImagesBucket:         cfg.AWS.ImagesBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Fatal("s3", zap.Error(err))
		}
	} else {
		logger.Warn("AWS_REGION not set, option images disabled")
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	userRepo := auth.NewRepository(pool)
	catalogRepo := catalog.NewRepository(pool)
	sessionRepo := sessions.NewRepository(pool)
	voteRepo := votes.NewRepository(pool)
	deviceRepo := devices.NewRepository(pool)

	pubsub := realtime.NewRedisPubSub(redisClient.Client, logger)
	hub := realtime.NewHub(logger, pubsub, pubsub)
	jobQueue := queue.NewQueue(redisClient.Client, logger)

	trigger := notifier.NewTrigger(jobQueue, hub, logger)
	engine := consensus.NewEngine(sessionRepo, voteRepo, trigger, logger)

	authHandler := auth.NewHandler(userRepo, jwtService, logger)
	catalogHandler := catalog.NewHandler(catalogRepo, s3Client, logger)
	sessionHandler := sessions.NewHandler(sessionRepo, cfg.Session, hub, logger)
	voteHandler := votes.NewHandler(engine, voteRepo, hub, logger)
	deviceHandler := devices.NewHandler(deviceRepo, logger)

	router := gin.New()
	router.Use(middleware.Logger(logger), gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		response.OK(c, gin.H{"status": "ok"})
	})

	router.POST("/auth/device", authHandler.DeviceSignIn)
	router.POST("/auth/login", authHandler.Login)

	authed := router.Group("/", middleware.JWT(jwtService))
	{
		authed.POST("/auth/register", authHandler.Register)
		authed.GET("/auth/me", authHandler.Me)
		authed.PATCH("/auth/me", authHandler.UpdateProfile)

		authed.GET("/categories", catalogHandler.ListCategories)
		authed.GET("/categories/:id/options", catalogHandler.ListOptions)

		authed.POST("/sessions", sessionHandler.Create)
		authed.POST("/sessions/join", sessionHandler.Join)
		authed.GET("/sessions", sessionHandler.List)
		authed.GET("/sessions/:id", sessionHandler.Get)
		authed.POST("/sessions/:id/close", sessionHandler.Close)
		authed.POST("/sessions/:id/votes", voteHandler.Cast)
		authed.GET("/sessions/:id/votes", voteHandler.ListMine)

		authed.PUT("/devices/token", deviceHandler.UpdateToken)

		admin := authed.Group("/", middleware.RequireRole(string(models.RoleAdmin)))
		admin.POST("/options/:id/image", catalogHandler.UploadOptionImage)
	}

	// WebSocket (token in query; no Authorization header required)
	wsAuth := wsAuthorizer{jwt: jwtService, sessions: sessionRepo}
	router.GET("/ws", realtime.ServeWs(hub, wsAuth, logger))

	// Inline notification worker. Deployments that run cmd/worker separately
	// can leave APNs unconfigured here.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.APNs.Enabled() {
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
		matchNotifier := notifier.New(apns, sessionRepo, catalogRepo, deviceRepo, logger)
		processor := worker.NewNotificationProcessor(matchNotifier, jobQueue, logger)
		go processor.Run(workerCtx)
		logger.Info("notification worker started")
	} else {
		logger.Warn("APNs not configured, match pushes queue for an external worker")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// wsAuthorizer gates WebSocket subscriptions: a valid JWT and session
// membership are both required.
type wsAuthorizer struct {
	jwt      *auth.JWTService
	sessions *sessions.Repository
}

func (a wsAuthorizer) ValidateToken(token string) (uuid.UUID, error) {
	claims, err := a.jwt.Validate(token)
	if err != nil {
		return uuid.Nil, err
	}
	return claims.UserID, nil
}

func (a wsAuthorizer) IsParticipant(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
	return a.sessions.IsParticipant(ctx, sessionID, userID)
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
