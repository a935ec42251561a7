package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatcenter/authkit/internal/api"
	"github.com/chatcenter/authkit/internal/core/service"
	"github.com/chatcenter/authkit/internal/infrastructure/config"
	mongodb "github.com/chatcenter/authkit/internal/infrastructure/db/mongo"
	redisdb "github.com/chatcenter/authkit/internal/infrastructure/db/redis"
	"github.com/chatcenter/authkit/internal/infrastructure/queue"
	"github.com/chatcenter/authkit/pkg/logger"
)

const (
	maxLoginFailures = 5
	auditWorkers     = 4
	shutdownTimeout  = 10 * time.Second
)

func main() {
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	cfg, err := config.Load(rootCtx)
	if err != nil {
		fallback := logger.New(logger.Options{})
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: !cfg.IsProduction(),
	})
	log.Info().Str("env", cfg.Env).Msg("starting authd")

	// --- Storage ---
	mongoClient, db, err := mongodb.Connect(rootCtx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connection failed")
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = mongoClient.Disconnect(disconnectCtx)
	}()
	log.Info().Str("database", cfg.Mongo.Database).Msg("mongo connected")

	rdb, err := redisdb.Connect(rootCtx, redisdb.Config{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	defer func() { _ = rdb.Close() }()
	log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")

	// --- Audit pipeline ---
	auditRepo := mongodb.NewAuditRepository(db)
	audit := queue.NewAuditDispatcher(auditWorkers, auditRepo, log)
	audit.Start(rootCtx)

	// --- Service ---
	authService := service.NewAuthService(
		mongodb.NewUserRepository(db),
		redisdb.NewLockoutStore(rdb, cfg.Auth.LockoutWindow, maxLoginFailures),
		redisdb.NewChallengeStore(rdb),
		redisdb.NewRefreshTokenStore(rdb),
		logCodeSender{log: log},
		audit,
		log,
		service.Options{
			JWTSecret:    cfg.Auth.JWTSecret,
			Issuer:       cfg.Auth.Issuer,
			AccessTTL:    cfg.Auth.AccessTTL,
			RefreshTTL:   cfg.Auth.RefreshTTL,
			ChallengeTTL: cfg.Auth.ChallengeTTL,
		},
	)

	// --- HTTP ---
	e := api.NewRouter(authService, db, rdb, cfg.Auth.JWTSecret, log)

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped")
			rootCancel()
		}
	}()
	log.Info().Str("port", cfg.Port).Msg("authd listening")

	<-rootCtx.Done()
	log.Info().Msg("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("forced shutdown")
	}

	audit.Wait()
	log.Info().Msg("authd stopped")
}

// logCodeSender is the development code delivery: it logs that a code was
// sent without ever logging the code itself. Production deployments swap in
// a real sender (email, SMS).
type logCodeSender struct {
	log zerolog.Logger
}

func (s logCodeSender) Send(_ context.Context, email, _ string) error {
	s.log.Info().Str("email", email).Msg("verification code issued")
	return nil
}
