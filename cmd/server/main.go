package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iliyamo/blogger-platform/internal/config"
	"github.com/iliyamo/blogger-platform/internal/database"
	"github.com/iliyamo/blogger-platform/internal/handler"
	"github.com/iliyamo/blogger-platform/internal/logger"
	"github.com/iliyamo/blogger-platform/internal/middleware"
	"github.com/iliyamo/blogger-platform/internal/queue"
	"github.com/iliyamo/blogger-platform/internal/repository"
	"github.com/iliyamo/blogger-platform/internal/router"
	"github.com/iliyamo/blogger-platform/internal/service"
	"github.com/iliyamo/blogger-platform/internal/utils"
)

func main() {
	cfg := config.Load() // Load environment config
	logger.Init(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		url := database.MigrationURL(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err := database.Migrate(url, "up"); err != nil {
			logger.Fatalf("migrate: %v", err)
		}
		logger.Info().Msg("schema up to date")
	}

	store := repository.NewStore(db)
	tokens := utils.NewTokenIssuer(cfg.TokenKeys())
	publisher := queue.NewPublisher(cfg.AMQPURL)

	auth := service.NewAuthService(service.AuthDeps{
		Users:      store.Users,
		Sessions:   store.Sessions,
		Ledger:     store.Tokens,
		Writer:     store,
		Tokens:     tokens,
		Events:     publisher,
		BcryptCost: cfg.BcryptCost,
	})

	// Redis is optional: without it the likes feed reads SQL directly and
	// /auth is not rate limited.
	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb != nil {
		defer rdb.Close()
	}
	feed := service.NewLikeFeed(rdb, store.Reactions)
	likes := service.NewLikeService(store, store.Reactions, feed, cfg.NewestLikesLimit)

	e := router.New(router.Deps{
		Auth:        handler.NewAuthHandler(auth, cfg.CookieSecure),
		Security:    handler.NewSecurityHandler(auth),
		Likes:       handler.NewLikesHandler(likes),
		Admin:       handler.NewAdminHandler(auth),
		Access:      auth,
		Sessions:    auth,
		AuthLimiter: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
		SALogin:     cfg.SALogin,
		SAPassword:  cfg.SAPassword,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := queue.StartAuditConsumer(ctx, cfg.AMQPURL, "logs"); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("audit consumer stopped")
		}
	}()

	addr := ":" + cfg.Port
	go func() {
		logger.Infof("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
	}
}
