package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/webdash/storefront/internal/config"
	"github.com/webdash/storefront/internal/events"
	h "github.com/webdash/storefront/internal/http"
	"github.com/webdash/storefront/internal/logger"
	"github.com/webdash/storefront/internal/service"
	"github.com/webdash/storefront/internal/statestore"
	"github.com/webdash/storefront/internal/submission"
	"github.com/webdash/storefront/internal/webhook"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.DefaultConfig()).Fatal("failed to load config", zap.Error(err))
	}

	log := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	defer log.Sync()
	zap.ReplaceGlobals(log)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("redis connection failed", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	log.Info("redis ping succeeded", zap.String("addr", cfg.Redis.Addr))

	// Signals: local bus, mirrored across instances through Redis.
	bus := events.NewBus(log)
	relay := events.NewRedisRelay(redisClient, bus, cfg.Redis.KeyPrefix+"signals", log)
	bus.SetRelay(relay)
	go func() {
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("signal relay stopped", zap.Error(err))
		}
	}()
	defer relay.Close()

	states := statestore.NewRedisStateStore(redisClient, cfg.Redis.KeyPrefix, cfg.Redis.StateTTL, log)
	hub := service.NewHub(states, bus, log)

	var ledger submission.Ledger
	switch cfg.Ledger.Driver {
	case "sqlite":
		sqliteLedger, err := submission.NewSQLiteLedger(cfg.Ledger.SQLitePath)
		if err != nil {
			log.Fatal("failed to open submission ledger", zap.Error(err))
		}
		defer sqliteLedger.Close()
		if err := sqliteLedger.RunMigrations(); err != nil {
			log.Fatal("failed to migrate submission ledger", zap.Error(err))
		}
		ledger = sqliteLedger
	default:
		ledger = submission.NewRedisLedger(redisClient, cfg.Redis.KeyPrefix, log)
	}
	log.Info("submission ledger ready", zap.String("driver", cfg.Ledger.Driver))

	var remote submission.RemoteAPI
	if cfg.Remote.BaseURL != "" {
		remote = submission.NewRemoteClient(submission.RemoteConfig{
			BaseURL:         cfg.Remote.BaseURL,
			Timeout:         cfg.Remote.Timeout,
			BreakerFailures: cfg.Remote.BreakerFailures,
			BreakerTimeout:  cfg.Remote.BreakerTimeout,
		}, log)
		log.Info("remote submission api enabled", zap.String("base_url", cfg.Remote.BaseURL))
	}

	submissions := submission.NewService(
		webhook.NewDispatcher(cfg.Webhook.Timeout, log),
		remote,
		ledger,
		submission.RetryPolicy{Attempts: cfg.Webhook.RetryAttempts, Delay: cfg.Webhook.RetryDelay},
		log,
	)

	sessionStore := sessions.NewCookieStore(sessionKey(cfg, log))
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.Secure = cfg.Session.Secure
	sessionStore.Options.SameSite = http.SameSiteLaxMode
	sessionStore.Options.Path = "/"

	router := h.NewRouter(h.RouterConfig{
		Hub:            hub,
		Submissions:    submissions,
		Sessions:       sessionStore,
		Log:            log,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("storefront starting", zap.String("port", cfg.App.Port), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	stop()

	log.Info("server exited")
}

// sessionKey returns the configured cookie key. Outside production a random
// key is generated, so sessions do not survive a restart.
func sessionKey(cfg *config.Config, log *zap.Logger) []byte {
	if cfg.Session.Key != "" {
		return []byte(cfg.Session.Key)
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		log.Fatal("failed to generate session key", zap.Error(err))
	}
	log.Warn("session.key not set, using a random key")
	return key
}
