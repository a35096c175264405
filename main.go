package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/Adibmaros/tasks-management/api"
	"github.com/Adibmaros/tasks-management/config"
	"github.com/Adibmaros/tasks-management/deadline"
	"github.com/Adibmaros/tasks-management/domain"
	"github.com/Adibmaros/tasks-management/realtime"
	"github.com/Adibmaros/tasks-management/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base, err := storage.New(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}
	defer base.Close()

	var (
		store   api.Store = base
		cache   *storage.Cache
		fanout  *realtime.RedisFanout
		deduper api.Deduper
		health  = map[string]api.Pinger{}
	)
	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	if redisOpts != nil {
		rc := redis.NewClient(redisOpts)
		defer rc.Close()
		cache = storage.NewCache(base, rc, cfg.CacheTTL)
		store = cache
		fanout = realtime.NewRedisFanout(rc, logger)
		deduper = api.NewRedisDeduper(rc, cfg.IdempotencyTTL)
		health["redis"] = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
	} else {
		logger.Info("REDIS_CONNECTION_STRING not set, running single-instance without cache")
	}

	hub := realtime.NewHub(logger)
	publisher := realtime.NewPublisher(hub, fanout, realtime.DispatcherConfig{
		Workers:        cfg.PublishWorkers,
		Buffer:         cfg.PublishBuffer,
		HandoffTimeout: cfg.PublishHandoffTimeout,
	}, logger)
	defer publisher.Close()
	if cache != nil {
		base.SetChangeSink(cache.EvictingSink(publisher))
	} else {
		base.SetChangeSink(publisher)
	}
	go publisher.Run(ctx)

	alerters := deadline.Alerters{
		deadline.AlerterFunc(func(ctx context.Context, task domain.Task) error {
			return publisher.Alert(ctx, task.UserID, task)
		}),
	}
	if cfg.AlertQueue != "" {
		qa, err := deadline.NewQueueAlerter(cfg.AlertQueueConnString, cfg.AlertQueue, deadline.Locale(cfg.Locale))
		if err != nil {
			logger.Fatalf("alert queue: %v", err)
		}
		alerters = append(alerters, qa)
	}
	watcher := deadline.NewWatcher(base, deadline.NewNotifier(alerters, logger), cfg.DeadlineSweepInterval, logger)
	go watcher.Run(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
		AllowCredentials: len(cfg.CORSOrigins) > 0 && cfg.CORSOrigins[0] != "*",
	}))

	api.Register(e, api.Deps{
		Store:         store,
		Auth:          api.NewAuth([]byte(cfg.JWTSecret), "taskboard", cfg.TokenTTL),
		Feed:          hub,
		Deduper:       deduper,
		SessionSecret: []byte(cfg.SessionSecret),
		SecureCookies: cfg.SecureCookies,
		Health:        health,
		Log:           logger,
	})

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("http server stopped")
			stop()
		}
	}()
	logger.WithField("addr", cfg.ListenAddr).Info("taskboard listening")

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
}
