package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"middleware-pipeline/internal/config"
	"middleware-pipeline/internal/logger"
	"middleware-pipeline/internal/redisx"
	"middleware-pipeline/internal/server"
	"middleware-pipeline/middleware/pipeline"

	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		slog.Error("gateway stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Upstream.URL == "" {
		return errors.New("upstream.url is required (PIPELINE_UPSTREAM__URL)")
	}
	target, err := url.Parse(cfg.Upstream.URL)
	if err != nil {
		return err
	}

	level := logger.ParseLevel(cfg.Log.Level)
	log, flush := logger.NewWithSentry(logger.SentryConfig{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Release:     cfg.Sentry.Release,
		Level:       level,
		MinLevel:    slog.LevelWarn,
	}, pipeline.RequestIDExtractor, pipeline.UserIDExtractor)
	defer flush(2 * time.Second)
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var rdb redis.UniversalClient
	if cfg.Redis.URL != "" {
		openCtx, openCancel := context.WithTimeout(ctx, 10*time.Second)
		rdb, err = redisx.Open(openCtx, cfg.Redis.URL, redisx.WithOpTimeout(cfg.Redis.OpTimeout))
		openCancel()
		if err != nil {
			return err
		}
		defer func() { _ = redisx.Shutdown(rdb) }()
	}

	stack, err := server.New(ctx, cfg, server.Deps{Logger: log, Redis: rdb})
	if err != nil {
		return err
	}

	proxy := server.NewProxy(target, log)
	h, err := stack.Handler(proxy, proxy, nil)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if err := stack.Shutdown(shutdownCtx); err != nil {
			log.Warn("pipeline shutdown", slog.String("error", err.Error()))
		}
	}()

	log.Info("gateway listening",
		slog.String("addr", cfg.Server.Addr),
		slog.String("upstream", target.String()),
		slog.Any("order", stack.Order()),
		slog.Int("routes", len(cfg.Routes)),
		slog.Bool("redis", rdb != nil),
		slog.Bool("ratelimit", cfg.RateLimit.Enabled),
		slog.Bool("cache", cfg.Cache.Enabled),
		slog.String("cache_strategy", cfg.Cache.Strategy),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
