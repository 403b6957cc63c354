// Package main запускает HTTP-сервер кассы обмена валют.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/exchange-counter/internal/config"
	"github.com/mmeshcher/exchange-counter/internal/credential"
	"github.com/mmeshcher/exchange-counter/internal/handler"
	"github.com/mmeshcher/exchange-counter/internal/metrics"
	"github.com/mmeshcher/exchange-counter/internal/middleware"
	"github.com/mmeshcher/exchange-counter/internal/repository"
	"github.com/mmeshcher/exchange-counter/internal/service"
)

func main() {
	cfg, cfgErr := config.Parse()

	level := "info"
	if cfgErr == nil {
		level = cfg.LogLevel
	}
	logger, err := newLogger(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	if cfgErr != nil {
		sugar.Fatalw("configuration error", "error", cfgErr.Error())
	}

	algorithm, err := credential.ParseAlgorithm(cfg.PasswordAlgorithm)
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := openRepository(cfg)
	if err != nil {
		sugar.Fatalw("storage initialization error", "error", err.Error())
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	counterMetrics := metrics.NewCounterMetrics(reg)

	svc := service.NewService(repo, credential.NewHasher(algorithm),
		service.WithLogger(logger),
		service.WithMetrics(counterMetrics),
	)
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Load(ctx); err != nil {
		sugar.Fatalw("state load error", "error", err.Error())
	}

	if cfg.SessionSecret == "" {
		sugar.Warn("SESSION_SECRET is not set, sessions will not survive a restart")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.SessionSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, counterMetrics)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting exchange counter", "addr", cfg.RunAddress, "storage", storageName(cfg))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func openRepository(cfg *config.Config) (service.Repository, error) {
	if cfg.UsePostgres() {
		return repository.NewPostgresRepository(cfg.DatabaseURI)
	}
	return repository.NewSQLiteRepository(cfg.StorePath)
}

func storageName(cfg *config.Config) string {
	if cfg.UsePostgres() {
		return "postgres"
	}
	return "sqlite:" + cfg.StorePath
}
