package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"medshare/internal/app"
	"medshare/internal/platform/config"
	"medshare/internal/platform/logger"
)

const poolStatsInterval = 15 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		logger.New("error").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing medshare",
		"addr", cfg.Server.Addr,
		"environment", cfg.Server.Environment,
		"postgres", cfg.Database.URL != "",
		"redis", cfg.Redis.URL != "",
		"kafka", cfg.Kafka.Brokers != "",
	)

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			log.Error("failed to release backends", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           application.Handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := application.Cleanup.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if application.Redis != nil {
		g.Go(func() error {
			return application.Redis.RunPoolStats(gctx, poolStatsInterval)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
