package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/auth"
	"fintrack/internal/backend"
	"fintrack/internal/cli"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/session"
)

const (
	shutdownTimeout = 30 * time.Second
	sweepInterval   = time.Minute
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := log.Default()

	ctx, cancel := cli.GracefulShutdown(logger)
	defer cancel()

	// Every server gets its own queue so each one sees every change.
	bcfg, err := backend.FromAppConfig(cfg, "")
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	be, err := backend.Open(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	sessions := session.NewManager(be.Store, session.Config{IdleTimeout: cfg.SessionIdleTimeout})

	rl := ratelimit.DefaultConfig()
	rl.RequestsPerSecond = cfg.RateLimitRPS
	rl.Burst = cfg.RateLimitBurst

	srv := apphttp.NewServer(apphttp.Config{
		Addr:        ":" + cfg.Port,
		TrendWindow: cfg.TrendWindowDays,
		RateLimit:   rl,
		Ready:       be.Ready,
	}, sessions, auth.HeaderProvider{})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting fintrack server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := be.Follow(gctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Change bus consumer stopped", log.FieldError, err)
		}
		return nil
	})

	if be.Refresher != nil {
		if err := be.Refresher.StartPolling(gctx, cfg.PollInterval); err != nil {
			logger.Error("Failed to start ledger polling", log.FieldError, err)
			os.Exit(1)
		}
	}
	if err := sessions.Start(gctx, sweepInterval); err != nil {
		logger.Error("Failed to start session sweeper", log.FieldError, err)
		os.Exit(1)
	}

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := sessions.Stop(shutdownCtx); err != nil {
			logger.Error("Session shutdown error", log.FieldError, err)
		}
		if be.Refresher != nil {
			if err := be.Refresher.Stop(shutdownCtx); err != nil {
				logger.Error("Ledger polling shutdown error", log.FieldError, err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
