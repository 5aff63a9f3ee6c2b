// Package cli provides the initialization shared by cmd/fintrack and
// cmd/fintrack-mirror.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"fintrack/internal/config"
	"fintrack/internal/log"
)

// SetupLogger builds a text logger at the named level and installs it as
// the process default.
func SetupLogger(level string) *log.Logger {
	logger := log.NewText(os.Stdout, level, log.ComponentApp)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and runs the given validators.
// It exits the process on the first failure.
func LoadAndValidateConfig(validators ...func(*config.Config) error) *config.Config {
	cfg := config.Load()
	logger := SetupLogger(cfg.LogLevel)

	validators = append([]func(*config.Config) error{(*config.Config).Validate}, validators...)
	for _, validate := range validators {
		if err := validate(cfg); err != nil {
			logger.Error("Configuration validation failed", log.FieldError, err, log.FieldErrorType, log.ErrorTypeConfiguration)
			os.Exit(1)
		}
	}
	return cfg
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM.
func GracefulShutdown(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
