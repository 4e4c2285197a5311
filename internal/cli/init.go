// Package cli provides common CLI initialization utilities shared by
// cmd/orderlens and cmd/orderlens-report.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderlens/internal/config"
	"orderlens/internal/core"
	"orderlens/internal/dashboard"
	"orderlens/internal/log"
	"orderlens/internal/parser"

	"github.com/joho/godotenv"
)

// SetupLogger builds the application logger at the given level and makes
// it the slog default. An unknown level falls back to info with a warning.
func SetupLogger(level string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	cfg := log.DefaultConfig()
	cfg.Level = lvl
	logger := log.New(cfg)
	log.SetDefault(logger)
	if err != nil {
		logger.Warn("Falling back to info level", log.FieldError, err)
	}
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// ParserOptions maps the configured column names and timezone onto parser
// options.
func ParserOptions(cfg *config.Config, logger *log.Logger) (parser.Options, error) {
	loc, err := cfg.Location()
	if err != nil {
		return parser.Options{}, err
	}
	return parser.Options{
		IDColumn:       cfg.IDColumn,
		DateColumn:     cfg.DateColumn,
		AmountColumn:   cfg.AmountColumn,
		QuantityColumn: cfg.QuantityColumn,
		Location:       loc,
		Logger:         logger.WithComponent(log.ComponentParser).Slog(),
	}, nil
}

// DefaultView is the view a fresh dataset starts with.
func DefaultView(cfg *config.Config) (dashboard.View, error) {
	g, err := core.ParseGranularity(cfg.DefaultGranularity)
	if err != nil {
		return dashboard.View{}, err
	}
	v := dashboard.View{
		Granularity:     g,
		BreakdownColumn: cfg.DefaultBreakdownColumn,
		TopN:            cfg.DefaultTopN,
	}
	if err := v.Validate(); err != nil {
		return dashboard.View{}, fmt.Errorf("default view: %w", err)
	}
	return v, nil
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that is closed once cleanup has finished or timeout passed.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		cancel()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		case <-finished:
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
