package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"orderlens/internal/aggregate"
	"orderlens/internal/backend"
	"orderlens/internal/cache"
	"orderlens/internal/cli"
	"orderlens/internal/dashboard"
	apphttp "orderlens/internal/http"
	"orderlens/internal/log"
	"orderlens/internal/parser"

	"github.com/dustin/go-humanize"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	// Choose where the dataset lives (default: memory).
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Slog()).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	parserOpts, err := cli.ParserOptions(cfg, logger)
	if err != nil {
		logger.Error("Invalid parser configuration", log.FieldError, err)
		os.Exit(1)
	}
	defaults, err := cli.DefaultView(cfg)
	if err != nil {
		logger.Error("Invalid dashboard defaults", log.FieldError, err)
		os.Exit(1)
	}

	snapshots := cache.NewLRUCache[dashboard.Snapshot](cfg.CacheSize, cfg.CacheTTL)
	caches := cache.NewManager(logger.WithComponent(log.ComponentCache).Slog())
	caches.Register(snapshots)
	caches.StartCleanup(time.Minute)

	engine := dashboard.NewEngine(snapshots, aggregate.BreakdownOptions{KeepNonPositive: cfg.KeepNonPositiveGroups}, logger)
	recomputer := dashboard.NewRecomputer(engine, logger)
	session := dashboard.NewSession(result.Store, engine, recomputer, defaults, time.Now)

	srv := apphttp.NewServer(cfg.ListenAddr(), apphttp.Deps{
		Session:           session,
		Parser:            parser.New(parserOpts),
		Logger:            logger,
		Location:          parserOpts.Location,
		MaxUploadBytes:    cfg.MaxUploadBytes,
		UploadsPerMinute:  cfg.UploadsPerMinute,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})

	// Configure server timeouts and limits. Uploads may be large, so reads
	// get more room than the other phases.
	srv.ReadTimeout = 60 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err, log.FieldOperation, log.OpShutdown)
		}
		recomputer.Close()
		caches.Stop()
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err, log.FieldOperation, log.OpShutdown)
		}
	})

	logger.Info("Starting orderlens server",
		"addr", cfg.ListenAddr(),
		"backend", cfg.DataBackend,
		"timezone", parserOpts.Location.String(),
		"max_upload", humanize.IBytes(uint64(cfg.MaxUploadBytes)),
		log.FieldOperation, log.OpStartup,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "addr", cfg.ListenAddr())
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
