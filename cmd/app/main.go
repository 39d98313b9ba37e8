package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"propresize/internal/config"
	"propresize/internal/handler"
	"propresize/internal/janitor"
	"propresize/internal/logging"
	"propresize/internal/metrics"
	"propresize/internal/middleware"
	"propresize/internal/pipeline"
	"propresize/internal/storage"
	"propresize/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	rasterizer, err := pipeline.NewRasterizer(cfg.ResampleFilter)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid RESAMPLE_FILTER")
	}
	trusted, err := middleware.ParseTrustedProxyCIDRs(cfg.TrustedProxyCIDRs)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid TRUSTED_PROXY_CIDRS")
	}
	if err := storage.EnsureDir(cfg.TempUploadDir); err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.TempUploadDir).Msg("failed to create temp upload dir")
	}

	rec := metrics.New()
	resizer := pipeline.New(pipeline.Config{
		Target:          pipeline.TargetSpec{MinWidth: cfg.MinWidth, MinHeight: cfg.MinHeight},
		Budget:          cfg.SizeBudgetBytes,
		AspectTolerance: cfg.AspectTolerance,
		Format:          cfg.OutputFormat,
		AVIFSpeed:       cfg.AVIFSpeed,
		Rasterizer:      rasterizer,
		Observer:        rec,
		Logger:          logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := worker.NewPool(resizer, cfg.Workers, logger)
	pool.Start(ctx)

	results := storage.NewResults(cfg.ResultTTL)
	jan := janitor.New(janitor.Config{
		Results:  results,
		TempDir:  cfg.TempUploadDir,
		Interval: cfg.JanitorInterval,
		Logger:   logger,
	})
	jan.Start(ctx)

	var limit func(http.Handler) http.Handler
	var limiter *middleware.RateLimiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimitPerMinute,
			LockoutDuration:   15 * time.Minute,
			TrustedProxies:    trusted,
			Logger:            logger,
		})
		limit = limiter.Middleware()
	}

	h := handler.New(handler.Options{
		Resizer:        resizer,
		Pool:           pool,
		Results:        results,
		Metrics:        rec,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
		TempDir:        cfg.TempUploadDir,
	})
	router := chi.NewRouter()
	h.RegisterRoutes(router, limit)

	server := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.ServerAddr).
			Int("min_width", cfg.MinWidth).
			Int("min_height", cfg.MinHeight).
			Int64("budget", cfg.SizeBudgetBytes).
			Str("format", cfg.OutputFormat).
			Msg("propresize listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	pool.Stop()
	jan.Stop()
	if limiter != nil {
		limiter.Close()
	}
	logger.Info().Msg("server stopped")
}
