package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/wolfman30/clinic-booking-engine/cmd/mainconfig"
	"github.com/wolfman30/clinic-booking-engine/internal/api/router"
	"github.com/wolfman30/clinic-booking-engine/internal/app/bootstrap"
	"github.com/wolfman30/clinic-booking-engine/internal/clinic"
	appconfig "github.com/wolfman30/clinic-booking-engine/internal/config"
	"github.com/wolfman30/clinic-booking-engine/internal/conversation"
	"github.com/wolfman30/clinic-booking-engine/internal/scheduling"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

const (
	apiRequestsPerSecond = 10
	apiBurst             = 20
)

func main() {
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-booking-engine API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)
	if cfg.AuthDisabled {
		if cfg.IsProduction() {
			logger.Error("AUTH_DISABLED is not allowed in production")
			os.Exit(1)
		}
		logger.Warn("auth disabled; trusting X-Clinic-Id header")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	rt, err := bootstrap.BuildRuntime(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to build runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	// The memory queue only exists in this process, so the API drains it.
	var worker *conversation.Worker
	if cfg.UseMemoryQueue {
		worker = bootstrap.BuildWorker(cfg, rt.Manager, rt.Queue, rt.Jobs, logger)
		worker.Start(ctx)
		logger.Info("in-process conversation worker started", "workers", cfg.WorkerCount)
	}

	if deliverer := bootstrap.BuildOutboxDeliverer(cfg, rt.Core.Outbox, sqs.NewFromConfig(awsCfg), logger); deliverer != nil {
		go deliverer.Start(ctx)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      setupRouter(cfg, rt, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()
	if worker != nil {
		worker.Wait()
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupRouter builds the HTTP handlers over the runtime.
func setupRouter(cfg *appconfig.Config, rt *bootstrap.Runtime, logger *logging.Logger) http.Handler {
	routerCfg := &router.Config{
		Logger:             logger,
		Scheduling:         scheduling.NewHandler(rt.Core.Orchestrator, rt.Core.Resolver, logger),
		Conversations:      conversation.NewHandler(rt.Manager, rt.Jobs, logger),
		Webhooks:           bootstrap.BuildWebhookHandler(cfg, rt.Publisher, rt.Profiles, rt.ProcessedTracker(), logger),
		MetricsHandler:     promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{}),
		HealthChecks:       map[string]router.HealthCheck{},
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		JWTSecret:          cfg.JWTSecret,
		AuthDisabled:       cfg.AuthDisabled,
		APIRateLimit:       rate.Limit(apiRequestsPerSecond),
		APIBurst:           apiBurst,
	}
	if rt.ClinicStore != nil {
		routerCfg.Clinic = clinic.NewHandler(rt.ClinicStore, logger)
	}
	for name, check := range rt.HealthChecks() {
		routerCfg.HealthChecks[name] = check
	}
	return router.New(routerCfg)
}
