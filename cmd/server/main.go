package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/devplatform/modelgraph/internal/app"
	"github.com/devplatform/modelgraph/internal/config"
	"github.com/devplatform/modelgraph/internal/prometheus"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger
	logger := setupLogger(cfg)
	logger.Info("Starting modelgraph GraphQL service")

	// Initialize business-level Prometheus metrics
	logger.Info("Initializing Prometheus metrics")
	prometheus.Init()

	// Open the database and build the configured schemas
	ctx := context.Background()
	service, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize GraphQL engine")
	}
	prometheus.UpdatePoolMetrics(service.DB)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      service.Handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start metrics server in background
	go startMetricsServer(cfg, service, logger)

	// Start main server in background
	go func() {
		logger.WithField("port", cfg.Port).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	// Wait for shutdown signal
	waitForShutdown(srv, service, cfg, logger)
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func startMetricsServer(cfg *config.Config, service *app.App, logger *logrus.Logger) {
	mux := http.NewServeMux()
	metrics := promhttp.Handler()
	mux.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prometheus.UpdatePoolMetrics(service.DB)
		metrics.ServeHTTP(w, r)
	}))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: mux,
	}

	logger.WithField("port", cfg.MetricsPort).Info("Starting metrics server")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Error("Metrics server failed")
	}
}

func waitForShutdown(srv *http.Server, service *app.App, cfg *config.Config, logger *logrus.Logger) {
	// Create channel to listen for interrupt signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Block until signal received
	sig := <-quit
	logger.WithField("signal", sig.String()).Info("Shutdown signal received")

	timeout := 30 * time.Second
	if cfg.ShutdownTimeout > 0 {
		timeout = time.Duration(cfg.ShutdownTimeout) * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.Info("Shutting down HTTP server...")
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}

	logger.Info("Closing database connections...")
	if err := service.Close(); err != nil {
		logger.WithError(err).Error("Failed to close database")
	}

	logger.Info("Shutdown complete")
}
