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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/saasplatform/backend/internal/handler"
	appMiddleware "github.com/saasplatform/backend/internal/middleware"
	"github.com/saasplatform/backend/internal/server"
	"github.com/saasplatform/backend/internal/service"
	"github.com/saasplatform/backend/internal/ws"
)

var (
	port      int
	rateLimit float64
	rateBurst int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long:  `Start the HTTP API, the deployment progress hub and the metrics endpoint.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&port, "port", 0, "Port to listen on (overrides PORT)")
	serveCmd.Flags().Float64Var(&rateLimit, "rate-limit", 20, "Requests per second allowed per client IP")
	serveCmd.Flags().IntVar(&rateBurst, "rate-burst", 40, "Burst size per client IP")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.RequireJWTSecret(); err != nil {
		return err
	}
	if port != 0 {
		cfg.Port = port
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(sigCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.startRelay(sigCtx); err != nil {
		return err
	}

	checks := map[string]handler.Pinger{}
	if a.db != nil {
		checks["database"] = a.db
	}
	if a.relay != nil {
		checks["redis"] = a.relay
	}

	auth := service.NewAuthService(cfg.JWTSecret)
	router := server.NewRouter(server.Routes{
		Auth:          auth,
		Subscriptions: handler.NewSubscriptionHandler(a.subs),
		Deployments:   handler.NewDeploymentHandler(a.prov),
		Health:        handler.NewHealthHandler(checks, a.prov.Simulated()),
		Hub:           ws.NewDeploymentHandler(a.hub, auth, logger),
		Metrics:       promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
		RateLimiter:   appMiddleware.NewRateLimiter(sigCtx, rateLimit, rateBurst),
		CORSOrigins:   cfg.CORSOrigins,
		Logger:        logger,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: hub connections are long-lived.
		IdleTimeout: 120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", addr),
			zap.String("env", cfg.AppEnv),
			zap.Bool("simulation", a.prov.Simulated()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-sigCtx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := a.executor.Wait(shutdownCtx); err != nil {
		logger.Warn("deployments still running at shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
	return nil
}
