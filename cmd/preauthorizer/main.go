package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/altpay/payment-pipeline/internal/config"
	"github.com/altpay/payment-pipeline/internal/handler"
	"github.com/altpay/payment-pipeline/internal/logging"
	"github.com/altpay/payment-pipeline/internal/messaging"
	"github.com/altpay/payment-pipeline/internal/preauth"
	"github.com/altpay/payment-pipeline/internal/redisconn"
)

func main() {
	cfg, err := config.LoadPreAuthorizer()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("pre-authorizer", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := redisconn.Connect(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	transport := messaging.NewRedisTransport(redisClient, logger)
	policy := preauth.NewRandomPolicy(rand.NewSource(time.Now().UnixNano()))

	h := preauth.NewHandler(transport, policy, cfg.RequestPattern, cfg.ResponseKeyPrefix, logger)
	if err := h.Start(ctx); err != nil {
		slog.Error("failed to start handler", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handler.Health)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("pre-authorizer started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("stopped")
}
