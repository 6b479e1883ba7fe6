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

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hackgods/dental-booking-engine/internal/api"
	"github.com/hackgods/dental-booking-engine/internal/app"
	"github.com/hackgods/dental-booking-engine/internal/config"
	"github.com/hackgods/dental-booking-engine/pkg/logger"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("version", version),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	buildCtx, cancelBuild := context.WithTimeout(rootCtx, 15*time.Second)
	a, err := app.Build(buildCtx, cfg, log, prometheus.DefaultRegisterer)
	cancelBuild()
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	if cfg.StoreBackend == config.StoreMemory {
		// no separate worker can reach an in-process store
		go a.RunExpiry(rootCtx, cfg.WorkerInterval)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(a.RouterConfig(version)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error("http server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	log.Info("api-server stopped")
}
