package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hackgods/dental-booking-engine/internal/app"
	"github.com/hackgods/dental-booking-engine/internal/config"
	"github.com/hackgods/dental-booking-engine/pkg/logger"
)

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

	if cfg.StoreBackend == config.StoreMemory {
		log.Fatal("expiry-worker needs a shared store; STORE_BACKEND=memory expires nothing")
	}
	log.Info("expiry-worker starting up", zap.String("env", cfg.Env), zap.Duration("interval", cfg.WorkerInterval))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	buildCtx, cancelBuild := context.WithTimeout(rootCtx, 15*time.Second)
	a, err := app.Build(buildCtx, cfg, log, prometheus.DefaultRegisterer)
	cancelBuild()
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	a.RunExpiry(rootCtx, cfg.WorkerInterval)
	log.Info("expiry worker stopped")
}
