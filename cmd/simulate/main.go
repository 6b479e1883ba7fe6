package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/dental-booking-engine/internal/scheduling"
	"github.com/hackgods/dental-booking-engine/pkg/logger"
)

func main() {
	var (
		providerID = flag.String("provider", os.Getenv("SIM_PROVIDER_ID"), "provider to book against")
		serviceID  = flag.String("service", os.Getenv("SIM_SERVICE_ID"), "service to book")
		date       = flag.String("date", os.Getenv("SIM_DATE"), "day to book, YYYY-MM-DD")
	)
	flag.Parse()

	log, err := logger.New(getEnv("APP_ENV", "local"), getEnv("LOG_LEVEL", "info"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg := simConfig{
		BaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		Racers:       getInt("SIM_RACERS", 8),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.4),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.2),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
	}
	if cfg.ProviderID, err = uuid.Parse(*providerID); err != nil {
		log.Fatal("invalid provider id", zap.Error(err))
	}
	if cfg.ServiceID, err = uuid.Parse(*serviceID); err != nil {
		log.Fatal("invalid service id", zap.Error(err))
	}
	if cfg.Date, err = scheduling.ParseDate(*date); err != nil {
		log.Fatal("invalid date", zap.Error(err))
	}
	if err := cfg.normalize(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	sim := newSimulator(cfg, nil, log)
	ctx := context.Background()

	race, err := sim.Race(ctx)
	if err != nil {
		log.Fatal("slot race failed", zap.Error(err))
	}
	race.Print(os.Stdout)
	if len(race.DoubleBooked) > 0 {
		log.Error("slots booked more than once", zap.Int("slots", len(race.DoubleBooked)))
		os.Exit(2)
	}

	sim.Load(ctx)
	sim.PrintReport(os.Stdout)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
