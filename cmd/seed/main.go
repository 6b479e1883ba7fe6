package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/dental-booking-engine/internal/audit"
	"github.com/hackgods/dental-booking-engine/internal/catalog"
	"github.com/hackgods/dental-booking-engine/internal/config"
	"github.com/hackgods/dental-booking-engine/internal/db"
	"github.com/hackgods/dental-booking-engine/internal/scheduling"
	"github.com/hackgods/dental-booking-engine/internal/waitlist"
	"github.com/hackgods/dental-booking-engine/pkg/logger"
)

// treatments is the clinic's fixed menu. Prices are in minor units.
var treatments = []struct {
	name     string
	duration int
	minPrice int
	maxPrice int
}{
	{"Check-up", 15, 3000, 5000},
	{"Cleaning", 30, 6000, 9000},
	{"Filling", 45, 9000, 15000},
	{"Whitening", 60, 20000, 35000},
	{"Root canal", 90, 60000, 90000},
	{"Extraction", 30, 8000, 14000},
}

func main() {
	providers := flag.Int("providers", 5, "providers to create")
	waiters := flag.Int("waitlist", 20, "waitlist entries to create for tomorrow")
	seed := flag.Int64("seed", 0, "fake data seed; 0 picks one from the clock")
	flag.Parse()

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

	if cfg.StoreBackend != config.StorePostgres {
		log.Fatal("seed writes to postgres; set STORE_BACKEND=postgres")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	gofakeit.Seed(*seed)
	log.Info("seed starting", zap.Int("providers", *providers), zap.Int64("seed", *seed))

	store := catalog.NewPgStore(pool)
	services, err := seedServices(ctx, store, log)
	if err != nil {
		log.Fatal("seed services", zap.Error(err))
	}
	providerIDs, err := seedProviders(ctx, store, *providers, log)
	if err != nil {
		log.Fatal("seed providers", zap.Error(err))
	}

	wl := waitlist.NewService(waitlist.NewPgRepository(pool), audit.NewRecorder(audit.NewPgSink(pool), log), log)
	joined := seedWaitlist(ctx, wl, providerIDs, services, *waiters, log)

	log.Info("seed complete",
		zap.Int("services", len(services)),
		zap.Int("providers", len(providerIDs)),
		zap.Int("waitlist_entries", joined),
	)
}

func seedServices(ctx context.Context, store catalog.Store, log *zap.Logger) ([]catalog.Service, error) {
	out := make([]catalog.Service, 0, len(treatments))
	for _, t := range treatments {
		svc := catalog.Service{
			ID:              uuid.New(),
			Name:            t.name,
			DurationMinutes: t.duration,
			Price:           int64(gofakeit.Number(t.minPrice/100, t.maxPrice/100) * 100),
		}
		if err := store.UpsertService(ctx, svc); err != nil {
			return nil, err
		}
		log.Info("service", zap.String("id", svc.ID.String()), zap.String("name", svc.Name),
			zap.Int("duration_minutes", svc.DurationMinutes), zap.Int64("price", svc.Price))
		out = append(out, svc)
	}
	return out, nil
}

// seedProviders gives each provider a weekday schedule with a lunch break.
// Start and end hours vary per provider; weekends are closed.
func seedProviders(ctx context.Context, store catalog.Store, count int, log *zap.Logger) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		open := scheduling.TimeOfDay(gofakeit.Number(7, 10) * 60)
		closeAt := scheduling.TimeOfDay(gofakeit.Number(16, 19) * 60)
		lunch := scheduling.TimeOfDay(gofakeit.Number(12, 13) * 60)
		lunchEnd := lunch.Add(gofakeit.RandomInt([]int{30, 45, 60}))

		for day := time.Sunday; day <= time.Saturday; day++ {
			rule := scheduling.Rule{
				ProviderID:  id,
				DayOfWeek:   day,
				StartTime:   open,
				EndTime:     closeAt,
				IsAvailable: day != time.Saturday && day != time.Sunday,
			}
			if rule.IsAvailable {
				b, e := lunch, lunchEnd
				rule.BreakStart, rule.BreakEnd = &b, &e
			}
			if err := rule.Validate(); err != nil {
				return nil, fmt.Errorf("provider %s %s: %w", id, day, err)
			}
			if err := store.UpsertRule(ctx, rule); err != nil {
				return nil, err
			}
		}
		log.Info("provider", zap.String("id", id.String()), zap.String("dentist", "Dr. "+gofakeit.LastName()),
			zap.Stringer("opens", open), zap.Stringer("closes", closeAt))
		ids = append(ids, id)
	}
	return ids, nil
}

// seedWaitlist queues random patients for the next weekday.
func seedWaitlist(ctx context.Context, wl *waitlist.Service, providers []uuid.UUID, services []catalog.Service, count int, log *zap.Logger) int {
	if len(providers) == 0 || len(services) == 0 {
		return 0
	}
	day := time.Now().UTC().AddDate(0, 0, 1)
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, 1)
	}
	date := scheduling.DateOf(day)

	joined := 0
	for i := 0; i < count; i++ {
		req := waitlist.JoinRequest{
			UserID:     uuid.New(),
			ProviderID: providers[gofakeit.Number(0, len(providers)-1)],
			ServiceID:  services[gofakeit.Number(0, len(services)-1)].ID,
			Date:       date,
		}
		if gofakeit.Bool() {
			t := scheduling.TimeOfDay(gofakeit.Number(9, 15) * 60)
			req.PreferredTime = &t
		}
		if _, err := wl.Join(ctx, req); err != nil {
			log.Warn("waitlist join skipped", zap.Error(err))
			continue
		}
		joined++
	}
	return joined
}
