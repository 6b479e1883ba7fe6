// Package app assembles the booking engine's services from configuration.
// The API server and the expiry worker share it.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/dental-booking-engine/internal/api"
	"github.com/hackgods/dental-booking-engine/internal/appointment"
	"github.com/hackgods/dental-booking-engine/internal/audit"
	"github.com/hackgods/dental-booking-engine/internal/catalog"
	"github.com/hackgods/dental-booking-engine/internal/config"
	"github.com/hackgods/dental-booking-engine/internal/db"
	"github.com/hackgods/dental-booking-engine/internal/memstore"
	"github.com/hackgods/dental-booking-engine/internal/notify"
	"github.com/hackgods/dental-booking-engine/internal/observability/metrics"
	"github.com/hackgods/dental-booking-engine/internal/payment"
	redisclient "github.com/hackgods/dental-booking-engine/internal/redis"
	"github.com/hackgods/dental-booking-engine/internal/waitlist"
)

const catalogCachePrefix = "dental:catalog:"

type App struct {
	Config config.Config
	Logger *zap.Logger

	Pool  *pgxpool.Pool // nil on the memory backend
	Redis *redis.Client // nil when running without Redis

	Catalog      catalog.Store
	Appointments *appointment.Service
	Payments     *payment.Ledger
	Waitlist     *waitlist.Service
	Promoter     *waitlist.Promoter
	Metrics      *metrics.BookingMetrics
}

type backend struct {
	catalog  catalog.Store
	appts    appointment.Repository
	payments payment.Store
	waitlist waitlist.Repository
	audit    audit.Sink
}

// Build connects to the configured stores and wires every service. The
// postgres backend requires Redis for the waitlist lock; the memory backend
// falls back to an in-process lock when Redis is unreachable.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, reg prometheus.Registerer) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.NewBookingMetrics(reg)}

	var b backend
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.Pool = pool
		b = backend{
			catalog:  catalog.NewPgStore(pool),
			appts:    appointment.NewPgRepository(pool),
			payments: payment.NewPgStore(pool),
			waitlist: waitlist.NewPgRepository(pool),
			audit:    audit.NewPgSink(pool),
		}
		logger.Info("connected to postgres")
	case config.StoreMemory:
		store := memstore.New()
		b = backend{
			catalog:  store.Catalog(),
			appts:    store.Appointments(),
			payments: store.Payments(),
			waitlist: store.Waitlist(),
			audit:    store.Audit(),
		}
		logger.Warn("using in-memory store; data is lost on restart")
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	rdb, err := redisclient.Connect(ctx, cfg)
	switch {
	case err == nil:
		a.Redis = rdb
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	case cfg.StoreBackend == config.StoreMemory:
		logger.Warn("redis unavailable, using in-process locks and no catalog cache", zap.Error(err))
	default:
		a.Close()
		return nil, err
	}

	var locker redisclient.Locker = memstore.NewLocker()
	a.Catalog = b.catalog
	if a.Redis != nil {
		locker = redisclient.NewRedisLocker(a.Redis, cfg.LockTTL, cfg.LockTTL)
		a.Catalog = catalog.NewCached(b.catalog, redisclient.NewCache(a.Redis, catalogCachePrefix), cfg.CatalogCacheTTL, logger)
	}

	notifier, err := newNotifier(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	recorder := audit.NewRecorder(b.audit, logger)
	a.Promoter = waitlist.NewPromoter(b.waitlist, locker, notifier, recorder, a.Metrics, cfg.WaitlistWindow, logger)
	a.Waitlist = waitlist.NewService(b.waitlist, recorder, logger)
	a.Waitlist.SetOfferer(a.Promoter)
	a.Appointments = appointment.NewService(b.appts, a.Catalog, cfg, appointment.Deps{
		Recorder: recorder,
		Notifier: notifier,
		Listener: a.Promoter,
		Metrics:  a.Metrics,
		Logger:   logger,
	})
	a.Promoter.SetSlotChecker(a.Appointments)
	a.Payments = payment.NewLedger(b.appts, b.payments, a.Appointments, recorder, a.Metrics, logger)
	return a, nil
}

func newNotifier(ctx context.Context, cfg config.Config, logger *zap.Logger) (notify.Gateway, error) {
	if cfg.NotifyQueueURL == "" {
		return notify.NewLogGateway(logger), nil
	}
	client, err := notify.NewSQSClient(ctx, cfg.AWSRegion, cfg.AWSEndpointURL)
	if err != nil {
		return nil, err
	}
	logger.Info("publishing notifications to sqs", zap.String("queue_url", cfg.NotifyQueueURL))
	return notify.NewSQSGateway(client, cfg.NotifyQueueURL), nil
}

// RouterConfig describes the HTTP surface over the assembled services.
func (a *App) RouterConfig(version string) api.RouterConfig {
	var pinger api.Pinger
	if a.Pool != nil {
		pinger = a.Pool
	}
	return api.RouterConfig{
		Appointments: a.Appointments,
		Payments:     a.Payments,
		Waitlist:     a.Waitlist,
		Promoter:     a.Promoter,
		Catalog:      a.Catalog,
		Health:       api.NewHealthHandler(pinger, a.Redis, a.Config.Env, version),
		Logger:       a.Logger,
	}
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("error closing redis", zap.Error(err))
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
