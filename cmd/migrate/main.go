package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/hackgods/dental-booking-engine/internal/config"
	"github.com/hackgods/dental-booking-engine/migrations"
	"github.com/hackgods/dental-booking-engine/pkg/logger"
)

// usage: migrate [up | down | version | force <version>]
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

	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	conn, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		log.Fatal("open db", zap.Error(err))
	}
	defer func() { _ = conn.Close() }()

	if err := conn.Ping(); err != nil {
		log.Fatal("ping db", zap.Error(err))
	}

	dbDriver, err := postgres.WithInstance(conn, &postgres.Config{})
	if err != nil {
		log.Fatal("db driver", zap.Error(err))
	}
	srcDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		log.Fatal("source driver", zap.Error(err))
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		log.Fatal("create migrator", zap.Error(err))
	}
	defer func() { _, _ = m.Close() }()

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	case "force":
		if len(os.Args) < 3 {
			log.Fatal("force needs a version")
		}
		v, convErr := strconv.Atoi(os.Args[2])
		if convErr != nil {
			log.Fatal("invalid version", zap.Error(convErr))
		}
		err = m.Force(v)
	case "version":
		v, dirty, vErr := m.Version()
		if vErr != nil && !errors.Is(vErr, migrate.ErrNilVersion) {
			log.Fatal("read version", zap.Error(vErr))
		}
		log.Info("schema version", zap.Uint("version", v), zap.Bool("dirty", dirty))
		return
	default:
		log.Fatal("unknown command", zap.String("command", cmd))
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal("migration failed", zap.String("command", cmd), zap.Error(err))
	}
	log.Info("migrations complete", zap.String("command", cmd))
}
