package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	appconfig "github.com/wolfman30/vendor-negotiation/internal/config"
	appmigrations "github.com/wolfman30/vendor-negotiation/migrations"
	"github.com/wolfman30/vendor-negotiation/pkg/logging"
)

// Usage: migrate [up | down | version | force <version>]
func main() {
	logger := logging.New("info")
	if err := appconfig.LoadDotEnv(".env"); err != nil {
		logger.Warn("failed to read .env", "error", err)
	}
	cfg := appconfig.Load()
	databaseURL := strings.TrimSpace(cfg.DatabaseURL)
	if databaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	if err := run(databaseURL, os.Args[1:], logger); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func run(databaseURL string, args []string, logger *logging.Logger) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("db driver: %w", err)
	}
	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		return fmt.Errorf("source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	cmd := "up"
	if len(args) > 0 {
		cmd = args[0]
	}
	switch cmd {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		if err := m.Steps(-1); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	case "version":
		version, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("read version: %w", err)
		}
		logger.Info("schema version", "version", version, "dirty", dirty)
		return nil
	case "force":
		if len(args) < 2 {
			return errors.New("force requires a version")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version: %w", err)
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("force version: %w", err)
		}
		logger.Info("forced schema version", "version", version)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}

	logger.Info("migrations complete", "command", cmd)
	return nil
}
