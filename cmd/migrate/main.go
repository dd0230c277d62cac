package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"bettabuckz/internal/config"
	"bettabuckz/internal/db"
	"bettabuckz/internal/logging"
	"bettabuckz/migrations"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	steps := flag.Int("steps", 0, "number of steps to migrate (0 = all)")
	flag.Parse()

	cfg := config.Load()
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, *direction, *steps); err != nil {
		logger.WithError(err).Error("migration run failed")
		os.Exit(1)
	}
	logger.WithFields(logging.Fields{"direction": *direction, "steps": *steps}).Info("migration run finished")
}

func run(cfg config.Config, direction string, steps int) error {
	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer database.Close()

	driver, err := postgres.WithInstance(database.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("init postgres driver: %w", err)
	}
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}

	switch {
	case steps != 0 && direction == "down":
		err = m.Steps(-steps)
	case steps != 0:
		err = m.Steps(steps)
	case direction == "down":
		err = m.Down()
	case direction == "up":
		err = m.Up()
	default:
		return fmt.Errorf("unknown direction %q", direction)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
