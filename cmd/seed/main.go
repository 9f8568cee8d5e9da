package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/library-service/cmd/api/config"
	"github.com/library-service/cmd/api/database"
)

func main() {
	err := run()
	if err != nil {
		slog.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.DBDriver == config.DriverMemory {
		return errors.New("the in-memory store cannot be seeded, pick sqlite or postgres")
	}

	dbObject, err := database.ConnectDb(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("connecting with db: %w", err)
	}
	defer dbObject.Close()

	store := database.NewStore(dbObject, cfg.DBDriver)
	err = database.MigrationUp(store)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating: %w", err)
	}

	n, err := seed(context.Background(), store)
	if err != nil {
		return err
	}
	slog.Info("seed complete", "books", n, "db_driver", cfg.DBDriver)
	return nil
}
