package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/library-service/cmd/api/book"
	"github.com/library-service/cmd/api/config"
	"github.com/library-service/cmd/api/database"
	bookhttp "github.com/library-service/cmd/api/http"
	"github.com/library-service/cmd/api/inmemory"
	"github.com/library-service/cmd/api/notifications"
)

func main() {
	err := run()
	if err != nil {
		slog.Error("service stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	repo, closeRepo, err := openRepository(cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	var ntfy book.Notifier
	if cfg.NotificationsEnabled {
		ntfy = notifications.NewNtfy(true, cfg.NotificationsTimeout, cfg.NotificationsURL, &http.Client{})
	}

	bookService := book.NewService(repo, ntfy, logger)
	bookHandler := bookhttp.NewBookHandler(bookService, logger)

	//create and init http server:
	server := bookhttp.NewServer(bookhttp.ServerConfig{
		Port:           cfg.Port,
		RequestTimeout: cfg.RequestTimeout,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		Logger:         logger,
	}, bookHandler)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", server.Addr, "db_driver", cfg.DBDriver)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("unexpected http server error: %w", err)
		}
		close(serverErr)
	}()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case sig := <-sc:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownRelease()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	logger.Info("graceful shutdown complete")
	return nil
}

/* Opens the configured store and brings its schema up to date. */
func openRepository(cfg config.Config, logger *slog.Logger) (book.Repository, func(), error) {
	if cfg.DBDriver == config.DriverMemory {
		store, err := inmemory.NewInMemoryStore()
		if err != nil {
			return nil, nil, fmt.Errorf("creating in-memory store: %w", err)
		}
		logger.Warn("using the in-memory store, data is lost on exit")
		return store, func() {}, nil
	}

	dbObject, err := database.ConnectDb(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting with db: %w", err)
	}

	//apply migrations:
	store := database.NewStore(dbObject, cfg.DBDriver)
	err = database.MigrationUp(store)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		dbObject.Close()
		return nil, nil, fmt.Errorf("migrating: %w", err)
	}

	closeDb := func() {
		if err := dbObject.Close(); err != nil {
			logger.Error("closing db", "error", err)
		}
	}
	return store, closeDb, nil
}
