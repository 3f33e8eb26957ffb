// main is the entry point of the student records API.
//
// STARTUP SEQUENCE:
//  1. Load configuration (.env, optional YAML file, environment)
//  2. Initialise the logger
//  3. Open the configured storage backend (fatal on failure)
//  4. Build the record service and register all HTTP routes
//  5. Start the HTTP server in a separate goroutine
//  6. Block until an OS signal (Ctrl+C / kill) arrives or the server fails
//  7. Gracefully shut down: finish in-flight requests, then close storage
//
// RUNNING THE SERVER:
//
//	STORAGE_PATH=storage/students.db PORT=5000 go run ./cmd/students-api
//
// or against PostgreSQL:
//
//	STORAGE_DRIVER=postgres DATABASE_URL=postgres://... go run ./cmd/students-api
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

	gormLogger "gorm.io/gorm/logger"

	"github.com/aanand-mishra/student-records/internal/config"
	"github.com/aanand-mishra/student-records/internal/http/handlers/student"
	"github.com/aanand-mishra/student-records/internal/http/middleware"
	"github.com/aanand-mishra/student-records/internal/service"
	"github.com/aanand-mishra/student-records/internal/storage"
	"github.com/aanand-mishra/student-records/internal/storage/gormstore"
	"github.com/aanand-mishra/student-records/internal/storage/sqlite"
)

const version = "1.0.0"

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("students-api stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run owns every resource it opens; deferred calls release them on all
// return paths, which os.Exit inside would skip.
func run(cfg *config.Config, log *slog.Logger) error {
	log.Info("starting students-api",
		slog.String("env", cfg.Env),
		slog.String("version", version),
		slog.String("storage_driver", cfg.Storage.Driver),
	)

	store, err := openStorage(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialise storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close storage", slog.String("error", err.Error()))
			return
		}
		log.Info("storage closed")
	}()

	log.Info("storage initialised")

	svc := service.New(store, log)

	router := http.NewServeMux()
	student.RegisterRoutes(router, svc)

	handler := middleware.Chain(router,
		middleware.RequestID,
		middleware.Logger(log),
		middleware.Recover(log),
		middleware.CORS(cfg.HTTPServer.CORSAllowedOrigins),
	)

	server := &http.Server{
		Addr:         cfg.HTTPServer.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server started", slog.String("address", server.Addr))

		// ListenAndServe returns http.ErrServerClosed after Shutdown; that
		// is the normal way out.
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, stopping server...")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server encountered an error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

// openStorage picks the backend named by the config.
func openStorage(cfg *config.Config, log *slog.Logger) (storage.Storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		store, err := sqlite.New(cfg.Storage.SQLitePath())
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres, config.DriverMySQL:
		level := gormLogger.Warn
		if cfg.Env == "dev" {
			level = gormLogger.Info
		}
		store, err := gormstore.Open(gormstore.Config{
			Driver:   cfg.Storage.Driver,
			DSN:      cfg.Storage.DatabaseURL,
			Logger:   log,
			LogLevel: level,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// setupLogger returns a *slog.Logger configured for the given environment.
//
// Development (dev): human-readable text output at DEBUG level.
// Staging: JSON output at DEBUG level.
// Production (prod): machine-readable JSON output at INFO level.
func setupLogger(env string) *slog.Logger {
	switch env {
	case "prod":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	case "staging":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	default: // "dev" and anything unrecognised
		return slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}
}
