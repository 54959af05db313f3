// Package main contains the entrypoint for the PulseCheck backend server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/pulsehq/pulsecheck/internal/api"
	"github.com/pulsehq/pulsecheck/internal/config"
	"github.com/pulsehq/pulsecheck/internal/database"
	"github.com/pulsehq/pulsecheck/internal/gemini"
	"github.com/pulsehq/pulsecheck/internal/insight"
	"github.com/pulsehq/pulsecheck/internal/logger"
	"github.com/pulsehq/pulsecheck/internal/persona"
	"github.com/pulsehq/pulsecheck/internal/quota"
	"github.com/pulsehq/pulsecheck/internal/tasks"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all application components (config, logger, db, AI client,
// engine, HTTP server, scheduler), handles graceful shutdown, and returns an
// exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	completer, err := gemini.NewClient(ctx, cfg.Gemini, log)
	if err != nil {
		log.Error("Failed to initialize Gemini client", "error", err)
		return 1
	}

	catalog := persona.NewCatalog(persona.Defaults())
	selector := persona.NewSelector(catalog, log)
	gate := quota.NewGate(store, cfg.Quota, log)
	builder := insight.NewContextBuilder(store, cfg.Engine, log)
	engine := insight.NewEngine(store, builder, selector, catalog, gate, completer, cfg.Engine, log)

	server := api.NewServer(log, store, engine, gate, catalog)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	taskMap := tasks.RegisterAll(tasks.Deps{
		Logger: log,
		Store:  store,
		Quota:  cfg.Quota,
	})
	scheduler, err := tasks.NewScheduler(log, &cfg.Scheduler, taskMap)
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Starting HTTP server", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info("Shutdown signal received, stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		log.Info("Starting scheduler...")
		if err := scheduler.Start(); err != nil {
			return err
		}

		<-gCtx.Done()
		log.Info("Shutdown signal received, stopping scheduler...")
		if err := scheduler.Stop(); err != nil {
			log.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	log.Info("PulseCheck backend running. Waiting for shutdown signal or error...")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Server stopped due to error", "error", err)
		return 1
	}

	log.Info("Server stopped gracefully.")
	return 0
}
