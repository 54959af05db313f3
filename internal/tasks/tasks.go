// Package tasks implements the scheduled background tasks of the PulseCheck
// backend and the gocron-based scheduler that runs them.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pulsehq/pulsecheck/internal/config"
	"github.com/pulsehq/pulsecheck/internal/database"
)

// ScheduledTaskFunc defines the standard signature for all scheduled tasks.
// The context provided by the scheduler should be respected for cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// Deps contains the dependencies available to scheduled tasks.
type Deps struct {
	Logger *slog.Logger
	Store  database.Store
	Quota  config.QuotaConfig
}

// RegisterAll returns the map of all registered scheduled tasks, keyed by
// the identifiers used in the scheduler configuration.
func RegisterAll(deps Deps) map[string]ScheduledTaskFunc {
	tasks := map[string]ScheduledTaskFunc{
		"sql_maintenance": newSQLMaintenanceTask(deps),
		"usage_cleanup":   newUsageCleanupTask(deps),
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}

// newSQLMaintenanceTask creates the task that runs database maintenance.
func newSQLMaintenanceTask(deps Deps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "sql_maintenance")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting scheduled SQL maintenance task...")
		startTime := time.Now()

		err := deps.Store.RunSQLMaintenance(ctx)
		duration := time.Since(startTime)

		if err != nil {
			log.ErrorContext(ctx, "SQL maintenance task failed", "error", err, "duration", duration)
			return fmt.Errorf("sql maintenance failed: %w", err)
		}

		log.InfoContext(ctx, "Scheduled SQL maintenance task completed successfully", "duration", duration)
		return nil
	}
}

// newUsageCleanupTask creates the task that deletes usage rows older than
// the configured retention window.
func newUsageCleanupTask(deps Deps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "usage_cleanup")

	return func(ctx context.Context) error {
		cutoff := time.Now().UTC().AddDate(0, 0, -deps.Quota.RetentionDays).Format("2006-01-02")
		log.InfoContext(ctx, "Starting scheduled usage cleanup task...", "before_day", cutoff)

		count, err := deps.Store.DeleteUsageBefore(ctx, cutoff)
		if err != nil {
			log.ErrorContext(ctx, "Usage cleanup task failed", "error", err)
			return fmt.Errorf("usage cleanup failed: %w", err)
		}

		log.InfoContext(ctx, "Scheduled usage cleanup task completed successfully", "deleted", count)
		return nil
	}
}
