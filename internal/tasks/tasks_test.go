package tasks_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsehq/pulsecheck/internal/config"
	"github.com/pulsehq/pulsecheck/internal/database"
	"github.com/pulsehq/pulsecheck/internal/tasks"
)

func newTestDeps(t *testing.T) (tasks.Deps, database.Store) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := database.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	store := database.NewStore(db, log)
	deps := tasks.Deps{
		Logger: log,
		Store:  store,
		Quota: config.QuotaConfig{
			DefaultTier:   "free",
			Tiers:         map[string]int{"free": 3},
			RetentionDays: 90,
		},
	}
	return deps, store
}

func TestRegisterAll(t *testing.T) {
	t.Parallel()

	deps, _ := newTestDeps(t)
	taskMap := tasks.RegisterAll(deps)

	assert.Contains(t, taskMap, "sql_maintenance")
	assert.Contains(t, taskMap, "usage_cleanup")
}

func TestUsageCleanupTask(t *testing.T) {
	t.Parallel()

	deps, store := newTestDeps(t)
	ctx := context.Background()

	stale := time.Now().UTC().AddDate(0, 0, -120).Format("2006-01-02")
	today := time.Now().UTC().Format("2006-01-02")
	require.NoError(t, store.IncrementUsage(ctx, "user-1", stale, 3))
	require.NoError(t, store.IncrementUsage(ctx, "user-1", today, 3))

	taskMap := tasks.RegisterAll(deps)
	require.NoError(t, taskMap["usage_cleanup"](ctx))

	// The stale row is gone; GetOrCreateUsage recreates it zeroed.
	recreated, err := store.GetOrCreateUsage(ctx, "user-1", stale, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, recreated.Used)

	kept, err := store.GetOrCreateUsage(ctx, "user-1", today, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, kept.Used, "current rows survive cleanup")
}

func TestSQLMaintenanceTask(t *testing.T) {
	t.Parallel()

	deps, _ := newTestDeps(t)
	taskMap := tasks.RegisterAll(deps)
	assert.NoError(t, taskMap["sql_maintenance"](context.Background()))
}
