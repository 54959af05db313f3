// Package quota enforces the per-user, per-day cap on AI response
// generations. Limits are proportional to subscription tier and reset at
// the UTC calendar-day boundary.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pulsehq/pulsecheck/internal/config"
	"github.com/pulsehq/pulsecheck/internal/database"
)

const dayFormat = "2006-01-02"

// Store is the persistence surface the gate needs. All quota mutation goes
// through the gate; nothing else writes usage rows.
type Store interface {
	GetOrCreateUsage(ctx context.Context, userID, day string, tierLimit int) (*database.UsageQuota, error)
	IncrementUsage(ctx context.Context, userID, day string, tierLimit int) error
}

// Gate checks and records AI response usage against tier limits.
type Gate struct {
	store Store
	cfg   config.QuotaConfig
	log   *slog.Logger
	now   func() time.Time
}

// NewGate creates a gate backed by the given store and tier configuration.
func NewGate(store Store, cfg config.QuotaConfig, log *slog.Logger) *Gate {
	return &Gate{
		store: store,
		cfg:   cfg,
		log:   log.With("component", "quota_gate"),
		now:   time.Now,
	}
}

// Check reports whether the user may generate another AI response today and
// how many generations remain. A zeroed usage row is created for the current
// UTC day if none exists yet.
func (g *Gate) Check(ctx context.Context, userID string) (allowed bool, remaining int, err error) {
	day := g.today()
	usage, err := g.store.GetOrCreateUsage(ctx, userID, day, g.limitFor(userID))
	if err != nil {
		return false, 0, fmt.Errorf("failed to check quota for user %s: %w", userID, err)
	}

	remaining = usage.TierLimit - usage.Used
	if remaining < 0 {
		remaining = 0
	}

	g.log.DebugContext(ctx, "Quota checked",
		"user_id", userID, "day", day, "used", usage.Used, "limit", usage.TierLimit, "remaining", remaining)
	return usage.Used < usage.TierLimit, remaining, nil
}

// Increment records one successful generation for the user on the current
// UTC day. The underlying store addition is atomic, so concurrent callers
// for the same user never lose an increment.
func (g *Gate) Increment(ctx context.Context, userID string) error {
	day := g.today()
	if err := g.store.IncrementUsage(ctx, userID, day, g.limitFor(userID)); err != nil {
		return fmt.Errorf("failed to record usage for user %s: %w", userID, err)
	}
	return nil
}

// Usage returns the user's usage row for the current UTC day.
func (g *Gate) Usage(ctx context.Context, userID string) (*database.UsageQuota, error) {
	return g.store.GetOrCreateUsage(ctx, userID, g.today(), g.limitFor(userID))
}

func (g *Gate) today() string {
	return g.now().UTC().Format(dayFormat)
}

// limitFor resolves the user's daily limit from configured tier overrides,
// falling back to the default tier.
func (g *Gate) limitFor(userID string) int {
	tier := g.cfg.DefaultTier
	if t, ok := g.cfg.UserTiers[userID]; ok {
		tier = t
	}
	if limit, ok := g.cfg.Tiers[tier]; ok {
		return limit
	}
	return g.cfg.Tiers[g.cfg.DefaultTier]
}
