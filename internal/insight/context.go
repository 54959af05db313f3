package insight

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pulsehq/pulsecheck/internal/config"
	"github.com/pulsehq/pulsecheck/internal/database"
	"github.com/pulsehq/pulsecheck/internal/text"
)

// Depth controls how much prior history the context builder includes.
type Depth string

const (
	DepthMinimal  Depth = "minimal"
	DepthStandard Depth = "standard"
	DepthDeep     Depth = "deep"
)

// historyLimit maps a depth tier to the maximum number of prior entries.
func (d Depth) historyLimit() int {
	switch d {
	case DepthMinimal:
		return 5
	case DepthDeep:
		return 30
	default:
		return 14
	}
}

// ParseDepth converts a config string into a Depth, defaulting to standard.
func ParseDepth(s string) Depth {
	switch s {
	case string(DepthMinimal):
		return DepthMinimal
	case string(DepthDeep):
		return DepthDeep
	default:
		return DepthStandard
	}
}

// personaMetaTokens reserves room in the estimate for the persona block and
// instructions rendered around the entries.
const personaMetaTokens = 400

// BuiltContext is the ephemeral bundle assembled for one dispatch call.
// It is constructed fresh per request and never persisted.
type BuiltContext struct {
	Entry *database.JournalEntry

	// Recent holds prior entries, newest first, already fitted to budget.
	Recent []*database.JournalEntry

	// PriorPersonaUse counts stored responses per persona for this user.
	PriorPersonaUse map[string]int

	// TokenEstimate is the estimated prompt cost after fitting. It only
	// exceeds the budget when the target entry alone does.
	TokenEstimate int
}

// HistoryStore is the persistence surface the context builder reads from.
type HistoryStore interface {
	GetRecentEntries(ctx context.Context, userID string, limit int, beforeID string) ([]*database.JournalEntry, error)
	GetPersonaResponseCounts(ctx context.Context, userID string) (map[string]int, error)
}

// ContextBuilder assembles BuiltContexts under a token budget.
type ContextBuilder struct {
	store  HistoryStore
	depth  Depth
	budget int
	log    *slog.Logger
}

// NewContextBuilder creates a builder with the given depth tier and token
// budget derived from the engine configuration.
func NewContextBuilder(store HistoryStore, cfg config.EngineConfig, log *slog.Logger) *ContextBuilder {
	return &ContextBuilder{
		store:  store,
		depth:  ParseDepth(cfg.Depth),
		budget: cfg.MaxContextTokens - cfg.ReservedOutputTokens,
		log:    log.With("component", "context_builder"),
	}
}

// Build assembles the context for the target entry: up to depth-N prior
// entries newest first, prior persona usage, and a token estimate fitted to
// the budget. When over budget, the oldest prior entries are dropped first;
// the target entry itself is never dropped.
//
// The output is deterministic for identical inputs and identical stored
// entries. If the store is unreachable the build fails with
// ErrContextUnavailable rather than silently returning a thinner context.
func (b *ContextBuilder) Build(ctx context.Context, entry *database.JournalEntry) (*BuiltContext, error) {
	if entry == nil {
		return nil, fmt.Errorf("target entry is required")
	}

	limit := b.depth.historyLimit()
	recent, err := b.store.GetRecentEntries(ctx, entry.UserID, limit, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching recent entries: %v", ErrContextUnavailable, err)
	}

	priorUse, err := b.store.GetPersonaResponseCounts(ctx, entry.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching persona usage: %v", ErrContextUnavailable, err)
	}

	estimate := text.EstimateItemTokens(entry.Content) + personaMetaTokens
	for _, r := range recent {
		estimate += text.EstimateItemTokens(r.Content)
	}

	// Drop oldest first until under budget. Recent is newest-first, so the
	// oldest entry sits at the tail.
	dropped := 0
	for estimate > b.budget && len(recent) > 0 {
		oldest := recent[len(recent)-1]
		estimate -= text.EstimateItemTokens(oldest.Content)
		recent = recent[:len(recent)-1]
		dropped++
	}

	if dropped > 0 {
		b.log.DebugContext(ctx, "Dropped oldest entries to fit token budget",
			"entry_id", entry.ID, "dropped", dropped, "kept", len(recent), "estimate", estimate, "budget", b.budget)
	}

	return &BuiltContext{
		Entry:           entry,
		Recent:          recent,
		PriorPersonaUse: priorUse,
		TokenEstimate:   estimate,
	}, nil
}
