package insight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pulsehq/pulsecheck/internal/config"
	"github.com/pulsehq/pulsecheck/internal/database"
	"github.com/pulsehq/pulsecheck/internal/gemini"
	"github.com/pulsehq/pulsecheck/internal/persona"
	"github.com/pulsehq/pulsecheck/internal/text"
)

// FailureReason categorizes why one persona's generation failed.
type FailureReason string

const (
	ReasonRateLimited     FailureReason = "rate_limited"
	ReasonTimeout         FailureReason = "timeout"
	ReasonAuthError       FailureReason = "auth_error"
	ReasonServerError     FailureReason = "server_error"
	ReasonMalformedOutput FailureReason = "malformed_output"
)

// Failure reports one persona that did not produce a stored response.
type Failure struct {
	PersonaID string        `json:"persona_id"`
	Reason    FailureReason `json:"reason"`
}

// BatchResult is the outcome of one generation request: a stored (or reused)
// response per succeeding persona plus a structured failure per persona that
// did not succeed. Partial results are expected and valid.
type BatchResult struct {
	Successes []*database.AIResponse `json:"successes"`
	Failures  []Failure              `json:"failures"`
}

// Options carries the caller's per-request generation options.
type Options struct {
	Preferred string
	Force     []string
	SampleAll bool
}

// Store is the persistence surface the dispatcher needs.
type Store interface {
	HistoryStore
	GetEntry(ctx context.Context, id string) (*database.JournalEntry, error)
	GetAIResponse(ctx context.Context, entryID, personaID string) (*database.AIResponse, error)
	SaveAIResponse(ctx context.Context, response *database.AIResponse) error
}

// UsageGate is the quota surface consulted before and during dispatch.
type UsageGate interface {
	Check(ctx context.Context, userID string) (allowed bool, remaining int, err error)
	Increment(ctx context.Context, userID string) error
}

// Engine orchestrates the full pipeline for one journal entry: context
// build, quota check, persona selection, and per-persona dispatch.
type Engine struct {
	store     Store
	builder   *ContextBuilder
	selector  *persona.Selector
	catalog   *persona.Catalog
	gate      UsageGate
	completer gemini.Completer
	cfg       config.EngineConfig
	log       *slog.Logger
}

// NewEngine wires the pipeline from its collaborators. Lifecycle is owned by
// the caller: one engine per process, constructed at startup.
func NewEngine(
	store Store,
	builder *ContextBuilder,
	selector *persona.Selector,
	catalog *persona.Catalog,
	gate UsageGate,
	completer gemini.Completer,
	cfg config.EngineConfig,
	log *slog.Logger,
) *Engine {
	return &Engine{
		store:     store,
		builder:   builder,
		selector:  selector,
		catalog:   catalog,
		gate:      gate,
		completer: completer,
		cfg:       cfg,
		log:       log.With("component", "dispatcher"),
	}
}

// GenerateResponses runs the pipeline for the given entry and returns a
// persisted (or reused) response per succeeding persona. The quota is
// checked once at batch start; a denial aborts the whole batch with
// ErrQuotaExceeded. One persona's generation failure never aborts the
// others.
func (e *Engine) GenerateResponses(ctx context.Context, userID, entryID string, opts Options) (*BatchResult, error) {
	entry, err := e.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading entry %s: %v", ErrContextUnavailable, entryID, err)
	}
	if entry == nil || entry.UserID != userID {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}

	bc, err := e.builder.Build(ctx, entry)
	if err != nil {
		return nil, err
	}

	allowed, remaining, err := e.gate.Check(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: quota check: %v", ErrContextUnavailable, err)
	}
	if !allowed {
		e.log.InfoContext(ctx, "Generation rejected, quota exhausted", "user_id", userID, "entry_id", entryID)
		return nil, ErrQuotaExceeded
	}

	personaIDs, err := e.selector.Select(entry, persona.Request{
		Preferred: opts.Preferred,
		Force:     opts.Force,
		SampleAll: opts.SampleAll,
	})
	if err != nil {
		return nil, err
	}

	e.log.InfoContext(ctx, "Dispatching generation batch",
		"user_id", userID, "entry_id", entryID, "personas", personaIDs,
		"token_estimate", bc.TokenEstimate, "remaining_quota", remaining)

	// Idempotence pre-check runs strictly before any concurrent dispatch:
	// personas with a stored response are reused, never regenerated.
	result := &BatchResult{}
	var pending []persona.Definition
	for _, id := range personaIDs {
		existing, err := e.store.GetAIResponse(ctx, entryID, id)
		if err != nil {
			return nil, fmt.Errorf("%w: checking existing response for %s: %v", ErrContextUnavailable, id, err)
		}
		if existing != nil {
			e.log.DebugContext(ctx, "Reusing existing response", "entry_id", entryID, "persona_id", id)
			result.Successes = append(result.Successes, existing)
			continue
		}
		def, ok := e.catalog.Get(id)
		if !ok {
			// Selector output always comes from the catalog; a miss here is
			// a programming error, not a user-visible failure.
			return nil, fmt.Errorf("selected persona %q not in catalog", id)
		}
		pending = append(pending, def)
	}

	if len(pending) == 0 {
		return result, nil
	}

	// In-flight generations are allowed to complete and persist even if the
	// caller disconnects: aborting mid-write would waste spend and could
	// strand half a batch.
	genCtx := context.WithoutCancel(ctx)

	type outcome struct {
		response *database.AIResponse
		failure  *Failure
	}
	outcomes := make([]outcome, len(pending))
	var mu sync.Mutex

	g, _ := errgroup.WithContext(genCtx)
	g.SetLimit(e.cfg.MaxConcurrent)
	for i, def := range pending {
		g.Go(func() error {
			resp, failure := e.generateOne(genCtx, bc, def, userID)
			mu.Lock()
			outcomes[i] = outcome{response: resp, failure: failure}
			mu.Unlock()
			return nil
		})
	}
	// Worker errors are folded into per-persona failures, never returned.
	_ = g.Wait()

	for _, o := range outcomes {
		if o.response != nil {
			result.Successes = append(result.Successes, o.response)
		} else if o.failure != nil {
			result.Failures = append(result.Failures, *o.failure)
		}
	}

	e.log.InfoContext(ctx, "Generation batch finished",
		"user_id", userID, "entry_id", entryID,
		"successes", len(result.Successes), "failures", len(result.Failures))
	return result, nil
}

// generateOne runs a single persona's generation and persists the result.
// Failures are returned as structured reasons, not errors: the batch
// continues regardless.
func (e *Engine) generateOne(ctx context.Context, bc *BuiltContext, def persona.Definition, userID string) (*database.AIResponse, *Failure) {
	log := e.log.With("entry_id", bc.Entry.ID, "persona_id", def.ID)

	prompt := renderPrompt(bc, def)
	reply, err := e.completer.Complete(ctx, prompt, def.Temperature)
	if err != nil {
		reason := classifyFailure(err)
		log.WarnContext(ctx, "Persona generation failed", "reason", reason, "error", err)
		return nil, &Failure{PersonaID: def.ID, Reason: reason}
	}

	body, themes := parseThemes(text.SanitizeResponse(reply))
	if body == "" {
		log.WarnContext(ctx, "Persona generation produced empty body after sanitization")
		return nil, &Failure{PersonaID: def.ID, Reason: ReasonMalformedOutput}
	}

	response := &database.AIResponse{
		ID:             uuid.NewString(),
		JournalEntryID: bc.Entry.ID,
		UserID:         userID,
		PersonaID:      def.ID,
		ResponseText:   body,
		Themes:         database.JoinTags(themes),
		Confidence:     e.cfg.Confidence,
	}

	if err := e.store.SaveAIResponse(ctx, response); err != nil {
		// A concurrent request may have won the unique (entry, persona)
		// constraint; resolve by reusing the stored row.
		existing, getErr := e.store.GetAIResponse(ctx, bc.Entry.ID, def.ID)
		if getErr == nil && existing != nil {
			log.DebugContext(ctx, "Lost save race, reusing stored response")
			return existing, nil
		}
		log.ErrorContext(ctx, "Failed to persist response", "error", err)
		return nil, &Failure{PersonaID: def.ID, Reason: ReasonServerError}
	}

	// Only successful, persisted generations count against quota.
	if err := e.gate.Increment(ctx, userID); err != nil {
		log.ErrorContext(ctx, "Failed to record usage after successful generation", "error", err)
	}

	log.DebugContext(ctx, "Persona response stored", "response_id", response.ID, "themes", themes)
	return response, nil
}

// classifyFailure maps completer errors onto the failure taxonomy.
func classifyFailure(err error) FailureReason {
	switch {
	case errors.Is(err, gemini.ErrRateLimited):
		return ReasonRateLimited
	case errors.Is(err, gemini.ErrTimeout):
		return ReasonTimeout
	case errors.Is(err, gemini.ErrAuthentication):
		return ReasonAuthError
	case errors.Is(err, gemini.ErrMalformedOutput):
		return ReasonMalformedOutput
	default:
		return ReasonServerError
	}
}
