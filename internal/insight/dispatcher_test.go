package insight_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsehq/pulsecheck/internal/config"
	"github.com/pulsehq/pulsecheck/internal/database"
	"github.com/pulsehq/pulsecheck/internal/gemini"
	"github.com/pulsehq/pulsecheck/internal/insight"
	"github.com/pulsehq/pulsecheck/internal/persona"
)

// fakeStore is an in-memory implementation of the dispatcher's persistence
// surface, safe for the concurrent saves the engine performs.
type fakeStore struct {
	mu        sync.Mutex
	entries   map[string]*database.JournalEntry
	responses map[string]*database.AIResponse // keyed entryID + "/" + personaID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entries:   make(map[string]*database.JournalEntry),
		responses: make(map[string]*database.AIResponse),
	}
}

func respKey(entryID, personaID string) string { return entryID + "/" + personaID }

func (f *fakeStore) GetEntry(_ context.Context, id string) (*database.JournalEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[id], nil
}

func (f *fakeStore) GetRecentEntries(_ context.Context, _ string, _ int, _ string) ([]*database.JournalEntry, error) {
	return nil, nil
}

func (f *fakeStore) GetPersonaResponseCounts(_ context.Context, _ string) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int)
	for _, r := range f.responses {
		counts[r.PersonaID]++
	}
	return counts, nil
}

func (f *fakeStore) GetAIResponse(_ context.Context, entryID, personaID string) (*database.AIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.responses[respKey(entryID, personaID)], nil
}

func (f *fakeStore) SaveAIResponse(_ context.Context, response *database.AIResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := respKey(response.JournalEntryID, response.PersonaID)
	if _, exists := f.responses[key]; exists {
		return fmt.Errorf("UNIQUE constraint failed: ai_responses.journal_entry_id, ai_responses.persona_id")
	}
	f.responses[key] = response
	return nil
}

// fakeGate counts increments and can be switched to deny.
type fakeGate struct {
	mu         sync.Mutex
	deny       bool
	remaining  int
	increments int
}

func (f *fakeGate) Check(_ context.Context, _ string) (bool, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deny {
		return false, 0, nil
	}
	return true, f.remaining, nil
}

func (f *fakeGate) Increment(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.increments++
	return nil
}

func (f *fakeGate) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.increments
}

// fakeCompleter scripts replies per sampling temperature, which is unique
// per persona in the default catalog.
type fakeCompleter struct {
	mu      sync.Mutex
	replies map[float32]string
	errs    map[float32]error
	calls   int
}

func (f *fakeCompleter) Complete(_ context.Context, _ string, temperature float32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[temperature]; ok {
		return "", err
	}
	if reply, ok := f.replies[temperature]; ok {
		return reply, nil
	}
	return "A thoughtful reply.\nThemes: reflection", nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestEngine(store *fakeStore, gate *fakeGate, completer gemini.Completer) *insight.Engine {
	log := discardLogger()
	catalog := persona.NewCatalog(persona.Defaults())
	cfg := config.EngineConfig{
		Depth:                "standard",
		MaxContextTokens:     16000,
		ReservedOutputTokens: 1500,
		MaxConcurrent:        4,
		Confidence:           0.7,
	}
	builder := insight.NewContextBuilder(store, cfg, log)
	selector := persona.NewSelector(catalog, log)
	return insight.NewEngine(store, builder, selector, catalog, gate, completer, cfg, log)
}

func seedEntry(store *fakeStore, mood, energy, stress int) *database.JournalEntry {
	e := &database.JournalEntry{
		ID:          "entry-1",
		UserID:      "user-1",
		Content:     "Work has been relentless and I feel stretched thin.",
		MoodLevel:   mood,
		EnergyLevel: energy,
		StressLevel: stress,
	}
	store.entries[e.ID] = e
	return e
}

func TestGenerateResponses_SingleSuccess(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedEntry(store, 2, 2, 9) // selects anchor (temperature 0.5)
	gate := &fakeGate{remaining: 3}
	completer := &fakeCompleter{replies: map[float32]string{
		0.5: "That sounds like a heavy load. Start with one breath.\nThemes: Stress, Overwhelm",
	}}
	engine := newTestEngine(store, gate, completer)

	result, err := engine.GenerateResponses(context.Background(), "user-1", "entry-1", insight.Options{})
	require.NoError(t, err)
	require.Len(t, result.Successes, 1)
	assert.Empty(t, result.Failures)

	resp := result.Successes[0]
	assert.Equal(t, "anchor", resp.PersonaID)
	assert.Equal(t, "That sounds like a heavy load. Start with one breath.", resp.ResponseText)
	assert.Equal(t, []string{"stress", "overwhelm"}, resp.ThemeList())
	assert.Equal(t, 0.7, resp.Confidence)
	assert.NotEmpty(t, resp.ID)

	stored, err := store.GetAIResponse(context.Background(), "entry-1", "anchor")
	require.NoError(t, err)
	require.NotNil(t, stored, "successful response must be persisted")
	assert.Equal(t, resp.ID, stored.ID)

	assert.Equal(t, 1, gate.count(), "one success records one usage")
}

func TestGenerateResponses_IdempotentReuse(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedEntry(store, 2, 2, 9)
	existing := &database.AIResponse{
		ID:             "resp-old",
		JournalEntryID: "entry-1",
		UserID:         "user-1",
		PersonaID:      "anchor",
		ResponseText:   "Previously stored.",
	}
	store.responses[respKey("entry-1", "anchor")] = existing

	gate := &fakeGate{remaining: 3}
	completer := &fakeCompleter{}
	engine := newTestEngine(store, gate, completer)

	result, err := engine.GenerateResponses(context.Background(), "user-1", "entry-1", insight.Options{})
	require.NoError(t, err)
	require.Len(t, result.Successes, 1)
	assert.Equal(t, "resp-old", result.Successes[0].ID, "stored response is reused, not regenerated")
	assert.Zero(t, completer.callCount(), "no API call for an already-answered persona")
	assert.Zero(t, gate.count(), "reuse never consumes quota")
}

func TestGenerateResponses_PartialFailure(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedEntry(store, 5, 5, 5)
	gate := &fakeGate{remaining: 10}
	// sage (temperature 0.6) is rate limited; the other three succeed.
	completer := &fakeCompleter{errs: map[float32]error{
		0.6: fmt.Errorf("quota hit: %w", gemini.ErrRateLimited),
	}}
	engine := newTestEngine(store, gate, completer)

	result, err := engine.GenerateResponses(context.Background(), "user-1", "entry-1", insight.Options{SampleAll: true})
	require.NoError(t, err, "one persona failing must not fail the batch")

	assert.Len(t, result.Successes, 3)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "sage", result.Failures[0].PersonaID)
	assert.Equal(t, insight.ReasonRateLimited, result.Failures[0].Reason)
	assert.Equal(t, 4, len(result.Successes)+len(result.Failures), "every selected persona is accounted for")

	failed, err := store.GetAIResponse(context.Background(), "entry-1", "sage")
	require.NoError(t, err)
	assert.Nil(t, failed, "failed persona leaves no partial row")

	assert.Equal(t, 3, gate.count(), "only successes count against quota")
}

func TestGenerateResponses_FailureTaxonomy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		reason insight.FailureReason
	}{
		{"Rate limited", gemini.ErrRateLimited, insight.ReasonRateLimited},
		{"Timeout", gemini.ErrTimeout, insight.ReasonTimeout},
		{"Authentication", gemini.ErrAuthentication, insight.ReasonAuthError},
		{"Malformed output", gemini.ErrMalformedOutput, insight.ReasonMalformedOutput},
		{"Unclassified", fmt.Errorf("connection reset"), insight.ReasonServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newFakeStore()
			seedEntry(store, 2, 2, 9) // anchor, temperature 0.5
			gate := &fakeGate{remaining: 3}
			completer := &fakeCompleter{errs: map[float32]error{0.5: tt.err}}
			engine := newTestEngine(store, gate, completer)

			result, err := engine.GenerateResponses(context.Background(), "user-1", "entry-1", insight.Options{})
			require.NoError(t, err)
			require.Len(t, result.Failures, 1)
			assert.Equal(t, tt.reason, result.Failures[0].Reason)
			assert.Zero(t, gate.count())
		})
	}
}

func TestGenerateResponses_EmptyBodyIsMalformed(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedEntry(store, 2, 2, 9)
	gate := &fakeGate{remaining: 3}
	// A reply that is nothing but a theme line sanitizes to an empty body.
	completer := &fakeCompleter{replies: map[float32]string{
		0.5: "Themes: stress, work",
	}}
	engine := newTestEngine(store, gate, completer)

	result, err := engine.GenerateResponses(context.Background(), "user-1", "entry-1", insight.Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Successes)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, insight.ReasonMalformedOutput, result.Failures[0].Reason)
}

func TestGenerateResponses_QuotaExceeded(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedEntry(store, 2, 2, 9)
	gate := &fakeGate{deny: true}
	completer := &fakeCompleter{}
	engine := newTestEngine(store, gate, completer)

	_, err := engine.GenerateResponses(context.Background(), "user-1", "entry-1", insight.Options{})
	assert.ErrorIs(t, err, insight.ErrQuotaExceeded)
	assert.Zero(t, completer.callCount(), "no generation is attempted once the gate denies")
}

func TestGenerateResponses_EntryNotFound(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedEntry(store, 5, 5, 5)
	gate := &fakeGate{remaining: 3}
	engine := newTestEngine(store, gate, &fakeCompleter{})

	_, err := engine.GenerateResponses(context.Background(), "user-1", "missing", insight.Options{})
	assert.ErrorIs(t, err, insight.ErrEntryNotFound)

	// An entry owned by someone else is indistinguishable from a missing one.
	_, err = engine.GenerateResponses(context.Background(), "user-2", "entry-1", insight.Options{})
	assert.ErrorIs(t, err, insight.ErrEntryNotFound)
}

func TestGenerateResponses_ForcedUnknownPersona(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedEntry(store, 5, 5, 5)
	gate := &fakeGate{remaining: 3}
	engine := newTestEngine(store, gate, &fakeCompleter{})

	_, err := engine.GenerateResponses(context.Background(), "user-1", "entry-1", insight.Options{
		Force: []string{"ghost"},
	})
	assert.Error(t, err)
}
