package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveEntry inserts a new journal entry record.
	SaveEntry(ctx context.Context, entry *JournalEntry) error

	// GetEntry retrieves a journal entry by ID. Returns nil, nil if not found.
	GetEntry(ctx context.Context, id string) (*JournalEntry, error)

	// UpdateEntry updates the content, signals, and tags of an existing entry.
	UpdateEntry(ctx context.Context, entry *JournalEntry) error

	// DeleteEntry deletes a journal entry and its AI responses atomically.
	DeleteEntry(ctx context.Context, id string) error

	// GetRecentEntries retrieves up to 'limit' entries for a user created
	// before the given entry, newest first. Pass an empty beforeID to start
	// from the most recent entry.
	GetRecentEntries(ctx context.Context, userID string, limit int, beforeID string) ([]*JournalEntry, error)

	// GetAIResponse retrieves the response for an (entry, persona) pair.
	// Returns nil, nil if not found.
	GetAIResponse(ctx context.Context, entryID, personaID string) (*AIResponse, error)

	// GetResponsesForEntry retrieves all stored responses for an entry,
	// oldest first.
	GetResponsesForEntry(ctx context.Context, entryID string) ([]*AIResponse, error)

	// SaveAIResponse inserts a new AI response record.
	SaveAIResponse(ctx context.Context, response *AIResponse) error

	// GetPersonaResponseCounts returns, per persona, how many responses have
	// been stored for the user's entries.
	GetPersonaResponseCounts(ctx context.Context, userID string) (map[string]int, error)

	// GetOrCreateUsage retrieves the usage row for (userID, day), inserting
	// a zeroed row with the given tier limit if absent.
	GetOrCreateUsage(ctx context.Context, userID, day string, tierLimit int) (*UsageQuota, error)

	// IncrementUsage atomically adds one to responses_used for (userID, day),
	// creating the row if it does not exist yet. Concurrent increments for
	// the same user and day must both be counted.
	IncrementUsage(ctx context.Context, userID, day string, tierLimit int) error

	// DeleteUsageBefore removes usage rows older than the given day.
	// Returns the number of rows deleted.
	DeleteUsageBefore(ctx context.Context, day string) (int64, error)

	// GetMoodTrend aggregates per-day signal averages for a user since the
	// given day (inclusive), oldest day first.
	GetMoodTrend(ctx context.Context, userID, sinceDay string) ([]*MoodDay, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveEntry inserts a new journal entry record.
func (s *sqlxStore) SaveEntry(ctx context.Context, entry *JournalEntry) error {
	if entry == nil {
		return fmt.Errorf("cannot save nil entry")
	}
	if entry.ID == "" {
		return fmt.Errorf("entry must have a non-empty id")
	}
	if entry.UserID == "" {
		return fmt.Errorf("entry must have a non-empty user_id")
	}
	if entry.Content == "" {
		return fmt.Errorf("entry must have non-empty content")
	}

	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	query := `
        INSERT INTO journal_entries (id, user_id, content, mood_level, energy_level, stress_level, tags, created_at, updated_at)
        VALUES (:id, :user_id, :content, :mood_level, :energy_level, :stress_level, :tags, :created_at, :updated_at);
    `

	if _, err := s.db.NamedExecContext(ctx, query, entry); err != nil {
		s.logger.ErrorContext(ctx, "Error saving journal entry", "user_id", entry.UserID, "entry_id", entry.ID, "error", err)
		return fmt.Errorf("failed to save journal entry for user %s: %w", entry.UserID, err)
	}

	s.logger.DebugContext(ctx, "Journal entry saved successfully", "user_id", entry.UserID, "entry_id", entry.ID)
	return nil
}

// GetEntry retrieves a journal entry by ID. Returns nil, nil if not found.
func (s *sqlxStore) GetEntry(ctx context.Context, id string) (*JournalEntry, error) {
	if id == "" {
		return nil, fmt.Errorf("entry id cannot be empty")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var entry JournalEntry
	query := `SELECT id, user_id, content, mood_level, energy_level, stress_level, tags, created_at, updated_at
	          FROM journal_entries WHERE id = ?`

	err := s.db.GetContext(ctx, &entry, query, id)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.DebugContext(ctx, "No journal entry found", "entry_id", id)
		return nil, nil

	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching entry", "entry_id", id, "error", err)
		return nil, err

	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting journal entry", "entry_id", id, "error", err)
		return nil, fmt.Errorf("failed to get journal entry %s: %w", id, err)
	}

	return &entry, nil
}

// UpdateEntry updates the content, signals, and tags of an existing entry.
// Stored AI responses referencing the entry are left untouched.
func (s *sqlxStore) UpdateEntry(ctx context.Context, entry *JournalEntry) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("cannot update entry without an id")
	}

	entry.UpdatedAt = time.Now().UTC()

	query := `
        UPDATE journal_entries SET
            content = :content,
            mood_level = :mood_level,
            energy_level = :energy_level,
            stress_level = :stress_level,
            tags = :tags,
            updated_at = :updated_at
        WHERE id = :id
    `

	result, err := s.db.NamedExecContext(ctx, query, entry)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating journal entry", "entry_id", entry.ID, "error", err)
		return fmt.Errorf("failed to update journal entry %s: %w", entry.ID, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return sql.ErrNoRows
	}

	s.logger.DebugContext(ctx, "Journal entry updated successfully", "entry_id", entry.ID)
	return nil
}

// DeleteEntry deletes a journal entry and its AI responses in a single
// transaction so neither can be left dangling.
func (s *sqlxStore) DeleteEntry(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("entry id cannot be empty")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for entry deletion", "entry_id", id, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ai_responses WHERE journal_entry_id = ?`, id); err != nil {
		s.logger.ErrorContext(ctx, "Error deleting responses for entry", "entry_id", id, "error", err)
		return fmt.Errorf("failed to delete responses for entry %s: %w", id, err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM journal_entries WHERE id = ?`, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting journal entry", "entry_id", id, "error", err)
		return fmt.Errorf("failed to delete journal entry %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "entry_id", id, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Journal entry deleted", "entry_id", id)
	return nil
}

// GetRecentEntries retrieves up to 'limit' entries for a user, newest first.
// When beforeID is set, only entries created before that entry are returned.
func (s *sqlxStore) GetRecentEntries(ctx context.Context, userID string, limit int, beforeID string) ([]*JournalEntry, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id cannot be empty")
	}
	if limit <= 0 {
		limit = 20
		s.logger.DebugContext(ctx, "No limit provided, using default", "user_id", userID, "default_limit", limit)
	} else if limit > 100 {
		limit = 100
		s.logger.DebugContext(ctx, "Limit exceeded maximum value, capping", "user_id", userID, "capped_limit", limit)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var entries []*JournalEntry
	var err error

	if beforeID != "" {
		query := `
            SELECT id, user_id, content, mood_level, energy_level, stress_level, tags, created_at, updated_at
            FROM journal_entries
            WHERE user_id = ? AND created_at < (SELECT created_at FROM journal_entries WHERE id = ?)
            ORDER BY created_at DESC, id DESC
            LIMIT ?;
        `
		err = s.db.SelectContext(ctx, &entries, query, userID, beforeID, limit)
	} else {
		query := `
            SELECT id, user_id, content, mood_level, energy_level, stress_level, tags, created_at, updated_at
            FROM journal_entries
            WHERE user_id = ?
            ORDER BY created_at DESC, id DESC
            LIMIT ?;
        `
		err = s.db.SelectContext(ctx, &entries, query, userID, limit)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching entries", "user_id", userID, "error", err)
		return nil, err
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error getting recent entries", "user_id", userID, "limit", limit, "error", err)
		return nil, fmt.Errorf("failed to get recent entries for user %s: %w", userID, err)
	}

	s.logger.DebugContext(ctx, "Fetched recent entries successfully", "user_id", userID, "count", len(entries))
	return entries, nil
}

// GetAIResponse retrieves the response for an (entry, persona) pair.
// Returns nil, nil if not found.
func (s *sqlxStore) GetAIResponse(ctx context.Context, entryID, personaID string) (*AIResponse, error) {
	if entryID == "" || personaID == "" {
		return nil, fmt.Errorf("entry id and persona id cannot be empty")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var response AIResponse
	query := `SELECT id, journal_entry_id, user_id, persona_id, response_text, themes, confidence, created_at
	          FROM ai_responses WHERE journal_entry_id = ? AND persona_id = ?`

	err := s.db.GetContext(ctx, &response, query, entryID, personaID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil

	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching response",
			"entry_id", entryID, "persona_id", personaID, "error", err)
		return nil, err

	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting AI response", "entry_id", entryID, "persona_id", personaID, "error", err)
		return nil, fmt.Errorf("failed to get response for entry %s persona %s: %w", entryID, personaID, err)
	}

	return &response, nil
}

// GetResponsesForEntry retrieves all stored responses for an entry, oldest first.
func (s *sqlxStore) GetResponsesForEntry(ctx context.Context, entryID string) ([]*AIResponse, error) {
	if entryID == "" {
		return nil, fmt.Errorf("entry id cannot be empty")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var responses []*AIResponse
	query := `SELECT id, journal_entry_id, user_id, persona_id, response_text, themes, confidence, created_at
	          FROM ai_responses WHERE journal_entry_id = ? ORDER BY created_at ASC, id ASC`

	if err := s.db.SelectContext(ctx, &responses, query, entryID); err != nil {
		s.logger.ErrorContext(ctx, "Error getting responses for entry", "entry_id", entryID, "error", err)
		return nil, fmt.Errorf("failed to get responses for entry %s: %w", entryID, err)
	}

	return responses, nil
}

// SaveAIResponse inserts a new AI response record. The schema's unique
// constraint on (journal_entry_id, persona_id) backstops the dispatcher's
// pre-check against duplicate responses.
func (s *sqlxStore) SaveAIResponse(ctx context.Context, response *AIResponse) error {
	if response == nil {
		return fmt.Errorf("cannot save nil response")
	}
	if response.ID == "" || response.JournalEntryID == "" || response.PersonaID == "" {
		return fmt.Errorf("response must have id, journal_entry_id, and persona_id")
	}
	if response.ResponseText == "" {
		return fmt.Errorf("response must have non-empty response_text")
	}

	response.CreatedAt = time.Now().UTC()

	query := `
        INSERT INTO ai_responses (id, journal_entry_id, user_id, persona_id, response_text, themes, confidence, created_at)
        VALUES (:id, :journal_entry_id, :user_id, :persona_id, :response_text, :themes, :confidence, :created_at);
    `

	if _, err := s.db.NamedExecContext(ctx, query, response); err != nil {
		s.logger.ErrorContext(ctx, "Error saving AI response",
			"entry_id", response.JournalEntryID, "persona_id", response.PersonaID, "error", err)
		return fmt.Errorf("failed to save response for entry %s persona %s: %w",
			response.JournalEntryID, response.PersonaID, err)
	}

	s.logger.DebugContext(ctx, "AI response saved successfully",
		"entry_id", response.JournalEntryID, "persona_id", response.PersonaID, "response_id", response.ID)
	return nil
}

// GetPersonaResponseCounts returns, per persona, how many responses have
// been stored for the user's entries.
func (s *sqlxStore) GetPersonaResponseCounts(ctx context.Context, userID string) (map[string]int, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id cannot be empty")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var rows []struct {
		PersonaID string `db:"persona_id"`
		Count     int    `db:"count"`
	}
	query := `SELECT persona_id, COUNT(*) AS count FROM ai_responses WHERE user_id = ? GROUP BY persona_id`

	if err := s.db.SelectContext(ctx, &rows, query, userID); err != nil {
		s.logger.ErrorContext(ctx, "Error counting persona responses", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to count persona responses for user %s: %w", userID, err)
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.PersonaID] = r.Count
	}
	return counts, nil
}

// GetOrCreateUsage retrieves the usage row for (userID, day), inserting a
// zeroed row with the given tier limit if absent.
func (s *sqlxStore) GetOrCreateUsage(ctx context.Context, userID, day string, tierLimit int) (*UsageQuota, error) {
	if userID == "" || day == "" {
		return nil, fmt.Errorf("user_id and day cannot be empty")
	}

	now := time.Now().UTC()
	insert := `
        INSERT INTO usage_quotas (user_id, day, responses_used, tier_limit, created_at, updated_at)
        VALUES (?, ?, 0, ?, ?, ?)
        ON CONFLICT(user_id, day) DO NOTHING;
    `
	if _, err := s.db.ExecContext(ctx, insert, userID, day, tierLimit, now, now); err != nil {
		s.logger.ErrorContext(ctx, "Error creating usage row", "user_id", userID, "day", day, "error", err)
		return nil, fmt.Errorf("failed to create usage row for user %s on %s: %w", userID, day, err)
	}

	var usage UsageQuota
	query := `SELECT user_id, day, responses_used, tier_limit, created_at, updated_at
	          FROM usage_quotas WHERE user_id = ? AND day = ?`
	if err := s.db.GetContext(ctx, &usage, query, userID, day); err != nil {
		s.logger.ErrorContext(ctx, "Error getting usage row", "user_id", userID, "day", day, "error", err)
		return nil, fmt.Errorf("failed to get usage row for user %s on %s: %w", userID, day, err)
	}

	return &usage, nil
}

// IncrementUsage atomically adds one to responses_used for (userID, day).
// The upsert form keeps concurrent increments from losing counts: the
// addition happens inside the database, not in a read-modify-write cycle.
func (s *sqlxStore) IncrementUsage(ctx context.Context, userID, day string, tierLimit int) error {
	if userID == "" || day == "" {
		return fmt.Errorf("user_id and day cannot be empty")
	}

	now := time.Now().UTC()
	query := `
        INSERT INTO usage_quotas (user_id, day, responses_used, tier_limit, created_at, updated_at)
        VALUES (?, ?, 1, ?, ?, ?)
        ON CONFLICT(user_id, day) DO UPDATE SET
            responses_used = responses_used + 1,
            updated_at = excluded.updated_at;
    `

	if _, err := s.db.ExecContext(ctx, query, userID, day, tierLimit, now, now); err != nil {
		s.logger.ErrorContext(ctx, "Error incrementing usage", "user_id", userID, "day", day, "error", err)
		return fmt.Errorf("failed to increment usage for user %s on %s: %w", userID, day, err)
	}

	s.logger.DebugContext(ctx, "Usage incremented", "user_id", userID, "day", day)
	return nil
}

// DeleteUsageBefore removes usage rows older than the given day.
func (s *sqlxStore) DeleteUsageBefore(ctx context.Context, day string) (int64, error) {
	if day == "" {
		return 0, fmt.Errorf("day cannot be empty")
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM usage_quotas WHERE day < ?`, day)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting stale usage rows", "before_day", day, "error", err)
		return 0, fmt.Errorf("failed to delete usage rows before %s: %w", day, err)
	}

	count, _ := result.RowsAffected()
	s.logger.InfoContext(ctx, "Deleted stale usage rows", "before_day", day, "count", count)
	return count, nil
}

// GetMoodTrend aggregates per-day signal averages for a user since the given
// day (inclusive), oldest day first.
func (s *sqlxStore) GetMoodTrend(ctx context.Context, userID, sinceDay string) ([]*MoodDay, error) {
	if userID == "" || sinceDay == "" {
		return nil, fmt.Errorf("user_id and since day cannot be empty")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var days []*MoodDay
	query := `
        SELECT date(created_at) AS day,
               COUNT(*) AS entries,
               AVG(mood_level) AS avg_mood,
               AVG(energy_level) AS avg_energy,
               AVG(stress_level) AS avg_stress
        FROM journal_entries
        WHERE user_id = ? AND date(created_at) >= ?
        GROUP BY date(created_at)
        ORDER BY day ASC;
    `

	if err := s.db.SelectContext(ctx, &days, query, userID, sinceDay); err != nil {
		s.logger.ErrorContext(ctx, "Error aggregating mood trend", "user_id", userID, "since", sinceDay, "error", err)
		return nil, fmt.Errorf("failed to aggregate mood trend for user %s: %w", userID, err)
	}

	return days, nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite.
	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)

	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)

	default:
		s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	}

	return nil
}
