// Package insight implements the core response-generation pipeline: building
// prompt context for a journal entry, gating on the user's daily quota, and
// dispatching one generation per selected persona with idempotent storage.
package insight

import "errors"

var (
	// ErrContextUnavailable indicates the persistence layer could not be
	// reached while building context. The request must not proceed to
	// dispatch with silently missing history.
	ErrContextUnavailable = errors.New("journal history unavailable")

	// ErrQuotaExceeded indicates the user has exhausted today's AI response
	// quota. Surfaced to the caller; never retried automatically.
	ErrQuotaExceeded = errors.New("daily AI response quota exceeded")

	// ErrEntryNotFound indicates the target journal entry does not exist or
	// does not belong to the requesting user.
	ErrEntryNotFound = errors.New("journal entry not found")
)
