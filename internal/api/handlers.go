package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pulsehq/pulsecheck/internal/database"
	"github.com/pulsehq/pulsecheck/internal/insight"
	"github.com/pulsehq/pulsecheck/internal/persona"
)

// createEntryRequest is the payload for POST /entries. Signal levels are
// validated at the boundary so stored entries always hold the 1-10 range.
type createEntryRequest struct {
	UserID      string   `json:"user_id"      binding:"required"`
	Content     string   `json:"content"      binding:"required"`
	MoodLevel   int      `json:"mood_level"   binding:"required,min=1,max=10"`
	EnergyLevel int      `json:"energy_level" binding:"required,min=1,max=10"`
	StressLevel int      `json:"stress_level" binding:"required,min=1,max=10"`
	Tags        []string `json:"tags"         binding:"max=10,dive,min=1,max=50"`
}

type updateEntryRequest struct {
	Content     string   `json:"content"      binding:"required"`
	MoodLevel   int      `json:"mood_level"   binding:"required,min=1,max=10"`
	EnergyLevel int      `json:"energy_level" binding:"required,min=1,max=10"`
	StressLevel int      `json:"stress_level" binding:"required,min=1,max=10"`
	Tags        []string `json:"tags"         binding:"max=10,dive,min=1,max=50"`
}

type generateRequest struct {
	UserID           string   `json:"user_id"           binding:"required"`
	PreferredPersona string   `json:"preferred_persona"`
	ForcePersonas    []string `json:"force_personas"`
	TestingMode      bool     `json:"testing_mode"`
}

// entryView is the JSON shape of a journal entry.
type entryView struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Content     string    `json:"content"`
	MoodLevel   int       `json:"mood_level"`
	EnergyLevel int       `json:"energy_level"`
	StressLevel int       `json:"stress_level"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toEntryView(e *database.JournalEntry) entryView {
	return entryView{
		ID:          e.ID,
		UserID:      e.UserID,
		Content:     e.Content,
		MoodLevel:   e.MoodLevel,
		EnergyLevel: e.EnergyLevel,
		StressLevel: e.StressLevel,
		Tags:        e.TagList(),
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// responseView is the JSON shape of a stored AI response.
type responseView struct {
	ID             string    `json:"id"`
	JournalEntryID string    `json:"journal_entry_id"`
	UserID         string    `json:"user_id"`
	PersonaID      string    `json:"persona_id"`
	ResponseText   string    `json:"response_text"`
	Themes         []string  `json:"themes_identified"`
	Confidence     float64   `json:"confidence_score"`
	CreatedAt      time.Time `json:"created_at"`
}

func toResponseView(r *database.AIResponse) responseView {
	return responseView{
		ID:             r.ID,
		JournalEntryID: r.JournalEntryID,
		UserID:         r.UserID,
		PersonaID:      r.PersonaID,
		ResponseText:   r.ResponseText,
		Themes:         r.ThemeList(),
		Confidence:     r.Confidence,
		CreatedAt:      r.CreatedAt,
	}
}

func (s *Server) createEntry(c *gin.Context) {
	var req createEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid entry payload: "+err.Error())
		return
	}

	entry := &database.JournalEntry{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Content:     req.Content,
		MoodLevel:   req.MoodLevel,
		EnergyLevel: req.EnergyLevel,
		StressLevel: req.StressLevel,
		Tags:        database.JoinTags(req.Tags),
	}

	if err := s.store.SaveEntry(c.Request.Context(), entry); err != nil {
		s.log.ErrorContext(c.Request.Context(), "Failed to save entry", "user_id", req.UserID, "error", err)
		respondError(c, http.StatusInternalServerError, "failed to save entry")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": toEntryView(entry)})
}

func (s *Server) getEntry(c *gin.Context) {
	entry, err := s.store.GetEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "Failed to load entry", "entry_id", c.Param("id"), "error", err)
		respondError(c, http.StatusInternalServerError, "failed to load entry")
		return
	}
	if entry == nil {
		respondError(c, http.StatusNotFound, "entry not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toEntryView(entry)})
}

func (s *Server) updateEntry(c *gin.Context) {
	var req updateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid entry payload: "+err.Error())
		return
	}

	entry, err := s.store.GetEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to load entry")
		return
	}
	if entry == nil {
		respondError(c, http.StatusNotFound, "entry not found")
		return
	}

	// User edits never retroactively alter stored AI responses; only the
	// entry row changes.
	entry.Content = req.Content
	entry.MoodLevel = req.MoodLevel
	entry.EnergyLevel = req.EnergyLevel
	entry.StressLevel = req.StressLevel
	entry.Tags = database.JoinTags(req.Tags)

	if err := s.store.UpdateEntry(c.Request.Context(), entry); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, "entry not found")
			return
		}
		s.log.ErrorContext(c.Request.Context(), "Failed to update entry", "entry_id", entry.ID, "error", err)
		respondError(c, http.StatusInternalServerError, "failed to update entry")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toEntryView(entry)})
}

func (s *Server) deleteEntry(c *gin.Context) {
	err := s.store.DeleteEntry(c.Request.Context(), c.Param("id"))
	if errors.Is(err, sql.ErrNoRows) {
		respondError(c, http.StatusNotFound, "entry not found")
		return
	}
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "Failed to delete entry", "entry_id", c.Param("id"), "error", err)
		respondError(c, http.StatusInternalServerError, "failed to delete entry")
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listEntries(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	entries, err := s.store.GetRecentEntries(c.Request.Context(), c.Param("user_id"), limit, c.Query("before"))
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "Failed to list entries", "user_id", c.Param("user_id"), "error", err)
		respondError(c, http.StatusInternalServerError, "failed to list entries")
		return
	}

	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, toEntryView(e))
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}

func (s *Server) generateResponses(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid generation payload: "+err.Error())
		return
	}

	result, err := s.engine.GenerateResponses(c.Request.Context(), req.UserID, c.Param("id"), insight.Options{
		Preferred: req.PreferredPersona,
		Force:     req.ForcePersonas,
		SampleAll: req.TestingMode,
	})

	switch {
	case errors.Is(err, insight.ErrQuotaExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": gin.H{
				"status":    http.StatusTooManyRequests,
				"message":   "daily AI response quota exceeded",
				"remaining": 0,
			},
		})
		return

	case errors.Is(err, insight.ErrEntryNotFound):
		respondError(c, http.StatusNotFound, "entry not found")
		return

	case errors.Is(err, insight.ErrContextUnavailable):
		respondError(c, http.StatusServiceUnavailable, "journal history unavailable, try again later")
		return

	case errors.Is(err, persona.ErrNoPersonasAvailable):
		s.log.ErrorContext(c.Request.Context(), "Persona catalog is empty")
		respondError(c, http.StatusInternalServerError, "no personas configured")
		return

	case err != nil:
		s.log.ErrorContext(c.Request.Context(), "Generation failed", "entry_id", c.Param("id"), "error", err)
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	successes := make([]responseView, 0, len(result.Successes))
	for _, r := range result.Successes {
		successes = append(successes, toResponseView(r))
	}
	failures := result.Failures
	if failures == nil {
		failures = []insight.Failure{}
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"successes": successes,
		"failures":  failures,
	}})
}

func (s *Server) listResponses(c *gin.Context) {
	responses, err := s.store.GetResponsesForEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "Failed to list responses", "entry_id", c.Param("id"), "error", err)
		respondError(c, http.StatusInternalServerError, "failed to list responses")
		return
	}

	views := make([]responseView, 0, len(responses))
	for _, r := range responses {
		views = append(views, toResponseView(r))
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}

func (s *Server) getQuota(c *gin.Context) {
	usage, err := s.gate.Usage(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "Failed to load quota", "user_id", c.Param("user_id"), "error", err)
		respondError(c, http.StatusInternalServerError, "failed to load quota")
		return
	}

	remaining := usage.TierLimit - usage.Used
	if remaining < 0 {
		remaining = 0
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"day":       usage.Day,
		"used":      usage.Used,
		"limit":     usage.TierLimit,
		"remaining": remaining,
	}})
}

func (s *Server) getMoodTrend(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days <= 0 || days > 365 {
		respondError(c, http.StatusBadRequest, "days must be between 1 and 365")
		return
	}

	since := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	trend, err := s.store.GetMoodTrend(c.Request.Context(), c.Param("user_id"), since)
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "Failed to aggregate mood trend", "user_id", c.Param("user_id"), "error", err)
		respondError(c, http.StatusInternalServerError, "failed to aggregate mood trend")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": trend, "meta": gin.H{"days": days, "since": since}})
}

// personaView is the JSON shape of a catalog persona.
type personaView struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Personality string   `json:"personality"`
	Style       string   `json:"communication_style"`
	FocusAreas  []string `json:"focus_areas"`
	Temperature float32  `json:"temperature"`
}

func (s *Server) listPersonas(c *gin.Context) {
	views := make([]personaView, 0, s.catalog.Len())
	for _, d := range s.catalog.All() {
		views = append(views, personaView{
			ID:          d.ID,
			DisplayName: d.DisplayName,
			Personality: d.Personality,
			Style:       d.Style,
			FocusAreas:  d.FocusAreas,
			Temperature: d.Temperature,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}
