// Package api implements the HTTP surface of the PulseCheck backend: journal
// entry CRUD, AI response generation, persona listing, quota lookups, and
// mood analytics.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulsehq/pulsecheck/internal/database"
	"github.com/pulsehq/pulsecheck/internal/insight"
	"github.com/pulsehq/pulsecheck/internal/logger"
	"github.com/pulsehq/pulsecheck/internal/persona"
	"github.com/pulsehq/pulsecheck/internal/quota"
)

// Server holds the handler dependencies, constructed once at startup.
type Server struct {
	log     *slog.Logger
	store   database.Store
	engine  *insight.Engine
	gate    *quota.Gate
	catalog *persona.Catalog
}

// NewServer creates the HTTP server with its collaborators.
func NewServer(
	log *slog.Logger,
	store database.Store,
	engine *insight.Engine,
	gate *quota.Gate,
	catalog *persona.Catalog,
) *Server {
	return &Server{
		log:     log.With("component", "api"),
		store:   store,
		engine:  engine,
		gate:    gate,
		catalog: catalog,
	}
}

// Router builds the gin engine with all routes and middleware registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(s.log))

	r.GET("/healthz", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/entries", s.createEntry)
		v1.GET("/entries/:id", s.getEntry)
		v1.PUT("/entries/:id", s.updateEntry)
		v1.DELETE("/entries/:id", s.deleteEntry)
		v1.POST("/entries/:id/responses", s.generateResponses)
		v1.GET("/entries/:id/responses", s.listResponses)

		v1.GET("/users/:user_id/entries", s.listEntries)
		v1.GET("/users/:user_id/quota", s.getQuota)
		v1.GET("/users/:user_id/analytics/mood", s.getMoodTrend)

		v1.GET("/personas", s.listPersonas)
	}

	return r
}

func (s *Server) health(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		s.log.ErrorContext(c.Request.Context(), "Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError writes the standard error envelope.
func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": gin.H{"status": status, "message": msg}})
}
