// Package logger provides structured logging for the PulseCheck backend.
// It uses Go's slog package with configurable levels and formats.
package logger

import (
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
)

// NewLogger creates a new slog Logger with the specified level and format.
// If jsonOutput is true, logs will be formatted as JSON, otherwise as text.
func NewLogger(levelStr string, jsonOutput bool) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// Middleware creates a request-logging middleware for the HTTP server.
// It logs method, path, status, and duration for every request.
func Middleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		logEntry := log.With(
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
		if q := c.Request.URL.RawQuery; q != "" {
			logEntry = logEntry.With("query", truncateString(q, 100))
		}

		logEntry.DebugContext(c.Request.Context(), "Processing request")

		c.Next()

		duration := time.Since(startTime)
		logEntry = logEntry.With(
			"status", c.Writer.Status(),
			"duration", duration,
		)
		if len(c.Errors) > 0 {
			logEntry = logEntry.With("errors", c.Errors.String())
		}
		logEntry.InfoContext(c.Request.Context(), "Finished processing request")
	}
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
