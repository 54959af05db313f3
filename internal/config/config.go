// Package config provides configuration loading, validation, and management
// for the PulseCheck backend. It handles reading from YAML files, setting
// default values, and validating configuration parameters.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config defines the application configuration for all components of the
// PulseCheck backend: logging, HTTP server, database, Gemini integration,
// the insight engine, quota tiers, and scheduled tasks.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"             validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"min=1s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"min=1s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s"`
}

// DatabaseConfig controls the SQLite database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// GeminiConfig controls the Gemini API client.
type GeminiConfig struct {
	APIKey     string        `mapstructure:"api_key"     validate:"required"`
	ModelName  string        `mapstructure:"model"       validate:"required"`
	MaxRetries int           `mapstructure:"max_retries" validate:"min=0,max=10"`
	RetryDelay time.Duration `mapstructure:"retry_delay" validate:"min=100ms"`
	Timeout    time.Duration `mapstructure:"timeout"     validate:"min=1s,max=10m"`
}

// EngineConfig controls context building and response dispatch.
type EngineConfig struct {
	// Depth selects how much prior history the context builder includes.
	Depth string `mapstructure:"depth" validate:"oneof=minimal standard deep"`

	// MaxContextTokens is the model's effective context budget; the reserved
	// output tokens are subtracted before history is fitted into it.
	MaxContextTokens     int `mapstructure:"max_context_tokens"     validate:"min=1000,max=200000"`
	ReservedOutputTokens int `mapstructure:"reserved_output_tokens" validate:"min=100,max=32000"`

	// MaxConcurrent bounds how many persona generations run in parallel
	// for one batch.
	MaxConcurrent int `mapstructure:"max_concurrent" validate:"min=1,max=16"`

	// Confidence is recorded on each stored response. The Gemini API does
	// not expose a usable per-response confidence, so a fixed heuristic
	// value is stamped.
	Confidence float64 `mapstructure:"confidence" validate:"min=0,max=1"`
}

// QuotaConfig controls per-tier daily AI response limits.
type QuotaConfig struct {
	DefaultTier   string            `mapstructure:"default_tier" validate:"required"`
	Tiers         map[string]int    `mapstructure:"tiers"        validate:"required,min=1"`
	UserTiers     map[string]string `mapstructure:"user_tiers"`
	RetentionDays int               `mapstructure:"retention_days" validate:"min=1"`
}

// TaskConfig describes one scheduled task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig holds the scheduled task table keyed by task name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// Load loads and validates configuration from:
// 1. Default values
// 2. config.yaml file (optional)
// 3. PULSE_* environment variables
func Load() (*Config, error) {
	setDefaults()

	if err := readConfig(); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.Engine.ReservedOutputTokens >= cfg.Engine.MaxContextTokens {
		return nil, fmt.Errorf("config validation failed: engine.reserved_output_tokens must be smaller than engine.max_context_tokens")
	}

	if _, ok := cfg.Quota.Tiers[cfg.Quota.DefaultTier]; !ok {
		return nil, fmt.Errorf("config validation failed: default tier %q not present in quota.tiers", cfg.Quota.DefaultTier)
	}

	return cfg, nil
}

// readConfig initializes and loads the configuration using viper.
func readConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("PULSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Allow missing config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return nil
}

// setDefaults sets default values for optional configuration parameters.
func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.json", true)

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.write_timeout", 2*time.Minute)
	viper.SetDefault("server.shutdown_timeout", 15*time.Second)

	viper.SetDefault("database.path", "pulsecheck.db")

	// Registered empty so the PULSE_GEMINI_API_KEY env var binds on unmarshal.
	viper.SetDefault("gemini.api_key", "")
	viper.SetDefault("gemini.model", "gemini-2.0-flash")
	viper.SetDefault("gemini.max_retries", 2)
	viper.SetDefault("gemini.retry_delay", 2*time.Second)
	viper.SetDefault("gemini.timeout", 30*time.Second)

	viper.SetDefault("engine.depth", "standard")
	viper.SetDefault("engine.max_context_tokens", 16000)
	viper.SetDefault("engine.reserved_output_tokens", 1500)
	viper.SetDefault("engine.max_concurrent", 4)
	viper.SetDefault("engine.confidence", 0.7)

	viper.SetDefault("quota.default_tier", "free")
	viper.SetDefault("quota.tiers", map[string]int{
		"free":    3,
		"plus":    15,
		"premium": 50,
	})
	viper.SetDefault("quota.retention_days", 90)

	viper.SetDefault("scheduler.tasks.sql_maintenance.enabled", true)
	viper.SetDefault("scheduler.tasks.sql_maintenance.schedule", "0 0 4 * * *")
	viper.SetDefault("scheduler.tasks.usage_cleanup.enabled", true)
	viper.SetDefault("scheduler.tasks.usage_cleanup.schedule", "0 30 4 * * *")
}
