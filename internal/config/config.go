// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration.
type Config struct {
	Port        string `env:"PORT" envDefault:"3200"`
	DBPath      string `env:"DB_PATH" envDefault:"./data/nlu.db"`
	DatabaseURL string `env:"DATABASE_URL"`
	GRPCPort    string `env:"GRPC_PORT"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	HTTP     HTTPConfig
	Training TrainingConfig
	LLM      LLMConfig

	// BotURL replaces BOT_URL placeholders in rendered content.
	BotURL string `env:"BOT_URL"`
}

// HTTPConfig controls the HTTP middleware stack.
type HTTPConfig struct {
	AuthToken      string        `env:"AUTH_TOKEN"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	BodySize       int64         `env:"BODY_SIZE" envDefault:"256000"`
	ReverseProxy   bool          `env:"REVERSE_PROXY" envDefault:"false"`
	Limit          int           `env:"LIMIT" envDefault:"0"`
	LimitWindow    time.Duration `env:"LIMIT_WINDOW" envDefault:"1h"`
}

// TrainingConfig bounds the training workers.
type TrainingConfig struct {
	MaxTraining int           `env:"MAX_TRAINING" envDefault:"2"`
	SessionTTL  time.Duration `env:"SESSION_TTL" envDefault:"30m"`
	Languages   []string      `env:"LANGUAGES" envSeparator:"," envDefault:"en,fr,es,de"`
}

// LLMConfig enables the optional fallback classifier.
type LLMConfig struct {
	APIKey    string  `env:"OPENAI_API_KEY"`
	Model     string  `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	BaseURL   string  `env:"OPENAI_BASE_URL"`
	Threshold float64 `env:"LLM_FALLBACK_THRESHOLD" envDefault:"0.5"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) normalize() {
	c.Training.Languages = trimList(c.Training.Languages, true)
	c.HTTP.AllowedOrigins = trimList(c.HTTP.AllowedOrigins, false)
	c.BotURL = strings.TrimRight(strings.TrimSpace(c.BotURL), "/")
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DatabaseURL == "" && c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty when DATABASE_URL is not set")
	}
	if c.HTTP.BodySize <= 0 {
		return fmt.Errorf("BODY_SIZE must be > 0")
	}
	if c.HTTP.Limit < 0 {
		return fmt.Errorf("LIMIT must be >= 0")
	}
	if c.HTTP.Limit > 0 && c.HTTP.LimitWindow <= 0 {
		return fmt.Errorf("LIMIT_WINDOW must be > 0 when LIMIT is set")
	}
	if c.Training.MaxTraining <= 0 {
		return fmt.Errorf("MAX_TRAINING must be > 0")
	}
	if c.Training.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if len(c.Training.Languages) == 0 {
		return fmt.Errorf("LANGUAGES cannot be empty")
	}
	if c.LLM.Threshold < 0 || c.LLM.Threshold > 1 {
		return fmt.Errorf("LLM_FALLBACK_THRESHOLD must be within [0,1]")
	}
	if c.BotURL != "" {
		if u, err := url.Parse(c.BotURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("BOT_URL must be an absolute url")
		}
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// UsePostgres returns true when models are stored in Postgres rather than SQLite.
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// FallbackEnabled returns true when an LLM fallback classifier is configured.
func (c *Config) FallbackEnabled() bool {
	return c.LLM.APIKey != ""
}

// SlogLevel maps LOG_LEVEL to a slog level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is not a valid level", c.LogLevel)
	}
	return level, nil
}

func trimList(in []string, lower bool) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if lower {
			s = strings.ToLower(s)
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
