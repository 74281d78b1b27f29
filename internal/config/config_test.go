package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "3200" {
		t.Errorf("Expected port 3200, got %s", cfg.Port)
	}
	if cfg.HTTP.BodySize != 256000 {
		t.Errorf("Expected body size 256000, got %d", cfg.HTTP.BodySize)
	}
	if cfg.HTTP.LimitWindow != time.Hour {
		t.Errorf("Expected limit window 1h, got %v", cfg.HTTP.LimitWindow)
	}
	if cfg.Training.SessionTTL != 30*time.Minute {
		t.Errorf("Expected session ttl 30m, got %v", cfg.Training.SessionTTL)
	}
	if len(cfg.Training.Languages) != 4 {
		t.Errorf("Expected 4 default languages, got %v", cfg.Training.Languages)
	}
	if cfg.UsePostgres() || cfg.FallbackEnabled() {
		t.Error("Expected SQLite and no fallback by default")
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LANGUAGES", " EN, fr ,,")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LIMIT", "10")
	t.Setenv("LIMIT_WINDOW", "1m")
	t.Setenv("BOT_URL", "https://bot.example/")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9000" {
		t.Errorf("Expected port 9000, got %s", cfg.Port)
	}
	if got := cfg.Training.Languages; len(got) != 2 || got[0] != "en" || got[1] != "fr" {
		t.Errorf("Expected [en fr], got %v", got)
	}
	if got := cfg.HTTP.AllowedOrigins; len(got) != 2 || got[1] != "https://b.example" {
		t.Errorf("Unexpected origins %v", got)
	}
	if cfg.BotURL != "https://bot.example" {
		t.Errorf("Expected trailing slash trimmed, got %s", cfg.BotURL)
	}
	if level, _ := cfg.SlogLevel(); level != slog.LevelDebug {
		t.Errorf("Expected debug level, got %v", level)
	}
	if !cfg.UsePostgres() {
		t.Error("Expected Postgres when DATABASE_URL is set")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"MAX_TRAINING":           "0",
		"BODY_SIZE":              "-1",
		"LLM_FALLBACK_THRESHOLD": "2",
		"BOT_URL":                "not a url",
		"LOG_LEVEL":              "chatty",
		"LIMIT":                  "-3",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Errorf("Expected error for %s=%s", key, value)
			}
		})
	}
}
