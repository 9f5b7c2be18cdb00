package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8000" {
		t.Fatalf("BindAddr = %q, want :8000", cfg.BindAddr)
	}
	if cfg.CompletionMode != "auto" {
		t.Fatalf("CompletionMode = %q, want auto", cfg.CompletionMode)
	}
	if cfg.OpenRouterBaseURL != "https://openrouter.ai/api/v1" {
		t.Fatalf("OpenRouterBaseURL = %q", cfg.OpenRouterBaseURL)
	}
	if cfg.OpenRouterMaxTokens != 1000 {
		t.Fatalf("OpenRouterMaxTokens = %d, want 1000", cfg.OpenRouterMaxTokens)
	}
	if cfg.CompletionTimeout != 60*time.Second {
		t.Fatalf("CompletionTimeout = %v, want 60s", cfg.CompletionTimeout)
	}
	if cfg.AccessTokenTTL != 30*time.Minute {
		t.Fatalf("AccessTokenTTL = %v, want 30m", cfg.AccessTokenTTL)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:5173" {
		t.Fatalf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty default", cfg.DatabaseURL)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("APP_ALLOWED_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("COMPLETION_MODE", "OpenRouter")
	t.Setenv("OPENROUTER_API_KEY", " sk-test ")
	t.Setenv("COMPLETION_TIMEOUT", "5s")
	t.Setenv("UPLOAD_MAX_BYTES", "1024")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" || cfg.CompletionMode != "openrouter" || cfg.OpenRouterAPIKey != "sk-test" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.test" {
		t.Fatalf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.CompletionTimeout != 5*time.Second || cfg.UploadMaxBytes != 1024 {
		t.Fatalf("timeout=%v maxBytes=%d", cfg.CompletionTimeout, cfg.UploadMaxBytes)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"openrouter without key": {"COMPLETION_MODE": "openrouter"},
		"unknown mode":           {"COMPLETION_MODE": "gpt"},
		"bad duration":           {"COMPLETION_TIMEOUT": "soon"},
		"tiny timeout":           {"COMPLETION_TIMEOUT": "10ms"},
		"bad max tokens":         {"OPENROUTER_MAX_TOKENS": "0"},
		"bad upload limit":       {"UPLOAD_MAX_BYTES": "-1"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("Load() error = nil, want error")
			}
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOWED_ORIGINS",
		"DATABASE_URL",
		"SECRET_KEY",
		"ACCESS_TOKEN_TTL",
		"COMPLETION_MODE",
		"OPENROUTER_API_KEY",
		"OPENROUTER_BASE_URL",
		"OPENROUTER_MODEL",
		"OPENROUTER_MAX_TOKENS",
		"OPENROUTER_REFERER",
		"OPENROUTER_TITLE",
		"COMPLETION_TIMEOUT",
		"UPLOAD_DIR",
		"UPLOAD_MAX_BYTES",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
