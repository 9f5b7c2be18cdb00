package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the chat service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowedOrigins   []string

	DatabaseURL string

	SecretKey      string
	AccessTokenTTL time.Duration

	CompletionMode      string
	OpenRouterAPIKey    string
	OpenRouterBaseURL   string
	OpenRouterModel     string
	OpenRouterMaxTokens int
	OpenRouterReferer   string
	OpenRouterTitle     string
	CompletionTimeout   time.Duration

	UploadDir      string
	UploadMaxBytes int64
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":8000"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "chatbox"),
		AllowedOrigins:    listFromEnv("APP_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		DatabaseURL:       stringsTrimSpace("DATABASE_URL"),
		SecretKey:         envOrDefault("SECRET_KEY", "supersecretkey"),
		CompletionMode:    strings.ToLower(envOrDefault("COMPLETION_MODE", "auto")),
		OpenRouterAPIKey:  stringsTrimSpace("OPENROUTER_API_KEY"),
		OpenRouterBaseURL: envOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterModel:   envOrDefault("OPENROUTER_MODEL", "google/gemini-pro-1.5"),
		OpenRouterReferer: envOrDefault("OPENROUTER_REFERER", "http://localhost:8000"),
		OpenRouterTitle:   envOrDefault("OPENROUTER_TITLE", "Chat Box"),
		UploadDir:         envOrDefault("UPLOAD_DIR", "uploads"),

		ShutdownTimeout:     15 * time.Second,
		AccessTokenTTL:      30 * time.Minute,
		OpenRouterMaxTokens: 1000,
		CompletionTimeout:   60 * time.Second,
		UploadMaxBytes:      20 << 20,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AccessTokenTTL, err = durationFromEnv("ACCESS_TOKEN_TTL", cfg.AccessTokenTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.CompletionTimeout, err = durationFromEnv("COMPLETION_TIMEOUT", cfg.CompletionTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.OpenRouterMaxTokens, err = intFromEnv("OPENROUTER_MAX_TOKENS", cfg.OpenRouterMaxTokens)
	if err != nil {
		return Config{}, err
	}
	maxBytes, err := intFromEnv("UPLOAD_MAX_BYTES", int(cfg.UploadMaxBytes))
	if err != nil {
		return Config{}, err
	}
	cfg.UploadMaxBytes = int64(maxBytes)

	switch cfg.CompletionMode {
	case "auto", "echo":
	case "openrouter":
		if cfg.OpenRouterAPIKey == "" {
			return Config{}, fmt.Errorf("OPENROUTER_API_KEY is required when COMPLETION_MODE=openrouter")
		}
	default:
		return Config{}, fmt.Errorf("COMPLETION_MODE must be one of auto, openrouter, echo")
	}
	if cfg.OpenRouterMaxTokens <= 0 {
		return Config{}, fmt.Errorf("OPENROUTER_MAX_TOKENS must be positive")
	}
	if cfg.CompletionTimeout < time.Second {
		return Config{}, fmt.Errorf("COMPLETION_TIMEOUT must be at least 1s")
	}
	if cfg.AccessTokenTTL <= 0 {
		return Config{}, fmt.Errorf("ACCESS_TOKEN_TTL must be positive")
	}
	if cfg.UploadMaxBytes <= 0 {
		return Config{}, fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func listFromEnv(key string, fallback []string) []string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
