package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	ServerPort string
	GinMode    string
	LogLevel   string
	LogFormat  string
	RedisURL   string
	JWTSecret  string

	// AssessmentAPIURL is the base URL of the assessment service, the
	// system of record for assessments, attempts and invitations.
	AssessmentAPIURL string
	// AssessmentAPIKey is sent as a bearer token on service-to-service calls.
	AssessmentAPIKey string
	// RunnerURL is the base URL of the sandboxed code runner.
	RunnerURL string
	// RunnerTimeout bounds a single code execution round-trip. The runner
	// enforces its own wall-clock limit; this is the outer transport bound.
	RunnerTimeout time.Duration

	// AllowedOrigins controls HTTP CORS and WebSocket origin validation.
	// Empty slice means all origins are permitted (dev default).
	AllowedOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // Ignore error — .env is optional

	return &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		GinMode:          getEnv("GIN_MODE", "debug"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "pretty"),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		JWTSecret:        getEnv("JWT_SECRET", "change-this-to-a-secure-random-string"),
		AssessmentAPIURL: getEnv("ASSESSMENT_API_URL", "http://localhost:5000/api"),
		AssessmentAPIKey: getEnv("ASSESSMENT_API_KEY", ""),
		RunnerURL:        getEnv("RUNNER_URL", "http://localhost:7070"),
		RunnerTimeout:    time.Duration(getEnvInt("RUNNER_TIMEOUT_SECONDS", 30)) * time.Second,
		AllowedOrigins:   parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// parseOrigins splits a comma-separated origins string into a trimmed slice.
// Returns nil (allow-all) if the input is empty.
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
