package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendGemini = "gemini"
	BackendOpenAI = "openai"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	Backend        string
	GeminiKey      string
	GeminiModel    string
	GeminiBaseURL  string
	OpenAIKey      string
	OpenAIEndpoint string
	OpenAIModel    string
	QuestionCount  int
	RequestTimeout time.Duration
	DiagnosticsDB  string
	LogLevel       string
	Port           string

	// Warnings lists problems found while loading. They are logged by
	// LogWarnings once the logger is configured.
	Warnings []string
}

// Load reads configuration from the environment, providing sensible defaults.
func Load() Config {
	// Load .env file if it exists (useful for development)
	_ = godotenv.Load()

	var warnings []string
	warnf := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	cfg := Config{
		Backend:        strings.ToLower(getEnv("GENERATION_BACKEND", BackendGemini)),
		GeminiKey:      firstEnv("GEMINI_API_KEY", "API_KEY"),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:  os.Getenv("GEMINI_BASE_URL"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIEndpoint: getEnv("OPENAI_API_ENDPOINT", "https://api.openai.com/v1"),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		QuestionCount:  getEnvInt("QUESTION_COUNT", 20, warnf),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 0, warnf),
		DiagnosticsDB:  os.Getenv("DIAGNOSTICS_DB"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Port:           getEnv("PORT", "8080"),
	}

	if cfg.Backend != BackendGemini && cfg.Backend != BackendOpenAI {
		warnf("unknown GENERATION_BACKEND %q, using %s", cfg.Backend, BackendGemini)
		cfg.Backend = BackendGemini
	}

	if cfg.DiagnosticsDB != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DiagnosticsDB), 0o755); err != nil {
			warnf("failed to ensure diagnostics dir for %s, diagnostics disabled: %v", cfg.DiagnosticsDB, err)
			cfg.DiagnosticsDB = ""
		}
	}

	cfg.Warnings = warnings
	return cfg
}

// LogWarnings writes the load warnings through Logger. Call it after InitLogger.
func (c Config) LogWarnings() {
	for _, warning := range c.Warnings {
		Logger.Warn(warning)
	}
}

// APIKey returns the credential configured for the selected backend.
func (c Config) APIKey() string {
	if c.Backend == BackendOpenAI {
		return c.OpenAIKey
	}
	return c.GeminiKey
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok && val != "" {
			return val
		}
	}
	return ""
}

func getEnvInt(key string, fallback int, warnf func(string, ...any)) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		warnf("invalid %s=%q, using %d", key, raw, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration, warnf func(string, ...any)) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		warnf("invalid %s=%q, using %s", key, raw, fallback)
		return fallback
	}
	return d
}
