package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv              string
	Port                string
	DatabaseURL         string
	StoragePath         string
	ProvidersConfigPath string
	GeoIPDBPath         string
	CORSOrigins         []string

	EditTimeout      time.Duration
	EditSessionTTL   time.Duration
	EditHistoryLimit int

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	QwenAPIKey    string
	QwenModel     string
	QwenBaseURL   string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		AppEnv:              getEnv("APP_ENV", "development"),
		Port:                getEnv("PORT", "8080"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		StoragePath:         getEnv("STORAGE_PATH", "./storage"),
		ProvidersConfigPath: getEnv("PROVIDERS_CONFIG_PATH", "providers.yaml"),
		GeoIPDBPath:         os.Getenv("GEOIP_DB_PATH"),
		CORSOrigins:         splitAndTrim(getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000")),
		EditTimeout:         time.Second * time.Duration(getEnvInt("EDIT_TIMEOUT_SECONDS", 90)),
		EditSessionTTL:      time.Second * time.Duration(getEnvInt("EDIT_SESSION_TTL_SECONDS", 1800)),
		EditHistoryLimit:    getEnvInt("EDIT_HISTORY_LIMIT", 10),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),
		GeminiBaseURL:       getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		QwenAPIKey:          os.Getenv("QWEN_API_KEY"),
		QwenModel:           getEnv("QWEN_MODEL", "qwen-image-edit"),
		QwenBaseURL:         getEnv("QWEN_BASE_URL", "https://dashscope.aliyuncs.com/api/v1"),
		HTTPReadTimeout:     time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:    time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:     time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:     getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.EditHistoryLimit < 2 {
		return nil, fmt.Errorf("EDIT_HISTORY_LIMIT must be at least 2")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
