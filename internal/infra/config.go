package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string

	GeminiAPIKey  string
	GeminiBaseURL string
	Models        ModelConfig

	StorageProvider   string
	StoragePath       string
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2Bucket          string
	StoragePublicURL  string
	SignedURLLifetime time.Duration

	AllowedOrigins   []string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		Models: ModelConfig{
			DerivationText:  getEnv("MODEL_DERIVATION_TEXT", DefaultTextModel),
			DerivationImage: getEnv("MODEL_DERIVATION_IMAGE", DefaultImageModel),
			Avatar:          getEnv("MODEL_AVATAR", DefaultImageModel),
			TryOn:           getEnv("MODEL_TRY_ON", DefaultImageModel),
			Swap:            getEnv("MODEL_SWAP", DefaultImageModel),
		},

		StorageProvider:   getEnv("STORAGE_PROVIDER", "r2"),
		StoragePath:       getEnv("STORAGE_PATH", "./storage"),
		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2Bucket:          os.Getenv("R2_BUCKET_NAME"),
		StoragePublicURL:  strings.TrimRight(os.Getenv("R2_PUBLIC_URL"), "/"),
		SignedURLLifetime: time.Second * time.Duration(getEnvInt("SIGNED_URL_LIFETIME_SECONDS", 3600)),

		AllowedOrigins:   splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 300)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	cfg.Models = cfg.Models.Normalize()

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

// ObjectStorageConfigured reports whether all credentials for the object
// storage backend are present. When false the service falls back to returning
// inline payloads and persisting nothing to object storage.
func (c *Config) ObjectStorageConfigured() bool {
	switch c.StorageProvider {
	case "filesystem", "local":
		return c.StoragePath != ""
	default:
		return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" && c.R2Bucket != ""
	}
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

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
