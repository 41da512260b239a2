package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-provided setting. Loaded once per process;
// treat the returned struct as immutable.
type Config struct {
	// OpenRouter
	OpenRouterAPIKey  string
	OpenRouterBaseURL string

	// Models per stage (primary + vision fallback)
	ContextModel        string
	ContextVisionModel  string
	DirectorModel       string
	DirectorVisionModel string
	ImageModel          string

	// Request behavior
	MaxConcurrentRequests int
	RequestTimeoutSec     int
	MaxRetries            int
	RetryBaseDelayMs      int

	// Attribution headers OpenRouter asks clients to send
	HTTPReferer string
	AppTitle    string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// Supabase
	SupabaseURL            string
	SupabaseServiceKey     string
	SupabaseStorageBucket  string
	SupabaseStorageBaseURL string

	// Server
	Port string
}

var globalConfig *Config

// LoadConfig reads .env (when present) and the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, using environment variables")
	}

	useTLS := true
	if tlsStr := os.Getenv("REDIS_USE_TLS"); tlsStr != "" {
		if parsed, err := strconv.ParseBool(tlsStr); err == nil {
			useTLS = parsed
		}
	}

	globalConfig = &Config{
		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),

		ContextModel:        getEnv("OPENROUTER_CONTEXT_MODEL", "openai/gpt-5-mini"),
		ContextVisionModel:  getEnv("OPENROUTER_CONTEXT_VISION_MODEL", "openai/gpt-4o-mini"),
		DirectorModel:       getEnv("OPENROUTER_DIRECTOR_MODEL", "openai/gpt-5"),
		DirectorVisionModel: getEnv("OPENROUTER_DIRECTOR_VISION_MODEL", "openai/gpt-4o-mini"),
		ImageModel:          getEnv("OPENROUTER_IMAGE_MODEL", "google/gemini-2.5-flash-image-preview"),

		MaxConcurrentRequests: getEnvInt("MAX_CONCURRENT_REQUESTS", 5),
		RequestTimeoutSec:     getEnvInt("REQUEST_TIMEOUT_SECONDS", 60),
		MaxRetries:            getEnvInt("REQUEST_MAX_RETRIES", 2),
		RetryBaseDelayMs:      getEnvInt("RETRY_BASE_DELAY_MS", 800),

		HTTPReferer: getEnv("HTTP_REFERER", "http://localhost"),
		AppTitle:    getEnv("APP_TITLE", "Maestro Pipeline Server"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   useTLS,

		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:     getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket:  getEnv("SUPABASE_STORAGE_BUCKET", "storyboards"),
		SupabaseStorageBaseURL: getEnv("SUPABASE_STORAGE_BASE_URL", ""),

		Port: getEnv("PORT", "8080"),
	}

	if err := globalConfig.validate(); err != nil {
		return nil, err
	}

	log.Println("✅ Configuration loaded successfully")
	log.Printf("   OpenRouter: %s (context=%s, director=%s, image=%s)",
		globalConfig.OpenRouterBaseURL, globalConfig.ContextModel,
		globalConfig.DirectorModel, globalConfig.ImageModel)
	log.Printf("   Redis: %s:%s (TLS: %v)", globalConfig.RedisHost, globalConfig.RedisPort, globalConfig.RedisUseTLS)
	log.Printf("   Supabase: %s (bucket: %s)", globalConfig.SupabaseURL, globalConfig.SupabaseStorageBucket)
	log.Printf("   Requests: timeout=%ds retries=%d baseDelay=%dms",
		globalConfig.RequestTimeoutSec, globalConfig.MaxRetries, globalConfig.RetryBaseDelayMs)

	return globalConfig, nil
}

// GetConfig returns the loaded settings.
func GetConfig() *Config {
	if globalConfig == nil {
		log.Fatal("❌ Config not loaded. Call LoadConfig() first.")
	}
	return globalConfig
}

func (c *Config) validate() error {
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabaseServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_KEY is required")
	}
	if c.OpenRouterAPIKey == "" {
		// Stage calls reject with an explicit error before any network I/O,
		// so the server may still boot for health checks and cancellation.
		log.Println("⚠️  OPENROUTER_API_KEY not set; generation endpoints will refuse requests")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetRedisAddr builds the Redis connection string.
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// RequestTimeout returns the per-request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// RetryBaseDelay returns the backoff base as a duration.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}
