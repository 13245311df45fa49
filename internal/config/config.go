package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// AI provider selection and credentials
	AIProvider         string
	AIFallbackProvider string
	OpenAIAPIKey       string
	OpenAIModel        string
	GeminiAPIKey       string
	GeminiModel        string
	BedrockModelID     string
	AWSRegion          string

	// Provider call limits
	ProviderTimeout       time.Duration
	ProviderMaxConcurrent int64
	ProviderRetryDelay    time.Duration

	// Qualification criteria
	BusinessType   string
	RequiredFields []string
	MinScore       int
	MaxAttempts    int
	TimeoutMinutes int
	ReaperInterval time.Duration

	// Lead region used for phone validation
	DefaultPhoneRegion string

	// Transcript mirror (optional)
	RedisAddr     string
	RedisPassword string
	TranscriptTTL time.Duration

	// CRM lead storage (optional; in-memory when empty)
	DatabaseURL string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AIProvider:         strings.ToLower(strings.TrimSpace(getEnv("AI_PROVIDER", "openai"))),
		AIFallbackProvider: strings.ToLower(strings.TrimSpace(getEnv("AI_FALLBACK_PROVIDER", ""))),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		BedrockModelID:     getEnv("BEDROCK_MODEL_ID", ""),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),

		ProviderTimeout:       getEnvAsDuration("PROVIDER_TIMEOUT", 30*time.Second),
		ProviderMaxConcurrent: int64(getEnvAsInt("PROVIDER_MAX_CONCURRENT", 8)),
		ProviderRetryDelay:    getEnvAsDuration("PROVIDER_RETRY_DELAY", 500*time.Millisecond),

		BusinessType:   getEnv("BUSINESS_TYPE", "services"),
		RequiredFields: getEnvAsList("REQUIRED_FIELDS", []string{"name", "phone", "interest"}),
		MinScore:       getEnvAsInt("MIN_SCORE", 50),
		MaxAttempts:    getEnvAsInt("MAX_ATTEMPTS", 5),
		TimeoutMinutes: getEnvAsInt("TIMEOUT_MINUTES", 30),
		ReaperInterval: getEnvAsDuration("REAPER_INTERVAL", time.Minute),

		DefaultPhoneRegion: getEnv("DEFAULT_PHONE_REGION", "BR"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		TranscriptTTL: getEnvAsDuration("TRANSCRIPT_TTL", 24*time.Hour),

		DatabaseURL: getEnv("DATABASE_URL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList parses a comma-separated environment variable.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
