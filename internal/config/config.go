// Package config provides environment configuration for the API server.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Chat reply modes.
const (
	ModeBuffered = "buffered"
	ModeStream   = "stream"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Env                string
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	CORSAllowedOrigins []string

	// Anonymous identity
	UIDCookieMaxAge time.Duration

	// LLM settings
	LLMProvider  string
	LLMAPIKey    string
	LLMBaseURL   string
	LLMModel     string
	LLMMaxTokens int
	ChatMode     string

	// Owner JWT settings
	JWTSecret string

	// Rate limiting
	RateLimitRequests   int
	RateLimitIPRequests int
	RateLimitWindow     time.Duration

	// NATS settings
	TranscriptsEnabled bool
	NATSURL            string
	NATSCAFile         string
	NATSCertFile       string
	NATSKeyFile        string
	NATSToken          string

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// devJWTSecret signs owner tokens outside production only.
const devJWTSecret = "development-secret-change-in-production"

// ErrMissingJWTSecret is returned by Validate when production runs without JWT_SECRET.
var ErrMissingJWTSecret = errors.New("config: JWT_SECRET must be set in production")

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present; real environment wins.
func Load() *Config {
	_ = godotenv.Load()

	provider := strings.ToLower(getEnv("LLM_PROVIDER", "openai"))
	env := getEnv("ENV", "development")

	// Production gets no wildcard origins and no fallback signing key.
	corsDefault := []string{"https://*", "http://*"}
	jwtDefault := devJWTSecret
	if env == "production" {
		corsDefault = nil
		jwtDefault = ""
	}

	return &Config{
		// Server
		Env:                env,
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
		CORSAllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", corsDefault),

		// Identity
		UIDCookieMaxAge: getDurationEnv("UID_COOKIE_MAX_AGE", 30*24*time.Hour),

		// LLM
		LLMProvider:  provider,
		LLMAPIKey:    apiKeyFor(provider),
		LLMBaseURL:   getEnv("LLM_BASE_URL", defaultBaseURL(provider)),
		LLMModel:     getEnv("LLM_MODEL", defaultModel(provider)),
		LLMMaxTokens: getIntEnv("LLM_MAX_TOKENS", 1024),
		ChatMode:     chatMode(getEnv("CHAT_DEFAULT_MODE", ModeBuffered)),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", jwtDefault),

		// Rate limiting
		RateLimitRequests:   getIntEnv("RATE_LIMIT_REQUESTS", 30),
		RateLimitIPRequests: getIntEnv("RATE_LIMIT_IP_REQUESTS", 300),
		RateLimitWindow:     getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// NATS
		TranscriptsEnabled: getBoolEnv("TRANSCRIPTS_ENABLED", false),
		NATSURL:            getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:         getEnv("NATS_CA_FILE", ""),
		NATSCertFile:       getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:        getEnv("NATS_KEY_FILE", ""),
		NATSToken:          getEnv("NATS_TOKEN", ""),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate rejects configurations that must not serve traffic.
func (c *Config) Validate() error {
	if c.IsProduction() && (c.JWTSecret == "" || c.JWTSecret == devJWTSecret) {
		return ErrMissingJWTSecret
	}
	return nil
}

// IsProduction reports whether cookies should be marked Secure.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func apiKeyFor(provider string) string {
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		return key
	}
	if provider == "anthropic" {
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		return key
	}
	return os.Getenv("OPENAI_API_KEY")
}

func defaultBaseURL(provider string) string {
	if provider == "anthropic" {
		return ""
	}
	return "https://api.groq.com/openai/v1"
}

func defaultModel(provider string) string {
	if provider == "anthropic" {
		return "claude-3-5-haiku-20241022"
	}
	return "llama3-70b-8192"
}

func chatMode(v string) string {
	if strings.EqualFold(v, ModeStream) {
		return ModeStream
	}
	return ModeBuffered
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
