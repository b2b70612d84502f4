package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func clearLLMEnv(t *testing.T) {
	for _, k := range []string{"LLM_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "LLM_PROVIDER", "LLM_MODEL", "LLM_BASE_URL", "CHAT_DEFAULT_MODE"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("UID_COOKIE_MAX_AGE", "")

	cfg := Load()

	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.Equal(t, "llama3-70b-8192", cfg.LLMModel)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.LLMBaseURL)
	assert.Empty(t, cfg.LLMAPIKey)
	assert.Equal(t, ModeBuffered, cfg.ChatMode)
	assert.Equal(t, 30*24*time.Hour, cfg.UIDCookieMaxAge)
}

func TestLoadAPIKeyPrecedence(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("OPENAI_API_KEY", "openai-key")
	assert.Equal(t, "openai-key", Load().LLMAPIKey)

	t.Setenv("GROQ_API_KEY", "groq-key")
	assert.Equal(t, "groq-key", Load().LLMAPIKey)

	t.Setenv("LLM_API_KEY", "explicit")
	assert.Equal(t, "explicit", Load().LLMAPIKey)
}

func TestLoadAnthropicProvider(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("LLM_PROVIDER", "Anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "a-key")
	t.Setenv("CHAT_DEFAULT_MODE", "STREAM")

	cfg := Load()

	assert.Equal(t, "anthropic", cfg.LLMProvider)
	assert.Equal(t, "a-key", cfg.LLMAPIKey)
	assert.Empty(t, cfg.LLMBaseURL)
	assert.Equal(t, ModeStream, cfg.ChatMode)
}

func TestGetListEnv(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, getListEnv("CORS_ALLOWED_ORIGINS", nil))

	t.Setenv("CORS_ALLOWED_ORIGINS", " , ")
	assert.Equal(t, []string{"x"}, getListEnv("CORS_ALLOWED_ORIGINS", []string{"x"}))
}

func TestValidateRequiresJWTSecretInProduction(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")

	cfg := Load()
	assert.Empty(t, cfg.JWTSecret)
	assert.Empty(t, cfg.CORSAllowedOrigins)
	assert.ErrorIs(t, cfg.Validate(), ErrMissingJWTSecret)

	t.Setenv("JWT_SECRET", devJWTSecret)
	assert.ErrorIs(t, Load().Validate(), ErrMissingJWTSecret)

	t.Setenv("JWT_SECRET", "a-real-secret")
	assert.NoError(t, Load().Validate())
}

func TestValidateAllowsDevelopmentDefaults(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")

	cfg := Load()
	assert.Equal(t, devJWTSecret, cfg.JWTSecret)
	assert.Equal(t, []string{"https://*", "http://*"}, cfg.CORSAllowedOrigins)
	assert.NoError(t, cfg.Validate())
}
