package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "openai", cfg.AIProvider)
	assert.Equal(t, 50, cfg.MinScore)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 30, cfg.TimeoutMinutes)
	assert.Equal(t, []string{"name", "phone", "interest"}, cfg.RequiredFields)
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AI_PROVIDER", "Bedrock")
	t.Setenv("MIN_SCORE", "70")
	t.Setenv("REQUIRED_FIELDS", "name, phone , company")
	t.Setenv("PROVIDER_TIMEOUT", "5s")

	cfg := Load()

	assert.Equal(t, "bedrock", cfg.AIProvider)
	assert.Equal(t, 70, cfg.MinScore)
	assert.Equal(t, []string{"name", "phone", "company"}, cfg.RequiredFields)
	assert.Equal(t, 5*time.Second, cfg.ProviderTimeout)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("MAX_ATTEMPTS", "many")
	t.Setenv("REAPER_INTERVAL", "soon")
	t.Setenv("REQUIRED_FIELDS", " , ,")

	cfg := Load()

	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, time.Minute, cfg.ReaperInterval)
	assert.Equal(t, []string{"name", "phone", "interest"}, cfg.RequiredFields)
}
