package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/FTHTrading/boutique-sub000/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REFDATA_PATH", "")
	t.Setenv("DOCAI_URL", "")
	t.Setenv("JWT_SECRET", "")

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "tradegate.db", cfg.DatabaseURL)
	assert.Equal(t, "refdata.yaml", cfg.RefDataPath)
	assert.Empty(t, cfg.JWTSecret)
	assert.Empty(t, cfg.LedgerAlphaKey, "ledgers default to dry-run")
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_URL", "postgres://production:5432/tradegate")
	t.Setenv("DOCAI_URL", "http://remote-llm:8080/v1/chat/completions")
	t.Setenv("DOCAI_MODEL", "review-large")
	t.Setenv("LEDGER_ALPHA_ENDPOINT", "https://alpha.example.com")
	t.Setenv("LEDGER_ALPHA_SIGNING_KEY", "s3cret")
	t.Setenv("JWT_SECRET", "hmac-key")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres://production:5432/tradegate", cfg.DatabaseURL)
	assert.Equal(t, "http://remote-llm:8080/v1/chat/completions", cfg.DocAIURL)
	assert.Equal(t, "review-large", cfg.DocAIModel)
	assert.Equal(t, "https://alpha.example.com", cfg.LedgerAlphaEndpoint)
	assert.Equal(t, "s3cret", cfg.LedgerAlphaKey)
	assert.Equal(t, "hmac-key", cfg.JWTSecret)
}
