package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresStoreDSNAndBotToken(t *testing.T) {
	t.Setenv("STORE_DSN", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("STORE_DSN", "postgres://localhost/test")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.LLM.Model)
	assert.Equal(t, 5, cfg.Defaults.MaxOpenTrades)
	assert.Equal(t, "0.1", cfg.Defaults.MaxLotSize.String())
	assert.False(t, cfg.Debug)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("STORE_DSN", "postgres://localhost/test")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("DEBUG", "true")
	t.Setenv("DEFAULT_MAX_OPEN_TRADES", "7")
	t.Setenv("DEFAULT_MAX_LOT_SIZE", "0.25")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, 7, cfg.Defaults.MaxOpenTrades)
	assert.Equal(t, "0.25", cfg.Defaults.MaxLotSize.String())
}
