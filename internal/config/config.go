// Package config loads process configuration from the environment, the way
// the teacher's internal/config/config.go does: a single Config struct
// populated by typed getEnv* helpers with sane defaults, loaded once at
// startup via Load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// StoreConfig holds the settings-store connection.
type StoreConfig struct {
	Driver string // "postgres" or "sqlite"
	DSN    string
}

// TelegramConfig holds the shared ingress bot credentials.
type TelegramConfig struct {
	BotToken string
}

// LLMConfig holds the signal-parser settings used for every request; the
// store has no row that overrides them.
type LLMConfig struct {
	AnthropicAPIKey string
	Model           string
	MaxTokens       int
	MaxRetries      int
	RequestTimeout  time.Duration
}

// BrokerConfig holds the broker-bridge base URL and polling cadence.
type BrokerConfig struct {
	BridgeBaseURL   string
	BridgeAPIKey    string
	DeployPollEvery time.Duration
	DeployMaxPolls  int
}

// DefaultsConfig holds default trading-policy values read from the
// environment. No component applies them: a tenant with no TenantSettings
// row gets an ErrNotFound from Store.GetSettings, not these values.
type DefaultsConfig struct {
	MaxRiskPercent          decimal.Decimal
	MaxLotSize              decimal.Decimal
	MaxOpenTrades           int
	LotReferenceBalance     decimal.Decimal
	LotReferenceSizeGold    decimal.Decimal
	LotReferenceSizeDefault decimal.Decimal
	GoldMarketThreshold     decimal.Decimal
	SymbolSuffix            string
}

// Config is the fully resolved process configuration.
type Config struct {
	Debug             bool
	Store             StoreConfig
	Telegram          TelegramConfig
	LLM               LLMConfig
	Broker            BrokerConfig
	Defaults          DefaultsConfig
	WatchdogInterval  time.Duration
	ReconcileInterval time.Duration
}

// Load reads Config from the environment. Only STORE_DSN and
// TELEGRAM_BOT_TOKEN are required; everything else has a default.
func Load() (*Config, error) {
	storeDSN := os.Getenv("STORE_DSN")
	if storeDSN == "" {
		return nil, fmt.Errorf("STORE_DSN is required")
	}
	botToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	if botToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	cfg := &Config{
		Debug: getEnvBool("DEBUG", false),
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", "postgres"),
			DSN:    storeDSN,
		},
		Telegram: TelegramConfig{
			BotToken: botToken,
		},
		LLM: LLMConfig{
			AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
			Model:           getEnv("LLM_MODEL", "claude-haiku-4-5-20251001"),
			MaxTokens:       getEnvInt("LLM_MAX_TOKENS", 1024),
			MaxRetries:      getEnvInt("LLM_MAX_RETRIES", 3),
			RequestTimeout:  getEnvDuration("LLM_REQUEST_TIMEOUT", 20*time.Second),
		},
		Broker: BrokerConfig{
			BridgeBaseURL:   getEnv("BRIDGE_BASE_URL", "https://bridge.internal"),
			BridgeAPIKey:    os.Getenv("BRIDGE_API_KEY"),
			DeployPollEvery: getEnvDuration("BRIDGE_DEPLOY_POLL_EVERY", 6*time.Second),
			DeployMaxPolls:  getEnvInt("BRIDGE_DEPLOY_MAX_POLLS", 10),
		},
		Defaults: DefaultsConfig{
			MaxRiskPercent:          getEnvDecimal("DEFAULT_MAX_RISK_PERCENT", decimal.NewFromFloat(2.0)),
			MaxLotSize:              getEnvDecimal("DEFAULT_MAX_LOT_SIZE", decimal.NewFromFloat(0.1)),
			MaxOpenTrades:           getEnvInt("DEFAULT_MAX_OPEN_TRADES", 5),
			LotReferenceBalance:     getEnvDecimal("DEFAULT_LOT_REFERENCE_BALANCE", decimal.NewFromFloat(500)),
			LotReferenceSizeGold:    getEnvDecimal("DEFAULT_LOT_REFERENCE_SIZE_GOLD", decimal.NewFromFloat(0.04)),
			LotReferenceSizeDefault: getEnvDecimal("DEFAULT_LOT_REFERENCE_SIZE_DEFAULT", decimal.NewFromFloat(0.01)),
			GoldMarketThreshold:     getEnvDecimal("DEFAULT_GOLD_MARKET_THRESHOLD", decimal.NewFromFloat(3.0)),
			SymbolSuffix:            getEnv("DEFAULT_SYMBOL_SUFFIX", ""),
		},
		WatchdogInterval:  getEnvDuration("WATCHDOG_INTERVAL", 30*time.Second),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 30*time.Second),
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getEnvDecimal(key string, def decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return def
	}
	return d
}
