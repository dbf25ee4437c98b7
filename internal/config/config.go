// Package config provides application configuration loaded from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Default upstream endpoints. Overridable via env so tests and self-hosted
// mirrors can point elsewhere; the egress allowlist is derived from whatever
// is configured here.
const (
	DefaultCoinGeckoBaseURL  = "https://api.coingecko.com"
	DefaultEtherscanBaseURL  = "https://api.etherscan.io"
	DefaultBlockchairBaseURL = "https://api.blockchair.com"
	DefaultFMPBaseURL        = "https://financialmodelingprep.com"
	DefaultFinnhubBaseURL    = "https://finnhub.io"
	DefaultGeminiBaseURL     = "https://generativelanguage.googleapis.com"
)

// Config holds application configuration. It is built once at startup and
// treated as read-only afterwards; adapters receive it by reference and expose
// IsConfigured() instead of consulting the environment themselves.
type Config struct {
	AppURL   string
	Env      string // "development" or "production"
	Port     int
	LogLevel string

	// Upstream base URLs
	CoinGeckoBaseURL  string
	EtherscanBaseURL  string
	BlockchairBaseURL string
	FMPBaseURL        string
	FinnhubBaseURL    string
	GeminiBaseURL     string

	// Upstream credentials (all optional; absence disables the adapter)
	CoinGeckoAPIKey  string
	EtherscanAPIKey  string
	BlockchairAPIKey string
	FMPAPIKey        string
	FinnhubAPIKey    string
	GeminiAPIKey     string

	// Watchlist store
	DatabasePath string
	APIToken     string // bearer token guarding watchlist routes

	// Mock blockchain provider (development without credentials)
	UseMockChain bool

	// Rate limiting
	ClientRequestsPerMinute int // per-IP inbound
	LLMRequestsPerMinute    int // outbound to the LLM upstream

	// R2 backups (optional)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2Bucket          string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		AppURL:   getEnv("APP_URL", "http://localhost:3001"),
		Env:      getEnv("APP_ENV", "development"),
		Port:     getEnvAsInt("PORT", 3001),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CoinGeckoBaseURL:  getEnv("COINGECKO_BASE_URL", DefaultCoinGeckoBaseURL),
		EtherscanBaseURL:  getEnv("ETHERSCAN_BASE_URL", DefaultEtherscanBaseURL),
		BlockchairBaseURL: getEnv("BLOCKCHAIR_BASE_URL", DefaultBlockchairBaseURL),
		FMPBaseURL:        getEnv("FMP_BASE_URL", DefaultFMPBaseURL),
		FinnhubBaseURL:    getEnv("FINNHUB_BASE_URL", DefaultFinnhubBaseURL),
		GeminiBaseURL:     getEnv("GEMINI_BASE_URL", DefaultGeminiBaseURL),

		CoinGeckoAPIKey:  getEnv("COINGECKO_API_KEY", ""),
		EtherscanAPIKey:  getEnv("ETHERSCAN_API_KEY", ""),
		BlockchairAPIKey: getEnv("BLOCKCHAIR_API_KEY", ""),
		FMPAPIKey:        getEnv("FMP_API_KEY", ""),
		FinnhubAPIKey:    getEnv("FINNHUB_API_KEY", ""),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),

		DatabasePath: getEnv("DATABASE_PATH", "./data/watchlist.db"),
		APIToken:     getEnv("API_TOKEN", ""),

		UseMockChain: getEnvAsBool("USE_MOCK_CHAIN", false),

		ClientRequestsPerMinute: getEnvAsInt("CLIENT_REQUESTS_PER_MINUTE", 100),
		LLMRequestsPerMinute:    getEnvAsInt("LLM_REQUESTS_PER_MINUTE", 12),

		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2Bucket:          getEnv("R2_BUCKET", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Env != "development" && c.Env != "production" {
		return fmt.Errorf("APP_ENV must be development or production, got %q", c.Env)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	return nil
}

// IsProduction reports whether the app runs with production hardening
// (HTTPS-only egress, sanitized error messages).
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Credential accessors. Adapters call these instead of re-reading env vars.

func (c *Config) HasCoinGecko() bool  { return c.CoinGeckoAPIKey != "" }
func (c *Config) HasEtherscan() bool  { return c.EtherscanAPIKey != "" }
func (c *Config) HasBlockchair() bool { return c.BlockchairAPIKey != "" }
func (c *Config) HasFMP() bool        { return c.FMPAPIKey != "" }
func (c *Config) HasFinnhub() bool    { return c.FinnhubAPIKey != "" }
func (c *Config) HasGemini() bool     { return c.GeminiAPIKey != "" }

// HasR2 reports whether all R2 backup credentials are present.
func (c *Config) HasR2() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" && c.R2Bucket != ""
}

// AllowedHosts returns the exact hostnames outbound HTTP may reach,
// derived from the configured upstream base URLs.
func (c *Config) AllowedHosts() []string {
	bases := []string{
		c.CoinGeckoBaseURL,
		c.EtherscanBaseURL,
		c.BlockchairBaseURL,
		c.FMPBaseURL,
		c.FinnhubBaseURL,
		c.GeminiBaseURL,
	}

	hosts := make([]string, 0, len(bases))
	seen := make(map[string]bool, len(bases))
	for _, base := range bases {
		u, err := url.Parse(base)
		if err != nil || u.Host == "" {
			continue
		}
		if !seen[u.Host] {
			seen[u.Host] = true
			hosts = append(hosts, u.Host)
		}
	}
	return hosts
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
