package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds environment-driven settings for the market data core.
type Config struct {
	Port     string
	LogLevel string

	// Database
	DBPath string

	// Localization
	Language string // "en" or "zh"

	// Initial selection when nothing is stored
	DefaultExchange string
	DefaultSymbol   string
	DefaultInterval string

	// Streaming
	ReconnectDelay time.Duration
	UseMockFeed    bool

	// API
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int

	// Per-exchange overrides from EXCHANGES_FILE
	ExchangesFile string
	Exchanges     map[string]ExchangeOverride
}

// ExchangeOverride replaces adapter defaults. Zero fields keep the default.
type ExchangeOverride struct {
	RESTURL      string        `yaml:"rest_url"`
	WSURL        string        `yaml:"ws_url"`
	RatePerSec   float64       `yaml:"rate_per_sec"`
	Burst        int           `yaml:"burst"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ExchangesFile is the top-level YAML structure.
type ExchangesFile struct {
	Exchanges map[string]ExchangeOverride `yaml:"exchanges"`
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		DBPath:          getEnv("DB_PATH", "./data/market.db"),
		Language:        getEnv("LANGUAGE", "en"),
		DefaultExchange: strings.ToLower(getEnv("DEFAULT_EXCHANGE", "binance")),
		DefaultSymbol:   strings.ToLower(getEnv("DEFAULT_SYMBOL", "btc-usdt")),
		DefaultInterval: getEnv("DEFAULT_INTERVAL", "1m"),
		ReconnectDelay:  time.Duration(getEnvInt("RECONNECT_DELAY_MS", 5000)) * time.Millisecond,
		UseMockFeed:     getEnv("USE_MOCK_FEED", "false") == "true",
		RequestTimeout:  time.Duration(getEnvInt("REQUEST_TIMEOUT_MS", 15000)) * time.Millisecond,
		RateLimitRPS:    getEnvFloat("API_RATE_LIMIT_RPS", 20),
		RateLimitBurst:  getEnvInt("API_RATE_LIMIT_BURST", 40),
		ExchangesFile:   getEnv("EXCHANGES_FILE", ""),
	}
	if cfg.ReconnectDelay <= 0 {
		return nil, fmt.Errorf("RECONNECT_DELAY_MS must be positive")
	}

	if cfg.ExchangesFile != "" {
		ex, err := LoadExchanges(cfg.ExchangesFile)
		if err != nil {
			return nil, err
		}
		cfg.Exchanges = ex
	}
	return cfg, nil
}

// LoadExchanges reads per-exchange overrides from a YAML file.
func LoadExchanges(path string) (map[string]ExchangeOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read exchanges file: %w", err)
	}
	var file ExchangesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse exchanges file %s: %w", path, err)
	}
	out := make(map[string]ExchangeOverride, len(file.Exchanges))
	for name, o := range file.Exchanges {
		out[strings.ToLower(name)] = o
	}
	return out, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
