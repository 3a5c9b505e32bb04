package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/simaogato/alphafolio-backend/internal/domain"
)

// Storage selects the ledger repository implementation
type Storage string

const (
	StorageMemory   Storage = "memory"
	StoragePostgres Storage = "postgres"
)

// Config holds the server configuration
type Config struct {
	Storage     Storage
	DatabaseURL string // Only used with StoragePostgres
	APIToken    string
	GRPCPort    string
	MetricsPort string
	LogLevel    string

	CoinGeckoBaseURL string
	CoinGeckoAPIKey  string
	YahooBaseURL     string

	ValuationConcurrency int
	ValuationCallTimeout time.Duration
	CostBasisPolicy      domain.CostBasisPolicy
	MarketHolidays       []string // YYYY-MM-DD, exchange local dates
}

// Load reads .env (if present) and the environment
func Load() (Config, error) {
	_ = godotenv.Load(".env") // load .env, if exists
	return load()
}

func load() (Config, error) {
	cfg := Config{
		Storage:          Storage(strings.ToLower(envDefault("STORAGE", string(StorageMemory)))),
		DatabaseURL:      databaseURL(),
		APIToken:         os.Getenv("API_TOKEN"),
		GRPCPort:         envDefault("GRPC_PORT", "8080"),
		MetricsPort:      envDefault("METRICS_PORT", "9090"),
		LogLevel:         envDefault("LOG_LEVEL", "info"),
		CoinGeckoBaseURL: os.Getenv("COINGECKO_BASE_URL"),
		CoinGeckoAPIKey:  os.Getenv("COINGECKO_API_KEY"),
		YahooBaseURL:     os.Getenv("YAHOO_BASE_URL"),
	}

	var validationErrs []string
	requireEnv("API_TOKEN", cfg.APIToken, &validationErrs)

	switch cfg.Storage {
	case StorageMemory:
	case StoragePostgres:
		requireEnv("DB_CONN_STR", cfg.DatabaseURL, &validationErrs)
	default:
		validationErrs = append(validationErrs, fmt.Sprintf("unknown STORAGE %q", cfg.Storage))
	}

	concurrency, err := strconv.Atoi(envDefault("VALUATION_CONCURRENCY", "8"))
	if err != nil || concurrency <= 0 {
		validationErrs = append(validationErrs, "VALUATION_CONCURRENCY must be a positive integer")
	}
	cfg.ValuationConcurrency = concurrency

	timeout, err := time.ParseDuration(envDefault("VALUATION_CALL_TIMEOUT", "5s"))
	if err != nil || timeout <= 0 {
		validationErrs = append(validationErrs, "VALUATION_CALL_TIMEOUT must be a positive duration")
	}
	cfg.ValuationCallTimeout = timeout

	policy, err := domain.ParseCostBasisPolicy(os.Getenv("COST_BASIS_POLICY"))
	if err != nil {
		validationErrs = append(validationErrs, "COST_BASIS_POLICY must be NET_CASH_FLOW or AVERAGE_COST")
	}
	cfg.CostBasisPolicy = policy

	for _, day := range strings.Split(os.Getenv("MARKET_HOLIDAYS"), ",") {
		if day = strings.TrimSpace(day); day != "" {
			cfg.MarketHolidays = append(cfg.MarketHolidays, day)
		}
	}

	if len(validationErrs) > 0 {
		return cfg, errors.New(strings.Join(validationErrs, "; "))
	}

	return cfg, nil
}

// databaseURL prefers DB_CONN_STR; otherwise it is built from individual vars (Docker friendly)
func databaseURL() string {
	if connStr := os.Getenv("DB_CONN_STR"); connStr != "" {
		return connStr
	}
	if os.Getenv("DB_HOST") == "" && os.Getenv("DB_NAME") == "" {
		return ""
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		envDefault("DB_HOST", "localhost"),
		envDefault("DB_PORT", "5432"),
		envDefault("DB_USER", "postgres"),
		envDefault("DB_PASSWORD", "postgres"),
		envDefault("DB_NAME", "alphafolio"),
	)
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func requireEnv(name, value string, errs *[]string) {
	if strings.TrimSpace(value) == "" {
		*errs = append(*errs, name+" is required")
	}
}
