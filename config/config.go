package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tradingAgent/internal/adapters/logger" // Import the logger package for LogLevel
	"tradingAgent/internal/domain"
)

// Market data and broker venues.
const (
	VenueCSV     = "csv"
	VenueBinance = "binance"
	VenueKite    = "kite"
)

// Trade store backends.
const (
	StoreJSON   = "json"
	StoreSQLite = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	// Venue
	Venue            string // csv, binance or kite
	BinanceAPIKey    string
	BinanceSecretKey string
	BinanceTestnet   bool
	KiteAPIKey       string
	KiteAccessToken  string
	CSVDir           string

	// Trade store
	StoreBackend string // json or sqlite
	TradesFile   string
	DBPath       string

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat string          // std, json or console

	// Scheduler
	ScanInterval time.Duration
	AutoStart    bool
	CallTimeout  time.Duration
	InactivePoll time.Duration
	ErrorBackoff time.Duration

	// Market session
	MarketTimezone string
	MarketOpen     string // HH:MM
	MarketClose    string // HH:MM

	// Scanning
	HistoryPeriod   string
	HistoryInterval string
	UniverseFile    string // empty uses the built-in universe

	// Events and tracing
	KafkaBrokers   []string
	KafkaTopic     string
	TracingEnabled bool
	TracingPretty  bool

	// Rules holds initial trading rule overrides. They are validated when
	// applied to the config store.
	Rules domain.ConfigPatch
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Venue
	cfg.Venue = strings.ToLower(getEnv("AGENT_VENUE", VenueCSV))
	cfg.CSVDir = getEnv("AGENT_CSV_DIR", "./data/klines")
	cfg.BinanceAPIKey = getEnv("BINANCE_API_KEY", "")
	cfg.BinanceSecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.BinanceTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety
	cfg.KiteAPIKey = getEnv("KITE_API_KEY", "")
	cfg.KiteAccessToken = getEnv("KITE_ACCESS_TOKEN", "")

	switch cfg.Venue {
	case VenueCSV:
		if cfg.CSVDir == "" {
			errs = append(errs, "AGENT_CSV_DIR must be set for the csv venue")
		}
	case VenueBinance:
		if cfg.BinanceAPIKey == "" {
			errs = append(errs, "BINANCE_API_KEY must be set")
		}
		if cfg.BinanceSecretKey == "" {
			errs = append(errs, "BINANCE_API_SECRET must be set")
		}
	case VenueKite:
		if cfg.KiteAPIKey == "" {
			errs = append(errs, "KITE_API_KEY must be set")
		}
		if cfg.KiteAccessToken == "" {
			errs = append(errs, "KITE_ACCESS_TOKEN must be set")
		}
	default:
		errs = append(errs, fmt.Sprintf("AGENT_VENUE must be one of csv, binance, kite (got %q)", cfg.Venue))
	}

	// Trade store
	cfg.StoreBackend = strings.ToLower(getEnv("AGENT_STORE", StoreJSON))
	cfg.TradesFile = getEnv("AGENT_TRADES_FILE", "./data/trades.json")
	cfg.DBPath = getEnv("DB_PATH", "./data/trades.db")
	switch cfg.StoreBackend {
	case StoreJSON:
		if cfg.TradesFile == "" {
			errs = append(errs, "AGENT_TRADES_FILE must be set")
		}
	case StoreSQLite:
		if cfg.DBPath == "" {
			errs = append(errs, "DB_PATH must be set")
		}
	default:
		errs = append(errs, fmt.Sprintf("AGENT_STORE must be json or sqlite (got %q)", cfg.StoreBackend))
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "std"))
	if cfg.LogFormat != "std" && cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT must be std, json or console (got %q)", cfg.LogFormat))
	}

	// Scheduler
	cfg.ScanInterval, err = getEnvAsSecondsRequired("AGENT_SCAN_INTERVAL_SECONDS", 300)
	if err != nil {
		errs = append(errs, err.Error())
	} else if cfg.ScanInterval < time.Minute {
		errs = append(errs, "AGENT_SCAN_INTERVAL_SECONDS must be at least 60")
	}
	cfg.AutoStart = getEnvAsBool("AGENT_AUTO_START", true)
	for _, d := range []struct {
		key  string
		def  int
		dest *time.Duration
	}{
		{"AGENT_CALL_TIMEOUT_SECONDS", 10, &cfg.CallTimeout},
		{"AGENT_INACTIVE_POLL_SECONDS", 10, &cfg.InactivePoll},
		{"AGENT_ERROR_BACKOFF_SECONDS", 30, &cfg.ErrorBackoff},
	} {
		v, err := getEnvAsSecondsRequired(d.key, d.def)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if v <= 0 {
			errs = append(errs, d.key+" must be positive")
			continue
		}
		*d.dest = v
	}

	// Market session
	cfg.MarketTimezone = getEnv("AGENT_MARKET_TZ", "Asia/Kolkata")
	if _, err := time.LoadLocation(cfg.MarketTimezone); err != nil {
		errs = append(errs, fmt.Sprintf("invalid AGENT_MARKET_TZ: %v", err))
	}
	cfg.MarketOpen = getEnv("AGENT_MARKET_OPEN", "09:15")
	cfg.MarketClose = getEnv("AGENT_MARKET_CLOSE", "15:30")
	open, openErr := time.Parse("15:04", cfg.MarketOpen)
	if openErr != nil {
		errs = append(errs, fmt.Sprintf("invalid AGENT_MARKET_OPEN %q, want HH:MM", cfg.MarketOpen))
	}
	closing, closeErr := time.Parse("15:04", cfg.MarketClose)
	if closeErr != nil {
		errs = append(errs, fmt.Sprintf("invalid AGENT_MARKET_CLOSE %q, want HH:MM", cfg.MarketClose))
	}
	if openErr == nil && closeErr == nil && !open.Before(closing) {
		errs = append(errs, "AGENT_MARKET_OPEN must be before AGENT_MARKET_CLOSE")
	}

	// Scanning
	cfg.HistoryPeriod = getEnv("AGENT_HISTORY_PERIOD", "3mo")
	cfg.HistoryInterval = getEnv("AGENT_HISTORY_INTERVAL", "1d")
	cfg.UniverseFile = getEnv("AGENT_UNIVERSE_FILE", "")

	// Events and tracing
	cfg.KafkaBrokers = getEnvAsList("KAFKA_BROKERS")
	cfg.KafkaTopic = getEnv("KAFKA_TOPIC", "trading-agent-events")
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		errs = append(errs, "KAFKA_TOPIC must be set when KAFKA_BROKERS is")
	}
	cfg.TracingEnabled = getEnvAsBool("TRACING_ENABLED", false)
	cfg.TracingPretty = getEnvAsBool("TRACING_PRETTY", false)

	// Initial trading rules
	cfg.Rules, err = loadRules()
	if err != nil {
		errs = append(errs, err.Error())
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// loadRules reads AGENT_* rule overrides. Only parse errors are reported
// here; range checks belong to the config store.
func loadRules() (domain.ConfigPatch, error) {
	var p domain.ConfigPatch
	var errs []string

	if v := os.Getenv("AGENT_TRADING_MODE"); v != "" {
		mode := domain.TradingMode(strings.ToUpper(v))
		if !mode.Valid() {
			errs = append(errs, fmt.Sprintf("AGENT_TRADING_MODE must be PAPER or LIVE (got %q)", v))
		}
		p.TradingMode = &mode
	}
	if v := os.Getenv("AGENT_EXECUTION_MODE"); v != "" {
		mode := domain.ExecutionMode(strings.ToUpper(v))
		if !mode.Valid() {
			errs = append(errs, fmt.Sprintf("AGENT_EXECUTION_MODE must be MANUAL_CONFIRM or AUTO_RULED (got %q)", v))
		}
		p.ExecutionMode = &mode
	}
	if sectors := getEnvAsList("AGENT_ALLOWED_SECTORS"); sectors != nil {
		p.AllowedSectors = &sectors
	}
	if os.Getenv("AGENT_MAX_TRADES_PER_DAY") != "" {
		n, err := getEnvAsIntRequired("AGENT_MAX_TRADES_PER_DAY", 0)
		if err != nil {
			errs = append(errs, err.Error())
		} else {
			p.MaxTradesPerDay = &n
		}
	}
	floats := []struct {
		key  string
		dest **float64
	}{
		{"AGENT_MAX_CAPITAL_PER_TRADE", &p.MaxCapitalPerTrade},
		{"AGENT_RISK_PER_TRADE", &p.RiskPerTrade},
	}
	for _, f := range floats {
		if os.Getenv(f.key) == "" {
			continue
		}
		v, err := getEnvAsFloatRequired(f.key, 0)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		*f.dest = &v
	}
	if os.Getenv("AGENT_TARGET_PERCENT") != "" {
		v, err := getEnvAsFloatRequired("AGENT_TARGET_PERCENT", 0)
		if err != nil {
			errs = append(errs, err.Error())
		} else {
			p.ProfitBookingRule = &domain.Rule{Type: domain.RuleTargetPercent, Value: v}
		}
	}
	if os.Getenv("AGENT_STOP_LOSS_PERCENT") != "" {
		v, err := getEnvAsFloatRequired("AGENT_STOP_LOSS_PERCENT", 0)
		if err != nil {
			errs = append(errs, err.Error())
		} else {
			p.StopLossRule = &domain.Rule{Type: domain.RuleFixedPercent, Value: v}
		}
	}
	if v := os.Getenv("AGENT_ALLOW_PYRAMIDING"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid boolean value '%s' for key AGENT_ALLOW_PYRAMIDING", v))
		} else {
			p.AllowPyramiding = &b
		}
	}

	if len(errs) > 0 {
		return domain.ConfigPatch{}, fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return p, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsSecondsRequired(key string, defaultSeconds int) (time.Duration, error) {
	n, err := getEnvAsIntRequired(key, defaultSeconds)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping blanks. Unset gives nil.
func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
