package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingAgent/internal/adapters/logger"
	"tradingAgent/internal/domain"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, VenueCSV, cfg.Venue)
	assert.Equal(t, StoreJSON, cfg.StoreBackend)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "std", cfg.LogFormat)
	assert.Equal(t, 5*time.Minute, cfg.ScanInterval)
	assert.Equal(t, 10*time.Second, cfg.CallTimeout)
	assert.Equal(t, 30*time.Second, cfg.ErrorBackoff)
	assert.Equal(t, "Asia/Kolkata", cfg.MarketTimezone)
	assert.Equal(t, "09:15", cfg.MarketOpen)
	assert.Equal(t, "15:30", cfg.MarketClose)
	assert.Equal(t, "3mo", cfg.HistoryPeriod)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, domain.ConfigPatch{}, cfg.Rules)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("AGENT_VENUE", "KITE")
	t.Setenv("KITE_API_KEY", "key")
	t.Setenv("KITE_ACCESS_TOKEN", "token")
	t.Setenv("AGENT_STORE", "sqlite")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("AGENT_SCAN_INTERVAL_SECONDS", "120")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("AGENT_TRADING_MODE", "live")
	t.Setenv("AGENT_EXECUTION_MODE", "AUTO_RULED")
	t.Setenv("AGENT_MAX_TRADES_PER_DAY", "5")
	t.Setenv("AGENT_RISK_PER_TRADE", "1.5")
	t.Setenv("AGENT_TARGET_PERCENT", "4")
	t.Setenv("AGENT_STOP_LOSS_PERCENT", "2")
	t.Setenv("AGENT_ALLOWED_SECTORS", "IT,BANKING")
	t.Setenv("AGENT_ALLOW_PYRAMIDING", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, VenueKite, cfg.Venue)
	assert.Equal(t, StoreSQLite, cfg.StoreBackend)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 2*time.Minute, cfg.ScanInterval)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)

	r := cfg.Rules
	require.NotNil(t, r.TradingMode)
	assert.Equal(t, domain.ModeLive, *r.TradingMode)
	require.NotNil(t, r.ExecutionMode)
	assert.Equal(t, domain.ExecAutoRuled, *r.ExecutionMode)
	require.NotNil(t, r.MaxTradesPerDay)
	assert.Equal(t, 5, *r.MaxTradesPerDay)
	require.NotNil(t, r.RiskPerTrade)
	assert.Equal(t, 1.5, *r.RiskPerTrade)
	assert.Nil(t, r.MaxCapitalPerTrade)
	assert.Equal(t, &domain.Rule{Type: domain.RuleTargetPercent, Value: 4}, r.ProfitBookingRule)
	assert.Equal(t, &domain.Rule{Type: domain.RuleFixedPercent, Value: 2}, r.StopLossRule)
	require.NotNil(t, r.AllowedSectors)
	assert.Equal(t, []string{"IT", "BANKING"}, *r.AllowedSectors)
	require.NotNil(t, r.AllowPyramiding)
	assert.False(t, *r.AllowPyramiding)
}

func TestLoadConfigCollectsErrors(t *testing.T) {
	t.Setenv("AGENT_VENUE", "binance")
	t.Setenv("AGENT_STORE", "postgres")
	t.Setenv("AGENT_SCAN_INTERVAL_SECONDS", "30")
	t.Setenv("AGENT_MARKET_OPEN", "16:00")
	t.Setenv("AGENT_TRADING_MODE", "SIMULATED")
	t.Setenv("AGENT_RISK_PER_TRADE", "lots")

	_, err := LoadConfig()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"BINANCE_API_KEY must be set",
		"BINANCE_API_SECRET must be set",
		"AGENT_STORE must be json or sqlite",
		"AGENT_SCAN_INTERVAL_SECONDS must be at least 60",
		"AGENT_MARKET_OPEN must be before AGENT_MARKET_CLOSE",
		"AGENT_TRADING_MODE must be PAPER or LIVE",
		"AGENT_RISK_PER_TRADE",
	} {
		assert.Contains(t, msg, want)
	}
}
