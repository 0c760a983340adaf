package domain

// Rule is a typed percentage rule, e.g. {"target_percent", 3}.
type Rule struct {
	Type  string  `json:"type" yaml:"type"`
	Value float64 `json:"value" yaml:"value"`
}

const (
	RuleTargetPercent = "target_percent"
	RuleFixedPercent  = "fixed_percent"
)

// AgentConfig holds the trading rules the agent operates under.
type AgentConfig struct {
	AllowedSectors     []string      `json:"allowed_sectors"`
	MaxCapitalPerTrade float64       `json:"max_capital_per_trade"` // percent of capital
	MaxTradesPerDay    int           `json:"max_trades_per_day"`
	RiskPerTrade       float64       `json:"risk_per_trade"` // percent of capital
	ProfitBookingRule  Rule          `json:"profit_booking_rule"`
	StopLossRule       Rule          `json:"stop_loss_rule"`
	TradingMode        TradingMode   `json:"trading_mode"`
	ExecutionMode      ExecutionMode `json:"execution_mode"`
	CapitalAvailable   float64       `json:"capital_available"` // set from the broker only
	AllowPyramiding    bool          `json:"allow_pyramiding"`
}

// Clone returns a deep copy of the configuration.
func (c AgentConfig) Clone() AgentConfig {
	out := c
	out.AllowedSectors = append([]string(nil), c.AllowedSectors...)
	return out
}

// SectorAllowed reports whether the sector is in the allowed set.
func (c AgentConfig) SectorAllowed(sector string) bool {
	for _, s := range c.AllowedSectors {
		if s == sector {
			return true
		}
	}
	return false
}

// ConfigPatch carries the user-settable subset of AgentConfig.
// Nil fields are left untouched when merged.
type ConfigPatch struct {
	AllowedSectors     *[]string      `json:"allowed_sectors,omitempty"`
	MaxCapitalPerTrade *float64       `json:"max_capital_per_trade,omitempty"`
	MaxTradesPerDay    *int           `json:"max_trades_per_day,omitempty"`
	RiskPerTrade       *float64       `json:"risk_per_trade,omitempty"`
	ProfitBookingRule  *Rule          `json:"profit_booking_rule,omitempty"`
	StopLossRule       *Rule          `json:"stop_loss_rule,omitempty"`
	TradingMode        *TradingMode   `json:"trading_mode,omitempty"`
	ExecutionMode      *ExecutionMode `json:"execution_mode,omitempty"`
	AllowPyramiding    *bool          `json:"allow_pyramiding,omitempty"`
}
