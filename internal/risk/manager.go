package risk

import (
	"math"

	"tradingAgent/internal/domain"
	"tradingAgent/internal/utils"
)

// RiskConfig holds the fixed multipliers of the level and rule calculations.
type RiskConfig struct {
	ATRStopMultiplier float64 // stop distance in ATRs
	MinRewardRisk     float64 // target distance in risk units
	MinRiskReward     float64 // minimum R:R for a qualified signal
}

// DefaultRiskConfig returns the standard multipliers.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		ATRStopMultiplier: 1.5,
		MinRewardRisk:     1.5,
		MinRiskReward:     1.5,
	}
}

// Levels are the prices and risk figures of a long setup.
type Levels struct {
	Entry           float64
	StopLoss        float64
	Target          float64
	RiskAmount      float64 // per share
	RiskRewardRatio float64
}

// CheckInput carries everything the rule checks look at.
type CheckInput struct {
	Sector         string
	Levels         Levels
	QualifiedSoFar int
}

// RiskManager computes levels, rule checks and position sizes.
type RiskManager struct {
	config RiskConfig
}

// NewRiskManager creates a new risk manager instance
func NewRiskManager(config RiskConfig) *RiskManager {
	return &RiskManager{config: config}
}

// GetLevels derives stop and target for a long entry at the latest close.
// The stop is the tighter of an ATR stop and the configured percent stop; the
// target is the further of a reward:risk target and the configured percent
// target. Prices are rounded to 2 dp before risk and R:R are derived.
func (r *RiskManager) GetLevels(entry, atr float64, cfg domain.AgentConfig) Levels {
	stopPct := cfg.StopLossRule.Value / 100
	profitPct := cfg.ProfitBookingRule.Value / 100

	stop := math.Max(entry-r.config.ATRStopMultiplier*atr, entry*(1-stopPct))
	target := math.Max(entry+r.config.MinRewardRisk*(entry-stop), entry*(1+profitPct))

	lv := Levels{
		Entry:    utils.Round2(entry),
		StopLoss: utils.Round2(stop),
		Target:   utils.Round2(target),
	}
	lv.RiskAmount = utils.Round2(lv.Entry - lv.StopLoss)
	if lv.RiskAmount > 0 {
		lv.RiskRewardRatio = utils.Round2((lv.Target - lv.Entry) / lv.RiskAmount)
	}
	return lv
}

// Check runs the rule checks. Capital checks pass when capital is unknown.
func (r *RiskManager) Check(in CheckInput, cfg domain.AgentConfig) domain.RuleChecks {
	capital := cfg.CapitalAvailable
	checks := domain.RuleChecks{
		SectorAllowed:      cfg.SectorAllowed(in.Sector),
		RiskWithinLimit:    true,
		CapitalWithinLimit: true,
		TradeCountOK:       in.QualifiedSoFar < cfg.MaxTradesPerDay,
		RiskRewardOK:       in.Levels.RiskRewardRatio >= r.config.MinRiskReward,
	}
	if capital > 0 {
		checks.RiskWithinLimit = in.Levels.RiskAmount <= capital*cfg.RiskPerTrade/100
		checks.CapitalWithinLimit = in.Levels.Entry <= capital*cfg.MaxCapitalPerTrade/100
	}
	return checks
}

// GetPositionSize returns the whole-share quantity affordable within the
// per-trade capital share, never less than one.
func (r *RiskManager) GetPositionSize(capital, maxCapitalPct, entry float64) int {
	if entry <= 0 {
		return 1
	}
	qty := int(math.Floor(capital * maxCapitalPct / 100 / entry))
	if qty < 1 {
		return 1
	}
	return qty
}
