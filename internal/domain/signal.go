package domain

import "time"

// IndicatorSnapshot holds indicator values at the latest bar of a series.
type IndicatorSnapshot struct {
	Close     float64 `json:"close"`
	EMA9      float64 `json:"ema9"`
	EMA21     float64 `json:"ema21"`
	RSI       float64 `json:"rsi"`
	ATR       float64 `json:"atr"`
	VWAP      float64 `json:"vwap"`
	Volume    float64 `json:"volume"`
	AvgVolume float64 `json:"avg_volume"`
}

// Trend is the classification of an indicator snapshot.
type Trend struct {
	Score          int  `json:"score"`
	IsBullish      bool `json:"is_bullish"`
	BullishEMA     bool `json:"bullish_ema"`
	RSIInRange     bool `json:"rsi_ok"`
	AboveVWAP      bool `json:"above_vwap"`
	VolumeAdequate bool `json:"volume_ok"`
}

// RuleChecks are the named rule results for a signal.
type RuleChecks struct {
	SectorAllowed      bool `json:"sector_allowed"`
	RiskWithinLimit    bool `json:"risk_within_limit"`
	CapitalWithinLimit bool `json:"capital_within_limit"`
	TradeCountOK       bool `json:"trade_count_ok"`
	RiskRewardOK       bool `json:"risk_reward_ok"`
}

// AllPass reports whether every rule check passed.
func (r RuleChecks) AllPass() bool {
	return len(r.Failed()) == 0
}

// Failed returns the names of failed checks in their fixed order.
func (r RuleChecks) Failed() []string {
	var failed []string
	if !r.SectorAllowed {
		failed = append(failed, "sector_allowed")
	}
	if !r.RiskWithinLimit {
		failed = append(failed, "risk_within_limit")
	}
	if !r.CapitalWithinLimit {
		failed = append(failed, "capital_within_limit")
	}
	if !r.TradeCountOK {
		failed = append(failed, "trade_count_ok")
	}
	if !r.RiskRewardOK {
		failed = append(failed, "risk_reward_ok")
	}
	return failed
}

// Signal is a classified trade candidate. It is not modified after creation.
type Signal struct {
	Symbol               string               `json:"symbol"` // display form, e.g. "RELIANCE"
	Ticker               string               `json:"ticker"` // provider form, e.g. "RELIANCE.NS"
	Sector               string               `json:"sector"`
	Status               SignalStatus         `json:"status"`
	EntryPrice           float64              `json:"entry_price"`
	StopLoss             float64              `json:"stop_loss"`
	TargetPrice          float64              `json:"target_price"`
	RiskAmount           float64              `json:"risk_amount"`
	RiskRewardRatio      float64              `json:"risk_reward_ratio"`
	Indicators           IndicatorSnapshot    `json:"indicators"`
	Trend                Trend                `json:"trend"`
	RuleChecks           RuleChecks           `json:"rule_checks"`
	ExecutionInstruction ExecutionInstruction `json:"execution_instruction"`
	Rationale            string               `json:"rationale"`
}

// LoggedSignal is a Signal as recorded in the signal log.
type LoggedSignal struct {
	ID         string     `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	UserAction UserAction `json:"user_action"`
	Signal
}

// ScanResult is the outcome of one scan over the universe.
type ScanResult struct {
	Signals []Signal          // ranked
	Skipped map[string]string // ticker -> reason
}

// Qualified returns the number of qualified signals.
func (r *ScanResult) Qualified() int {
	n := 0
	for _, s := range r.Signals {
		if s.Status == SignalQualified {
			n++
		}
	}
	return n
}
