package strategy

import (
	"fmt"
	"strings"

	"tradingAgent/internal/domain"
)

// BuildRationale summarises a signal from its trend flags, levels and failed
// checks. The output depends only on its inputs.
func BuildRationale(snap *domain.IndicatorSnapshot, trend domain.Trend, rr float64, checks domain.RuleChecks) string {
	var parts []string
	if trend.IsBullish {
		parts = append(parts, fmt.Sprintf("Bullish EMA crossover detected (EMA9 > EMA21). RSI at %.1f, within %.0f-%.0f range.", snap.RSI, rsiLower, rsiUpper))
		parts = append(parts, "Price above VWAP.")
	} else {
		var reasons []string
		if !trend.BullishEMA {
			reasons = append(reasons, "EMA9 below EMA21")
		}
		if !trend.RSIInRange {
			reasons = append(reasons, fmt.Sprintf("RSI %.1f outside %.0f-%.0f range", snap.RSI, rsiLower, rsiUpper))
		}
		if !trend.AboveVWAP {
			reasons = append(reasons, "price below VWAP")
		}
		parts = append(parts, fmt.Sprintf("Trend not confirmed: %s.", strings.Join(reasons, ", ")))
	}
	if !trend.VolumeAdequate {
		parts = append(parts, "Volume below 80% of average.")
	}
	parts = append(parts, fmt.Sprintf("R:R ratio = %.2f.", rr))
	if failed := checks.Failed(); len(failed) > 0 {
		parts = append(parts, fmt.Sprintf("Rule check(s) failed: %s.", strings.Join(failed, ", ")))
	}
	return strings.Join(parts, " ")
}
