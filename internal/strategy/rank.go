package strategy

import (
	"sort"

	"tradingAgent/internal/domain"
)

// Rank orders signals in place: QUALIFIED before REJECTED, then by R:R,
// trend score and volume, all descending. Equal signals keep scan order.
func Rank(signals []domain.Signal) {
	sort.SliceStable(signals, func(i, j int) bool {
		a, b := signals[i], signals[j]
		aq, bq := a.Status == domain.SignalQualified, b.Status == domain.SignalQualified
		if aq != bq {
			return aq
		}
		if a.RiskRewardRatio != b.RiskRewardRatio {
			return a.RiskRewardRatio > b.RiskRewardRatio
		}
		if a.Trend.Score != b.Trend.Score {
			return a.Trend.Score > b.Trend.Score
		}
		return a.Indicators.Volume > b.Indicators.Volume
	})
}
