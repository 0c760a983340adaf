package strategy

import "tradingAgent/internal/domain"

const (
	rsiLower          = 40.0
	rsiUpper          = 70.0
	volumeAdequateMin = 0.8 // share of average volume
)

// DetectTrend classifies an indicator snapshot. Volume is scored but does
// not gate the bullish verdict.
func DetectTrend(s *domain.IndicatorSnapshot) domain.Trend {
	t := domain.Trend{
		BullishEMA:     s.EMA9 > s.EMA21,
		RSIInRange:     s.RSI >= rsiLower && s.RSI <= rsiUpper,
		AboveVWAP:      s.Close > s.VWAP,
		VolumeAdequate: s.Volume >= volumeAdequateMin*s.AvgVolume,
	}
	for _, ok := range []bool{t.BullishEMA, t.RSIInRange, t.AboveVWAP, t.VolumeAdequate} {
		if ok {
			t.Score++
		}
	}
	t.IsBullish = t.BullishEMA && t.RSIInRange && t.AboveVWAP
	return t
}
