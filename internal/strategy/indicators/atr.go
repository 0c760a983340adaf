package indicators

import (
	"context"
	"math"

	"tradingAgent/internal/domain"
)

// ATRFallbackPercent is the share of the latest close reported when the
// series is too short for a full ATR window.
const ATRFallbackPercent = 0.015

// ATRConfig holds configuration for the Average True Range indicator
type ATRConfig struct {
	IndicatorConfig
}

// ATR is the rolling mean of true range over the last Period klines.
type ATR struct {
	BaseIndicator
}

// NewATR creates a new Average True Range indicator instance
func NewATR(config ATRConfig) *ATR {
	return &ATR{BaseIndicator: BaseIndicator{Config: config.IndicatorConfig}}
}

func (a *ATR) Name() string {
	return "ATR"
}

// Calculate returns the ATR at the latest kline. With fewer true ranges than
// the period it falls back to ATRFallbackPercent of the latest close.
func (a *ATR) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	if len(klines) == 0 {
		return 0, a.checkLength(a.Name(), klines)
	}
	trueRanges := TrueRanges(klines)
	if len(trueRanges) < a.Config.Period {
		return klines[len(klines)-1].Close * ATRFallbackPercent, nil
	}
	return rollingMean(trueRanges, a.Config.Period), nil
}

// TrueRanges returns the true range of every kline. The first kline has no
// previous close, so its true range is high-low.
func TrueRanges(klines []*domain.Kline) []float64 {
	trs := make([]float64, len(klines))
	for i, k := range klines {
		tr := k.High - k.Low
		if i > 0 {
			prevClose := klines[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(k.High-prevClose), math.Abs(k.Low-prevClose)))
		}
		trs[i] = tr
	}
	return trs
}
