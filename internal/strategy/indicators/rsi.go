package indicators

import (
	"context"
	"fmt"

	"tradingAgent/internal/domain"
)

// NeutralRSI is reported when the average loss over the window is zero.
const NeutralRSI = 50.0

// RSIConfig holds configuration for RSI indicator
type RSIConfig struct {
	IndicatorConfig
	Overbought float64
	Oversold   float64
}

// RSI implements the Relative Strength Index over simple rolling means
// of gains and losses.
type RSI struct {
	BaseIndicator
	config RSIConfig
}

// NewRSI creates a new RSI indicator instance
func NewRSI(config RSIConfig) *RSI {
	return &RSI{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the name of the indicator
func (r *RSI) Name() string {
	return "RSI"
}

// RequiredDataPoints needs one extra kline for the first price change.
func (r *RSI) RequiredDataPoints() int {
	return r.Config.Period + 1
}

// Calculate computes the RSI value at the latest kline.
func (r *RSI) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	period := r.Config.Period
	if len(klines) < period+1 {
		return 0, fmt.Errorf("%w: need %d klines for RSI, got %d", ErrInsufficientData, period+1, len(klines))
	}

	gains := make([]float64, 0, len(klines)-1)
	losses := make([]float64, 0, len(klines)-1)
	for i := 1; i < len(klines); i++ {
		change := klines[i].Close - klines[i-1].Close
		if change > 0 {
			gains = append(gains, change)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -change)
		}
	}

	avgGain := rollingMean(gains, period)
	avgLoss := rollingMean(losses, period)
	if avgLoss == 0 {
		return NeutralRSI, nil
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), nil
}

// IsOverbought checks if the RSI value indicates overbought conditions
func (r *RSI) IsOverbought(value float64) bool {
	return value >= r.config.Overbought
}

// IsOversold checks if the RSI value indicates oversold conditions
func (r *RSI) IsOversold(value float64) bool {
	return value <= r.config.Oversold
}
