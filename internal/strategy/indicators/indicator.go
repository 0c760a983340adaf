package indicators

import (
	"context"
	"errors"
	"fmt"

	"tradingAgent/internal/domain"
)

// ErrInsufficientData is returned when a series is too short for an indicator.
var ErrInsufficientData = errors.New("insufficient data")

// Indicator represents a technical indicator that can be calculated from price data
type Indicator interface {
	// Calculate computes the indicator value at the latest kline
	Calculate(ctx context.Context, klines []*domain.Kline) (float64, error)

	// RequiredDataPoints returns the minimum number of klines needed for calculation
	RequiredDataPoints() int

	// Name returns the name of the indicator
	Name() string
}

// IndicatorConfig holds common configuration for indicators
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides common functionality for indicators
type BaseIndicator struct {
	Config IndicatorConfig
}

// RequiredDataPoints returns the minimum number of klines needed for calculation
func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}

func (b *BaseIndicator) checkLength(name string, klines []*domain.Kline) error {
	if len(klines) < b.Config.Period {
		return fmt.Errorf("%w: %d klines to calculate %s for period %d", ErrInsufficientData, len(klines), name, b.Config.Period)
	}
	return nil
}

// rollingMean is the mean of the last n values.
func rollingMean(values []float64, n int) float64 {
	sum := 0.0
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n)
}
