package indicators

import (
	"context"
	"fmt"

	"tradingAgent/internal/domain"
)

// MovingAverageType defines the type of moving average
type MovingAverageType string

const (
	SimpleMovingAverage      MovingAverageType = "SMA"
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// Source selects the kline field a moving average is computed over.
type Source string

const (
	SourceClose  Source = "close"
	SourceVolume Source = "volume"
)

// MovingAverageConfig holds configuration for moving average indicators
type MovingAverageConfig struct {
	IndicatorConfig
	Type   MovingAverageType
	Source Source // defaults to close
}

// MovingAverage implements both SMA and EMA indicators
type MovingAverage struct {
	BaseIndicator
	config MovingAverageConfig
}

// NewMovingAverage creates a new moving average indicator instance
func NewMovingAverage(config MovingAverageConfig) *MovingAverage {
	if config.Source == "" {
		config.Source = SourceClose
	}
	return &MovingAverage{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// NewEMA is shorthand for an EMA over closes.
func NewEMA(period int) *MovingAverage {
	return NewMovingAverage(MovingAverageConfig{
		IndicatorConfig: IndicatorConfig{Period: period},
		Type:            ExponentialMovingAverage,
	})
}

// Name returns e.g. "EMA9" or "SMA14(volume)".
func (m *MovingAverage) Name() string {
	name := fmt.Sprintf("%s%d", m.config.Type, m.Config.Period)
	if m.config.Source != SourceClose {
		name += "(" + string(m.config.Source) + ")"
	}
	return name
}

// Calculate computes the moving average value based on the configured type
func (m *MovingAverage) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	if err := m.checkLength(m.Name(), klines); err != nil {
		return 0, err
	}
	values := m.values(klines)
	switch m.config.Type {
	case SimpleMovingAverage:
		return rollingMean(values, m.Config.Period), nil
	case ExponentialMovingAverage:
		return ema(values, m.Config.Period), nil
	default:
		return 0, fmt.Errorf("unsupported moving average type: %s", m.config.Type)
	}
}

func (m *MovingAverage) values(klines []*domain.Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		if m.config.Source == SourceVolume {
			out[i] = k.Volume
		} else {
			out[i] = k.Close
		}
	}
	return out
}

// ema seeds with the first value and smooths with alpha = 2/(period+1)
// over the whole series.
func ema(values []float64, period int) float64 {
	alpha := 2.0 / float64(period+1)
	e := values[0]
	for _, v := range values[1:] {
		e = alpha*v + (1-alpha)*e
	}
	return e
}
