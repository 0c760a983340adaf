package indicators

import (
	"context"
	"fmt"

	"tradingAgent/internal/domain"
)

// MinBars is the shortest series Compute accepts.
const MinBars = 26

const (
	fastEMAPeriod = 9
	slowEMAPeriod = 21
	rsiPeriod     = 14
	atrPeriod     = 14
	volumePeriod  = 14
)

// Engine computes the full indicator snapshot used for signal generation.
type Engine struct {
	fastEMA   Indicator
	slowEMA   Indicator
	rsi       Indicator
	atr       Indicator
	vwap      Indicator
	avgVolume Indicator
}

// NewEngine wires the standard indicator set.
func NewEngine() *Engine {
	return &Engine{
		fastEMA: NewEMA(fastEMAPeriod),
		slowEMA: NewEMA(slowEMAPeriod),
		rsi: NewRSI(RSIConfig{
			IndicatorConfig: IndicatorConfig{Period: rsiPeriod},
			Overbought:      70,
			Oversold:        30,
		}),
		atr:  NewATR(ATRConfig{IndicatorConfig: IndicatorConfig{Period: atrPeriod}}),
		vwap: NewVWAP(),
		avgVolume: NewMovingAverage(MovingAverageConfig{
			IndicatorConfig: IndicatorConfig{Period: volumePeriod},
			Type:            SimpleMovingAverage,
			Source:          SourceVolume,
		}),
	}
}

// Compute returns all indicators at the latest kline. Series shorter than
// MinBars yield ErrInsufficientData and no partial result.
func (e *Engine) Compute(ctx context.Context, klines []*domain.Kline) (*domain.IndicatorSnapshot, error) {
	if len(klines) < MinBars {
		return nil, fmt.Errorf("%w: need %d bars, got %d", ErrInsufficientData, MinBars, len(klines))
	}

	last := klines[len(klines)-1]
	snap := &domain.IndicatorSnapshot{Close: last.Close, Volume: last.Volume}
	targets := []struct {
		ind Indicator
		dst *float64
	}{
		{e.fastEMA, &snap.EMA9},
		{e.slowEMA, &snap.EMA21},
		{e.rsi, &snap.RSI},
		{e.atr, &snap.ATR},
		{e.vwap, &snap.VWAP},
		{e.avgVolume, &snap.AvgVolume},
	}
	for _, t := range targets {
		v, err := t.ind.Calculate(ctx, klines)
		if err != nil {
			return nil, fmt.Errorf("calculating %s: %w", t.ind.Name(), err)
		}
		*t.dst = v
	}
	return snap, nil
}
