package indicators

import (
	"context"

	"tradingAgent/internal/domain"
)

// VWAP is the cumulative volume-weighted average of typical price over the
// whole series.
type VWAP struct{}

func NewVWAP() *VWAP { return &VWAP{} }

func (v *VWAP) Name() string { return "VWAP" }

func (v *VWAP) RequiredDataPoints() int { return 1 }

// Calculate returns the VWAP, or the latest close if total volume is zero.
func (v *VWAP) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	if len(klines) == 0 {
		return 0, ErrInsufficientData
	}
	var pv, vol float64
	for _, k := range klines {
		pv += k.TypicalPrice() * k.Volume
		vol += k.Volume
	}
	if vol == 0 {
		return klines[len(klines)-1].Close, nil
	}
	return pv / vol, nil
}
