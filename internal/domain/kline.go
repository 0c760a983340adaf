package domain

import "time"

// Kline is one OHLCV bar of a price history.
type Kline struct {
	OpenTime  time.Time
	CloseTime time.Time
	Symbol    string
	Interval  string // e.g. "1d", "5m"
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// TypicalPrice is (high+low+close)/3.
func (k *Kline) TypicalPrice() float64 {
	return (k.High + k.Low + k.Close) / 3
}

// LastClose returns the close of the final bar, or false for an empty series.
func LastClose(klines []*Kline) (float64, bool) {
	if len(klines) == 0 {
		return 0, false
	}
	return klines[len(klines)-1].Close, true
}
