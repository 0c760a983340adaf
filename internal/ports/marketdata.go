package ports

import (
	"context"

	"tradingAgent/internal/domain"
)

// MarketDataProvider returns historical bars for a symbol.
// period is a lookback such as "1d", "1mo", "3mo"; interval is the bar size
// such as "1d" or "5m". Bars are returned oldest first.
type MarketDataProvider interface {
	History(ctx context.Context, symbol, period, interval string) ([]*domain.Kline, error)
}
