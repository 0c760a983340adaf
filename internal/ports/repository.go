package ports

import (
	"context"

	"tradingAgent/internal/domain"
)

// TradeStore is the durable record of trades. Every method returns copies;
// callers never hold references into the store.
type TradeStore interface {
	// Save assigns a trade id, marks the trade OPEN and persists it.
	Save(ctx context.Context, trade *domain.Trade) (*domain.Trade, error)
	// Update applies mutate to the stored trade with the given id.
	// Returns ErrNotFound if the id is unknown.
	Update(ctx context.Context, tradeID string, mutate func(*domain.Trade)) (*domain.Trade, error)
	// Close marks an OPEN trade CLOSED and computes its pnl.
	// Returns ErrTradeNotOpen if the id is unknown or already closed.
	Close(ctx context.Context, tradeID string, exitPrice float64, reason domain.ExitReason) (*domain.Trade, error)
	GetOpen(ctx context.Context) ([]*domain.Trade, error)
	// GetAll returns up to limit trades, newest entry first. limit <= 0 means all.
	GetAll(ctx context.Context, limit int) ([]*domain.Trade, error)
	// GetClosed returns up to limit closed trades, newest exit first.
	GetClosed(ctx context.Context, limit int) ([]*domain.Trade, error)
	// GetByDateRange returns closed trades that exited within the last days.
	GetByDateRange(ctx context.Context, days int) ([]*domain.Trade, error)
	// GetTodayCount counts trades entered on the current calendar date.
	GetTodayCount(ctx context.Context) (int, error)
	Summary(ctx context.Context) (*domain.TradeSummary, error)
	ClearAll(ctx context.Context) error
}
