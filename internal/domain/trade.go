package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is a position opened from a signal and tracked until it is closed.
type Trade struct {
	TradeID         string      `json:"trade_id"`
	SignalID        string      `json:"signal_id"`
	Symbol          string      `json:"symbol"`
	DisplaySymbol   string      `json:"display_symbol"`
	Sector          string      `json:"sector"`
	EntryPrice      float64     `json:"entry_price"`
	Quantity        int         `json:"quantity"`
	SecurityID      string      `json:"security_id"`
	OrderID         string      `json:"order_id"`
	StopLoss        float64     `json:"stop_loss"`
	TargetPrice     float64     `json:"target_price"`
	RiskRewardRatio float64     `json:"risk_reward_ratio"`
	TradingMode     TradingMode `json:"trading_mode"`
	EntryTime       time.Time   `json:"entry_time"`
	Status          TradeStatus `json:"status"`

	// Set when the trade is closed.
	ExitPrice  *float64   `json:"exit_price"`
	ExitTime   *time.Time `json:"exit_time"`
	ExitReason ExitReason `json:"exit_reason"`
	PnL        *float64   `json:"pnl"`
	PnLPercent *float64   `json:"pnl_percent"`
}

// IsOpen checks if the trade status is open.
func (t *Trade) IsOpen() bool {
	return t.Status == TradeOpen
}

// Clone returns a copy that shares no pointers with t.
func (t *Trade) Clone() *Trade {
	out := *t
	if t.ExitPrice != nil {
		v := *t.ExitPrice
		out.ExitPrice = &v
	}
	if t.ExitTime != nil {
		v := *t.ExitTime
		out.ExitTime = &v
	}
	if t.PnL != nil {
		v := *t.PnL
		out.PnL = &v
	}
	if t.PnLPercent != nil {
		v := *t.PnLPercent
		out.PnLPercent = &v
	}
	return &out
}

// CloseAt marks the trade CLOSED at price and computes pnl and pnl percent.
// Exit price, pnl and pnl percent are rounded to 2 dp. It does not check the
// current status.
func (t *Trade) CloseAt(price float64, reason ExitReason, at time.Time) {
	entry := decimal.NewFromFloat(t.EntryPrice)
	exit := decimal.NewFromFloat(price).Round(2)
	price = exit.InexactFloat64()
	pnl := exit.Sub(entry).Mul(decimal.NewFromInt(int64(t.Quantity))).Round(2).InexactFloat64()
	pct := 0.0
	if !entry.IsZero() {
		pct = exit.Sub(entry).Div(entry).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}

	t.Status = TradeClosed
	t.ExitPrice = &price
	t.ExitTime = &at
	t.ExitReason = reason
	t.PnL = &pnl
	t.PnLPercent = &pct
}

// PnLValue returns the realised pnl or 0 if the trade is open.
func (t *Trade) PnLValue() float64 {
	if t.PnL == nil {
		return 0
	}
	return *t.PnL
}

// SectorStats aggregates closed trades for one sector.
type SectorStats struct {
	Trades int     `json:"trades"`
	PnL    float64 `json:"pnl"`
}

// TradeSummary holds aggregate statistics over closed trades.
type TradeSummary struct {
	TotalTrades     int                    `json:"total_trades"`
	OpenTrades      int                    `json:"open_trades"`
	Wins            int                    `json:"wins"`
	Losses          int                    `json:"losses"`
	WinRate         float64                `json:"win_rate"` // percent
	TotalPnL        float64                `json:"total_pnl"`
	AvgPnL          float64                `json:"avg_pnl"`
	MaxWin          float64                `json:"max_win"`
	MaxLoss         float64                `json:"max_loss"`
	AvgWin          float64                `json:"avg_win"`
	AvgLoss         float64                `json:"avg_loss"`
	SharpeRatio     float64                `json:"sharpe_ratio"`
	MaxDrawdown     float64                `json:"max_drawdown"`
	SectorBreakdown map[string]SectorStats `json:"sector_breakdown"`
}
