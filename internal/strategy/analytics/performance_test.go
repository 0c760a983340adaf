package analytics

import (
	"testing"
	"time"

	"tradingAgent/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closedTrade(sector string, pnl float64, exit time.Time) *domain.Trade {
	p := pnl
	e := exit
	return &domain.Trade{
		Sector:    sector,
		Status:    domain.TradeClosed,
		EntryTime: exit.Add(-2 * time.Hour),
		ExitTime:  &e,
		PnL:       &p,
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, 2)
	assert.Equal(t, 0, s.TotalTrades)
	assert.Equal(t, 2, s.OpenTrades)
	assert.Empty(t, s.SectorBreakdown)
	assert.Zero(t, s.SharpeRatio)
}

func TestSummarize(t *testing.T) {
	now := time.Now()
	trades := []*domain.Trade{
		closedTrade("IT", 100, now),
		closedTrade("IT", -50, now),
		closedTrade("AUTO", 200, now),
		closedTrade("AUTO", -150, now),
		closedTrade("", 0, now),
	}

	s := Summarize(trades, 1)
	assert.Equal(t, 5, s.TotalTrades)
	assert.Equal(t, 1, s.OpenTrades)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 3, s.Losses, "zero pnl counts as a loss")
	assert.Equal(t, 40.0, s.WinRate)
	assert.Equal(t, 100.0, s.TotalPnL)
	assert.Equal(t, 20.0, s.AvgPnL)
	assert.Equal(t, 200.0, s.MaxWin)
	assert.Equal(t, -150.0, s.MaxLoss)
	assert.Equal(t, 150.0, s.AvgWin)
	assert.Equal(t, -66.67, s.AvgLoss)
	// Cumulative 100, 50, 250, 100, 100: worst fall is 250 -> 100.
	assert.Equal(t, 150.0, s.MaxDrawdown)
	// mean 20, sample stdev 135.09
	assert.Equal(t, 0.15, s.SharpeRatio)

	assert.Equal(t, domain.SectorStats{Trades: 2, PnL: 50}, s.SectorBreakdown["IT"])
	assert.Equal(t, domain.SectorStats{Trades: 2, PnL: 50}, s.SectorBreakdown["AUTO"])
	assert.Equal(t, domain.SectorStats{Trades: 1, PnL: 0}, s.SectorBreakdown["Unknown"])
}

func TestSummarize_SharpeGuards(t *testing.T) {
	now := time.Now()

	single := Summarize([]*domain.Trade{closedTrade("IT", 100, now)}, 0)
	assert.Zero(t, single.SharpeRatio, "single sample has no dispersion")

	flat := Summarize([]*domain.Trade{closedTrade("IT", 10, now), closedTrade("IT", 10, now)}, 0)
	assert.Zero(t, flat.SharpeRatio, "zero stdev")
}

func TestSummarize_DrawdownFromZeroPeak(t *testing.T) {
	now := time.Now()
	s := Summarize([]*domain.Trade{closedTrade("IT", -30, now), closedTrade("IT", -20, now), closedTrade("IT", 10, now)}, 0)
	assert.Equal(t, 50.0, s.MaxDrawdown)
}

func TestAnalyzePerformance(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	trades := []*domain.Trade{
		closedTrade("IT", -100, base.Add(48*time.Hour)),
		closedTrade("IT", 300, base),
		closedTrade("IT", 200, base.Add(24*time.Hour)),
		{Status: domain.TradeOpen, EntryTime: base},
	}

	m := AnalyzePerformance(trades, 10000)
	require.Len(t, m.EquityCurve, 3)
	assert.Equal(t, 3, m.TotalTrades)
	assert.Equal(t, 1, m.OpenTrades)
	assert.Equal(t, 10400.0, m.FinalBalance)
	assert.InDelta(t, 0.04, m.ReturnOnInvestment, 1e-9)
	assert.Equal(t, 5.0, m.ProfitFactor)
	assert.Equal(t, 2, m.MaxConsecutiveWins)
	assert.Equal(t, 1, m.MaxConsecutiveLosses)
	assert.Equal(t, 2*time.Hour, m.AverageTradeDuration)
	assert.Equal(t, 10300.0, m.EquityCurve[0].Value, "curve follows exit order")
	assert.InDelta(t, 100.0/10500.0, m.EquityCurve[2].Drawdown, 1e-9)
	// win rate 2/3, avg win 250, avg loss -100
	assert.Equal(t, 133.33, m.Expectancy)
}
