package jsonstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingAgent/internal/adapters/logger"
	"tradingAgent/internal/domain"
	"tradingAgent/internal/ports"
)

var ist = time.FixedZone("IST", 5*3600+1800)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func setupTestStore(t *testing.T) (*Store, *testClock, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "trades.json")
	clock := &testClock{now: time.Date(2024, 3, 5, 11, 0, 0, 0, ist)}
	n := 0
	s, err := Open(path, logger.Nop{},
		WithClock(clock.Now),
		WithLocation(ist),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("t%07d", n) }),
	)
	require.NoError(t, err)
	return s, clock, path
}

func newTrade(symbol string, entry float64, qty int) *domain.Trade {
	return &domain.Trade{
		Symbol:      symbol,
		Sector:      "IT",
		EntryPrice:  entry,
		Quantity:    qty,
		StopLoss:    entry * 0.985,
		TargetPrice: entry * 1.03,
		TradingMode: domain.ModePaper,
	}
}

func TestSaveAndReload(t *testing.T) {
	s, clock, path := setupTestStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, newTrade("INFY.NS", 1500, 3))
	require.NoError(t, err)
	assert.Equal(t, "t0000001", saved.TradeID)
	assert.Equal(t, domain.TradeOpen, saved.Status)
	assert.True(t, saved.EntryTime.Equal(clock.now))
	assert.Nil(t, saved.ExitPrice)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"exit_price": null`)

	reopened, err := Open(path, logger.Nop{})
	require.NoError(t, err)
	open, err := reopened.GetOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "INFY.NS", open[0].Symbol)
}

func TestOpenMissingFileIsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "none.json"), logger.Nop{})
	require.NoError(t, err)
	all, err := s.GetAll(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestOpenCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"trade_id": "x",`), 0o644))

	_, err := Open(path, logger.Nop{})
	assert.ErrorIs(t, err, ports.ErrStoreCorrupt)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `[{"trade_id": "x",`, string(raw), "corrupt file must not be reset")
}

func TestCloseComputesPnLOnce(t *testing.T) {
	s, clock, _ := setupTestStore(t)
	ctx := context.Background()
	saved, err := s.Save(ctx, newTrade("TCS.NS", 100, 10))
	require.NoError(t, err)

	clock.now = clock.now.Add(2 * time.Hour)
	closed, err := s.Close(ctx, saved.TradeID, 103.456, domain.ExitTargetHit)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeClosed, closed.Status)
	assert.Equal(t, 103.46, *closed.ExitPrice)
	assert.Equal(t, 34.6, *closed.PnL)
	assert.Equal(t, 3.46, *closed.PnLPercent)
	assert.Equal(t, domain.ExitTargetHit, closed.ExitReason)

	_, err = s.Close(ctx, saved.TradeID, 90, domain.ExitStopLoss)
	assert.ErrorIs(t, err, ports.ErrTradeNotOpen)

	all, err := s.GetAll(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 34.6, *all[0].PnL, "second close must not recompute")
	assert.Equal(t, domain.ExitTargetHit, all[0].ExitReason)

	_, err = s.Close(ctx, "unknown", 1, domain.ExitManual)
	assert.ErrorIs(t, err, ports.ErrTradeNotOpen)
}

func TestUpdate(t *testing.T) {
	s, _, _ := setupTestStore(t)
	ctx := context.Background()
	saved, err := s.Save(ctx, newTrade("SBIN.NS", 600, 2))
	require.NoError(t, err)

	updated, err := s.Update(ctx, saved.TradeID, func(tr *domain.Trade) {
		tr.OrderID = "ORD-1"
		tr.TradeID = "hijack"
	})
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", updated.OrderID)
	assert.Equal(t, saved.TradeID, updated.TradeID)

	_, err = s.Update(ctx, "missing", func(*domain.Trade) {})
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestReturnedTradesAreCopies(t *testing.T) {
	s, _, _ := setupTestStore(t)
	ctx := context.Background()
	saved, err := s.Save(ctx, newTrade("INFY.NS", 1500, 1))
	require.NoError(t, err)

	saved.Symbol = "CHANGED"
	open, err := s.GetOpen(ctx)
	require.NoError(t, err)
	assert.Equal(t, "INFY.NS", open[0].Symbol)
}

func TestGetTodayCountUsesMarketDate(t *testing.T) {
	s, clock, _ := setupTestStore(t)
	ctx := context.Background()

	yesterday := newTrade("A", 10, 1)
	yesterday.EntryTime = time.Date(2024, 3, 4, 23, 59, 0, 0, ist)
	today := newTrade("B", 10, 1)
	today.EntryTime = time.Date(2024, 3, 5, 0, 0, 0, 0, ist)
	// 2024-03-04 19:00 UTC is 2024-03-05 00:30 IST.
	todayUTC := newTrade("C", 10, 1)
	todayUTC.EntryTime = time.Date(2024, 3, 4, 19, 0, 0, 0, time.UTC)

	for _, tr := range []*domain.Trade{yesterday, today, todayUTC} {
		_, err := s.Save(ctx, tr)
		require.NoError(t, err)
	}

	n, err := s.GetTodayCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	clock.now = clock.now.AddDate(0, 0, 1)
	n, err = s.GetTodayCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestQueriesOrdering(t *testing.T) {
	s, clock, _ := setupTestStore(t)
	ctx := context.Background()
	start := clock.now

	var ids []string
	for i := 0; i < 4; i++ {
		tr := newTrade(fmt.Sprintf("S%d", i), 100, 1)
		tr.EntryTime = start.Add(time.Duration(i) * time.Hour)
		saved, err := s.Save(ctx, tr)
		require.NoError(t, err)
		ids = append(ids, saved.TradeID)
	}

	// Close in reverse entry order, ten days apart for the first one.
	clock.now = start.AddDate(0, 0, -10)
	_, err := s.Close(ctx, ids[3], 101, domain.ExitTargetHit)
	require.NoError(t, err)
	clock.now = start.Add(5 * time.Hour)
	_, err = s.Close(ctx, ids[1], 99, domain.ExitStopLoss)
	require.NoError(t, err)
	clock.now = start.Add(6 * time.Hour)
	_, err = s.Close(ctx, ids[0], 102, domain.ExitTargetHit)
	require.NoError(t, err)

	all, err := s.GetAll(ctx, 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "S3", all[0].Symbol)
	assert.Equal(t, "S2", all[1].Symbol)

	closed, err := s.GetClosed(ctx, 0)
	require.NoError(t, err)
	require.Len(t, closed, 3)
	assert.Equal(t, []string{"S0", "S1", "S3"}, []string{closed[0].Symbol, closed[1].Symbol, closed[2].Symbol})

	recent, err := s.GetByDateRange(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	open, err := s.GetOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "S2", open[0].Symbol)

	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.TotalTrades)
	assert.Equal(t, 1, sum.OpenTrades)
	assert.Equal(t, 2, sum.Wins)
	assert.Equal(t, 1, sum.Losses)
	assert.Equal(t, 2.0, sum.TotalPnL)
}

func TestClearAll(t *testing.T) {
	s, _, path := setupTestStore(t)
	ctx := context.Background()
	_, err := s.Save(ctx, newTrade("INFY.NS", 1500, 1))
	require.NoError(t, err)

	require.NoError(t, s.ClearAll(ctx))
	all, err := s.GetAll(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, all)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}

func TestSaveGivesUpOnRepeatedIDCollision(t *testing.T) {
	calls := 0
	s, err := Open(filepath.Join(t.TempDir(), "trades.json"), logger.Nop{},
		WithIDGenerator(func() string { calls++; return "dup00001" }))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Save(ctx, newTrade("INFY.NS", 1500, 1))
	require.NoError(t, err)

	_, err = s.Save(ctx, newTrade("TCS.NS", 3500, 1))
	require.ErrorIs(t, err, ports.ErrUpdateFailed)
	assert.Equal(t, 1+maxIDAttempts, calls)

	open, err := s.GetOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}
