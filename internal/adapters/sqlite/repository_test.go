package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tradingAgent/internal/domain"
	"tradingAgent/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

var ist = time.FixedZone("IST", 5*3600+1800)

type testClock struct{ now time.Time }

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, *testClock, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "trading-agent-test-*")
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2024, 3, 5, 11, 0, 0, 0, ist)}
	n := 0
	repo, err := NewRepository(Config{
		DBPath:   filepath.Join(tmpDir, "test.db"),
		Logger:   &mockLogger{},
		Location: ist,
		Now:      func() time.Time { return clock.now },
		NewID:    func() string { n++; return fmt.Sprintf("t%07d", n) },
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Shutdown()
		os.RemoveAll(tmpDir)
	}
	return repo, clock, cleanup
}

func newTrade(symbol string, entry float64, qty int) *domain.Trade {
	return &domain.Trade{
		SignalID:      "sig00001",
		Symbol:        symbol,
		DisplaySymbol: symbol,
		Sector:        "BANKING",
		EntryPrice:    entry,
		Quantity:      qty,
		StopLoss:      entry * 0.985,
		TargetPrice:   entry * 1.03,
		TradingMode:   domain.ModeLive,
		SecurityID:    "3045",
	}
}

func TestRepository_SaveAndGetOpen(t *testing.T) {
	repo, clock, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	saved, err := repo.Save(ctx, newTrade("SBIN.NS", 600, 5))
	require.NoError(t, err)
	assert.Equal(t, "t0000001", saved.TradeID)
	assert.Equal(t, domain.TradeOpen, saved.Status)

	open, err := repo.GetOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	got := open[0]
	assert.Equal(t, "SBIN.NS", got.Symbol)
	assert.Equal(t, "3045", got.SecurityID)
	assert.Equal(t, domain.ModeLive, got.TradingMode)
	assert.True(t, got.EntryTime.Equal(clock.now))
	assert.Nil(t, got.ExitPrice)
	assert.Nil(t, got.PnL)
	assert.Nil(t, got.ExitTime)
}

func TestRepository_Close(t *testing.T) {
	tests := []struct {
		name       string
		closeTwice bool
		id         string
		wantErr    error
	}{
		{name: "open trade", wantErr: nil},
		{name: "already closed", closeTwice: true, wantErr: ports.ErrTradeNotOpen},
		{name: "unknown trade", id: "missing", wantErr: ports.ErrTradeNotOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, _, cleanup := setupTestDB(t)
			defer cleanup()
			ctx := context.Background()

			saved, err := repo.Save(ctx, newTrade("SBIN.NS", 600, 5))
			require.NoError(t, err)
			id := saved.TradeID
			if tt.id != "" {
				id = tt.id
			}
			if tt.closeTwice {
				_, err := repo.Close(ctx, id, 620, domain.ExitTargetHit)
				require.NoError(t, err)
			}

			closed, err := repo.Close(ctx, id, 590, domain.ExitStopLoss)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				if tt.closeTwice {
					all, err := repo.GetClosed(ctx, 0)
					require.NoError(t, err)
					require.Len(t, all, 1)
					assert.Equal(t, 100.0, *all[0].PnL)
					assert.Equal(t, domain.ExitTargetHit, all[0].ExitReason)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.TradeClosed, closed.Status)
			assert.Equal(t, -50.0, *closed.PnL)
			assert.Equal(t, -1.67, *closed.PnLPercent)
			assert.Equal(t, domain.ExitStopLoss, closed.ExitReason)
		})
	}
}

func TestRepository_Update(t *testing.T) {
	repo, _, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	saved, err := repo.Save(ctx, newTrade("TCS.NS", 3500, 1))
	require.NoError(t, err)

	updated, err := repo.Update(ctx, saved.TradeID, func(tr *domain.Trade) { tr.OrderID = "1102400" })
	require.NoError(t, err)
	assert.Equal(t, "1102400", updated.OrderID)

	all, err := repo.GetAll(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "1102400", all[0].OrderID)

	_, err = repo.Update(ctx, "missing", func(*domain.Trade) {})
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRepository_GetTodayCount(t *testing.T) {
	repo, clock, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	yesterday := newTrade("A", 10, 1)
	yesterday.EntryTime = time.Date(2024, 3, 4, 23, 59, 0, 0, ist)
	midnight := newTrade("B", 10, 1)
	midnight.EntryTime = time.Date(2024, 3, 5, 0, 0, 0, 0, ist)
	for _, tr := range []*domain.Trade{yesterday, midnight, newTrade("C", 10, 1)} {
		_, err := repo.Save(ctx, tr)
		require.NoError(t, err)
	}

	count, err := repo.GetTodayCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	clock.now = clock.now.AddDate(0, 0, 1)
	count, err = repo.GetTodayCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRepository_QueriesAndSummary(t *testing.T) {
	repo, clock, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	start := clock.now

	var ids []string
	for i := 0; i < 3; i++ {
		tr := newTrade(fmt.Sprintf("S%d", i), 100, 2)
		tr.Sector = []string{"IT", "IT", "PHARMA"}[i]
		tr.EntryTime = start.Add(time.Duration(i) * time.Minute)
		saved, err := repo.Save(ctx, tr)
		require.NoError(t, err)
		ids = append(ids, saved.TradeID)
	}

	clock.now = start.AddDate(0, 0, -30)
	_, err := repo.Close(ctx, ids[0], 110, domain.ExitTargetHit)
	require.NoError(t, err)
	clock.now = start.Add(time.Hour)
	_, err = repo.Close(ctx, ids[1], 95, domain.ExitStopLoss)
	require.NoError(t, err)

	all, err := repo.GetAll(ctx, 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "S2", all[0].Symbol)

	closed, err := repo.GetClosed(ctx, 0)
	require.NoError(t, err)
	require.Len(t, closed, 2)
	assert.Equal(t, "S1", closed[0].Symbol)

	recent, err := repo.GetByDateRange(ctx, 7)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "S1", recent[0].Symbol)

	sum, err := repo.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalTrades)
	assert.Equal(t, 1, sum.OpenTrades)
	assert.Equal(t, 10.0, sum.TotalPnL)
	assert.Equal(t, 50.0, sum.WinRate)
	assert.Equal(t, domain.SectorStats{Trades: 2, PnL: 10}, sum.SectorBreakdown["IT"])

	require.NoError(t, repo.ClearAll(ctx))
	all, err = repo.GetAll(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}
