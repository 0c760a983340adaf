package backtesting

import (
	"context"
	"errors"
	"testing"
	"time"

	"tradingAgent/internal/domain"
	"tradingAgent/internal/risk"
	"tradingAgent/internal/strategy/indicators"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEvaluator qualifies every bar with a 1.5% stop and 3% target.
type stubEvaluator struct {
	calls int
	err   error
}

func (s *stubEvaluator) Evaluate(ctx context.Context, ticker, sector string, klines []*domain.Kline, cfg domain.AgentConfig, qualifiedSoFar int) (*domain.Signal, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	entry := klines[len(klines)-1].Close
	return &domain.Signal{
		Symbol:          "INFY",
		Ticker:          ticker,
		Sector:          sector,
		Status:          domain.SignalQualified,
		EntryPrice:      entry,
		StopLoss:        entry * 0.985,
		TargetPrice:     entry * 1.03,
		RiskRewardRatio: 2,
	}, nil
}

func flatKlines(n int) []*domain.Kline {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*domain.Kline, n)
	for i := range out {
		out[i] = &domain.Kline{OpenTime: start.AddDate(0, 0, i), Open: 100, High: 101, Low: 99, Close: 100, Volume: 1000}
	}
	return out
}

func testRules() domain.AgentConfig {
	return domain.AgentConfig{MaxCapitalPerTrade: 5, MaxTradesPerDay: 3, RiskPerTrade: 2}
}

func TestBacktest(t *testing.T) {
	klines := flatKlines(40)
	klines[30].High = 104 // target 103 hit
	klines[35].Low = 98   // stop 98.5 hit

	eval := &stubEvaluator{}
	res, err := Backtest(context.Background(), eval, risk.NewRiskManager(risk.DefaultRiskConfig()), klines, BacktestConfig{
		Ticker:       "INFY.NS",
		Sector:       "IT",
		InitialFunds: 10000,
		Rules:        testRules(),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, eval.calls)
	assert.Equal(t, 3, res.Qualified)
	require.Len(t, res.Trades, 3)

	assert.Equal(t, domain.ExitTargetHit, res.Trades[0].ExitReason)
	assert.Equal(t, 5, res.Trades[0].Quantity)
	assert.Equal(t, 15.0, *res.Trades[0].PnL)
	assert.Equal(t, domain.ExitStopLoss, res.Trades[1].ExitReason)
	assert.Equal(t, -7.5, *res.Trades[1].PnL)
	assert.Equal(t, domain.ExitManual, res.Trades[2].ExitReason)
	assert.Equal(t, 0.0, *res.Trades[2].PnL)

	require.NotNil(t, res.Metrics)
	assert.Equal(t, 3, res.Metrics.TotalTrades)
	assert.Equal(t, 10007.5, res.Metrics.FinalBalance)
}

func TestBacktest_StopCheckedBeforeTarget(t *testing.T) {
	klines := flatKlines(30)
	klines[27].High, klines[27].Low = 110, 90

	res, err := Backtest(context.Background(), &stubEvaluator{}, risk.NewRiskManager(risk.DefaultRiskConfig()), klines, BacktestConfig{InitialFunds: 10000, Rules: testRules()})
	require.NoError(t, err)
	require.NotEmpty(t, res.Trades)
	assert.Equal(t, domain.ExitStopLoss, res.Trades[0].ExitReason)
}

func TestBacktest_Errors(t *testing.T) {
	rm := risk.NewRiskManager(risk.DefaultRiskConfig())

	_, err := Backtest(context.Background(), &stubEvaluator{}, rm, flatKlines(10), BacktestConfig{InitialFunds: 1000})
	assert.ErrorIs(t, err, indicators.ErrInsufficientData)

	boom := errors.New("boom")
	_, err = Backtest(context.Background(), &stubEvaluator{err: boom}, rm, flatKlines(30), BacktestConfig{InitialFunds: 1000})
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Backtest(ctx, &stubEvaluator{}, rm, flatKlines(30), BacktestConfig{InitialFunds: 1000})
	assert.ErrorIs(t, err, context.Canceled)
}
