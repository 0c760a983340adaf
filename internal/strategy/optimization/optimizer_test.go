package optimization

import (
	"context"
	"testing"
	"time"

	"tradingAgent/internal/domain"
	"tradingAgent/internal/risk"
	"tradingAgent/internal/strategy/analytics"
	"tradingAgent/internal/strategy/backtesting"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// percentEvaluator qualifies every bar using the configured percent rules.
type percentEvaluator struct{}

func (percentEvaluator) Evaluate(ctx context.Context, ticker, sector string, klines []*domain.Kline, cfg domain.AgentConfig, qualifiedSoFar int) (*domain.Signal, error) {
	entry := klines[len(klines)-1].Close
	return &domain.Signal{
		Ticker:      ticker,
		Status:      domain.SignalQualified,
		EntryPrice:  entry,
		StopLoss:    entry * (1 - cfg.StopLossRule.Value/100),
		TargetPrice: entry * (1 + cfg.ProfitBookingRule.Value/100),
	}, nil
}

// risingKlines moves 1% per bar with a 1.5% high wick.
func risingKlines(n int) []*domain.Kline {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*domain.Kline, n)
	price := 100.0
	for i := range out {
		out[i] = &domain.Kline{OpenTime: start.AddDate(0, 0, i), Open: price, High: price * 1.015, Low: price * 0.999, Close: price, Volume: 1000}
		price *= 1.01
	}
	return out
}

func TestGenerateParameterCombinations(t *testing.T) {
	o, err := NewOptimizer(OptimizerConfig{ParameterRanges: []ParameterRange{
		{Name: ParamStopLossPct, Min: 1, Max: 2, Step: 0.5},
		{Name: ParamTargetPct, Min: 2, Max: 4, Step: 1, IsInt: true},
	}}, risk.NewRiskManager(risk.DefaultRiskConfig()))
	require.NoError(t, err)

	combos := o.generateParameterCombinations()
	assert.Len(t, combos, 9)
	assert.Equal(t, map[string]float64{ParamStopLossPct: 1, ParamTargetPct: 2}, combos[0])
	assert.Equal(t, map[string]float64{ParamStopLossPct: 2, ParamTargetPct: 4}, combos[8])
}

func TestNewOptimizerValidation(t *testing.T) {
	rm := risk.NewRiskManager(risk.DefaultRiskConfig())
	_, err := NewOptimizer(OptimizerConfig{ParameterRanges: []ParameterRange{{Name: "leverage", Min: 1, Max: 2, Step: 1}}}, rm)
	assert.Error(t, err)
	_, err = NewOptimizer(OptimizerConfig{ParameterRanges: []ParameterRange{{Name: ParamTargetPct, Min: 3, Max: 1, Step: 1}}}, rm)
	assert.Error(t, err)
}

func TestOptimize(t *testing.T) {
	o, err := NewOptimizer(OptimizerConfig{
		ParameterRanges: []ParameterRange{{Name: ParamTargetPct, Min: 1, Max: 3, Step: 1}},
		Backtest: backtesting.BacktestConfig{
			Ticker:       "INFY.NS",
			InitialFunds: 100000,
			Rules: domain.AgentConfig{
				MaxCapitalPerTrade: 10,
				StopLossRule:       domain.Rule{Type: domain.RuleFixedPercent, Value: 5},
			},
		},
		ScoreFunction: func(m *analytics.PerformanceMetrics) float64 { return m.TotalPnL },
	}, risk.NewRiskManager(risk.DefaultRiskConfig()))
	require.NoError(t, err)

	results, err := o.Optimize(context.Background(), percentEvaluator{}, risingKlines(60))
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	for _, r := range results {
		assert.Contains(t, []float64{1, 2, 3}, r.Parameters[ParamTargetPct])
		assert.NotNil(t, r.Metrics)
	}
}

func TestDefaultScoreFunction(t *testing.T) {
	none := &analytics.PerformanceMetrics{}
	good := &analytics.PerformanceMetrics{InitialBalance: 1000, ReturnOnInvestment: 0.1, ProfitFactor: 2}
	good.TotalTrades, good.WinRate = 4, 75
	bad := &analytics.PerformanceMetrics{InitialBalance: 1000, ReturnOnInvestment: -0.1}
	bad.TotalTrades, bad.WinRate, bad.MaxDrawdown = 4, 25, 150

	assert.Greater(t, DefaultScoreFunction(good), DefaultScoreFunction(bad))
	assert.Greater(t, DefaultScoreFunction(bad), DefaultScoreFunction(none))
}
