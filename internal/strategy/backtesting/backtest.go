// Package backtesting replays the signal engine over historical klines.
package backtesting

import (
	"context"
	"fmt"
	"strconv"

	"tradingAgent/internal/domain"
	"tradingAgent/internal/risk"
	"tradingAgent/internal/strategy/analytics"
	"tradingAgent/internal/strategy/indicators"
)

// Evaluator classifies the latest bar of a kline window.
type Evaluator interface {
	Evaluate(ctx context.Context, ticker, sector string, klines []*domain.Kline, cfg domain.AgentConfig, qualifiedSoFar int) (*domain.Signal, error)
}

// BacktestConfig holds configuration for backtesting
type BacktestConfig struct {
	Ticker       string
	Sector       string
	InitialFunds float64
	Rules        domain.AgentConfig // capital is replaced by the running balance
	Lookback     int                // bars handed to the evaluator, default 63
}

// BacktestResult holds the results of a backtest
type BacktestResult struct {
	Signals   int // signals produced, qualified or not
	Qualified int
	Trades    []*domain.Trade
	Metrics   *analytics.PerformanceMetrics
}

// Backtest walks the klines bar by bar. A qualified signal opens a position
// at the bar's close; an open position exits at its stop when a bar's low
// reaches it, else at its target when the high reaches it. The stop is
// checked first. A position still open at the end is closed at the last close.
func Backtest(ctx context.Context, eval Evaluator, rm *risk.RiskManager, klines []*domain.Kline, config BacktestConfig) (*BacktestResult, error) {
	if len(klines) < indicators.MinBars {
		return nil, fmt.Errorf("%w: backtest needs at least %d klines, got %d", indicators.ErrInsufficientData, indicators.MinBars, len(klines))
	}
	lookback := config.Lookback
	if lookback < indicators.MinBars {
		lookback = 63
	}

	result := &BacktestResult{}
	balance := config.InitialFunds
	var open *domain.Trade

	for i := indicators.MinBars - 1; i < len(klines); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bar := klines[i]

		if open != nil {
			if closed := checkExit(open, bar); closed {
				balance += open.PnLValue()
				result.Trades = append(result.Trades, open)
				open = nil
			}
			continue
		}

		start := max(0, i+1-lookback)
		rules := config.Rules.Clone()
		rules.CapitalAvailable = balance
		sig, err := eval.Evaluate(ctx, config.Ticker, config.Sector, klines[start:i+1], rules, 0)
		if err != nil {
			return nil, fmt.Errorf("evaluating bar %d: %w", i, err)
		}
		if sig == nil {
			continue
		}
		result.Signals++
		if sig.Status != domain.SignalQualified {
			continue
		}
		result.Qualified++
		open = &domain.Trade{
			TradeID:         "BT-" + strconv.Itoa(len(result.Trades)+1),
			Symbol:          sig.Ticker,
			DisplaySymbol:   sig.Symbol,
			Sector:          sig.Sector,
			EntryPrice:      sig.EntryPrice,
			Quantity:        rm.GetPositionSize(balance, rules.MaxCapitalPerTrade, sig.EntryPrice),
			StopLoss:        sig.StopLoss,
			TargetPrice:     sig.TargetPrice,
			RiskRewardRatio: sig.RiskRewardRatio,
			TradingMode:     domain.ModePaper,
			EntryTime:       bar.OpenTime,
			Status:          domain.TradeOpen,
		}
	}

	if open != nil {
		last := klines[len(klines)-1]
		open.CloseAt(last.Close, domain.ExitManual, last.OpenTime)
		result.Trades = append(result.Trades, open)
	}

	result.Metrics = analytics.AnalyzePerformance(result.Trades, config.InitialFunds)
	return result, nil
}

func checkExit(t *domain.Trade, bar *domain.Kline) bool {
	switch {
	case bar.Low <= t.StopLoss:
		t.CloseAt(t.StopLoss, domain.ExitStopLoss, bar.OpenTime)
	case bar.High >= t.TargetPrice:
		t.CloseAt(t.TargetPrice, domain.ExitTargetHit, bar.OpenTime)
	default:
		return false
	}
	return true
}
