// Package strategy turns price history into rule-validated, ranked signals.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tradingAgent/internal/agentconfig"
	"tradingAgent/internal/domain"
	"tradingAgent/internal/ports"
	"tradingAgent/internal/risk"
	"tradingAgent/internal/strategy/indicators"
	"tradingAgent/internal/utils"
)

// Config holds the market data parameters of a scan.
type Config struct {
	HistoryPeriod   string        // e.g. "3mo"
	HistoryInterval string        // e.g. "1d"
	CallTimeout     time.Duration // per MarketDataProvider call
}

// Engine generates signals for the configured universe.
type Engine struct {
	cfg        Config
	provider   ports.MarketDataProvider
	universe   *agentconfig.Universe
	indicators *indicators.Engine
	risk       *risk.RiskManager
	logger     ports.Logger
	tracer     trace.Tracer
}

var _ ports.SignalScanner = (*Engine)(nil)

// New creates a signal engine.
func New(cfg Config, provider ports.MarketDataProvider, universe *agentconfig.Universe, rm *risk.RiskManager, logger ports.Logger) (*Engine, error) {
	if provider == nil {
		return nil, fmt.Errorf("market data provider is required for strategy engine")
	}
	if universe == nil || rm == nil {
		return nil, fmt.Errorf("universe and risk manager are required for strategy engine")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy engine")
	}
	if cfg.HistoryPeriod == "" {
		cfg.HistoryPeriod = "3mo"
	}
	if cfg.HistoryInterval == "" {
		cfg.HistoryInterval = "1d"
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	return &Engine{
		cfg:        cfg,
		provider:   provider,
		universe:   universe,
		indicators: indicators.NewEngine(),
		risk:       rm,
		logger:     logger,
		tracer:     otel.Tracer("tradingAgent/strategy"),
	}, nil
}

// Evaluate classifies one symbol. It returns nil and no error when the setup
// is not bullish, since such symbols produce no signal at all.
func (e *Engine) Evaluate(ctx context.Context, ticker, sector string, klines []*domain.Kline, cfg domain.AgentConfig, qualifiedSoFar int) (*domain.Signal, error) {
	snap, err := e.indicators.Compute(ctx, klines)
	if err != nil {
		return nil, err
	}
	trend := DetectTrend(snap)
	if !trend.IsBullish {
		return nil, nil
	}

	levels := e.risk.GetLevels(snap.Close, snap.ATR, cfg)
	checks := e.risk.Check(risk.CheckInput{Sector: sector, Levels: levels, QualifiedSoFar: qualifiedSoFar}, cfg)

	sig := &domain.Signal{
		Symbol:               e.universe.DisplaySymbol(ticker),
		Ticker:               ticker,
		Sector:               sector,
		Status:               domain.SignalRejected,
		EntryPrice:           levels.Entry,
		StopLoss:             levels.StopLoss,
		TargetPrice:          levels.Target,
		RiskAmount:           levels.RiskAmount,
		RiskRewardRatio:      levels.RiskRewardRatio,
		Indicators:           roundSnapshot(snap),
		Trend:                trend,
		RuleChecks:           checks,
		ExecutionInstruction: domain.InstructionNone,
		Rationale:            BuildRationale(snap, trend, levels.RiskRewardRatio, checks),
	}
	if checks.AllPass() {
		sig.Status = domain.SignalQualified
		sig.ExecutionInstruction = domain.InstructionWaitForUser
		if cfg.ExecutionMode == domain.ExecAutoRuled {
			sig.ExecutionInstruction = domain.InstructionForward
		}
	}
	return sig, nil
}

// Scan evaluates every allowed sector's symbols in order, skipping symbols
// already seen in an earlier sector, and stops once the daily cap of
// qualified signals is reached. Per-symbol failures are recorded in
// Skipped; only cancellation of ctx aborts the scan.
func (e *Engine) Scan(ctx context.Context, cfg domain.AgentConfig) (*domain.ScanResult, error) {
	ctx, span := e.tracer.Start(ctx, "strategy.Scan")
	defer span.End()

	result := &domain.ScanResult{Skipped: map[string]string{}}
	seen := make(map[string]bool)
	qualified := 0

scan:
	for _, sector := range cfg.AllowedSectors {
		for _, ticker := range e.universe.Symbols(sector) {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("scan aborted: %w", err)
			}
			if qualified >= cfg.MaxTradesPerDay {
				break scan
			}
			if seen[ticker] {
				continue
			}
			seen[ticker] = true

			sig, err := e.scanSymbol(ctx, ticker, sector, cfg, qualified)
			if err != nil {
				if ctx.Err() != nil {
					return nil, fmt.Errorf("scan aborted: %w", ctx.Err())
				}
				result.Skipped[ticker] = err.Error()
				e.logger.Debug(ctx, "Skipping symbol", map[string]interface{}{"ticker": ticker, "reason": err.Error()})
				continue
			}
			if sig == nil {
				continue
			}
			if sig.Status == domain.SignalQualified {
				qualified++
			}
			result.Signals = append(result.Signals, *sig)
		}
	}

	Rank(result.Signals)
	span.SetAttributes(
		attribute.Int("signals", len(result.Signals)),
		attribute.Int("qualified", qualified),
		attribute.Int("skipped", len(result.Skipped)),
	)
	e.logger.Info(ctx, "Scan complete", map[string]interface{}{
		"signals":   len(result.Signals),
		"qualified": qualified,
		"skipped":   len(result.Skipped),
	})
	return result, nil
}

func (e *Engine) scanSymbol(ctx context.Context, ticker, sector string, cfg domain.AgentConfig, qualified int) (*domain.Signal, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	klines, err := e.provider.History(callCtx, ticker, e.cfg.HistoryPeriod, e.cfg.HistoryInterval)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("fetching history: %w: %w", ports.ErrTimeout, err)
		}
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	if len(klines) == 0 {
		return nil, ports.ErrNoMarketData
	}
	return e.Evaluate(ctx, ticker, sector, klines, cfg, qualified)
}

func roundSnapshot(s *domain.IndicatorSnapshot) domain.IndicatorSnapshot {
	return domain.IndicatorSnapshot{
		Close:     utils.Round2(s.Close),
		EMA9:      utils.Round2(s.EMA9),
		EMA21:     utils.Round2(s.EMA21),
		RSI:       utils.Round2(s.RSI),
		ATR:       utils.Round2(s.ATR),
		VWAP:      utils.Round2(s.VWAP),
		Volume:    s.Volume,
		AvgVolume: utils.Round2(s.AvgVolume),
	}
}
