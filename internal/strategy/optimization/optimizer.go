// Package optimization grid-searches rule parameters over backtests.
package optimization

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"tradingAgent/internal/domain"
	"tradingAgent/internal/risk"
	"tradingAgent/internal/strategy/analytics"
	"tradingAgent/internal/strategy/backtesting"
)

// Tunable parameter names.
const (
	ParamStopLossPct = "stop_loss_pct"
	ParamTargetPct   = "target_pct"
	ParamRiskPerTrd  = "risk_per_trade"
)

// ParameterRange defines a range for a parameter to optimize
type ParameterRange struct {
	Name  string
	Min   float64
	Max   float64
	Step  float64
	IsInt bool
}

// OptimizationResult holds the results of a parameter optimization
type OptimizationResult struct {
	Parameters map[string]float64
	Metrics    *analytics.PerformanceMetrics
	Score      float64
}

// OptimizerConfig holds configuration for the optimizer
type OptimizerConfig struct {
	ParameterRanges []ParameterRange
	Backtest        backtesting.BacktestConfig
	ScoreFunction   func(*analytics.PerformanceMetrics) float64
	Parallelism     int
}

// Optimizer runs one backtest per parameter combination.
type Optimizer struct {
	config OptimizerConfig
	risk   *risk.RiskManager
}

// NewOptimizer creates a new optimizer instance
func NewOptimizer(config OptimizerConfig, rm *risk.RiskManager) (*Optimizer, error) {
	for _, pr := range config.ParameterRanges {
		if pr.Step <= 0 || pr.Max < pr.Min {
			return nil, fmt.Errorf("invalid range for %s", pr.Name)
		}
		switch pr.Name {
		case ParamStopLossPct, ParamTargetPct, ParamRiskPerTrd:
		default:
			return nil, fmt.Errorf("unknown parameter %q", pr.Name)
		}
	}
	if config.ScoreFunction == nil {
		config.ScoreFunction = DefaultScoreFunction
	}
	if config.Parallelism <= 0 {
		config.Parallelism = 4
	}
	return &Optimizer{config: config, risk: rm}, nil
}

// Optimize backtests every combination and returns results best first.
// Combinations whose backtest fails are left out.
func (o *Optimizer) Optimize(ctx context.Context, eval backtesting.Evaluator, klines []*domain.Kline) ([]OptimizationResult, error) {
	combinations := o.generateParameterCombinations()
	results := make([]OptimizationResult, 0, len(combinations))

	resultChan := make(chan OptimizationResult, len(combinations))
	sem := make(chan struct{}, o.config.Parallelism)
	var wg sync.WaitGroup

	for _, params := range combinations {
		wg.Add(1)
		go func(params map[string]float64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			cfg := o.config.Backtest
			cfg.Rules = applyParams(cfg.Rules, params)
			result, err := backtesting.Backtest(ctx, eval, o.risk, klines, cfg)
			if err != nil {
				return
			}
			resultChan <- OptimizationResult{
				Parameters: params,
				Metrics:    result.Metrics,
				Score:      o.config.ScoreFunction(result.Metrics),
			}
		}(params)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for result := range resultChan {
		results = append(results, result)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}

func applyParams(rules domain.AgentConfig, params map[string]float64) domain.AgentConfig {
	out := rules.Clone()
	for name, v := range params {
		switch name {
		case ParamStopLossPct:
			out.StopLossRule = domain.Rule{Type: domain.RuleFixedPercent, Value: v}
		case ParamTargetPct:
			out.ProfitBookingRule = domain.Rule{Type: domain.RuleTargetPercent, Value: v}
		case ParamRiskPerTrd:
			out.RiskPerTrade = v
		}
	}
	return out
}

// generateParameterCombinations generates all possible parameter combinations
func (o *Optimizer) generateParameterCombinations() []map[string]float64 {
	var combinations []map[string]float64
	current := make(map[string]float64)

	var generate func(int)
	generate = func(paramIndex int) {
		if paramIndex == len(o.config.ParameterRanges) {
			combination := make(map[string]float64, len(current))
			for k, v := range current {
				combination[k] = v
			}
			combinations = append(combinations, combination)
			return
		}

		param := o.config.ParameterRanges[paramIndex]
		steps := int(math.Floor((param.Max-param.Min)/param.Step + 1e-9))
		for i := 0; i <= steps; i++ {
			value := param.Min + float64(i)*param.Step
			if param.IsInt {
				value = math.Round(value)
			} else {
				value = math.Round(value*1e6) / 1e6
			}
			current[param.Name] = value
			generate(paramIndex + 1)
		}
	}

	generate(0)
	return combinations
}

// DefaultScoreFunction weighs return against drawdown and consistency.
func DefaultScoreFunction(m *analytics.PerformanceMetrics) float64 {
	if m.TotalTrades == 0 {
		return math.Inf(-1)
	}
	score := 0.0
	score += m.WinRate / 100 * 0.3
	score += math.Min(m.ProfitFactor, 5) / 5 * 0.2
	score += m.ReturnOnInvestment * 0.3
	if m.InitialBalance > 0 {
		score -= m.MaxDrawdown / m.InitialBalance * 0.2
	}
	return score
}
