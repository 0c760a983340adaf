// Package analytics computes statistics over closed trades.
package analytics

import (
	"math"
	"sort"
	"time"

	"tradingAgent/internal/domain"
	"tradingAgent/internal/utils"
)

// Summarize computes the trade summary. closed must hold closed trades in
// the order they were recorded; drawdown is measured along that order.
func Summarize(closed []*domain.Trade, openTrades int) *domain.TradeSummary {
	s := &domain.TradeSummary{
		OpenTrades:      openTrades,
		SectorBreakdown: map[string]domain.SectorStats{},
	}
	if len(closed) == 0 {
		return s
	}

	pnls := make([]float64, len(closed))
	var winSum, lossSum float64
	maxWin, maxLoss := math.Inf(-1), math.Inf(1)
	for i, t := range closed {
		p := t.PnLValue()
		pnls[i] = p
		s.TotalPnL += p
		if p > 0 {
			s.Wins++
			winSum += p
			maxWin = math.Max(maxWin, p)
		} else {
			s.Losses++
			lossSum += p
			maxLoss = math.Min(maxLoss, p)
		}

		sector := t.Sector
		if sector == "" {
			sector = "Unknown"
		}
		st := s.SectorBreakdown[sector]
		st.Trades++
		st.PnL += p
		s.SectorBreakdown[sector] = st
	}

	n := float64(len(closed))
	s.TotalTrades = len(closed)
	s.WinRate = utils.Round(float64(s.Wins)/n*100, 1)
	avg := s.TotalPnL / n
	s.AvgPnL = utils.Round2(avg)
	s.TotalPnL = utils.Round2(s.TotalPnL)
	if s.Wins > 0 {
		s.MaxWin = utils.Round2(maxWin)
		s.AvgWin = utils.Round2(winSum / float64(s.Wins))
	}
	if s.Losses > 0 {
		s.MaxLoss = utils.Round2(maxLoss)
		s.AvgLoss = utils.Round2(lossSum / float64(s.Losses))
	}
	if sd := sampleStdDev(pnls, avg); sd > 0 {
		s.SharpeRatio = utils.Round2(avg / sd)
	}
	s.MaxDrawdown = utils.Round2(maxDrawdown(pnls))
	for k, st := range s.SectorBreakdown {
		st.PnL = utils.Round2(st.PnL)
		s.SectorBreakdown[k] = st
	}
	return s
}

// sampleStdDev returns 0 for fewer than two samples.
func sampleStdDev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

// maxDrawdown is the largest peak-to-trough fall of cumulative pnl, with the
// peak starting at zero.
func maxDrawdown(pnls []float64) float64 {
	var running, peak, maxDD float64
	for _, p := range pnls {
		running += p
		if running > peak {
			peak = running
		}
		if dd := peak - running; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// EquityPoint represents a point on the equity curve
type EquityPoint struct {
	Time     time.Time
	Value    float64
	Drawdown float64
}

// PerformanceMetrics extends the trade summary with balance-based figures
// used to compare backtests.
type PerformanceMetrics struct {
	domain.TradeSummary
	InitialBalance       float64
	FinalBalance         float64
	ReturnOnInvestment   float64 // fraction of initial balance
	ProfitFactor         float64
	Expectancy           float64
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageTradeDuration time.Duration
	EquityCurve          []EquityPoint
}

// AnalyzePerformance computes metrics over closed trades sorted by exit time.
func AnalyzePerformance(trades []*domain.Trade, initialBalance float64) *PerformanceMetrics {
	sorted := make([]*domain.Trade, 0, len(trades))
	for _, t := range trades {
		if !t.IsOpen() && t.ExitTime != nil {
			sorted = append(sorted, t)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ExitTime.Before(*sorted[j].ExitTime)
	})

	metrics := &PerformanceMetrics{
		TradeSummary:   *Summarize(sorted, len(trades)-len(sorted)),
		InitialBalance: initialBalance,
		FinalBalance:   initialBalance,
		EquityCurve:    make([]EquityPoint, 0, len(sorted)),
	}
	if len(sorted) == 0 {
		return metrics
	}

	balance, peak := initialBalance, initialBalance
	var grossWin, grossLoss float64
	var wins, losses int
	var totalDuration time.Duration
	for _, t := range sorted {
		p := t.PnLValue()
		balance += p
		if p > 0 {
			grossWin += p
			wins++
			losses = 0
		} else {
			grossLoss -= p
			losses++
			wins = 0
		}
		metrics.MaxConsecutiveWins = max(metrics.MaxConsecutiveWins, wins)
		metrics.MaxConsecutiveLosses = max(metrics.MaxConsecutiveLosses, losses)
		totalDuration += t.ExitTime.Sub(t.EntryTime)

		peak = math.Max(peak, balance)
		dd := 0.0
		if peak > 0 {
			dd = (peak - balance) / peak
		}
		metrics.EquityCurve = append(metrics.EquityCurve, EquityPoint{Time: *t.ExitTime, Value: balance, Drawdown: dd})
	}

	metrics.FinalBalance = utils.Round2(balance)
	if initialBalance > 0 {
		metrics.ReturnOnInvestment = (balance - initialBalance) / initialBalance
	}
	if grossLoss > 0 {
		metrics.ProfitFactor = utils.Round2(grossWin / grossLoss)
	}
	winRate := float64(metrics.Wins) / float64(metrics.TotalTrades)
	metrics.Expectancy = utils.Round2(winRate*metrics.AvgWin + (1-winRate)*metrics.AvgLoss)
	metrics.AverageTradeDuration = totalDuration / time.Duration(len(sorted))
	return metrics
}
