package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"tradingAgent/config"
	"tradingAgent/internal/adapters/csvfeed"
	"tradingAgent/internal/adapters/logger"
	"tradingAgent/internal/agentconfig"
	"tradingAgent/internal/domain"
	"tradingAgent/internal/risk"
	"tradingAgent/internal/strategy"
	"tradingAgent/internal/strategy/backtesting"
	"tradingAgent/internal/strategy/optimization"
	"tradingAgent/internal/utils"
)

func main() {
	dir := flag.String("dir", "", "directory of kline CSV files (default AGENT_CSV_DIR)")
	symbols := flag.String("symbols", "", "comma separated tickers; empty runs the whole universe")
	interval := flag.String("interval", "1d", "bar interval of the CSV files")
	capital := flag.Float64("capital", 100000, "initial funds")
	optimize := flag.Bool("optimize", false, "grid search stop and target percentages")
	stopRange := flag.String("stop-range", "1:3:0.5", "stop loss percent range min:max:step")
	targetRange := flag.String("target-range", "2:6:1", "target percent range min:max:step")
	top := flag.Int("top", 5, "optimisation results to print per symbol")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()

	// 2. Load universe and rules
	universe := agentconfig.DefaultUniverse()
	if cfg.UniverseFile != "" {
		if universe, err = agentconfig.LoadUniverse(cfg.UniverseFile); err != nil {
			log.Fatalf("FATAL: Failed to load universe: %v", err)
		}
	}
	store := agentconfig.NewStore(universe)
	rules, err := store.Update(cfg.Rules)
	if err != nil {
		log.Fatalf("FATAL: Invalid trading rules: %v", err)
	}
	sectorOf := make(map[string]string)
	for _, s := range universe.Sectors {
		for _, t := range s.Symbols {
			if _, ok := sectorOf[t]; !ok {
				sectorOf[t] = s.Name
			}
		}
	}

	// 3. Build the signal engine. It only evaluates windows here, so the
	// feed is never queried.
	csvDir := *dir
	if csvDir == "" {
		csvDir = cfg.CSVDir
	}
	feed, err := csvfeed.New(csvDir, appLogger, csvfeed.AnchorToData())
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	rm := risk.NewRiskManager(risk.DefaultRiskConfig())
	engine, err := strategy.New(strategy.Config{HistoryPeriod: cfg.HistoryPeriod, HistoryInterval: *interval}, feed, universe, rm, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to create signal engine: %v", err)
	}

	var ranges []optimization.ParameterRange
	if *optimize {
		for _, r := range [][2]string{{optimization.ParamStopLossPct, *stopRange}, {optimization.ParamTargetPct, *targetRange}} {
			pr, err := parseRange(r[0], r[1])
			if err != nil {
				log.Fatalf("FATAL: %v", err)
			}
			ranges = append(ranges, pr)
		}
	}

	// 4. Run backtests
	tickers := splitList(*symbols)
	if len(tickers) == 0 {
		tickers = universe.AllTickers()
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tSIGNALS\tTRADES\tWIN%\tPNL\tROI%\tMAX DD\tPF")
	for _, ticker := range tickers {
		klines, err := utils.ReadKlinesFromCSV(filepath.Join(csvDir, csvfeed.FileName(ticker, *interval)))
		if err != nil {
			appLogger.Warn(ctx, "Skipping symbol without data", map[string]interface{}{"symbol": ticker, "error": err.Error()})
			continue
		}
		btCfg := backtesting.BacktestConfig{
			Ticker:       ticker,
			Sector:       sectorOf[ticker],
			InitialFunds: *capital,
			Rules:        rules,
		}

		result, err := backtesting.Backtest(ctx, engine, rm, klines, btCfg)
		if err != nil {
			appLogger.Error(ctx, err, "Backtest error", map[string]interface{}{"symbol": ticker})
			continue
		}
		m := result.Metrics
		fmt.Fprintf(w, "%s\t%d\t%d\t%.1f\t%.2f\t%.2f\t%.2f\t%.2f\n",
			ticker, result.Signals, m.TotalTrades, m.WinRate, m.TotalPnL, m.ReturnOnInvestment*100, m.MaxDrawdown, m.ProfitFactor)

		if *optimize {
			printOptimization(ctx, w, engine, rm, klines, btCfg, ranges, *top, appLogger)
		}
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("writing report: %v", err)
	}
}

func printOptimization(ctx context.Context, w *tabwriter.Writer, eval backtesting.Evaluator, rm *risk.RiskManager,
	klines []*domain.Kline, btCfg backtesting.BacktestConfig, ranges []optimization.ParameterRange, top int, l *logger.StdLogger) {
	opt, err := optimization.NewOptimizer(optimization.OptimizerConfig{ParameterRanges: ranges, Backtest: btCfg}, rm)
	if err != nil {
		l.Error(ctx, err, "Invalid optimisation ranges")
		return
	}
	results, err := opt.Optimize(ctx, eval, klines)
	if err != nil {
		l.Error(ctx, err, "Optimisation failed", map[string]interface{}{"symbol": btCfg.Ticker})
		return
	}
	for i, r := range results {
		if i == top {
			break
		}
		fmt.Fprintf(w, "  stop=%.2f target=%.2f\t\t%d\t%.1f\t%.2f\t%.2f\t%.2f\tscore=%.3f\n",
			r.Parameters[optimization.ParamStopLossPct], r.Parameters[optimization.ParamTargetPct],
			r.Metrics.TotalTrades, r.Metrics.WinRate, r.Metrics.TotalPnL, r.Metrics.ReturnOnInvestment*100, r.Metrics.MaxDrawdown, r.Score)
	}
}

// parseRange reads "min:max:step".
func parseRange(name, value string) (optimization.ParameterRange, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return optimization.ParameterRange{}, fmt.Errorf("range for %s must be min:max:step, got %q", name, value)
	}
	vals := make([]float64, 3)
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return optimization.ParameterRange{}, fmt.Errorf("range for %s: %w", name, err)
		}
		vals[i] = v
	}
	return optimization.ParameterRange{Name: name, Min: vals[0], Max: vals[1], Step: vals[2]}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
