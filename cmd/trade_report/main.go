package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"text/tabwriter"

	"tradingAgent/config"
	"tradingAgent/internal/adapters/jsonstore"
	"tradingAgent/internal/adapters/logger"
	"tradingAgent/internal/adapters/sqlite"
	"tradingAgent/internal/domain"
	"tradingAgent/internal/ports"
)

func main() {
	backend := flag.String("store", "", "json or sqlite (default AGENT_STORE)")
	path := flag.String("path", "", "trade file or database (default from configuration)")
	recent := flag.Int("recent", 20, "number of most recent trades to list")
	days := flag.Int("days", 0, "list closed trades of the last N days instead of the most recent")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()

	// 2. Open the trade store
	if *backend != "" {
		cfg.StoreBackend = *backend
	}
	var store ports.TradeStore
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		dbPath := cfg.DBPath
		if *path != "" {
			dbPath = *path
		}
		repo, err := sqlite.NewRepository(sqlite.Config{DBPath: dbPath, Logger: appLogger})
		if err != nil {
			log.Fatalf("FATAL: Failed to open database: %v", err)
		}
		defer repo.Shutdown()
		store = repo
	case config.StoreJSON:
		file := cfg.TradesFile
		if *path != "" {
			file = *path
		}
		js, err := jsonstore.Open(file, appLogger)
		if err != nil {
			log.Fatalf("FATAL: Failed to open trade file: %v", err)
		}
		store = js
	default:
		log.Fatalf("FATAL: unknown store %q", cfg.StoreBackend)
	}

	// 3. Report
	summary, err := store.Summary(ctx)
	if err != nil {
		log.Fatalf("Error computing summary: %v", err)
	}
	var trades []*domain.Trade
	if *days > 0 {
		trades, err = store.GetByDateRange(ctx, *days)
	} else {
		trades, err = store.GetAll(ctx, *recent)
	}
	if err != nil {
		log.Fatalf("Error reading trades: %v", err)
	}
	if err := writeReport(os.Stdout, summary, trades); err != nil {
		log.Fatalf("Error writing report: %v", err)
	}
}

func writeReport(out io.Writer, s *domain.TradeSummary, trades []*domain.Trade) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)

	fmt.Fprintln(w, "## Summary")
	fmt.Fprintf(w, "Closed trades\t%d\n", s.TotalTrades)
	fmt.Fprintf(w, "Open trades\t%d\n", s.OpenTrades)
	fmt.Fprintf(w, "Wins / Losses\t%d / %d\n", s.Wins, s.Losses)
	fmt.Fprintf(w, "Win rate\t%.1f%%\n", s.WinRate)
	fmt.Fprintf(w, "Total PnL\t%.2f\n", s.TotalPnL)
	fmt.Fprintf(w, "Avg PnL\t%.2f\n", s.AvgPnL)
	fmt.Fprintf(w, "Avg win / loss\t%.2f / %.2f\n", s.AvgWin, s.AvgLoss)
	fmt.Fprintf(w, "Best / worst\t%.2f / %.2f\n", s.MaxWin, s.MaxLoss)
	fmt.Fprintf(w, "Sharpe\t%.2f\n", s.SharpeRatio)
	fmt.Fprintf(w, "Max drawdown\t%.2f\n", s.MaxDrawdown)

	if len(s.SectorBreakdown) > 0 {
		fmt.Fprintln(w, "\n## Sectors")
		fmt.Fprintln(w, "SECTOR\tTRADES\tPNL")
		sectors := make([]string, 0, len(s.SectorBreakdown))
		for name := range s.SectorBreakdown {
			sectors = append(sectors, name)
		}
		sort.Strings(sectors)
		for _, name := range sectors {
			st := s.SectorBreakdown[name]
			fmt.Fprintf(w, "%s\t%d\t%.2f\n", name, st.Trades, st.PnL)
		}
	}

	fmt.Fprintln(w, "\n## Trades")
	fmt.Fprintln(w, "ID\tSYMBOL\tMODE\tQTY\tENTRY\tEXIT\tREASON\tPNL\tOPENED")
	for _, t := range trades {
		exit, pnl := "-", "-"
		if t.ExitPrice != nil {
			exit = fmt.Sprintf("%.2f", *t.ExitPrice)
		}
		if t.PnL != nil {
			pnl = fmt.Sprintf("%.2f", *t.PnL)
		}
		reason := string(t.ExitReason)
		if reason == "" {
			reason = string(t.Status)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\t%s\t%s\t%s\t%s\n",
			t.TradeID, t.DisplaySymbol, t.TradingMode, t.Quantity, t.EntryPrice, exit, reason, pnl,
			t.EntryTime.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
