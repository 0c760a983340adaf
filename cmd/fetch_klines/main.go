package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"tradingAgent/config"
	"tradingAgent/internal/adapters/binanceclient"
	"tradingAgent/internal/adapters/csvfeed"
	"tradingAgent/internal/adapters/kite"
	"tradingAgent/internal/adapters/logger"
	"tradingAgent/internal/agentconfig"
	"tradingAgent/internal/ports"
	"tradingAgent/internal/utils"
)

func main() {
	venue := flag.String("venue", config.VenueKite, "data source: kite or binance")
	symbols := flag.String("symbols", "", "comma separated tickers; empty fetches the whole universe")
	interval := flag.String("interval", "1d", "bar interval, e.g. 1d or 5m")
	period := flag.String("period", "1y", "lookback, e.g. 3mo or 1y")
	outDir := flag.String("out", "", "output directory (default AGENT_CSV_DIR)")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()

	// 3. Initialize Market Data Provider
	var provider ports.MarketDataProvider
	switch strings.ToLower(*venue) {
	case config.VenueBinance:
		provider, err = binanceclient.New(binanceclient.Config{
			APIKey:     cfg.BinanceAPIKey,
			SecretKey:  cfg.BinanceSecretKey,
			UseTestnet: cfg.BinanceTestnet,
			Logger:     appLogger,
		})
	case config.VenueKite:
		provider, err = kite.New(kite.Config{APIKey: cfg.KiteAPIKey, AccessToken: cfg.KiteAccessToken, Logger: appLogger})
	default:
		err = fmt.Errorf("unsupported venue %q", *venue)
	}
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize market data provider")
		log.Fatalf("FATAL: Failed to initialize market data provider: %v", err)
	}

	// 4. Resolve symbols and output directory
	tickers := splitList(*symbols)
	if len(tickers) == 0 {
		universe := agentconfig.DefaultUniverse()
		if cfg.UniverseFile != "" {
			if universe, err = agentconfig.LoadUniverse(cfg.UniverseFile); err != nil {
				log.Fatalf("FATAL: Failed to load universe: %v", err)
			}
		}
		tickers = universe.AllTickers()
	}
	dir := *outDir
	if dir == "" {
		dir = cfg.CSVDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatalf("FATAL: Failed to create output directory: %v", err)
	}

	// 5. Fetch and save
	failed := 0
	for _, ticker := range tickers {
		klines, err := provider.History(ctx, ticker, *period, *interval)
		if err != nil {
			appLogger.Error(ctx, err, "Error fetching klines", map[string]interface{}{"symbol": ticker})
			failed++
			continue
		}
		filename := filepath.Join(dir, csvfeed.FileName(ticker, *interval))
		if err := utils.WriteKlinesToCSV(klines, filename); err != nil {
			appLogger.Error(ctx, err, "Error writing CSV", map[string]interface{}{"filename": filename})
			failed++
			continue
		}
		appLogger.Info(ctx, "Saved klines", map[string]interface{}{"symbol": ticker, "count": len(klines), "filename": filename})
	}
	if failed > 0 {
		log.Fatalf("%d of %d symbols failed", failed, len(tickers))
	}
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
