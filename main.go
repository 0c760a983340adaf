package main

import (
	"context"
	"fmt"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradingAgent/config"
	"tradingAgent/internal/adapters/binanceclient"
	"tradingAgent/internal/adapters/csvfeed"
	"tradingAgent/internal/adapters/jsonstore"
	"tradingAgent/internal/adapters/kafka"
	"tradingAgent/internal/adapters/kite"
	"tradingAgent/internal/adapters/logger"
	"tradingAgent/internal/adapters/sqlite"
	"tradingAgent/internal/adapters/tracing"
	"tradingAgent/internal/agentconfig"
	"tradingAgent/internal/app"
	"tradingAgent/internal/execution"
	"tradingAgent/internal/ports"
	"tradingAgent/internal/risk"
	"tradingAgent/internal/signallog"
	"tradingAgent/internal/strategy"
)

const serviceName = "trading-agent"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, flush, err := buildLogger(cfg)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer flush()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Initialize Tracing
	if cfg.TracingEnabled {
		shutdown, err := tracing.Init(ctx, tracing.Config{ServiceName: serviceName, ServiceVersion: "1.0.0", PrettyPrint: cfg.TracingPretty})
		if err != nil {
			fatal(appLogger, err, "Failed to initialize tracing")
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				appLogger.Error(context.Background(), err, "Error flushing traces")
			}
		}()
		appLogger.Info(ctx, "Tracing initialized")
	}

	// 4. Load Universe and Agent Configuration
	universe := agentconfig.DefaultUniverse()
	if cfg.UniverseFile != "" {
		universe, err = agentconfig.LoadUniverse(cfg.UniverseFile)
		if err != nil {
			fatal(appLogger, err, "Failed to load universe")
		}
	}
	agentCfg := agentconfig.NewStore(universe)
	rules, err := agentCfg.Update(cfg.Rules)
	if err != nil {
		fatal(appLogger, err, "Invalid initial trading rules")
	}
	appLogger.Info(ctx, "Agent configuration loaded", map[string]interface{}{
		"sectors": len(rules.AllowedSectors), "tradingMode": rules.TradingMode, "executionMode": rules.ExecutionMode,
	})

	// 5. Initialize Trade Store. "Today" is the market's date, not the host's.
	hours, err := app.NewMarketHours(cfg.MarketTimezone, cfg.MarketOpen, cfg.MarketClose)
	if err != nil {
		fatal(appLogger, err, "Invalid market hours")
	}
	trades, closeStore, err := buildStore(cfg, hours.Location, time.Now, appLogger)
	if err != nil {
		fatal(appLogger, err, "Failed to initialize trade store")
	}
	defer closeStore()
	appLogger.Info(ctx, "Trade store initialized", map[string]interface{}{"backend": cfg.StoreBackend})

	// 6. Initialize Market Data and Broker
	provider, broker, err := buildVenue(cfg, appLogger)
	if err != nil {
		fatal(appLogger, err, "Failed to initialize venue")
	}
	appLogger.Info(ctx, "Venue initialized", map[string]interface{}{"venue": cfg.Venue, "broker": broker != nil})

	// 7. Initialize Event Publisher
	var publisher ports.EventPublisher = ports.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := kafka.NewPublisher(kafka.Config{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic, SendTimeout: cfg.CallTimeout}, appLogger)
		if err != nil {
			fatal(appLogger, err, "Failed to initialize Kafka publisher")
		}
		defer kp.Close()
		publisher = kp
	}

	// 8. Initialize Strategy, Execution and Scheduler
	rm := risk.NewRiskManager(risk.DefaultRiskConfig())
	engine, err := strategy.New(strategy.Config{
		HistoryPeriod:   cfg.HistoryPeriod,
		HistoryInterval: cfg.HistoryInterval,
		CallTimeout:     cfg.CallTimeout,
	}, provider, universe, rm, appLogger)
	if err != nil {
		fatal(appLogger, err, "Failed to initialize signal engine")
	}
	execCfg := execution.Config{CallTimeout: cfg.CallTimeout}
	executor, err := execution.NewExecutor(execCfg, trades, broker, universe, rm, publisher, appLogger)
	if err != nil {
		fatal(appLogger, err, "Failed to initialize executor")
	}
	monitor, err := execution.NewMonitor(execCfg, trades, broker, provider, publisher, appLogger)
	if err != nil {
		fatal(appLogger, err, "Failed to initialize position monitor")
	}
	scheduler, err := app.NewScheduler(app.Deps{
		Config:    agentCfg,
		Scanner:   engine,
		SignalLog: signallog.New(),
		Executor:  executor,
		Monitor:   monitor,
		Trades:    trades,
		Broker:    broker,
		Publisher: publisher,
		Logger:    appLogger,
		Hours:     hours,
	}, app.SchedulerConfig{
		InactivePoll: cfg.InactivePoll,
		ErrorBackoff: cfg.ErrorBackoff,
		CallTimeout:  cfg.CallTimeout,
	})
	if err != nil {
		fatal(appLogger, err, "Failed to initialize scheduler")
	}

	// 9. Run until signalled
	if cfg.AutoStart {
		res := scheduler.Start(ctx, cfg.ScanInterval)
		appLogger.Info(ctx, "Scheduler "+res.Status, map[string]interface{}{"intervalSeconds": res.IntervalSeconds})
	} else {
		appLogger.Info(ctx, "Auto start disabled, running one cycle")
		if res, err := scheduler.ForceRunNow(ctx); err != nil {
			appLogger.Error(ctx, err, "Cycle failed")
		} else {
			appLogger.Info(ctx, "Cycle complete", map[string]interface{}{
				"signals": res.TotalSignals, "qualified": res.Qualified, "executed": res.Executed, "closed": res.PositionsClosed,
			})
		}
		return
	}

	// SIGUSR1 engages the kill switch and closes every open position.
	kill := make(chan os.Signal, 1)
	signal.Notify(kill, syscall.SIGUSR1)
	defer signal.Stop(kill)
	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case <-kill:
			res, err := scheduler.KillSwitch(ctx, true)
			if err != nil {
				appLogger.Error(ctx, err, "Kill switch incomplete")
			}
			if res != nil {
				appLogger.Warn(ctx, "Kill switch done", map[string]interface{}{"wasActive": res.WasActive, "closed": len(res.PositionsClosed)})
			}
		}
	}
	appLogger.Info(context.Background(), "Shutdown signal received, stopping scheduler")
	scheduler.Stop()
	<-scheduler.Done()
	appLogger.Info(context.Background(), "Application finished gracefully.")
}

func fatal(l ports.Logger, err error, msg string) {
	l.Error(context.Background(), err, "FATAL: "+msg)
	log.Fatalf("FATAL: %s: %v", msg, err) // Also log to stderr
}

func buildLogger(cfg *config.Config) (ports.Logger, func(), error) {
	switch cfg.LogFormat {
	case "json", "console":
		zl, err := logger.NewZapLogger(cfg.LogLevel, cfg.LogFormat == "console")
		if err != nil {
			return nil, nil, err
		}
		return zl, func() { _ = zl.Sync() }, nil
	default:
		return logger.NewStdLogger(cfg.LogLevel), func() {}, nil
	}
}

func buildStore(cfg *config.Config, loc *time.Location, now func() time.Time, l ports.Logger) (ports.TradeStore, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: l, Location: loc, Now: now})
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {
			if err := repo.Shutdown(); err != nil {
				l.Error(context.Background(), err, "Error closing database repository")
			}
		}, nil
	default:
		store, err := jsonstore.Open(cfg.TradesFile, l, jsonstore.WithLocation(loc), jsonstore.WithClock(now))
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

// buildVenue returns the market data provider and, for brokered venues, the
// broker. The csv venue has no broker, so LIVE signals are refused.
func buildVenue(cfg *config.Config, l ports.Logger) (ports.MarketDataProvider, ports.BrokerClient, error) {
	switch cfg.Venue {
	case config.VenueBinance:
		c, err := binanceclient.New(binanceclient.Config{
			APIKey:     cfg.BinanceAPIKey,
			SecretKey:  cfg.BinanceSecretKey,
			UseTestnet: cfg.BinanceTestnet,
			Logger:     l,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	case config.VenueKite:
		c, err := kite.New(kite.Config{APIKey: cfg.KiteAPIKey, AccessToken: cfg.KiteAccessToken, Logger: l})
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	case config.VenueCSV:
		feed, err := csvfeed.New(cfg.CSVDir, l)
		if err != nil {
			return nil, nil, err
		}
		return feed, nil, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown venue %q", ports.ErrConfigurationError, cfg.Venue)
}
