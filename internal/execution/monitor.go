package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tradingAgent/internal/domain"
	"tradingAgent/internal/ports"
)

// Monitor watches open trades and closes them at their target or stop.
type Monitor struct {
	cfg       Config
	store     ports.TradeStore
	broker    ports.BrokerClient
	provider  ports.MarketDataProvider
	publisher ports.EventPublisher
	logger    ports.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewMonitor creates a position monitor. broker may be nil; LIVE trades then
// cannot be exited by CheckExits.
func NewMonitor(cfg Config, store ports.TradeStore, broker ports.BrokerClient, provider ports.MarketDataProvider,
	publisher ports.EventPublisher, logger ports.Logger) (*Monitor, error) {
	if store == nil || provider == nil {
		return nil, fmt.Errorf("trade store and market data provider are required for monitor")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for monitor")
	}
	if publisher == nil {
		publisher = ports.NopPublisher{}
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig().CallTimeout
	}
	return &Monitor{
		cfg:       cfg,
		store:     store,
		broker:    broker,
		provider:  provider,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer("tradingAgent/execution"),
		now:       time.Now,
	}, nil
}

// exitReason reports whether price triggers an exit. The target wins when
// both levels are crossed.
func exitReason(t *domain.Trade, price float64) (domain.ExitReason, bool) {
	switch {
	case price >= t.TargetPrice:
		return domain.ExitTargetHit, true
	case price <= t.StopLoss:
		return domain.ExitStopLoss, true
	}
	return "", false
}

// CheckExits closes every open trade whose latest price has reached its
// target or stop. Trades without a price are skipped; LIVE trades whose sell
// order fails stay open. Only a failure to list open trades is returned.
func (m *Monitor) CheckExits(ctx context.Context) ([]*domain.Trade, error) {
	const op = "CheckExits"
	ctx, span := m.tracer.Start(ctx, "execution.CheckExits")
	defer span.End()

	open, err := m.store.GetOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	span.SetAttributes(attribute.Int("open_trades", len(open)))

	var closed []*domain.Trade
	for _, t := range open {
		if err := ctx.Err(); err != nil {
			return closed, err
		}
		price, err := m.latestPrice(ctx, t.Symbol)
		if err != nil {
			m.logger.Warn(ctx, op+": Price check failed", map[string]interface{}{"tradeID": t.TradeID, "symbol": t.Symbol, "error": err.Error()})
			continue
		}
		reason, hit := exitReason(t, price)
		if !hit {
			continue
		}

		if t.TradingMode == domain.ModeLive {
			if err := m.sell(ctx, t, reason); err != nil {
				m.logger.Error(ctx, err, op+": LIVE exit failed, trade stays open", map[string]interface{}{"tradeID": t.TradeID, "symbol": t.Symbol})
				continue
			}
		} else {
			m.logger.Info(ctx, op+": PAPER exit", map[string]interface{}{"symbol": t.Symbol, "price": price, "reason": reason})
		}

		c, err := m.closeTrade(ctx, t, price, reason)
		if err != nil {
			continue
		}
		closed = append(closed, c)
	}
	return closed, nil
}

// ForceCloseAll closes every open trade with KILL_SWITCH at its latest price,
// or at its entry price when no price is available. LIVE sells are attempted
// but a failed sell does not keep the trade open.
func (m *Monitor) ForceCloseAll(ctx context.Context) ([]*domain.Trade, error) {
	const op = "ForceCloseAll"
	ctx, span := m.tracer.Start(ctx, "execution.ForceCloseAll")
	defer span.End()

	open, err := m.store.GetOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var closed []*domain.Trade
	for _, t := range open {
		price, err := m.latestPrice(ctx, t.Symbol)
		if err != nil {
			m.logger.Warn(ctx, op+": Using entry price", map[string]interface{}{"tradeID": t.TradeID, "error": err.Error()})
			price = t.EntryPrice
		}
		if t.TradingMode == domain.ModeLive {
			if err := m.sell(ctx, t, domain.ExitKillSwitch); err != nil {
				m.logger.Error(ctx, err, op+": LIVE exit failed, closing record anyway", map[string]interface{}{"tradeID": t.TradeID})
			}
		}
		c, err := m.closeTrade(ctx, t, price, domain.ExitKillSwitch)
		if err != nil {
			continue
		}
		closed = append(closed, c)
	}
	m.logger.Warn(ctx, op+": Positions closed", map[string]interface{}{"closed": len(closed), "open": len(open)})
	return closed, nil
}

func (m *Monitor) closeTrade(ctx context.Context, t *domain.Trade, price float64, reason domain.ExitReason) (*domain.Trade, error) {
	c, err := m.store.Close(ctx, t.TradeID, price, reason)
	if err != nil {
		if !errors.Is(err, ports.ErrTradeNotOpen) {
			m.logger.Error(ctx, err, "Failed to close trade", map[string]interface{}{"tradeID": t.TradeID})
		}
		return nil, err
	}
	publish(ctx, m.publisher, m.logger, domain.EventTradeClosed, c.Symbol, c, m.now())
	return c, nil
}

func (m *Monitor) sell(ctx context.Context, t *domain.Trade, reason domain.ExitReason) error {
	if m.broker == nil {
		return ports.ErrBrokerUnavailable
	}
	if t.SecurityID == "" {
		return fmt.Errorf("%w: %s", ports.ErrUnmappedSecurity, t.Symbol)
	}
	resp, err := placeMarketOrder(ctx, m.broker, m.cfg.CallTimeout, t.SecurityID, t.DisplaySymbol, domain.Sell, t.Quantity, "exit-"+t.TradeID)
	if err != nil {
		return err
	}
	m.logger.Info(ctx, "LIVE exit order placed", map[string]interface{}{"symbol": t.Symbol, "orderID": resp.OrderID, "reason": reason})
	return nil
}

// latestPrice returns the last close of the most recent daily bar.
func (m *Monitor) latestPrice(ctx context.Context, symbol string) (float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()
	klines, err := m.provider.History(callCtx, symbol, "1d", "1d")
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: %v", ports.ErrTimeout, err)
		}
		return 0, err
	}
	price, ok := domain.LastClose(klines)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ports.ErrNoMarketData, symbol)
	}
	return price, nil
}
