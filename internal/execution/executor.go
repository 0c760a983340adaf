// Package execution turns qualified signals into trades and closes them at
// their target or stop.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tradingAgent/internal/agentconfig"
	"tradingAgent/internal/domain"
	"tradingAgent/internal/ports"
	"tradingAgent/internal/risk"
)

var (
	// ErrSignalNotQualified is returned when executing a REJECTED signal.
	ErrSignalNotQualified = errors.New("signal is not qualified")
	// ErrPositionAlreadyOpen is returned when pyramiding is disabled and the
	// ticker already has an open trade.
	ErrPositionAlreadyOpen = errors.New("position already open")
)

// Order parameters sent for every live order.
const (
	ExchangeSegment = "NSE_EQ"
	ProductType     = "INTRADAY"
	OrderTypeMarket = "MARKET"
	ValidityDay     = "DAY"
)

// Config holds execution settings.
type Config struct {
	CallTimeout time.Duration // per broker or market data call
}

// DefaultConfig returns the default execution settings.
func DefaultConfig() Config {
	return Config{CallTimeout: 10 * time.Second}
}

// Executor places entry orders and records the resulting trades.
type Executor struct {
	cfg       Config
	store     ports.TradeStore
	broker    ports.BrokerClient
	universe  *agentconfig.Universe
	risk      *risk.RiskManager
	publisher ports.EventPublisher
	logger    ports.Logger
	tracer    trace.Tracer
}

// NewExecutor creates an executor. broker may be nil, in which case LIVE
// signals fail with ports.ErrBrokerUnavailable.
func NewExecutor(cfg Config, store ports.TradeStore, broker ports.BrokerClient, universe *agentconfig.Universe,
	rm *risk.RiskManager, publisher ports.EventPublisher, logger ports.Logger) (*Executor, error) {
	if store == nil || universe == nil || rm == nil {
		return nil, fmt.Errorf("trade store, universe and risk manager are required for executor")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for executor")
	}
	if publisher == nil {
		publisher = ports.NopPublisher{}
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig().CallTimeout
	}
	return &Executor{
		cfg:       cfg,
		store:     store,
		broker:    broker,
		universe:  universe,
		risk:      rm,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer("tradingAgent/execution"),
	}, nil
}

// Execute opens a trade for a qualified signal. In LIVE mode a market buy
// is placed first and no trade is recorded if it fails; in PAPER mode the
// order id is synthesised from the signal id.
func (e *Executor) Execute(ctx context.Context, sig domain.LoggedSignal, cfg domain.AgentConfig) (*domain.Trade, error) {
	const op = "Execute"
	ctx, span := e.tracer.Start(ctx, "execution.Execute", trace.WithAttributes(
		attribute.String("ticker", sig.Ticker),
		attribute.String("signal.id", sig.ID),
		attribute.String("trading_mode", string(cfg.TradingMode)),
	))
	defer span.End()

	trade, err := e.execute(ctx, sig, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn(ctx, op+": Signal not executed", map[string]interface{}{"signalID": sig.ID, "ticker": sig.Ticker, "error": err.Error()})
		return nil, fmt.Errorf("%s %s: %w", op, sig.Ticker, err)
	}
	span.SetAttributes(attribute.String("trade.id", trade.TradeID))
	return trade, nil
}

func (e *Executor) execute(ctx context.Context, sig domain.LoggedSignal, cfg domain.AgentConfig) (*domain.Trade, error) {
	if sig.Status != domain.SignalQualified {
		return nil, ErrSignalNotQualified
	}
	if sig.EntryPrice <= 0 {
		return nil, fmt.Errorf("%w: entry price %.2f", ports.ErrValidation, sig.EntryPrice)
	}

	if !cfg.AllowPyramiding {
		open, err := e.store.GetOpen(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading open trades: %w", err)
		}
		for _, t := range open {
			if t.Symbol == sig.Ticker {
				return nil, fmt.Errorf("%w: %s (trade %s)", ErrPositionAlreadyOpen, sig.Ticker, t.TradeID)
			}
		}
	}

	qty := e.risk.GetPositionSize(cfg.CapitalAvailable, cfg.MaxCapitalPerTrade, sig.EntryPrice)
	securityID, _ := e.universe.SecurityID(sig.Ticker)
	displaySymbol := sig.Symbol
	if displaySymbol == "" {
		displaySymbol = e.universe.DisplaySymbol(sig.Ticker)
	}

	var orderID string
	switch cfg.TradingMode {
	case domain.ModeLive:
		if e.broker == nil {
			return nil, ports.ErrBrokerUnavailable
		}
		if securityID == "" {
			return nil, fmt.Errorf("%w: %s", ports.ErrUnmappedSecurity, sig.Ticker)
		}
		resp, err := placeMarketOrder(ctx, e.broker, e.cfg.CallTimeout, securityID, displaySymbol, domain.Buy, qty, "entry-"+sig.ID)
		if err != nil {
			return nil, err
		}
		orderID = resp.OrderID
		e.logger.Info(ctx, "LIVE order placed", map[string]interface{}{
			"ticker": sig.Ticker, "quantity": qty, "orderID": orderID,
		})
	default:
		orderID = "PAPER-" + sig.ID
		e.logger.Info(ctx, "PAPER order", map[string]interface{}{
			"ticker": sig.Ticker, "quantity": qty, "entryPrice": sig.EntryPrice,
		})
	}

	trade, err := e.store.Save(ctx, &domain.Trade{
		SignalID:        sig.ID,
		Symbol:          sig.Ticker,
		DisplaySymbol:   displaySymbol,
		Sector:          sig.Sector,
		EntryPrice:      sig.EntryPrice,
		Quantity:        qty,
		SecurityID:      securityID,
		OrderID:         orderID,
		StopLoss:        sig.StopLoss,
		TargetPrice:     sig.TargetPrice,
		RiskRewardRatio: sig.RiskRewardRatio,
		TradingMode:     cfg.TradingMode,
	})
	if err != nil {
		if cfg.TradingMode == domain.ModeLive {
			e.logger.Error(ctx, err, "LIVE order filled but trade was not recorded", map[string]interface{}{"orderID": orderID, "ticker": sig.Ticker})
		}
		return nil, fmt.Errorf("saving trade: %w", err)
	}

	publish(ctx, e.publisher, e.logger, domain.EventTradeOpened, trade.Symbol, trade, trade.EntryTime)
	return trade, nil
}

// placeMarketOrder sends a DAY market order under the call timeout.
func placeMarketOrder(ctx context.Context, broker ports.BrokerClient, timeout time.Duration, securityID, symbol string, side domain.OrderSide, qty int, tag string) (*ports.OrderResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := broker.PlaceOrder(callCtx, ports.OrderRequest{
		SecurityID:      securityID,
		Symbol:          symbol,
		ExchangeSegment: ExchangeSegment,
		TransactionType: side,
		Quantity:        qty,
		OrderType:       OrderTypeMarket,
		ProductType:     ProductType,
		Validity:        ValidityDay,
		Tag:             tag,
	})
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ports.ErrTimeout) {
			err = fmt.Errorf("%w: %v", ports.ErrTimeout, err)
		}
		return nil, fmt.Errorf("placing %s order: %w", side, err)
	}
	if resp == nil || resp.OrderID == "" {
		return nil, fmt.Errorf("placing %s order: %w: empty order id", side, ports.ErrOrderPlacementFailed)
	}
	return resp, nil
}

// publish sends an event and logs delivery failures.
func publish(ctx context.Context, p ports.EventPublisher, logger ports.Logger, typ domain.EventType, key string, payload interface{}, at time.Time) {
	err := p.Publish(ctx, domain.Event{Type: typ, Time: at, Key: key, Payload: payload})
	if err != nil {
		logger.Warn(ctx, "Event not published", map[string]interface{}{"type": string(typ), "key": key, "error": err.Error()})
	}
}
