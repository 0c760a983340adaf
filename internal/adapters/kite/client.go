// Package kite implements the market data and broker ports on Zerodha Kite
// Connect for NSE equities.
package kite

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"tradingAgent/internal/domain"
	"tradingAgent/internal/ports"
	"tradingAgent/internal/utils"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

const (
	defaultExchange     = kiteconnect.ExchangeNSE
	defaultTickerSuffix = ".NS"
	defaultHTTPTimeout  = 15 * time.Second
)

// Config holds the Kite adapter settings.
type Config struct {
	APIKey       string
	AccessToken  string
	BaseURI      string // overrides the Kite API root when set
	Exchange     string // default NSE
	TickerSuffix string // stripped from tickers to get the tradingsymbol, default ".NS"
	HTTPClient   *http.Client
	// InstrumentTokens seeds the tradingsymbol -> token map. Symbols not found
	// here are looked up in the exchange instrument dump on first use.
	InstrumentTokens map[string]int
	Logger           ports.Logger
}

// Client implements ports.MarketDataProvider and ports.BrokerClient.
type Client struct {
	kc       *kiteconnect.Client
	logger   ports.Logger
	exchange string
	suffix   string
	now      func() time.Time

	mu         sync.Mutex
	tokens     map[string]int
	dumpLoaded bool
}

var (
	_ ports.MarketDataProvider = (*Client)(nil)
	_ ports.BrokerClient       = (*Client)(nil)
)

// New creates a Kite client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Kite client")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: Kite API key is required", ports.ErrConfigurationError)
	}
	if cfg.AccessToken == "" {
		cfg.Logger.Warn(context.Background(), "Kite access token is empty. Authenticated calls will fail.")
	}

	kc := kiteconnect.New(cfg.APIKey)
	kc.SetAccessToken(cfg.AccessToken)
	if cfg.BaseURI != "" {
		kc.SetBaseURI(cfg.BaseURI)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	kc.SetHTTPClient(httpClient)

	exchange := cfg.Exchange
	if exchange == "" {
		exchange = defaultExchange
	}
	suffix := cfg.TickerSuffix
	if suffix == "" {
		suffix = defaultTickerSuffix
	}
	tokens := make(map[string]int, len(cfg.InstrumentTokens))
	for sym, tok := range cfg.InstrumentTokens {
		tokens[sym] = tok
	}

	cfg.Logger.Info(context.Background(), "Kite client configured", map[string]interface{}{"exchange": exchange})
	return &Client{
		kc:       kc,
		logger:   cfg.Logger,
		exchange: exchange,
		suffix:   suffix,
		now:      time.Now,
		tokens:   tokens,
	}, nil
}

// call runs a blocking Kite request and gives up when ctx is done. The
// library has no context support, so an abandoned request finishes in the
// background and its result is dropped.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}

// handleError translates Kite errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var finalErr error
	if kerr, ok := asKiteError(err); ok {
		fields["errorType"] = kerr.ErrorType
		fields["code"] = kerr.Code
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, mapKiteError(kerr, operation), err)
	} else {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
		case errors.Is(err, context.Canceled):
			finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
		default:
			finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
		}
	}
	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

func asKiteError(err error) (kiteconnect.Error, bool) {
	var kerr kiteconnect.Error
	if errors.As(err, &kerr) {
		return kerr, true
	}
	var kerrPtr *kiteconnect.Error
	if errors.As(err, &kerrPtr) && kerrPtr != nil {
		return *kerrPtr, true
	}
	return kiteconnect.Error{}, false
}

func mapKiteError(kerr kiteconnect.Error, operation string) error {
	if kerr.Code == http.StatusTooManyRequests || strings.Contains(strings.ToLower(kerr.Message), "too many requests") {
		return ports.ErrRateLimited
	}
	switch kerr.ErrorType {
	case kiteconnect.TokenError, kiteconnect.PermissionError, kiteconnect.TwoFAError, kiteconnect.UserError:
		return ports.ErrAuthenticationFailed
	case kiteconnect.InputError:
		if strings.Contains(strings.ToLower(kerr.Message), "margin") {
			return ports.ErrInsufficientFunds
		}
		return ports.ErrInvalidRequest
	case kiteconnect.OrderError:
		switch operation {
		case "CancelOrder":
			return ports.ErrOrderCancelFailed
		case "ModifyOrder":
			return ports.ErrOrderNotFound
		}
		return ports.ErrOrderPlacementFailed
	case kiteconnect.NetworkError:
		return ports.ErrConnectionFailed
	case kiteconnect.DataError:
		return ports.ErrBrokerUnavailable
	}
	return ports.ErrUnknown
}

// tradingSymbol converts an agent ticker ("INFY.NS") into Kite's form ("INFY").
func (c *Client) tradingSymbol(ticker string) string {
	return strings.TrimSuffix(strings.ToUpper(ticker), strings.ToUpper(c.suffix))
}

// instrumentToken resolves a tradingsymbol, loading the exchange dump once.
func (c *Client) instrumentToken(ctx context.Context, symbol string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tok, ok := c.tokens[symbol]; ok {
		return tok, nil
	}
	if !c.dumpLoaded {
		instruments, err := call(ctx, func() (kiteconnect.Instruments, error) {
			return c.kc.GetInstrumentsByExchange(c.exchange)
		})
		if err != nil {
			return 0, c.handleError(ctx, err, "GetInstruments")
		}
		for _, in := range instruments {
			if _, seen := c.tokens[in.Tradingsymbol]; !seen {
				c.tokens[in.Tradingsymbol] = in.InstrumentToken
			}
		}
		c.dumpLoaded = true
		c.logger.Debug(ctx, "Loaded instrument dump", map[string]interface{}{"exchange": c.exchange, "count": len(instruments)})
	}
	tok, ok := c.tokens[symbol]
	if !ok {
		return 0, fmt.Errorf("instrument %s on %s: %w", symbol, c.exchange, ports.ErrUnmappedSecurity)
	}
	return tok, nil
}

// --- MarketDataProvider ---

// kiteInterval maps bar sizes to Kite interval names and the widest range a
// single historical request may span.
func kiteInterval(interval string) (string, time.Duration, error) {
	day := 24 * time.Hour
	switch interval {
	case "1m":
		return "minute", 60 * day, nil
	case "3m":
		return "3minute", 100 * day, nil
	case "5m":
		return "5minute", 100 * day, nil
	case "10m":
		return "10minute", 100 * day, nil
	case "15m":
		return "15minute", 200 * day, nil
	case "30m":
		return "30minute", 200 * day, nil
	case "1h", "60m":
		return "60minute", 400 * day, nil
	case "1d":
		return "day", 2000 * day, nil
	}
	return "", 0, fmt.Errorf("unsupported interval %q", interval)
}

// History returns bars for ticker covering period, oldest first.
func (c *Client) History(ctx context.Context, ticker, period, interval string) ([]*domain.Kline, error) {
	const op = "History"
	name, maxSpan, err := kiteInterval(interval)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ports.ErrInvalidRequest, err)
	}
	end := c.now()
	start, err := utils.PeriodStart(end, period)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ports.ErrInvalidRequest, err)
	}
	token, err := c.instrumentToken(ctx, c.tradingSymbol(ticker))
	if err != nil {
		return nil, err
	}
	step, _ := utils.IntervalDuration(interval)

	var out []*domain.Kline
	for from := start; from.Before(end); from = from.Add(maxSpan) {
		to := from.Add(maxSpan)
		if to.After(end) {
			to = end
		}
		candles, err := call(ctx, func() ([]kiteconnect.HistoricalData, error) {
			return c.kc.GetHistoricalData(token, name, from, to, false, false)
		})
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		for _, cd := range candles {
			out = append(out, &domain.Kline{
				OpenTime:  cd.Date.Time,
				CloseTime: cd.Date.Time.Add(step),
				Symbol:    ticker,
				Interval:  interval,
				Open:      cd.Open,
				High:      cd.High,
				Low:       cd.Low,
				Close:     cd.Close,
				Volume:    float64(cd.Volume),
			})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s %s: %w", op, ticker, ports.ErrNoMarketData)
	}
	return out, nil
}

// --- BrokerClient ---

// GetFundLimits reports the equity segment margins.
func (c *Client) GetFundLimits(ctx context.Context) (*ports.FundLimits, error) {
	const op = "GetFundLimits"
	margins, err := call(ctx, c.kc.GetUserMargins)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	eq := margins.Equity
	return &ports.FundLimits{
		AvailableBalance:    eq.Net,
		SodLimit:            eq.Available.OpeningBalance,
		UtilizedAmount:      eq.Used.Debits,
		WithdrawableBalance: eq.Available.LiveBalance,
	}, nil
}

// GetHoldings returns delivery holdings.
func (c *Client) GetHoldings(ctx context.Context) ([]ports.Holding, error) {
	const op = "GetHoldings"
	holdings, err := call(ctx, c.kc.GetHoldings)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	out := make([]ports.Holding, 0, len(holdings))
	for _, h := range holdings {
		out = append(out, ports.Holding{
			Symbol:       h.Tradingsymbol,
			SecurityID:   fmt.Sprint(h.InstrumentToken),
			Quantity:     h.Quantity,
			AvgCostPrice: h.AveragePrice,
			LastPrice:    h.LastPrice,
		})
	}
	return out, nil
}

// GetPositions returns the non-flat net positions.
func (c *Client) GetPositions(ctx context.Context) ([]ports.BrokerPosition, error) {
	const op = "GetPositions"
	positions, err := call(ctx, c.kc.GetPositions)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	out := make([]ports.BrokerPosition, 0, len(positions.Net))
	for _, p := range positions.Net {
		if p.Quantity == 0 {
			continue
		}
		out = append(out, ports.BrokerPosition{
			Symbol:        p.Tradingsymbol,
			SecurityID:    fmt.Sprint(p.InstrumentToken),
			ProductType:   p.Product,
			NetQuantity:   float64(p.Quantity),
			BuyAvg:        p.BuyPrice,
			SellAvg:       p.SellPrice,
			RealizedPnL:   p.Realised,
			UnrealizedPnL: p.Unrealised,
		})
	}
	return out, nil
}

// PlaceOrder submits a regular order. Kite routes by tradingsymbol, so the
// display symbol is used and the security id is only a fallback.
func (c *Client) PlaceOrder(ctx context.Context, req ports.OrderRequest) (*ports.OrderResponse, error) {
	const op = "PlaceOrder"
	symbol := req.Symbol
	if symbol == "" {
		symbol = req.SecurityID
	}
	if symbol == "" || req.Quantity <= 0 {
		return nil, fmt.Errorf("%s: %w: symbol and positive quantity required", op, ports.ErrInvalidRequest)
	}
	params := kiteconnect.OrderParams{
		Exchange:        exchangeFor(req.ExchangeSegment, c.exchange),
		Tradingsymbol:   c.tradingSymbol(symbol),
		TransactionType: string(req.TransactionType),
		Quantity:        req.Quantity,
		OrderType:       orderType(req.OrderType),
		Product:         product(req.ProductType),
		Validity:        validity(req.Validity),
		Price:           req.Price,
		TriggerPrice:    req.TriggerPrice,
		Tag:             req.Tag,
	}
	res, err := call(ctx, func() (kiteconnect.OrderResponse, error) {
		return c.kc.PlaceOrder(kiteconnect.VarietyRegular, params)
	})
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": params.Tradingsymbol, "side": req.TransactionType, "quantity": req.Quantity, "orderID": res.OrderID,
	})
	return &ports.OrderResponse{OrderID: res.OrderID, Status: "PLACED"}, nil
}

// CancelOrder cancels a regular order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*ports.OrderResponse, error) {
	const op = "CancelOrder"
	if orderID == "" {
		return nil, fmt.Errorf("%s: %w: order id required", op, ports.ErrInvalidRequest)
	}
	res, err := call(ctx, func() (kiteconnect.OrderResponse, error) {
		return c.kc.CancelOrder(kiteconnect.VarietyRegular, orderID, nil)
	})
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"orderID": res.OrderID})
	return &ports.OrderResponse{OrderID: res.OrderID, Status: "CANCELLED"}, nil
}

// ModifyOrder changes price, quantity or type of an open regular order.
func (c *Client) ModifyOrder(ctx context.Context, orderID string, req ports.ModifyOrderRequest) (*ports.OrderResponse, error) {
	const op = "ModifyOrder"
	if orderID == "" {
		return nil, fmt.Errorf("%s: %w: order id required", op, ports.ErrInvalidRequest)
	}
	params := kiteconnect.OrderParams{
		Quantity:     req.Quantity,
		Price:        req.Price,
		TriggerPrice: req.TriggerPrice,
	}
	if req.OrderType != "" {
		params.OrderType = orderType(req.OrderType)
	}
	if req.Validity != "" {
		params.Validity = validity(req.Validity)
	}
	res, err := call(ctx, func() (kiteconnect.OrderResponse, error) {
		return c.kc.ModifyOrder(kiteconnect.VarietyRegular, orderID, params)
	})
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"orderID": res.OrderID})
	return &ports.OrderResponse{OrderID: res.OrderID, Status: "MODIFIED"}, nil
}

// --- Translation Helpers ---

func exchangeFor(segment, fallback string) string {
	switch strings.ToUpper(segment) {
	case "NSE_EQ":
		return kiteconnect.ExchangeNSE
	case "BSE_EQ":
		return kiteconnect.ExchangeBSE
	case "":
		return fallback
	}
	return segment
}

func product(p string) string {
	switch strings.ToUpper(p) {
	case "", "INTRADAY":
		return kiteconnect.ProductMIS
	case "CNC", "DELIVERY":
		return kiteconnect.ProductCNC
	}
	return strings.ToUpper(p)
}

func orderType(t string) string {
	if t == "" {
		return kiteconnect.OrderTypeMarket
	}
	return strings.ToUpper(t)
}

func validity(v string) string {
	if v == "" {
		return kiteconnect.ValidityDay
	}
	return strings.ToUpper(v)
}
