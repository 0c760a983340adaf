// Package binanceclient implements the market data and broker ports on the
// Binance USDⓈ-M futures API.
package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"tradingAgent/internal/domain"
	"tradingAgent/internal/ports"
	"tradingAgent/internal/utils"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	maxKlineLimit = 1500
)

// Client implements ports.MarketDataProvider and ports.BrokerClient.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
	quoteAsset    string
	now           func() time.Time

	mu          sync.Mutex
	orderSymbol map[int64]string // order id -> symbol, needed to cancel
}

var (
	_ ports.MarketDataProvider = (*Client)(nil)
	_ ports.BrokerClient       = (*Client)(nil)
)

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	BaseURL    string // overrides the production/testnet URL when set
	QuoteAsset string // balance asset reported as available funds, default USDT
	HTTPClient *http.Client
	Logger     ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	if cfg.HTTPClient != nil {
		client.HTTPClient = cfg.HTTPClient
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL})

	quote := cfg.QuoteAsset
	if quote == "" {
		quote = "USDT"
	}
	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
		quoteAsset:    quote,
		now:           time.Now,
		orderSymbol:   make(map[int64]string),
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022, -2014, -2015: // Bad signature, API-key format, key/IP permissions
			mappedErr = ports.ErrAuthenticationFailed
		case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130,
			-4003, -4014, -4015: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2010, -2022: // New order rejected, ReduceOnly rejected
			mappedErr = ports.ErrOrderPlacementFailed
		case -2011: // Cancel order rejected
			mappedErr = ports.ErrOrderCancelFailed
		case -2013: // Order does not exist
			mappedErr = ports.ErrOrderNotFound
		case -2019, -3005, -3041, -4047: // Margin or balance insufficient
			mappedErr = ports.ErrInsufficientFunds
		default:
			mappedErr = ports.ErrUnknown
		}
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// --- MarketDataProvider ---

// History returns bars for symbol covering period, oldest first.
func (c *Client) History(ctx context.Context, symbol, period, interval string) ([]*domain.Kline, error) {
	const op = "History"
	end := c.now()
	start, err := utils.PeriodStart(end, period)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ports.ErrInvalidRequest, err)
	}
	klines, err := c.GetKlinesRange(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, err
	}
	if len(klines) == 0 {
		return nil, fmt.Errorf("%s %s: %w", op, symbol, ports.ErrNoMarketData)
	}
	return klines, nil
}

// GetKlinesRange fetches all klines for a symbol/interval between start and end time.
func (c *Client) GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Kline, error) {
	op := "GetKlinesRange"
	var allKlines []*domain.Kline
	from := start

	for {
		klines, err := c.futuresClient.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(from.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(maxKlineLimit).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}
		for _, bk := range klines {
			dk, err := translateBinanceKline(bk, symbol, interval)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline range: %w", err), op)
			}
			allKlines = append(allKlines, dk)
		}
		last := klines[len(klines)-1]
		from = time.UnixMilli(last.CloseTime + 1)
		if from.After(end) || len(klines) < maxKlineLimit {
			break
		}
	}

	return allKlines, nil
}

// --- BrokerClient ---

// GetFundLimits reports the quote asset's balances.
func (c *Client) GetFundLimits(ctx context.Context) (*ports.FundLimits, error) {
	op := "GetFundLimits"
	account, err := c.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	for _, bal := range account.Assets {
		if bal.Asset != c.quoteAsset {
			continue
		}
		available, err := strconv.ParseFloat(bal.AvailableBalance, 64)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("could not parse balance '%s' for asset %s: %w", bal.AvailableBalance, c.quoteAsset, err), op)
		}
		wallet, _ := strconv.ParseFloat(bal.WalletBalance, 64)
		withdrawable, _ := strconv.ParseFloat(bal.MaxWithdrawAmount, 64)
		used, _ := strconv.ParseFloat(bal.InitialMargin, 64)
		return &ports.FundLimits{
			AvailableBalance:    available,
			SodLimit:            wallet,
			UtilizedAmount:      used,
			WithdrawableBalance: withdrawable,
		}, nil
	}
	return nil, c.handleError(ctx, fmt.Errorf("asset %s not found in account balance: %w", c.quoteAsset, ports.ErrNotFound), op)
}

// GetHoldings is not meaningful for a futures account.
func (c *Client) GetHoldings(ctx context.Context) ([]ports.Holding, error) {
	return nil, fmt.Errorf("GetHoldings: %w", ports.ErrNotSupported)
}

// GetPositions returns every non-zero futures position.
func (c *Client) GetPositions(ctx context.Context) ([]ports.BrokerPosition, error) {
	op := "GetPositions"
	positions, err := c.futuresClient.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	out := make([]ports.BrokerPosition, 0, len(positions))
	for _, p := range positions {
		if bp, ok := translatePositionRisk(p); ok {
			out = append(out, bp)
		}
	}
	return out, nil
}

// PlaceOrder submits a market or limit order. The security id is the
// Binance symbol; the display symbol is used when it is empty.
func (c *Client) PlaceOrder(ctx context.Context, req ports.OrderRequest) (*ports.OrderResponse, error) {
	op := "PlaceOrder"
	symbol := req.SecurityID
	if symbol == "" {
		symbol = req.Symbol
	}
	if symbol == "" || req.Quantity <= 0 {
		return nil, fmt.Errorf("%s: %w: symbol and positive quantity required", op, ports.ErrInvalidRequest)
	}

	svc := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(req.TransactionType)).
		Quantity(strconv.Itoa(req.Quantity))
	switch strings.ToUpper(req.OrderType) {
	case "", "MARKET":
		svc = svc.Type(futures.OrderTypeMarket)
	case "LIMIT":
		svc = svc.Type(futures.OrderTypeLimit).
			Price(strconv.FormatFloat(req.Price, 'f', -1, 64)).
			TimeInForce(timeInForce(req.Validity))
	default:
		return nil, fmt.Errorf("%s: %w: order type %q", op, ports.ErrNotSupported, req.OrderType)
	}
	if req.Tag != "" {
		svc = svc.NewClientOrderID(req.Tag)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	c.mu.Lock()
	c.orderSymbol[order.OrderID] = symbol
	c.mu.Unlock()

	resp := &ports.OrderResponse{OrderID: strconv.FormatInt(order.OrderID, 10), Status: string(order.Status)}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": symbol, "side": req.TransactionType, "quantity": req.Quantity, "orderID": resp.OrderID, "avgPrice": order.AvgPrice,
	})
	return resp, nil
}

func timeInForce(validity string) futures.TimeInForceType {
	if strings.EqualFold(validity, "IOC") {
		return futures.TimeInForceTypeIOC
	}
	return futures.TimeInForceTypeGTC
}

// CancelOrder cancels an order placed through this client.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*ports.OrderResponse, error) {
	op := "CancelOrder"
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: order id %q", op, ports.ErrInvalidRequest, orderID)
	}
	c.mu.Lock()
	symbol, ok := c.orderSymbol[id]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w: %s", op, ports.ErrOrderNotFound, orderID)
	}

	c.logger.Debug(ctx, "Attempting to cancel order", map[string]interface{}{"symbol": symbol, "orderID": orderID})
	res, err := c.futuresClient.NewCancelOrderService().
		Symbol(symbol).
		OrderID(id).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	c.mu.Lock()
	delete(c.orderSymbol, id)
	c.mu.Unlock()

	resp := &ports.OrderResponse{OrderID: orderID, Status: string(res.Status)}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "orderID": orderID, "status": resp.Status})
	return resp, nil
}

// ModifyOrder is not offered; cancel and place again instead.
func (c *Client) ModifyOrder(ctx context.Context, orderID string, req ports.ModifyOrderRequest) (*ports.OrderResponse, error) {
	return nil, fmt.Errorf("ModifyOrder: %w", ports.ErrNotSupported)
}

// --- Translation Helpers ---

func translatePositionRisk(pos *futures.PositionRisk) (ports.BrokerPosition, bool) {
	if pos == nil {
		return ports.BrokerPosition{}, false
	}
	posAmt, _ := strconv.ParseFloat(pos.PositionAmt, 64)
	if posAmt == 0 {
		return ports.BrokerPosition{}, false
	}
	entryPrice, _ := strconv.ParseFloat(pos.EntryPrice, 64)
	unProfit, _ := strconv.ParseFloat(pos.UnRealizedProfit, 64)
	bp := ports.BrokerPosition{
		Symbol:        pos.Symbol,
		SecurityID:    pos.Symbol,
		ProductType:   pos.MarginType,
		NetQuantity:   posAmt,
		UnrealizedPnL: unProfit,
	}
	if posAmt > 0 {
		bp.BuyAvg = entryPrice
	} else {
		bp.SellAvg = entryPrice
	}
	return bp, true
}

func translateBinanceKline(bk *futures.Kline, symbol, interval string) (*domain.Kline, error) {
	if bk == nil {
		return nil, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return &domain.Kline{
		OpenTime:  time.UnixMilli(bk.OpenTime),
		CloseTime: time.UnixMilli(bk.CloseTime),
		Symbol:    symbol,
		Interval:  interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
	}, nil
}
