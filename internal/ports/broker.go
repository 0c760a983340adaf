package ports

import (
	"context"

	"tradingAgent/internal/domain"
)

// FundLimits is the broker's view of available trading funds.
type FundLimits struct {
	AvailableBalance    float64
	SodLimit            float64 // start-of-day limit
	UtilizedAmount      float64
	WithdrawableBalance float64
}

// Holding is a delivery holding in the account.
type Holding struct {
	Symbol       string
	SecurityID   string
	Quantity     int
	AvgCostPrice float64
	LastPrice    float64
}

// BrokerPosition is an open intraday or carried position at the broker.
type BrokerPosition struct {
	Symbol        string
	SecurityID    string
	ProductType   string
	NetQuantity   float64
	BuyAvg        float64
	SellAvg       float64
	RealizedPnL   float64
	UnrealizedPnL float64
}

// OrderRequest describes an order to submit.
type OrderRequest struct {
	SecurityID      string
	Symbol          string // display symbol, used by venues that route by name
	ExchangeSegment string // e.g. "NSE_EQ"
	TransactionType domain.OrderSide
	Quantity        int
	OrderType       string // "MARKET", "LIMIT"
	ProductType     string // "INTRADAY", "CNC"
	Price           float64
	TriggerPrice    float64
	Validity        string // "DAY", "IOC"
	Tag             string
}

// ModifyOrderRequest changes an open order. Zero fields are left as is.
type ModifyOrderRequest struct {
	OrderType    string
	Quantity     int
	Price        float64
	TriggerPrice float64
	Validity     string
}

// OrderResponse is the broker's acknowledgement of an order operation.
type OrderResponse struct {
	OrderID string
	Status  string
	Message string
}

// BrokerClient is the brokerage collaborator. Implementations return an error
// wrapping one of the package sentinels when the broker reports a failure.
type BrokerClient interface {
	GetFundLimits(ctx context.Context) (*FundLimits, error)
	GetHoldings(ctx context.Context) ([]Holding, error)
	GetPositions(ctx context.Context) ([]BrokerPosition, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)
	CancelOrder(ctx context.Context, orderID string) (*OrderResponse, error)
	ModifyOrder(ctx context.Context, orderID string, req ModifyOrderRequest) (*OrderResponse, error)
}
