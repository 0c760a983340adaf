package ports

import "errors"

// Standard application-level errors.
// Adapters wrap infrastructure errors with one of these so callers can use errors.Is.
var (
	// General
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")
	ErrNotSupported       = errors.New("operation not supported by this adapter")

	// Agent
	ErrAgentInactive = errors.New("agent is inactive")

	// Broker and market data
	ErrBrokerUnavailable    = errors.New("broker is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the broker")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("broker authentication failed (check credentials)")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderNotFound        = errors.New("order not found at the broker")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrOrderCancelFailed    = errors.New("failed to cancel order")
	ErrUnmappedSecurity     = errors.New("no broker security id for symbol")
	ErrNoMarketData         = errors.New("no market data returned")

	// Trade store
	ErrTradeNotOpen = errors.New("trade not found or not open")
	ErrStoreCorrupt = errors.New("trade store is corrupt")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)
