package ports

import (
	"context"

	"tradingAgent/internal/domain"
)

// SignalScanner produces ranked signals for the current configuration.
// An error means the whole scan was aborted; per-symbol failures are
// reported in ScanResult.Skipped.
type SignalScanner interface {
	Scan(ctx context.Context, cfg domain.AgentConfig) (*domain.ScanResult, error)
}
