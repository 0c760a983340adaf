// Package csvfeed serves market data from CSV files written by fetch_klines.
package csvfeed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tradingAgent/internal/domain"
	"tradingAgent/internal/ports"
	"tradingAgent/internal/utils"
)

// FileName is the file a symbol/interval series is stored in.
func FileName(symbol, interval string) string {
	return fmt.Sprintf("%s_%s.csv", symbol, interval)
}

// Option configures a Feed.
type Option func(*Feed)

// WithClock sets the time periods are measured back from.
func WithClock(now func() time.Time) Option {
	return func(f *Feed) { f.now = now }
}

// AnchorToData measures periods back from each file's last bar instead of
// the clock, so old files can be replayed.
func AnchorToData() Option {
	return func(f *Feed) { f.anchored = true }
}

type cached struct {
	modTime time.Time
	klines  []*domain.Kline
}

// Feed implements ports.MarketDataProvider over a directory of CSV files.
type Feed struct {
	dir      string
	logger   ports.Logger
	now      func() time.Time
	anchored bool

	mu    sync.Mutex
	cache map[string]cached
}

var _ ports.MarketDataProvider = (*Feed)(nil)

// New returns a feed reading from dir.
func New(dir string, logger ports.Logger, opts ...Option) (*Feed, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: csv feed dir: %v", ports.ErrConfigurationError, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: csv feed path %s is not a directory", ports.ErrConfigurationError, dir)
	}
	f := &Feed{dir: dir, logger: logger, now: time.Now, cache: make(map[string]cached)}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// History returns the bars of symbol's file that fall inside period.
func (f *Feed) History(ctx context.Context, symbol, period, interval string) ([]*domain.Kline, error) {
	const op = "History"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ports.ErrContextCanceled, err)
	}
	all, err := f.load(FileName(symbol, interval))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s %s: %w", op, symbol, ports.ErrNoMarketData)
		}
		f.logger.Error(ctx, err, "Failed to read kline file", map[string]interface{}{"symbol": symbol, "interval": interval})
		return nil, fmt.Errorf("%s %s: %w", op, symbol, err)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%s %s: %w", op, symbol, ports.ErrNoMarketData)
	}

	end := f.now()
	if f.anchored {
		end = all[len(all)-1].OpenTime
	}
	start, err := utils.PeriodStart(end, period)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ports.ErrInvalidRequest, err)
	}
	out := make([]*domain.Kline, 0, len(all))
	for _, k := range all {
		if k.OpenTime.Before(start) || k.OpenTime.After(end) {
			continue
		}
		kc := *k
		out = append(out, &kc)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s %s: %w", op, symbol, ports.ErrNoMarketData)
	}
	return out, nil
}

// load reads a file, reusing the previous parse while its mtime is unchanged.
func (f *Feed) load(name string) ([]*domain.Kline, error) {
	path := filepath.Join(f.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.cache[path]; ok && c.modTime.Equal(info.ModTime()) {
		return c.klines, nil
	}
	klines, err := utils.ReadKlinesFromCSV(path)
	if err != nil {
		return nil, err
	}
	f.cache[path] = cached{modTime: info.ModTime(), klines: klines}
	return klines, nil
}
