// Package jsonstore implements ports.TradeStore on a single JSON file.
package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradingAgent/internal/domain"
	"tradingAgent/internal/ports"
	"tradingAgent/internal/strategy/analytics"
)

// maxIDAttempts bounds how often Save draws a new id on collision.
const maxIDAttempts = 10

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLocation sets the timezone that defines "today".
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.loc = loc }
}

// WithIDGenerator overrides the trade id source.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// Store keeps every trade in memory and rewrites the whole file after each
// change. One mutex spans mutation and persistence.
type Store struct {
	path   string
	logger ports.Logger

	mu     sync.Mutex
	trades []*domain.Trade
	byID   map[string]*domain.Trade
	open   map[string]*domain.Trade

	now   func() time.Time
	loc   *time.Location
	newID func() string
}

var _ ports.TradeStore = (*Store)(nil)

// Open loads the trade file at path. A missing file is an empty store; a
// file that cannot be parsed is an error wrapping ports.ErrStoreCorrupt and
// is left untouched.
func Open(path string, logger ports.Logger, opts ...Option) (*Store, error) {
	s := &Store{
		path:   path,
		logger: logger,
		byID:   make(map[string]*domain.Trade),
		open:   make(map[string]*domain.Trade),
		now:    time.Now,
		loc:    time.Local,
		newID:  func() string { return uuid.NewString()[:8] },
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info(context.Background(), "Trade file not found, starting empty", map[string]interface{}{"path": path})
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("reading trade file %s: %w", path, err)
	}

	var trades []*domain.Trade
	if len(data) > 0 {
		if err := json.Unmarshal(data, &trades); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ports.ErrStoreCorrupt, path, err)
		}
	}
	for _, t := range trades {
		if t == nil || t.TradeID == "" {
			return nil, fmt.Errorf("%w: %s: trade without id", ports.ErrStoreCorrupt, path)
		}
		if _, dup := s.byID[t.TradeID]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate trade id %s", ports.ErrStoreCorrupt, path, t.TradeID)
		}
		s.index(t)
	}
	s.trades = trades
	logger.Info(context.Background(), "Trade store loaded", map[string]interface{}{
		"path": path, "trades": len(trades), "open": len(s.open),
	})
	return s, nil
}

func (s *Store) index(t *domain.Trade) {
	s.byID[t.TradeID] = t
	if t.IsOpen() {
		s.open[t.TradeID] = t
	} else {
		delete(s.open, t.TradeID)
	}
}

// persist writes all trades to a temp file and renames it over the target.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.trades, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding trades: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing trade file: %w", err)
	}
	return nil
}

// Save stores a new OPEN trade with a fresh id.
func (s *Store) Save(ctx context.Context, trade *domain.Trade) (*domain.Trade, error) {
	const op = "Save"
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t := trade.Clone()
	t.Status = domain.TradeOpen
	t.ExitPrice, t.ExitTime, t.PnL, t.PnLPercent = nil, nil, nil, nil
	t.ExitReason = ""
	if t.EntryTime.IsZero() {
		t.EntryTime = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t.TradeID = ""
	for i := 0; i < maxIDAttempts; i++ {
		if id := s.newID(); s.byID[id] == nil {
			t.TradeID = id
			break
		}
	}
	if t.TradeID == "" {
		return nil, fmt.Errorf("%s: %w: no unused trade id after %d attempts", op, ports.ErrUpdateFailed, maxIDAttempts)
	}

	s.trades = append(s.trades, t)
	s.index(t)
	if err := s.persist(); err != nil {
		s.trades = s.trades[:len(s.trades)-1]
		delete(s.byID, t.TradeID)
		delete(s.open, t.TradeID)
		return nil, fmt.Errorf("%s: %w: %v", op, ports.ErrUpdateFailed, err)
	}
	s.logger.Debug(ctx, "Trade saved", map[string]interface{}{"tradeID": t.TradeID, "symbol": t.Symbol})
	return t.Clone(), nil
}

// replace swaps the stored trade for next and persists, restoring the
// previous value if the write fails. Caller holds mu.
func (s *Store) replace(prev, next *domain.Trade) error {
	pos := -1
	for i, t := range s.trades {
		if t == prev {
			pos = i
			break
		}
	}
	if pos < 0 {
		return fmt.Errorf("trade %s missing from list: %w", prev.TradeID, ports.ErrStoreCorrupt)
	}
	s.trades[pos] = next
	s.index(next)
	if err := s.persist(); err != nil {
		s.trades[pos] = prev
		s.index(prev)
		return err
	}
	return nil
}

// Update applies mutate to a copy of the trade and persists it. The trade id
// cannot be changed.
func (s *Store) Update(ctx context.Context, tradeID string, mutate func(*domain.Trade)) (*domain.Trade, error) {
	const op = "Update"
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.byID[tradeID]
	if !ok {
		return nil, fmt.Errorf("%s: trade %s: %w", op, tradeID, ports.ErrNotFound)
	}
	next := prev.Clone()
	mutate(next)
	next.TradeID = tradeID
	if err := s.replace(prev, next); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ports.ErrUpdateFailed, err)
	}
	return next.Clone(), nil
}

// Close closes an OPEN trade at exitPrice. A trade that is unknown or
// already closed is left untouched and ports.ErrTradeNotOpen is returned.
func (s *Store) Close(ctx context.Context, tradeID string, exitPrice float64, reason domain.ExitReason) (*domain.Trade, error) {
	const op = "Close"
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.open[tradeID]
	if !ok {
		return nil, fmt.Errorf("%s: trade %s: %w", op, tradeID, ports.ErrTradeNotOpen)
	}
	next := prev.Clone()
	next.CloseAt(exitPrice, reason, s.now())
	if err := s.replace(prev, next); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ports.ErrUpdateFailed, err)
	}
	s.logger.Info(ctx, "Trade closed", map[string]interface{}{
		"tradeID": tradeID, "reason": reason, "exitPrice": *next.ExitPrice, "pnl": *next.PnL,
	})
	return next.Clone(), nil
}

// GetOpen returns open trades in entry order.
func (s *Store) GetOpen(ctx context.Context) ([]*domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Trade, 0, len(s.open))
	for _, t := range s.trades {
		if _, ok := s.open[t.TradeID]; ok {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

// GetAll returns up to limit trades, newest entry first.
func (s *Store) GetAll(ctx context.Context, limit int) ([]*domain.Trade, error) {
	s.mu.Lock()
	out := s.filter(func(*domain.Trade) bool { return true })
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].EntryTime.After(out[j].EntryTime) })
	return truncate(out, limit), nil
}

// GetClosed returns up to limit closed trades, newest exit first.
func (s *Store) GetClosed(ctx context.Context, limit int) ([]*domain.Trade, error) {
	s.mu.Lock()
	out := s.filter(func(t *domain.Trade) bool { return !t.IsOpen() })
	s.mu.Unlock()
	sortByExitDesc(out)
	return truncate(out, limit), nil
}

// GetByDateRange returns closed trades whose exit time is within the last days.
func (s *Store) GetByDateRange(ctx context.Context, days int) ([]*domain.Trade, error) {
	cutoff := s.now().AddDate(0, 0, -days)
	s.mu.Lock()
	out := s.filter(func(t *domain.Trade) bool {
		return !t.IsOpen() && !exitTime(t).Before(cutoff)
	})
	s.mu.Unlock()
	sortByExitDesc(out)
	return out, nil
}

// GetTodayCount counts trades whose entry date is today in the store's location.
func (s *Store) GetTodayCount(ctx context.Context) (int, error) {
	y, m, d := s.now().In(s.loc).Date()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.trades {
		ty, tm, td := t.EntryTime.In(s.loc).Date()
		if ty == y && tm == m && td == d {
			n++
		}
	}
	return n, nil
}

// Summary computes statistics over closed trades.
func (s *Store) Summary(ctx context.Context) (*domain.TradeSummary, error) {
	s.mu.Lock()
	closed := s.filter(func(t *domain.Trade) bool { return !t.IsOpen() })
	openCount := len(s.open)
	s.mu.Unlock()
	return analytics.Summarize(closed, openCount), nil
}

// ClearAll deletes every trade.
func (s *Store) ClearAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prevTrades, prevByID, prevOpen := s.trades, s.byID, s.open
	s.trades = []*domain.Trade{}
	s.byID = make(map[string]*domain.Trade)
	s.open = make(map[string]*domain.Trade)
	if err := s.persist(); err != nil {
		s.trades, s.byID, s.open = prevTrades, prevByID, prevOpen
		return fmt.Errorf("ClearAll: %w: %v", ports.ErrUpdateFailed, err)
	}
	s.logger.Warn(ctx, "All trades cleared", map[string]interface{}{"removed": len(prevTrades)})
	return nil
}

// filter returns clones of matching trades. Caller holds mu.
func (s *Store) filter(keep func(*domain.Trade) bool) []*domain.Trade {
	var out []*domain.Trade
	for _, t := range s.trades {
		if keep(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

func sortByExitDesc(trades []*domain.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		return exitTime(trades[i]).After(exitTime(trades[j]))
	})
}

func exitTime(t *domain.Trade) time.Time {
	if t.ExitTime == nil {
		return time.Time{}
	}
	return *t.ExitTime
}

func truncate(trades []*domain.Trade, limit int) []*domain.Trade {
	if limit > 0 && len(trades) > limit {
		return trades[:limit]
	}
	return trades
}
