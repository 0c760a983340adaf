package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"tradingAgent/internal/domain"
	"tradingAgent/internal/ports"
	"tradingAgent/internal/strategy/analytics"
)

// Repository implements ports.TradeStore using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
	now    func() time.Time
	loc    *time.Location
	newID  func() string
}

var _ ports.TradeStore = (*Repository)(nil)

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath   string
	Logger   ports.Logger
	Location *time.Location   // defines "today", default time.Local
	Now      func() time.Time // default time.Now
	NewID    func() string    // default 8 hex chars of a UUID
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trades.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// One connection serialises every read-modify-write.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger, now: cfg.Now, loc: cfg.Location, newID: cfg.NewID}
	if repo.now == nil {
		repo.now = time.Now
	}
	if repo.loc == nil {
		repo.loc = time.Local
	}
	if repo.newID == nil {
		repo.newID = func() string { return uuid.NewString()[:8] }
	}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite trade store ready", map[string]interface{}{"path": dbPath})
	return repo, nil
}

// initializeSchema creates tables if they don't exist. Times are stored as
// unix nanoseconds so ordering and range checks are numeric.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		trade_id TEXT PRIMARY KEY,
		signal_id TEXT NOT NULL DEFAULT '',
		symbol TEXT NOT NULL,
		display_symbol TEXT NOT NULL DEFAULT '',
		sector TEXT NOT NULL DEFAULT '',
		entry_price REAL NOT NULL,
		quantity INTEGER NOT NULL,
		security_id TEXT NOT NULL DEFAULT '',
		order_id TEXT NOT NULL DEFAULT '',
		stop_loss REAL NOT NULL,
		target_price REAL NOT NULL,
		risk_reward_ratio REAL NOT NULL DEFAULT 0,
		trading_mode TEXT NOT NULL,
		entry_time INTEGER NOT NULL,
		status TEXT NOT NULL,
		exit_price REAL DEFAULT NULL,
		exit_time INTEGER DEFAULT NULL,
		exit_reason TEXT NOT NULL DEFAULT '',
		pnl REAL DEFAULT NULL,
		pnl_percent REAL DEFAULT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_status ON trades (status);
	CREATE INDEX IF NOT EXISTS idx_trades_entry_time ON trades (entry_time);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Shutdown closes the database connection.
func (r *Repository) Shutdown() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

const tradeColumns = `trade_id, signal_id, symbol, display_symbol, sector, entry_price, quantity,
	security_id, order_id, stop_loss, target_price, risk_reward_ratio, trading_mode,
	entry_time, status, exit_price, exit_time, exit_reason, pnl, pnl_percent`

// Save inserts a new OPEN trade with a fresh id.
func (r *Repository) Save(ctx context.Context, trade *domain.Trade) (*domain.Trade, error) {
	t := trade.Clone()
	t.TradeID = r.newID()
	t.Status = domain.TradeOpen
	t.ExitPrice, t.ExitTime, t.PnL, t.PnLPercent = nil, nil, nil, nil
	t.ExitReason = ""
	if t.EntryTime.IsZero() {
		t.EntryTime = r.now()
	}

	query := `INSERT INTO trades (` + tradeColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, tradeArgs(t)...); err != nil {
		return nil, fmt.Errorf("failed to insert trade for symbol %s: %w: %v", t.Symbol, ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Trade created", map[string]interface{}{"tradeID": t.TradeID, "symbol": t.Symbol})
	return t, nil
}

func tradeArgs(t *domain.Trade) []interface{} {
	return []interface{}{
		t.TradeID, t.SignalID, t.Symbol, t.DisplaySymbol, t.Sector, t.EntryPrice, t.Quantity,
		t.SecurityID, t.OrderID, t.StopLoss, t.TargetPrice, t.RiskRewardRatio, string(t.TradingMode),
		t.EntryTime.UnixNano(), string(t.Status), nullFloat(t.ExitPrice), nullTime(t.ExitTime),
		string(t.ExitReason), nullFloat(t.PnL), nullFloat(t.PnLPercent),
	}
}

// Update applies mutate to the stored trade inside a transaction.
func (r *Repository) Update(ctx context.Context, tradeID string, mutate func(*domain.Trade)) (*domain.Trade, error) {
	return r.modify(ctx, tradeID, func(t *domain.Trade) error {
		mutate(t)
		return nil
	}, ports.ErrNotFound)
}

// Close closes an OPEN trade. Unknown or closed trades are left untouched.
func (r *Repository) Close(ctx context.Context, tradeID string, exitPrice float64, reason domain.ExitReason) (*domain.Trade, error) {
	t, err := r.modify(ctx, tradeID, func(t *domain.Trade) error {
		if !t.IsOpen() {
			return fmt.Errorf("trade %s: %w", tradeID, ports.ErrTradeNotOpen)
		}
		t.CloseAt(exitPrice, reason, r.now())
		return nil
	}, ports.ErrTradeNotOpen)
	if err != nil {
		return nil, err
	}
	r.logger.Info(ctx, "Trade closed", map[string]interface{}{"tradeID": tradeID, "reason": reason, "pnl": t.PnLValue()})
	return t, nil
}

// modify reads, changes and writes one trade in a transaction. missing is
// returned when the id is unknown.
func (r *Repository) modify(ctx context.Context, tradeID string, change func(*domain.Trade) error, missing error) (*domain.Trade, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w: %v", ports.ErrUpdateFailed, err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE trade_id = ?`, tradeID)
	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trade %s: %w", tradeID, missing)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query trade %s: %w: %v", tradeID, ports.ErrQueryFailed, err)
	}

	if err := change(t); err != nil {
		return nil, err
	}
	t.TradeID = tradeID

	const query = `
	UPDATE trades
	SET trade_id = ?, signal_id = ?, symbol = ?, display_symbol = ?, sector = ?, entry_price = ?,
	    quantity = ?, security_id = ?, order_id = ?, stop_loss = ?, target_price = ?,
	    risk_reward_ratio = ?, trading_mode = ?, entry_time = ?, status = ?, exit_price = ?,
	    exit_time = ?, exit_reason = ?, pnl = ?, pnl_percent = ?
	WHERE trade_id = ?`
	if _, err := tx.ExecContext(ctx, query, append(tradeArgs(t), tradeID)...); err != nil {
		return nil, fmt.Errorf("failed to update trade %s: %w: %v", tradeID, ports.ErrUpdateFailed, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit trade %s: %w: %v", tradeID, ports.ErrUpdateFailed, err)
	}
	return t, nil
}

// GetOpen returns open trades in entry order.
func (r *Repository) GetOpen(ctx context.Context) ([]*domain.Trade, error) {
	return r.query(ctx, `SELECT `+tradeColumns+` FROM trades WHERE status = ? ORDER BY entry_time, rowid`, string(domain.TradeOpen))
}

// GetAll returns up to limit trades, newest entry first.
func (r *Repository) GetAll(ctx context.Context, limit int) ([]*domain.Trade, error) {
	return r.query(ctx, `SELECT `+tradeColumns+` FROM trades ORDER BY entry_time DESC, rowid LIMIT ?`, sqlLimit(limit))
}

// GetClosed returns up to limit closed trades, newest exit first.
func (r *Repository) GetClosed(ctx context.Context, limit int) ([]*domain.Trade, error) {
	return r.query(ctx, `SELECT `+tradeColumns+` FROM trades WHERE status = ? ORDER BY exit_time DESC, rowid LIMIT ?`,
		string(domain.TradeClosed), sqlLimit(limit))
}

// GetByDateRange returns closed trades that exited within the last days.
func (r *Repository) GetByDateRange(ctx context.Context, days int) ([]*domain.Trade, error) {
	cutoff := r.now().AddDate(0, 0, -days).UnixNano()
	return r.query(ctx, `SELECT `+tradeColumns+` FROM trades WHERE status = ? AND exit_time >= ? ORDER BY exit_time DESC, rowid`,
		string(domain.TradeClosed), cutoff)
}

// GetTodayCount counts trades entered on today's date in the configured location.
func (r *Repository) GetTodayCount(ctx context.Context) (int, error) {
	y, m, d := r.now().In(r.loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, r.loc)
	end := start.AddDate(0, 0, 1)

	const query = `SELECT COUNT(*) FROM trades WHERE entry_time >= ? AND entry_time < ?`
	var count int
	if err := r.db.QueryRowContext(ctx, query, start.UnixNano(), end.UnixNano()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count today's trades: %w: %v", ports.ErrQueryFailed, err)
	}
	return count, nil
}

// Summary computes statistics over closed trades in insertion order.
func (r *Repository) Summary(ctx context.Context) (*domain.TradeSummary, error) {
	closed, err := r.query(ctx, `SELECT `+tradeColumns+` FROM trades WHERE status = ? ORDER BY rowid`, string(domain.TradeClosed))
	if err != nil {
		return nil, err
	}
	var open int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades WHERE status = ?`, string(domain.TradeOpen)).Scan(&open); err != nil {
		return nil, fmt.Errorf("failed to count open trades: %w: %v", ports.ErrQueryFailed, err)
	}
	return analytics.Summarize(closed, open), nil
}

// ClearAll deletes every trade.
func (r *Repository) ClearAll(ctx context.Context) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM trades`)
	if err != nil {
		return fmt.Errorf("failed to clear trades: %w: %v", ports.ErrUpdateFailed, err)
	}
	n, _ := res.RowsAffected()
	r.logger.Warn(ctx, "All trades cleared", map[string]interface{}{"removed": n})
	return nil
}

func (r *Repository) query(ctx context.Context, query string, args ...interface{}) ([]*domain.Trade, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w: %v", ports.ErrQueryFailed, err)
		}
		trades = append(trades, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w: %v", ports.ErrQueryFailed, err)
	}
	return trades, nil
}

// sqlLimit maps "no limit" to SQLite's -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var (
		mode, status, reason string
		entryTime            int64
		exitPrice, pnl, pct  sql.NullFloat64
		exitTime             sql.NullInt64
	)
	err := s.Scan(
		&t.TradeID, &t.SignalID, &t.Symbol, &t.DisplaySymbol, &t.Sector, &t.EntryPrice, &t.Quantity,
		&t.SecurityID, &t.OrderID, &t.StopLoss, &t.TargetPrice, &t.RiskRewardRatio, &mode,
		&entryTime, &status, &exitPrice, &exitTime, &reason, &pnl, &pct)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	t.TradingMode = domain.TradingMode(mode)
	t.Status = domain.TradeStatus(status)
	t.ExitReason = domain.ExitReason(reason)
	t.EntryTime = time.Unix(0, entryTime)
	t.ExitPrice = floatPtr(exitPrice)
	t.PnL = floatPtr(pnl)
	t.PnLPercent = floatPtr(pct)
	if exitTime.Valid {
		et := time.Unix(0, exitTime.Int64)
		t.ExitTime = &et
	}
	return t, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v.UnixNano(), Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
