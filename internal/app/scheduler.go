// Package app runs the agent's scan, execute and monitor cycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tradingAgent/internal/agentconfig"
	"tradingAgent/internal/domain"
	"tradingAgent/internal/ports"
	"tradingAgent/internal/signallog"
)

// MinInterval is the shortest allowed scan interval.
const MinInterval = 60 * time.Second

// TradeExecutor opens trades for qualified signals.
type TradeExecutor interface {
	Execute(ctx context.Context, sig domain.LoggedSignal, cfg domain.AgentConfig) (*domain.Trade, error)
}

// PositionMonitor closes open trades.
type PositionMonitor interface {
	CheckExits(ctx context.Context) ([]*domain.Trade, error)
	ForceCloseAll(ctx context.Context) ([]*domain.Trade, error)
}

// SchedulerConfig holds loop timing.
type SchedulerConfig struct {
	InactivePoll time.Duration // wait while the agent is inactive
	ErrorBackoff time.Duration // wait after a failed cycle
	CallTimeout  time.Duration // broker fund limit call
}

// DefaultSchedulerConfig returns the production loop timing.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{InactivePoll: 10 * time.Second, ErrorBackoff: 30 * time.Second, CallTimeout: 10 * time.Second}
}

// Deps are the collaborators of a Scheduler. Broker and Publisher are optional.
type Deps struct {
	Config    *agentconfig.Store
	Scanner   ports.SignalScanner
	SignalLog *signallog.Log
	Executor  TradeExecutor
	Monitor   PositionMonitor
	Trades    ports.TradeStore
	Broker    ports.BrokerClient
	Publisher ports.EventPublisher
	Logger    ports.Logger
	Hours     MarketHours
}

// CycleResult summarises one scan cycle.
type CycleResult struct {
	ScanTime        time.Time         `json:"scan_time"`
	TotalSignals    int               `json:"total_signals"`
	Qualified       int               `json:"qualified"`
	Executed        int               `json:"executed"`
	PositionsClosed int               `json:"positions_closed"`
	Skipped         map[string]string `json:"skipped,omitempty"`
}

// ControlResult is returned by Start and Stop.
type ControlResult struct {
	Status          string `json:"status"` // started, already_running, stopped, not_running
	IntervalSeconds int    `json:"interval_seconds,omitempty"`
}

// Status is a snapshot of the scheduler and agent.
type Status struct {
	Running           bool         `json:"running"`
	IntervalSeconds   int          `json:"interval_seconds"`
	LastScanTime      *time.Time   `json:"last_scan_time"`
	LastScanResult    *CycleResult `json:"last_scan_result"`
	WithinMarketHours bool         `json:"within_market_hours"`
	OpenPositions     int          `json:"open_positions"`
	TradesToday       int          `json:"trades_today"`
	Active            bool         `json:"active"`
}

// KillSwitchResult reports what the kill switch did.
type KillSwitchResult struct {
	WasActive       bool            `json:"was_active"`
	PositionsClosed []*domain.Trade `json:"positions_closed"`
}

// Scheduler drives periodic cycles in a background goroutine.
type Scheduler struct {
	deps   Deps
	cfg    SchedulerConfig
	tracer trace.Tracer
	now    func() time.Time
	after  func(time.Duration) <-chan time.Time

	cycleMu sync.Mutex // serialises cycles

	mu       sync.Mutex
	running  bool
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	lastScan *CycleResult
}

// NewScheduler validates deps and creates a stopped scheduler.
func NewScheduler(deps Deps, cfg SchedulerConfig) (*Scheduler, error) {
	if deps.Config == nil || deps.Scanner == nil || deps.SignalLog == nil {
		return nil, fmt.Errorf("config store, scanner and signal log are required for scheduler")
	}
	if deps.Executor == nil || deps.Monitor == nil || deps.Trades == nil {
		return nil, fmt.Errorf("executor, monitor and trade store are required for scheduler")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required for scheduler")
	}
	if deps.Publisher == nil {
		deps.Publisher = ports.NopPublisher{}
	}
	if deps.Hours.Location == nil {
		deps.Hours = DefaultMarketHours()
	}
	def := DefaultSchedulerConfig()
	if cfg.InactivePoll <= 0 {
		cfg.InactivePoll = def.InactivePoll
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = def.ErrorBackoff
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	return &Scheduler{
		deps:   deps,
		cfg:    cfg,
		tracer: otel.Tracer("tradingAgent/app"),
		now:    time.Now,
		after:  time.After,
	}, nil
}

// Start launches the loop. interval is raised to MinInterval if shorter.
// ctx bounds the loop's lifetime in addition to Stop.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) ControlResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ControlResult{Status: "already_running", IntervalSeconds: int(s.interval.Seconds())}
	}
	if interval < MinInterval {
		interval = MinInterval
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.interval = interval
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx, interval, s.done)
	s.deps.Logger.Info(ctx, "Scheduler started", map[string]interface{}{"interval": interval.String()})
	return ControlResult{Status: "started", IntervalSeconds: int(interval.Seconds())}
}

// Stop signals the loop to exit. A cycle already running completes.
func (s *Scheduler) Stop() ControlResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ControlResult{Status: "not_running"}
	}
	s.cancel()
	s.running = false
	s.deps.Logger.Info(context.Background(), "Scheduler stop requested, current cycle will finish")
	return ControlResult{Status: "stopped"}
}

// Done returns a channel closed when the most recently started loop exits.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		if s.done == done {
			s.running = false
		}
		s.mu.Unlock()
	}()
	s.deps.Logger.Info(ctx, "Auto-trading loop started")

	for {
		wait := interval
		switch {
		case !s.deps.Config.IsActive():
			s.deps.Logger.Info(ctx, "Agent inactive, pausing")
			wait = s.cfg.InactivePoll
		case !s.deps.Hours.IsOpen(s.now()):
			s.deps.Logger.Info(ctx, "Outside market hours, waiting", map[string]interface{}{
				"localTime": s.now().In(s.deps.Hours.Location).Format("15:04 MST"),
			})
		default:
			// The cycle is detached from ctx so Stop never interrupts it.
			if _, err := s.safeCycle(context.WithoutCancel(ctx)); err != nil {
				s.deps.Logger.Error(ctx, err, "Cycle failed, backing off", map[string]interface{}{"backoff": s.cfg.ErrorBackoff.String()})
				wait = s.cfg.ErrorBackoff
			}
		}

		select {
		case <-ctx.Done():
			s.deps.Logger.Info(context.Background(), "Auto-trading loop stopped")
			return
		case <-s.after(wait):
		}
	}
}

// safeCycle runs a cycle and turns a panic into an error.
func (s *Scheduler) safeCycle(ctx context.Context) (res *CycleResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
			s.deps.Logger.Error(ctx, err, "Recovered from panic in cycle", map[string]interface{}{"stack": string(debug.Stack())})
		}
	}()
	return s.runCycle(ctx)
}

// ForceRunNow runs one cycle immediately, outside market hours included.
func (s *Scheduler) ForceRunNow(ctx context.Context) (*CycleResult, error) {
	if !s.deps.Config.IsActive() {
		return nil, ports.ErrAgentInactive
	}
	return s.safeCycle(ctx)
}

// runCycle refreshes capital, scans, logs signals, forwards AUTO_RULED
// signals up to the daily cap and checks exits.
func (s *Scheduler) runCycle(ctx context.Context) (*CycleResult, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	ctx, span := s.tracer.Start(ctx, "app.Cycle")
	defer span.End()

	s.refreshCapital(ctx)
	cfg := s.deps.Config.Get()

	scan, err := s.deps.Scanner.Scan(ctx, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("scan: %w", err)
	}

	logged := make([]domain.LoggedSignal, 0, len(scan.Signals))
	for _, sig := range scan.Signals {
		entry := s.deps.SignalLog.Log(sig)
		logged = append(logged, entry)
		s.publish(ctx, domain.EventSignalLogged, sig.Ticker, entry)
	}
	s.deps.SignalLog.StoreScanResults(logged)

	res := &CycleResult{TotalSignals: len(logged), Skipped: scan.Skipped}
	for _, l := range logged {
		if l.Status == domain.SignalQualified {
			res.Qualified++
		}
	}
	s.deps.Logger.Info(ctx, "Scan complete", map[string]interface{}{
		"signals": res.TotalSignals, "qualified": res.Qualified, "skipped": len(scan.Skipped),
	})

	if cfg.ExecutionMode == domain.ExecAutoRuled {
		res.Executed = s.forward(ctx, logged, cfg)
	}

	closed, err := s.deps.Monitor.CheckExits(ctx)
	if err != nil {
		s.deps.Logger.Error(ctx, err, "Exit check failed")
	}
	res.PositionsClosed = len(closed)

	res.ScanTime = s.now()
	s.mu.Lock()
	s.lastScan = res
	s.mu.Unlock()

	span.SetAttributes(
		attribute.Int("signals", res.TotalSignals),
		attribute.Int("qualified", res.Qualified),
		attribute.Int("executed", res.Executed),
		attribute.Int("positions_closed", res.PositionsClosed),
	)
	return res, nil
}

// forward executes FORWARD signals until today's trade count reaches the cap.
func (s *Scheduler) forward(ctx context.Context, logged []domain.LoggedSignal, cfg domain.AgentConfig) int {
	today, err := s.deps.Trades.GetTodayCount(ctx)
	if err != nil {
		s.deps.Logger.Error(ctx, err, "Could not count today's trades, skipping execution")
		return 0
	}
	executed := 0
	for _, sig := range logged {
		if sig.Status != domain.SignalQualified || sig.ExecutionInstruction != domain.InstructionForward {
			continue
		}
		if !s.deps.Config.IsActive() {
			s.deps.Logger.Warn(ctx, "Agent deactivated mid-cycle, skipping remaining signals")
			break
		}
		if today >= cfg.MaxTradesPerDay {
			s.deps.Logger.Info(ctx, "Max trades per day reached, skipping remaining", map[string]interface{}{"max": cfg.MaxTradesPerDay})
			break
		}
		if _, err := s.deps.Executor.Execute(ctx, sig, cfg); err != nil {
			continue
		}
		if _, err := s.deps.SignalLog.UpdateStatus(sig.ID, domain.ActionAutoExecuted); err != nil {
			s.deps.Logger.Warn(ctx, "Could not mark signal executed", map[string]interface{}{"signalID": sig.ID, "error": err.Error()})
		}
		executed++
		today++
	}
	s.deps.Logger.Info(ctx, "Auto-execution complete", map[string]interface{}{"executed": executed})
	return executed
}

// refreshCapital copies the broker's available balance into the config.
// Failures keep the previous capital.
func (s *Scheduler) refreshCapital(ctx context.Context) {
	if s.deps.Broker == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	funds, err := s.deps.Broker.GetFundLimits(callCtx)
	if err != nil {
		s.deps.Logger.Warn(ctx, "Could not fetch capital", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := s.deps.Config.SetCapital(funds.AvailableBalance); err != nil {
		s.deps.Logger.Warn(ctx, "Broker returned unusable capital", map[string]interface{}{"error": err.Error()})
	}
}

// Status reports scheduler and agent state. Store failures leave the
// position counts at zero.
func (s *Scheduler) Status(ctx context.Context) Status {
	s.mu.Lock()
	st := Status{Running: s.running, IntervalSeconds: int(s.interval.Seconds())}
	if s.lastScan != nil {
		r := *s.lastScan
		st.LastScanResult = &r
		t := r.ScanTime
		st.LastScanTime = &t
	}
	s.mu.Unlock()

	st.Active = s.deps.Config.IsActive()
	st.WithinMarketHours = s.deps.Hours.IsOpen(s.now())
	if open, err := s.deps.Trades.GetOpen(ctx); err == nil {
		st.OpenPositions = len(open)
	} else {
		s.deps.Logger.Warn(ctx, "Status: open trades unavailable", map[string]interface{}{"error": err.Error()})
	}
	if n, err := s.deps.Trades.GetTodayCount(ctx); err == nil {
		st.TradesToday = n
	}
	return st
}

// KillSwitch deactivates the agent and, when closePositions is set, closes
// every open trade. An in-flight cycle stops forwarding once the agent is
// inactive; positions are closed after it finishes. Calling it again is
// harmless.
func (s *Scheduler) KillSwitch(ctx context.Context, closePositions bool) (*KillSwitchResult, error) {
	ctx, span := s.tracer.Start(ctx, "app.KillSwitch", trace.WithAttributes(attribute.Bool("close_positions", closePositions)))
	defer span.End()

	res := &KillSwitchResult{WasActive: s.deps.Config.Deactivate()}
	s.deps.Logger.Warn(ctx, "Kill switch engaged", map[string]interface{}{"wasActive": res.WasActive, "closePositions": closePositions})

	var err error
	if closePositions {
		s.cycleMu.Lock()
		defer s.cycleMu.Unlock()
		res.PositionsClosed, err = s.deps.Monitor.ForceCloseAll(ctx)
		if err != nil {
			span.RecordError(err)
			err = fmt.Errorf("kill switch: %w", err)
		}
	}
	s.publish(ctx, domain.EventKillSwitch, "agent", res)
	return res, err
}

func (s *Scheduler) publish(ctx context.Context, typ domain.EventType, key string, payload interface{}) {
	err := s.deps.Publisher.Publish(ctx, domain.Event{Type: typ, Time: s.now(), Key: key, Payload: payload})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.deps.Logger.Warn(ctx, "Event not published", map[string]interface{}{"type": string(typ), "error": err.Error()})
	}
}
