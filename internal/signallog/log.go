// Package signallog keeps every generated signal with the user's decision on it.
package signallog

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradingAgent/internal/domain"
	"tradingAgent/internal/ports"
)

// DefaultRecentLimit is used by Recent when limit <= 0.
const DefaultRecentLimit = 50

// Stats summarises the log.
type Stats struct {
	Total        int `json:"total_signals"`
	Qualified    int `json:"qualified"`
	Rejected     int `json:"rejected"`
	UserApproved int `json:"user_approved"`
	UserRejected int `json:"user_rejected"`
	AutoExecuted int `json:"auto_executed"`
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithIDGenerator overrides the entry id source.
func WithIDGenerator(gen func() string) Option {
	return func(l *Log) { l.newID = gen }
}

// Log is an in-memory, append-only signal log plus the latest scan view.
type Log struct {
	mu      sync.RWMutex
	entries []*domain.LoggedSignal
	latest  []*domain.LoggedSignal
	now     func() time.Time
	newID   func() string
}

// New creates an empty log.
func New(opts ...Option) *Log {
	l := &Log{now: time.Now, newID: shortID}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func shortID() string {
	return uuid.NewString()[:8]
}

// Log appends sig with a fresh id and timestamp and returns the entry.
func (l *Log) Log(sig domain.Signal) domain.LoggedSignal {
	entry := &domain.LoggedSignal{
		ID:         l.newID(),
		Timestamp:  l.now(),
		UserAction: domain.ActionNone,
		Signal:     sig,
	}
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
	return *entry
}

// StoreScanResults replaces the latest scan view.
func (l *Log) StoreScanResults(signals []domain.LoggedSignal) {
	latest := make([]*domain.LoggedSignal, len(signals))
	for i := range signals {
		s := signals[i]
		latest[i] = &s
	}
	l.mu.Lock()
	l.latest = latest
	l.mu.Unlock()
}

// Latest returns the signals of the last scan.
func (l *Log) Latest() []domain.LoggedSignal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return copyEntries(l.latest)
}

// Recent returns up to limit entries, newest first.
func (l *Log) Recent(limit int) []domain.LoggedSignal {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := min(limit, len(l.entries))
	out := make([]domain.LoggedSignal, 0, n)
	for i := len(l.entries) - 1; i >= len(l.entries)-n; i-- {
		out = append(out, *l.entries[i])
	}
	return out
}

// Get finds an entry by id. Ids can repeat; the newest wins.
func (l *Log) Get(id string) (domain.LoggedSignal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e := l.find(id)
	if e == nil {
		return domain.LoggedSignal{}, fmt.Errorf("signal %s: %w", id, ports.ErrNotFound)
	}
	return *e, nil
}

// UpdateStatus records the user's action on a signal.
func (l *Log) UpdateStatus(id string, action domain.UserAction) (domain.LoggedSignal, error) {
	if !action.Valid() {
		return domain.LoggedSignal{}, fmt.Errorf("%w: unknown user action %q", ports.ErrValidation, action)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.find(id)
	if e == nil {
		return domain.LoggedSignal{}, fmt.Errorf("signal %s: %w", id, ports.ErrNotFound)
	}
	e.UserAction = action
	for _, s := range l.latest {
		if s.ID == id {
			s.UserAction = action
		}
	}
	return *e, nil
}

// Stats counts entries by status and user action.
func (l *Log) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st := Stats{Total: len(l.entries)}
	for _, e := range l.entries {
		switch e.Status {
		case domain.SignalQualified:
			st.Qualified++
		case domain.SignalRejected:
			st.Rejected++
		}
		switch e.UserAction {
		case domain.ActionApproved:
			st.UserApproved++
		case domain.ActionRejectedByUser:
			st.UserRejected++
		case domain.ActionAutoExecuted:
			st.AutoExecuted++
		}
	}
	return st
}

// Clear drops every entry and the latest view.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.latest = nil
	l.mu.Unlock()
}

func (l *Log) find(id string) *domain.LoggedSignal {
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].ID == id {
			return l.entries[i]
		}
	}
	return nil
}

func copyEntries(in []*domain.LoggedSignal) []domain.LoggedSignal {
	out := make([]domain.LoggedSignal, len(in))
	for i, e := range in {
		out[i] = *e
	}
	return out
}
