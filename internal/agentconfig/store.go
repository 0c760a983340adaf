// Package agentconfig holds the agent's trading rules and the active flag.
package agentconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"tradingAgent/internal/domain"
	"tradingAgent/internal/ports"
)

const (
	minTradesPerDay = 1
	maxTradesPerDay = 50
)

// Defaults returns the built-in trading rules for a universe.
func Defaults(u *Universe) domain.AgentConfig {
	return domain.AgentConfig{
		AllowedSectors:     u.SectorNames(),
		MaxCapitalPerTrade: 5,
		MaxTradesPerDay:    3,
		RiskPerTrade:       2,
		ProfitBookingRule:  domain.Rule{Type: domain.RuleTargetPercent, Value: 3},
		StopLossRule:       domain.Rule{Type: domain.RuleFixedPercent, Value: 1.5},
		TradingMode:        domain.ModePaper,
		ExecutionMode:      domain.ExecManualConfirm,
		CapitalAvailable:   0,
		AllowPyramiding:    true,
	}
}

// Store is the process-wide holder of the agent configuration.
// All accessors return copies.
type Store struct {
	mu       sync.RWMutex
	universe *Universe
	defaults domain.AgentConfig
	cfg      domain.AgentConfig
	active   bool
}

// NewStore creates a store initialised with defaults and marked active.
func NewStore(u *Universe) *Store {
	d := Defaults(u)
	return &Store{
		universe: u,
		defaults: d,
		cfg:      d.Clone(),
		active:   true,
	}
}

// Universe returns the universe the store validates sectors against.
func (s *Store) Universe() *Universe {
	return s.universe
}

// Get returns a snapshot of the current configuration.
func (s *Store) Get() domain.AgentConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Update validates every present field of the patch and merges them.
// On any violation nothing is applied and the error wraps ports.ErrValidation.
func (s *Store) Update(patch domain.ConfigPatch) (domain.AgentConfig, error) {
	if errs := s.validate(patch); len(errs) > 0 {
		return s.Get(), fmt.Errorf("%w: %s", ports.ErrValidation, strings.Join(errs, "; "))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cfg.Clone()
	if patch.AllowedSectors != nil {
		next.AllowedSectors = append([]string(nil), (*patch.AllowedSectors)...)
	}
	if patch.MaxCapitalPerTrade != nil {
		next.MaxCapitalPerTrade = *patch.MaxCapitalPerTrade
	}
	if patch.MaxTradesPerDay != nil {
		next.MaxTradesPerDay = *patch.MaxTradesPerDay
	}
	if patch.RiskPerTrade != nil {
		next.RiskPerTrade = *patch.RiskPerTrade
	}
	if patch.ProfitBookingRule != nil {
		next.ProfitBookingRule = *patch.ProfitBookingRule
	}
	if patch.StopLossRule != nil {
		next.StopLossRule = *patch.StopLossRule
	}
	if patch.TradingMode != nil {
		next.TradingMode = *patch.TradingMode
	}
	if patch.ExecutionMode != nil {
		next.ExecutionMode = *patch.ExecutionMode
	}
	if patch.AllowPyramiding != nil {
		next.AllowPyramiding = *patch.AllowPyramiding
	}
	s.cfg = next
	return s.cfg.Clone(), nil
}

func (s *Store) validate(p domain.ConfigPatch) []string {
	var errs []string
	if p.AllowedSectors != nil {
		sectors := *p.AllowedSectors
		if len(sectors) == 0 {
			errs = append(errs, "allowed_sectors must be a non-empty list")
		}
		var unknown []string
		for _, sec := range sectors {
			if !s.universe.HasSector(sec) {
				unknown = append(unknown, sec)
			}
		}
		if len(unknown) > 0 {
			errs = append(errs, fmt.Sprintf("invalid sectors %v, valid: %v", unknown, s.universe.SectorNames()))
		}
	}
	if p.MaxCapitalPerTrade != nil && !validPercent(*p.MaxCapitalPerTrade) {
		errs = append(errs, "max_capital_per_trade must be a number between 0 and 100")
	}
	if p.RiskPerTrade != nil && !validPercent(*p.RiskPerTrade) {
		errs = append(errs, "risk_per_trade must be a number between 0 and 100")
	}
	if p.MaxTradesPerDay != nil {
		if n := *p.MaxTradesPerDay; n < minTradesPerDay || n > maxTradesPerDay {
			errs = append(errs, fmt.Sprintf("max_trades_per_day must be an integer between %d and %d", minTradesPerDay, maxTradesPerDay))
		}
	}
	if p.ProfitBookingRule != nil {
		errs = append(errs, validateRule("profit_booking_rule", *p.ProfitBookingRule)...)
	}
	if p.StopLossRule != nil {
		errs = append(errs, validateRule("stop_loss_rule", *p.StopLossRule)...)
	}
	if p.TradingMode != nil && !p.TradingMode.Valid() {
		errs = append(errs, fmt.Sprintf("trading_mode must be one of %s, %s", domain.ModePaper, domain.ModeLive))
	}
	if p.ExecutionMode != nil && !p.ExecutionMode.Valid() {
		errs = append(errs, fmt.Sprintf("execution_mode must be one of %s, %s", domain.ExecManualConfirm, domain.ExecAutoRuled))
	}
	return errs
}

func validPercent(v float64) bool {
	return v > 0 && v <= 100
}

func validateRule(name string, r domain.Rule) []string {
	var errs []string
	if r.Type == "" {
		errs = append(errs, name+" must have a type")
	}
	if !validPercent(r.Value) {
		errs = append(errs, name+" value must be a number between 0 and 100")
	}
	return errs
}

// SetCapital records the capital reported by the broker.
func (s *Store) SetCapital(amount float64) error {
	if amount < 0 {
		return fmt.Errorf("%w: capital cannot be negative", ports.ErrValidation)
	}
	s.mu.Lock()
	s.cfg.CapitalAvailable = amount
	s.mu.Unlock()
	return nil
}

// Activate turns the agent on.
func (s *Store) Activate() {
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()
}

// Deactivate turns the agent off. Reports whether it was active before.
func (s *Store) Deactivate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.active
	s.active = false
	return was
}

func (s *Store) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Reset restores the defaults and re-activates the agent.
func (s *Store) Reset() domain.AgentConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = s.defaults.Clone()
	s.active = true
	return s.cfg.Clone()
}

// ParsePatch decodes a JSON patch, rejecting unknown and read-only fields.
func ParsePatch(data []byte) (domain.ConfigPatch, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.ConfigPatch{}, fmt.Errorf("%w: %v", ports.ErrValidation, err)
	}
	if _, ok := raw["capital_available"]; ok {
		return domain.ConfigPatch{}, fmt.Errorf("%w: capital_available is read-only", ports.ErrValidation)
	}

	var patch domain.ConfigPatch
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		return domain.ConfigPatch{}, fmt.Errorf("%w: %v", ports.ErrValidation, err)
	}
	return patch, nil
}
