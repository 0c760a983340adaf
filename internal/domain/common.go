package domain

import "encoding/json"

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// TradeStatus represents the lifecycle state of a trade.
type TradeStatus string

const (
	TradeOpen   TradeStatus = "OPEN"
	TradeClosed TradeStatus = "CLOSED"
)

// ExitReason indicates why a trade was closed.
type ExitReason string

const (
	ExitTargetHit  ExitReason = "TARGET_HIT"
	ExitStopLoss   ExitReason = "STOP_LOSS_HIT"
	ExitKillSwitch ExitReason = "KILL_SWITCH"
	ExitManual     ExitReason = "MANUAL"
)

// MarshalJSON encodes an unset reason as null.
func (r ExitReason) MarshalJSON() ([]byte, error) {
	return nullableString(string(r))
}

// TradingMode selects simulated or real order placement.
type TradingMode string

const (
	ModePaper TradingMode = "PAPER"
	ModeLive  TradingMode = "LIVE"
)

// Valid reports whether m is a known trading mode.
func (m TradingMode) Valid() bool {
	return m == ModePaper || m == ModeLive
}

// ExecutionMode decides who pulls the trigger on a qualified signal.
type ExecutionMode string

const (
	ExecManualConfirm ExecutionMode = "MANUAL_CONFIRM"
	ExecAutoRuled     ExecutionMode = "AUTO_RULED"
)

// Valid reports whether m is a known execution mode.
func (m ExecutionMode) Valid() bool {
	return m == ExecManualConfirm || m == ExecAutoRuled
}

// SignalStatus is the classification of a signal after rule validation.
type SignalStatus string

const (
	SignalQualified SignalStatus = "QUALIFIED"
	SignalRejected  SignalStatus = "REJECTED"
)

// ExecutionInstruction tells downstream consumers what to do with a signal.
type ExecutionInstruction string

const (
	InstructionNone        ExecutionInstruction = "NONE"
	InstructionWaitForUser ExecutionInstruction = "WAIT_FOR_USER_CONFIRMATION"
	InstructionForward     ExecutionInstruction = "FORWARD_TO_EXECUTION_ENGINE"
)

// UserAction records what happened to a logged signal after it was produced.
// The zero value means no action has been taken.
type UserAction string

const (
	ActionNone           UserAction = ""
	ActionApproved       UserAction = "APPROVED"
	ActionRejectedByUser UserAction = "REJECTED_BY_USER"
	ActionAutoExecuted   UserAction = "AUTO_EXECUTED"
)

// MarshalJSON encodes ActionNone as null.
func (a UserAction) MarshalJSON() ([]byte, error) {
	return nullableString(string(a))
}

// Valid reports whether a is an action that may be recorded on a signal.
func (a UserAction) Valid() bool {
	switch a {
	case ActionApproved, ActionRejectedByUser, ActionAutoExecuted:
		return true
	}
	return false
}

func nullableString(s string) ([]byte, error) {
	if s == "" {
		return []byte("null"), nil
	}
	return json.Marshal(s)
}
