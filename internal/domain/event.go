package domain

import "time"

// EventType names an event published by the agent.
type EventType string

const (
	EventSignalLogged EventType = "signal.logged"
	EventTradeOpened  EventType = "trade.opened"
	EventTradeClosed  EventType = "trade.closed"
	EventKillSwitch   EventType = "agent.kill_switch"
)

// Event is a notification about something the agent did.
type Event struct {
	Type    EventType   `json:"type"`
	Time    time.Time   `json:"time"`
	Key     string      `json:"key"` // partitioning key, usually a symbol
	Payload interface{} `json:"payload"`
}
