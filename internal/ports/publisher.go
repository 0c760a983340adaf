package ports

import (
	"context"

	"tradingAgent/internal/domain"
)

// EventPublisher delivers agent events to an external sink.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.Event) error { return nil }
