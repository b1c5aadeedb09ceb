package realtime

import (
	"context"
	"fmt"
)

// Sink is the outbound half of a bus.
type Sink interface {
	Publish(ctx context.Context, msg Message) error
}

// EventNamer lets a payload pick its own event name.
type EventNamer interface {
	EventName() string
}

// Publisher turns ledger notifications into bus messages.
type Publisher struct {
	sink Sink
}

func NewPublisher(sink Sink) *Publisher {
	return &Publisher{sink: sink}
}

func (p *Publisher) Publish(ctx context.Context, userID string, payload any) error {
	if p == nil || p.sink == nil {
		return fmt.Errorf("realtime publisher has no sink")
	}
	event := EventLedgerUpdate
	if n, ok := payload.(EventNamer); ok && n.EventName() != "" {
		event = n.EventName()
	}
	msg, err := NewMessage(event, userID, payload)
	if err != nil {
		return err
	}
	return p.sink.Publish(ctx, msg)
}
