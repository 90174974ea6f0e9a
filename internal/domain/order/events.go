package order

import (
	"context"
	"time"
)

// EventName identifies a domain event.
type EventName string

const (
	EventCreated   EventName = "order_created"
	EventUpdated   EventName = "order_updated"
	EventCancelled EventName = "order_cancelled"
	EventDeleted   EventName = "order_deleted"
)

// Event is emitted after an order changes.
type Event struct {
	ID       string
	Name     EventName
	BranchID string
	// Previous is the status before an update, empty for creations.
	Previous   Status
	Order      Order
	OccurredAt time.Time
}

// EventSink receives domain events. Emit must not block on delivery and its
// failures never affect the operation that produced the event.
type EventSink interface {
	Emit(ctx context.Context, e Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, e Event)

func (f EventSinkFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }

type nopSink struct{}

func (nopSink) Emit(context.Context, Event) {}
