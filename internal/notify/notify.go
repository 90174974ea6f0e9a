// Package notify delivers order events to staff-facing transports. Every
// sink is fire-and-forget: Emit never blocks on the network and delivery
// failures are logged, never returned.
package notify

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kitchen-orders/internal/domain/order"
)

// Fanout emits every event to each sink in order.
type Fanout []order.EventSink

var _ order.EventSink = Fanout(nil)

func (f Fanout) Emit(ctx context.Context, e order.Event) {
	for _, s := range f {
		s.Emit(ctx, e)
	}
}

// Log writes events to the context logger.
type Log struct{}

var _ order.EventSink = Log{}

func (Log) Emit(ctx context.Context, e order.Event) {
	zctx.From(ctx).Info("Order event",
		eventFields(e)...,
	)
}

func eventFields(e order.Event) []zap.Field {
	fields := []zap.Field{
		zap.String("event_id", e.ID),
		zap.String("event", string(e.Name)),
		zap.String("branch_id", e.BranchID),
		zap.String("order_id", e.Order.ID),
		zap.String("status", string(e.Order.Status)),
	}
	if e.Previous != "" {
		fields = append(fields, zap.String("previous_status", string(e.Previous)))
	}
	return fields
}
