package notify

import (
	"context"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kitchen-orders/internal/domain/order"
	"github.com/xenking/kitchen-orders/internal/wire"
)

// PubSubConfig selects the Pub/Sub topic of order events.
type PubSubConfig struct {
	ProjectID string
	Topic     string
}

// PubSub publishes events to a Google Cloud Pub/Sub topic with ordering
// keys set to the order ID.
type PubSub struct {
	topic *pubsub.Topic
	lg    *zap.Logger
	wg    sync.WaitGroup
}

var _ order.EventSink = (*PubSub)(nil)

// NewPubSub wraps topic. Message ordering is enabled on the topic.
func NewPubSub(topic *pubsub.Topic, lg *zap.Logger) (*PubSub, error) {
	if topic == nil {
		return nil, errors.New("pubsub: topic is required")
	}
	topic.EnableMessageOrdering = true
	return &PubSub{topic: topic, lg: lg}, nil
}

// PubSubMessage builds the Pub/Sub message of an event.
func PubSubMessage(e order.Event) *pubsub.Message {
	return &pubsub.Message{
		Data:        wire.Event(e),
		OrderingKey: e.Order.ID,
		Attributes: map[string]string{
			"eventType": string(e.Name),
			"eventId":   e.ID,
			"branchId":  e.BranchID,
		},
	}
}

// Emit publishes the event and checks the result in the background.
func (p *PubSub) Emit(ctx context.Context, e order.Event) {
	ctx = context.WithoutCancel(ctx)
	res := p.topic.Publish(ctx, PubSubMessage(e))
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if _, err := res.Get(ctx); err != nil {
			p.lg.Error("Failed to publish order event", append(eventFields(e), zap.Error(err))...)
			p.topic.ResumePublish(e.Order.ID)
		}
	}()
}

// Close waits for pending publishes and stops the topic.
func (p *PubSub) Close() error {
	p.topic.Stop()
	p.wg.Wait()
	return nil
}
