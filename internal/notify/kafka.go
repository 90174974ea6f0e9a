package notify

import (
	"context"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kitchen-orders/internal/domain/order"
	"github.com/xenking/kitchen-orders/internal/wire"
)

const (
	// DefaultKafkaTopic receives order events when no topic is configured.
	DefaultKafkaTopic = "kitchen.order-events"
	// DefaultEnqueueTimeout bounds how long Emit waits for a backlogged
	// producer before dropping the event.
	DefaultEnqueueTimeout = 250 * time.Millisecond
)

// KafkaConfig configures the Kafka producer.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	// EnqueueTimeout defaults to DefaultEnqueueTimeout.
	EnqueueTimeout time.Duration
}

// NewKafkaConfig returns the producer settings used for order events.
func NewKafkaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Errors = true
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Version = sarama.V2_6_0_0
	return cfg
}

// Kafka publishes events keyed by order ID, so every event of an order
// lands on the same partition in emission order.
type Kafka struct {
	producer sarama.AsyncProducer
	topic    string
	timeout  time.Duration
	lg       *zap.Logger
	wg       sync.WaitGroup
}

var _ order.EventSink = (*Kafka)(nil)

// DialKafka connects an async producer to the brokers.
func DialKafka(cfg KafkaConfig, lg *zap.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	producer, err := sarama.NewAsyncProducer(cfg.Brokers, NewKafkaConfig())
	if err != nil {
		return nil, errors.Wrap(err, "kafka: create producer")
	}
	k := NewKafka(producer, cfg.Topic, lg)
	if cfg.EnqueueTimeout > 0 {
		k.timeout = cfg.EnqueueTimeout
	}
	return k, nil
}

// NewKafka wraps an existing producer and starts draining its error
// channel.
func NewKafka(producer sarama.AsyncProducer, topic string, lg *zap.Logger) *Kafka {
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	k := &Kafka{producer: producer, topic: topic, timeout: DefaultEnqueueTimeout, lg: lg}
	k.wg.Add(1)
	go k.drainErrors()
	return k
}

func (k *Kafka) drainErrors() {
	defer k.wg.Done()
	for perr := range k.producer.Errors() {
		fields := []zap.Field{zap.Error(perr.Err), zap.String("topic", perr.Msg.Topic)}
		if key, err := perr.Msg.Key.Encode(); err == nil {
			fields = append(fields, zap.ByteString("order_id", key))
		}
		k.lg.Error("Failed to publish order event", fields...)
	}
}

// Message builds the producer message of an event.
func (k *Kafka) Message(e order.Event) *sarama.ProducerMessage {
	return &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(e.Order.ID),
		Value: sarama.ByteEncoder(wire.Event(e)),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(e.Name)},
			{Key: []byte("event-id"), Value: []byte(e.ID)},
			{Key: []byte("branch-id"), Value: []byte(e.BranchID)},
		},
		Timestamp: e.OccurredAt,
	}
}

// Emit enqueues the event. It never waits longer than the enqueue timeout:
// when the producer is backlogged or ctx is done first, the event is
// dropped and logged.
func (k *Kafka) Emit(ctx context.Context, e order.Event) {
	timer := time.NewTimer(k.timeout)
	defer timer.Stop()

	select {
	case k.producer.Input() <- k.Message(e):
	case <-timer.C:
		k.lg.Warn("Kafka producer backlogged, dropping order event",
			append(eventFields(e), zap.Duration("timeout", k.timeout))...)
	case <-ctx.Done():
		k.lg.Warn("Dropped order event", append(eventFields(e), zap.Error(ctx.Err()))...)
	}
}

// Close flushes buffered messages and stops the producer.
func (k *Kafka) Close() error {
	k.producer.AsyncClose()
	k.wg.Wait()
	return nil
}
