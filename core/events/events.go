/*Package events provides notifier implementations for table mutation events.

The backend calls the configured core.Notifier after every successful create,
update, delete and publish operation. The Kafka notifier forwards these events
to a topic, the log notifier simply logs them. Events carry the serialized
logger context of the originating request, so consumers can correlate them
with the request logs.
*/
package events

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/tabular/core"
	"github.com/relabs-tech/tabular/core/logger"
	"github.com/segmentio/kafka-go"
)

// Event is the serialized form of a mutation notification
type Event struct {
	Table      string          `json:"table"`
	Capability core.Capability `json:"capability"`
	Payload    json.RawMessage `json:"payload"`
	// Context carries the request id and identity of the originating request
	Context   json.RawMessage `json:"context"`
	CreatedAt time.Time       `json:"created_at"`
}

func newEvent(ctx context.Context, table string, capability core.Capability, payload []byte) Event {
	return Event{
		Table:      table,
		Capability: capability,
		Payload:    payload,
		Context:    logger.SerializeLoggerContext(ctx),
		CreatedAt:  time.Now().UTC(),
	}
}

// KafkaNotifier publishes mutation events to a Kafka topic
type KafkaNotifier struct {
	writer *kafka.Writer
}

// NewKafkaNotifier creates a notifier writing to the given brokers and topic
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Notify implements core.Notifier. Publishing is best effort, a failed write
// is logged and dropped, it never fails the originating request.
func (n *KafkaNotifier) Notify(ctx context.Context, table string, capability core.Capability, payload []byte) {
	rlog := logger.FromContext(ctx)

	value, err := json.Marshal(newEvent(ctx, table, capability, payload))
	if err != nil {
		rlog.WithError(err).Errorln("Error 3151: cannot marshal event")
		return
	}
	writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = n.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(table),
		Value: value,
		Headers: []kafka.Header{
			{Key: "request_id", Value: []byte(logger.RequestIDFromContext(ctx))},
		},
	})
	if err != nil {
		rlog.WithError(err).Errorln("Error 3152: cannot publish event")
	}
}

// Close closes the underlying Kafka writer
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// LogNotifier logs mutation events, useful for development setups without a
// Kafka broker
type LogNotifier struct{}

// Notify implements core.Notifier
func (n *LogNotifier) Notify(ctx context.Context, table string, capability core.Capability, payload []byte) {
	logger.FromContext(ctx).Infof("event: %s %s %s", capability, table, string(payload))
}
