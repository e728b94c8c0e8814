package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"cashback-service/internal/client"
	"cashback-service/internal/mailer"
)

// Producer is satisfied by *client.KafkaProducer.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// KafkaDispatcher queues notifications on a topic; cmd/worker delivers them.
type KafkaDispatcher struct {
	producer Producer
	topic    string
}

func NewKafkaDispatcher(p Producer, topic string) *KafkaDispatcher {
	return &KafkaDispatcher{producer: p, topic: topic}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, n Notification) error {
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return d.producer.Produce(ctx, d.topic, []byte(n.To), value, map[string]string{"category": n.Category})
}

// Handler returns the consume callback that sends queued notifications.
// A mailer error is returned so the message is retried; a payload that
// cannot be decoded is skipped.
func Handler(m mailer.Mailer) func(context.Context, kafka.Message) error {
	return func(ctx context.Context, msg kafka.Message) error {
		var n Notification
		if err := json.Unmarshal(msg.Value, &n); err != nil {
			return fmt.Errorf("%w: %v", client.ErrSkipMessage, err)
		}
		if n.To == "" {
			return fmt.Errorf("%w: notification %s has no recipient", client.ErrSkipMessage, n.ID)
		}
		_, err := m.Send(ctx, n.To, n.Subject, n.HTMLBody)
		return err
	}
}
