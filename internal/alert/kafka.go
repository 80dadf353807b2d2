package alert

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaNotifier publishes alerts to a topic consumed by the ops alerting
// pipeline. Messages are keyed by game mode so alerts for one mode stay
// ordered on one partition.
type KafkaNotifier struct {
	writer *kafka.Writer
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
	}
}

func (n *KafkaNotifier) Notify(ctx context.Context, a Alert) {
	payload, err := json.Marshal(a)
	if err != nil {
		slog.Error("marshal alert", "error", err, "kind", a.Kind)
		return
	}

	// Bound the publish so a broker outage cannot stall a payout path.
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = n.writer.WriteMessages(pubCtx, kafka.Message{
		Key:   []byte(a.GameMode),
		Value: payload,
	})
	if err != nil {
		slog.Error("publish alert", "error", err, "kind", a.Kind, "detail", a.Detail)
	}
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
