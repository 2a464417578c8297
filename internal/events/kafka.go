package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes settlement events to a single topic, keyed by
// transaction reference so redeliveries of the same settlement land on the
// same partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *slog.Logger
}

// NewKafkaPublisher returns nil when no brokers are configured; callers
// should fall back to Nop.
func NewKafkaPublisher(brokerList, topic string, log *slog.Logger) *KafkaPublisher {
	var brokers []string
	for _, b := range strings.Split(brokerList, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: 10 * time.Second,
		},
		log: log,
	}
}

func (p *KafkaPublisher) PaymentSettled(ctx context.Context, evt PaymentSettled) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.Reference),
		Value: b,
	})
	if err != nil {
		p.log.Warn("publish settlement event", "reference", evt.Reference, "err", err)
	}
	return err
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }
