package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes events as JSON, keyed by monitor id so a monitor's
// events stay ordered within a partition.
type Producer struct {
	writer messageWriter
	topic  string
	log    *zap.Logger
}

func NewProducer(brokers []string, topic string, log *zap.Logger) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
		topic: topic,
		log:   log,
	}
}

func (p *Producer) Topic() string { return p.topic }

func (p *Producer) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.MonitorID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
		},
	}); err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Kind, err)
	}
	p.log.Debug("event_published",
		zap.String("topic", p.topic),
		zap.String("kind", string(ev.Kind)),
		zap.String("monitor_id", string(ev.MonitorID)),
	)
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
