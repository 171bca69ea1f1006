// Package events publishes purchase events to Kafka for downstream services
// (enrollment, notifications) that react to finalized purchases.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/learnhub/learnhub-purchases/internal/domain"
)

// KafkaPublisher implements domain.EventPublisher on a kafka-go writer.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaPublisher creates a publisher writing to the given topic.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &KafkaPublisher{writer: writer, logger: logger}
}

// PublishPurchaseEvent writes the event keyed by order ID so all events of
// one order land on the same partition in order.
func (p *KafkaPublisher) PublishPurchaseEvent(ctx context.Context, ev domain.PurchaseEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal purchase event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.OrderID),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish purchase event",
			zap.String("type", ev.Type),
			zap.String("order_id", ev.OrderID),
			zap.Error(err))
		return fmt.Errorf("failed to publish purchase event: %w", err)
	}

	p.logger.Debug("published purchase event",
		zap.String("type", ev.Type),
		zap.String("order_id", ev.OrderID))
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka publisher: %w", err)
	}
	return nil
}

// NopPublisher discards events. Used when event publishing is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishPurchaseEvent(context.Context, domain.PurchaseEvent) error {
	return nil
}
