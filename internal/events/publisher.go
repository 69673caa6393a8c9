package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/storefront/order-service/internal/config"
	"github.com/storefront/order-service/internal/entities"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	TypeOrderCreated   = "order.created"
	TypeOrderConfirmed = "order.confirmed"
	TypeOrderPaid      = "order.paid"
	TypeOrderShipped   = "order.shipped"
	TypeOrderDelivered = "order.delivered"
	TypeOrderCancelled = "order.cancelled"
)

// OrderEvent is the message fanned out to downstream consumers
// (notifications, analytics). Consumers deduplicate on EventID.
type OrderEvent struct {
	EventID     string    `json:"event_id"`
	Type        string    `json:"type"`
	OrderID     int64     `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      string    `json:"user_id"`
	Status      string    `json:"status"`
	TotalAmount int64     `json:"total_amount"`
	Currency    string    `json:"currency"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(cfg config.Kafka) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.EventsTopic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: cfg.BatchTimeout,
		},
	}
}

func (p *Publisher) PublishOrderEvent(ctx context.Context, eventType string, order entities.Order) error {
	event := OrderEvent{
		EventID:     uuid.NewString(),
		Type:        eventType,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		OccurredAt:  time.Now().UTC(),
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(order.OrderNumber),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to publish order event: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
