// Package events publishes order lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/imrishuroy/go-storefront-orders/internal/aws"
	"github.com/imrishuroy/go-storefront-orders/internal/logging"
	"github.com/imrishuroy/go-storefront-orders/internal/orders"
)

// Event types
const (
	TypeOrderCreated   = "order.created"
	TypeOrderConfirmed = "order.confirmed"
	TypeOrderCancelled = "order.cancelled"
)

// OrderEvent is the message body put on the orders queue.
type OrderEvent struct {
	EventID       string    `json:"eventId"`
	EventType     string    `json:"eventType"`
	OrderID       string    `json:"orderId"`
	UserID        string    `json:"userId"`
	OrderStatus   string    `json:"orderStatus"`
	PaymentStatus string    `json:"paymentStatus"`
	TotalAmount   float64   `json:"totalAmount"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// NewOrderEvent snapshots o as an event of the given type.
func NewOrderEvent(eventType string, o orders.Order) OrderEvent {
	return OrderEvent{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		OrderID:       o.OrderID,
		UserID:        o.UserID,
		OrderStatus:   o.OrderStatus,
		PaymentStatus: o.PaymentStatus,
		TotalAmount:   o.TotalAmount,
		OccurredAt:    time.Now().UTC(),
	}
}

// Emitter publishes order events.
type Emitter interface {
	Emit(ctx context.Context, ev OrderEvent) error
}

// SQSEmitter sends events to an SQS queue.
type SQSEmitter struct {
	publisher *aws.Publisher
}

func NewSQSEmitter(publisher *aws.Publisher) *SQSEmitter {
	return &SQSEmitter{publisher: publisher}
}

func (e *SQSEmitter) Emit(ctx context.Context, ev OrderEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	attrs := map[string]string{
		"event_type":     ev.EventType,
		"order_id":       ev.OrderID,
		"correlation_id": logging.CorrelationID(ctx),
	}
	if _, err := e.publisher.SendMessage(ctx, string(body), attrs); err != nil {
		return fmt.Errorf("publish %s for order %s: %w", ev.EventType, ev.OrderID, err)
	}
	return nil
}

// Discard drops every event. Used when no queue is configured.
type Discard struct{}

func (Discard) Emit(context.Context, OrderEvent) error { return nil }

// Decode parses a queue message body, rejecting events without an id, type or order.
func Decode(body string) (OrderEvent, error) {
	var ev OrderEvent
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return OrderEvent{}, fmt.Errorf("invalid event body: %w", err)
	}
	if ev.EventID == "" || ev.EventType == "" || ev.OrderID == "" {
		return OrderEvent{}, fmt.Errorf("invalid event: missing eventId, eventType or orderId")
	}
	return ev, nil
}
