package events

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/imrishuroy/go-storefront-orders/internal/aws"
	"github.com/imrishuroy/go-storefront-orders/internal/logging"
	"github.com/imrishuroy/go-storefront-orders/internal/orders"
)

type mockSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (m *mockSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.inputs = append(m.inputs, params)
	id := "m-1"
	return &sqs.SendMessageOutput{MessageId: &id}, nil
}

func TestSQSEmitter_Emit(t *testing.T) {
	mock := &mockSQS{}
	e := NewSQSEmitter(aws.NewPublisher(mock, "q"))

	o := orders.Order{OrderID: "o1", UserID: "u1", OrderStatus: orders.OrderStatusConfirmed, PaymentStatus: orders.PaymentStatusPaid, TotalAmount: 999}
	ctx := logging.WithCorrelationID(context.Background(), "cid-9")
	if err := e.Emit(ctx, NewOrderEvent(TypeOrderConfirmed, o)); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	in := mock.inputs[0]
	ev, err := Decode(*in.MessageBody)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.EventType != TypeOrderConfirmed || ev.OrderID != "o1" || ev.UserID != "u1" || ev.TotalAmount != 999 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if *in.MessageAttributes["correlation_id"].StringValue != "cid-9" {
		t.Fatalf("correlation id attribute missing")
	}
	if *in.MessageAttributes["event_type"].StringValue != TypeOrderConfirmed {
		t.Fatalf("event_type attribute mismatch")
	}
}

func TestSQSEmitter_EmitError(t *testing.T) {
	e := NewSQSEmitter(aws.NewPublisher(&mockSQS{err: errors.New("throttled")}, "q"))
	if err := e.Emit(context.Background(), NewOrderEvent(TypeOrderCreated, orders.Order{OrderID: "o1"})); err == nil {
		t.Fatal("expected error")
	}
}

func TestDecode_Rejects(t *testing.T) {
	for _, body := range []string{"not json", `{"eventType":"order.created","orderId":"o1"}`, `{"eventId":"e","orderId":"o1"}`} {
		if _, err := Decode(body); err == nil {
			t.Fatalf("expected error for %q", body)
		}
	}
}
