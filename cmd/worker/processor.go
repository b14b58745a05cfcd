package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/imrishuroy/go-storefront-orders/internal/aws"
	orderevents "github.com/imrishuroy/go-storefront-orders/internal/events"
	"github.com/imrishuroy/go-storefront-orders/internal/idempotency"
	"github.com/imrishuroy/go-storefront-orders/internal/logging"
)

// Metric names
const (
	MetricOrdersCreated    = "OrdersCreated"
	MetricOrdersConfirmed  = "OrdersConfirmed"
	MetricOrdersCancelled  = "OrdersCancelled"
	MetricConfirmedRevenue = "ConfirmedRevenue"
)

// errBusy means another invocation holds the event; the message is retried later.
var errBusy = errors.New("event is being processed by another invocation")

// Processor turns order lifecycle events into CloudWatch metrics, counting each event once.
type Processor struct {
	idempStore      *idempotency.Store
	metrics         *aws.MetricsRecorder
	displayCurrency string
}

// NewProcessor creates a new worker processor.
func NewProcessor(idempStore *idempotency.Store, metrics *aws.MetricsRecorder, displayCurrency string) *Processor {
	return &Processor{
		idempStore:      idempStore,
		metrics:         metrics,
		displayCurrency: displayCurrency,
	}
}

// Handle processes an SQS batch. Failed messages are reported individually so the rest of the
// batch is not redelivered; after too many receives a message goes to the DLQ.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			slog.ErrorContext(ctx, "worker error", "message_id", rec.MessageId, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	ev, err := orderevents.Decode(rec.Body)
	if err != nil {
		return err
	}
	if attr, ok := rec.MessageAttributes["correlation_id"]; ok && attr.StringValue != nil {
		ctx = logging.WithCorrelationID(ctx, *attr.StringValue)
	}

	key := "event#" + ev.EventID
	created, err := p.idempStore.CreateIfNotExists(ctx, key, ev.OrderID)
	if err != nil {
		return fmt.Errorf("claim event: %w", err)
	}
	if !created {
		r, err := p.idempStore.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("read event claim: %w", err)
		}
		switch {
		case r == nil:
			return fmt.Errorf("event claim %s vanished", key)
		case r.Status == idempotency.StatusDone:
			slog.InfoContext(ctx, "duplicate event skipped", "event_id", ev.EventID, "order_id", ev.OrderID)
			return nil
		case r.Status == idempotency.StatusInProgress:
			return errBusy
		case r.Status == idempotency.StatusFailed:
			if err := p.idempStore.Reclaim(ctx, key, ev.OrderID); err != nil {
				if errors.Is(err, idempotency.ErrConditionFailed) {
					return errBusy
				}
				return fmt.Errorf("reclaim event: %w", err)
			}
		}
	}

	if err := p.metrics.Record(ctx, p.metricsFor(ev)...); err != nil {
		if markErr := p.idempStore.MarkFailed(ctx, key, err.Error()); markErr != nil {
			slog.WarnContext(ctx, "mark event failed", "event_id", ev.EventID, "error", markErr)
		}
		return fmt.Errorf("record metrics: %w", err)
	}

	if err := p.idempStore.MarkDone(ctx, key, ev.EventType, 200); err != nil {
		return fmt.Errorf("mark event done: %w", err)
	}
	slog.InfoContext(ctx, "event processed", "event_id", ev.EventID, "event_type", ev.EventType, "order_id", ev.OrderID)
	return nil
}

func (p *Processor) metricsFor(ev orderevents.OrderEvent) []aws.Metric {
	count := func(name string) aws.Metric {
		return aws.Metric{Name: name, Value: 1, Unit: cwtypes.StandardUnitCount, Timestamp: ev.OccurredAt}
	}

	switch ev.EventType {
	case orderevents.TypeOrderCreated:
		return []aws.Metric{count(MetricOrdersCreated)}
	case orderevents.TypeOrderConfirmed:
		return []aws.Metric{
			count(MetricOrdersConfirmed),
			{
				Name:       MetricConfirmedRevenue,
				Value:      ev.TotalAmount,
				Unit:       cwtypes.StandardUnitNone,
				Dimensions: map[string]string{"Currency": p.displayCurrency},
				Timestamp:  ev.OccurredAt,
			},
		}
	case orderevents.TypeOrderCancelled:
		return []aws.Metric{count(MetricOrdersCancelled)}
	}
	slog.Warn("unknown event type, no metrics recorded", "event_type", ev.EventType, "event_id", ev.EventID)
	return nil
}
