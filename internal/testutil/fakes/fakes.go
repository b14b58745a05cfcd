// Package fakes holds payment gateway and event emitter fakes for service and handler tests.
package fakes

import (
	"context"
	"fmt"
	"sync"

	"github.com/imrishuroy/go-storefront-orders/internal/events"
	"github.com/imrishuroy/go-storefront-orders/internal/payment"
)

// Gateway is a payment.Gateway returning PAYID-n payments with an approval link.
// Set Err to fail every call or NoApprovalLink to drop the approval link.
type Gateway struct {
	mu             sync.Mutex
	Requests       []payment.PaymentRequest
	Err            error
	NoApprovalLink bool
}

func NewGateway() *Gateway { return &Gateway{} }

func (g *Gateway) CreatePayment(ctx context.Context, req payment.PaymentRequest) (*payment.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Requests = append(g.Requests, req)
	if g.Err != nil {
		return nil, g.Err
	}

	n := len(g.Requests)
	p := &payment.Payment{
		ID:     fmt.Sprintf("PAYID-%d", n),
		Intent: req.Intent,
		State:  "created",
		Links: []payment.Link{
			{Href: fmt.Sprintf("https://api.paypal.test/v1/payments/payment/PAYID-%d", n), Rel: "self", Method: "GET"},
		},
	}
	if !g.NoApprovalLink {
		p.Links = append(p.Links, payment.Link{
			Href:   fmt.Sprintf("https://www.paypal.test/checkoutnow?token=EC-%d", n),
			Rel:    payment.RelApprovalURL,
			Method: "REDIRECT",
		})
	}
	return p, nil
}

// Calls returns the number of CreatePayment calls.
func (g *Gateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Requests)
}

// Emitter records emitted order events.
type Emitter struct {
	mu     sync.Mutex
	Events []events.OrderEvent
	Err    error
}

func (e *Emitter) Emit(ctx context.Context, ev events.OrderEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	e.Events = append(e.Events, ev)
	return nil
}

// Types returns the emitted event types in order.
func (e *Emitter) Types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.Events))
	for _, ev := range e.Events {
		out = append(out, ev.EventType)
	}
	return out
}
