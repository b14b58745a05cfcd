// Package checkout coordinates the order lifecycle: it creates pending orders together with a
// PayPal payment, and confirms or cancels them when the buyer comes back from PayPal.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/imrishuroy/go-storefront-orders/internal/events"
	"github.com/imrishuroy/go-storefront-orders/internal/orders"
	"github.com/imrishuroy/go-storefront-orders/internal/payment"
)

// ErrInvalidInput is returned for requests that fail validation. Nothing is written.
var ErrInvalidInput = errors.New("invalid input")

// OrderStore is the persistence the lifecycle needs; *orders.Store implements it.
type OrderStore interface {
	Create(ctx context.Context, order orders.Order) error
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	ListByUser(ctx context.Context, userID string) ([]orders.Order, error)
	UpdateStatus(ctx context.Context, orderID, expectedOrderStatus, orderStatus, paymentStatus string) (*orders.Order, error)
	Capture(ctx context.Context, order orders.Order, paymentID, payerID string) (*orders.Order, error)
}

// Quoter returns the exchange rate snapshot for one payment.
type Quoter interface {
	Quote(ctx context.Context) (payment.Quote, error)
}

type Config struct {
	ReturnURL          string
	CancelURL          string
	SettlementCurrency string
}

type Service struct {
	store   OrderStore
	gateway payment.Gateway
	quoter  Quoter
	emitter events.Emitter
	cfg     Config
}

func NewService(store OrderStore, gateway payment.Gateway, quoter Quoter, emitter events.Emitter, cfg Config) *Service {
	if emitter == nil {
		emitter = events.Discard{}
	}
	return &Service{store: store, gateway: gateway, quoter: quoter, emitter: emitter, cfg: cfg}
}

// CreateInput is a checkout request. OrderID may be preset by the caller; a uuid is used otherwise.
type CreateInput struct {
	OrderID     string
	UserID      string
	CartID      string
	Items       []orders.LineItem
	Address     orders.Address
	TotalAmount float64
}

type CreateResult struct {
	OrderID     string
	PaymentID   string
	ApprovalURL string
}

// CreateOrder submits a payment to the gateway and, once the gateway has returned an approval
// link, persists the order as pending. A gateway failure leaves nothing behind.
func (s *Service) CreateOrder(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	quote, err := s.quoter.Quote(ctx)
	if err != nil {
		return nil, fmt.Errorf("quote settlement currency: %w", err)
	}

	lines := make([]payment.Line, 0, len(in.Items))
	for _, it := range in.Items {
		lines = append(lines, payment.Line{Name: it.Title, SKU: it.ProductID, Price: it.Price, Quantity: it.Quantity})
	}
	req := payment.NewSaleRequest(quote, lines, in.TotalAmount, s.redirectURLs())

	p, err := s.gateway.CreatePayment(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	approvalURL, ok := p.ApprovalURL()
	if !ok {
		return nil, fmt.Errorf("payment %s: %w", p.ID, payment.ErrNoApprovalURL)
	}

	orderID := in.OrderID
	if orderID == "" {
		orderID = uuid.NewString()
	}
	order := orders.Order{
		OrderID:       orderID,
		UserID:        in.UserID,
		CartID:        in.CartID,
		CartItems:     in.Items,
		AddressInfo:   in.Address,
		OrderStatus:   orders.OrderStatusPending,
		PaymentStatus: orders.PaymentStatusPending,
		PaymentMethod: orders.PaymentMethodPayPal,
		TotalAmount:   in.TotalAmount,
		PaymentID:     p.ID,
	}
	if err := s.store.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	slog.InfoContext(ctx, "order created",
		"order_id", orderID, "user_id", in.UserID, "payment_id", p.ID,
		"settlement_total", req.Transactions[0].Amount.Total, "currency", quote.Currency)
	s.emit(ctx, events.TypeOrderCreated, order)

	return &CreateResult{OrderID: orderID, PaymentID: p.ID, ApprovalURL: approvalURL}, nil
}

func (in CreateInput) validate() error {
	switch {
	case in.UserID == "":
		return fmt.Errorf("%w: userId is required", ErrInvalidInput)
	case len(in.Items) == 0:
		return fmt.Errorf("%w: cartItems must not be empty", ErrInvalidInput)
	case in.TotalAmount <= 0:
		return fmt.Errorf("%w: totalAmount must be positive", ErrInvalidInput)
	}
	perProduct := make(map[string]int, len(in.Items))
	for i, it := range in.Items {
		if it.ProductID == "" || it.Quantity < 1 || it.Price <= 0 {
			return fmt.Errorf("%w: cartItems[%d] needs a productId, a positive price and quantity", ErrInvalidInput, i)
		}
		// both operands are within [1, MaxLineQuantity] here, so the sum cannot wrap
		if it.Quantity > orders.MaxLineQuantity || perProduct[it.ProductID]+it.Quantity > orders.MaxLineQuantity {
			return fmt.Errorf("%w: quantity of product %s exceeds %d", ErrInvalidInput, it.ProductID, orders.MaxLineQuantity)
		}
		perProduct[it.ProductID] += it.Quantity
	}
	return nil
}

// Capture confirms a pending order after the buyer approved the payment. Capturing a confirmed
// order again returns it unchanged.
func (s *Service) Capture(ctx context.Context, orderID, paymentID, payerID string) (*orders.Order, error) {
	if orderID == "" {
		return nil, fmt.Errorf("%w: orderId is required", ErrInvalidInput)
	}

	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orders.ErrOrderNotFound
	}
	switch order.OrderStatus {
	case orders.OrderStatusConfirmed:
		return order, nil
	case orders.OrderStatusCancelled:
		return nil, fmt.Errorf("capture %s order: %w", order.OrderStatus, orders.ErrInvalidTransition)
	}

	captured, err := s.store.Capture(ctx, *order, paymentID, payerID)
	if errors.Is(err, orders.ErrStatusMismatch) {
		// lost a race with another capture or cancel
		return s.settled(ctx, orderID, orders.OrderStatusConfirmed)
	}
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "order confirmed",
		"order_id", orderID, "payment_id", paymentID, "payer_id", payerID, "lines", len(captured.CartItems))
	s.emit(ctx, events.TypeOrderConfirmed, *captured)
	return captured, nil
}

// Cancel marks a pending order cancelled. The cart and stock are left alone so the buyer can
// retry. Cancelling a cancelled order returns it unchanged; confirmed orders cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, orderID string) (*orders.Order, error) {
	if orderID == "" {
		return nil, fmt.Errorf("%w: orderId is required", ErrInvalidInput)
	}

	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orders.ErrOrderNotFound
	}
	switch order.OrderStatus {
	case orders.OrderStatusCancelled:
		return order, nil
	case orders.OrderStatusConfirmed:
		return nil, fmt.Errorf("cancel %s order: %w", order.OrderStatus, orders.ErrInvalidTransition)
	}

	cancelled, err := s.store.UpdateStatus(ctx, orderID, orders.OrderStatusPending, orders.OrderStatusCancelled, orders.PaymentStatusCancelled)
	if errors.Is(err, orders.ErrStatusMismatch) {
		return s.settled(ctx, orderID, orders.OrderStatusCancelled)
	}
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "order cancelled", "order_id", orderID)
	s.emit(ctx, events.TypeOrderCancelled, *cancelled)
	return cancelled, nil
}

// settled re-reads an order whose conditional transition failed. Reaching want already is success.
func (s *Service) settled(ctx context.Context, orderID, want string) (*orders.Order, error) {
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orders.ErrOrderNotFound
	}
	if order.OrderStatus == want {
		return order, nil
	}
	return nil, fmt.Errorf("order is %s: %w", order.OrderStatus, orders.ErrInvalidTransition)
}

// ListByUser returns the user's orders, newest first. No orders is an empty slice.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]orders.Order, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	return s.store.ListByUser(ctx, userID)
}

// Get returns one order or orders.ErrOrderNotFound.
func (s *Service) Get(ctx context.Context, orderID string) (*orders.Order, error) {
	if orderID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orders.ErrOrderNotFound
	}
	return order, nil
}

// CheckGateway creates a 1.00 test payment and returns its approval link.
func (s *Service) CheckGateway(ctx context.Context) (string, error) {
	p, err := s.gateway.CreatePayment(ctx, payment.DiagnosticRequest(s.cfg.SettlementCurrency, s.redirectURLs()))
	if err != nil {
		return "", fmt.Errorf("create test payment: %w", err)
	}
	url, ok := p.ApprovalURL()
	if !ok {
		return "", payment.ErrNoApprovalURL
	}
	return url, nil
}

func (s *Service) redirectURLs() payment.RedirectURLs {
	return payment.RedirectURLs{ReturnURL: s.cfg.ReturnURL, CancelURL: s.cfg.CancelURL}
}

// emit publishes after the state change has been committed; a failure is only logged.
func (s *Service) emit(ctx context.Context, eventType string, order orders.Order) {
	if err := s.emitter.Emit(ctx, events.NewOrderEvent(eventType, order)); err != nil {
		slog.WarnContext(ctx, "publish order event failed", "event_type", eventType, "order_id", order.OrderID, "error", err)
	}
}
