package orders

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/imrishuroy/go-storefront-orders/internal/testutil"
)

var testTables = Tables{
	Orders:    "orders",
	UserIndex: "user_id-index",
	Products:  "products",
	Carts:     "carts",
}

func newTestStore(t *testing.T) (*Store, *testutil.Dynamo) {
	t.Helper()
	mock := testutil.NewDynamo()
	mock.CreateTable(testTables.Orders, "order_id")
	mock.CreateTable(testTables.Products, "product_id")
	mock.CreateTable(testTables.Carts, "cart_id")
	return NewStore(mock, testTables), mock
}

func seed(t *testing.T, mock *testutil.Dynamo, table string, v interface{}) {
	t.Helper()
	if err := mock.Seed(table, v); err != nil {
		t.Fatalf("seed %s: %v", table, err)
	}
}

func pendingOrder(id, userID, cartID string, items ...LineItem) Order {
	total := 0.0
	for _, it := range items {
		total += it.Price * float64(it.Quantity)
	}
	return Order{
		OrderID:       id,
		UserID:        userID,
		CartID:        cartID,
		CartItems:     items,
		OrderStatus:   OrderStatusPending,
		PaymentStatus: PaymentStatusPending,
		PaymentMethod: PaymentMethodPayPal,
		TotalAmount:   total,
	}
}

func stockOf(t *testing.T, mock *testutil.Dynamo, productID string) int {
	t.Helper()
	var p Product
	ok, err := mock.Load(testTables.Products, productID, &p)
	if err != nil || !ok {
		t.Fatalf("load product %s: ok=%v err=%v", productID, ok, err)
	}
	return p.TotalStock
}

func TestCreateAndGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	order := pendingOrder("order-1", "user-1", "cart-1", LineItem{ProductID: "p1", Title: "Shirt", Price: 499, Quantity: 2})
	if err := store.Create(ctx, order); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, "order-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatalf("expected order, got nil")
	}
	if got.UserID != "user-1" || got.OrderStatus != OrderStatusPending || len(got.CartItems) != 1 {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got.OrderDate.IsZero() || got.OrderUpdateDate.IsZero() {
		t.Fatalf("dates not set: %+v", got)
	}

	if err := store.Create(ctx, order); !errors.Is(err, ErrOrderExists) {
		t.Fatalf("expected ErrOrderExists, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	store, _ := newTestStore(t)

	got, err := store.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil order, got %+v", got)
	}
}

func TestListByUser(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"o1", "o2", "o3"} {
		o := pendingOrder(id, "user-1", "", LineItem{ProductID: "p1", Price: 10, Quantity: 1})
		o.OrderDate = base.Add(time.Duration(i) * time.Hour)
		if err := store.Create(ctx, o); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if err := store.Create(ctx, pendingOrder("other", "user-2", "", LineItem{ProductID: "p1", Price: 10, Quantity: 1})); err != nil {
		t.Fatalf("create other: %v", err)
	}

	got, err := store.ListByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(got))
	}
	if got[0].OrderID != "o3" || got[2].OrderID != "o1" {
		t.Fatalf("expected newest first, got %s..%s", got[0].OrderID, got[2].OrderID)
	}

	none, err := store.ListByUser(ctx, "nobody")
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", none)
	}
}

func TestListByUser_FollowsPages(t *testing.T) {
	store, mock := newTestStore(t)
	ctx := context.Background()
	mock.PageSize = 2

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"o1", "o2", "o3"} {
		o := pendingOrder(id, "user-1", "", LineItem{ProductID: "p1", Price: 10, Quantity: 1})
		o.OrderDate = base.Add(time.Duration(i) * time.Hour)
		if err := store.Create(ctx, o); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	got, err := store.ListByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 || got[0].OrderID != "o3" || got[2].OrderID != "o1" {
		t.Fatalf("expected all 3 orders newest first across pages, got %+v", got)
	}
	if n := mock.Calls["Query"]; n != 2 {
		t.Fatalf("expected 2 query pages, got %d", n)
	}
}

func TestUpdateStatus_Condition_SuccessAndFail(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, pendingOrder("order-10", "u1", "", LineItem{ProductID: "p1", Price: 1, Quantity: 1})); err != nil {
		t.Fatalf("create: %v", err)
	}

	// success: pending -> cancelled
	got, err := store.UpdateStatus(ctx, "order-10", OrderStatusPending, OrderStatusCancelled, PaymentStatusCancelled)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got.OrderStatus != OrderStatusCancelled || got.PaymentStatus != PaymentStatusCancelled {
		t.Fatalf("statuses not updated together: %+v", got)
	}

	// failure: order is no longer pending
	_, err = store.UpdateStatus(ctx, "order-10", OrderStatusPending, OrderStatusCancelled, PaymentStatusCancelled)
	if !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}

	// failure: order does not exist, nothing is created
	_, err = store.UpdateStatus(ctx, "ghost", OrderStatusPending, OrderStatusCancelled, PaymentStatusCancelled)
	if !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch for missing order, got %v", err)
	}
	if o, _ := store.Get(ctx, "ghost"); o != nil {
		t.Fatalf("missing order must not be created by a status update")
	}
}

func TestCapture_Success(t *testing.T) {
	store, mock := newTestStore(t)
	ctx := context.Background()

	seed(t, mock, testTables.Products, Product{ProductID: "p1", TotalStock: 10})
	seed(t, mock, testTables.Products, Product{ProductID: "p2", TotalStock: 3})
	seed(t, mock, testTables.Carts, testutil.Cart{CartID: "cart-1", UserID: "u1"})

	order := pendingOrder("order-1", "u1", "cart-1",
		LineItem{ProductID: "p1", Price: 100, Quantity: 2},
		LineItem{ProductID: "p2", Price: 50, Quantity: 3},
		LineItem{ProductID: "p1", Price: 100, Quantity: 1},
	)
	seed(t, mock, testTables.Orders, order)

	got, err := store.Capture(ctx, order, "PAYID-1", "PAYER-1")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if got.OrderStatus != OrderStatusConfirmed || got.PaymentStatus != PaymentStatusPaid {
		t.Fatalf("unexpected statuses: %+v", got)
	}

	stored, _ := store.Get(ctx, "order-1")
	if stored.OrderStatus != OrderStatusConfirmed || stored.PaymentStatus != PaymentStatusPaid {
		t.Fatalf("stored statuses not updated: %+v", stored)
	}
	if stored.PaymentID != "PAYID-1" || stored.PayerID != "PAYER-1" {
		t.Fatalf("gateway ids not stored: %+v", stored)
	}
	if s := stockOf(t, mock, "p1"); s != 7 {
		t.Fatalf("expected p1 stock 7, got %d", s)
	}
	if s := stockOf(t, mock, "p2"); s != 0 {
		t.Fatalf("expected p2 stock 0, got %d", s)
	}
	if mock.Item(testTables.Carts, "cart-1") != nil {
		t.Fatalf("cart should be deleted")
	}
}

func TestCapture_MissingCartIsNotAnError(t *testing.T) {
	store, mock := newTestStore(t)
	seed(t, mock, testTables.Products, Product{ProductID: "p1", TotalStock: 1})
	order := pendingOrder("order-1", "u1", "already-gone", LineItem{ProductID: "p1", Price: 1, Quantity: 1})
	seed(t, mock, testTables.Orders, order)

	if _, err := store.Capture(context.Background(), order, "pay", "payer"); err != nil {
		t.Fatalf("expected success without cart, got %v", err)
	}
}

func TestCapture_ProductNotFound_NothingWritten(t *testing.T) {
	store, mock := newTestStore(t)
	ctx := context.Background()

	seed(t, mock, testTables.Products, Product{ProductID: "p1", TotalStock: 5})
	seed(t, mock, testTables.Carts, testutil.Cart{CartID: "cart-1"})
	order := pendingOrder("order-1", "u1", "cart-1",
		LineItem{ProductID: "p1", Price: 1, Quantity: 2},
		LineItem{ProductID: "missing", Price: 1, Quantity: 1},
	)
	seed(t, mock, testTables.Orders, order)

	_, err := store.Capture(ctx, order, "pay", "payer")
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	if s := stockOf(t, mock, "p1"); s != 5 {
		t.Fatalf("earlier line must not be decremented, stock=%d", s)
	}
	if mock.Item(testTables.Carts, "cart-1") == nil {
		t.Fatalf("cart must survive a failed capture")
	}
	stored, _ := store.Get(ctx, "order-1")
	if stored.OrderStatus != OrderStatusPending {
		t.Fatalf("order must stay pending, got %s", stored.OrderStatus)
	}
}

func TestCapture_InsufficientStock(t *testing.T) {
	store, mock := newTestStore(t)
	seed(t, mock, testTables.Products, Product{ProductID: "p1", TotalStock: 1})
	order := pendingOrder("order-1", "u1", "", LineItem{ProductID: "p1", Price: 1, Quantity: 2})
	seed(t, mock, testTables.Orders, order)

	_, err := store.Capture(context.Background(), order, "pay", "payer")
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	var se *StockError
	if !errors.As(err, &se) || se.Available != 1 || se.Requested != 2 {
		t.Fatalf("expected StockError with details, got %v", err)
	}
	if s := stockOf(t, mock, "p1"); s != 1 {
		t.Fatalf("stock must be unchanged, got %d", s)
	}
}

func TestCapture_OrderNotPending(t *testing.T) {
	store, mock := newTestStore(t)
	seed(t, mock, testTables.Products, Product{ProductID: "p1", TotalStock: 5})
	order := pendingOrder("order-1", "u1", "", LineItem{ProductID: "p1", Price: 1, Quantity: 1})
	order.OrderStatus = OrderStatusCancelled
	seed(t, mock, testTables.Orders, order)

	_, err := store.Capture(context.Background(), order, "pay", "payer")
	if !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}
	if s := stockOf(t, mock, "p1"); s != 5 {
		t.Fatalf("stock must be unchanged, got %d", s)
	}
}

// Two captures that together need more than the available stock: exactly one may win.
func TestCapture_ConcurrentCapturesNeverOversell(t *testing.T) {
	store, mock := newTestStore(t)
	ctx := context.Background()

	seed(t, mock, testTables.Products, Product{ProductID: "p1", TotalStock: 3})
	a := pendingOrder("order-a", "u1", "", LineItem{ProductID: "p1", Price: 1, Quantity: 2})
	b := pendingOrder("order-b", "u2", "", LineItem{ProductID: "p1", Price: 1, Quantity: 2})
	seed(t, mock, testTables.Orders, a)
	seed(t, mock, testTables.Orders, b)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, o := range []Order{a, b} {
		wg.Add(1)
		go func(i int, o Order) {
			defer wg.Done()
			_, errs[i] = store.Capture(ctx, o, "pay-"+o.OrderID, "payer")
		}(i, o)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientStock):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one capture to succeed, got %d", succeeded)
	}
	if s := stockOf(t, mock, "p1"); s != 1 {
		t.Fatalf("expected stock 1, got %d", s)
	}
}

func TestCapture_ConcurrentCapturesExactStock(t *testing.T) {
	store, mock := newTestStore(t)
	ctx := context.Background()

	seed(t, mock, testTables.Products, Product{ProductID: "p1", TotalStock: 4})
	a := pendingOrder("order-a", "u1", "", LineItem{ProductID: "p1", Price: 1, Quantity: 2})
	b := pendingOrder("order-b", "u2", "", LineItem{ProductID: "p1", Price: 1, Quantity: 2})
	seed(t, mock, testTables.Orders, a)
	seed(t, mock, testTables.Orders, b)

	var wg sync.WaitGroup
	for _, o := range []Order{a, b} {
		wg.Add(1)
		go func(o Order) {
			defer wg.Done()
			if _, err := store.Capture(ctx, o, "pay", "payer"); err != nil {
				t.Errorf("capture %s: %v", o.OrderID, err)
			}
		}(o)
	}
	wg.Wait()

	if s := stockOf(t, mock, "p1"); s != 0 {
		t.Fatalf("expected stock 0, got %d", s)
	}
}

func TestAggregateLines(t *testing.T) {
	got, err := aggregateLines([]LineItem{
		{ProductID: "a", Quantity: 1},
		{ProductID: "b", Quantity: 2},
		{ProductID: "a", Quantity: 3},
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(got) != 2 || got[0].ProductID != "a" || got[0].Quantity != 4 || got[1].Quantity != 2 {
		t.Fatalf("unexpected aggregation: %+v", got)
	}
}

func TestAggregateLines_RejectsOutOfRangeQuantities(t *testing.T) {
	cases := map[string][]LineItem{
		"zero":          {{ProductID: "a", Quantity: 0}},
		"negative":      {{ProductID: "a", Quantity: -3}},
		"over ceiling":  {{ProductID: "a", Quantity: MaxLineQuantity + 1}},
		"sum over cap":  {{ProductID: "a", Quantity: MaxLineQuantity}, {ProductID: "a", Quantity: 1}},
		"sum overflows": {{ProductID: "a", Quantity: math.MaxInt/2 + 1}, {ProductID: "a", Quantity: math.MaxInt/2 + 1}},
	}
	for name, lines := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := aggregateLines(lines); !errors.Is(err, ErrInvalidQuantity) {
				t.Fatalf("expected ErrInvalidQuantity, got %v", err)
			}
		})
	}
}

func TestCapture_DuplicateHugeLinesNeverRaiseStock(t *testing.T) {
	store, mock := newTestStore(t)
	ctx := context.Background()
	seed(t, mock, testTables.Products, Product{ProductID: "p1", TotalStock: 5})

	huge := math.MaxInt/2 + 1
	order := pendingOrder("order-1", "u1", "",
		LineItem{ProductID: "p1", Title: "Shirt", Price: 1, Quantity: huge},
		LineItem{ProductID: "p1", Title: "Shirt", Price: 1, Quantity: huge},
	)
	seed(t, mock, testTables.Orders, order)

	if _, err := store.Capture(ctx, order, "PAY-1", "PAYER-1"); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if s := stockOf(t, mock, "p1"); s != 5 {
		t.Fatalf("stock must stay 5, got %d", s)
	}
	got, _ := store.Get(ctx, "order-1")
	if got.OrderStatus != OrderStatusPending {
		t.Fatalf("order must stay pending, got %s", got.OrderStatus)
	}
	if n := mock.Calls["TransactWriteItems"]; n != 0 {
		t.Fatalf("no transaction expected, got %d", n)
	}
}
