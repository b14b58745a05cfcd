package validation

import (
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func validRequest() CreateOrderRequest {
	now := time.Now()
	return CreateOrderRequest{
		UserID: "user-1",
		CartID: "cart-1",
		CartItems: []Item{
			{ProductID: "p1", Title: "Shirt", Price: 999, Quantity: 2},
			{ProductID: "p2", Title: "Cap", Price: 250, Quantity: 1},
		},
		AddressInfo:   Address{Address: "1 Main St", City: "Pune", Pincode: "411001", Phone: "999"},
		TotalAmount:   2248,
		OrderStatus:   "pending",
		PaymentStatus: "pending",
		PaymentMethod: "paypal",
		OrderDate:     &now,
	}
}

func TestCreateOrderRequest_Valid(t *testing.T) {
	v := New()

	if err := v.Struct(validRequest()); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
}

func TestCreateOrderRequest_TotalNeedNotMatchItems(t *testing.T) {
	v := New()

	req := validRequest()
	req.TotalAmount = 2000 // discounts are applied client side

	if err := v.Struct(req); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
}

func TestCreateOrderRequest_Invalid(t *testing.T) {
	cases := map[string]struct {
		mutate func(*CreateOrderRequest)
		field  string
	}{
		"missing user":   {func(r *CreateOrderRequest) { r.UserID = "" }, "userId"},
		"no items":       {func(r *CreateOrderRequest) { r.CartItems = nil }, "cartItems"},
		"empty items":    {func(r *CreateOrderRequest) { r.CartItems = []Item{} }, "cartItems"},
		"zero total":     {func(r *CreateOrderRequest) { r.TotalAmount = 0 }, "totalAmount"},
		"negative total": {func(r *CreateOrderRequest) { r.TotalAmount = -1 }, "totalAmount"},
		"zero quantity":  {func(r *CreateOrderRequest) { r.CartItems[1].Quantity = 0 }, "cartItems[1].quantity"},
		"free item":      {func(r *CreateOrderRequest) { r.CartItems[0].Price = 0 }, "cartItems[0].price"},
		"huge quantity":  {func(r *CreateOrderRequest) { r.CartItems[0].Quantity = math.MaxInt/2 + 1 }, "cartItems[0].quantity"},
		"no product id":  {func(r *CreateOrderRequest) { r.CartItems[0].ProductID = "" }, "cartItems[0].productId"},
	}

	v := New()
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)

			err := v.Struct(req)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			fields := validationErrorsToMap(err)
			if _, ok := fields[tc.field]; !ok {
				t.Fatalf("expected error on %s, got %v", tc.field, fields)
			}
		})
	}
}

func TestCaptureAndCancelRequests(t *testing.T) {
	v := New()

	if err := v.Struct(CaptureRequest{PaymentID: "PAYID-1", PayerID: "P1"}); err == nil {
		t.Fatal("capture without orderId must fail")
	}
	if err := v.Struct(CaptureRequest{OrderID: "o1"}); err != nil {
		t.Fatalf("capture with orderId only: %v", err)
	}
	if err := v.Struct(CancelRequest{}); err == nil {
		t.Fatal("cancel without orderId must fail")
	}
}

func TestBindAndValidate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := New()

	cases := []struct {
		body   string
		status int
		want   string
	}{
		{`{"orderId":"o1"}`, http.StatusOK, ""},
		{`{"orderId":`, http.StatusBadRequest, "Invalid request body"},
		{`{}`, http.StatusBadRequest, `"orderId":"is required"`},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/cancel", strings.NewReader(tc.body))
		c.Request.Header.Set("Content-Type", "application/json")

		var req CancelRequest
		err := BindAndValidate(c, &req, v)
		if tc.status == http.StatusOK {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tc.body, err)
			}
			continue
		}
		if err == nil || w.Code != tc.status || !strings.Contains(w.Body.String(), tc.want) {
			t.Fatalf("%s: got err=%v code=%d body=%s", tc.body, err, w.Code, w.Body.String())
		}
	}
}

func TestValidationErrorsToMap_NonValidationError(t *testing.T) {
	fields := validationErrorsToMap(errors.New("boom"))
	if fields["error"] != "boom" {
		t.Fatalf("unexpected map: %v", fields)
	}
}
