package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/imrishuroy/go-storefront-orders/internal/checkout"
	"github.com/imrishuroy/go-storefront-orders/internal/idempotency"
	"github.com/imrishuroy/go-storefront-orders/internal/orders"
	"github.com/imrishuroy/go-storefront-orders/internal/validation"
)

// OrderService is the order lifecycle the routes drive; *checkout.Service implements it.
type OrderService interface {
	CreateOrder(ctx context.Context, in checkout.CreateInput) (*checkout.CreateResult, error)
	Capture(ctx context.Context, orderID, paymentID, payerID string) (*orders.Order, error)
	Cancel(ctx context.Context, orderID string) (*orders.Order, error)
	ListByUser(ctx context.Context, userID string) ([]orders.Order, error)
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	CheckGateway(ctx context.Context) (string, error)
}

// HandlerConfig groups dependencies for the orders handler.
type HandlerConfig struct {
	Service OrderService
	// Idempotency enables the Idempotency-Key header on /create. Nil disables it.
	Idempotency *idempotency.Store
	// IdempotencyLease is how long an IN_PROGRESS record is honored before a retry may take
	// it over. Zero keeps such records until their TTL expires.
	IdempotencyLease time.Duration
}

// Response is the JSON envelope of every order route.
type Response struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	Data        any    `json:"data,omitempty"`
	ApprovalURL string `json:"approvalURL,omitempty"`
	OrderID     string `json:"orderId,omitempty"`
	Error       string `json:"error,omitempty"`
}

const HeaderIdempotencyKey = "Idempotency-Key"

type ordersHandler struct {
	svc   OrderService
	idem  *idempotency.Store
	lease time.Duration
}

// RegisterOrdersRoutes registers the order routes on r, normally the /api/shop/order group.
func RegisterOrdersRoutes(r gin.IRouter, cfg HandlerConfig) {
	v := validation.New()
	h := &ordersHandler{svc: cfg.Service, idem: cfg.Idempotency, lease: cfg.IdempotencyLease}

	r.POST("/create", func(c *gin.Context) {
		var req validation.CreateOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}
		h.create(c, createInput(req))
	})

	r.POST("/capture", func(c *gin.Context) {
		var req validation.CaptureRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		order, err := h.svc.Capture(c.Request.Context(), req.OrderID, req.PaymentID, req.PayerID)
		if err != nil {
			h.fail(c, err, "Some error occurred!")
			return
		}
		c.JSON(http.StatusOK, Response{Success: true, Message: "Order confirmed", Data: order})
	})

	r.POST("/cancel", func(c *gin.Context) {
		var req validation.CancelRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		order, err := h.svc.Cancel(c.Request.Context(), req.OrderID)
		if err != nil {
			h.fail(c, err, "Error cancelling order")
			return
		}
		c.JSON(http.StatusOK, Response{Success: true, Message: "Order cancelled", Data: order})
	})

	r.GET("/list/:userId", func(c *gin.Context) {
		list, err := h.svc.ListByUser(c.Request.Context(), c.Param("userId"))
		if err != nil {
			h.fail(c, err, "Some error occurred!")
			return
		}
		c.JSON(http.StatusOK, Response{Success: true, Data: list})
	})

	r.GET("/details/:id", func(c *gin.Context) {
		order, err := h.svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			h.fail(c, err, "Some error occurred!")
			return
		}
		c.JSON(http.StatusOK, Response{Success: true, Data: order})
	})

	r.GET("/test-paypal", func(c *gin.Context) {
		url, err := h.svc.CheckGateway(c.Request.Context())
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "paypal diagnostic failed", "error", err)
			c.JSON(http.StatusInternalServerError, Response{Success: false, Message: "PayPal test failed", Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, Response{Success: true, Message: "PayPal connection successful", ApprovalURL: url})
	})
}

func (h *ordersHandler) create(c *gin.Context, in checkout.CreateInput) {
	key := c.GetHeader(HeaderIdempotencyKey)
	if key == "" || h.idem == nil {
		res, err := h.svc.CreateOrder(c.Request.Context(), in)
		if err != nil {
			h.fail(c, err, "Error while creating paypal payment")
			return
		}
		c.JSON(http.StatusCreated, createdResponse(res))
		return
	}
	h.createIdempotent(c, key, in)
}

// createIdempotent runs a checkout at most once per key. A finished request is replayed from the
// stored body and an in-flight one answers 202. A failed one, or an in-flight one older than the
// lease, may be retried.
func (h *ordersHandler) createIdempotent(c *gin.Context, key string, in checkout.CreateInput) {
	ctx := c.Request.Context()
	in.OrderID = uuid.NewString()

	created, err := h.idem.CreateIfNotExists(ctx, key, in.OrderID)
	if err != nil {
		h.fail(c, fmt.Errorf("idempotency check: %w", err), "Some error occurred!")
		return
	}
	if !created {
		rec, err := h.idem.Get(ctx, key)
		if err != nil {
			h.fail(c, fmt.Errorf("idempotency lookup: %w", err), "Some error occurred!")
			return
		}
		if rec == nil {
			// expired between the conditional put and the read
			h.fail(c, fmt.Errorf("idempotency record %s vanished", key), "Some error occurred!")
			return
		}
		switch rec.Status {
		case idempotency.StatusDone:
			c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
			return
		case idempotency.StatusInProgress:
			if h.lease <= 0 || time.Since(rec.UpdatedAt) <= h.lease {
				c.JSON(http.StatusAccepted, Response{Success: false, Message: "Request already in progress", OrderID: rec.OrderID})
				return
			}
			// the owner crashed or timed out without marking the record
			if err := h.idem.ReclaimStale(ctx, key, in.OrderID, rec.UpdatedAt); err != nil {
				if errors.Is(err, idempotency.ErrConditionFailed) {
					c.JSON(http.StatusAccepted, Response{Success: false, Message: "Request already in progress"})
					return
				}
				h.fail(c, fmt.Errorf("idempotency reclaim: %w", err), "Some error occurred!")
				return
			}
			slog.WarnContext(ctx, "reclaimed stale idempotency record", "idempotency_key", key, "previous_order_id", rec.OrderID, "order_id", in.OrderID)
		case idempotency.StatusFailed:
			if err := h.idem.Reclaim(ctx, key, in.OrderID); err != nil {
				if errors.Is(err, idempotency.ErrConditionFailed) {
					c.JSON(http.StatusAccepted, Response{Success: false, Message: "Request already in progress"})
					return
				}
				h.fail(c, fmt.Errorf("idempotency reclaim: %w", err), "Some error occurred!")
				return
			}
		default:
			h.fail(c, fmt.Errorf("unknown idempotency status %q", rec.Status), "Some error occurred!")
			return
		}
	}

	res, err := h.svc.CreateOrder(ctx, in)
	if err != nil {
		if markErr := h.idem.MarkFailed(ctx, key, err.Error()); markErr != nil {
			slog.WarnContext(ctx, "mark idempotency failed", "idempotency_key", key, "error", markErr)
		}
		h.fail(c, err, "Error while creating paypal payment")
		return
	}

	body, _ := json.Marshal(createdResponse(res))
	if err := h.idem.MarkDone(ctx, key, string(body), http.StatusCreated); err != nil {
		slog.WarnContext(ctx, "mark idempotency done", "idempotency_key", key, "order_id", res.OrderID, "error", err)
	}
	c.Data(http.StatusCreated, "application/json; charset=utf-8", body)
}

func createdResponse(res *checkout.CreateResult) Response {
	return Response{Success: true, ApprovalURL: res.ApprovalURL, OrderID: res.OrderID}
}

func createInput(req validation.CreateOrderRequest) checkout.CreateInput {
	items := make([]orders.LineItem, 0, len(req.CartItems))
	for _, it := range req.CartItems {
		items = append(items, orders.LineItem{
			ProductID: it.ProductID,
			Title:     it.Title,
			Image:     it.Image,
			Price:     it.Price,
			Quantity:  it.Quantity,
		})
	}
	return checkout.CreateInput{
		UserID: req.UserID,
		CartID: req.CartID,
		Items:  items,
		Address: orders.Address{
			AddressID: req.AddressInfo.AddressID,
			Address:   req.AddressInfo.Address,
			City:      req.AddressInfo.City,
			Pincode:   req.AddressInfo.Pincode,
			Phone:     req.AddressInfo.Phone,
			Notes:     req.AddressInfo.Notes,
		},
		TotalAmount: req.TotalAmount,
	}
}

// fail maps err to a status and a generic message. Details only go to the log.
func (h *ordersHandler) fail(c *gin.Context, err error, fallback string) {
	ctx := c.Request.Context()
	status, msg := http.StatusInternalServerError, fallback

	var stockErr *orders.StockError
	switch {
	case errors.Is(err, checkout.ErrInvalidInput):
		status, msg = http.StatusBadRequest, "Invalid request data"
	case errors.Is(err, orders.ErrTooManyLines):
		status, msg = http.StatusBadRequest, "Order has too many products"
	case errors.Is(err, orders.ErrInvalidQuantity):
		status, msg = http.StatusBadRequest, "Invalid item quantity"
	case errors.Is(err, orders.ErrOrderNotFound):
		status, msg = http.StatusNotFound, "Order not found"
	case errors.Is(err, orders.ErrProductNotFound):
		status, msg = http.StatusNotFound, "Product not found"
	case errors.As(err, &stockErr):
		status, msg = http.StatusConflict, fmt.Sprintf("Not enough stock for product %s", stockErr.ProductID)
	case errors.Is(err, orders.ErrInvalidTransition):
		status, msg = http.StatusConflict, "Order status does not allow this operation"
	}

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "order request failed", "path", c.FullPath(), "error", err)
	} else {
		slog.WarnContext(ctx, "order request rejected", "path", c.FullPath(), "status", status, "error", err)
	}
	c.JSON(status, Response{Success: false, Message: msg})
}
