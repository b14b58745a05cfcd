package validation

import "time"

// Item is one cart line of a checkout request.
type Item struct {
	ProductID string  `json:"productId" validate:"required"`
	Title     string  `json:"title" validate:"required"`
	Image     string  `json:"image,omitempty"`
	Price     float64 `json:"price" validate:"gt=0"`                        // display currency
	Quantity  int     `json:"quantity" validate:"required,min=1,max=10000"` // orders.MaxLineQuantity
}

// Address is the shipping address snapshot.
type Address struct {
	AddressID string `json:"addressId,omitempty"`
	Address   string `json:"address"`
	City      string `json:"city"`
	Pincode   string `json:"pincode"`
	Phone     string `json:"phone"`
	Notes     string `json:"notes,omitempty"`
}

// CreateOrderRequest is the payload for POST /create. The status, method and date fields are
// accepted for compatibility with the storefront client; the server sets its own values.
type CreateOrderRequest struct {
	UserID          string     `json:"userId" validate:"required"`
	CartID          string     `json:"cartId"`
	CartItems       []Item     `json:"cartItems" validate:"required,min=1,dive"`
	AddressInfo     Address    `json:"addressInfo"`
	TotalAmount     float64    `json:"totalAmount" validate:"gt=0"`
	OrderStatus     string     `json:"orderStatus,omitempty"`
	PaymentStatus   string     `json:"paymentStatus,omitempty"`
	PaymentMethod   string     `json:"paymentMethod,omitempty"`
	OrderDate       *time.Time `json:"orderDate,omitempty"`
	OrderUpdateDate *time.Time `json:"orderUpdateDate,omitempty"`
	PaymentID       string     `json:"paymentId,omitempty"`
	PayerID         string     `json:"payerId,omitempty"`
}

// CaptureRequest is the payload for POST /capture.
type CaptureRequest struct {
	PaymentID string `json:"paymentId"`
	PayerID   string `json:"payerId"`
	OrderID   string `json:"orderId" validate:"required"`
}

// CancelRequest is the payload for POST /cancel.
type CancelRequest struct {
	OrderID string `json:"orderId" validate:"required"`
}
