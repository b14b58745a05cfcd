package orders

import "time"

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusCancelled = "cancelled"
)

// Payment statuses. The storefront sends "pending" for an unpaid order.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusPaid      = "paid"
	PaymentStatusCancelled = "cancelled"
)

// PaymentMethodPayPal is the only payment method the checkout supports.
const PaymentMethodPayPal = "paypal"

// MaxLineQuantity bounds the quantity of a single line and of all lines of one product.
const MaxLineQuantity = 10000

// LineItem is a frozen snapshot of a cart line at checkout time.
type LineItem struct {
	ProductID string  `dynamodbav:"product_id" json:"productId"`
	Title     string  `dynamodbav:"title" json:"title"`
	Image     string  `dynamodbav:"image,omitempty" json:"image,omitempty"`
	Price     float64 `dynamodbav:"price" json:"price"`
	Quantity  int     `dynamodbav:"quantity" json:"quantity"`
}

// Address is the shipping address snapshot.
type Address struct {
	AddressID string `dynamodbav:"address_id,omitempty" json:"addressId,omitempty"`
	Address   string `dynamodbav:"address" json:"address"`
	City      string `dynamodbav:"city" json:"city"`
	Pincode   string `dynamodbav:"pincode" json:"pincode"`
	Phone     string `dynamodbav:"phone" json:"phone"`
	Notes     string `dynamodbav:"notes,omitempty" json:"notes,omitempty"`
}

// Order represents the item stored in the Orders DynamoDB table.
type Order struct {
	OrderID         string     `dynamodbav:"order_id" json:"_id"`   // PK
	UserID          string     `dynamodbav:"user_id" json:"userId"` // GSI partition key
	CartID          string     `dynamodbav:"cart_id,omitempty" json:"cartId,omitempty"`
	CartItems       []LineItem `dynamodbav:"cart_items" json:"cartItems"`
	AddressInfo     Address    `dynamodbav:"address_info" json:"addressInfo"`
	OrderStatus     string     `dynamodbav:"order_status" json:"orderStatus"`
	PaymentStatus   string     `dynamodbav:"payment_status" json:"paymentStatus"`
	PaymentMethod   string     `dynamodbav:"payment_method" json:"paymentMethod"`
	TotalAmount     float64    `dynamodbav:"total_amount" json:"totalAmount"`
	PaymentID       string     `dynamodbav:"payment_id,omitempty" json:"paymentId,omitempty"`
	PayerID         string     `dynamodbav:"payer_id,omitempty" json:"payerId,omitempty"`
	OrderDate       time.Time  `dynamodbav:"order_date" json:"orderDate"`
	OrderUpdateDate time.Time  `dynamodbav:"order_update_date" json:"orderUpdateDate"`
}

// Product is the slice of a catalog item the capture touches.
type Product struct {
	ProductID  string `dynamodbav:"product_id"`
	Title      string `dynamodbav:"title,omitempty"`
	TotalStock int    `dynamodbav:"total_stock"`
}
