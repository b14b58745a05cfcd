package payment

import (
	"errors"
	"fmt"
)

var (
	// ErrGateway wraps every failure talking to the payment processor.
	ErrGateway = errors.New("payment gateway error")
	// ErrNoApprovalURL means the processor accepted the payment but returned no approval link.
	ErrNoApprovalURL = errors.New("payment gateway returned no approval url")
)

// APIError is a non-2xx response from PayPal.
type APIError struct {
	StatusCode int    `json:"-"`
	Name       string `json:"name"`
	Message    string `json:"message"`
	DebugID    string `json:"debug_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paypal %d %s: %s (debug_id=%s)", e.StatusCode, e.Name, e.Message, e.DebugID)
}

func (e *APIError) Unwrap() error { return ErrGateway }
