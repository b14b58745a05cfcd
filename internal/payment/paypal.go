package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Gateway creates payment intents with an external processor.
type Gateway interface {
	CreatePayment(ctx context.Context, req PaymentRequest) (*Payment, error)
}

// PayPalConfig configures the PayPal REST client.
type PayPalConfig struct {
	BaseURL      string // e.g. https://api-m.sandbox.paypal.com
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// PayPalClient talks to the PayPal v1 payments API. Access tokens are fetched and
// refreshed with the OAuth2 client-credentials flow.
type PayPalClient struct {
	baseURL string
	http    *http.Client
}

// NewPayPalClient returns a client whose requests, token requests included, time out after cfg.Timeout.
func NewPayPalClient(cfg PayPalConfig) *PayPalClient {
	base := strings.TrimRight(cfg.BaseURL, "/")
	baseHTTP := &http.Client{Timeout: cfg.Timeout}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     base + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, baseHTTP)
	client := cc.Client(tokenCtx)
	client.Timeout = cfg.Timeout

	return &PayPalClient{baseURL: base, http: client}
}

// CreatePayment submits a payment intent. Transport and token failures are wrapped in
// ErrGateway; non-2xx answers come back as *APIError.
func (c *PayPalClient) CreatePayment(ctx context.Context, req PaymentRequest) (*Payment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal payment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payments/payment", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build payment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: create payment: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if jsonErr := json.Unmarshal(raw, apiErr); jsonErr != nil || apiErr.Name == "" {
			apiErr.Name = http.StatusText(resp.StatusCode)
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return nil, apiErr
	}

	var p Payment
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decode payment: %v", ErrGateway, err)
	}
	return &p, nil
}
