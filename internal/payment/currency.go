package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// RateSource yields how many display-currency units make one settlement-currency unit.
type RateSource interface {
	Rate(ctx context.Context) (decimal.Decimal, error)
}

// FixedRate is a configured constant rate.
type FixedRate struct {
	rate decimal.Decimal
}

func NewFixedRate(rate decimal.Decimal) FixedRate { return FixedRate{rate: rate} }

func (f FixedRate) Rate(context.Context) (decimal.Decimal, error) {
	if !f.rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("fixed rate must be positive, got %s", f.rate)
	}
	return f.rate, nil
}

// LiveRate fetches the rate from an HTTP endpoint answering {"rate": 83.12} and caches it for ttl.
// When a refresh fails the last known rate is served.
type LiveRate struct {
	url     string
	client  *http.Client
	ttl     time.Duration
	nowFunc func() time.Time

	mu      sync.Mutex
	rate    decimal.Decimal
	fetched time.Time
}

func NewLiveRate(url string, client *http.Client, ttl time.Duration) *LiveRate {
	return &LiveRate{url: url, client: client, ttl: ttl, nowFunc: time.Now}
}

func (l *LiveRate) Rate(ctx context.Context) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	if !l.fetched.IsZero() && now.Sub(l.fetched) < l.ttl {
		return l.rate, nil
	}

	rate, err := l.fetch(ctx)
	if err != nil {
		if !l.fetched.IsZero() {
			slog.WarnContext(ctx, "exchange rate refresh failed, serving cached rate",
				"error", err, "rate", l.rate.String(), "age", now.Sub(l.fetched).String())
			return l.rate, nil
		}
		return decimal.Zero, err
	}
	l.rate, l.fetched = rate, now
	return rate, nil
}

func (l *LiveRate) fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build rate request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("fetch rate: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Rate decimal.Decimal `json:"rate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("decode rate: %w", err)
	}
	if !body.Rate.IsPositive() {
		return decimal.Zero, errors.New("rate endpoint returned a non-positive rate")
	}
	return body.Rate, nil
}

// Quote is a rate snapshot used for every amount of one payment.
type Quote struct {
	Rate     decimal.Decimal
	Currency string
}

// Convert turns a display-currency amount into the settlement currency, rounded to cents.
func (q Quote) Convert(amount float64) decimal.Decimal {
	return decimal.NewFromFloat(amount).Div(q.Rate).Round(2)
}

// Converter quotes the settlement currency from a RateSource.
type Converter struct {
	source   RateSource
	currency string
}

func NewConverter(source RateSource, settlementCurrency string) *Converter {
	return &Converter{source: source, currency: settlementCurrency}
}

func (c *Converter) Quote(ctx context.Context) (Quote, error) {
	rate, err := c.source.Rate(ctx)
	if err != nil {
		return Quote{}, fmt.Errorf("exchange rate: %w", err)
	}
	return Quote{Rate: rate, Currency: c.currency}, nil
}
