package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OrdersTable != "orders" || cfg.ProductsTable != "products" || cfg.CartsTable != "carts" {
		t.Fatalf("unexpected table defaults: %+v", cfg)
	}
	if cfg.RateSource != RateSourceFixed || cfg.FixedRate.String() != "83" {
		t.Fatalf("unexpected rate defaults: %s %s", cfg.RateSource, cfg.FixedRate)
	}
	if cfg.PayPalTimeout != 15*time.Second {
		t.Fatalf("expected 15s paypal timeout, got %s", cfg.PayPalTimeout)
	}
	if cfg.IdempotencyTTL != 48*time.Hour {
		t.Fatalf("expected 48h idempotency ttl, got %s", cfg.IdempotencyTTL)
	}
	if cfg.IdempotencyLease != time.Minute {
		t.Fatalf("expected 1m idempotency lease, got %s", cfg.IdempotencyLease)
	}
	if cfg.RunLocal {
		t.Fatal("RUN_LOCAL must default to false")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("RUN_LOCAL", "true")
	t.Setenv("ORDERS_TABLE", "shop-orders")
	t.Setenv("PAYPAL_TIMEOUT", "5")
	t.Setenv("CURRENCY_RATE_SOURCE", "LIVE")
	t.Setenv("CURRENCY_RATE_URL", "http://rates.local/usd-inr")
	t.Setenv("CURRENCY_RATE_TTL", "10m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.RunLocal || cfg.OrdersTable != "shop-orders" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.PayPalTimeout != 5*time.Second {
		t.Fatalf("expected bare seconds to parse, got %s", cfg.PayPalTimeout)
	}
	if cfg.RateSource != RateSourceLive || cfg.RateTTL != 10*time.Minute {
		t.Fatalf("unexpected rate config: %s %s", cfg.RateSource, cfg.RateTTL)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown rate source":  {"CURRENCY_RATE_SOURCE": "oracle"},
		"live without url":     {"CURRENCY_RATE_SOURCE": "live"},
		"non-positive rate":    {"CURRENCY_FIXED_RATE": "0"},
		"malformed rate":       {"CURRENCY_FIXED_RATE": "eighty"},
		"malformed duration":   {"IDEMPOTENCY_TTL": "two days"},
		"zero gateway timeout": {"PAYPAL_TIMEOUT": "0s"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestValidateGateway(t *testing.T) {
	t.Setenv("RUN_LOCAL", "")
	t.Setenv("PAYPAL_CLIENT_ID", "")
	t.Setenv("PAYPAL_CLIENT_SECRET", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.ValidateGateway(); err == nil || !strings.Contains(err.Error(), "PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET") {
		t.Fatalf("expected missing credentials error, got %v", err)
	}

	cfg.PayPalClientID = "client"
	if err := cfg.ValidateGateway(); err == nil || !strings.Contains(err.Error(), "PAYPAL_CLIENT_SECRET") {
		t.Fatalf("expected missing secret error, got %v", err)
	}

	cfg.PayPalClientSecret = "secret"
	if err := cfg.ValidateGateway(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Setenv("RUN_LOCAL", "true")
	local, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := local.ValidateGateway(); err != nil {
		t.Fatalf("local mode must allow empty credentials: %v", err)
	}
}
