package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront-orders/internal/aws"
	"github.com/imrishuroy/go-storefront-orders/internal/checkout"
	"github.com/imrishuroy/go-storefront-orders/internal/config"
	orderevents "github.com/imrishuroy/go-storefront-orders/internal/events"
	"github.com/imrishuroy/go-storefront-orders/internal/handlers"
	"github.com/imrishuroy/go-storefront-orders/internal/idempotency"
	"github.com/imrishuroy/go-storefront-orders/internal/logging"
	"github.com/imrishuroy/go-storefront-orders/internal/orders"
	"github.com/imrishuroy/go-storefront-orders/internal/payment"
)

func setupRouter(logger *slog.Logger, cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.CorrelationIDMiddleware(), logging.RequestLogger(logger))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterOrdersRoutes(r.Group("/api/shop/order"), cfg)

	return r
}

func newRateSource(cfg config.Config) payment.RateSource {
	if cfg.RateSource == config.RateSourceLive {
		return payment.NewLiveRate(cfg.RateURL, &http.Client{Timeout: cfg.PayPalTimeout}, cfg.RateTTL)
	}
	return payment.NewFixedRate(cfg.FixedRate)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err := cfg.ValidateGateway(); err != nil {
		logger.Error("invalid paypal configuration", "error", err)
		os.Exit(1)
	}
	if cfg.PayPalClientID == "" {
		logger.Warn("paypal credentials not set, checkout calls will fail")
	}

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		logger.Error("failed to init aws clients", "error", err)
		os.Exit(1)
	}

	var emitter orderevents.Emitter = orderevents.Discard{}
	if cfg.OrdersQueueURL != "" {
		emitter = orderevents.NewSQSEmitter(aws.NewPublisher(clients.SQS, cfg.OrdersQueueURL))
	} else {
		logger.Warn("ORDERS_QUEUE_URL not set, order events are disabled")
	}

	store := orders.NewStore(clients.DynamoDB, orders.Tables{
		Orders:    cfg.OrdersTable,
		UserIndex: cfg.OrdersUserIndex,
		Products:  cfg.ProductsTable,
		Carts:     cfg.CartsTable,
	})
	gateway := payment.NewPayPalClient(payment.PayPalConfig{
		BaseURL:      cfg.PayPalBaseURL,
		ClientID:     cfg.PayPalClientID,
		ClientSecret: cfg.PayPalClientSecret,
		Timeout:      cfg.PayPalTimeout,
	})
	converter := payment.NewConverter(newRateSource(cfg), cfg.SettlementCurrency)

	svc := checkout.NewService(store, gateway, converter, emitter, checkout.Config{
		ReturnURL:          cfg.PayPalReturnURL,
		CancelURL:          cfg.PayPalCancelURL,
		SettlementCurrency: cfg.SettlementCurrency,
	})

	r := setupRouter(logger, handlers.HandlerConfig{
		Service:          svc,
		Idempotency:      idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL),
		IdempotencyLease: cfg.IdempotencyLease,
	})

	logger.Info("storefront orders api configured",
		"rate_source", cfg.RateSource,
		"display_currency", cfg.DisplayCurrency,
		"settlement_currency", cfg.SettlementCurrency,
		"paypal_base_url", cfg.PayPalBaseURL)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if cfg.RunLocal {
		runLocal(logger, cfg.HTTPAddr, r)
		return
	}

	// lambda adapter
	gin.SetMode(gin.ReleaseMode)
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

func runLocal(logger *slog.Logger, addr string, handler http.Handler) {
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("running local server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to run local server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return
	}
	logger.Info("server shutdown complete")
}
