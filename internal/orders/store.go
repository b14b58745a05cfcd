package orders

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-storefront-orders/internal/aws"
)

// DynamoDB caps a transaction at 100 operations: one order update, one cart delete,
// the rest product decrements.
const maxCaptureProducts = 98

// Tables names the DynamoDB tables and index the store works against.
type Tables struct {
	Orders    string
	UserIndex string // GSI on user_id
	Products  string
	Carts     string
}

// Store encapsulates operations on the orders table and the capture side effects
// on the products and carts tables.
type Store struct {
	client  aws.DynamoDBAPI
	tables  Tables
	nowFunc func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tables Tables) *Store {
	return &Store{
		client:  client,
		tables:  tables,
		nowFunc: time.Now,
	}
}

// Create persists a new order. It fails with ErrOrderExists if the id is taken.
func (s *Store) Create(ctx context.Context, order Order) error {
	now := s.nowFunc().UTC()
	if order.OrderDate.IsZero() {
		order.OrderDate = now
	}
	order.OrderUpdateDate = now

	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tables.Orders,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return ErrOrderExists
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tables.Orders,
		Key:            orderKey(orderID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// ListByUser returns all orders of a user, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	input := &dyn.QueryInput{
		TableName:              &s.tables.Orders,
		IndexName:              &s.tables.UserIndex,
		KeyConditionExpression: awsString("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	}

	result := []Order{}
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query orders by user: %w", err)
		}
		var page []Order
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		result = append(result, page...)

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	slices.SortFunc(result, func(a, b Order) int {
		return b.OrderDate.Compare(a.OrderDate)
	})
	return result, nil
}

// UpdateStatus conditionally moves an order out of expectedOrderStatus, writing order and
// payment status together. Returns the updated order, or ErrStatusMismatch if the order is
// missing or in another status.
func (s *Store) UpdateStatus(ctx context.Context, orderID, expectedOrderStatus, orderStatus, paymentStatus string) (*Order, error) {
	now := s.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName:        &s.tables.Orders,
		Key:              orderKey(orderID),
		UpdateExpression: awsString("SET order_status = :os, payment_status = :ps, order_update_date = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":os":       &types.AttributeValueMemberS{Value: orderStatus},
			":ps":       &types.AttributeValueMemberS{Value: paymentStatus},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":expected": &types.AttributeValueMemberS{Value: expectedOrderStatus},
		},
		ConditionExpression: awsString("attribute_exists(order_id) AND order_status = :expected"),
		ReturnValues:        types.ReturnValueAllNew,
	}

	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return nil, ErrStatusMismatch
		}
		return nil, fmt.Errorf("update item: %w", err)
	}

	var o Order
	if err := attributevalue.UnmarshalMap(out.Attributes, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// Capture confirms a pending order in a single transaction:
//   - order pending -> confirmed/paid with the gateway payment and payer ids
//   - total_stock of every product decremented by its line quantity, only if enough stock is left
//   - the source cart deleted
//
// Either everything is written or nothing is. Cancellation reasons map to
// ErrStatusMismatch (order no longer pending), ErrProductNotFound and *StockError.
func (s *Store) Capture(ctx context.Context, order Order, paymentID, payerID string) (*Order, error) {
	lines, err := aggregateLines(order.CartItems)
	if err != nil {
		return nil, err
	}
	if len(lines) > maxCaptureProducts {
		return nil, ErrTooManyLines
	}

	now := s.nowFunc().UTC()
	items := make([]types.TransactWriteItem, 0, len(lines)+2)
	items = append(items, types.TransactWriteItem{
		Update: &types.Update{
			TableName:        &s.tables.Orders,
			Key:              orderKey(order.OrderID),
			UpdateExpression: awsString("SET order_status = :os, payment_status = :ps, payment_id = :pid, payer_id = :payer, order_update_date = :ua"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":os":      &types.AttributeValueMemberS{Value: OrderStatusConfirmed},
				":ps":      &types.AttributeValueMemberS{Value: PaymentStatusPaid},
				":pid":     &types.AttributeValueMemberS{Value: paymentID},
				":payer":   &types.AttributeValueMemberS{Value: payerID},
				":ua":      &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
				":pending": &types.AttributeValueMemberS{Value: OrderStatusPending},
			},
			ConditionExpression: awsString("attribute_exists(order_id) AND order_status = :pending"),
		},
	})

	for _, l := range lines {
		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName:        &s.tables.Products,
				Key:              map[string]types.AttributeValue{"product_id": &types.AttributeValueMemberS{Value: l.ProductID}},
				UpdateExpression: awsString("SET total_stock = total_stock - :qty"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":qty": &types.AttributeValueMemberN{Value: strconv.Itoa(l.Quantity)},
				},
				ConditionExpression:                 awsString("attribute_exists(product_id) AND total_stock >= :qty"),
				ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
			},
		})
	}

	if order.CartID != "" {
		items = append(items, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: &s.tables.Carts,
				Key:       map[string]types.AttributeValue{"cart_id": &types.AttributeValueMemberS{Value: order.CartID}},
			},
		})
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return nil, captureFailure(tce, lines)
		}
		return nil, fmt.Errorf("transact write: %w", err)
	}

	order.OrderStatus = OrderStatusConfirmed
	order.PaymentStatus = PaymentStatusPaid
	order.PaymentID = paymentID
	order.PayerID = payerID
	order.OrderUpdateDate = now
	return &order, nil
}

// captureFailure translates the per-operation cancellation reasons of a capture transaction.
// Reason 0 is the order update, reasons 1..len(lines) the product decrements.
func captureFailure(tce *types.TransactionCanceledException, lines []LineItem) error {
	reasons := tce.CancellationReasons
	failed := func(i int) bool {
		return i < len(reasons) && reasons[i].Code != nil && *reasons[i].Code == "ConditionalCheckFailed"
	}

	if failed(0) {
		return ErrStatusMismatch
	}
	for i, l := range lines {
		if !failed(i + 1) {
			continue
		}
		old := reasons[i+1].Item
		if len(old) == 0 {
			return fmt.Errorf("%w: %s", ErrProductNotFound, l.ProductID)
		}
		var p Product
		if err := attributevalue.UnmarshalMap(old, &p); err != nil {
			return fmt.Errorf("unmarshal product: %w", err)
		}
		return &StockError{ProductID: l.ProductID, Requested: l.Quantity, Available: p.TotalStock}
	}
	return fmt.Errorf("capture transaction canceled: %w", tce)
}

// aggregateLines sums quantities per product, keeping first-seen order. A transaction may
// touch each item only once. Every line and every per-product sum must lie in
// [1, MaxLineQuantity]; a wrapped-around sum would turn the stock decrement into an increment.
func aggregateLines(items []LineItem) ([]LineItem, error) {
	out := make([]LineItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, it := range items {
		if it.Quantity < 1 || it.Quantity > MaxLineQuantity {
			return nil, fmt.Errorf("%w: product %s quantity %d", ErrInvalidQuantity, it.ProductID, it.Quantity)
		}
		if i, ok := index[it.ProductID]; ok {
			if out[i].Quantity > MaxLineQuantity-it.Quantity {
				return nil, fmt.Errorf("%w: product %s exceeds %d units", ErrInvalidQuantity, it.ProductID, MaxLineQuantity)
			}
			out[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out, nil
}

func orderKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
