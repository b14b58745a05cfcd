// Package testutil holds in-memory fakes shared by package tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type item = map[string]types.AttributeValue

// Dynamo is an in-memory DynamoDB supporting the expression subset the stores use:
//
//	conditions: attribute_exists(a), attribute_not_exists(a), a = :v, a <> :v, a >= :v, a > :v, a <= :v, a < :v joined by AND
//	updates:    SET a = :v, b = b - :v, c = c + :v
//	queries:    key condition over all items, paged by Limit or PageSize
//
// Every call runs under one mutex, so a TransactWriteItems call is atomic with respect to other calls.
type Dynamo struct {
	mu     sync.Mutex
	keys   map[string]string
	tables map[string]map[string]item

	// Errs injects a failure per operation name ("PutItem", "TransactWriteItems", ...).
	Errs map[string]error

	Calls map[string]int

	// PageSize caps the items of one Query page when the request sets no Limit. Zero means unpaged.
	PageSize int
}

// NewDynamo returns an empty fake with no tables.
func NewDynamo() *Dynamo {
	return &Dynamo{
		keys:   map[string]string{},
		tables: map[string]map[string]item{},
		Errs:   map[string]error{},
		Calls:  map[string]int{},
	}
}

// CreateTable registers a table with its partition key attribute.
func (d *Dynamo) CreateTable(name, partitionKey string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[name] = partitionKey
	if _, ok := d.tables[name]; !ok {
		d.tables[name] = map[string]item{}
	}
}

// Seed marshals v with attributevalue and stores it in table.
func (d *Dynamo) Seed(table string, v interface{}) error {
	m, err := attributevalue.MarshalMap(v)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	pk, err := d.itemKey(table, m)
	if err != nil {
		return err
	}
	d.tables[table][pk] = m
	return nil
}

// Item returns a copy of the stored item, or nil.
func (d *Dynamo) Item(table, key string) map[string]types.AttributeValue {
	d.mu.Lock()
	defer d.mu.Unlock()
	it, ok := d.tables[table][key]
	if !ok {
		return nil
	}
	return copyItem(it)
}

// Load unmarshals the stored item into out and reports whether it exists.
func (d *Dynamo) Load(table, key string, out interface{}) (bool, error) {
	it := d.Item(table, key)
	if it == nil {
		return false, nil
	}
	return true, attributevalue.UnmarshalMap(it, out)
}

// Count returns the number of items in table.
func (d *Dynamo) Count(table string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tables[table])
}

func (d *Dynamo) begin(op string) error {
	d.Calls[op]++
	return d.Errs[op]
}

func (d *Dynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("PutItem"); err != nil {
		return nil, err
	}
	table := *params.TableName
	pk, err := d.itemKey(table, params.Item)
	if err != nil {
		return nil, err
	}
	ok, err := evalCondition(params.ConditionExpression, d.tables[table][pk], params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
	}
	d.tables[table][pk] = copyItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (d *Dynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("GetItem"); err != nil {
		return nil, err
	}
	table := *params.TableName
	pk, err := d.keyValue(table, params.Key)
	if err != nil {
		return nil, err
	}
	it, ok := d.tables[table][pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(it)}, nil
}

func (d *Dynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("UpdateItem"); err != nil {
		return nil, err
	}
	table := *params.TableName
	pk, err := d.keyValue(table, params.Key)
	if err != nil {
		return nil, err
	}
	current := d.tables[table][pk]
	ok, err := evalCondition(params.ConditionExpression, current, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		out := &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
		if params.ReturnValuesOnConditionCheckFailure == types.ReturnValuesOnConditionCheckFailureAllOld && current != nil {
			out.Item = copyItem(current)
		}
		return nil, out
	}
	next, err := applyUpdate(params.UpdateExpression, current, params.Key, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	d.tables[table][pk] = next

	out := &dyn.UpdateItemOutput{}
	switch params.ReturnValues {
	case types.ReturnValueAllNew, types.ReturnValueUpdatedNew:
		out.Attributes = copyItem(next)
	case types.ReturnValueAllOld, types.ReturnValueUpdatedOld:
		out.Attributes = copyItem(current)
	}
	return out, nil
}

// Query evaluates the key condition against every item of the table; IndexName is accepted but not modeled.
// Matches are returned in partition key order, paged by params.Limit or PageSize when set.
func (d *Dynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("Query"); err != nil {
		return nil, err
	}
	table := *params.TableName
	if _, ok := d.tables[table]; !ok {
		return nil, fmt.Errorf("table %s not found", table)
	}

	pks := make([]string, 0, len(d.tables[table]))
	for pk := range d.tables[table] {
		pks = append(pks, pk)
	}
	sort.Strings(pks)

	start := ""
	if len(params.ExclusiveStartKey) > 0 {
		var err error
		if start, err = d.keyValue(table, params.ExclusiveStartKey); err != nil {
			return nil, err
		}
	}
	limit := d.PageSize
	if params.Limit != nil {
		limit = int(*params.Limit)
	}

	out := &dyn.QueryOutput{}
	for _, pk := range pks {
		if start != "" && pk <= start {
			continue
		}
		it := d.tables[table][pk]
		ok, err := evalCondition(params.KeyConditionExpression, it, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if limit > 0 && len(out.Items) == limit {
			last := out.Items[len(out.Items)-1]
			out.LastEvaluatedKey = item{d.keys[table]: last[d.keys[table]]}
			break
		}
		out.Items = append(out.Items, copyItem(it))
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

type pendingWrite struct {
	table  string
	pk     string
	next   item // nil means delete
	delete bool
}

func (d *Dynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("TransactWriteItems"); err != nil {
		return nil, err
	}
	if len(params.TransactItems) > 100 {
		return nil, errors.New("too many transact items")
	}

	reasons := make([]types.CancellationReason, len(params.TransactItems))
	writes := make([]pendingWrite, 0, len(params.TransactItems))
	seen := map[string]bool{}
	failed := false

	for i, ti := range params.TransactItems {
		var (
			table, pk string
			cond      *string
			names     map[string]string
			values    map[string]types.AttributeValue
			onFail    types.ReturnValuesOnConditionCheckFailure
			w         pendingWrite
			err       error
		)
		switch {
		case ti.Put != nil:
			table, cond, names, values, onFail = *ti.Put.TableName, ti.Put.ConditionExpression, ti.Put.ExpressionAttributeNames, ti.Put.ExpressionAttributeValues, ti.Put.ReturnValuesOnConditionCheckFailure
			pk, err = d.itemKey(table, ti.Put.Item)
			w = pendingWrite{table: table, pk: pk, next: copyItem(ti.Put.Item)}
		case ti.Update != nil:
			table, cond, names, values, onFail = *ti.Update.TableName, ti.Update.ConditionExpression, ti.Update.ExpressionAttributeNames, ti.Update.ExpressionAttributeValues, ti.Update.ReturnValuesOnConditionCheckFailure
			pk, err = d.keyValue(table, ti.Update.Key)
			w = pendingWrite{table: table, pk: pk}
		case ti.Delete != nil:
			table, cond, names, values, onFail = *ti.Delete.TableName, ti.Delete.ConditionExpression, ti.Delete.ExpressionAttributeNames, ti.Delete.ExpressionAttributeValues, ti.Delete.ReturnValuesOnConditionCheckFailure
			pk, err = d.keyValue(table, ti.Delete.Key)
			w = pendingWrite{table: table, pk: pk, delete: true}
		case ti.ConditionCheck != nil:
			table, cond, names, values, onFail = *ti.ConditionCheck.TableName, ti.ConditionCheck.ConditionExpression, ti.ConditionCheck.ExpressionAttributeNames, ti.ConditionCheck.ExpressionAttributeValues, ti.ConditionCheck.ReturnValuesOnConditionCheckFailure
			pk, err = d.keyValue(table, ti.ConditionCheck.Key)
		default:
			return nil, errors.New("empty transact item")
		}
		if err != nil {
			return nil, err
		}
		if seen[table+"/"+pk] {
			return nil, errors.New("ValidationException: transaction request cannot include multiple operations on one item")
		}
		seen[table+"/"+pk] = true

		current := d.tables[table][pk]
		ok, err := evalCondition(cond, current, names, values)
		if err != nil {
			return nil, err
		}
		reasons[i] = types.CancellationReason{Code: strPtr("None")}
		if !ok {
			failed = true
			reasons[i] = types.CancellationReason{
				Code:    strPtr("ConditionalCheckFailed"),
				Message: strPtr("The conditional request failed"),
			}
			if onFail == types.ReturnValuesOnConditionCheckFailureAllOld && current != nil {
				reasons[i].Item = copyItem(current)
			}
		}
		if !ok || ti.ConditionCheck != nil {
			continue
		}
		// updates are computed only for items whose condition holds
		if ti.Update != nil {
			if w.next, err = applyUpdate(ti.Update.UpdateExpression, current, ti.Update.Key, names, values); err != nil {
				return nil, err
			}
		}
		writes = append(writes, w)
	}

	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             strPtr("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}

	for _, w := range writes {
		if w.delete {
			delete(d.tables[w.table], w.pk)
			continue
		}
		d.tables[w.table][w.pk] = w.next
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (d *Dynamo) itemKey(table string, it item) (string, error) {
	attr, ok := d.keys[table]
	if !ok {
		return "", fmt.Errorf("table %s not found", table)
	}
	v, ok := it[attr].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("item for %s missing string key %s", table, attr)
	}
	return v.Value, nil
}

func (d *Dynamo) keyValue(table string, key item) (string, error) {
	attr, ok := d.keys[table]
	if !ok {
		return "", fmt.Errorf("table %s not found", table)
	}
	if len(key) != 1 {
		return "", fmt.Errorf("key for %s must have exactly one attribute", table)
	}
	v, ok := key[attr].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("key for %s missing string attribute %s", table, attr)
	}
	return v.Value, nil
}

func evalCondition(expr *string, current item, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	if expr == nil || strings.TrimSpace(*expr) == "" {
		return true, nil
	}
	for _, clause := range strings.Split(*expr, " AND ") {
		ok, err := evalClause(strings.TrimSpace(clause), current, names, values)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalClause(clause string, current item, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	if inner, ok := call(clause, "attribute_exists"); ok {
		_, exists := current[resolve(inner, names)]
		return exists, nil
	}
	if inner, ok := call(clause, "attribute_not_exists"); ok {
		_, exists := current[resolve(inner, names)]
		return !exists, nil
	}

	for _, op := range []string{" >= ", " <= ", " <> ", " = ", " > ", " < "} {
		lhs, rhs, found := strings.Cut(clause, op)
		if !found {
			continue
		}
		left, ok := current[resolve(strings.TrimSpace(lhs), names)]
		if !ok {
			return false, nil
		}
		right, ok := values[strings.TrimSpace(rhs)]
		if !ok {
			return false, fmt.Errorf("missing expression value %s", rhs)
		}
		cmp, err := compare(left, right)
		if err != nil {
			return false, err
		}
		switch strings.TrimSpace(op) {
		case ">=":
			return cmp >= 0, nil
		case "<=":
			return cmp <= 0, nil
		case "<>":
			return cmp != 0, nil
		case "=":
			return cmp == 0, nil
		case ">":
			return cmp > 0, nil
		default:
			return cmp < 0, nil
		}
	}
	return false, fmt.Errorf("unsupported condition clause %q", clause)
}

func applyUpdate(expr *string, current, key item, names map[string]string, values map[string]types.AttributeValue) (item, error) {
	next := copyItem(current)
	if next == nil {
		next = copyItem(key)
	}
	if expr == nil {
		return next, nil
	}
	body, ok := strings.CutPrefix(strings.TrimSpace(*expr), "SET ")
	if !ok {
		return nil, fmt.Errorf("unsupported update expression %q", *expr)
	}
	for _, assign := range strings.Split(body, ",") {
		lhs, rhs, found := strings.Cut(assign, "=")
		if !found {
			return nil, fmt.Errorf("bad assignment %q", assign)
		}
		target := resolve(strings.TrimSpace(lhs), names)
		rhs = strings.TrimSpace(rhs)

		if v, ok := values[rhs]; ok {
			next[target] = v
			continue
		}
		for _, op := range []string{" - ", " + "} {
			base, delta, found := strings.Cut(rhs, op)
			if !found {
				continue
			}
			cur, err := number(next[resolve(strings.TrimSpace(base), names)])
			if err != nil {
				return nil, err
			}
			d, err := number(values[strings.TrimSpace(delta)])
			if err != nil {
				return nil, err
			}
			if op == " - " {
				d = -d
			}
			next[target] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(cur+d, 'f', -1, 64)}
			rhs = ""
			break
		}
		if rhs != "" {
			return nil, fmt.Errorf("unsupported assignment value %q", rhs)
		}
	}
	return next, nil
}

func compare(a, b types.AttributeValue) (int, error) {
	if as, ok := a.(*types.AttributeValueMemberS); ok {
		bs, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, errors.New("type mismatch in comparison")
		}
		return strings.Compare(as.Value, bs.Value), nil
	}
	x, err := number(a)
	if err != nil {
		return 0, err
	}
	y, err := number(b)
	if err != nil {
		return 0, err
	}
	switch {
	case x < y:
		return -1, nil
	case x > y:
		return 1, nil
	}
	return 0, nil
}

func number(v types.AttributeValue) (float64, error) {
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("expected number attribute, got %T", v)
	}
	return strconv.ParseFloat(n.Value, 64)
}

func call(clause, fn string) (string, bool) {
	inner, ok := strings.CutPrefix(clause, fn+"(")
	if !ok {
		return "", false
	}
	return strings.TrimSuffix(inner, ")"), true
}

func resolve(name string, names map[string]string) string {
	if strings.HasPrefix(name, "#") {
		if n, ok := names[name]; ok {
			return n
		}
	}
	return name
}

func copyItem(it item) item {
	if it == nil {
		return nil
	}
	out := make(item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

func strPtr(s string) *string { return &s }

// Cart is a minimal cart document for seeding the carts table.
type Cart struct {
	CartID string `dynamodbav:"cart_id"`
	UserID string `dynamodbav:"user_id,omitempty"`
}
