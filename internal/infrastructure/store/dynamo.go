package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/example/orders-ms/internal/domain/order"
)

// DynamoOrderStore stores each order as a single item with its lines and
// receipt embedded, so the create and the paid update are naturally atomic.
type DynamoOrderStore struct {
	client    *dynamodb.Client
	tableName string
}

// dynamoOrder represents the DynamoDB item structure
type dynamoOrder struct {
	ID             string              `dynamodbav:"id"`
	TotalAmount    float64             `dynamodbav:"total_amount"`
	TotalItems     int                 `dynamodbav:"total_items"`
	Status         string              `dynamodbav:"status"`
	Paid           bool                `dynamodbav:"paid"`
	PaidAt         string              `dynamodbav:"paid_at,omitempty"`
	StripeChargeID string              `dynamodbav:"stripe_charge_id,omitempty"`
	CreatedAt      string              `dynamodbav:"created_at"`
	UpdatedAt      string              `dynamodbav:"updated_at"`
	Items          []dynamoOrderItem   `dynamodbav:"items"`
	Receipt        *dynamoOrderReceipt `dynamodbav:"receipt,omitempty"`
	GSI1PK         string              `dynamodbav:"gsi1pk"`
}

type dynamoOrderItem struct {
	ProductID string  `dynamodbav:"product_id"`
	Price     float64 `dynamodbav:"price"`
	Quantity  int     `dynamodbav:"quantity"`
}

type dynamoOrderReceipt struct {
	ID         string `dynamodbav:"id"`
	ReceiptURL string `dynamodbav:"receipt_url"`
	CreatedAt  string `dynamodbav:"created_at"`
}

func NewDynamoOrderStore(client *dynamodb.Client, tableName string) *DynamoOrderStore {
	return &DynamoOrderStore{client: client, tableName: tableName}
}

// CreateOrder writes the order item with a conditional put so an id is
// never overwritten.
func (s *DynamoOrderStore) CreateOrder(ctx context.Context, o *order.Order) error {
	item := toDynamoOrder(o)

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("failed to put order: %w", err)
	}
	return nil
}

func (s *DynamoOrderStore) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if result.Item == nil {
		return nil, order.ErrOrderNotFound
	}

	var item dynamoOrder
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return fromDynamoOrder(&item)
}

// ListOrders queries the fixed-partition GSI ordered by creation time and
// pages in memory; the total has to be counted anyway for the page
// metadata.
func (s *DynamoOrderStore) ListOrders(ctx context.Context, filter ListFilter) ([]order.Order, int, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String("gsi1"),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "ORDERS"},
		},
		ScanIndexForward: aws.Bool(false), // newest first
	}
	if filter.Status != nil {
		input.FilterExpression = aws.String("#st = :status")
		input.ExpressionAttributeNames = map[string]string{"#st": "status"}
		input.ExpressionAttributeValues[":status"] = &types.AttributeValueMemberS{Value: string(*filter.Status)}
	}

	var all []order.Order
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to query orders: %w", err)
		}
		for _, raw := range page.Items {
			var item dynamoOrder
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, 0, fmt.Errorf("failed to unmarshal order: %w", err)
			}
			o, err := fromDynamoOrder(&item)
			if err != nil {
				return nil, 0, err
			}
			o.Items = nil // list view has no lines
			all = append(all, *o)
		}
	}

	total := len(all)
	start := (filter.Page - 1) * filter.Limit
	if start >= total {
		return []order.Order{}, total, nil
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (s *DynamoOrderStore) UpdateStatus(ctx context.Context, id string, status order.Status) (*order.Order, error) {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:    aws.String("SET #st = :status, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
			":now":    &types.AttributeValueMemberS{Value: time.Now().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	return s.GetOrder(ctx, id)
}

// MarkPaid applies all payment fields in one update; if_not_exists keeps
// the receipt from the first delivery when the event is redelivered.
func (s *DynamoOrderStore) MarkPaid(ctx context.Context, id string, upd PaidUpdate) (*order.Order, error) {
	receipt := dynamoOrderReceipt{
		ID:         uuid.New().String(),
		ReceiptURL: upd.ReceiptURL,
		CreatedAt:  time.Now().Format(time.RFC3339Nano),
	}
	receiptAV, err := attributevalue.Marshal(receipt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal receipt: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression: aws.String(
			"SET #st = :paid_status, paid = :paid, paid_at = :paid_at, stripe_charge_id = :charge, updated_at = :now, receipt = if_not_exists(receipt, :receipt)"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":paid_status": &types.AttributeValueMemberS{Value: string(order.StatusPaid)},
			":paid":        &types.AttributeValueMemberBOOL{Value: true},
			":paid_at":     &types.AttributeValueMemberS{Value: upd.PaidAt.Format(time.RFC3339Nano)},
			":charge":      &types.AttributeValueMemberS{Value: upd.StripeChargeID},
			":now":         &types.AttributeValueMemberS{Value: time.Now().Format(time.RFC3339Nano)},
			":receipt":     receiptAV,
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to mark order paid: %w", err)
	}
	return s.GetOrder(ctx, id)
}

func toDynamoOrder(o *order.Order) *dynamoOrder {
	item := &dynamoOrder{
		ID:             o.ID,
		TotalAmount:    o.TotalAmount,
		TotalItems:     o.TotalItems,
		Status:         string(o.Status),
		Paid:           o.Paid,
		StripeChargeID: o.StripeChargeID,
		CreatedAt:      o.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:      o.UpdatedAt.Format(time.RFC3339Nano),
		GSI1PK:         "ORDERS",
	}
	if o.PaidAt != nil {
		item.PaidAt = o.PaidAt.Format(time.RFC3339Nano)
	}
	for _, line := range o.Items {
		item.Items = append(item.Items, dynamoOrderItem(line))
	}
	return item
}

func fromDynamoOrder(item *dynamoOrder) (*order.Order, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("bad created_at on order %s: %w", item.ID, err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("bad updated_at on order %s: %w", item.ID, err)
	}

	o := &order.Order{
		ID:             item.ID,
		TotalAmount:    item.TotalAmount,
		TotalItems:     item.TotalItems,
		Status:         order.Status(item.Status),
		Paid:           item.Paid,
		StripeChargeID: item.StripeChargeID,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}
	if item.PaidAt != "" {
		paidAt, err := time.Parse(time.RFC3339Nano, item.PaidAt)
		if err != nil {
			return nil, fmt.Errorf("bad paid_at on order %s: %w", item.ID, err)
		}
		o.PaidAt = &paidAt
	}
	for _, line := range item.Items {
		o.Items = append(o.Items, order.OrderItem(line))
	}
	if item.Receipt != nil {
		receiptAt, err := time.Parse(time.RFC3339Nano, item.Receipt.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("bad receipt created_at on order %s: %w", item.ID, err)
		}
		o.Receipt = &order.Receipt{
			ID:         item.Receipt.ID,
			OrderID:    item.ID,
			ReceiptURL: item.Receipt.ReceiptURL,
			CreatedAt:  receiptAt,
		}
	}
	return o, nil
}
