package store

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/JonMunkholm/foodingest/internal/food"
)

// DynamoAPI is the subset of *dynamodb.Client used by Dynamo.
type DynamoAPI interface {
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Dynamo writes records with BatchWriteItem put requests.
type Dynamo struct {
	client DynamoAPI
}

// NewDynamo returns a Dynamo store using client.
func NewDynamo(client DynamoAPI) *Dynamo {
	return &Dynamo{client: client}
}

// BatchWrite sends items as one BatchWriteItem call. Items sharing a
// food_name are collapsed to the last one, since the API rejects duplicate
// keys within a request. Items the service reports in UnprocessedItems are
// returned for retry.
func (d *Dynamo) BatchWrite(ctx context.Context, table string, items []food.FoodRecord) ([]food.FoodRecord, error) {
	if len(items) == 0 {
		return nil, nil
	}

	reqs := make([]types.WriteRequest, 0, len(items))
	pos := make(map[string]int, len(items))
	for _, it := range items {
		req := types.WriteRequest{PutRequest: &types.PutRequest{Item: marshalItem(it)}}
		if i, dup := pos[it.FoodName]; dup {
			reqs[i] = req
			continue
		}
		pos[it.FoodName] = len(reqs)
		reqs = append(reqs, req)
	}

	out, err := d.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{table: reqs},
	})
	if err != nil {
		return nil, &food.BatchWriteError{
			Table:     table,
			Size:      len(items),
			Retryable: retryableAWSError(err),
			Err:       err,
		}
	}

	var unprocessed []food.FoodRecord
	for _, req := range out.UnprocessedItems[table] {
		if req.PutRequest == nil {
			continue
		}
		unprocessed = append(unprocessed, unmarshalItem(req.PutRequest.Item))
	}
	return unprocessed, nil
}

func marshalItem(r food.FoodRecord) map[string]types.AttributeValue {
	item := make(map[string]types.AttributeValue, len(food.Fields))
	for name, v := range r.Attributes() {
		item[name] = &types.AttributeValueMemberS{Value: v}
	}
	return item
}

func unmarshalItem(item map[string]types.AttributeValue) food.FoodRecord {
	row := make(food.Row, len(item))
	for name, av := range item {
		if s, ok := av.(*types.AttributeValueMemberS); ok {
			row[name] = s.Value
		}
	}
	return food.RecordFromRow(row)
}

// retryableAWSCodes are client-fault codes that still clear up on retry.
var retryableAWSCodes = map[string]bool{
	"ProvisionedThroughputExceededException": true,
	"ThrottlingException":                    true,
	"RequestLimitExceeded":                   true,
	"LimitExceededException":                 true,
	"TransactionInProgressException":         true,
}

// permanentAWSCodes are rejections caused by the request or the table
// itself. The SDK does not model all of them, so they arrive without a fault.
var permanentAWSCodes = map[string]bool{
	"ValidationException":                      true,
	"ResourceNotFoundException":                true,
	"AccessDeniedException":                    true,
	"UnrecognizedClientException":              true,
	"ItemCollectionSizeLimitExceededException": true,
	"SerializationException":                   true,
}

// retryableAWSError treats throttling, server faults and errors without an
// API code (network, timeouts) as retryable.
func retryableAWSError(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return true
	}
	code := apiErr.ErrorCode()
	switch {
	case retryableAWSCodes[code]:
		return true
	case permanentAWSCodes[code]:
		return false
	}
	return apiErr.ErrorFault() != smithy.FaultClient
}
