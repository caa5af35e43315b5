// Package dynamostore implements statestore.Store on Amazon DynamoDB.
//
// The table is keyed by PartitionKey (hash) and DateTime (range). Each item
// carries an EventType attribute holding the record kind and a Message
// attribute holding the payload. Two records of one job with the same
// timestamp share a key, so the later write replaces the earlier one.
package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/eunmann/s3-chunkproc/pkg/statestore"
)

// Attribute names.
const (
	AttrPartitionKey = "PartitionKey"
	AttrEventType    = "EventType"
	AttrDateTime     = "DateTime"
	AttrMessage      = "Message"
)

// ErrMalformedItem indicates a stored item lacks a string Message attribute.
var ErrMalformedItem = errors.New("malformed state item")

// API is the subset of the DynamoDB client used by Store.
type API interface {
	dynamodb.QueryAPIClient
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Store is a DynamoDB-backed statestore.Store.
type Store struct {
	api API
}

var _ statestore.Store = (*Store)(nil)

// New creates a Store using default AWS configuration.
func New(ctx context.Context) (*Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewWithConfig(cfg), nil
}

// NewWithConfig creates a Store with a custom AWS config.
func NewWithConfig(cfg aws.Config) *Store {
	return &Store{api: dynamodb.NewFromConfig(cfg)}
}

// NewWithAPI creates a Store over an existing client.
func NewWithAPI(api API) *Store {
	return &Store{api: api}
}

// QueryByKind queries the partition and filters on EventType, following
// pagination until every page has been read.
func (s *Store) QueryByKind(ctx context.Context, table, partitionKey string, kind statestore.Kind, opts ...statestore.QueryOption) (statestore.QueryResult, error) {
	o := statestore.ApplyQueryOptions(opts...)

	input := &dynamodb.QueryInput{
		TableName:              aws.String(table),
		KeyConditionExpression: aws.String("PartitionKey = :pk"),
		FilterExpression:       aws.String("EventType = :et"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: partitionKey},
			":et": &types.AttributeValueMemberS{Value: string(kind)},
		},
	}
	if o.CountOnly {
		input.Select = types.SelectCount
	}

	var res statestore.QueryResult
	p := dynamodb.NewQueryPaginator(s.api, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return statestore.QueryResult{}, fmt.Errorf("query %s records in %s for %s: %w", kind, table, partitionKey, err)
		}
		res.Count += int(page.Count)
		if o.CountOnly {
			continue
		}
		for _, item := range page.Items {
			msg, err := message(item)
			if err != nil {
				return statestore.QueryResult{}, fmt.Errorf("query %s records in %s for %s: %w", kind, table, partitionKey, err)
			}
			res.Messages = append(res.Messages, msg)
		}
	}
	return res, nil
}

// Put writes rec with PutItem. An existing item with the same
// PartitionKey and DateTime is overwritten.
func (s *Store) Put(ctx context.Context, table string, rec statestore.Record) error {
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item: map[string]types.AttributeValue{
			AttrPartitionKey: &types.AttributeValueMemberS{Value: rec.PartitionKey},
			AttrEventType:    &types.AttributeValueMemberS{Value: string(rec.Kind)},
			AttrDateTime:     &types.AttributeValueMemberS{Value: rec.Timestamp.Format(time.RFC3339Nano)},
			AttrMessage:      &types.AttributeValueMemberS{Value: rec.Message},
		},
	})
	if err != nil {
		return fmt.Errorf("put %s record in %s for %s: %w", rec.Kind, table, rec.PartitionKey, err)
	}
	return nil
}

func message(item map[string]types.AttributeValue) (string, error) {
	v, ok := item[AttrMessage].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("%w: %s is not a string", ErrMalformedItem, AttrMessage)
	}
	return v.Value, nil
}
