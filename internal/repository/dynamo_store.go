package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
)

const (
	attrPK    = "PK"
	attrSK    = "SK"
	attrValue = "Value"
	attrCount = "Count"
	attrTTL   = "TTL"

	skMetadata = "METADATA"

	incrExpression   = "ADD #count :one"
	incrCondition    = "attribute_not_exists(#ttl) OR #ttl > :now"
	expireExpression = "SET #ttl = :ttl"
	expireCondition  = "attribute_exists(PK)"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// kvItem is one store key in the single-table layout (KV#<key>, METADATA).
// TTL is epoch seconds and drives DynamoDB's native expiry.
type kvItem struct {
	PK    string `dynamodbav:"PK"`
	SK    string `dynamodbav:"SK"`
	Value string `dynamodbav:"Value"`
	Count int64  `dynamodbav:"Count,omitempty"`
	TTL   int64  `dynamodbav:"TTL,omitempty"`
}

// DynamoStore implements Store on a DynamoDB table with TTL enabled on the
// "TTL" attribute. DynamoDB deletes expired items lazily, so every read
// also checks the TTL itself.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	logger    *logrus.Logger
	now       func() time.Time
}

func NewDynamoStore(client DynamoAPI, tableName string, logger *logrus.Logger) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *DynamoStore) key(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: "KV#" + key},
		attrSK: &types.AttributeValueMemberS{Value: skMetadata},
	}
}

func (s *DynamoStore) expired(ttl int64) bool {
	return ttl > 0 && ttl <= s.now().Unix()
}

// Set stores a value with TTL
func (s *DynamoStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	item := kvItem{PK: "KV#" + key, SK: skMetadata, Value: value}
	if ttl > 0 {
		item.TTL = s.now().Add(ttl).Unix()
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Error("Failed to store key in DynamoDB")
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	return nil
}

// Get retrieves a value, treating expired-but-not-yet-reaped items as absent
func (s *DynamoStore) Get(ctx context.Context, key string) (string, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Error("Failed to get key from DynamoDB")
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}

	if result.Item == nil {
		return "", ErrKeyNotFound
	}

	var item kvItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return "", fmt.Errorf("failed to unmarshal item: %w", err)
	}

	if s.expired(item.TTL) {
		return "", ErrKeyNotFound
	}

	// counters are written by Incr and carry no Value attribute
	if _, ok := result.Item[attrValue]; !ok {
		return strconv.FormatInt(item.Count, 10), nil
	}
	return item.Value, nil
}

// Delete removes keys; absent keys are not an error
func (s *DynamoStore) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key:       s.key(key),
		})
		if err != nil {
			s.logger.WithError(err).WithField("key", key).Error("Failed to delete key from DynamoDB")
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	return nil
}

// Incr atomically adds one to the counter. An expired counter that DynamoDB
// has not reaped yet fails the condition and is replaced by a fresh one.
func (s *DynamoStore) Incr(ctx context.Context, key string) (int64, error) {
	now := s.now().Unix()
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 s.key(key),
		UpdateExpression:    aws.String(incrExpression),
		ConditionExpression: aws.String(incrCondition),
		ExpressionAttributeNames: map[string]string{
			"#count": attrCount,
			"#ttl":   attrTTL,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now, 10)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})

	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		item, mErr := attributevalue.MarshalMap(kvItem{PK: "KV#" + key, SK: skMetadata, Count: 1})
		if mErr != nil {
			return 0, fmt.Errorf("failed to marshal counter: %w", mErr)
		}
		delete(item, attrValue)
		if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.tableName),
			Item:      item,
		}); err != nil {
			return 0, fmt.Errorf("failed to reset counter %s: %w", key, err)
		}
		return 1, nil
	}
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Error("Failed to increment counter in DynamoDB")
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}

	var n int64
	if err := attributevalue.Unmarshal(out.Attributes[attrCount], &n); err != nil {
		return 0, fmt.Errorf("failed to unmarshal counter: %w", err)
	}
	return n, nil
}

// Expire sets the TTL attribute on an existing item
func (s *DynamoStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 s.key(key),
		UpdateExpression:    aws.String(expireExpression),
		ConditionExpression: aws.String(expireCondition),
		ExpressionAttributeNames: map[string]string{
			"#ttl": attrTTL,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Add(ttl).Unix(), 10)},
		},
	})

	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return nil
	}
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Error("Failed to set expiry in DynamoDB")
		return fmt.Errorf("failed to expire %s: %w", key, err)
	}
	return nil
}

func (s *DynamoStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(s.tableName),
		Key:                  s.key(key),
		ConsistentRead:       aws.Bool(true),
		ProjectionExpression: aws.String("#ttl"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": attrTTL,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read ttl of %s: %w", key, err)
	}
	if result.Item == nil {
		return 0, nil
	}

	var item kvItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return 0, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	if item.TTL == 0 || s.expired(item.TTL) {
		return 0, nil
	}
	return time.Unix(item.TTL, 0).Sub(s.now()), nil
}

func (s *DynamoStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	return err
}
