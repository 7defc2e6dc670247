/*
Package salesman – persistent describe stores.

Describe payloads change rarely and every fetch counts against the remote API
limits. A DescribeStore keeps raw payloads between processes; Model consults
it before calling the remote API and clears it in ClearCache.
*/
package salesman

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/redis/go-redis/v9"
)

// DescribeStore persists raw describe payloads by object name. Load returns
// (nil, nil) on a miss.
type DescribeStore interface {
	Load(ctx context.Context, objectName string) (*RawDescribe, error)
	Save(ctx context.Context, objectName string, raw *RawDescribe) error
	Delete(ctx context.Context, objectName string) error
}

// ─── DynamoDB ────────────────────────────────────────────────────────────────

// DynamoClient is the subset of the DynamoDB client used by the describe
// store, satisfied by *dynamodb.Client and test doubles.
type DynamoClient interface {
	GetItem(ctx context.Context, params *ddb.GetItemInput, optFns ...func(*ddb.Options)) (*ddb.GetItemOutput, error)
	PutItem(ctx context.Context, params *ddb.PutItemInput, optFns ...func(*ddb.Options)) (*ddb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *ddb.DeleteItemInput, optFns ...func(*ddb.Options)) (*ddb.DeleteItemOutput, error)
}

const describeKeyPrefix = "describe#"

type describeRecord struct {
	PK       string       `dynamodbav:"pk"`
	Object   string       `dynamodbav:"object"`
	Describe *RawDescribe `dynamodbav:"describe"`
	Stored   string       `dynamodbav:"stored"`
	Expires  int64        `dynamodbav:"expires,omitempty"`
}

// DynamoDescribeStore keeps describes in a DynamoDB table with a string
// partition key named "pk". With a TTL, items carry an "expires" epoch
// attribute suitable for DynamoDB's time-to-live.
type DynamoDescribeStore struct {
	client DynamoClient
	table  string
	ttl    time.Duration
	now    func() time.Time
}

// NewDynamoDescribeStore creates a store on table. ttl <= 0 keeps items forever.
func NewDynamoDescribeStore(client DynamoClient, table string, ttl time.Duration) *DynamoDescribeStore {
	return &DynamoDescribeStore{client: client, table: table, ttl: ttl, now: time.Now}
}

func (s *DynamoDescribeStore) key(objectName string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: describeKeyPrefix + objectName},
	}
}

func (s *DynamoDescribeStore) Load(ctx context.Context, objectName string) (*RawDescribe, error) {
	out, err := s.client.GetItem(ctx, &ddb.GetItemInput{
		TableName:      &s.table,
		Key:            s.key(objectName),
		ConsistentRead: boolPtr(true),
	})
	if err != nil {
		return nil, NewError(fmt.Sprintf("cannot load describe of %s", objectName), WithCode(ErrRemote), WithCause(err))
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec describeRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, NewError(fmt.Sprintf("cannot decode stored describe of %s", objectName), WithCode(ErrRemote), WithCause(err))
	}
	if rec.Expires > 0 && s.now().Unix() >= rec.Expires {
		return nil, nil
	}
	return rec.Describe, nil
}

func (s *DynamoDescribeStore) Save(ctx context.Context, objectName string, raw *RawDescribe) error {
	now := s.now()
	rec := describeRecord{
		PK:       describeKeyPrefix + objectName,
		Object:   objectName,
		Describe: raw,
		Stored:   now.UTC().Format(time.RFC3339),
	}
	if s.ttl > 0 {
		rec.Expires = now.Add(s.ttl).Unix()
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return NewError(fmt.Sprintf("cannot encode describe of %s", objectName), WithCode(ErrRemote), WithCause(err))
	}
	if _, err := s.client.PutItem(ctx, &ddb.PutItemInput{TableName: &s.table, Item: item}); err != nil {
		return NewError(fmt.Sprintf("cannot store describe of %s", objectName), WithCode(ErrRemote), WithCause(err))
	}
	return nil
}

func (s *DynamoDescribeStore) Delete(ctx context.Context, objectName string) error {
	_, err := s.client.DeleteItem(ctx, &ddb.DeleteItemInput{TableName: &s.table, Key: s.key(objectName)})
	if err != nil {
		return NewError(fmt.Sprintf("cannot delete stored describe of %s", objectName), WithCode(ErrRemote), WithCause(err))
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }

// ─── Redis ───────────────────────────────────────────────────────────────────

// RedisClient is the subset of the go-redis client used by the describe
// store, satisfied by redis.UniversalClient.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisDescribeStore keeps describes as JSON strings in Redis.
type RedisDescribeStore struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

// NewRedisDescribeStore creates a store writing keys "<prefix><object>".
// ttl <= 0 keeps keys forever.
func NewRedisDescribeStore(client RedisClient, prefix string, ttl time.Duration) *RedisDescribeStore {
	if prefix == "" {
		prefix = "salesman:" + describeKeyPrefix
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisDescribeStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisDescribeStore) Load(ctx context.Context, objectName string) (*RawDescribe, error) {
	b, err := s.client.Get(ctx, s.prefix+objectName).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, NewError(fmt.Sprintf("cannot load describe of %s", objectName), WithCode(ErrRemote), WithCause(err))
	}
	var raw RawDescribe
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, NewError(fmt.Sprintf("cannot decode stored describe of %s", objectName), WithCode(ErrRemote), WithCause(err))
	}
	return &raw, nil
}

func (s *RedisDescribeStore) Save(ctx context.Context, objectName string, raw *RawDescribe) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return NewError(fmt.Sprintf("cannot encode describe of %s", objectName), WithCode(ErrRemote), WithCause(err))
	}
	if err := s.client.Set(ctx, s.prefix+objectName, b, s.ttl).Err(); err != nil {
		return NewError(fmt.Sprintf("cannot store describe of %s", objectName), WithCode(ErrRemote), WithCause(err))
	}
	return nil
}

func (s *RedisDescribeStore) Delete(ctx context.Context, objectName string) error {
	if err := s.client.Del(ctx, s.prefix+objectName).Err(); err != nil {
		return NewError(fmt.Sprintf("cannot delete stored describe of %s", objectName), WithCode(ErrRemote), WithCause(err))
	}
	return nil
}
