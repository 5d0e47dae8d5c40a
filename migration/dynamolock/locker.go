// Package dynamolock implements the migration advisory lock on a DynamoDB table
// keyed by "lock_key" with "expires_at" as its TTL attribute.
package dynamolock

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
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
)

const (
	KeyAttribute = "lock_key"
	TTLAttribute = "expires_at"

	DefaultTTL = 3 * time.Hour

	// leaseMargin covers the guard, the launch and the release around the waits.
	leaseMargin = 15 * time.Minute
)

// LeaseFor returns a TTL that outlives a run bounded by budget. An unbounded run
// (zero budget) gets DefaultTTL; once that lapses only the RUNNING task check
// protects the family.
func LeaseFor(budget time.Duration) time.Duration {
	if budget <= 0 {
		return DefaultTTL
	}
	return budget + leaseMargin
}

// ErrNotHeld is returned by Release when the lock is missing or owned by someone else.
var ErrNotHeld = errors.New("migration lock not held")

// LockHeldError is returned by Acquire when another owner holds an unexpired lock.
type LockHeldError struct {
	Key       string
	Owner     string
	ExpiresAt time.Time
}

func (e *LockHeldError) Error() string {
	if e.Owner == "" {
		return fmt.Sprintf("migration lock %s is already held", e.Key)
	}
	return fmt.Sprintf("migration lock %s held by %s until %s", e.Key, e.Owner, e.ExpiresAt.UTC().Format(time.RFC3339))
}

type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type lockItem struct {
	LockKey    string `dynamodbav:"lock_key"`
	Owner      string `dynamodbav:"owner"`
	AcquiredAt int64  `dynamodbav:"acquired_at"`
	ExpiresAt  int64  `dynamodbav:"expires_at"`
}

// Locker holds at most one lease per key. Each Locker has its own owner id, so two
// deployments never release each other's lock.
type Locker struct {
	client Client
	table  string
	owner  string
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Locker)

// WithTTL bounds how long a crashed deployment can keep the lock.
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) { l.ttl = ttl }
}

func WithOwner(owner string) Option {
	return func(l *Locker) { l.owner = owner }
}

func WithClock(now func() time.Time) Option {
	return func(l *Locker) { l.now = now }
}

func New(client Client, table string, opts ...Option) *Locker {
	l := &Locker{
		client: client,
		table:  table,
		owner:  uuid.New().String(),
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Locker) Owner() string {
	return l.owner
}

// Acquire writes the lock item unless an unexpired one already exists.
func (l *Locker) Acquire(ctx context.Context, key string) error {
	now := l.now().UTC()
	item := lockItem{
		LockKey:    key,
		Owner:      l.owner,
		AcquiredAt: now.Unix(),
		ExpiresAt:  now.Add(l.ttl).Unix(),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return pkgerrors.Wrap(err, "marshalling migration lock")
	}

	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(#key) OR #expAt < :now"),
		ExpressionAttributeNames: map[string]string{
			"#key":   KeyAttribute,
			"#expAt": TTLAttribute,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err == nil {
		return nil
	}

	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return pkgerrors.Wrapf(err, "acquiring migration lock %s", key)
	}

	held := &LockHeldError{Key: key}
	if existing, getErr := l.get(ctx, key); getErr == nil && existing != nil {
		held.Owner = existing.Owner
		held.ExpiresAt = time.Unix(existing.ExpiresAt, 0)
	}
	return held
}

// Release deletes the lock item if this Locker owns it.
func (l *Locker) Release(ctx context.Context, key string) error {
	_, err := l.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(l.table),
		Key: map[string]types.AttributeValue{
			KeyAttribute: &types.AttributeValueMemberS{Value: key},
		},
		ConditionExpression: aws.String("#owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": "owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: l.owner},
		},
	})
	if err == nil {
		return nil
	}

	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return pkgerrors.Wrapf(ErrNotHeld, "releasing %s as %s", key, l.owner)
	}
	return pkgerrors.Wrapf(err, "releasing migration lock %s", key)
}

func (l *Locker) get(ctx context.Context, key string) (*lockItem, error) {
	out, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(l.table),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			KeyAttribute: &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}

	var item lockItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, err
	}
	return &item, nil
}
