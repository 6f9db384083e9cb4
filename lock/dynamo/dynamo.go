// Package dynamo implements a workspace lease in DynamoDB, for workspaces
// stored in S3 or MinIO where no local file lock can be shared.
//
// Table schema:
//   - Partition key: lock_key (string) - the workspace URI
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name unibase-locks \
//	  --attribute-definitions AttributeName=lock_key,AttributeType=S \
//	  --key-schema AttributeName=lock_key,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
//
// A lease expires after its TTL unless it is refreshed, so a crashed owner
// blocks others for at most one TTL.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/hupe1980/unibase/lock"
)

var _ lock.Locker = (*Lease)(nil)

// Client is the subset of the DynamoDB API a Lease needs.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Options configures a Lease.
type Options struct {
	// TTL is how long a lease stays valid without a refresh.
	TTL time.Duration

	// Owner identifies this holder. Defaults to a random UUID.
	Owner string

	// RefreshInterval is how often the lease is renewed in the background.
	// Zero means TTL/3; negative disables refreshing.
	RefreshInterval time.Duration

	// Now returns the current time. Tests override it.
	Now func() time.Time
}

// DefaultOptions are the lease defaults.
var DefaultOptions = Options{
	TTL: time.Minute,
	Now: time.Now,
}

// Lease is a lock.Locker backed by a conditional DynamoDB item.
type Lease struct {
	client Client
	table  string
	key    string
	opts   Options

	mu     sync.Mutex
	held   bool
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a lease on key in table.
func New(client Client, table, key string, optFns ...func(o *Options)) *Lease {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.TTL <= 0 {
		opts.TTL = DefaultOptions.TTL
	}
	if opts.Owner == "" {
		opts.Owner = uuid.NewString()
	}
	if opts.RefreshInterval == 0 {
		opts.RefreshInterval = opts.TTL / 3
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Lease{client: client, table: table, key: key, opts: opts}
}

// Owner returns the owner id written into the lease item.
func (l *Lease) Owner() string { return l.opts.Owner }

// Lock implements lock.Locker. The lease is taken when no item exists, the
// existing one has expired, or it already belongs to this owner.
func (l *Lease) Lock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return fmt.Errorf("%w: already held by this lease", lock.ErrLocked)
	}
	if err := l.put(ctx); err != nil {
		return err
	}
	l.held = true

	if l.opts.RefreshInterval > 0 {
		rctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		l.cancel = cancel
		l.done = make(chan struct{})
		go l.refresh(rctx, l.done)
	}
	return nil
}

// Unlock implements lock.Locker.
func (l *Lease) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return lock.ErrNotHeld
	}
	if l.cancel != nil {
		l.cancel()
		<-l.done
		l.cancel, l.done = nil, nil
	}
	l.held = false

	_, err := l.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(l.table),
		Key: map[string]types.AttributeValue{
			"lock_key": &types.AttributeValueMemberS{Value: l.key},
		},
		ConditionExpression: aws.String("#owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": "owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: l.opts.Owner},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			// Expired and taken over; nothing left to release.
			return lock.ErrNotHeld
		}
		return fmt.Errorf("dynamo: release lease: %w", err)
	}
	return nil
}

func (l *Lease) put(ctx context.Context) error {
	now := l.opts.Now()
	expires := now.Add(l.opts.TTL)

	_, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.table),
		Item: map[string]types.AttributeValue{
			"lock_key":   &types.AttributeValueMemberS{Value: l.key},
			"owner":      &types.AttributeValueMemberS{Value: l.opts.Owner},
			"expires_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(expires.UnixMilli(), 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(lock_key) OR expires_at < :now OR #owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": "owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":   &types.AttributeValueMemberN{Value: strconv.FormatInt(now.UnixMilli(), 10)},
			":owner": &types.AttributeValueMemberS{Value: l.opts.Owner},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return lock.ErrLocked
		}
		return fmt.Errorf("dynamo: acquire lease: %w", err)
	}
	return nil
}

func (l *Lease) refresh(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A failed refresh is retried on the next tick; the lease only
			// lapses if every refresh within one TTL fails.
			_ = l.put(ctx)
		}
	}
}
