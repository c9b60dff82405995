// Package lock provides the optional cross-host QC cycle lock.
//
// With [redis] url set, engines on different hosts take turns querying the
// pending set through a redislock lease. Without it every cycle proceeds.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out leases on one key.
type Locker interface {
	// TryAcquire returns a nil Lease without error when another holder owns
	// the lock.
	TryAcquire(ctx context.Context) (Lease, error)
	Close() error
}

// Noop always grants the lock.
type Noop struct{}

func (Noop) TryAcquire(context.Context) (Lease, error) { return noopLease{}, nil }

func (Noop) Close() error { return nil }

type noopLease struct{}

func (noopLease) Release(context.Context) error { return nil }

// Redis holds key with a TTL through redislock.
type Redis struct {
	client *redis.Client
	locker *redislock.Client
	key    string
	ttl    time.Duration
	owned  bool
}

// NewRedis wraps an existing client. The caller keeps ownership of client.
func NewRedis(client *redis.Client, key string, ttl time.Duration) *Redis {
	return &Redis{client: client, locker: redislock.New(client), key: key, ttl: ttl}
}

// Open connects to url and returns a Redis locker that owns its client.
func Open(ctx context.Context, url, key string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(url))
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	r := NewRedis(client, key, ttl)
	r.owned = true
	return r, nil
}

// TryAcquire obtains the lock once, without retrying.
func (r *Redis) TryAcquire(ctx context.Context) (Lease, error) {
	l, err := r.locker.Obtain(ctx, r.key, r.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", r.key, err)
	}
	return redisLease{l}, nil
}

// Close releases the client when Open created it.
func (r *Redis) Close() error {
	if r == nil || !r.owned {
		return nil
	}
	return r.client.Close()
}

type redisLease struct{ lock *redislock.Lock }

func (l redisLease) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}
