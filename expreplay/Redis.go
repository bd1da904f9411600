package expreplay

import (
	"context"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the key used by a RedisSnapshotter when none is
// given
const DefaultRedisKey = "rlroute:experiences"

// RedisSnapshotter saves Snapshots as gob bytes under a single Redis
// key
type RedisSnapshotter struct {
	client *backend.Client
	key    string
	ttl    time.Duration
}

// RedisOption configures a RedisSnapshotter
type RedisOption func(*RedisSnapshotter)

// WithKey sets the key that snapshots are stored under
func WithKey(key string) RedisOption {
	return func(r *RedisSnapshotter) {
		r.key = key
	}
}

// WithTTL sets the expiration of snapshots. A zero TTL never expires.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *RedisSnapshotter) {
		r.ttl = ttl
	}
}

// NewRedisSnapshotter returns a RedisSnapshotter connected to the
// Redis server at address
func NewRedisSnapshotter(address, password string, db int,
	opts ...RedisOption) *RedisSnapshotter {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisSnapshotterFromClient(client, opts...)
}

// NewRedisSnapshotterFromClient returns a RedisSnapshotter using an
// existing client
func NewRedisSnapshotterFromClient(client *backend.Client,
	opts ...RedisOption) *RedisSnapshotter {
	r := &RedisSnapshotter{
		client: client,
		key:    DefaultRedisKey,
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Key returns the key that snapshots are stored under
func (r *RedisSnapshotter) Key() string {
	return r.key
}

// Save implements the Snapshotter interface
func (r *RedisSnapshotter) Save(ctx context.Context, snap *Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}

	if err := r.client.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save: failed to save to redis: %w", err)
	}
	return nil
}

// Load implements the Snapshotter interface
func (r *RedisSnapshotter) Load(ctx context.Context) (*Snapshot, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, fmt.Errorf("load: %w: key %v", ErrNoSnapshot, r.key)
		}
		return nil, fmt.Errorf("load: failed to get from redis: %w", err)
	}

	snap, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return snap, nil
}

// Close closes the underlying client
func (r *RedisSnapshotter) Close() error {
	return r.client.Close()
}
