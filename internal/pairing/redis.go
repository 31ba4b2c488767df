package pairing

import (
	"context"
	"errors"
	"fmt"

	backend "github.com/redis/go-redis/v9"
	"github.com/srg/tangible/internal/device"
)

// DefaultRedisPrefix namespaces the record key.
const DefaultRedisPrefix = "tangible:"

// RedisStore keeps the record under a single Redis key.
type RedisStore struct {
	client *backend.Client
	prefix string
}

type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore connects to a Redis server.
func NewRedisStore(address, password string, db int, opts ...RedisOption) *RedisStore {
	return NewRedisStoreFromClient(backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *backend.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: DefaultRedisPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key() string { return s.prefix + Key }

func (s *RedisStore) Get(ctx context.Context) (string, error) {
	val, err := s.client.Get(ctx, s.key()).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return "", device.ErrNoPairedPeripheral
		}
		return "", fmt.Errorf("failed to read pairing record from redis: %w", err)
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, address string) error {
	addr, err := ValidateAddress(address)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(), addr, 0).Err(); err != nil {
		return fmt.Errorf("failed to save pairing record to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key()).Err(); err != nil {
		return fmt.Errorf("failed to clear pairing record in redis: %w", err)
	}
	return nil
}

// Close releases the client.
func (s *RedisStore) Close() error { return s.client.Close() }
