// Package redisstore implements storage.Store on Redis, behind a circuit breaker.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/alextreichler/minishop/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store keeps values without expiry; receipts live as long as the Redis data does.
type Store struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker[[]byte]
}

// Options tunes the breaker. Zero values fall back to the defaults below.
type Options struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

func New(client *redis.Client, opts Options) *Store {
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	if opts.OpenTimeout == 0 {
		opts.OpenTimeout = 10 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "redis-storage",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.FailureThreshold
		},
		// Misses and insert conflicts are answers, not outages.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrExists)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &Store{client: client, cb: cb}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	return s.cb.Execute(func() ([]byte, error) {
		data, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("redis get failed: %w", err)
		}
		return data, nil
	})
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.cb.Execute(func() ([]byte, error) {
		if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
			return nil, fmt.Errorf("redis set failed: %w", err)
		}
		return nil, nil
	})
	return err
}

func (s *Store) Create(ctx context.Context, key string, value []byte) error {
	_, err := s.cb.Execute(func() ([]byte, error) {
		ok, err := s.client.SetNX(ctx, key, value, 0).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx failed: %w", err)
		}
		if !ok {
			return nil, storage.ErrExists
		}
		return nil, nil
	})
	return err
}

// Ping checks the connection without going through the breaker.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
