// Package redis persists strategy state blobs in Redis. One key per
// strategy ID; saves overwrite, loads of a missing key return no state.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// stateKeyPrefix namespaces strategy state keys.
const stateKeyPrefix = "strat:state:"

// Config configures the Redis state store.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Store implements the strategy state store on Redis.
type Store struct {
	client *goredis.Client
	cb     *CircuitBreaker
}

// New creates a Store and pings the server.
func New(cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis state store connected", slog.String("addr", cfg.Addr))
	return &Store{
		client: client,
		cb:     NewCircuitBreaker(5, 10*time.Second),
	}, nil
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// Save persists the state blob under the strategy's key.
func (s *Store) Save(strategyID string, state []byte) error {
	return s.cb.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.client.Set(ctx, stateKeyPrefix+strategyID, state, 0).Err(); err != nil {
			return fmt.Errorf("redis set %s: %w", strategyID, err)
		}
		return nil
	})
}

// Load returns the saved blob, or nil, nil when none exists.
func (s *Store) Load(strategyID string) ([]byte, error) {
	var blob []byte
	err := s.cb.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		b, err := s.client.Get(ctx, stateKeyPrefix+strategyID).Bytes()
		if err == goredis.Nil {
			blob = nil
			return nil
		}
		if err != nil {
			return fmt.Errorf("redis get %s: %w", strategyID, err)
		}
		blob = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// Delete removes the saved state for a strategy.
func (s *Store) Delete(strategyID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return s.client.Del(ctx, stateKeyPrefix+strategyID).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
