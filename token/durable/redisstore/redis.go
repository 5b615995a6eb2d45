package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/librahub-admin/token/durable"
	"github.com/redis/go-redis/v9"
)

var (
	_ durable.Storage     = (*Store)(nil)
	_ durable.BatchSetter = (*Store)(nil)
)

// Store keeps the token keys in Redis under a prefix, so several client
// processes on different hosts can share one session.
type Store struct {
	client *redis.Client
	prefix string
}

func New(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Dial connects and pings, returning an error when Redis is unreachable.
func Dial(ctx context.Context, addr, password, prefix string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("[redisstore Dial] could not connect to %s: %w", addr, err)
	}
	return New(client, prefix), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("[redisstore Get] %s: %w", key, err)
	}
	return v, true, nil
}

// Set stores without expiry; the server owns token lifetimes.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("[redisstore Set] %s: %w", key, err)
	}
	return nil
}

// SetMany writes every key inside one MULTI/EXEC transaction.
func (s *Store) SetMany(ctx context.Context, values map[string]string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, s.prefix+k, v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("[redisstore SetMany] %w", err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("[redisstore Remove] %s: %w", key, err)
	}
	return nil
}
