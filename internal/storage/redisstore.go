package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces layout keys inside a shared Redis database.
const redisKeyPrefix = "staffdesk:layout:"

type redisLayoutStore struct {
	client *redis.Client
}

// NewRedisLayoutStore connects to redisURL and returns a LayoutStore that
// shares layouts between every machine using the same database.
func NewRedisLayoutStore(ctx context.Context, redisURL string) (LayoutStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &redisLayoutStore{client: client}, nil
}

func (s *redisLayoutStore) Get(ctx context.Context, key string) ([]string, bool, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading layout %s: %w", key, err)
	}
	var fields []string
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, false, fmt.Errorf("decoding layout %s: %w", key, err)
	}
	return fields, true, nil
}

func (s *redisLayoutStore) Set(ctx context.Context, key string, fields []string) error {
	if fields == nil {
		fields = []string{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding layout %s: %w", key, err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("writing layout %s: %w", key, err)
	}
	return nil
}

func (s *redisLayoutStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("resetting layout %s: %w", key, err)
	}
	return nil
}

func (s *redisLayoutStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), redisKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("listing layouts: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close releases the Redis connection pool.
func (s *redisLayoutStore) Close() error {
	return s.client.Close()
}
