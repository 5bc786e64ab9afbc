package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RedisCache stores the last sample as a JSON document under one key.
type RedisCache struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedisCache builds a cache keyed by prefix and pair. A zero ttl keeps
// the value forever.
func NewRedisCache(client redis.UniversalClient, prefix, pair string, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		key:    prefix + "rate:" + pair,
		ttl:    ttl,
	}
}

type redisSample struct {
	Value      string    `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}

func encodeRedisSample(sample Sample) ([]byte, error) {
	return json.Marshal(redisSample{
		Value:      sample.Value.String(),
		ObservedAt: sample.ObservedAt.UTC(),
	})
}

func decodeRedisSample(data []byte) (Sample, error) {
	var raw redisSample
	if err := json.Unmarshal(data, &raw); err != nil {
		return Sample{}, fmt.Errorf("unmarshal cached rate: %w", err)
	}
	value, err := decimal.NewFromString(raw.Value)
	if err != nil {
		return Sample{}, fmt.Errorf("parse cached rate: %w", err)
	}
	return NewSample(value, raw.ObservedAt), nil
}

// Load fetches the cached sample; a missing key yields nil.
func (c *RedisCache) Load(ctx context.Context) (*Sample, error) {
	if c.client == nil {
		return nil, ErrNotConfigured
	}
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached rate from redis: %w", err)
	}
	sample, err := decodeRedisSample(data)
	if err != nil {
		return nil, err
	}
	return &sample, nil
}

// Save overwrites the cached sample.
func (c *RedisCache) Save(ctx context.Context, sample Sample) error {
	if c.client == nil {
		return fmt.Errorf("%w: %v", ErrPersistence, ErrNotConfigured)
	}
	data, err := encodeRedisSample(sample)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("%w: set cached rate: %v", ErrPersistence, err)
	}
	return nil
}

// Close releases the client.
func (c *RedisCache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

var _ RateCache = (*RedisCache)(nil)
