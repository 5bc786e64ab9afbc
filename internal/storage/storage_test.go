package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(nil)

	got, err := cache.Load(ctx)
	if err != nil || got != nil {
		t.Fatalf("empty cache Load = %v, %v; want nil, nil", got, err)
	}

	sample := NewSample(decimal.RequireFromString("64123.45"), time.Date(2025, 8, 24, 10, 0, 0, 0, time.UTC))
	if err := cache.Save(ctx, sample); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err = cache.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || !got.Value.Equal(sample.Value) || !got.ObservedAt.Equal(sample.ObservedAt) {
		t.Fatalf("Load = %+v, want %+v", got, sample)
	}
	if cache.Saves() != 1 {
		t.Fatalf("Saves = %d, want 1", cache.Saves())
	}
}

func TestMemoryCacheSeedIsCopied(t *testing.T) {
	seed := NewSample(decimal.NewFromInt(1), time.Now())
	cache := NewMemoryCache(&seed)
	seed.Value = decimal.NewFromInt(2)

	got, _ := cache.Load(context.Background())
	if !got.Value.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("seed mutated through caller copy: %s", got.Value)
	}
}

func TestRedisSampleCodec(t *testing.T) {
	sample := NewSample(decimal.RequireFromString("0.000123456789"), time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC))
	data, err := encodeRedisSample(sample)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeRedisSample(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Value.Equal(sample.Value) || !got.ObservedAt.Equal(sample.ObservedAt) {
		t.Fatalf("decoded %+v, want %+v", got, sample)
	}

	if _, err := decodeRedisSample([]byte(`{"value":"abc"}`)); err == nil {
		t.Fatal("non-numeric value should fail to decode")
	}
}

func TestUnconfiguredBackendsReportPersistenceError(t *testing.T) {
	ctx := context.Background()
	sample := NewSample(decimal.NewFromInt(1), time.Now())

	var pg *PostgresCache
	if err := pg.Save(ctx, sample); !errors.Is(err, ErrPersistence) {
		t.Fatalf("postgres Save error = %v, want ErrPersistence", err)
	}
	if _, err := pg.Load(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("postgres Load error = %v, want ErrNotConfigured", err)
	}

	rc := NewRedisCache(nil, "rateledger:", "BTC-USD", 0)
	if err := rc.Save(ctx, sample); !errors.Is(err, ErrPersistence) {
		t.Fatalf("redis Save error = %v, want ErrPersistence", err)
	}
}
