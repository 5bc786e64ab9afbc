package storage

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNotConfigured indicates the storage backend was not initialised.
	ErrNotConfigured = errors.New("storage: backend not configured")
	// ErrPersistence marks a failed cache write.
	ErrPersistence = errors.New("storage: persistence failed")
)

// RateCache is a durable single-slot store of the last known sample.
// Load returns nil when nothing has been cached yet.
type RateCache interface {
	Load(ctx context.Context) (*Sample, error)
	Save(ctx context.Context, sample Sample) error
}

// MemoryCache keeps the last sample in process memory only.
type MemoryCache struct {
	mu     sync.RWMutex
	sample *Sample
	saves  int
}

// NewMemoryCache returns a cache, optionally seeded with a sample.
func NewMemoryCache(seed *Sample) *MemoryCache {
	c := &MemoryCache{}
	if seed != nil {
		s := *seed
		c.sample = &s
	}
	return c
}

// Load returns a copy of the cached sample.
func (c *MemoryCache) Load(ctx context.Context) (*Sample, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sample == nil {
		return nil, nil
	}
	s := *c.sample
	return &s, nil
}

// Save replaces the cached sample.
func (c *MemoryCache) Save(ctx context.Context, sample Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sample = &sample
	c.saves++
	return nil
}

// Saves reports how many times Save succeeded.
func (c *MemoryCache) Saves() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.saves
}

var _ RateCache = (*MemoryCache)(nil)
