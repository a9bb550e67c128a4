package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Dawstr8/polish-peaks/internal/models"
)

// PeakCache stores nearby peak search results
type PeakCache interface {
	Get(ctx context.Context, key string) ([]models.PeakWithDistance, bool, error)
	Set(ctx context.Context, key string, peaks []models.PeakWithDistance, ttl time.Duration) error
}

// PeakCacheKey identifies a search by its rounded parameters
func PeakCacheKey(lat, lon float64, maxDistance *float64, limit int) string {
	dist := "any"
	if maxDistance != nil {
		dist = fmt.Sprintf("%.1f", *maxDistance)
	}
	return fmt.Sprintf("peaks:%.6f:%.6f:%s:%d", lat, lon, dist, limit)
}

// MemoryPeakCache is a thread-safe in-memory PeakCache
type MemoryPeakCache struct {
	mu    sync.RWMutex
	items map[string]*peakCacheItem
	stop  chan struct{}
	once  sync.Once
}

type peakCacheItem struct {
	Peaks     []models.PeakWithDistance
	ExpiresAt time.Time
}

// NewMemoryPeakCache creates a cache that sweeps expired entries every interval
func NewMemoryPeakCache(cleanupInterval time.Duration) *MemoryPeakCache {
	cache := &MemoryPeakCache{
		items: make(map[string]*peakCacheItem),
		stop:  make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go cache.cleanupExpired(cleanupInterval)
	}

	return cache
}

// Get retrieves cached peaks if they exist and haven't expired
func (c *MemoryPeakCache) Get(_ context.Context, key string) ([]models.PeakWithDistance, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists || time.Now().After(item.ExpiresAt) {
		return nil, false, nil
	}

	return append([]models.PeakWithDistance(nil), item.Peaks...), true, nil
}

// Set stores peaks with a TTL
func (c *MemoryPeakCache) Set(_ context.Context, key string, peaks []models.PeakWithDistance, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &peakCacheItem{
		Peaks:     append([]models.PeakWithDistance(nil), peaks...),
		ExpiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Size returns the number of cached items
func (c *MemoryPeakCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// Close stops the cleanup goroutine
func (c *MemoryPeakCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *MemoryPeakCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, item := range c.items {
				if now.After(item.ExpiresAt) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// RedisPeakCache keeps peak results in Redis so several front-end
// instances share them
type RedisPeakCache struct {
	client *redis.Client
}

// NewRedisPeakCache creates a Redis backed PeakCache
func NewRedisPeakCache(client *redis.Client) *RedisPeakCache {
	return &RedisPeakCache{client: client}
}

// Get retrieves cached peaks
func (c *RedisPeakCache) Get(ctx context.Context, key string) ([]models.PeakWithDistance, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var peaks []models.PeakWithDistance
	if err := json.Unmarshal(data, &peaks); err != nil {
		return nil, false, fmt.Errorf("decode cached peaks: %w", err)
	}
	return peaks, true, nil
}

// Set stores peaks with a TTL
func (c *RedisPeakCache) Set(ctx context.Context, key string, peaks []models.PeakWithDistance, ttl time.Duration) error {
	data, err := json.Marshal(peaks)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}
