// internal/profile/kv.go
//
// Cache backends.
//
// Context
// -------
// The profile service talks to a minimal byte store.  Two implementations
// ship:
//
//   - RedisStore   – shared across replicas; go-redis v9.
//   - MemoryStore  – single process; LRU bound plus idle sweep.
//
// Every backend error other than ErrCacheMiss is treated by the service as
// a degraded dependency: logged, counted, and handled as a miss.
package profile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yanizio/uniprofile/internal/cache"
	"github.com/yanizio/uniprofile/internal/metrics"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// KVStore is the byte store behind the profile cache.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

/*──────────────────────────── redis ───────────────────────────────────────*/

// RedisStore is a KVStore on a Redis client.
type RedisStore struct {
	c redis.UniversalClient
}

// NewRedisStore wraps an open client.
func NewRedisStore(c redis.UniversalClient) *RedisStore { return &RedisStore{c: c} }

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return b, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return r.c.Set(ctx, key, val, ttl).Err()
}

func (r *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.c.Del(ctx, keys...).Err()
}

/*──────────────────────────── memory ──────────────────────────────────────*/

// sweepBatch caps how many entries one lock hold may remove.
const sweepBatch = 256

// MemoryStore is a KVStore held in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	lru    *cache.LRU
	ticker *time.Ticker
	stop   chan struct{}
	done   chan struct{}
}

// NewMemoryStore starts the background sweep.  Call Close to stop it.
func NewMemoryStore(maxEntries int, sweepEvery time.Duration) *MemoryStore {
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}
	m := &MemoryStore{
		lru:    cache.New(maxEntries),
		ticker: time.NewTicker(sweepEvery),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.lru.Get(key, time.Now())
	if !ok {
		return nil, ErrCacheMiss
	}
	return val, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	cp := append([]byte(nil), val...)

	m.mu.Lock()
	m.lru.Add(key, cp, exp)
	n := m.lru.Len()
	m.mu.Unlock()

	metrics.CacheEntries.Set(float64(n))
	return nil
}

func (m *MemoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		m.lru.Remove(k)
	}
	n := m.lru.Len()
	m.mu.Unlock()

	metrics.CacheEntries.Set(float64(n))
	return nil
}

// Close stops the sweep goroutine.
func (m *MemoryStore) Close() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	<-m.done
}

// sweepLoop drops expired entries in short lock holds so foreground reads
// and writes interleave with a long sweep.
func (m *MemoryStore) sweepLoop() {
	defer close(m.done)
	defer m.ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-m.ticker.C:
			total := m.sweep(now)
			if total > 0 {
				metrics.CacheSweepEvictions.Add(float64(total))
			}
		}
	}
}

func (m *MemoryStore) sweep(now time.Time) int {
	total := 0
	for {
		m.mu.Lock()
		n := m.lru.Sweep(now, sweepBatch)
		size := m.lru.Len()
		m.mu.Unlock()

		total += n
		metrics.CacheEntries.Set(float64(size))
		if n < sweepBatch {
			return total
		}
	}
}
