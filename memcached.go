package main

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

var ErrMemcachedClosed = errors.New("memcached closed")

type cached[V any] struct {
	value    V
	expireAt int64
}

// Memcached is an in-memory TTL cache. An entry lives for ttlTimeout after
// its last Set; a background cleaner evicts expired entries every
// cleanupTimeout. Once shut down it keeps refreshing existing keys but
// refuses new ones, so open sessions can finish while new ones are turned
// away.
type Memcached[V any] struct {
	mu          sync.RWMutex
	cleanerOnce sync.Once
	cleanerCh   chan struct{}
	items       map[string]cached[V]
	ttlTimeout  time.Duration
	inShutdown  atomic.Bool
}

func NewMemcached[V any](ttlTimeout, cleanupTimeout time.Duration) *Memcached[V] {
	mc := &Memcached[V]{
		cleanerCh:  make(chan struct{}),
		items:      make(map[string]cached[V]),
		ttlTimeout: ttlTimeout,
	}

	go func() {
		ticker := time.NewTicker(cleanupTimeout)
		defer ticker.Stop()

		for {
			select {
			case <-mc.cleanerCh:
				return
			case <-ticker.C:
				mc.cleanExpiredItems()
			}
		}
	}()
	return mc
}

// Set stores value under key and restarts its TTL. It reports false when
// the key was new and the cache is shutting down.
func (mc *Memcached[V]) Set(key string, value V) bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	_, isExists := mc.items[key]
	if mc.inShutdown.Load() && !isExists {
		return false
	}

	mc.items[key] = cached[V]{
		value:    value,
		expireAt: time.Now().Add(mc.ttlTimeout).UnixNano(),
	}
	return true
}

func (mc *Memcached[V]) Get(key string) (V, bool) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	var zero V
	item, exists := mc.items[key]
	if !exists || time.Now().UnixNano() > item.expireAt {
		return zero, false
	}
	return item.value, true
}

// Update replaces the live value under key with fn(value) and restarts its
// TTL, all under the write lock. A missing or expired key is left absent and
// fn is not called.
func (mc *Memcached[V]) Update(key string, fn func(V) V) (V, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	var zero V
	item, exists := mc.items[key]
	now := time.Now()
	if !exists || now.UnixNano() > item.expireAt {
		return zero, false
	}

	item.value = fn(item.value)
	item.expireAt = now.Add(mc.ttlTimeout).UnixNano()
	mc.items[key] = item
	return item.value, true
}

func (mc *Memcached[V]) Delete(key string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.items, key)
}

const shutdownIntervalMax = 500 * time.Millisecond

// Shutdown stops accepting new keys and waits, with jittered backoff, until
// every remaining entry has expired or ctx is done.
func (mc *Memcached[V]) Shutdown(ctx context.Context) error {
	mc.mu.Lock()
	mc.inShutdown.Store(true)
	mc.mu.Unlock()
	mc.closeCleaner()

	intervalBase := time.Millisecond
	nextInterval := func() time.Duration {
		interval := intervalBase + time.Duration(rand.Int63n(int64(intervalBase/10)+1))

		intervalBase *= 2
		if intervalBase > shutdownIntervalMax {
			intervalBase = shutdownIntervalMax
		}
		return interval
	}

	timer := time.NewTimer(nextInterval())
	defer timer.Stop()
	for {
		mc.cleanExpiredItems()
		if mc.IsEmpty() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			timer.Reset(nextInterval())
		}
	}
}

// Close drops every entry immediately.
func (mc *Memcached[V]) Close() error {
	mc.mu.Lock()
	if mc.inShutdown.Load() {
		mc.mu.Unlock()
		return ErrMemcachedClosed
	}
	mc.inShutdown.Store(true)
	clear(mc.items)
	mc.mu.Unlock()

	mc.closeCleaner()
	return nil
}

func (mc *Memcached[V]) cleanExpiredItems() {
	now := time.Now().UnixNano()
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for k, v := range mc.items {
		if now > v.expireAt {
			delete(mc.items, k)
		}
	}
}

func (mc *Memcached[V]) Len() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.items)
}

func (mc *Memcached[V]) IsEmpty() bool {
	return mc.Len() == 0
}

func (mc *Memcached[V]) closeCleaner() {
	mc.cleanerOnce.Do(func() {
		close(mc.cleanerCh)
	})
}
