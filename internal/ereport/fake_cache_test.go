package ereport

import (
	"context"
	"sync"
	"time"
)

// fakeCache is an in-memory cache.Cache driven by a controllable clock.
type fakeCache struct {
	mu      sync.Mutex
	now     time.Time
	entries map[string]time.Time
	err     error
}

func newFakeCache(now time.Time) *fakeCache {
	return &fakeCache{now: now, entries: make(map[string]time.Time)}
}

func (f *fakeCache) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fakeCache) Ping(ctx context.Context) error { return f.err }

func (f *fakeCache) AddIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if exp, ok := f.entries[key]; ok && f.now.Before(exp) {
		return false, nil
	}
	f.entries[key] = f.now.Add(ttl)
	return true, nil
}

func (f *fakeCache) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
	return f.err
}

func (f *fakeCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	return 0, f.err
}
