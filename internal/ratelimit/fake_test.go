package ratelimit

import (
	"context"
	"time"
)

type fakeStore struct {
	counters map[string]int64
	fail     bool
}

func newFakeStore() *fakeStore { return &fakeStore{counters: make(map[string]int64)} }

func (f *fakeStore) Get(ctx context.Context, key string) (string, bool, error) { return "", false, nil }
func (f *fakeStore) Set(ctx context.Context, key, value string, ttl time.Duration) error { return nil }

func (f *fakeStore) IncrWithTTL(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	if f.fail {
		return 0, context.DeadlineExceeded
	}
	f.counters[key] += delta
	return f.counters[key], nil
}
