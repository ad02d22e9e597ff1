package cache

import (
	"context"
	"time"
)

// fakeStore is an in-memory kv.Store used by tests across this package.
type fakeStore struct {
	data map[string]string
	fail bool
}

func newFakeStore() *fakeStore { return &fakeStore{data: make(map[string]string)} }

func (f *fakeStore) Get(ctx context.Context, key string) (string, bool, error) {
	if f.fail {
		return "", false, context.DeadlineExceeded
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if f.fail {
		return context.DeadlineExceeded
	}
	f.data[key] = value
	return nil
}

func (f *fakeStore) IncrWithTTL(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	if f.fail {
		return 0, context.DeadlineExceeded
	}
	// not used by cache tests
	return delta, nil
}
