package webhooks

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeLockStore struct {
	values map[string]string
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{values: map[string]string{}}
}

func (f *fakeLockStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeLockStore) Get(ctx context.Context, key string) (string, error) {
	value, ok := f.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (f *fakeLockStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func (f *fakeLockStore) LockKey(name string) string {
	return "st:lock:" + name
}

func TestRedisRunLock_AcquireAndRelease(t *testing.T) {
	store := newFakeLockStore()
	lock, err := NewRedisRunLock(store, "webhook-worker", time.Hour)
	if err != nil {
		t.Fatalf("NewRedisRunLock: %v", err)
	}

	ok, err := lock.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("Acquire = %v, %v", ok, err)
	}

	second, err := NewRedisRunLock(store, "webhook-worker", time.Hour)
	if err != nil {
		t.Fatalf("NewRedisRunLock: %v", err)
	}
	ok, err = second.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if ok {
		t.Fatal("second instance must not acquire a held lock")
	}

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}
	ok, err = second.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("Acquire after release = %v, %v", ok, err)
	}
}

func TestRedisRunLock_ReleaseOnlyWhenOwner(t *testing.T) {
	store := newFakeLockStore()
	key := store.LockKey("webhook-worker")
	store.values[key] = "someone-else"

	lock, err := NewRedisRunLock(store, "webhook-worker", time.Hour)
	if err != nil {
		t.Fatalf("NewRedisRunLock: %v", err)
	}
	if ok, _ := lock.Acquire(context.Background()); ok {
		t.Fatal("lock should be held by the other owner")
	}
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if store.values[key] != "someone-else" {
		t.Fatal("release without ownership must not delete the lock")
	}
}
