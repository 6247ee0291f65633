package webhooks

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/safetrade/safetrade-backend/pkg/config"
	"github.com/safetrade/safetrade-backend/pkg/db/models"
	"github.com/safetrade/safetrade-backend/pkg/logger"
)

type fakeAttempter struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (f *fakeAttempter) Attempt(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	return nil
}

func (f *fakeAttempter) seen() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.ids...)
}

type fakeDueLister struct {
	mu      sync.Mutex
	batches [][]models.WebhookDelivery
}

func (f *fakeDueLister) ListDue(ctx context.Context, now time.Time, limit int) ([]models.WebhookDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

type fakeLock struct {
	acquired   bool
	acquireErr error
	released   bool
}

func (f *fakeLock) Acquire(ctx context.Context) (bool, error) {
	return f.acquired, f.acquireErr
}

func (f *fakeLock) Release(ctx context.Context) error {
	f.released = true
	return nil
}

func newTestWorker(t *testing.T, due dueLister, svc attempter, lock RunLock) *Worker {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	worker, err := NewWorker(WorkerParams{
		Config:  config.WorkerConfig{BatchSize: 10, PollIntervalMS: 5},
		Logger:  logg,
		Service: svc,
		Due:     due,
		Lock:    lock,
	})
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	return worker
}

func TestWorker_ProcessesDueDeliveries(t *testing.T) {
	first := models.WebhookDelivery{ID: uuid.New()}
	second := models.WebhookDelivery{ID: uuid.New()}
	due := &fakeDueLister{batches: [][]models.WebhookDelivery{{first, second}}}
	svc := &fakeAttempter{}
	lock := &fakeLock{acquired: true}

	worker := newTestWorker(t, due, svc, lock)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := worker.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run: %v", err)
	}

	seen := svc.seen()
	if len(seen) != 2 {
		t.Fatalf("attempted %d deliveries, want 2", len(seen))
	}
	if seen[0] != first.ID || seen[1] != second.ID {
		t.Fatalf("attempted %v, want [%s %s]", seen, first.ID, second.ID)
	}
	if !lock.released {
		t.Fatal("expected the run lock to be released on shutdown")
	}
}

func TestWorker_ExitsWhenLockHeldElsewhere(t *testing.T) {
	due := &fakeDueLister{batches: [][]models.WebhookDelivery{{{ID: uuid.New()}}}}
	svc := &fakeAttempter{}
	lock := &fakeLock{acquired: false}

	worker := newTestWorker(t, due, svc, lock)
	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(svc.seen()) != 0 {
		t.Fatal("worker without the lock must not process deliveries")
	}
}

func TestWorker_SurfacesLockError(t *testing.T) {
	lock := &fakeLock{acquireErr: errors.New("redis down")}
	worker := newTestWorker(t, &fakeDueLister{}, &fakeAttempter{}, lock)
	if err := worker.Run(context.Background()); err == nil {
		t.Fatal("expected lock acquisition error to surface")
	}
}

func TestNextBackoff_DoublesUpToMax(t *testing.T) {
	base := time.Second
	got := nextBackoff(base, base, maxPollBackoff)
	if got != 2*time.Second {
		t.Fatalf("first backoff = %s, want 2s", got)
	}
	got = nextBackoff(20*time.Second, base, maxPollBackoff)
	if got != maxPollBackoff {
		t.Fatalf("capped backoff = %s, want %s", got, maxPollBackoff)
	}
}
