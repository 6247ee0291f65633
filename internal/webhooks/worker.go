package webhooks

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/safetrade/safetrade-backend/pkg/config"
	"github.com/safetrade/safetrade-backend/pkg/db/models"
	"github.com/safetrade/safetrade-backend/pkg/logger"
)

const (
	defaultBatchSize = 50
	defaultPollMs    = 1000
	maxPollBackoff   = 30 * time.Second
	jitterWindow     = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

// attempter runs a single delivery attempt.
type attempter interface {
	Attempt(ctx context.Context, id uuid.UUID) error
}

// dueLister surfaces deliveries whose next attempt is due.
type dueLister interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.WebhookDelivery, error)
}

// WorkerParams wires the webhook delivery worker.
type WorkerParams struct {
	Config  config.WorkerConfig
	Logger  *logger.Logger
	Service attempter
	Due     dueLister
	Lock    RunLock
}

// Worker polls for due deliveries and drives their retry attempts. Exactly
// one instance runs at a time, coordinated through the Redis run lock.
type Worker struct {
	logg         *logger.Logger
	service      attempter
	due          dueLister
	lock         RunLock
	batchSize    int
	pollInterval time.Duration
	now          func() time.Time
}

// NewWorker builds the delivery worker, applying config defaults.
func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Service == nil {
		return nil, errors.New("webhook service is required")
	}
	if params.Due == nil {
		return nil, errors.New("due delivery source is required")
	}
	if params.Lock == nil {
		return nil, errors.New("run lock is required")
	}

	batch := params.Config.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}

	return &Worker{
		logg:         params.Logger,
		service:      params.Service,
		due:          params.Due,
		lock:         params.Lock,
		batchSize:    batch,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
		now:          time.Now,
	}, nil
}

// Run blocks until the context is canceled or the run lock is held elsewhere.
func (w *Worker) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	acquired, err := w.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		w.logg.Info(ctx, "webhook worker lock held elsewhere, exiting")
		return nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := w.lock.Release(releaseCtx); err != nil {
			w.logg.Error(releaseCtx, "release webhook worker lock", err)
		}
	}()

	interval := w.pollInterval
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			w.logg.Info(ctx, "webhook worker context canceled")
			return ctx.Err()
		default:
		}

		processed, err := w.processBatch(ctx)
		if err != nil {
			w.logg.Error(ctx, "webhook worker batch error", err)
			backoff = nextBackoff(backoff, interval, maxPollBackoff)
			if err := w.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval

		if processed {
			continue
		}

		if err := w.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) (bool, error) {
	due, err := w.due.ListDue(ctx, w.now().UTC(), w.batchSize)
	if err != nil {
		return false, err
	}
	if len(due) == 0 {
		return false, nil
	}

	var errs []error
	for _, delivery := range due {
		if err := ctx.Err(); err != nil {
			return true, err
		}
		if err := w.service.Attempt(ctx, delivery.ID); err != nil {
			ctxWithID := w.logg.WithDeliveryID(ctx, delivery.ID.String())
			w.logg.Error(ctxWithID, "webhook attempt error", err)
			errs = append(errs, err)
		}
	}
	return true, multierr.Combine(errs...)
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
}
