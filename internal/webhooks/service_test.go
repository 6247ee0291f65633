package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/safetrade/safetrade-backend/internal/partners"
	"github.com/safetrade/safetrade-backend/pkg/config"
	"github.com/safetrade/safetrade-backend/pkg/db/models"
	"github.com/safetrade/safetrade-backend/pkg/enums"
	pkgerrors "github.com/safetrade/safetrade-backend/pkg/errors"
	"github.com/safetrade/safetrade-backend/pkg/logger"
	"github.com/safetrade/safetrade-backend/pkg/pagination"
)

// Both binaries wire the partners repository in as the partner finder.
var _ partnerFinder = (partners.Repository)(nil)

type fakeRepository struct {
	createFn        func(ctx context.Context, delivery *models.WebhookDelivery) error
	findByIDFn      func(ctx context.Context, id uuid.UUID) (*models.WebhookDelivery, error)
	claimAttemptFn  func(ctx context.Context, id uuid.UUID, expectedAttempts int, at time.Time) (bool, error)
	markDeliveredFn func(ctx context.Context, id uuid.UUID, at time.Time) error
	markFailedFn    func(ctx context.Context, id uuid.UUID, lastError string) error
	scheduleRetryFn func(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time, lastError string) error
	resetFn         func(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	countFn         func(ctx context.Context, partnerID *uuid.UUID) (map[enums.DeliveryStatus]int64, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, delivery *models.WebhookDelivery) error {
	if f.createFn != nil {
		return f.createFn(ctx, delivery)
	}
	return nil
}

func (f *fakeRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.WebhookDelivery, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(ctx, id)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) ClaimAttempt(ctx context.Context, id uuid.UUID, expectedAttempts int, at time.Time) (bool, error) {
	if f.claimAttemptFn != nil {
		return f.claimAttemptFn(ctx, id, expectedAttempts, at)
	}
	return true, nil
}

func (f *fakeRepository) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	if f.markDeliveredFn != nil {
		return f.markDeliveredFn(ctx, id, at)
	}
	return nil
}

func (f *fakeRepository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	if f.markFailedFn != nil {
		return f.markFailedFn(ctx, id, lastError)
	}
	return nil
}

func (f *fakeRepository) ScheduleRetry(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time, lastError string) error {
	if f.scheduleRetryFn != nil {
		return f.scheduleRetryFn(ctx, id, nextAttemptAt, lastError)
	}
	return nil
}

func (f *fakeRepository) ResetForRetry(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	if f.resetFn != nil {
		return f.resetFn(ctx, id, at)
	}
	return true, nil
}

func (f *fakeRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.WebhookDelivery, error) {
	return nil, nil
}

func (f *fakeRepository) List(ctx context.Context, params listDeliveriesParams) ([]models.WebhookDelivery, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (f *fakeRepository) CountByStatus(ctx context.Context, partnerID *uuid.UUID) (map[enums.DeliveryStatus]int64, error) {
	if f.countFn != nil {
		return f.countFn(ctx, partnerID)
	}
	return map[enums.DeliveryStatus]int64{}, nil
}

type fakePartnerFinder struct {
	findFn func(ctx context.Context, id uuid.UUID) (*models.Partner, error)
}

func (f *fakePartnerFinder) FindByID(ctx context.Context, id uuid.UUID) (*models.Partner, error) {
	if f.findFn != nil {
		return f.findFn(ctx, id)
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeDispatcher struct {
	deliverFn func(ctx context.Context, endpoint string, delivery *models.WebhookDelivery) error
}

func (f *fakeDispatcher) Deliver(ctx context.Context, endpoint string, delivery *models.WebhookDelivery) error {
	if f.deliverFn != nil {
		return f.deliverFn(ctx, endpoint, delivery)
	}
	return nil
}

func webhookPartner(url string) *models.Partner {
	partner := &models.Partner{ID: uuid.New(), Name: "Acme Resale", IsActive: true}
	if url != "" {
		partner.WebhookURL = &url
	}
	return partner
}

func newTestService(t *testing.T, repo Repository, partners partnerFinder, dispatcher Dispatcher) *service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(config.WebhookConfig{MaxAttempts: 4}, repo, partners, dispatcher, logg, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	impl := svc.(*service)
	impl.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return impl
}

func TestEnqueue_SkipsPartnerWithoutEndpoint(t *testing.T) {
	partner := webhookPartner("")
	created := false
	repo := &fakeRepository{
		createFn: func(ctx context.Context, delivery *models.WebhookDelivery) error {
			created = true
			return nil
		},
	}
	finder := &fakePartnerFinder{findFn: func(ctx context.Context, id uuid.UUID) (*models.Partner, error) {
		return partner, nil
	}}

	svc := newTestService(t, repo, finder, &fakeDispatcher{})
	delivery, err := svc.Enqueue(context.Background(), EnqueueInput{
		PartnerID: partner.ID,
		OrderID:   uuid.New(),
		EventType: enums.WebhookEventOrderCompleted,
		Data:      map[string]string{"orderId": "abc"},
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if delivery != nil {
		t.Fatalf("expected nil delivery for partner without endpoint, got %+v", delivery)
	}
	if created {
		t.Fatal("expected no delivery row to be persisted")
	}
}

func TestEnqueue_PersistsEnvelopeAndFiresFirstAttempt(t *testing.T) {
	partner := webhookPartner("https://partner.example/hooks")
	orderID := uuid.New()

	var persisted *models.WebhookDelivery
	dispatched := make(chan *models.WebhookDelivery, 1)
	repo := &fakeRepository{
		createFn: func(ctx context.Context, delivery *models.WebhookDelivery) error {
			persisted = delivery
			return nil
		},
	}
	repo.findByIDFn = func(ctx context.Context, id uuid.UUID) (*models.WebhookDelivery, error) {
		if persisted == nil || persisted.ID != id {
			return nil, gorm.ErrRecordNotFound
		}
		copied := *persisted
		return &copied, nil
	}
	finder := &fakePartnerFinder{findFn: func(ctx context.Context, id uuid.UUID) (*models.Partner, error) {
		return partner, nil
	}}
	dispatcher := &fakeDispatcher{deliverFn: func(ctx context.Context, endpoint string, delivery *models.WebhookDelivery) error {
		if endpoint != *partner.WebhookURL {
			t.Errorf("endpoint = %s, want %s", endpoint, *partner.WebhookURL)
		}
		dispatched <- delivery
		return nil
	}}

	svc := newTestService(t, repo, finder, dispatcher)
	delivery, err := svc.Enqueue(context.Background(), EnqueueInput{
		PartnerID: partner.ID,
		OrderID:   orderID,
		EventType: enums.WebhookEventOrderCompleted,
		Data:      map[string]string{"orderId": orderID.String()},
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if delivery == nil {
		t.Fatal("expected a delivery row")
	}
	if delivery.Status != enums.DeliveryStatusPending {
		t.Fatalf("status = %s, want pending", delivery.Status)
	}
	if delivery.NextAttemptAt == nil {
		t.Fatal("expected next_attempt_at to be set")
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(delivery.Payload, &envelope); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if envelope.Event != enums.WebhookEventOrderCompleted {
		t.Fatalf("envelope event = %s, want %s", envelope.Event, enums.WebhookEventOrderCompleted)
	}

	select {
	case <-dispatched:
	case <-time.After(2 * time.Second):
		t.Fatal("first attempt was never dispatched")
	}
}

func TestAttempt_DeliveredIsNoOp(t *testing.T) {
	id := uuid.New()
	claimed := false
	repo := &fakeRepository{
		findByIDFn: func(ctx context.Context, deliveryID uuid.UUID) (*models.WebhookDelivery, error) {
			return &models.WebhookDelivery{ID: id, Status: enums.DeliveryStatusDelivered, Attempts: 1}, nil
		},
		claimAttemptFn: func(ctx context.Context, deliveryID uuid.UUID, expected int, at time.Time) (bool, error) {
			claimed = true
			return true, nil
		},
	}

	svc := newTestService(t, repo, &fakePartnerFinder{}, &fakeDispatcher{})
	if err := svc.Attempt(context.Background(), id); err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if claimed {
		t.Fatal("delivered row must not be claimed again")
	}
}

func TestAttempt_SuccessMarksDelivered(t *testing.T) {
	partner := webhookPartner("https://partner.example/hooks")
	id := uuid.New()

	var markedAt *time.Time
	repo := &fakeRepository{
		findByIDFn: func(ctx context.Context, deliveryID uuid.UUID) (*models.WebhookDelivery, error) {
			return &models.WebhookDelivery{
				ID:        id,
				PartnerID: partner.ID,
				Status:    enums.DeliveryStatusPending,
				EventType: enums.WebhookEventOrderCompleted,
			}, nil
		},
		markDeliveredFn: func(ctx context.Context, deliveryID uuid.UUID, at time.Time) error {
			markedAt = &at
			return nil
		},
	}
	finder := &fakePartnerFinder{findFn: func(ctx context.Context, partnerID uuid.UUID) (*models.Partner, error) {
		return partner, nil
	}}

	var attemptHeader int
	dispatcher := &fakeDispatcher{deliverFn: func(ctx context.Context, endpoint string, delivery *models.WebhookDelivery) error {
		attemptHeader = delivery.Attempts
		return nil
	}}

	svc := newTestService(t, repo, finder, dispatcher)
	if err := svc.Attempt(context.Background(), id); err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if markedAt == nil {
		t.Fatal("expected delivery to be marked delivered")
	}
	if attemptHeader != 1 {
		t.Fatalf("dispatched attempt count = %d, want 1", attemptHeader)
	}
}

func TestAttempt_FailureSchedulesBackoff(t *testing.T) {
	partner := webhookPartner("https://partner.example/hooks")
	tests := []struct {
		name          string
		priorAttempts int
		wantDelay     time.Duration
	}{
		{name: "first failure waits one minute", priorAttempts: 0, wantDelay: time.Minute},
		{name: "second failure waits five minutes", priorAttempts: 1, wantDelay: 5 * time.Minute},
		{name: "third failure waits thirty minutes", priorAttempts: 2, wantDelay: 30 * time.Minute},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id := uuid.New()
			var scheduledAt *time.Time
			repo := &fakeRepository{
				findByIDFn: func(ctx context.Context, deliveryID uuid.UUID) (*models.WebhookDelivery, error) {
					return &models.WebhookDelivery{
						ID:        id,
						PartnerID: partner.ID,
						Status:    enums.DeliveryStatusPending,
						Attempts:  tc.priorAttempts,
						EventType: enums.WebhookEventOrderFailed,
					}, nil
				},
				scheduleRetryFn: func(ctx context.Context, deliveryID uuid.UUID, nextAttemptAt time.Time, lastError string) error {
					scheduledAt = &nextAttemptAt
					return nil
				},
			}
			finder := &fakePartnerFinder{findFn: func(ctx context.Context, partnerID uuid.UUID) (*models.Partner, error) {
				return partner, nil
			}}
			dispatcher := &fakeDispatcher{deliverFn: func(ctx context.Context, endpoint string, delivery *models.WebhookDelivery) error {
				return errors.New("connection refused")
			}}

			svc := newTestService(t, repo, finder, dispatcher)
			if err := svc.Attempt(context.Background(), id); err != nil {
				t.Fatalf("Attempt: %v", err)
			}
			if scheduledAt == nil {
				t.Fatal("expected a retry to be scheduled")
			}
			wantAt := svc.now().UTC().Add(tc.wantDelay)
			if !scheduledAt.Equal(wantAt) {
				t.Fatalf("next attempt at %s, want %s", scheduledAt, wantAt)
			}
		})
	}
}

func TestAttempt_FinalFailureMarksFailed(t *testing.T) {
	partner := webhookPartner("https://partner.example/hooks")
	id := uuid.New()

	var failedReason string
	retryScheduled := false
	repo := &fakeRepository{
		findByIDFn: func(ctx context.Context, deliveryID uuid.UUID) (*models.WebhookDelivery, error) {
			return &models.WebhookDelivery{
				ID:        id,
				PartnerID: partner.ID,
				Status:    enums.DeliveryStatusPending,
				Attempts:  3,
				EventType: enums.WebhookEventOrderFailed,
			}, nil
		},
		markFailedFn: func(ctx context.Context, deliveryID uuid.UUID, lastError string) error {
			failedReason = lastError
			return nil
		},
		scheduleRetryFn: func(ctx context.Context, deliveryID uuid.UUID, nextAttemptAt time.Time, lastError string) error {
			retryScheduled = true
			return nil
		},
	}
	finder := &fakePartnerFinder{findFn: func(ctx context.Context, partnerID uuid.UUID) (*models.Partner, error) {
		return partner, nil
	}}
	dispatcher := &fakeDispatcher{deliverFn: func(ctx context.Context, endpoint string, delivery *models.WebhookDelivery) error {
		return errors.New("503 from partner")
	}}

	svc := newTestService(t, repo, finder, dispatcher)
	if err := svc.Attempt(context.Background(), id); err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if retryScheduled {
		t.Fatal("fourth failure must not schedule another retry")
	}
	if failedReason == "" {
		t.Fatal("expected delivery to be marked failed with a reason")
	}
}

func TestAttempt_StaleClaimSkipsDispatch(t *testing.T) {
	partner := webhookPartner("https://partner.example/hooks")
	id := uuid.New()

	dispatchCalled := false
	repo := &fakeRepository{
		findByIDFn: func(ctx context.Context, deliveryID uuid.UUID) (*models.WebhookDelivery, error) {
			return &models.WebhookDelivery{
				ID:        id,
				PartnerID: partner.ID,
				Status:    enums.DeliveryStatusPending,
				EventType: enums.WebhookEventOrderCompleted,
			}, nil
		},
		claimAttemptFn: func(ctx context.Context, deliveryID uuid.UUID, expected int, at time.Time) (bool, error) {
			return false, nil
		},
	}
	dispatcher := &fakeDispatcher{deliverFn: func(ctx context.Context, endpoint string, delivery *models.WebhookDelivery) error {
		dispatchCalled = true
		return nil
	}}

	svc := newTestService(t, repo, &fakePartnerFinder{}, dispatcher)
	if err := svc.Attempt(context.Background(), id); err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if dispatchCalled {
		t.Fatal("stale claim must not dispatch")
	}
}

func TestRetry_ResetsAndReattempts(t *testing.T) {
	partner := webhookPartner("https://partner.example/hooks")
	id := uuid.New()

	status := enums.DeliveryStatusFailed
	attempts := 4
	repo := &fakeRepository{
		findByIDFn: func(ctx context.Context, deliveryID uuid.UUID) (*models.WebhookDelivery, error) {
			return &models.WebhookDelivery{
				ID:        id,
				PartnerID: partner.ID,
				Status:    status,
				Attempts:  attempts,
				EventType: enums.WebhookEventOrderCompleted,
			}, nil
		},
		resetFn: func(ctx context.Context, deliveryID uuid.UUID, at time.Time) (bool, error) {
			status = enums.DeliveryStatusPending
			attempts = 0
			return true, nil
		},
		markDeliveredFn: func(ctx context.Context, deliveryID uuid.UUID, at time.Time) error {
			status = enums.DeliveryStatusDelivered
			return nil
		},
	}
	finder := &fakePartnerFinder{findFn: func(ctx context.Context, partnerID uuid.UUID) (*models.Partner, error) {
		return partner, nil
	}}

	dispatched := false
	dispatcher := &fakeDispatcher{deliverFn: func(ctx context.Context, endpoint string, delivery *models.WebhookDelivery) error {
		dispatched = true
		return nil
	}}

	svc := newTestService(t, repo, finder, dispatcher)
	delivery, err := svc.Retry(context.Background(), id)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if !dispatched {
		t.Fatal("expected retry to dispatch immediately")
	}
	if delivery.Status != enums.DeliveryStatusDelivered {
		t.Fatalf("status = %s, want delivered", delivery.Status)
	}
}

func TestRetry_DeliveredRowConflicts(t *testing.T) {
	id := uuid.New()
	repo := &fakeRepository{
		findByIDFn: func(ctx context.Context, deliveryID uuid.UUID) (*models.WebhookDelivery, error) {
			return &models.WebhookDelivery{ID: id, Status: enums.DeliveryStatusDelivered}, nil
		},
	}

	svc := newTestService(t, repo, &fakePartnerFinder{}, &fakeDispatcher{})
	_, err := svc.Retry(context.Background(), id)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestStats_ComputesSuccessRate(t *testing.T) {
	repo := &fakeRepository{
		countFn: func(ctx context.Context, partnerID *uuid.UUID) (map[enums.DeliveryStatus]int64, error) {
			if partnerID != nil {
				t.Fatalf("unexpected partner filter %s", partnerID)
			}
			return map[enums.DeliveryStatus]int64{
				enums.DeliveryStatusPending:   2,
				enums.DeliveryStatusDelivered: 6,
				enums.DeliveryStatusFailed:    2,
			}, nil
		},
	}

	svc := newTestService(t, repo, &fakePartnerFinder{}, &fakeDispatcher{})
	stats, err := svc.Stats(context.Background(), nil)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 10 {
		t.Fatalf("total = %d, want 10", stats.Total)
	}
	if stats.SuccessRate != 75 {
		t.Fatalf("success rate = %v, want 75", stats.SuccessRate)
	}
}

func TestStats_ScopesToPartner(t *testing.T) {
	partnerID := uuid.New()
	repo := &fakeRepository{
		countFn: func(ctx context.Context, filter *uuid.UUID) (map[enums.DeliveryStatus]int64, error) {
			if filter == nil || *filter != partnerID {
				t.Fatalf("partner filter = %v, want %s", filter, partnerID)
			}
			return map[enums.DeliveryStatus]int64{
				enums.DeliveryStatusDelivered: 3,
				enums.DeliveryStatusFailed:    1,
			}, nil
		},
	}

	svc := newTestService(t, repo, &fakePartnerFinder{}, &fakeDispatcher{})
	stats, err := svc.Stats(context.Background(), &partnerID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 4 {
		t.Fatalf("total = %d, want 4", stats.Total)
	}
	if stats.SuccessRate != 75 {
		t.Fatalf("success rate = %v, want 75", stats.SuccessRate)
	}
}
