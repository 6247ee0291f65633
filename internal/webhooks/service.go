package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/safetrade/safetrade-backend/pkg/config"
	"github.com/safetrade/safetrade-backend/pkg/db/models"
	"github.com/safetrade/safetrade-backend/pkg/enums"
	pkgerrors "github.com/safetrade/safetrade-backend/pkg/errors"
	"github.com/safetrade/safetrade-backend/pkg/logger"
	"github.com/safetrade/safetrade-backend/pkg/metrics"
	"github.com/safetrade/safetrade-backend/pkg/pagination"
)

// retrySchedule spaces attempts after the first failure. Attempt n failing
// schedules attempt n+1 after retrySchedule[n-1].
var retrySchedule = []time.Duration{time.Minute, 5 * time.Minute, 30 * time.Minute}

// partnerFinder resolves the partner a delivery targets.
type partnerFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Partner, error)
}

// EnqueueInput describes a webhook event to persist and deliver.
type EnqueueInput struct {
	PartnerID uuid.UUID
	OrderID   uuid.UUID
	EventType enums.WebhookEventType
	Data      any
}

// ListInput filters delivery listings.
type ListInput struct {
	PartnerID *uuid.UUID
	Status    *enums.DeliveryStatus
	Limit     int
	Cursor    string
}

// Stats summarizes delivery outcomes for the queried scope.
type Stats struct {
	Total       int64   `json:"total"`
	Pending     int64   `json:"pending"`
	Delivered   int64   `json:"delivered"`
	Failed      int64   `json:"failed"`
	SuccessRate float64 `json:"successRate"`
}

// eventEnvelope is the wire shape posted to partner endpoints.
type eventEnvelope struct {
	Event     enums.WebhookEventType `json:"event"`
	Timestamp time.Time              `json:"timestamp"`
	Data      any                    `json:"data"`
}

// Service drives at-least-once webhook delivery with bounded retries.
type Service interface {
	// Enqueue persists the event and kicks off the first attempt. Partners
	// without a configured endpoint are skipped and nil is returned.
	Enqueue(ctx context.Context, input EnqueueInput) (*models.WebhookDelivery, error)
	// Attempt runs one delivery attempt. Delivered rows are a no-op.
	Attempt(ctx context.Context, id uuid.UUID) error
	// Retry rearms a delivery for a fresh attempt cycle.
	Retry(ctx context.Context, id uuid.UUID) (*models.WebhookDelivery, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.WebhookDelivery, error)
	List(ctx context.Context, input ListInput) ([]models.WebhookDelivery, string, error)
	// Stats summarizes delivery outcomes, optionally scoped to one partner.
	Stats(ctx context.Context, partnerID *uuid.UUID) (*Stats, error)
}

type service struct {
	repo        Repository
	partners    partnerFinder
	dispatcher  Dispatcher
	logg        *logger.Logger
	metrics     *metrics.WebhookMetrics
	maxAttempts int
	now         func() time.Time
}

// NewService wires the webhook delivery service.
func NewService(cfg config.WebhookConfig, repo Repository, partners partnerFinder, dispatcher Dispatcher, logg *logger.Logger, m *metrics.WebhookMetrics) (Service, error) {
	if repo == nil {
		return nil, errors.New("webhook repository is required")
	}
	if partners == nil {
		return nil, errors.New("partner finder is required")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 4
	}
	return &service{
		repo:        repo,
		partners:    partners,
		dispatcher:  dispatcher,
		logg:        logg,
		metrics:     m,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}, nil
}

func (s *service) Enqueue(ctx context.Context, input EnqueueInput) (*models.WebhookDelivery, error) {
	partner, err := s.partners.FindByID(ctx, input.PartnerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "partner not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load partner")
	}
	if partner.WebhookURL == nil || *partner.WebhookURL == "" {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"partner_id": input.PartnerID.String(),
			"event_type": input.EventType.String(),
		})
		s.logg.Info(ctx, "partner has no webhook endpoint, skipping event")
		return nil, nil
	}

	payload, err := json.Marshal(eventEnvelope{
		Event:     input.EventType,
		Timestamp: s.now().UTC(),
		Data:      input.Data,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode webhook payload")
	}

	now := s.now().UTC()
	delivery := &models.WebhookDelivery{
		ID:            uuid.New(),
		PartnerID:     input.PartnerID,
		OrderID:       input.OrderID,
		EventType:     input.EventType,
		Payload:       payload,
		Status:        enums.DeliveryStatusPending,
		NextAttemptAt: &now,
	}
	if err := s.repo.Create(ctx, delivery); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist webhook delivery")
	}

	// First attempt runs off the caller's request path. The row is durable,
	// so a crash here only delays delivery until the worker picks it up.
	go func() {
		detached := context.WithoutCancel(ctx)
		if err := s.Attempt(detached, delivery.ID); err != nil {
			s.logg.Error(detached, "initial webhook attempt", err)
		}
	}()

	return delivery, nil
}

func (s *service) Attempt(ctx context.Context, id uuid.UUID) error {
	delivery, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "webhook delivery not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load webhook delivery")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"delivery_id": delivery.ID.String(),
		"partner_id":  delivery.PartnerID.String(),
		"event_type":  delivery.EventType.String(),
	})

	if delivery.Status == enums.DeliveryStatusDelivered {
		return nil
	}
	if delivery.Status == enums.DeliveryStatusFailed {
		return nil
	}
	if delivery.Attempts >= s.maxAttempts {
		if err := s.repo.MarkFailed(ctx, delivery.ID, "retries exhausted"); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark delivery failed")
		}
		s.metrics.IncExhausted(delivery.EventType.String())
		s.logg.Warn(ctx, "webhook delivery exhausted retries")
		return nil
	}

	claimed, err := s.repo.ClaimAttempt(ctx, delivery.ID, delivery.Attempts, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claim webhook attempt")
	}
	if !claimed {
		s.logg.Info(ctx, "webhook attempt already claimed, skipping")
		return nil
	}
	delivery.Attempts++

	endpoint, err := s.endpointFor(ctx, delivery.PartnerID)
	if err != nil {
		return s.recordFailure(ctx, delivery, err)
	}

	start := s.now()
	s.metrics.IncAttempted(delivery.EventType.String())
	dispatchErr := s.dispatcher.Deliver(ctx, endpoint, delivery)
	s.metrics.ObserveDuration(delivery.EventType.String(), s.now().Sub(start))

	if dispatchErr != nil {
		return s.recordFailure(ctx, delivery, dispatchErr)
	}

	if err := s.repo.MarkDelivered(ctx, delivery.ID, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark delivery delivered")
	}
	s.metrics.IncDelivered(delivery.EventType.String())
	s.logg.Info(ctx, "webhook delivered")
	return nil
}

// recordFailure either schedules the next attempt or marks the delivery
// terminally failed once the attempt budget is spent.
func (s *service) recordFailure(ctx context.Context, delivery *models.WebhookDelivery, cause error) error {
	s.metrics.IncFailed(delivery.EventType.String())
	reason := cause.Error()

	if delivery.Attempts >= s.maxAttempts {
		if err := s.repo.MarkFailed(ctx, delivery.ID, reason); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark delivery failed")
		}
		s.metrics.IncExhausted(delivery.EventType.String())
		s.logg.Error(ctx, "webhook delivery failed permanently", cause)
		return nil
	}

	delay := retrySchedule[len(retrySchedule)-1]
	if idx := delivery.Attempts - 1; idx >= 0 && idx < len(retrySchedule) {
		delay = retrySchedule[idx]
	}
	nextAt := s.now().UTC().Add(delay)
	if err := s.repo.ScheduleRetry(ctx, delivery.ID, nextAt, reason); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "schedule webhook retry")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"attempt":    delivery.Attempts,
		"next_retry": nextAt.Format(time.RFC3339),
	})
	s.logg.Warn(ctx, fmt.Sprintf("webhook attempt failed: %s", reason))
	return nil
}

func (s *service) endpointFor(ctx context.Context, partnerID uuid.UUID) (string, error) {
	partner, err := s.partners.FindByID(ctx, partnerID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load partner")
	}
	if partner.WebhookURL == nil || *partner.WebhookURL == "" {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, "partner has no webhook endpoint")
	}
	return *partner.WebhookURL, nil
}

func (s *service) Retry(ctx context.Context, id uuid.UUID) (*models.WebhookDelivery, error) {
	delivery, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "webhook delivery not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load webhook delivery")
	}
	if delivery.Status == enums.DeliveryStatusDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "delivery already succeeded")
	}

	reset, err := s.repo.ResetForRetry(ctx, delivery.ID, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reset webhook delivery")
	}
	if !reset {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "delivery already succeeded")
	}

	if err := s.Attempt(ctx, delivery.ID); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, delivery.ID)
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.WebhookDelivery, error) {
	delivery, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "webhook delivery not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load webhook delivery")
	}
	return delivery, nil
}

func (s *service) List(ctx context.Context, input ListInput) ([]models.WebhookDelivery, string, error) {
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	deliveries, next, err := s.repo.List(ctx, listDeliveriesParams{
		PartnerID: input.PartnerID,
		Status:    input.Status,
		Limit:     input.Limit,
		Cursor:    cursor,
	})
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list webhook deliveries")
	}

	nextCursor := ""
	if next != nil {
		nextCursor = next.Encode()
	}
	return deliveries, nextCursor, nil
}

func (s *service) Stats(ctx context.Context, partnerID *uuid.UUID) (*Stats, error) {
	counts, err := s.repo.CountByStatus(ctx, partnerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count webhook deliveries")
	}

	stats := &Stats{
		Pending:   counts[enums.DeliveryStatusPending],
		Delivered: counts[enums.DeliveryStatusDelivered],
		Failed:    counts[enums.DeliveryStatusFailed],
	}
	stats.Total = stats.Pending + stats.Delivered + stats.Failed
	if finished := stats.Delivered + stats.Failed; finished > 0 {
		stats.SuccessRate = float64(stats.Delivered) / float64(finished) * 100
	}
	return stats, nil
}
