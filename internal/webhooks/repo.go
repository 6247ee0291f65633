package webhooks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/safetrade/safetrade-backend/internal/repo"
	"github.com/safetrade/safetrade-backend/pkg/db/models"
	"github.com/safetrade/safetrade-backend/pkg/enums"
	"github.com/safetrade/safetrade-backend/pkg/pagination"
)

// Repository manages persistence for webhook deliveries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, delivery *models.WebhookDelivery) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.WebhookDelivery, error)
	// ClaimAttempt increments the attempt counter only when the delivery is
	// still pending and the counter matches the caller's snapshot. A false
	// return means another attempt is in flight or the delivery went terminal.
	ClaimAttempt(ctx context.Context, id uuid.UUID, expectedAttempts int, at time.Time) (bool, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time, lastError string) error
	// ResetForRetry rearms a non-delivered delivery for a fresh attempt cycle.
	ResetForRetry(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// ListDue returns pending deliveries whose next attempt is due.
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.WebhookDelivery, error)
	List(ctx context.Context, params listDeliveriesParams) ([]models.WebhookDelivery, *pagination.Cursor, error)
	CountByStatus(ctx context.Context, partnerID *uuid.UUID) (map[enums.DeliveryStatus]int64, error)
}

type listDeliveriesParams struct {
	PartnerID *uuid.UUID
	Status    *enums.DeliveryStatus
	Limit     int
	Cursor    *pagination.Cursor
}

type repository struct {
	repo.Base
}

// NewRepository returns a webhook delivery repository bound to the provided
// database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Rebind(tx)}
}

func (r *repository) Create(ctx context.Context, delivery *models.WebhookDelivery) error {
	return r.DB(ctx).Create(delivery).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.WebhookDelivery, error) {
	var delivery models.WebhookDelivery
	if err := r.DB(ctx).First(&delivery, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &delivery, nil
}

func (r *repository) ClaimAttempt(ctx context.Context, id uuid.UUID, expectedAttempts int, at time.Time) (bool, error) {
	res := r.DB(ctx).
		Model(&models.WebhookDelivery{}).
		Where("id = ? AND status = ? AND attempts = ?", id, enums.DeliveryStatusPending, expectedAttempts).
		Updates(map[string]any{
			"attempts":        gorm.Expr("attempts + 1"),
			"last_attempt_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.DB(ctx).
		Model(&models.WebhookDelivery{}).
		Where("id = ? AND status = ?", id, enums.DeliveryStatusPending).
		Updates(map[string]any{
			"status":          enums.DeliveryStatusDelivered,
			"delivered_at":    at,
			"next_attempt_at": nil,
			"last_error":      nil,
		}).Error
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	updates := map[string]any{
		"status":          enums.DeliveryStatusFailed,
		"next_attempt_at": nil,
	}
	if lastError != "" {
		updates["last_error"] = lastError
	}
	return r.DB(ctx).
		Model(&models.WebhookDelivery{}).
		Where("id = ? AND status = ?", id, enums.DeliveryStatusPending).
		Updates(updates).Error
}

func (r *repository) ScheduleRetry(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time, lastError string) error {
	updates := map[string]any{
		"next_attempt_at": nextAttemptAt,
	}
	if lastError != "" {
		updates["last_error"] = lastError
	}
	return r.DB(ctx).
		Model(&models.WebhookDelivery{}).
		Where("id = ? AND status = ?", id, enums.DeliveryStatusPending).
		Updates(updates).Error
}

func (r *repository) ResetForRetry(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.DB(ctx).
		Model(&models.WebhookDelivery{}).
		Where("id = ? AND status <> ?", id, enums.DeliveryStatusDelivered).
		Updates(map[string]any{
			"status":          enums.DeliveryStatusPending,
			"attempts":        0,
			"next_attempt_at": at,
			"last_error":      nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.WebhookDelivery, error) {
	var deliveries []models.WebhookDelivery
	query := r.DB(ctx).
		Where("status = ? AND next_attempt_at IS NOT NULL AND next_attempt_at <= ?", enums.DeliveryStatusPending, now).
		Order("next_attempt_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&deliveries).Error; err != nil {
		return nil, err
	}
	return deliveries, nil
}

func (r *repository) List(ctx context.Context, params listDeliveriesParams) ([]models.WebhookDelivery, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.DB(ctx).Model(&models.WebhookDelivery{})
	if params.PartnerID != nil {
		query = query.Where("partner_id = ?", *params.PartnerID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var deliveries []models.WebhookDelivery
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&deliveries).Error; err != nil {
		return nil, nil, err
	}

	if len(deliveries) > normalized {
		deliveries = deliveries[:normalized]
		// The cursor anchors on the last returned row; the next query
		// resumes strictly after it.
		last := deliveries[normalized-1]
		return deliveries, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
	}
	return deliveries, nil, nil
}

func (r *repository) CountByStatus(ctx context.Context, partnerID *uuid.UUID) (map[enums.DeliveryStatus]int64, error) {
	var rows []struct {
		Status enums.DeliveryStatus
		Count  int64
	}
	query := r.DB(ctx).
		Model(&models.WebhookDelivery{}).
		Select("status, COUNT(1) AS count").
		Group("status")
	if partnerID != nil {
		query = query.Where("partner_id = ?", *partnerID)
	}
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[enums.DeliveryStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
