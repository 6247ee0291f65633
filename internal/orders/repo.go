package orders

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

// Repository manages order rows. Status transitions are guarded so a row can
// never skip or revisit a lifecycle state.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// MarkProcessing moves PENDING to PROCESSING.
	MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	// Complete moves PROCESSING to COMPLETED and stores the provider artifacts.
	Complete(ctx context.Context, id uuid.UUID, code, externalOrderID string, deliveredAt time.Time) (bool, error)
	// Fail moves PROCESSING to FAILED and records the reason.
	Fail(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	// MarkRefunded moves COMPLETED to REFUNDED.
	MarkRefunded(ctx context.Context, id uuid.UUID) (bool, error)
	List(ctx context.Context, params listOrdersParams) ([]models.Order, *pagination.Cursor, error)
}

type listOrdersParams struct {
	PartnerID *uuid.UUID
	UserID    *uuid.UUID
	Status    *enums.OrderStatus
	Limit     int
	Cursor    *pagination.Cursor
}

type repository struct {
	repo.Base
}

// NewRepository returns an order repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Rebind(tx)}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.DB(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.DB(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.transition(ctx, id, enums.OrderStatusPending, map[string]any{
		"status": enums.OrderStatusProcessing,
	})
}

func (r *repository) Complete(ctx context.Context, id uuid.UUID, code, externalOrderID string, deliveredAt time.Time) (bool, error) {
	return r.transition(ctx, id, enums.OrderStatusProcessing, map[string]any{
		"status":            enums.OrderStatusCompleted,
		"gift_card_code":    code,
		"external_order_id": externalOrderID,
		"delivered_at":      deliveredAt,
	})
}

func (r *repository) Fail(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	return r.transition(ctx, id, enums.OrderStatusProcessing, map[string]any{
		"status":         enums.OrderStatusFailed,
		"failure_reason": reason,
	})
}

func (r *repository) MarkRefunded(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.transition(ctx, id, enums.OrderStatusCompleted, map[string]any{
		"status": enums.OrderStatusRefunded,
	})
}

func (r *repository) transition(ctx context.Context, id uuid.UUID, from enums.OrderStatus, updates map[string]any) (bool, error) {
	res := r.DB(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) List(ctx context.Context, params listOrdersParams) ([]models.Order, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.DB(ctx).Model(&models.Order{})
	if params.PartnerID != nil {
		query = query.Where("partner_id = ?", *params.PartnerID)
	}
	if params.UserID != nil {
		query = query.Where("user_id = ?", *params.UserID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var orders []models.Order
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&orders).Error; err != nil {
		return nil, nil, err
	}

	if len(orders) > normalized {
		orders = orders[:normalized]
		// The cursor anchors on the last returned row; the next query
		// resumes strictly after it.
		last := orders[normalized-1]
		return orders, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
	}
	return orders, nil, nil
}
