package partners

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/safetrade/safetrade-backend/internal/repo"
	"github.com/safetrade/safetrade-backend/pkg/db/models"
	"github.com/safetrade/safetrade-backend/pkg/pagination"
)

// Repository manages persistence for partner accounts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, partner *models.Partner) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Partner, error)
	FindByAPIKey(ctx context.Context, apiKey string) (*models.Partner, error)
	List(ctx context.Context, params listPartnersParams) ([]models.Partner, *pagination.Cursor, error)
	Update(ctx context.Context, partner *models.Partner) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type listPartnersParams struct {
	Limit      int
	Cursor     *pagination.Cursor
	ActiveOnly bool
}

type repository struct {
	repo.Base
}

// NewRepository returns a partners repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Rebind(tx)}
}

func (r *repository) Create(ctx context.Context, partner *models.Partner) error {
	return r.DB(ctx).Create(partner).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Partner, error) {
	var partner models.Partner
	if err := r.DB(ctx).First(&partner, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &partner, nil
}

func (r *repository) FindByAPIKey(ctx context.Context, apiKey string) (*models.Partner, error) {
	var partner models.Partner
	if err := r.DB(ctx).Where("api_key = ?", apiKey).First(&partner).Error; err != nil {
		return nil, err
	}
	return &partner, nil
}

func (r *repository) List(ctx context.Context, params listPartnersParams) ([]models.Partner, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.DB(ctx).Model(&models.Partner{})
	if params.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var partners []models.Partner
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&partners).Error; err != nil {
		return nil, nil, err
	}

	if len(partners) > normalized {
		partners = partners[:normalized]
		// The cursor anchors on the last returned row; the next query
		// resumes strictly after it.
		last := partners[normalized-1]
		return partners, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
	}
	return partners, nil, nil
}

func (r *repository) Update(ctx context.Context, partner *models.Partner) error {
	return r.DB(ctx).Save(partner).Error
}

func (r *repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).
		Model(&models.Partner{}).
		Where("id = ?", id).
		UpdateColumn("is_active", false).Error
}
