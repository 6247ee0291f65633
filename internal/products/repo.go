package products

import (
	"context"

	"gorm.io/gorm"

	"github.com/safetrade/safetrade-backend/internal/repo"
	"github.com/safetrade/safetrade-backend/pkg/db/models"
)

// Repository manages persistence for the product catalog.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, product *models.Product) error
	FindBySKU(ctx context.Context, sku string) (*models.Product, error)
	List(ctx context.Context, params listProductsParams) ([]models.Product, error)
	Update(ctx context.Context, product *models.Product) error
}

type listProductsParams struct {
	Category   string
	Region     string
	ActiveOnly bool
}

type repository struct {
	repo.Base
}

// NewRepository returns a products repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Rebind(tx)}
}

func (r *repository) Create(ctx context.Context, product *models.Product) error {
	return r.DB(ctx).Create(product).Error
}

func (r *repository) FindBySKU(ctx context.Context, sku string) (*models.Product, error) {
	var product models.Product
	if err := r.DB(ctx).Where("sku = ?", sku).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) List(ctx context.Context, params listProductsParams) ([]models.Product, error) {
	query := r.DB(ctx).Model(&models.Product{})
	if params.Category != "" {
		query = query.Where("category = ?", params.Category)
	}
	if params.Region != "" {
		query = query.Where("region = ?", params.Region)
	}
	if params.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	var products []models.Product
	if err := query.Order("name ASC").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (r *repository) Update(ctx context.Context, product *models.Product) error {
	return r.DB(ctx).Save(product).Error
}
