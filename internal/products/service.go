package products

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/safetrade/safetrade-backend/pkg/db"
	"github.com/safetrade/safetrade-backend/pkg/db/models"
	pkgerrors "github.com/safetrade/safetrade-backend/pkg/errors"
)

// Service exposes the gift card catalog with per-channel pricing.
type Service interface {
	Create(ctx context.Context, input CreateProductInput) (*models.Product, error)
	// GetBySKU returns any product, active or not.
	GetBySKU(ctx context.Context, sku string) (*models.Product, error)
	// GetActiveBySKU returns the product only when it is purchasable.
	GetActiveBySKU(ctx context.Context, sku string) (*models.Product, error)
	List(ctx context.Context, params ListParams) ([]models.Product, error)
	// Pricing returns the value-based breakdown for a product.
	Pricing(ctx context.Context, sku string) (*Breakdown, error)
}

// CreateProductInput describes a new catalog entry. Channel prices are
// derived from the provider cost unless given explicitly.
type CreateProductInput struct {
	SKU          string           `json:"sku" validate:"required,min=2,max=120"`
	Name         string           `json:"name" validate:"required,min=2,max=255"`
	Category     string           `json:"category" validate:"required"`
	Region       string           `json:"region"`
	ProviderCost decimal.Decimal  `json:"provider_cost"`
	B2CPrice     *decimal.Decimal `json:"b2c_price"`
	B2BPrice     *decimal.Decimal `json:"b2b_price"`
}

// ListParams filters catalog listings.
type ListParams struct {
	Category   string
	Region     string
	ActiveOnly bool
}

type service struct {
	repo Repository
}

// NewService wires the products service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "products repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, input CreateProductInput) (*models.Product, error) {
	sku := strings.TrimSpace(input.SKU)
	if sku == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku required")
	}
	if !input.ProviderCost.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider cost must be positive")
	}

	breakdown := ComputeBreakdown(input.ProviderCost)
	b2c := breakdown.UserPrice
	if input.B2CPrice != nil {
		b2c = *input.B2CPrice
	}
	b2b := breakdown.PartnerPrice
	if input.B2BPrice != nil {
		b2b = *input.B2BPrice
	}
	if !b2c.IsPositive() || !b2b.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "channel prices must be positive")
	}

	region := strings.TrimSpace(input.Region)
	if region == "" {
		region = "global"
	}

	product := &models.Product{
		ID:           uuid.New(),
		SKU:          sku,
		Name:         strings.TrimSpace(input.Name),
		Category:     strings.TrimSpace(input.Category),
		Region:       region,
		ProviderCost: input.ProviderCost,
		B2CPrice:     b2c,
		B2BPrice:     b2b,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		if db.IsUniqueViolation(err, "idx_products_sku") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "a product with this sku already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	return product, nil
}

func (s *service) GetBySKU(ctx context.Context, sku string) (*models.Product, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku required")
	}
	product, err := s.repo.FindBySKU(ctx, sku)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find product")
	}
	return product, nil
}

func (s *service) GetActiveBySKU(ctx context.Context, sku string) (*models.Product, error) {
	product, err := s.GetBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not active")
	}
	return product, nil
}

func (s *service) List(ctx context.Context, params ListParams) ([]models.Product, error) {
	return s.repo.List(ctx, listProductsParams{
		Category:   strings.TrimSpace(params.Category),
		Region:     strings.TrimSpace(params.Region),
		ActiveOnly: params.ActiveOnly,
	})
}

func (s *service) Pricing(ctx context.Context, sku string) (*Breakdown, error) {
	product, err := s.GetBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	breakdown := ComputeBreakdown(product.ProviderCost)
	return &breakdown, nil
}
