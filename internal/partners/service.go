package partners

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/safetrade/safetrade-backend/internal/ledger"
	"github.com/safetrade/safetrade-backend/pkg/db/models"
	"github.com/safetrade/safetrade-backend/pkg/enums"
	pkgerrors "github.com/safetrade/safetrade-backend/pkg/errors"
	"github.com/safetrade/safetrade-backend/pkg/logger"
	"github.com/safetrade/safetrade-backend/pkg/pagination"
)

const apiKeyPrefix = "sk_live_"

// Service manages the B2B partner directory and prepaid credit.
type Service interface {
	Create(ctx context.Context, input CreatePartnerInput) (*models.Partner, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Partner, error)
	// Authenticate resolves an active partner from a presented API key.
	Authenticate(ctx context.Context, apiKey string) (*models.Partner, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Update(ctx context.Context, id uuid.UUID, input UpdatePartnerInput) (*models.Partner, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	// AdjustCredit tops up or draws down prepaid credit through the ledger,
	// leaving an audit entry.
	AdjustCredit(ctx context.Context, id uuid.UUID, input AdjustCreditInput) (*models.LedgerEntry, error)
}

// CreatePartnerInput carries the fields needed to onboard a partner.
type CreatePartnerInput struct {
	Name       string  `json:"name" validate:"required,min=2,max=120"`
	WebhookURL *string `json:"webhook_url" validate:"omitempty,url"`
}

// UpdatePartnerInput carries the mutable partner fields. Nil means unchanged.
type UpdatePartnerInput struct {
	Name       *string `json:"name" validate:"omitempty,min=2,max=120"`
	WebhookURL *string `json:"webhook_url" validate:"omitempty,url"`
	IsActive   *bool   `json:"is_active"`
}

// AdjustCreditInput moves prepaid credit. Direction selects debit or credit.
type AdjustCreditInput struct {
	Amount    decimal.Decimal `json:"amount"`
	Direction string          `json:"direction" validate:"required,oneof=credit debit"`
	Reason    string          `json:"reason" validate:"required,min=3,max=255"`
}

// ListParams holds pagination inputs for partner listings.
type ListParams struct {
	Limit      int
	Cursor     string
	ActiveOnly bool
}

// ListResult is one page of partners plus the cursor for the next page.
type ListResult struct {
	Items  []models.Partner
	Cursor string
}

type service struct {
	repo   Repository
	ledger ledger.Service
	logg   *logger.Logger
}

// NewService wires the partners service.
func NewService(repo Repository, ledgerSvc ledger.Service, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "partners repository required")
	}
	if ledgerSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "ledger service required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{repo: repo, ledger: ledgerSvc, logg: logg}, nil
}

// NewAPIKey mints a partner API key. The key is shown once at creation and
// stored as-is; partners present it via the x-api-key header.
func NewAPIKey() string {
	return apiKeyPrefix + uuid.NewString()
}

func (s *service) Create(ctx context.Context, input CreatePartnerInput) (*models.Partner, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "partner name required")
	}

	partner := &models.Partner{
		ID:            uuid.New(),
		Name:          name,
		APIKey:        NewAPIKey(),
		CreditBalance: decimal.Zero,
		WebhookURL:    input.WebhookURL,
		IsActive:      true,
	}
	if err := s.repo.Create(ctx, partner); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create partner")
	}

	s.logg.Info(s.logg.WithPartnerID(ctx, partner.ID.String()), "partner created")
	return partner, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.Partner, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "partner id required")
	}
	partner, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "partner not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find partner")
	}
	return partner, nil
}

func (s *service) Authenticate(ctx context.Context, apiKey string) (*models.Partner, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" || !strings.HasPrefix(apiKey, apiKeyPrefix) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid api key")
	}
	partner, err := s.repo.FindByAPIKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid api key")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find partner by api key")
	}
	if !partner.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "partner is deactivated")
	}
	return partner, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listPartnersParams{
		Limit:      params.Limit,
		ActiveOnly: params.ActiveOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list partners")
	}

	cursor := ""
	if next != nil {
		cursor = next.Encode()
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdatePartnerInput) (*models.Partner, error) {
	partner, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "partner name cannot be empty")
		}
		partner.Name = name
	}
	if input.WebhookURL != nil {
		if strings.TrimSpace(*input.WebhookURL) == "" {
			partner.WebhookURL = nil
		} else {
			partner.WebhookURL = input.WebhookURL
		}
	}
	if input.IsActive != nil {
		partner.IsActive = *input.IsActive
	}

	if err := s.repo.Update(ctx, partner); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update partner")
	}
	return partner, nil
}

func (s *service) Deactivate(ctx context.Context, id uuid.UUID) error {
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate partner")
	}
	s.logg.Info(s.logg.WithPartnerID(ctx, id.String()), "partner deactivated")
	return nil
}

func (s *service) AdjustCredit(ctx context.Context, id uuid.UUID, input AdjustCreditInput) (*models.LedgerEntry, error) {
	partner, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	mutation := ledger.MutationInput{
		Account: ledger.Account{Type: enums.LedgerAccountTypePartner, ID: partner.ID},
		Amount:  input.Amount,
		Reason:  input.Reason,
	}
	switch input.Direction {
	case "credit":
		return s.ledger.Credit(ctx, mutation)
	case "debit":
		return s.ledger.Debit(ctx, mutation)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "direction must be credit or debit")
	}
}
