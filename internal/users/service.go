package users

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/safetrade/safetrade-backend/pkg/db/models"
	pkgerrors "github.com/safetrade/safetrade-backend/pkg/errors"
)

// Service is the user directory. Users are created on first contact and
// carry no credentials of their own; their money lives in a wallet.
type Service interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	FindOrCreate(ctx context.Context, input FindOrCreateInput) (*models.User, error)
}

// FindOrCreateInput identifies a user by external id plus optional profile data.
type FindOrCreateInput struct {
	TelegramID int64  `json:"telegram_id" validate:"required,gt=0"`
	Username   string `json:"username"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
}

type service struct {
	repo *Repository
}

// NewService wires the users service.
func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "users repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find user")
	}
	return user, nil
}

func (s *service) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	if telegramID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "telegram id required")
	}
	user, err := s.repo.FindByTelegramID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find user")
	}
	return user, nil
}

func (s *service) FindOrCreate(ctx context.Context, input FindOrCreateInput) (*models.User, error) {
	if input.TelegramID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "telegram id required")
	}

	user, err := s.repo.FindByTelegramID(ctx, input.TelegramID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find user")
	}

	user = &models.User{
		ID:         uuid.New(),
		TelegramID: input.TelegramID,
		Username:   optional(input.Username),
		FirstName:  optional(input.FirstName),
		LastName:   optional(input.LastName),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
	}
	return user, nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
