package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/safetrade/safetrade-backend/api/middleware"
	"github.com/safetrade/safetrade-backend/api/responses"
	"github.com/safetrade/safetrade-backend/api/validators"
	"github.com/safetrade/safetrade-backend/internal/orders"
	"github.com/safetrade/safetrade-backend/pkg/enums"
	pkgerrors "github.com/safetrade/safetrade-backend/pkg/errors"
	"github.com/safetrade/safetrade-backend/pkg/logger"
	"github.com/safetrade/safetrade-backend/pkg/pagination"
)

// CreateOrder runs the order saga. The API key is optional, but a presented
// key must belong to the paying partner.
func CreateOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input orders.CreateOrderInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if input.PartnerID != nil {
			if authed := middleware.PartnerFromContext(r.Context()); authed != nil && authed.ID != *input.PartnerID {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeForbidden, "api key does not match the paying partner"))
				return
			}
		}

		order, err := svc.Create(r.Context(), input)
		if err != nil {
			// Provider failures arrive here with the ledger already
			// compensated; the envelope carries the failure reason.
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}

		order, err := svc.GetByID(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func RefundOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}

		order, err := svc.Refund(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func ListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, err := orderListInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, nextCursor, err := svc.List(r.Context(), *input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"orders": items, "nextCursor": nextCursor})
	}
}

// ListPartnerOrders scopes the listing to one partner from the URL.
func ListPartnerOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		partnerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid partner id"))
			return
		}

		input, err := orderListInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.PartnerID = &partnerID

		items, nextCursor, err := svc.List(r.Context(), *input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"orders": items, "nextCursor": nextCursor})
	}
}

func orderListInput(r *http.Request) (*orders.ListInput, error) {
	input := orders.ListInput{}

	limit, err := validators.ParseQueryInt(r, "limit", 0, 1, pagination.MaxLimit)
	if err != nil {
		return nil, err
	}
	input.Limit = limit
	input.Cursor = strings.TrimSpace(r.URL.Query().Get("cursor"))

	if statusStr := strings.TrimSpace(r.URL.Query().Get("status")); statusStr != "" {
		status, err := enums.ParseOrderStatus(statusStr)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		input.Status = &status
	}
	if userStr := strings.TrimSpace(r.URL.Query().Get("userId")); userStr != "" {
		userID, err := uuid.Parse(userStr)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid userId filter")
		}
		input.UserID = &userID
	}
	return &input, nil
}
