package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/safetrade/safetrade-backend/api/responses"
	"github.com/safetrade/safetrade-backend/pkg/db/models"
	"github.com/safetrade/safetrade-backend/pkg/logger"
)

const apiKeyHeader = "X-Api-Key"

type partnerCtxKey struct{}

// PartnerAuthenticator resolves an active partner from a presented API key.
type PartnerAuthenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*models.Partner, error)
}

// PartnerAPIKey resolves the partner behind an x-api-key header and stores it
// in the request context. Requests without the header pass through untouched;
// handlers that require partner identity check the context themselves.
func PartnerAPIKey(auth PartnerAuthenticator, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(apiKeyHeader))
			if key == "" || auth == nil {
				next.ServeHTTP(w, r)
				return
			}

			partner, err := auth.Authenticate(r.Context(), key)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := context.WithValue(r.Context(), partnerCtxKey{}, partner)
			if logg != nil {
				ctx = logg.WithPartnerID(ctx, partner.ID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PartnerFromContext returns the authenticated partner, if any.
func PartnerFromContext(ctx context.Context) *models.Partner {
	partner, _ := ctx.Value(partnerCtxKey{}).(*models.Partner)
	return partner
}
