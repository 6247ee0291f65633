package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/safetrade/safetrade-backend/api/controllers"
	"github.com/safetrade/safetrade-backend/api/middleware"
	"github.com/safetrade/safetrade-backend/internal/orders"
	"github.com/safetrade/safetrade-backend/internal/partners"
	"github.com/safetrade/safetrade-backend/internal/products"
	"github.com/safetrade/safetrade-backend/internal/users"
	"github.com/safetrade/safetrade-backend/internal/wallets"
	"github.com/safetrade/safetrade-backend/internal/webhooks"
	"github.com/safetrade/safetrade-backend/pkg/config"
	"github.com/safetrade/safetrade-backend/pkg/db"
	"github.com/safetrade/safetrade-backend/pkg/logger"
	"github.com/safetrade/safetrade-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	partnersService partners.Service,
	usersService users.Service,
	walletsService wallets.Service,
	productsService products.Service,
	ordersService orders.Service,
	webhooksService webhooks.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.With(middleware.PartnerAPIKey(partnersService, logg)).
				Post("/", controllers.CreateOrder(ordersService, logg))
			r.Get("/", controllers.ListOrders(ordersService, logg))
			r.Get("/{id}", controllers.GetOrder(ordersService, logg))
			r.Post("/{id}/refund", controllers.RefundOrder(ordersService, logg))
		})

		r.Route("/partners", func(r chi.Router) {
			r.Get("/", controllers.ListPartners(partnersService, logg))
			r.Post("/", controllers.CreatePartner(partnersService, logg))
			r.Get("/{id}", controllers.GetPartner(partnersService, logg))
			r.Patch("/{id}", controllers.UpdatePartner(partnersService, logg))
			r.Delete("/{id}", controllers.DeactivatePartner(partnersService, logg))
			r.Post("/{id}/credit", controllers.AdjustPartnerCredit(partnersService, logg))
			r.Get("/{id}/orders", controllers.ListPartnerOrders(ordersService, logg))
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", controllers.RegisterUser(usersService, logg))
			r.Get("/{id}", controllers.GetUser(usersService, logg))
		})

		r.Route("/wallets", func(r chi.Router) {
			r.Get("/{userId}", controllers.GetWallet(walletsService, logg))
			r.Post("/{userId}/deposit", controllers.DepositWallet(walletsService, logg))
			r.Post("/{userId}/withdraw", controllers.WithdrawWallet(walletsService, logg))
			r.Get("/{userId}/transactions", controllers.WalletTransactions(walletsService, logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ListProducts(productsService, logg))
			r.Post("/", controllers.CreateProduct(productsService, logg))
			r.Get("/{sku}", controllers.GetProduct(productsService, logg))
			r.Get("/{sku}/pricing", controllers.GetProductPricing(productsService, logg))
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Get("/", controllers.ListWebhookDeliveries(webhooksService, logg))
			r.Get("/stats", controllers.WebhookStats(webhooksService, logg))
			r.Get("/{id}", controllers.GetWebhookDelivery(webhooksService, logg))
			r.Post("/{id}/retry", controllers.RetryWebhookDelivery(webhooksService, logg))
		})
	})

	return r
}
