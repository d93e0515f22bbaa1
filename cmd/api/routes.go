package main

import (
	"github.com/go-chi/chi/v5"

	"blackhub/internal/api/handlers"
	"blackhub/internal/core"
)

// routeHandlers are the domain handlers mounted under /v1.
type routeHandlers struct {
	Billing  *handlers.BillingHandler
	Webhook  *handlers.PaystackWebhookHandler
	Cron     *handlers.CronHandler
	Account  *handlers.AccountHandler
	Admin    *handlers.AdminHandler
	Referral *handlers.ReferralHandler
	Push     *handlers.PushHandler
	Listings *handlers.ListingHandler
}

// registerRoutes places every handler behind its access rule:
//
//	/v1/webhooks/paystack, /v1/checkout/verify   public, per-IP limited
//	/v1/cron/*                                   scheduler secret
//	/v1/admin/*                                  administrator only
//	/v1/listings (writes)                        seller access gate
//	everything else                              authenticated user
func registerRoutes(srv *core.Server, h routeHandlers) {
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		h.Webhook.RegisterRoutes(r, srv.PublicRateLimit)
		h.Billing.RegisterRoutes(r, srv.RequireUser, srv.PublicRateLimit)
		h.Push.RegisterRoutes(r, srv.RequireUser)
		h.Listings.RegisterRoutes(r, srv.RequireUser, srv.RequireSellerAccess)

		r.Group(func(r chi.Router) {
			r.Use(srv.RequireUser)
			h.Account.RegisterRoutes(r)
			h.Referral.RegisterRoutes(r)
		})

		r.Route("/cron", func(r chi.Router) {
			r.Use(srv.RequireScheduler)
			h.Cron.RegisterRoutes(r)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(srv.RequireUser, srv.RequireAdmin)
			h.Admin.RegisterRoutes(r)
		})
	})
}
