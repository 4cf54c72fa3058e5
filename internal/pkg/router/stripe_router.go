package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/AgencyHub/app/controllers"
)

// StripeRouter holds the endpoints Stripe and the checkout page call directly.
// They carry no API key: the webhook is authenticated by its signature and
// the OAuth callback by the Connect state.
type StripeRouter struct {
	billing *controllers.BillingController
}

func (h StripeRouter) InstallRouter(app *fiber.App) {
	stripe := app.Group("/api/stripe")
	stripe.Post("/webhook", h.billing.HandleWebhook)
	stripe.Post("/create-subscription", h.billing.HandleCreateSubscription)
	stripe.Get("/oauth", h.billing.HandleConnectCallback)
}

func NewStripeRouter(billing *controllers.BillingController) *StripeRouter {
	return &StripeRouter{billing: billing}
}
