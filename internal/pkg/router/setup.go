package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/AgencyHub/app/controllers"
)

// Router registers one group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Controllers are the request handlers the routers dispatch to.
type Controllers struct {
	Billing    *controllers.BillingController
	Board      *controllers.BoardController
	Media      *controllers.MediaController
	Agency     *controllers.AgencyController
	SubAccount *controllers.SubAccountController
}

// InstallRouter registers the public Stripe routes first and the key
// protected API second.
func InstallRouter(app *fiber.App, ctl Controllers, cfg APIConfig) {
	setup(app, NewStripeRouter(ctl.Billing), NewApiRouter(ctl, cfg))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
