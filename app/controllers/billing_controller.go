package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AgencyHub/internal/pkg/billing"
)

// BillingController exposes the Stripe webhook, the subscription checkout and
// the Connect onboarding endpoints.
type BillingController struct {
	billing *billing.Service
}

func NewBillingController(svc *billing.Service) *BillingController {
	return &BillingController{billing: svc}
}

type createSubscriptionRequest struct {
	CustomerID string `json:"customerId"`
	PriceID    string `json:"priceId"`
}

// HandleWebhook verifies and applies one Stripe webhook delivery.
func (bc *BillingController) HandleWebhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))

	ctx, cancel := requestContext(c)
	defer cancel()

	outcome, err := bc.billing.ProcessWebhook(ctx, payload, signature)
	switch {
	case errors.Is(err, billing.ErrWebhookConfig), errors.Is(err, billing.ErrInvalidSignature):
		log.Warnf("[Billing] Rejected webhook: %v", err)
		return jsonError(c, fiber.StatusBadRequest, "invalid_signature", "Webhook Error: "+err.Error())
	case err != nil:
		log.Errorf("[Billing] Webhook processing failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "webhook_processing_failed", "Webhook handler failed")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "outcome": outcome})
}

// HandleCreateSubscription starts or changes the subscription of an agency
// and returns the client secret for the payment confirmation.
func (bc *BillingController) HandleCreateSubscription(c *fiber.Ctx) error {
	var req createSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Request body could not be parsed")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := bc.billing.CreateOrUpdateSubscription(ctx, req.CustomerID, req.PriceID)
	if errors.Is(err, billing.ErrMissingParams) {
		return jsonError(c, fiber.StatusBadRequest, "missing_params", "Missing customer id or price id")
	}
	if err != nil {
		log.Errorf("[Billing] Create subscription for customer %s failed: %v", req.CustomerID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", err.Error())
	}
	return c.JSON(result)
}

// HandleConnectCallback finishes the Connect OAuth flow with a redirect.
func (bc *BillingController) HandleConnectCallback(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	target := bc.billing.HandleConnectCallback(ctx,
		strings.TrimSpace(c.Query("code")),
		strings.TrimSpace(c.Query("state")),
		strings.TrimSpace(c.Query("error")),
	)
	return c.Redirect(target, fiber.StatusSeeOther)
}

// HandleAgencyConnectLink returns the Connect onboarding URL of an agency.
func (bc *BillingController) HandleAgencyConnectLink(c *fiber.Ctx) error {
	return bc.connectLink(c, billing.EntityAgency, c.Params("agencyId"))
}

// HandleSubAccountConnectLink returns the Connect onboarding URL of a sub-account.
func (bc *BillingController) HandleSubAccountConnectLink(c *fiber.Ctx) error {
	return bc.connectLink(c, billing.EntitySubAccount, c.Params("subaccountId"))
}

func (bc *BillingController) connectLink(c *fiber.Ctx, entity billing.EntityType, id string) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	link, err := bc.billing.ConnectLink(ctx, entity, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"url": link})
}

// HandleSubAccountProducts lists the products of the sub-account's connected account.
func (bc *BillingController) HandleSubAccountProducts(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	products, err := bc.billing.ConnectProducts(ctx, billing.EntitySubAccount, c.Params("subaccountId"))
	if err != nil {
		return respondError(c, err)
	}
	views := make([]fiber.Map, 0, len(products))
	for _, p := range products {
		view := fiber.Map{
			"id":          p.ID,
			"name":        p.Name,
			"description": p.Description,
			"active":      p.Active,
		}
		if price := p.DefaultPrice; price != nil {
			view["priceId"] = price.ID
			if price.Object != "" {
				view["price"] = billing.FormatPrice(price.UnitAmount)
				view["currency"] = string(price.Currency)
			}
		}
		views = append(views, view)
	}
	return c.JSON(fiber.Map{"products": views})
}
