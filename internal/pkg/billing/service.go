package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v76"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AgencyHub/app/models"
	"github.com/ManuelReschke/AgencyHub/internal/pkg/env"
)

// Outcome describes what a webhook delivery did to local state.
type Outcome string

const (
	OutcomeIgnored    Outcome = "ignored"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeNoMatch    Outcome = "no_match"
	OutcomeReconciled Outcome = "reconciled"
	OutcomeDuplicate  Outcome = "duplicate"
)

const (
	EventSubscriptionCreated   = "customer.subscription.created"
	EventSubscriptionUpdated   = "customer.subscription.updated"
	EventSubscriptionDeleted   = "customer.subscription.deleted"
	EventInvoicePaymentSuccess = "invoice.payment_succeeded"
	EventPaymentIntentSuccess  = "payment_intent.succeeded"

	recentPaymentIntentWindow = 5 * time.Minute
	recentPaymentIntentLimit  = 5
	connectProductsLimit      = 50
)

var (
	ErrClientSecretUnavailable = errors.New("unable to obtain client secret")
	ErrMissingParams           = errors.New("customer id or price id is missing")
	ErrNoConnectAccount        = errors.New("no connect account linked")
)

var handledEvents = map[string]struct{}{
	EventSubscriptionCreated:   {},
	EventSubscriptionUpdated:   {},
	EventSubscriptionDeleted:   {},
	EventInvoicePaymentSuccess: {},
	EventPaymentIntentSuccess:  {},
}

// Config carries the secrets and URLs of the billing flows.
type Config struct {
	WebhookSecret      string
	SignatureTolerance time.Duration
	Connect            ConnectConfig
}

// ConfigFromEnv prefers the live webhook secret when both are set.
func ConfigFromEnv() Config {
	secret := strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET_LIVE", ""))
	if secret == "" {
		secret = strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", ""))
	}
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	redirectURI := ""
	if base != "" {
		redirectURI = base + "/api/stripe/oauth"
	}
	return Config{
		WebhookSecret:      secret,
		SignatureTolerance: DefaultSignatureTolerance,
		Connect: ConnectConfig{
			ClientID:    strings.TrimSpace(env.GetEnv("STRIPE_CLIENT_ID", "")),
			SecretKey:   strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
			RedirectURI: redirectURI,
			HTTPClient:  &http.Client{Timeout: 20 * time.Second},
		},
	}
}

// Service reconciles Stripe subscriptions into the local Subscription table
// and drives the Connect onboarding.
type Service struct {
	repo     Repository
	provider Provider
	cfg      Config
	now      func() time.Time
}

// NewService creates a billing service from an injected repository and provider.
func NewService(repo Repository, provider Provider, cfg Config) *Service {
	if cfg.SignatureTolerance == 0 {
		cfg.SignatureTolerance = DefaultSignatureTolerance
	}
	return &Service{repo: repo, provider: provider, cfg: cfg, now: time.Now}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, provider Provider, cfg Config) *Service {
	return NewService(NewRepository(db), provider, cfg)
}

// CreateAgencyCustomer creates the billing customer of a new agency and
// returns its id. The agency address is used as billing and shipping address.
func (s *Service) CreateAgencyCustomer(ctx context.Context, agency *models.Agency) (string, error) {
	customer, err := s.provider.CreateCustomer(ctx, CustomerParams{
		Email:      agency.CompanyEmail,
		Name:       agency.Name,
		Phone:      agency.CompanyPhone,
		Line1:      agency.Address,
		City:       agency.City,
		State:      agency.State,
		PostalCode: agency.ZipCode,
		Country:    agency.Country,
	})
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	log.Infof("[Billing] Customer %s created for agency %s", customer.ID, agency.Name)
	return customer.ID, nil
}

// CreateOrUpdateSubscription moves an agency with an active subscription to a
// new price, or starts a default-incomplete subscription otherwise, and
// returns the client secret needed to confirm the first payment.
func (s *Service) CreateOrUpdateSubscription(ctx context.Context, customerID, priceID string) (*SubscriptionResult, error) {
	customerID = strings.TrimSpace(customerID)
	priceID = strings.TrimSpace(priceID)
	if customerID == "" || priceID == "" {
		return nil, ErrMissingParams
	}

	agency, err := s.repo.FindAgencyByCustomerID(ctx, customerID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var sub *stripe.Subscription
	if agency != nil && agency.HasActiveSubscription() {
		log.Infof("[Billing] Updating subscription %s for customer %s", agency.Subscription.SubscriptionID, customerID)
		current, err := s.provider.RetrieveSubscription(ctx, agency.Subscription.SubscriptionID)
		if err != nil {
			return nil, fmt.Errorf("retrieve subscription: %w", err)
		}
		replaceItemID := ""
		if item, ok := firstItem(current); ok {
			replaceItemID = item.ID
		}
		sub, err = s.provider.UpdateSubscriptionPrice(ctx, current.ID, replaceItemID, priceID)
		if err != nil {
			return nil, fmt.Errorf("update subscription: %w", err)
		}
	} else {
		log.Infof("[Billing] Creating subscription for customer %s", customerID)
		agencyID := ""
		if agency != nil {
			agencyID = agency.ID
		}
		sub, err = s.provider.CreateSubscription(ctx, CreateSubscriptionParams{
			CustomerID: customerID,
			PriceID:    priceID,
			Metadata:   map[string]string{"agencyId": agencyID},
		})
		if err != nil {
			return nil, fmt.Errorf("create subscription: %w", err)
		}
	}

	secret, err := s.clientSecret(ctx, sub)
	if err != nil {
		return nil, err
	}

	// The provider already holds the subscription; a failed local write is
	// repaired by the next webhook delivery.
	if _, err := s.Reconcile(ctx, sub, customerID); err != nil {
		log.Errorf("[Billing] Reconcile after create failed for %s: %v", sub.ID, err)
	}

	log.Infof("[Billing] Subscription %s processed (status=%s)", sub.ID, sub.Status)
	return &SubscriptionResult{SubscriptionID: sub.ID, ClientSecret: secret}, nil
}

// clientSecret walks the fallback ladder until one step yields a secret.
func (s *Service) clientSecret(ctx context.Context, sub *stripe.Subscription) (string, error) {
	if invoice := sub.LatestInvoice; invoice != nil {
		if expanded(invoice.Object) {
			if pi := invoice.PaymentIntent; pi != nil {
				if expanded(pi.Object) && pi.ClientSecret != "" {
					return pi.ClientSecret, nil
				}
				if !expanded(pi.Object) && pi.ID != "" {
					fetched, err := s.provider.RetrievePaymentIntent(ctx, pi.ID)
					if err != nil {
						log.Warnf("[Billing] Fetching payment intent %s failed: %v", pi.ID, err)
					} else if fetched.ClientSecret != "" {
						return fetched.ClientSecret, nil
					}
				}
			}
		} else if invoice.ID != "" {
			fetched, err := s.provider.RetrieveInvoice(ctx, invoice.ID, "payment_intent")
			if err != nil {
				log.Warnf("[Billing] Fetching invoice %s failed: %v", invoice.ID, err)
			} else if pi := fetched.PaymentIntent; pi != nil && pi.ClientSecret != "" {
				return pi.ClientSecret, nil
			}
		}
	}

	if customerID := subscriptionCustomer(sub); customerID != "" {
		intents, err := s.provider.ListPaymentIntents(ctx, customerID, recentPaymentIntentLimit)
		if err != nil {
			log.Warnf("[Billing] Listing payment intents for %s failed: %v", customerID, err)
		} else {
			cutoff := s.now().Add(-recentPaymentIntentWindow)
			for _, pi := range intents {
				if pi == nil {
					continue
				}
				if time.Unix(pi.Created, 0).After(cutoff) &&
					pi.Status == stripe.PaymentIntentStatusRequiresPaymentMethod && pi.ClientSecret != "" {
					return pi.ClientSecret, nil
				}
			}
		}
	}

	if item, ok := firstItem(sub); ok && item.Price != nil {
		pi, err := s.manualPaymentIntent(ctx, sub, item.Price.ID)
		if err != nil {
			log.Warnf("[Billing] Manual payment intent for %s failed: %v", sub.ID, err)
		} else if pi.ClientSecret != "" {
			return pi.ClientSecret, nil
		}
	}

	return "", fmt.Errorf("%w for subscription %s", ErrClientSecretUnavailable, sub.ID)
}

func (s *Service) manualPaymentIntent(ctx context.Context, sub *stripe.Subscription, priceID string) (*stripe.PaymentIntent, error) {
	price, err := s.provider.RetrievePrice(ctx, priceID)
	if err != nil {
		return nil, err
	}
	return s.provider.CreatePaymentIntent(ctx, PaymentIntentParams{
		Amount:           price.UnitAmount,
		Currency:         string(price.Currency),
		CustomerID:       subscriptionCustomer(sub),
		SetupFutureUsage: "off_session",
		Metadata: map[string]string{
			"subscription_id": sub.ID,
			"type":            "manual_fallback",
		},
	})
}

// HandleEvent applies one verified webhook event.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (Outcome, error) {
	eventType := string(event.Type)
	if _, ok := handledEvents[eventType]; !ok {
		log.Debugf("[Billing] Unhandled event type: %s", eventType)
		return OutcomeIgnored, nil
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return "", fmt.Errorf("event %s carries no object", event.ID)
	}
	raw := event.Data.Raw

	switch eventType {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return "", fmt.Errorf("decode subscription: %w", err)
		}
		if sub.Metadata["connectAccountPayments"] != "" || sub.Metadata["connectAccountSubscriptions"] != "" {
			log.Debugf("[Billing] Skipping connect account subscription %s", sub.ID)
			return OutcomeSkipped, nil
		}
		return s.Reconcile(ctx, &sub, subscriptionCustomer(&sub))

	case EventInvoicePaymentSuccess:
		var invoice stripe.Invoice
		if err := json.Unmarshal(raw, &invoice); err != nil {
			return "", fmt.Errorf("decode invoice: %w", err)
		}
		subscriptionID := ""
		if invoice.Subscription != nil {
			subscriptionID = invoice.Subscription.ID
		}
		return s.reconcileByID(ctx, subscriptionID)

	case EventPaymentIntentSuccess:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return "", fmt.Errorf("decode payment intent: %w", err)
		}
		return s.reconcileByID(ctx, pi.Metadata["subscription_id"])
	}
	return OutcomeIgnored, nil
}

func (s *Service) reconcileByID(ctx context.Context, subscriptionID string) (Outcome, error) {
	if subscriptionID == "" {
		return OutcomeSkipped, nil
	}
	sub, err := s.provider.RetrieveSubscription(ctx, subscriptionID)
	if err != nil {
		return "", fmt.Errorf("retrieve subscription %s: %w", subscriptionID, err)
	}
	return s.Reconcile(ctx, sub, subscriptionCustomer(sub))
}

// Reconcile overwrites the agency's local subscription with the provider
// state. A customer without an agency is not an error.
func (s *Service) Reconcile(ctx context.Context, sub *stripe.Subscription, customerID string) (Outcome, error) {
	agency, err := s.repo.FindAgencyByCustomerID(ctx, customerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warnf("[Billing] No agency found for customer %s", customerID)
		return OutcomeNoMatch, nil
	}
	if err != nil {
		return "", err
	}

	var priceID string
	var price *string
	if item, ok := firstItem(sub); ok && item.Price != nil {
		priceID = item.Price.ID
		price = displayPrice(item.Price)
	}

	periodEnd := s.now().UTC()
	if sub.CurrentPeriodEnd > 0 {
		periodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}

	row := &models.Subscription{
		AgencyID:             agency.ID,
		SubscriptionID:       sub.ID,
		CustomerID:           customerID,
		PriceID:              priceID,
		Plan:                 priceID,
		Price:                price,
		Status:               string(sub.Status),
		Active:               !isTerminalStatus(string(sub.Status)),
		CurrentPeriodEndDate: periodEnd,
	}
	if err := s.repo.UpsertSubscription(ctx, row); err != nil {
		return "", fmt.Errorf("upsert subscription: %w", err)
	}
	log.Infof("[Billing] Agency %s subscription %s reconciled (status=%s active=%t)", agency.ID, sub.ID, sub.Status, row.Active)
	return OutcomeReconciled, nil
}

// ProcessWebhook verifies, records and applies a webhook delivery. Deliveries
// already processed without error are acknowledged as duplicates.
func (s *Service) ProcessWebhook(ctx context.Context, payload []byte, signatureHeader string) (Outcome, error) {
	event, err := constructEvent(payload, signatureHeader, s.cfg.WebhookSecret, s.cfg.SignatureTolerance)
	if err != nil {
		return "", err
	}

	created, stored, err := s.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        models.WebhookProviderStripe,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		LiveMode:        event.Livemode,
		PayloadJSON:     string(payload),
		SignatureValid:  true,
	})
	if err != nil {
		return "", fmt.Errorf("record webhook event: %w", err)
	}
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		log.Infof("[Billing] Duplicate webhook %s (%s) acknowledged", event.ID, event.Type)
		return OutcomeDuplicate, nil
	}

	log.Infof("[Billing] Webhook received: %s", event.Type)
	outcome, handleErr := s.HandleEvent(ctx, &event)
	if err := s.MarkWebhookProcessed(ctx, stored.ID, outcome, handleErr); err != nil {
		log.Errorf("[Billing] Marking webhook %d processed failed: %v", stored.ID, err)
	}
	return outcome, handleErr
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		LiveMode:        in.LiveMode,
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed stores the outcome and an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, outcome Outcome, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, string(outcome), errMsg)
}

// HandleConnectCallback finishes the Connect OAuth flow and returns the path
// the user is redirected to.
func (s *Service) HandleConnectCallback(ctx context.Context, code, state, oauthError string) string {
	if oauthError != "" {
		log.Warnf("[Billing] Connect OAuth error: %s", oauthError)
		return RedirectOAuthError
	}
	if code == "" || state == "" {
		return RedirectMissingParams
	}

	entity, id, err := ParseConnectState(state)
	if err != nil {
		log.Warnf("[Billing] %v", err)
		return RedirectProcessingFailed
	}

	accountID, err := s.cfg.Connect.ExchangeCode(code)
	if err != nil {
		log.Errorf("[Billing] Connect token exchange failed: %v", err)
		return RedirectProcessingFailed
	}
	if accountID == "" {
		log.Warnf("[Billing] Connect flow for %s %s finished without an account", entity, id)
		return LaunchpadPath(entity, id) + "?error=no_account_created"
	}

	if err := s.repo.SetConnectAccount(ctx, entity, id, accountID); err != nil {
		log.Errorf("[Billing] Saving connect account for %s %s failed: %v", entity, id, err)
		return RedirectProcessingFailed
	}
	log.Infof("[Billing] Connect account %s linked to %s %s", accountID, entity, id)
	return LaunchpadPath(entity, id)
}

// ConnectLink returns the onboarding URL for an existing agency or sub-account.
func (s *Service) ConnectLink(ctx context.Context, entity EntityType, id string) (string, error) {
	if _, err := s.repo.ConnectAccountID(ctx, entity, id); err != nil {
		return "", err
	}
	return s.cfg.Connect.AuthorizeURLWithState(BuildConnectState(entity, id))
}

// ConnectProducts lists the products sold through the entity's connected account.
func (s *Service) ConnectProducts(ctx context.Context, entity EntityType, id string) ([]*stripe.Product, error) {
	account, err := s.repo.ConnectAccountID(ctx, entity, id)
	if err != nil {
		return nil, err
	}
	if account == "" {
		return nil, ErrNoConnectAccount
	}
	return s.provider.ListProducts(ctx, account, connectProductsLimit)
}
