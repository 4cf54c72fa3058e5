package billing

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/ManuelReschke/AgencyHub/internal/pkg/env"
)

var ErrStripeNotConfigured = errors.New("STRIPE_SECRET_KEY is not configured")

// Provider is the subset of the Stripe API the billing service calls.
type Provider interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (*stripe.Customer, error)
	RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	UpdateSubscriptionPrice(ctx context.Context, id, replaceItemID, priceID string) (*stripe.Subscription, error)
	CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*stripe.Subscription, error)
	RetrieveInvoice(ctx context.Context, id string, expand ...string) (*stripe.Invoice, error)
	RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	ListPaymentIntents(ctx context.Context, customerID string, limit int) ([]*stripe.PaymentIntent, error)
	CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*stripe.PaymentIntent, error)
	RetrievePrice(ctx context.Context, id string) (*stripe.Price, error)
	ListProducts(ctx context.Context, connectAccountID string, limit int) ([]*stripe.Product, error)
}

// StripeClient implements Provider with stripe-go. The zero value fails every
// call with ErrStripeNotConfigured.
type StripeClient struct {
	sc *client.API
}

// NewStripeClient binds a client to secretKey. Nil backends use the stripe-go defaults.
func NewStripeClient(secretKey string, backends *stripe.Backends) *StripeClient {
	if strings.TrimSpace(secretKey) == "" {
		return &StripeClient{}
	}
	return &StripeClient{sc: client.New(secretKey, backends)}
}

// NewStripeClientFromEnv reads STRIPE_SECRET_KEY. STRIPE_API_BASE_URL points
// the API backend elsewhere, e.g. at stripe-mock.
func NewStripeClientFromEnv() *StripeClient {
	httpClient := &http.Client{Timeout: 20 * time.Second}
	backends := newBackends(httpClient, strings.TrimSpace(env.GetEnv("STRIPE_API_BASE_URL", "")), 2)
	return NewStripeClient(strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")), backends)
}

func newBackends(httpClient *http.Client, apiURL string, retries int64) *stripe.Backends {
	config := func(url string) *stripe.BackendConfig {
		cfg := &stripe.BackendConfig{
			HTTPClient:        httpClient,
			LeveledLogger:     stripeLogger{},
			MaxNetworkRetries: stripe.Int64(retries),
		}
		if url != "" {
			cfg.URL = stripe.String(url)
		}
		return cfg
	}
	return &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, config(apiURL)),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, config("")),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, config("")),
	}
}

// stripeLogger routes stripe-go's request log into the app log.
type stripeLogger struct{}

func (stripeLogger) Debugf(format string, v ...interface{}) { log.Debugf("[Stripe] "+format, v...) }
func (stripeLogger) Infof(format string, v ...interface{})  { log.Debugf("[Stripe] "+format, v...) }
func (stripeLogger) Warnf(format string, v ...interface{})  { log.Warnf("[Stripe] "+format, v...) }
func (stripeLogger) Errorf(format string, v ...interface{}) { log.Errorf("[Stripe] "+format, v...) }

func (c *StripeClient) api() (*client.API, error) {
	if c == nil || c.sc == nil {
		return nil, ErrStripeNotConfigured
	}
	return c.sc, nil
}

// CreateCustomer creates the billing customer of an agency.
func (c *StripeClient) CreateCustomer(ctx context.Context, in CustomerParams) (*stripe.Customer, error) {
	sc, err := c.api()
	if err != nil {
		return nil, err
	}
	address := &stripe.AddressParams{
		Line1:      optional(in.Line1),
		City:       optional(in.City),
		State:      optional(in.State),
		PostalCode: optional(in.PostalCode),
		Country:    optional(in.Country),
	}
	params := &stripe.CustomerParams{
		Email:   optional(in.Email),
		Name:    optional(in.Name),
		Phone:   optional(in.Phone),
		Address: address,
		Shipping: &stripe.CustomerShippingParams{
			Address: address,
			Name:    stripe.String(in.Name),
		},
	}
	params.Context = ctx
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	return sc.Customers.New(params)
}

func (c *StripeClient) RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	sc, err := c.api()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("subscription id is required")
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	return sc.Subscriptions.Get(id, params)
}

// UpdateSubscriptionPrice swaps the subscription's item for a new price.
func (c *StripeClient) UpdateSubscriptionPrice(ctx context.Context, id, replaceItemID, priceID string) (*stripe.Subscription, error) {
	sc, err := c.api()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" || strings.TrimSpace(priceID) == "" {
		return nil, errors.New("subscription id and price id are required")
	}
	var items []*stripe.SubscriptionItemsParams
	if replaceItemID != "" {
		items = append(items, &stripe.SubscriptionItemsParams{
			ID:      stripe.String(replaceItemID),
			Deleted: stripe.Bool(true),
		})
	}
	items = append(items, &stripe.SubscriptionItemsParams{Price: stripe.String(priceID)})

	params := &stripe.SubscriptionParams{Items: items}
	params.Context = ctx
	params.AddExpand("latest_invoice.payment_intent")
	return sc.Subscriptions.Update(id, params)
}

func (c *StripeClient) CreateSubscription(ctx context.Context, in CreateSubscriptionParams) (*stripe.Subscription, error) {
	sc, err := c.api()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.CustomerID) == "" || strings.TrimSpace(in.PriceID) == "" {
		return nil, errors.New("customer id and price id are required")
	}
	params := &stripe.SubscriptionParams{
		Customer:        stripe.String(in.CustomerID),
		Items:           []*stripe.SubscriptionItemsParams{{Price: stripe.String(in.PriceID)}},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	params.Context = ctx
	params.AddExpand("latest_invoice.payment_intent")
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	return sc.Subscriptions.New(params)
}

func (c *StripeClient) RetrieveInvoice(ctx context.Context, id string, expand ...string) (*stripe.Invoice, error) {
	sc, err := c.api()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("invoice id is required")
	}
	params := &stripe.InvoiceParams{}
	params.Context = ctx
	for _, e := range expand {
		params.AddExpand(e)
	}
	return sc.Invoices.Get(id, params)
}

func (c *StripeClient) RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	sc, err := c.api()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("payment intent id is required")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	return sc.PaymentIntents.Get(id, params)
}

// ListPaymentIntents returns the first page of the customer's payment intents.
func (c *StripeClient) ListPaymentIntents(ctx context.Context, customerID string, limit int) ([]*stripe.PaymentIntent, error) {
	sc, err := c.api()
	if err != nil {
		return nil, err
	}
	params := &stripe.PaymentIntentListParams{Customer: stripe.String(customerID)}
	params.Context = ctx
	params.Single = true
	if limit > 0 {
		params.Limit = stripe.Int64(int64(limit))
	}

	var out []*stripe.PaymentIntent
	it := sc.PaymentIntents.List(params)
	for it.Next() {
		out = append(out, it.PaymentIntent())
	}
	return out, it.Err()
}

func (c *StripeClient) CreatePaymentIntent(ctx context.Context, in PaymentIntentParams) (*stripe.PaymentIntent, error) {
	sc, err := c.api()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Currency) == "" {
		return nil, errors.New("currency is required")
	}
	params := &stripe.PaymentIntentParams{
		Amount:           stripe.Int64(in.Amount),
		Currency:         stripe.String(in.Currency),
		Customer:         optional(in.CustomerID),
		SetupFutureUsage: optional(in.SetupFutureUsage),
	}
	params.Context = ctx
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	return sc.PaymentIntents.New(params)
}

func (c *StripeClient) RetrievePrice(ctx context.Context, id string) (*stripe.Price, error) {
	sc, err := c.api()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("price id is required")
	}
	params := &stripe.PriceParams{}
	params.Context = ctx
	return sc.Prices.Get(id, params)
}

// ListProducts lists the products of a connected account with their default prices.
func (c *StripeClient) ListProducts(ctx context.Context, connectAccountID string, limit int) ([]*stripe.Product, error) {
	sc, err := c.api()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(connectAccountID) == "" {
		return nil, errors.New("connect account id is required")
	}
	params := &stripe.ProductListParams{}
	params.Context = ctx
	params.Single = true
	if limit > 0 {
		params.Limit = stripe.Int64(int64(limit))
	}
	params.SetStripeAccount(connectAccountID)
	params.AddExpand("data.default_price")

	var out []*stripe.Product
	it := sc.Products.List(params)
	for it.Next() {
		out = append(out, it.Product())
	}
	return out, it.Err()
}

// optional leaves blank strings out of the request.
func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return stripe.String(s)
}
