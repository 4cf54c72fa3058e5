package billing

import (
	"context"
	"errors"
	"sync"

	"github.com/stripe/stripe-go/v76"
)

var errFake = errors.New("fake provider failure")

// fakeProvider records calls and serves canned objects.
type fakeProvider struct {
	mu sync.Mutex

	subscriptions  map[string]*stripe.Subscription
	invoices       map[string]*stripe.Invoice
	paymentIntents map[string]*stripe.PaymentIntent
	prices         map[string]*stripe.Price
	listed         []*stripe.PaymentIntent
	products       []*stripe.Product

	createResult *stripe.Subscription
	updateResult *stripe.Subscription

	failInvoice  bool
	failList     bool
	failCreate   bool
	failCustomer bool

	calls          []string
	createParams   *CreateSubscriptionParams
	updateArgs     []string
	piParams       *PaymentIntentParams
	customerParams *CustomerParams
	productsAcct   string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		subscriptions:  map[string]*stripe.Subscription{},
		invoices:       map[string]*stripe.Invoice{},
		paymentIntents: map[string]*stripe.PaymentIntent{},
		prices:         map[string]*stripe.Price{},
	}
}

func (f *fakeProvider) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeProvider) called(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (f *fakeProvider) CreateCustomer(ctx context.Context, params CustomerParams) (*stripe.Customer, error) {
	f.record("CreateCustomer")
	if f.failCustomer {
		return nil, errFake
	}
	f.customerParams = &params
	return &stripe.Customer{ID: "cus_new", Email: params.Email}, nil
}

func (f *fakeProvider) RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	f.record("RetrieveSubscription")
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, &stripe.Error{HTTPStatusCode: 404, Type: stripe.ErrorTypeInvalidRequest, Msg: "No such subscription"}
	}
	return sub, nil
}

func (f *fakeProvider) UpdateSubscriptionPrice(ctx context.Context, id, replaceItemID, priceID string) (*stripe.Subscription, error) {
	f.record("UpdateSubscriptionPrice")
	f.updateArgs = []string{id, replaceItemID, priceID}
	return f.updateResult, nil
}

func (f *fakeProvider) CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*stripe.Subscription, error) {
	f.record("CreateSubscription")
	f.createParams = &params
	return f.createResult, nil
}

func (f *fakeProvider) RetrieveInvoice(ctx context.Context, id string, expand ...string) (*stripe.Invoice, error) {
	f.record("RetrieveInvoice")
	if f.failInvoice {
		return nil, errFake
	}
	inv, ok := f.invoices[id]
	if !ok {
		return nil, errFake
	}
	return inv, nil
}

func (f *fakeProvider) RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	f.record("RetrievePaymentIntent")
	pi, ok := f.paymentIntents[id]
	if !ok {
		return nil, errFake
	}
	return pi, nil
}

func (f *fakeProvider) ListPaymentIntents(ctx context.Context, customerID string, limit int) ([]*stripe.PaymentIntent, error) {
	f.record("ListPaymentIntents")
	if f.failList {
		return nil, errFake
	}
	return f.listed, nil
}

func (f *fakeProvider) CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.record("CreatePaymentIntent")
	if f.failCreate {
		return nil, errFake
	}
	f.piParams = &params
	return &stripe.PaymentIntent{
		ID:           "pi_manual",
		ClientSecret: "pi_manual_secret",
		Amount:       params.Amount,
		Currency:     stripe.Currency(params.Currency),
	}, nil
}

func (f *fakeProvider) RetrievePrice(ctx context.Context, id string) (*stripe.Price, error) {
	f.record("RetrievePrice")
	p, ok := f.prices[id]
	if !ok {
		return nil, errFake
	}
	return p, nil
}

func (f *fakeProvider) ListProducts(ctx context.Context, connectAccountID string, limit int) ([]*stripe.Product, error) {
	f.record("ListProducts")
	f.productsAcct = connectAccountID
	return f.products, nil
}

// newSub builds a subscription with one item at the given price.
func newSub(id, customerID, status, priceID string, unitAmount int64) *stripe.Subscription {
	return &stripe.Subscription{
		ID:       id,
		Object:   "subscription",
		Customer: &stripe.Customer{ID: customerID},
		Status:   stripe.SubscriptionStatus(status),
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{{
			ID:    "si_" + id,
			Price: &stripe.Price{ID: priceID, Currency: stripe.CurrencyUSD, UnitAmount: unitAmount},
		}}},
	}
}

// expandedInvoice is an invoice returned with its payment intent expanded.
func expandedInvoice(id, piID, secret string) *stripe.Invoice {
	return &stripe.Invoice{
		ID:            id,
		Object:        "invoice",
		PaymentIntent: &stripe.PaymentIntent{ID: piID, Object: "payment_intent", ClientSecret: secret},
	}
}
