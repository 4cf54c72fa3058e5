package billing

import (
	"github.com/stripe/stripe-go/v76"
)

// CreateSubscriptionParams are the inputs of a new default-incomplete subscription.
type CreateSubscriptionParams struct {
	CustomerID string
	PriceID    string
	Metadata   map[string]string
}

// PaymentIntentParams are the inputs of a manually created payment intent.
type PaymentIntentParams struct {
	Amount           int64
	Currency         string
	CustomerID       string
	SetupFutureUsage string
	Metadata         map[string]string
}

// CustomerParams describe the billing customer of a new agency. The address
// doubles as the shipping address.
type CustomerParams struct {
	Email      string
	Name       string
	Phone      string
	Line1      string
	City       string
	State      string
	PostalCode string
	Country    string
	Metadata   map[string]string
}

// SubscriptionResult is returned to the client that confirms the payment.
type SubscriptionResult struct {
	SubscriptionID string `json:"subscriptionId"`
	ClientSecret   string `json:"clientSecret"`
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	LiveMode        bool
	PayloadJSON     string
	SignatureValid  bool
}

// firstItem returns the single item agency plans are built from.
func firstItem(sub *stripe.Subscription) (*stripe.SubscriptionItem, bool) {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0] == nil {
		return nil, false
	}
	return sub.Items.Data[0], true
}

// subscriptionCustomer is the customer id of sub, expanded or not.
func subscriptionCustomer(sub *stripe.Subscription) string {
	if sub == nil || sub.Customer == nil {
		return ""
	}
	return sub.Customer.ID
}

// expanded reports whether an expandable field was decoded from a full
// object. Unexpanded fields only carry the id and leave Object empty.
func expanded(object string) bool {
	return object != ""
}
