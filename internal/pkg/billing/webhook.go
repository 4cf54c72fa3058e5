package billing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// DefaultSignatureTolerance is the accepted clock skew of a webhook timestamp.
const DefaultSignatureTolerance = webhook.DefaultTolerance

var (
	ErrWebhookConfig    = errors.New("webhook signature or secret missing")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// constructEvent verifies the Stripe-Signature header and decodes the event.
// Deliveries pinned to another API version are accepted; only the fields the
// handlers read are relied on.
func constructEvent(payload []byte, signatureHeader, webhookSecret string, tolerance time.Duration) (stripe.Event, error) {
	header := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if header == "" || secret == "" {
		return stripe.Event{}, ErrWebhookConfig
	}
	event, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}
