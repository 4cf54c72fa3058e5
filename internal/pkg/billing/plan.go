package billing

import (
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v76"

	"github.com/ManuelReschke/AgencyHub/app/models"
)

// isTerminalStatus reports provider statuses after which the subscription no
// longer grants access.
func isTerminalStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case models.SubscriptionStatusCanceled,
		models.SubscriptionStatusIncompleteExpired,
		models.SubscriptionStatusUnpaid:
		return true
	default:
		return false
	}
}

// FormatPrice renders a minor-unit amount as "$<amount>" without trailing zeros.
func FormatPrice(unitAmount int64) string {
	return "$" + strconv.FormatFloat(float64(unitAmount)/100, 'f', -1, 64)
}

// displayPrice is nil when the price has no positive unit amount.
func displayPrice(price *stripe.Price) *string {
	if price == nil || price.UnitAmount <= 0 {
		return nil
	}
	s := FormatPrice(price.UnitAmount)
	return &s
}
