package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	SubscriptionStatusActive            = "active"
	SubscriptionStatusTrialing          = "trialing"
	SubscriptionStatusIncomplete        = "incomplete"
	SubscriptionStatusIncompleteExpired = "incomplete_expired"
	SubscriptionStatusPastDue           = "past_due"
	SubscriptionStatusUnpaid            = "unpaid"
	SubscriptionStatusCanceled          = "canceled"
	SubscriptionStatusPaused            = "paused"
)

// Subscription caches the provider subscription of an agency. There is at most
// one row per agency; rows are overwritten on every reconcile and never deleted.
type Subscription struct {
	ID                   string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	AgencyID             string    `gorm:"type:varchar(36);not null;uniqueIndex:ux_subscriptions_agency_id" json:"agencyId"`
	SubscriptionID       string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_subscriptions_subscription_id" json:"subscriptionId"`
	CustomerID           string    `gorm:"type:varchar(191);not null;index" json:"customerId"`
	PriceID              string    `gorm:"type:varchar(191);not null;default:''" json:"priceId"`
	Plan                 string    `gorm:"type:varchar(191);not null;default:''" json:"plan"`
	Price                *string   `gorm:"type:varchar(32);default:null" json:"price"`
	Status               string    `gorm:"type:varchar(32);not null;default:''" json:"status"`
	Active               bool      `gorm:"not null;default:false;index" json:"active"`
	CurrentPeriodEndDate time.Time `gorm:"type:timestamp;not null" json:"currentPeriodEndDate"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
