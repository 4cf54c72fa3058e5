package models

import (
	"time"

	"gorm.io/gorm"
)

// Agency is the top-level tenant. CustomerID is the billing provider customer
// and is unique so webhook reconciliation resolves at most one agency.
type Agency struct {
	ID               string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name             string        `gorm:"type:varchar(191);not null" json:"name" validate:"required,min=1,max=191"`
	CompanyEmail     string        `gorm:"type:varchar(200)" json:"companyEmail" validate:"omitempty,email,max=200"`
	CompanyPhone     string        `gorm:"type:varchar(50);default:''" json:"companyPhone" validate:"max=50"`
	WhiteLabel       bool          `gorm:"not null;default:false" json:"whiteLabel"`
	Address          string        `gorm:"type:varchar(191);default:''" json:"address" validate:"max=191"`
	City             string        `gorm:"type:varchar(100);default:''" json:"city" validate:"max=100"`
	ZipCode          string        `gorm:"type:varchar(20);default:''" json:"zipCode" validate:"max=20"`
	State            string        `gorm:"type:varchar(100);default:''" json:"state" validate:"max=100"`
	Country          string        `gorm:"type:varchar(100);default:''" json:"country" validate:"max=100"`
	AgencyLogo       string        `gorm:"type:text" json:"agencyLogo"`
	Goal             int           `gorm:"default:5" json:"goal" validate:"min=0"`
	CustomerID       string        `gorm:"type:varchar(191);uniqueIndex:ux_agencies_customer_id;default:null" json:"customerId"`
	ConnectAccountID string        `gorm:"type:varchar(191);default:''" json:"connectAccountId"`
	SubAccounts      []SubAccount  `gorm:"foreignKey:AgencyID;constraint:OnDelete:CASCADE" json:"subAccounts,omitempty"`
	Subscription     *Subscription `gorm:"foreignKey:AgencyID" json:"subscription,omitempty"`
	CreatedAt        time.Time     `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time     `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (a *Agency) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// HasActiveSubscription reports whether the cached billing state marks the agency as paying.
func (a *Agency) HasActiveSubscription() bool {
	return a.Subscription != nil && a.Subscription.SubscriptionID != "" && a.Subscription.Active
}
