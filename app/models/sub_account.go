package models

import (
	"time"

	"gorm.io/gorm"
)

// SubAccount is a client workspace owned by an agency.
type SubAccount struct {
	ID               string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	AgencyID         string     `gorm:"type:varchar(36);not null;index" json:"agencyId"`
	Name             string     `gorm:"type:varchar(191);not null" json:"name" validate:"required,min=1,max=191"`
	CompanyEmail     string     `gorm:"type:varchar(200)" json:"companyEmail" validate:"omitempty,email,max=200"`
	CompanyPhone     string     `gorm:"type:varchar(50);default:''" json:"companyPhone" validate:"max=50"`
	Address          string     `gorm:"type:varchar(191);default:''" json:"address" validate:"max=191"`
	City             string     `gorm:"type:varchar(100);default:''" json:"city" validate:"max=100"`
	ZipCode          string     `gorm:"type:varchar(20);default:''" json:"zipCode" validate:"max=20"`
	State            string     `gorm:"type:varchar(100);default:''" json:"state" validate:"max=100"`
	Country          string     `gorm:"type:varchar(100);default:''" json:"country" validate:"max=100"`
	SubAccountLogo   string     `gorm:"type:text" json:"subAccountLogo"`
	ConnectAccountID string     `gorm:"type:varchar(191);default:''" json:"connectAccountId"`
	Pipelines        []Pipeline `gorm:"foreignKey:SubAccountID;constraint:OnDelete:CASCADE" json:"pipelines,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (s *SubAccount) BeforeCreate(tx *gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
