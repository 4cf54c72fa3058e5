package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	NotificationTypeMedia      = "media"
	NotificationTypeLane       = "lane"
	NotificationTypeTicket     = "ticket"
	NotificationTypeSubAccount = "subaccount"
	NotificationTypeContact    = "contact"
	NotificationTypePipeline   = "pipeline"
)

// Notification is an entry in the agency activity log.
type Notification struct {
	ID           string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	AgencyID     string         `gorm:"type:varchar(36);not null;index" json:"agencyId"`
	SubAccountID *string        `gorm:"type:varchar(36);default:null;index" json:"subAccountId"`
	Type         string         `gorm:"type:varchar(50)" json:"type" validate:"oneof=media lane ticket subaccount contact pipeline"`
	Description  string         `gorm:"type:text" json:"description"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	ensureID(&n.ID)
	return nil
}

// CreateNotification writes an activity entry for an agency and optional sub-account.
func CreateNotification(db *gorm.DB, agencyID string, subAccountID *string, notificationType, description string) error {
	notification := Notification{
		AgencyID:     agencyID,
		SubAccountID: subAccountID,
		Type:         notificationType,
		Description:  description,
	}
	return db.Create(&notification).Error
}
