package models

import (
	"time"

	"gorm.io/gorm"
)

// Media is a file uploaded to object storage for a sub-account.
type Media struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	SubAccountID string    `gorm:"type:varchar(36);not null;index" json:"subAccountId"`
	Name         string    `gorm:"type:varchar(191);not null" json:"name"`
	Link         string    `gorm:"type:varchar(1024);not null" json:"link"`
	ObjectKey    string    `gorm:"type:varchar(512);not null" json:"-"`
	ContentType  string    `gorm:"type:varchar(100);default:''" json:"contentType"`
	Size         int64     `gorm:"not null;default:0" json:"size"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (m *Media) BeforeCreate(tx *gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
