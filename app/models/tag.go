package models

import (
	"time"

	"gorm.io/gorm"
)

type Tag struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name         string    `gorm:"type:varchar(100);not null" json:"name" validate:"required,min=1,max=100"`
	Color        string    `gorm:"type:varchar(32);default:''" json:"color"`
	SubAccountID string    `gorm:"type:varchar(36);not null;index" json:"subAccountId"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (t *Tag) BeforeCreate(tx *gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// Contact is a customer of a sub-account that tickets can reference.
type Contact struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name         string    `gorm:"type:varchar(191);not null" json:"name" validate:"required,min=1,max=191"`
	Email        string    `gorm:"type:varchar(200)" json:"email" validate:"omitempty,email"`
	SubAccountID string    `gorm:"type:varchar(36);not null;index" json:"subAccountId"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (c *Contact) BeforeCreate(tx *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
