package models

import (
	"time"

	"gorm.io/gorm"
)

// DefaultPipelineName is the pipeline every new sub-account starts with.
const DefaultPipelineName = "Lead Cycle"

// Pipeline is an ordered collection of lanes inside a sub-account.
type Pipeline struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	SubAccountID string    `gorm:"type:varchar(36);not null;index" json:"subAccountId"`
	Name         string    `gorm:"type:varchar(191);not null" json:"name" validate:"required,min=1,max=191"`
	Lanes        []Lane    `gorm:"foreignKey:PipelineID;constraint:OnDelete:CASCADE" json:"lanes,omitempty"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (p *Pipeline) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
