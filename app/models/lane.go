package models

import (
	"time"

	"gorm.io/gorm"
)

// Lane is an ordered stage of a pipeline. Order is the zero-based position
// among the pipeline's lanes and is stored in the "position" column.
type Lane struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name       string    `gorm:"type:varchar(191);not null" json:"name" validate:"required,min=1,max=191"`
	PipelineID string    `gorm:"type:varchar(36);not null;index:idx_lanes_pipeline_position,priority:1" json:"pipelineId"`
	Order      int       `gorm:"column:position;not null;default:0;index:idx_lanes_pipeline_position,priority:2" json:"order"`
	Tickets    []Ticket  `gorm:"foreignKey:LaneID;constraint:OnDelete:CASCADE" json:"tickets"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (l *Lane) BeforeCreate(tx *gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
