package models

import (
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

var currencyValueRegex = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)

// Ticket is a unit of work tracked in a lane. Order is its position within the lane.
type Ticket struct {
	ID             string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name           string    `gorm:"type:varchar(191);not null" json:"name" validate:"required,min=1,max=191"`
	Description    string    `gorm:"type:text" json:"description"`
	Value          string    `gorm:"type:varchar(32);default:''" json:"value" validate:"omitempty,currency"`
	LaneID         string    `gorm:"type:varchar(36);not null;index:idx_tickets_lane_position,priority:1" json:"laneId"`
	Order          int       `gorm:"column:position;not null;default:0;index:idx_tickets_lane_position,priority:2" json:"order"`
	AssignedUserID *string   `gorm:"type:varchar(36);default:null;index" json:"assignedUserId"`
	CustomerID     *string   `gorm:"type:varchar(36);default:null;index" json:"customerId"`
	Customer       *Contact  `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Tags           []Tag     `gorm:"many2many:ticket_tags;" json:"tags"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (t *Ticket) BeforeCreate(tx *gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// Validate checks the editable ticket fields.
func (t *Ticket) Validate() error {
	return NewValidator().Struct(t)
}

// NewValidator returns a validator that knows the "currency" rule used by ticket values.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		return currencyValueRegex.MatchString(fl.Field().String())
	})
	return v
}
