package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ManuelReschke/AgencyHub/app/models"
)

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new notification repository instance
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, agencyID string, subAccountID *string, notificationType, description string) error {
	return models.CreateNotification(r.db.WithContext(ctx), agencyID, subAccountID, notificationType, description)
}

func (r *notificationRepository) ListByAgency(ctx context.Context, agencyID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.Notification
	err := r.db.WithContext(ctx).Where("agency_id = ?", agencyID).
		Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}
