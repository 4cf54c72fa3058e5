package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ManuelReschke/AgencyHub/app/models"
)

type mediaRepository struct {
	db *gorm.DB
}

// NewMediaRepository creates a new media repository instance
func NewMediaRepository(db *gorm.DB) MediaRepository {
	return &mediaRepository{db: db}
}

func (r *mediaRepository) Create(ctx context.Context, media *models.Media) error {
	return r.db.WithContext(ctx).Create(media).Error
}

func (r *mediaRepository) GetByID(ctx context.Context, id string) (*models.Media, error) {
	var media models.Media
	if err := r.db.WithContext(ctx).First(&media, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &media, nil
}

// ListBySubAccount returns the newest files first
func (r *mediaRepository) ListBySubAccount(ctx context.Context, subAccountID string) ([]models.Media, error) {
	var media []models.Media
	err := r.db.WithContext(ctx).Where("sub_account_id = ?", subAccountID).
		Order("created_at DESC").Find(&media).Error
	return media, err
}

func (r *mediaRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Media{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
