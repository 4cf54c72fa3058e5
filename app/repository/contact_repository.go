package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/ManuelReschke/AgencyHub/app/models"
)

type contactRepository struct {
	db *gorm.DB
}

// NewContactRepository creates a new contact repository instance
func NewContactRepository(db *gorm.DB) ContactRepository {
	return &contactRepository{db: db}
}

// Upsert creates the contact, or updates name and email when the id already
// exists in the same sub-account. An id owned by another sub-account is not found.
func (r *contactRepository) Upsert(ctx context.Context, contact *models.Contact) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub models.SubAccount
		if err := tx.Select("id").First(&sub, "id = ?", contact.SubAccountID).Error; err != nil {
			return err
		}
		if contact.ID == "" {
			return tx.Create(contact).Error
		}

		var existing models.Contact
		err := tx.First(&existing, "id = ?", contact.ID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(contact).Error
		case err != nil:
			return err
		case existing.SubAccountID != contact.SubAccountID:
			return gorm.ErrRecordNotFound
		}
		if err := tx.Model(&existing).Select("name", "email").Updates(contact).Error; err != nil {
			return err
		}
		contact.CreatedAt = existing.CreatedAt
		return nil
	})
}

func (r *contactRepository) ListBySubAccount(ctx context.Context, subAccountID string) ([]models.Contact, error) {
	var out []models.Contact
	err := r.db.WithContext(ctx).Where("sub_account_id = ?", subAccountID).Order("name ASC").Find(&out).Error
	return out, err
}
