package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ManuelReschke/AgencyHub/app/models"
)

var (
	agencyDetailColumns = []string{
		"name", "company_email", "company_phone", "white_label", "address",
		"city", "zip_code", "state", "country", "agency_logo", "goal",
	}
	subAccountDetailColumns = []string{
		"name", "company_email", "company_phone", "address",
		"city", "zip_code", "state", "country", "sub_account_logo",
	}
)

type agencyRepository struct {
	db *gorm.DB
}

// NewAgencyRepository creates a new agency repository instance
func NewAgencyRepository(db *gorm.DB) AgencyRepository {
	return &agencyRepository{db: db}
}

func (r *agencyRepository) GetByID(ctx context.Context, id string) (*models.Agency, error) {
	var agency models.Agency
	if err := r.db.WithContext(ctx).Preload("Subscription").First(&agency, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &agency, nil
}

func (r *agencyRepository) Create(ctx context.Context, agency *models.Agency) error {
	return r.db.WithContext(ctx).Omit("SubAccounts", "Subscription").Create(agency).Error
}

// UpdateDetails writes the editable company fields. Billing ids are left alone.
func (r *agencyRepository) UpdateDetails(ctx context.Context, agency *models.Agency) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Agency
		if err := tx.Select("id").First(&existing, "id = ?", agency.ID).Error; err != nil {
			return err
		}
		return tx.Model(&existing).Select(agencyDetailColumns).Updates(agency).Error
	})
}

func (r *agencyRepository) GetSubAccountByID(ctx context.Context, id string) (*models.SubAccount, error) {
	var sub models.SubAccount
	if err := r.db.WithContext(ctx).First(&sub, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *agencyRepository) ListSubAccounts(ctx context.Context, agencyID string) ([]models.SubAccount, error) {
	var out []models.SubAccount
	err := r.db.WithContext(ctx).Where("agency_id = ?", agencyID).Order("name ASC").Find(&out).Error
	return out, err
}

// CreateSubAccount stores a sub-account under an existing agency together
// with its default pipeline
func (r *agencyRepository) CreateSubAccount(ctx context.Context, sub *models.SubAccount) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var agency models.Agency
		if err := tx.Select("id").First(&agency, "id = ?", sub.AgencyID).Error; err != nil {
			return err
		}
		if err := tx.Omit("Pipelines").Create(sub).Error; err != nil {
			return err
		}
		return tx.Omit("Lanes").Create(&models.Pipeline{Name: models.DefaultPipelineName, SubAccountID: sub.ID}).Error
	})
}

// UpdateSubAccountDetails writes the editable company fields of a sub-account
func (r *agencyRepository) UpdateSubAccountDetails(ctx context.Context, sub *models.SubAccount) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.SubAccount
		if err := tx.Select("id").First(&existing, "id = ?", sub.ID).Error; err != nil {
			return err
		}
		return tx.Model(&existing).Select(subAccountDetailColumns).Updates(sub).Error
	})
}
