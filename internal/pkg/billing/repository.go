package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/AgencyHub/app/models"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	FindAgencyByCustomerID(ctx context.Context, customerID string) (*models.Agency, error)
	UpsertSubscription(ctx context.Context, sub *models.Subscription) error
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, outcome, processingError string) error
	ConnectAccountID(ctx context.Context, entity EntityType, id string) (string, error)
	SetConnectAccount(ctx context.Context, entity EntityType, id, accountID string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindAgencyByCustomerID(ctx context.Context, customerID string) (*models.Agency, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var agency models.Agency
	err := r.db.WithContext(ctx).Preload("Subscription").
		Where("customer_id = ?", customerID).
		First(&agency).Error
	if err != nil {
		return nil, err
	}
	return &agency, nil
}

// UpsertSubscription writes the agency's subscription row, overwriting every
// provider-derived column when one exists.
func (r *gormRepository) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "agency_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"subscription_id",
			"customer_id",
			"price_id",
			"plan",
			"price",
			"status",
			"active",
			"current_period_end_date",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return db.Where("agency_id = ?", sub.AgencyID).First(sub).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, outcome, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"outcome":          outcome,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) ConnectAccountID(ctx context.Context, entity EntityType, id string) (string, error) {
	model, err := connectModel(entity)
	if err != nil {
		return "", err
	}
	var row struct {
		ConnectAccountID string
	}
	err = r.db.WithContext(ctx).Model(model).Select("connect_account_id").
		Where("id = ?", id).Take(&row).Error
	if err != nil {
		return "", err
	}
	return row.ConnectAccountID, nil
}

func (r *gormRepository) SetConnectAccount(ctx context.Context, entity EntityType, id, accountID string) error {
	model, err := connectModel(entity)
	if err != nil {
		return err
	}
	db := r.db.WithContext(ctx)
	if err := db.Model(model).Select("id").Where("id = ?", id).Take(model).Error; err != nil {
		return err
	}
	return db.Model(model).Where("id = ?", id).Update("connect_account_id", accountID).Error
}

func connectModel(entity EntityType) (interface{}, error) {
	switch entity {
	case EntityAgency:
		return &models.Agency{}, nil
	case EntitySubAccount:
		return &models.SubAccount{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown entity %q", ErrInvalidConnectState, entity)
	}
}
