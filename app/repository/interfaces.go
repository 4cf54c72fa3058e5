package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ManuelReschke/AgencyHub/app/models"
)

// AgencyRepository defines the operations on tenants and their sub-accounts
type AgencyRepository interface {
	GetByID(ctx context.Context, id string) (*models.Agency, error)
	Create(ctx context.Context, agency *models.Agency) error
	UpdateDetails(ctx context.Context, agency *models.Agency) error
	GetSubAccountByID(ctx context.Context, id string) (*models.SubAccount, error)
	ListSubAccounts(ctx context.Context, agencyID string) ([]models.SubAccount, error)
	CreateSubAccount(ctx context.Context, sub *models.SubAccount) error
	UpdateSubAccountDetails(ctx context.Context, sub *models.SubAccount) error
}

// ContactRepository defines the sub-account contact operations
type ContactRepository interface {
	Upsert(ctx context.Context, contact *models.Contact) error
	ListBySubAccount(ctx context.Context, subAccountID string) ([]models.Contact, error)
}

// PipelineRepository defines the board related database operations
type PipelineRepository interface {
	GetByID(ctx context.Context, id string) (*models.Pipeline, error)
	Create(ctx context.Context, pipeline *models.Pipeline) error
	ListBySubAccount(ctx context.Context, subAccountID string) ([]models.Pipeline, error)
	LoadBoard(ctx context.Context, pipelineID string) ([]models.Lane, error)
	FindLane(ctx context.Context, laneID string) (*models.Lane, error)
	FindTicket(ctx context.Context, ticketID string) (*models.Ticket, error)
	FindTags(ctx context.Context, ids []string) ([]models.Tag, error)
	CreateTag(ctx context.Context, tag *models.Tag) error
	ListTags(ctx context.Context, subAccountID string) ([]models.Tag, error)
	CreateLane(ctx context.Context, lane *models.Lane) error
	UpdateLane(ctx context.Context, lane *models.Lane) error
	DeleteLane(ctx context.Context, laneID string) error
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	UpdateTicket(ctx context.Context, ticket *models.Ticket) error
	DeleteTicket(ctx context.Context, ticketID string) error
	UpdateLaneOrder(ctx context.Context, pipelineID string, rows []models.LaneOrder) error
	UpdateTicketOrder(ctx context.Context, pipelineID string, rows []models.TicketOrder) error
	Owner(ctx context.Context, pipelineID string) (*models.SubAccount, error)
}

// MediaRepository defines the media library database operations
type MediaRepository interface {
	Create(ctx context.Context, media *models.Media) error
	GetByID(ctx context.Context, id string) (*models.Media, error)
	ListBySubAccount(ctx context.Context, subAccountID string) ([]models.Media, error)
	Delete(ctx context.Context, id string) error
}

// NotificationRepository defines the activity log database operations
type NotificationRepository interface {
	Create(ctx context.Context, agencyID string, subAccountID *string, notificationType, description string) error
	ListByAgency(ctx context.Context, agencyID string, limit int) ([]models.Notification, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Agency       AgencyRepository
	Contact      ContactRepository
	Pipeline     PipelineRepository
	Media        MediaRepository
	Notification NotificationRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Agency:       NewAgencyRepository(db),
		Contact:      NewContactRepository(db),
		Pipeline:     NewPipelineRepository(db),
		Media:        NewMediaRepository(db),
		Notification: NewNotificationRepository(db),
	}
}
