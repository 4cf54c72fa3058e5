package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/ManuelReschke/AgencyHub/app/models"
)

type pipelineRepository struct {
	db *gorm.DB
}

// NewPipelineRepository creates a new pipeline repository instance
func NewPipelineRepository(db *gorm.DB) PipelineRepository {
	return &pipelineRepository{db: db}
}

func (r *pipelineRepository) GetByID(ctx context.Context, id string) (*models.Pipeline, error) {
	var pipeline models.Pipeline
	if err := r.db.WithContext(ctx).First(&pipeline, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &pipeline, nil
}

// Create stores a pipeline under an existing sub-account
func (r *pipelineRepository) Create(ctx context.Context, pipeline *models.Pipeline) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub models.SubAccount
		if err := tx.Select("id").First(&sub, "id = ?", pipeline.SubAccountID).Error; err != nil {
			return err
		}
		return tx.Omit("Lanes").Create(pipeline).Error
	})
}

func (r *pipelineRepository) ListBySubAccount(ctx context.Context, subAccountID string) ([]models.Pipeline, error) {
	var out []models.Pipeline
	err := r.db.WithContext(ctx).Where("sub_account_id = ?", subAccountID).Order("created_at ASC").Find(&out).Error
	return out, err
}

// LoadBoard returns the lanes of a pipeline with their tickets, both ordered
// by position. An unknown pipeline yields gorm.ErrRecordNotFound.
func (r *pipelineRepository) LoadBoard(ctx context.Context, pipelineID string) ([]models.Lane, error) {
	db := r.db.WithContext(ctx)
	if _, err := r.GetByID(ctx, pipelineID); err != nil {
		return nil, err
	}

	var lanes []models.Lane
	err := db.Where("pipeline_id = ?", pipelineID).
		Order("position ASC").
		Preload("Tickets", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC")
		}).
		Preload("Tickets.Tags").
		Preload("Tickets.Customer").
		Find(&lanes).Error
	if err != nil {
		return nil, err
	}
	for i := range lanes {
		if lanes[i].Tickets == nil {
			lanes[i].Tickets = []models.Ticket{}
		}
	}
	return lanes, nil
}

func (r *pipelineRepository) FindLane(ctx context.Context, laneID string) (*models.Lane, error) {
	var lane models.Lane
	if err := r.db.WithContext(ctx).First(&lane, "id = ?", laneID).Error; err != nil {
		return nil, err
	}
	return &lane, nil
}

func (r *pipelineRepository) FindTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	var ticket models.Ticket
	if err := r.db.WithContext(ctx).Preload("Tags").Preload("Customer").First(&ticket, "id = ?", ticketID).Error; err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *pipelineRepository) FindTags(ctx context.Context, ids []string) ([]models.Tag, error) {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return []models.Tag{}, nil
	}
	var tags []models.Tag
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&tags).Error; err != nil {
		return nil, err
	}
	if len(tags) != len(ids) {
		return nil, fmt.Errorf("unknown tag in %v: %w", ids, gorm.ErrRecordNotFound)
	}
	return tags, nil
}

// CreateTag stores a tag under an existing sub-account
func (r *pipelineRepository) CreateTag(ctx context.Context, tag *models.Tag) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub models.SubAccount
		if err := tx.Select("id").First(&sub, "id = ?", tag.SubAccountID).Error; err != nil {
			return err
		}
		return tx.Create(tag).Error
	})
}

func (r *pipelineRepository) ListTags(ctx context.Context, subAccountID string) ([]models.Tag, error) {
	var out []models.Tag
	err := r.db.WithContext(ctx).Where("sub_account_id = ?", subAccountID).Order("name ASC").Find(&out).Error
	return out, err
}

// CreateLane appends the lane behind the existing lanes of its pipeline
func (r *pipelineRepository) CreateLane(ctx context.Context, lane *models.Lane) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pipeline models.Pipeline
		if err := tx.First(&pipeline, "id = ?", lane.PipelineID).Error; err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&models.Lane{}).Where("pipeline_id = ?", lane.PipelineID).Count(&count).Error; err != nil {
			return err
		}
		lane.Order = int(count)
		return tx.Omit("Tickets").Create(lane).Error
	})
}

// UpdateLane writes the lane name. Pipeline and position are left alone.
func (r *pipelineRepository) UpdateLane(ctx context.Context, lane *models.Lane) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Lane
		if err := tx.Select("id").First(&existing, "id = ?", lane.ID).Error; err != nil {
			return err
		}
		return tx.Model(&existing).Update("name", lane.Name).Error
	})
}

// DeleteLane removes a lane with its tickets and closes the position gap
func (r *pipelineRepository) DeleteLane(ctx context.Context, laneID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lane models.Lane
		if err := tx.First(&lane, "id = ?", laneID).Error; err != nil {
			return err
		}

		ticketIDs := tx.Model(&models.Ticket{}).Select("id").Where("lane_id = ?", laneID)
		if err := tx.Exec("DELETE FROM ticket_tags WHERE ticket_id IN (?)", ticketIDs).Error; err != nil {
			return err
		}
		if err := tx.Where("lane_id = ?", laneID).Delete(&models.Ticket{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Lane{}, "id = ?", laneID).Error; err != nil {
			return err
		}
		return tx.Model(&models.Lane{}).
			Where("pipeline_id = ? AND position > ?", lane.PipelineID, lane.Order).
			UpdateColumn("position", gorm.Expr("position - 1")).Error
	})
}

// CreateTicket appends the ticket behind the existing tickets of its lane
func (r *pipelineRepository) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lane models.Lane
		if err := tx.First(&lane, "id = ?", ticket.LaneID).Error; err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&models.Ticket{}).Where("lane_id = ?", ticket.LaneID).Count(&count).Error; err != nil {
			return err
		}
		ticket.Order = int(count)

		tags := ticket.Tags
		if err := tx.Omit("Tags", "Customer").Create(ticket).Error; err != nil {
			return err
		}
		if len(tags) > 0 {
			if err := tx.Model(ticket).Association("Tags").Replace(tags); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateTicket writes the editable fields and tags. Lane and position are
// owned by the order writes and left alone.
func (r *pipelineRepository) UpdateTicket(ctx context.Context, ticket *models.Ticket) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Ticket
		if err := tx.Select("id").First(&existing, "id = ?", ticket.ID).Error; err != nil {
			return err
		}
		err := tx.Model(&existing).
			Select("name", "description", "value", "assigned_user_id", "customer_id").
			Updates(map[string]interface{}{
				"name":             ticket.Name,
				"description":      ticket.Description,
				"value":            ticket.Value,
				"assigned_user_id": ticket.AssignedUserID,
				"customer_id":      ticket.CustomerID,
			}).Error
		if err != nil {
			return err
		}

		assoc := tx.Model(&models.Ticket{ID: ticket.ID}).Association("Tags")
		if len(ticket.Tags) == 0 {
			return assoc.Clear()
		}
		return assoc.Replace(ticket.Tags)
	})
}

// DeleteTicket removes a ticket with its tag links and closes the position gap in its lane
func (r *pipelineRepository) DeleteTicket(ctx context.Context, ticketID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ticket models.Ticket
		if err := tx.First(&ticket, "id = ?", ticketID).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM ticket_tags WHERE ticket_id = ?", ticketID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Ticket{}, "id = ?", ticketID).Error; err != nil {
			return err
		}
		return tx.Model(&models.Ticket{}).
			Where("lane_id = ? AND position > ?", ticket.LaneID, ticket.Order).
			UpdateColumn("position", gorm.Expr("position - 1")).Error
	})
}

// UpdateLaneOrder writes lane positions. Rows of lanes that were deleted in
// the meantime or belong to another pipeline are skipped.
func (r *pipelineRepository) UpdateLaneOrder(ctx context.Context, pipelineID string, rows []models.LaneOrder) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			err := tx.Model(&models.Lane{}).
				Where("id = ? AND pipeline_id = ?", row.ID, pipelineID).
				UpdateColumn("position", row.Order).Error
			if err != nil {
				return fmt.Errorf("lane %s: %w", row.ID, err)
			}
		}
		return nil
	})
}

// UpdateTicketOrder writes ticket lanes and positions. Only tickets and target
// lanes inside the pipeline are touched.
func (r *pipelineRepository) UpdateTicketOrder(ctx context.Context, pipelineID string, rows []models.TicketOrder) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var laneIDs []string
		if err := tx.Model(&models.Lane{}).Where("pipeline_id = ?", pipelineID).Pluck("id", &laneIDs).Error; err != nil {
			return err
		}
		lanes := make(map[string]struct{}, len(laneIDs))
		for _, id := range laneIDs {
			lanes[id] = struct{}{}
		}

		for _, row := range rows {
			if _, ok := lanes[row.LaneID]; !ok {
				continue
			}
			err := tx.Model(&models.Ticket{}).
				Where("id = ? AND lane_id IN ?", row.ID, laneIDs).
				UpdateColumns(map[string]interface{}{"lane_id": row.LaneID, "position": row.Order}).Error
			if err != nil {
				return fmt.Errorf("ticket %s: %w", row.ID, err)
			}
		}
		return nil
	})
}

// Owner returns the sub-account a pipeline belongs to
func (r *pipelineRepository) Owner(ctx context.Context, pipelineID string) (*models.SubAccount, error) {
	var sub models.SubAccount
	err := r.db.WithContext(ctx).
		Joins("JOIN pipelines ON pipelines.sub_account_id = sub_accounts.id").
		Where("pipelines.id = ?", pipelineID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
