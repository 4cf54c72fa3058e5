package controllers

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AgencyHub/app/models"
	"github.com/ManuelReschke/AgencyHub/app/repository"
	"github.com/ManuelReschke/AgencyHub/internal/pkg/board"
)

// BoardController serves the pipeline board and its drag and drop operations.
type BoardController struct {
	boards        *board.Service
	pipelines     repository.PipelineRepository
	notifications repository.NotificationRepository
}

func NewBoardController(boards *board.Service, repos *repository.Repositories) *BoardController {
	return &BoardController{
		boards:        boards,
		pipelines:     repos.Pipeline,
		notifications: repos.Notification,
	}
}

type reorderLanesRequest struct {
	SourceIndex      *int `json:"sourceIndex" validate:"required"`
	DestinationIndex *int `json:"destinationIndex" validate:"required"`
}

type moveTicketRequest struct {
	SourceLaneID      string `json:"sourceLaneId" validate:"required"`
	SourceIndex       *int   `json:"sourceIndex" validate:"required"`
	DestinationLaneID string `json:"destinationLaneId" validate:"required"`
	DestinationIndex  *int   `json:"destinationIndex" validate:"required"`
}

type laneRequest struct {
	Name string `json:"name" validate:"required,min=1,max=191"`
}

type ticketRequest struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Value          string   `json:"value"`
	AssignedUserID *string  `json:"assignedUserId"`
	CustomerID     *string  `json:"customerId"`
	TagIDs         []string `json:"tagIds"`
}

func (r ticketRequest) apply(t *models.Ticket, tags []models.Tag) {
	t.Name = r.Name
	t.Description = r.Description
	t.Value = r.Value
	t.AssignedUserID = r.AssignedUserID
	t.CustomerID = r.CustomerID
	t.Tags = tags
}

// HandleGetBoard returns the lanes of a pipeline with their tickets.
func (bc *BoardController) HandleGetBoard(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	pipelineID := c.Params("pipelineId")
	lanes, err := bc.boards.Lanes(ctx, pipelineID, c.QueryBool("refresh", false))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"pipelineId": pipelineID, "lanes": lanes})
}

// HandleSearchTickets lists the tickets of a pipeline matching ?search=.
func (bc *BoardController) HandleSearchTickets(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	tickets, err := bc.boards.Tickets(ctx, c.Params("pipelineId"), c.Query("search"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"tickets": tickets})
}

// HandleReorderLanes moves a lane from sourceIndex to destinationIndex.
func (bc *BoardController) HandleReorderLanes(c *fiber.Ctx) error {
	var req reorderLanesRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	lanes, err := bc.boards.ReorderLanes(ctx, c.Params("pipelineId"), *req.SourceIndex, *req.DestinationIndex)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"lanes": lanes})
}

// HandleMoveTicket moves a ticket within a lane or across lanes.
func (bc *BoardController) HandleMoveTicket(c *fiber.Ctx) error {
	var req moveTicketRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	lanes, err := bc.boards.MoveTicket(ctx, c.Params("pipelineId"),
		req.SourceLaneID, *req.SourceIndex, req.DestinationLaneID, *req.DestinationIndex)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"lanes": lanes})
}

// HandleCreateLane appends a lane to a pipeline.
func (bc *BoardController) HandleCreateLane(c *fiber.Ctx) error {
	var req laneRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	pipelineID := c.Params("pipelineId")
	lane, err := bc.boards.CreateLane(ctx, pipelineID, req.Name)
	if err != nil {
		return respondError(c, err)
	}
	bc.notify(ctx, pipelineID, models.NotificationTypeLane, "Created a lane | "+lane.Name)
	return c.Status(fiber.StatusCreated).JSON(lane)
}

// HandleUpdateLane renames a lane. Its position is left alone.
func (bc *BoardController) HandleUpdateLane(c *fiber.Ctx) error {
	var req laneRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	lane, err := bc.boards.UpdateLane(ctx, c.Params("laneId"), req.Name)
	if err != nil {
		return respondError(c, err)
	}
	bc.notify(ctx, lane.PipelineID, models.NotificationTypeLane, "Updated a lane | "+lane.Name)
	return c.JSON(lane)
}

// HandleDeleteLane removes a lane and its tickets.
func (bc *BoardController) HandleDeleteLane(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	lane, err := bc.boards.DeleteLane(ctx, c.Params("laneId"))
	if err != nil {
		return respondError(c, err)
	}
	bc.notify(ctx, lane.PipelineID, models.NotificationTypeLane, "Deleted a lane | "+lane.Name)
	return c.JSON(fiber.Map{"deleted": lane.ID})
}

// HandleCreateTicket appends a ticket to a lane.
func (bc *BoardController) HandleCreateTicket(c *fiber.Ctx) error {
	var req ticketRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	tags, err := bc.tags(ctx, req.TagIDs)
	if err != nil {
		return respondError(c, err)
	}
	ticket := &models.Ticket{LaneID: c.Params("laneId")}
	req.apply(ticket, tags)

	created, err := bc.boards.CreateTicket(ctx, ticket)
	if err != nil {
		return respondError(c, err)
	}
	bc.notifyLane(ctx, created.LaneID, models.NotificationTypeTicket, "Created a ticket | "+created.Name)
	return c.Status(fiber.StatusCreated).JSON(created)
}

// HandleUpdateTicket replaces the editable fields of a ticket.
func (bc *BoardController) HandleUpdateTicket(c *fiber.Ctx) error {
	var req ticketRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	tags, err := bc.tags(ctx, req.TagIDs)
	if err != nil {
		return respondError(c, err)
	}
	updated, err := bc.boards.UpdateTicket(ctx, c.Params("ticketId"), func(t *models.Ticket) {
		req.apply(t, tags)
	})
	if err != nil {
		return respondError(c, err)
	}
	bc.notifyLane(ctx, updated.LaneID, models.NotificationTypeTicket, "Updated a ticket | "+updated.Name)
	return c.JSON(updated)
}

// HandleDeleteTicket removes a ticket and closes the gap in its lane.
func (bc *BoardController) HandleDeleteTicket(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	ticket, err := bc.boards.DeleteTicket(ctx, c.Params("ticketId"))
	if err != nil {
		return respondError(c, err)
	}
	bc.notifyLane(ctx, ticket.LaneID, models.NotificationTypeTicket, "Deleted a ticket | "+ticket.Name)
	return c.JSON(fiber.Map{"deleted": ticket.ID})
}

func (bc *BoardController) tags(ctx context.Context, ids []string) ([]models.Tag, error) {
	tags, err := bc.pipelines.FindTags(ctx, ids)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %v", errUnknownTag, ids)
	}
	return tags, err
}

func (bc *BoardController) notifyLane(ctx context.Context, laneID, kind, description string) {
	lane, err := bc.pipelines.FindLane(ctx, laneID)
	if err != nil {
		log.Warnf("[Board] Activity entry skipped, lane %s: %v", laneID, err)
		return
	}
	bc.notify(ctx, lane.PipelineID, kind, description)
}

// notify writes an activity entry for the pipeline owner. Failures are logged only.
func (bc *BoardController) notify(ctx context.Context, pipelineID, kind, description string) {
	sub, err := bc.pipelines.Owner(ctx, pipelineID)
	if err != nil {
		log.Warnf("[Board] Activity entry skipped, pipeline %s: %v", pipelineID, err)
		return
	}
	if err := bc.notifications.Create(ctx, sub.AgencyID, &sub.ID, kind, description); err != nil {
		log.Warnf("[Board] Writing activity entry failed: %v", err)
	}
}
