package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AgencyHub/app/models"
	"github.com/ManuelReschke/AgencyHub/app/repository"
)

// SubAccountController serves the contacts, pipelines and tags of a sub-account.
type SubAccountController struct {
	agencies      repository.AgencyRepository
	contacts      repository.ContactRepository
	pipelines     repository.PipelineRepository
	notifications repository.NotificationRepository
}

func NewSubAccountController(repos *repository.Repositories) *SubAccountController {
	return &SubAccountController{
		agencies:      repos.Agency,
		contacts:      repos.Contact,
		pipelines:     repos.Pipeline,
		notifications: repos.Notification,
	}
}

type contactRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type pipelineRequest struct {
	Name string `json:"name"`
}

type tagRequest struct {
	Name  string `json:"name"`
	Color string `json:"color" validate:"max=32"`
}

// HandleListContacts returns the contacts of a sub-account.
func (sc *SubAccountController) HandleListContacts(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	sub, err := sc.agencies.GetSubAccountByID(ctx, c.Params("subaccountId"))
	if err != nil {
		return respondError(c, err)
	}
	contacts, err := sc.contacts.ListBySubAccount(ctx, sub.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"contacts": contacts})
}

// HandleUpsertContact creates a contact, or updates it when the body names an existing id.
func (sc *SubAccountController) HandleUpsertContact(c *fiber.Ctx) error {
	var req contactRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	contact := &models.Contact{ID: req.ID, Name: req.Name, Email: req.Email}

	ctx, cancel := requestContext(c)
	defer cancel()

	sub, err := sc.agencies.GetSubAccountByID(ctx, c.Params("subaccountId"))
	if err != nil {
		return respondError(c, err)
	}
	contact.SubAccountID = sub.ID
	if err := validate.Struct(contact); err != nil {
		return respondError(c, err)
	}
	if err := sc.contacts.Upsert(ctx, contact); err != nil {
		return respondError(c, err)
	}
	sc.notify(ctx, sub, models.NotificationTypeContact, "Updated a contact | "+contact.Name)
	return c.JSON(contact)
}

// HandleListPipelines returns the pipelines of a sub-account.
func (sc *SubAccountController) HandleListPipelines(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	sub, err := sc.agencies.GetSubAccountByID(ctx, c.Params("subaccountId"))
	if err != nil {
		return respondError(c, err)
	}
	pipelines, err := sc.pipelines.ListBySubAccount(ctx, sub.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"pipelines": pipelines})
}

// HandleCreatePipeline adds an empty pipeline to a sub-account.
func (sc *SubAccountController) HandleCreatePipeline(c *fiber.Ctx) error {
	var req pipelineRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	sub, err := sc.agencies.GetSubAccountByID(ctx, c.Params("subaccountId"))
	if err != nil {
		return respondError(c, err)
	}
	pipeline := &models.Pipeline{Name: req.Name, SubAccountID: sub.ID}
	if err := validate.Struct(pipeline); err != nil {
		return respondError(c, err)
	}
	if err := sc.pipelines.Create(ctx, pipeline); err != nil {
		return respondError(c, err)
	}
	sc.notify(ctx, sub, models.NotificationTypePipeline, "Created a pipeline | "+pipeline.Name)
	return c.Status(fiber.StatusCreated).JSON(pipeline)
}

// HandleListTags returns the tags of a sub-account.
func (sc *SubAccountController) HandleListTags(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	sub, err := sc.agencies.GetSubAccountByID(ctx, c.Params("subaccountId"))
	if err != nil {
		return respondError(c, err)
	}
	tags, err := sc.pipelines.ListTags(ctx, sub.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"tags": tags})
}

// HandleCreateTag adds a tag that tickets of the sub-account can carry.
func (sc *SubAccountController) HandleCreateTag(c *fiber.Ctx) error {
	var req tagRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	tag := &models.Tag{Name: req.Name, Color: req.Color, SubAccountID: c.Params("subaccountId")}
	if err := validate.Struct(tag); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := sc.pipelines.CreateTag(ctx, tag); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(tag)
}

func (sc *SubAccountController) notify(ctx context.Context, sub *models.SubAccount, kind, description string) {
	if err := sc.notifications.Create(ctx, sub.AgencyID, &sub.ID, kind, description); err != nil {
		log.Warnf("[SubAccount] Writing activity entry failed: %v", err)
	}
}
