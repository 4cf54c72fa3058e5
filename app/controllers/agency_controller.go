package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AgencyHub/app/models"
	"github.com/ManuelReschke/AgencyHub/app/repository"
	"github.com/ManuelReschke/AgencyHub/internal/pkg/billing"
)

const (
	maxNotificationLimit = 200
	defaultAgencyGoal    = 5
)

// AgencyController serves agencies, their sub-accounts, billing state and activity log.
type AgencyController struct {
	agencies      repository.AgencyRepository
	notifications repository.NotificationRepository
	billing       *billing.Service
}

func NewAgencyController(repos *repository.Repositories, billingSvc *billing.Service) *AgencyController {
	return &AgencyController{
		agencies:      repos.Agency,
		notifications: repos.Notification,
		billing:       billingSvc,
	}
}

type agencyRequest struct {
	Name         string `json:"name"`
	CompanyEmail string `json:"companyEmail"`
	CompanyPhone string `json:"companyPhone"`
	WhiteLabel   bool   `json:"whiteLabel"`
	Address      string `json:"address"`
	City         string `json:"city"`
	ZipCode      string `json:"zipCode"`
	State        string `json:"state"`
	Country      string `json:"country"`
	AgencyLogo   string `json:"agencyLogo"`
	Goal         *int   `json:"goal"`
}

func (r agencyRequest) apply(a *models.Agency) {
	a.Name = r.Name
	a.CompanyEmail = r.CompanyEmail
	a.CompanyPhone = r.CompanyPhone
	a.WhiteLabel = r.WhiteLabel
	a.Address = r.Address
	a.City = r.City
	a.ZipCode = r.ZipCode
	a.State = r.State
	a.Country = r.Country
	a.AgencyLogo = r.AgencyLogo
	if r.Goal != nil {
		a.Goal = *r.Goal
	}
}

type subAccountRequest struct {
	Name           string `json:"name"`
	CompanyEmail   string `json:"companyEmail"`
	CompanyPhone   string `json:"companyPhone"`
	Address        string `json:"address"`
	City           string `json:"city"`
	ZipCode        string `json:"zipCode"`
	State          string `json:"state"`
	Country        string `json:"country"`
	SubAccountLogo string `json:"subAccountLogo"`
}

func (r subAccountRequest) apply(s *models.SubAccount) {
	s.Name = r.Name
	s.CompanyEmail = r.CompanyEmail
	s.CompanyPhone = r.CompanyPhone
	s.Address = r.Address
	s.City = r.City
	s.ZipCode = r.ZipCode
	s.State = r.State
	s.Country = r.Country
	s.SubAccountLogo = r.SubAccountLogo
}

// HandleGetAgency returns the agency with its cached subscription.
func (ac *AgencyController) HandleGetAgency(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	agency, err := ac.agencies.GetByID(ctx, c.Params("agencyId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"agency":             agency,
		"subscriptionActive": agency.HasActiveSubscription(),
	})
}

// HandleCreateAgency registers an agency together with its billing customer.
func (ac *AgencyController) HandleCreateAgency(c *fiber.Ctx) error {
	var req agencyRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	agency := &models.Agency{Goal: defaultAgencyGoal}
	req.apply(agency)
	if err := validate.Struct(agency); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	customerID, err := ac.billing.CreateAgencyCustomer(ctx, agency)
	if err != nil {
		return respondError(c, err)
	}
	agency.CustomerID = customerID
	if err := ac.agencies.Create(ctx, agency); err != nil {
		return respondError(c, err)
	}
	log.Infof("[Agency] Agency %s created with customer %s", agency.ID, customerID)
	return c.Status(fiber.StatusCreated).JSON(agency)
}

// HandleUpdateAgency replaces the company details of an agency. An omitted
// goal keeps the stored one.
func (ac *AgencyController) HandleUpdateAgency(c *fiber.Ctx) error {
	var req agencyRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	agency, err := ac.agencies.GetByID(ctx, c.Params("agencyId"))
	if err != nil {
		return respondError(c, err)
	}
	req.apply(agency)
	if err := validate.Struct(agency); err != nil {
		return respondError(c, err)
	}
	if err := ac.agencies.UpdateDetails(ctx, agency); err != nil {
		return respondError(c, err)
	}
	return c.JSON(agency)
}

// HandleListSubAccounts returns the sub-accounts of an agency.
func (ac *AgencyController) HandleListSubAccounts(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	agencyID := c.Params("agencyId")
	if _, err := ac.agencies.GetByID(ctx, agencyID); err != nil {
		return respondError(c, err)
	}
	subs, err := ac.agencies.ListSubAccounts(ctx, agencyID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"subAccounts": subs})
}

// HandleCreateSubAccount adds a sub-account to an agency.
func (ac *AgencyController) HandleCreateSubAccount(c *fiber.Ctx) error {
	var req subAccountRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	sub := &models.SubAccount{AgencyID: c.Params("agencyId")}
	req.apply(sub)
	if err := validate.Struct(sub); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := ac.agencies.CreateSubAccount(ctx, sub); err != nil {
		return respondError(c, err)
	}
	ac.notify(ctx, sub, "Created sub account | "+sub.Name)
	return c.Status(fiber.StatusCreated).JSON(sub)
}

// HandleUpdateSubAccount replaces the company details of a sub-account.
func (ac *AgencyController) HandleUpdateSubAccount(c *fiber.Ctx) error {
	var req subAccountRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	sub, err := ac.agencies.GetSubAccountByID(ctx, c.Params("subaccountId"))
	if err != nil {
		return respondError(c, err)
	}
	req.apply(sub)
	if err := validate.Struct(sub); err != nil {
		return respondError(c, err)
	}
	if err := ac.agencies.UpdateSubAccountDetails(ctx, sub); err != nil {
		return respondError(c, err)
	}
	ac.notify(ctx, sub, "Updated sub account | "+sub.Name)
	return c.JSON(sub)
}

// HandleListNotifications returns the newest activity entries, ?limit= caps the count.
func (ac *AgencyController) HandleListNotifications(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	agencyID := c.Params("agencyId")
	if _, err := ac.agencies.GetByID(ctx, agencyID); err != nil {
		return respondError(c, err)
	}

	limit := c.QueryInt("limit", 50)
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	notifications, err := ac.notifications.ListByAgency(ctx, agencyID, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"notifications": notifications})
}

func (ac *AgencyController) notify(ctx context.Context, sub *models.SubAccount, description string) {
	if err := ac.notifications.Create(ctx, sub.AgencyID, &sub.ID, models.NotificationTypeSubAccount, description); err != nil {
		log.Warnf("[Agency] Writing activity entry failed: %v", err)
	}
}
