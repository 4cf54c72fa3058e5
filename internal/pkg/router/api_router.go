package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/AgencyHub/app/controllers"
	"github.com/ManuelReschke/AgencyHub/internal/pkg/middleware"
	"github.com/ManuelReschke/AgencyHub/internal/pkg/ratelimit"
)

// APIConfig carries the settings of the key protected API group.
type APIConfig struct {
	APIKey string
	// LimiterStorage holds rate limit counters; nil keeps them in memory.
	LimiterStorage fiber.Storage
}

type ApiRouter struct {
	ctl Controllers
	cfg APIConfig
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api/v1", ratelimit.New(h.cfg.LimiterStorage), middleware.APIKeyAuthMiddleware(h.cfg.APIKey))
	api.Get("/ping", controllers.HandlePing)

	// agencies
	api.Post("/agencies", h.ctl.Agency.HandleCreateAgency)
	api.Get("/agencies/:agencyId", h.ctl.Agency.HandleGetAgency)
	api.Put("/agencies/:agencyId", h.ctl.Agency.HandleUpdateAgency)
	api.Get("/agencies/:agencyId/notifications", h.ctl.Agency.HandleListNotifications)
	api.Get("/agencies/:agencyId/connect-link", h.ctl.Billing.HandleAgencyConnectLink)
	api.Get("/agencies/:agencyId/subaccounts", h.ctl.Agency.HandleListSubAccounts)
	api.Post("/agencies/:agencyId/subaccounts", h.ctl.Agency.HandleCreateSubAccount)

	// sub-accounts
	api.Put("/subaccounts/:subaccountId", h.ctl.Agency.HandleUpdateSubAccount)
	api.Get("/subaccounts/:subaccountId/connect-link", h.ctl.Billing.HandleSubAccountConnectLink)
	api.Get("/subaccounts/:subaccountId/products", h.ctl.Billing.HandleSubAccountProducts)
	api.Get("/subaccounts/:subaccountId/contacts", h.ctl.SubAccount.HandleListContacts)
	api.Post("/subaccounts/:subaccountId/contacts", h.ctl.SubAccount.HandleUpsertContact)
	api.Get("/subaccounts/:subaccountId/pipelines", h.ctl.SubAccount.HandleListPipelines)
	api.Post("/subaccounts/:subaccountId/pipelines", h.ctl.SubAccount.HandleCreatePipeline)
	api.Get("/subaccounts/:subaccountId/tags", h.ctl.SubAccount.HandleListTags)
	api.Post("/subaccounts/:subaccountId/tags", h.ctl.SubAccount.HandleCreateTag)
	api.Get("/subaccounts/:subaccountId/media", h.ctl.Media.HandleList)
	api.Post("/subaccounts/:subaccountId/media", h.ctl.Media.HandleUpload)
	api.Delete("/media/:mediaId", h.ctl.Media.HandleDelete)

	// boards
	api.Get("/pipelines/:pipelineId/board", h.ctl.Board.HandleGetBoard)
	api.Get("/pipelines/:pipelineId/tickets", h.ctl.Board.HandleSearchTickets)
	api.Post("/pipelines/:pipelineId/lanes/reorder", h.ctl.Board.HandleReorderLanes)
	api.Post("/pipelines/:pipelineId/tickets/move", h.ctl.Board.HandleMoveTicket)
	api.Post("/pipelines/:pipelineId/lanes", h.ctl.Board.HandleCreateLane)
	api.Put("/lanes/:laneId", h.ctl.Board.HandleUpdateLane)
	api.Delete("/lanes/:laneId", h.ctl.Board.HandleDeleteLane)
	api.Post("/lanes/:laneId/tickets", h.ctl.Board.HandleCreateTicket)
	api.Put("/tickets/:ticketId", h.ctl.Board.HandleUpdateTicket)
	api.Delete("/tickets/:ticketId", h.ctl.Board.HandleDeleteTicket)
}

func NewApiRouter(ctl Controllers, cfg APIConfig) *ApiRouter {
	return &ApiRouter{ctl: ctl, cfg: cfg}
}
