package organization

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hypersenta/serenity/internal/platform/auth"
	"github.com/hypersenta/serenity/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/organizations", h.ProvisionOrganization)
	api.GET("/organizations", h.ListOrganizations)
	api.GET("/organizations/:id", h.GetOrganization)
	api.PUT("/organizations/:id", h.UpdateOrganization)
}

func (h *Handler) ProvisionOrganization(c echo.Context) error {
	requester, err := auth.RequestPrincipal(c)
	if err != nil {
		return err
	}
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	in.Trim()
	if err := c.Validate(&in); err != nil {
		return err
	}
	o, err := h.svc.Provision(c.Request().Context(), requester, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) GetOrganization(c echo.Context) error {
	requester, err := auth.RequestPrincipal(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	o, err := h.svc.Get(c.Request().Context(), requester, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) ListOrganizations(c echo.Context) error {
	requester, err := auth.RequestPrincipal(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), requester, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateOrganization(c echo.Context) error {
	requester, err := auth.RequestPrincipal(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	in.Trim()
	if err := c.Validate(&in); err != nil {
		return err
	}
	o, err := h.svc.Update(c.Request().Context(), requester, id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}
