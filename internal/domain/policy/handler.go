package policy

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
	api.POST("/policies", h.CreatePolicy)
	api.GET("/policies", h.ListPolicies)
	api.GET("/policies/:id", h.GetPolicy)
	api.PUT("/policies/:id", h.UpdatePolicy)
	api.DELETE("/policies/:id", h.DeletePolicy)
}

func (h *Handler) CreatePolicy(c echo.Context) error {
	requester, err := auth.RequestPrincipal(c)
	if err != nil {
		return err
	}
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&in); err != nil {
		return err
	}
	p, err := h.svc.Create(c.Request().Context(), requester, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPolicy(c echo.Context) error {
	requester, err := auth.RequestPrincipal(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.Get(c.Request().Context(), requester, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPolicies(c echo.Context) error {
	requester, err := auth.RequestPrincipal(c)
	if err != nil {
		return err
	}
	orgID, err := uuid.Parse(c.QueryParam("managing_organization_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "managing_organization_id is required")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByOrganization(c.Request().Context(), requester, orgID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdatePolicy(c echo.Context) error {
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
	if err := c.Validate(&in); err != nil {
		return err
	}
	p, err := h.svc.Update(c.Request().Context(), requester, id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePolicy(c echo.Context) error {
	requester, err := auth.RequestPrincipal(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), requester, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
