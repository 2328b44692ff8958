package wallet

import (
	"context"
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
	api.GET("/wallets", h.ListWallets)
	api.GET("/wallets/:id", h.GetWallet)
	api.POST("/wallets/:id/policy", h.ApplyPolicy)
	api.POST("/wallets/:id/activate", h.ActivateWallet)
	api.POST("/wallets/:id/suspend", h.SuspendWallet)
}

type applyPolicyRequest struct {
	PolicyID uuid.UUID `json:"policy_id" validate:"required"`
}

func (h *Handler) ListWallets(c echo.Context) error {
	requester, err := auth.RequestPrincipal(c)
	if err != nil {
		return err
	}
	var f Filter
	if raw := c.QueryParam("managing_organization_id"); raw != "" {
		orgID, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid managing_organization_id")
		}
		f.ManagingOrganizationID = &orgID
	}
	if raw := c.QueryParam("owner_id"); raw != "" {
		ownerID, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid owner_id")
		}
		f.OwnerID = &ownerID
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), requester, f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetWallet(c echo.Context) error {
	requester, err := auth.RequestPrincipal(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	w, err := h.svc.Get(c.Request().Context(), requester, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w)
}

func (h *Handler) ApplyPolicy(c echo.Context) error {
	requester, err := auth.RequestPrincipal(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req applyPolicyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	w, err := h.svc.ApplyPolicy(c.Request().Context(), requester, id, req.PolicyID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w)
}

func (h *Handler) ActivateWallet(c echo.Context) error {
	return h.changeStatus(c, h.svc.Activate)
}

func (h *Handler) SuspendWallet(c echo.Context) error {
	return h.changeStatus(c, h.svc.Suspend)
}

func (h *Handler) changeStatus(c echo.Context, fn func(ctx context.Context, requester auth.Principal, id uuid.UUID) (*Wallet, error)) error {
	requester, err := auth.RequestPrincipal(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	w, err := fn(c.Request().Context(), requester, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w)
}
