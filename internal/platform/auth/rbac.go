package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequirePrincipal rejects requests that reached a handler without an
// authenticated caller.
func RequirePrincipal() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := PrincipalFromContext(c.Request().Context()); !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			return next(c)
		}
	}
}
