package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout bounds each request with a context deadline. The handler
// keeps running in its goroutine until it notices the cancelled context;
// repositories pass that context to pgx, so an in-flight transaction is
// rolled back rather than committed late.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
					return c.JSON(http.StatusGatewayTimeout, errorBody{Error: "request exceeded the allowed time limit"})
				}
				return ctx.Err()
			}
		}
	}
}
