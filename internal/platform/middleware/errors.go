package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hypersenta/serenity/internal/platform/apperr"
)

type errorBody struct {
	Error      string   `json:"error"`
	Field      string   `json:"field,omitempty"`
	Violations []string `json:"violations,omitempty"`
}

// ErrorHandler renders domain errors from the apperr taxonomy and echo's own
// HTTP errors as {"error": ...} JSON.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := render(err)
		var cfg *apperr.ConfigurationError
		if errors.As(err, &cfg) || status == http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Msg("request failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}

func render(err error) (int, errorBody) {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		msg, ok := httpErr.Message.(string)
		if !ok {
			msg = http.StatusText(httpErr.Code)
		}
		return httpErr.Code, errorBody{Error: msg}
	}

	status := apperr.HTTPStatus(err)
	body := errorBody{Error: err.Error()}

	var (
		verr     *apperr.ValidationError
		conflict *apperr.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		body.Field = verr.Field
		body.Error = verr.Error()
	case errors.As(err, &conflict):
		body.Violations = conflict.Violations
		body.Error = conflict.Error()
	case status == http.StatusInternalServerError:
		body.Error = "internal server error"
	}
	return status, body
}

func statusOf(err error) int {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}
	return apperr.HTTPStatus(err)
}
