package handlers

import (
	"errors"
	"net/http"

	"eventpass/internal/status"

	"github.com/pocketbase/pocketbase/apis"
)

// apiError maps the service error taxonomy onto PocketBase API errors. The
// wrapped detail stays in the server log only.
func apiError(err error) error {
	msg := err.Error()
	switch {
	case errors.Is(err, status.ErrValidation):
		return apis.NewBadRequestError(msg, nil)
	case errors.Is(err, status.ErrUnauthorized):
		return apis.NewForbiddenError(msg, nil)
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError(msg, nil)
	case errors.Is(err, status.ErrConflict), errors.Is(err, status.ErrTicketExists):
		return apis.NewApiError(http.StatusConflict, msg, nil)
	case errors.Is(err, status.ErrExternalService):
		return apis.NewApiError(http.StatusBadGateway, "upstream service unavailable", nil)
	case errors.Is(err, status.ErrNotConfigured):
		return apis.NewApiError(http.StatusServiceUnavailable, "feature not configured", nil)
	default:
		return apis.NewInternalServerError("something went wrong", nil)
	}
}
