package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/manifestmap/internal/adapters/upstream"
	"github.com/samirrijal/manifestmap/internal/core/domain"
	"github.com/samirrijal/manifestmap/internal/core/usecases"
	"github.com/samirrijal/manifestmap/internal/mapsync"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, not_found, internal_error, ...
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, 400, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, 404, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, 500, "internal_error", msg)
}

// errConflict returns a 409 error.
func errConflict(c *fiber.Ctx, msg string) error {
	return newError(c, 409, "conflict", msg)
}

// errUpstream returns a 502 error.
func errUpstream(c *fiber.Ctx, msg string) error {
	return newError(c, 502, "upstream_error", msg)
}

// fromError maps a service error onto a response.
func fromError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, usecases.ErrSessionNotFound),
		errors.Is(err, usecases.ErrSourceNotFound),
		errors.Is(err, domain.ErrNotFound):
		return errNotFound(c, err.Error())
	case errors.Is(err, usecases.ErrNoVehicle),
		errors.Is(err, usecases.ErrNoManifest):
		return errBadRequest(c, err.Error())
	case errors.Is(err, mapsync.ErrAlreadyMounted):
		return errConflict(c, err.Error())
	}
	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		return errUpstream(c, upErr.Error())
	}
	LoggerFromCtx(c.UserContext()).Error("request failed", "path", c.Path(), "error", err)
	return errInternal(c, "internal error")
}
