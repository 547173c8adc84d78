package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"docshelf/internal/http/middleware"
	"docshelf/internal/service"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	Success   bool                `json:"success"`
	Message   string              `json:"message"`
	Code      string              `json:"code,omitempty"`
	Errors    map[string][]string `json:"errors,omitempty"`
	RequestID string              `json:"request_id,omitempty"`
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "INVALID_ID", "NOT_FOUND", "INTERNAL_ERROR")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorPayload{
		Message:   message,
		Code:      code,
		RequestID: middleware.RequestIDFrom(c),
	})
}

func writeValidation(c *fiber.Ctx, fields map[string][]string) error {
	return c.Status(fiber.StatusBadRequest).JSON(errorPayload{
		Message:   "Validation error",
		Code:      "VALIDATION_ERROR",
		Errors:    fields,
		RequestID: middleware.RequestIDFrom(c),
	})
}

// writeServiceError maps a service error to its HTTP response. Anything that is not
// the client's fault is logged with op and attrs and answered with a generic message.
func writeServiceError(c *fiber.Ctx, logger *slog.Logger, op string, err error, attrs ...any) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return writeValidation(c, verr.Fields)
	case errors.Is(err, service.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "Document not found")
	}

	code := "INTERNAL_ERROR"
	message := "internal server error"
	switch {
	case errors.Is(err, service.ErrBlobMissing):
		code = "BLOB_MISSING"
		message = "document file is unavailable"
	case errors.Is(err, service.ErrStorage):
		code = "STORAGE_ERROR"
	case errors.Is(err, service.ErrDatabase):
		code = "DATABASE_ERROR"
	}

	args := append([]any{"op", op, "code", code, "request_id", middleware.RequestIDFrom(c), "error", err}, attrs...)
	logger.Error("request_failed", args...)

	return writeError(c, fiber.StatusInternalServerError, code, message)
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
// maxUploadBytes is used to describe request bodies rejected by the body limit;
// those are answered as a 400 validation error on the file field.
func ErrorHandler(maxUploadBytes int64) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			msg := "request body too large"
			if maxUploadBytes > 0 {
				msg = service.FileTooLargeMessage(maxUploadBytes)
			}
			return writeValidation(c, map[string][]string{"file": {msg}})
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
