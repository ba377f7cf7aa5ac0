package handler

import (
	"github.com/gofiber/fiber/v2"

	"collab-backend/internal/apperr"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Reason string `json:"reason,omitempty"`
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindConflict:
		return fiber.StatusConflict
	case apperr.KindInvalid:
		return fiber.StatusBadRequest
	case apperr.KindServiceUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func writeError(c *fiber.Ctx, err error) error {
	kind := apperr.KindOf(err)
	return c.Status(statusFor(kind)).JSON(ErrorResponse{
		Error:  apperr.MessageOf(err),
		Code:   string(kind),
		Reason: string(apperr.ReasonOf(err)),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error: msg,
		Code:  string(apperr.KindInvalid),
	})
}
