package apperr

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
)

// HTTPStatus maps an error kind to a response code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return fiber.StatusBadRequest
	case KindNotFound:
		return fiber.StatusNotFound
	case KindInsufficientStock:
		return fiber.StatusUnprocessableEntity
	case KindConflict:
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}

// FiberErrorHandler renders every error as {"error": message}. Storage and
// unknown errors get a generic message; their details were logged already.
func FiberErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}

	var ae *Error
	if errors.As(err, &ae) && ae.Kind != KindStorage {
		msg := ae.Message
		if msg == "" {
			msg = ae.Error()
		}
		return c.Status(HTTPStatus(err)).JSON(fiber.Map{"error": msg, "kind": ae.Kind})
	}

	if ae == nil {
		log.Printf("[ERROR] %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}
