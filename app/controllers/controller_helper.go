package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PayLedger/internal/pkg/billing"
)

// errorJSON writes the API error shape shared by every handler.
func errorJSON(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

// billingError maps billing error kinds onto HTTP statuses. Processor and internal
// failures are logged and answered without their detail.
func billingError(c *fiber.Ctx, op string, err error) error {
	switch {
	case errors.Is(err, billing.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return errorJSON(c, fiber.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, billing.ErrConflict), errors.Is(err, gorm.ErrDuplicatedKey):
		return errorJSON(c, fiber.StatusConflict, "conflict", err.Error())
	case errors.Is(err, billing.ErrValidation),
		errors.Is(err, billing.ErrUnsupportedInterval),
		errors.Is(err, billing.ErrInvalidState):
		return errorJSON(c, fiber.StatusUnprocessableEntity, "unprocessable_entity", err.Error())
	case errors.Is(err, billing.ErrExternalService), errors.Is(err, billing.ErrResourceMissing):
		log.Errorf("[Billing] %s: %v", op, err)
		return errorJSON(c, fiber.StatusBadGateway, "payment_processor_error", "Payment processor request failed")
	default:
		log.Errorf("[Billing] %s: %v", op, err)
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Internal server error")
	}
}

// idParam reads a positive numeric route parameter.
func idParam(c *fiber.Ctx, name string) (uint, bool) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, false
	}
	return uint(id), true
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
