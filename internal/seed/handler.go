package seed

import (
	"strings"

	"kartoteka-backend/internal/apperr"
	"kartoteka-backend/internal/ledger"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
)

// POST /api/data/seed (multipart, field "file")
func SeedHandler(e *ledger.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "file is required")
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			return fiber.NewError(fiber.StatusBadRequest, "only .xlsx files can be seeded")
		}

		file, err := fileHeader.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "could not open the uploaded file")
		}
		defer file.Close()

		wb, err := excelize.OpenReader(file)
		if err != nil {
			return apperr.Validation("seed.Load", "cannot read workbook: %v", err)
		}
		defer wb.Close()

		res, err := Load(c.UserContext(), e, wb)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "result": res})
	}
}
