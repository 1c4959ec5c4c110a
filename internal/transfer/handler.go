package transfer

import (
	"fmt"
	"time"

	"kartoteka-backend/internal/apperr"

	"github.com/gofiber/fiber/v2"
)

// GET /api/data/export
func ExportHandler(codec *Codec) fiber.Handler {
	return func(c *fiber.Ctx) error {
		doc, err := codec.Export(c.UserContext())
		if err != nil {
			return err
		}
		name := fmt.Sprintf("kartoteka_full_export_%s.json", doc.ExportedAt.Format(time.DateOnly))
		c.Attachment(name)
		return c.JSON(doc)
	}
}

// POST /api/data/import (multipart, field "file")
func ImportHandler(codec *Codec) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "file is required")
		}
		file, err := fileHeader.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "could not open the uploaded file")
		}
		defer file.Close()

		doc, err := Decode(file)
		if err != nil {
			return apperr.Validation("transfer.Import", "%v", err)
		}
		counts, err := codec.Import(c.UserContext(), doc)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "counts": counts})
	}
}
