package snapshot

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type CreateBackupRequest struct {
	Description string `json:"description"`
}

type RestoreBackupRequest struct {
	BackupID string `json:"backupId"`
}

// GET /api/backups
func ListBackupsHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		backups, err := m.ListSnapshots(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(backups)
	}
}

// POST /api/backups
func CreateBackupHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateBackupRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
			}
		}
		info, err := m.CreateSnapshot(c.UserContext(), body.Description)
		if err != nil {
			return err
		}
		if _, err := m.EnforceRetention(c.UserContext(), m.Retention()); err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(info)
	}
}

// POST /api/backups/restore
func RestoreBackupHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RestoreBackupRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if strings.TrimSpace(body.BackupID) == "" {
			return fiber.NewError(fiber.StatusBadRequest, "backupId is required")
		}
		res, err := m.RestoreSnapshot(c.UserContext(), body.BackupID)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "restored": res})
	}
}

// DELETE /api/backups/:id
func DeleteBackupHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := m.DeleteSnapshot(c.UserContext(), c.Params("id")); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true})
	}
}
