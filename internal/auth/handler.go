package auth

import "github.com/gofiber/fiber/v2"

// GET /api/auth/me
func MeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		name, _ := c.Locals(CtxUserNameKey).(string)
		role, _ := c.Locals(CtxUserRoleKey).(Role)
		return c.JSON(fiber.Map{
			"name": name,
			"role": role,
		})
	}
}
