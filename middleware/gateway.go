// internal/middleware/gateway_auth.go
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// GatewayAuthMiddleware validates the Bearer token from the Gateway. Every
// route — commands and event webhooks alike — must come through the gateway.
func GatewayAuthMiddleware(expectedToken string, log *zap.SugaredLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			log.Warnf("🚫 [GATEWAY_AUTH] Missing Authorization header for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "gateway authentication token missing",
			})
		}

		// Parse "Bearer <token>"
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			// no "Bearer " prefix — try raw value (e.g., if Gateway sends raw token)
			token = authHeader
		}

		if token != expectedToken {
			log.Warnf("❌ [GATEWAY_AUTH] Invalid token for %s (got prefix: %.10s...)", c.Path(), token)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid gateway authentication token",
			})
		}

		return c.Next()
	}
}

// AdminContextMiddleware extracts the acting admin's identity and permission
// flags set by the Gateway. Admin XP and configuration routes refuse requests
// without the manage-roles permission.
func AdminContextMiddleware(log *zap.SugaredLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		adminID := c.Get("X-User-ID")
		canManageRoles := strings.EqualFold(c.Get("X-Can-Manage-Roles"), "true")

		if adminID == "" {
			log.Warnf("❌ [ADMIN_CTX] X-User-ID required but missing on admin route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID — request must come through gateway with auth context",
			})
		}
		if !canManageRoles {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "you don't have permission to use this command",
			})
		}

		c.Locals("admin_id", adminID)
		return c.Next()
	}
}
