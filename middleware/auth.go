// middleware/auth.go
package middleware

import (
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	LocalUserID    = "user_id"
	LocalUserRoles = "user_roles"
)

// UserContextMiddleware extracts user identity and roles set by Gateway.
// Routes under /s/ require an X-User-ID.
func UserContextMiddleware(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")

		path := c.Path()
		if strings.HasPrefix(path, "/s/") && userID == "" {
			log.Warn("❌ [USER_CTX] X-User-ID required but missing on secured route", zap.String("path", path))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID, request must come through gateway with auth context",
			})
		}

		var roles []string
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, strings.ToLower(r))
			}
		}

		c.Locals(LocalUserID, userID)
		c.Locals(LocalUserRoles, roles)

		log.Debug("👤 [USER_CTX]",
			zap.String("user_id", userID),
			zap.Strings("roles", roles),
			zap.String("path", path))

		return c.Next()
	}
}

// RequireRole rejects requests whose Gateway roles do not include role.
// It must run after UserContextMiddleware.
func RequireRole(role string) fiber.Handler {
	role = strings.ToLower(role)
	return func(c *fiber.Ctx) error {
		roles, _ := c.Locals(LocalUserRoles).([]string)
		if !slices.Contains(roles, role) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "insufficient role",
			})
		}
		return c.Next()
	}
}

// ActorID is the gateway user performing the request.
func ActorID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}
