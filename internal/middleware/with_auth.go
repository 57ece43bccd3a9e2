package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-exam-api/internal/utils"
)

// Auth role constants used by WithAuth helper.
const (
	AuthRoleAny     = "any"
	AuthRoleAdmin   = "admin"
	AuthRoleAuthor  = "author"
	AuthRoleStudent = "student"
)

// AuthOptions configures the WithAuth helper.
type AuthOptions struct {
	Role        string
	RequireUser bool
}

// WithAuth wraps a handler with basic authentication/authorization guards.
// Authors are teachers or school administrators; admin routes accept only
// administrators.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	role := strings.ToLower(strings.TrimSpace(opts.Role))
	if role == "" {
		role = AuthRoleAny
	}

	requireUser := opts.RequireUser
	if !requireUser && role != AuthRoleAny {
		requireUser = true
	}

	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id")
		if requireUser && userID == nil {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}

		if role == AuthRoleAny {
			return handler(c)
		}

		currentRole := normalizeRoleValue(c.Locals("user_role"))
		if !roleSatisfies(currentRole, role) {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", fiber.Map{"required_role": role})
		}

		return handler(c)
	}
}

// Authenticated is WithAuth in middleware form: it admits any signed-in user.
func Authenticated() fiber.Handler {
	return WithAuth(func(c *fiber.Ctx) error {
		return c.Next()
	}, AuthOptions{Role: AuthRoleAny, RequireUser: true})
}
