package middleware

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-exam-api/internal/utils"
)

// RequireRole admits requests whose token role is one of roles. The pseudo
// role AuthRoleAuthor admits teachers and administrators.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if normalized := normalizeRoleValue(role); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	required := make([]string, 0, len(allowed))
	for role := range allowed {
		required = append(required, role)
	}
	sort.Strings(required)

	return func(c *fiber.Ctx) error {
		current := normalizeRoleValue(c.Locals("user_role"))
		for role := range allowed {
			if roleSatisfies(current, role) {
				return c.Next()
			}
		}
		return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", fiber.Map{"required_roles": required})
	}
}

func roleSatisfies(current, required string) bool {
	if current == "" {
		return false
	}
	switch required {
	case AuthRoleAny:
		return true
	case AuthRoleAuthor:
		return current == "teacher" || current == AuthRoleAdmin
	default:
		return current == required
	}
}

func normalizeRoleValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(v.String()))
	default:
		return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", value)))
	}
}
