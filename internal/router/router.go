package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/config"
	"github.com/noah-isme/gema-exam-api/internal/handler"
	"github.com/noah-isme/gema-exam-api/internal/middleware"
	"github.com/noah-isme/gema-exam-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	DB                    *gorm.DB
	Redis                 *redis.Client
	ExamAdminHandler      *handler.ExamAdminHandler
	ExamAuthorHandler     *handler.ExamAuthorHandler
	ExamStudentHandler    *handler.ExamStudentHandler
	ExamBoardHandler      *handler.ExamBoardHandler
	ActivityHandler       *handler.ActivityHandler
	JWTMiddleware         fiber.Handler
	IdempotencyMiddleware fiber.Handler
	RateLimitMiddleware   fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.DB, deps.Redis))
	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := orNext(deps.JWTMiddleware)

	admin := app.Group("/api/admin", jwtMiddleware, middleware.RequireRole("admin"))
	if deps.ExamAdminHandler != nil {
		adminExams := admin.Group("/exams")
		// The board's /ws route has to win over /:id.
		if deps.ExamBoardHandler != nil {
			deps.ExamBoardHandler.Register(adminExams)
		}

		mutations := adminExams.Group("", orNext(deps.RateLimitMiddleware), orNext(deps.IdempotencyMiddleware))
		deps.ExamAdminHandler.Register(mutations)
	}
	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(admin.Group("/activity"))
	}

	exams := app.Group("/api/v2/exams", jwtMiddleware, middleware.Authenticated(), orNext(deps.IdempotencyMiddleware))
	if deps.ExamAuthorHandler != nil {
		deps.ExamAuthorHandler.Register(exams)
	}
	if deps.ExamStudentHandler != nil {
		deps.ExamStudentHandler.Register(exams)
	}
}

func orNext(h fiber.Handler) fiber.Handler {
	if h == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return h
}
