package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/lifecycle"
	"github.com/noah-isme/gema-exam-api/internal/middleware"
	"github.com/noah-isme/gema-exam-api/internal/service"
	"github.com/noah-isme/gema-exam-api/internal/utils"
)

// ExamAuthorHandler lets teachers draft exams and move them into approval.
type ExamAuthorHandler struct {
	authoring service.ExamAuthoringService
	actions   service.ExamActionService
	logger    zerolog.Logger
}

// NewExamAuthorHandler constructs the handler.
func NewExamAuthorHandler(authoring service.ExamAuthoringService, actions service.ExamActionService, logger zerolog.Logger) *ExamAuthorHandler {
	return &ExamAuthorHandler{
		authoring: authoring,
		actions:   actions,
		logger:    logger.With().Str("component", "exam_author_handler").Logger(),
	}
}

// Register attaches author routes. Every route requires a teacher or admin.
func (h *ExamAuthorHandler) Register(router fiber.Router) {
	author := middleware.AuthOptions{Role: middleware.AuthRoleAuthor}

	router.Post("", middleware.WithAuth(h.create, author))
	router.Post("/:id/submit", middleware.WithAuth(performExamAction(lifecycle.ActionSubmit, h.actions, h.logger), author))
	router.Post("/:id/resubmit", middleware.WithAuth(performExamAction(lifecycle.ActionResubmit, h.actions, h.logger), author))
	router.Delete("/:id", middleware.WithAuth(performExamAction(lifecycle.ActionDelete, h.actions, h.logger), author))
}

func (h *ExamAuthorHandler) create(c *fiber.Ctx) error {
	var payload dto.ExamCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	exam, err := h.authoring.Create(c.UserContext(), payload, activityActorFromContext(c))
	if err != nil {
		return writeExamError(c, h.logger, err, "failed to create exam")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "exam created", exam)
}
