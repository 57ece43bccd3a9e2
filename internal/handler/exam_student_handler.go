package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/service"
	"github.com/noah-isme/gema-exam-api/internal/utils"
)

// ExamStudentHandler answers availability checks and starts attempts.
type ExamStudentHandler struct {
	availability service.ExamAvailabilityService
	logger       zerolog.Logger
}

// NewExamStudentHandler constructs the handler.
func NewExamStudentHandler(availability service.ExamAvailabilityService, logger zerolog.Logger) *ExamStudentHandler {
	return &ExamStudentHandler{
		availability: availability,
		logger:       logger.With().Str("component", "exam_student_handler").Logger(),
	}
}

// Register attaches student routes to the router group.
func (h *ExamStudentHandler) Register(router fiber.Router) {
	router.Get("/:id/availability", h.availabilityCheck)
	router.Post("/:id/attempts", h.startAttempt)
}

func (h *ExamStudentHandler) availabilityCheck(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	result, err := h.availability.Check(c.UserContext(), id)
	if err != nil {
		return writeExamError(c, h.logger, err, "failed to check exam availability")
	}

	return utils.SendSuccess(c, "exam availability", result)
}

func (h *ExamStudentHandler) startAttempt(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	attempt, err := h.availability.StartAttempt(c.UserContext(), id, userIDFromContext(c))
	if err != nil {
		return writeExamError(c, h.logger, err, "failed to start exam attempt")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "exam attempt started", attempt)
}
