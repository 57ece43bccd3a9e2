package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/lifecycle"
	"github.com/noah-isme/gema-exam-api/internal/service"
	"github.com/noah-isme/gema-exam-api/internal/utils"
)

// ExamAdminHandler serves the school administrator's exam console.
type ExamAdminHandler struct {
	actions   service.ExamActionService
	lifecycle service.ExamLifecycleService
	logger    zerolog.Logger
}

// NewExamAdminHandler constructs the handler.
func NewExamAdminHandler(actions service.ExamActionService, lifecycleService service.ExamLifecycleService, logger zerolog.Logger) *ExamAdminHandler {
	return &ExamAdminHandler{
		actions:   actions,
		lifecycle: lifecycleService,
		logger:    logger.With().Str("component", "exam_admin_handler").Logger(),
	}
}

// Register attaches admin exam routes to the router group.
func (h *ExamAdminHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Get("/:id/history", h.history)
	router.Post("/:id/approve", h.perform(lifecycle.ActionApprove))
	router.Post("/:id/reject", h.perform(lifecycle.ActionReject))
	router.Post("/:id/publish", h.perform(lifecycle.ActionPublish))
	router.Post("/:id/cancel", h.perform(lifecycle.ActionCancel))
	router.Post("/:id/manual-control", h.perform(lifecycle.ActionToggleManualControl))
	router.Post("/:id/live", h.perform(lifecycle.ActionMakeLive))
	router.Post("/:id/complete", h.perform(lifecycle.ActionMarkCompleted))
	router.Delete("/:id", h.perform(lifecycle.ActionDelete))
}

func (h *ExamAdminHandler) list(c *fiber.Ctx) error {
	page, pageSize, err := pagination(c, 25, 100)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	schoolID, err := parseQueryInt(c, "school_id")
	if err != nil || schoolID < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid school id")
	}
	if schoolID == 0 {
		schoolID = int(schoolIDFromContext(c))
	}

	result, err := h.actions.List(c.UserContext(), dto.ExamListRequest{
		Page:     page,
		PageSize: pageSize,
		SchoolID: uint(schoolID),
		Status:   c.Query("status"),
		Search:   c.Query("search"),
		Sort:     c.Query("sort"),
	})
	if err != nil {
		return writeExamError(c, h.logger, err, "failed to list exams")
	}

	return utils.OK(c, result.Items, "exams retrieved", result.Pagination)
}

func (h *ExamAdminHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	exam, err := h.actions.Get(c.UserContext(), id)
	if err != nil {
		return writeExamError(c, h.logger, err, "failed to fetch exam")
	}

	return utils.SendSuccess(c, "exam retrieved", exam)
}

func (h *ExamAdminHandler) history(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	entries, err := h.lifecycle.History(c.UserContext(), id)
	if err != nil {
		return writeExamError(c, h.logger, err, "failed to fetch exam history")
	}

	return utils.SendSuccess(c, "exam history", entries)
}

func (h *ExamAdminHandler) perform(action lifecycle.Action) fiber.Handler {
	return performExamAction(action, h.actions, h.logger)
}

// performExamAction binds one route to one operator action. The body carries
// the confirmation and any action inputs; DELETE also accepts ?confirmed=true.
func performExamAction(action lifecycle.Action, actions service.ExamActionService, logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseUintParam(c, "id")
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
		}

		var payload dto.ExamActionRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&payload); err != nil {
				return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
			}
		}
		if c.Query("confirmed") == "true" {
			payload.Confirmed = true
		}

		payload.Action = action
		switch {
		case action == lifecycle.ActionApprove && payload.PublishNow:
			payload.Action = lifecycle.ActionApproveAndPublish
		case action == lifecycle.ActionToggleManualControl && payload.Enabled != nil:
			payload.Action = lifecycle.ActionDisableManualControl
			if *payload.Enabled {
				payload.Action = lifecycle.ActionEnableManualControl
			}
		}

		result, err := actions.Perform(c.UserContext(), id, payload, activityActorFromContext(c))
		if err != nil {
			return writeExamError(c, logger, err, "failed to "+string(payload.Action)+" exam")
		}

		if result.Deleted {
			return utils.SendSuccess(c, "exam deleted", fiber.Map{"id": id, "action": result.Action, "deleted": true})
		}
		return utils.SendSuccess(c, "exam updated", result)
	}
}
