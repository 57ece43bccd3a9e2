package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/lifecycle"
	"github.com/noah-isme/gema-exam-api/internal/service"
	"github.com/noah-isme/gema-exam-api/internal/utils"
)

// MessageStaleExam is shown whenever a transition's precondition no longer
// holds, whether the operator's view was stale or another operator won a race.
const MessageStaleExam = "this exam's state changed, please refresh"

func writeExamError(c *fiber.Ctx, logger zerolog.Logger, err error, fallback string) error {
	var (
		validationErr    *lifecycle.ValidationError
		validationErrors validator.ValidationErrors
		guardErr         *lifecycle.GuardError
	)

	switch {
	case errors.Is(err, service.ErrExamNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "exam not found")
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		requestLogger(logger, c).Info().Err(err).Msg("rejected stale exam transition")
		return utils.Fail(c, fiber.StatusConflict, MessageStaleExam, fiber.Map{"reason": transitionReason(err)})
	case errors.As(err, &validationErr):
		return utils.Fail(c, fiber.StatusBadRequest, validationErr.Message, fiber.Map{"field": validationErr.Field})
	case errors.As(err, &validationErrors):
		details := fiber.Map{}
		if len(validationErrors) > 0 {
			details["field"] = strings.ToLower(validationErrors[0].Field())
		}
		return utils.Fail(c, fiber.StatusBadRequest, validationErrors.Error(), details)
	case errors.As(err, &guardErr):
		return utils.Fail(c, fiber.StatusUnprocessableEntity, guardErr.Reason, fiber.Map{"action": guardErr.Action})
	case errors.Is(err, service.ErrExamUnavailable):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	default:
		requestLogger(logger, c).Error().Err(err).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}

func transitionReason(err error) string {
	var transitionErr *lifecycle.TransitionError
	if errors.As(err, &transitionErr) {
		return transitionErr.Reason
	}
	return ""
}
