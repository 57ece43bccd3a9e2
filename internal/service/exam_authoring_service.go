package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/lifecycle"
	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/repository"
)

// ExamAuthoringService creates exam drafts. Question authoring lives elsewhere.
type ExamAuthoringService interface {
	Create(ctx context.Context, payload dto.ExamCreateRequest, actor ActivityActor) (dto.ExamResponse, error)
}

type examAuthoringService struct {
	repo      repository.ExamRepository
	validator *validator.Validate
	activity  ActivityRecorder
	clock     lifecycle.Clock
	logger    zerolog.Logger
}

// NewExamAuthoringService constructs the authoring service.
func NewExamAuthoringService(repo repository.ExamRepository, validate *validator.Validate, activity ActivityRecorder, clock lifecycle.Clock, logger zerolog.Logger) ExamAuthoringService {
	if clock == nil {
		clock = lifecycle.SystemClock()
	}
	return &examAuthoringService{
		repo:      repo,
		validator: validate,
		activity:  activity,
		clock:     clock,
		logger:    logger.With().Str("component", "exam_authoring_service").Logger(),
	}
}

func (s *examAuthoringService) Create(ctx context.Context, payload dto.ExamCreateRequest, actor ActivityActor) (dto.ExamResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ExamResponse{}, err
	}
	if !payload.EndTime.After(payload.StartTime) {
		return dto.ExamResponse{}, &lifecycle.ValidationError{Field: "end_time", Message: "end time must be after start time"}
	}

	exam := models.Exam{
		SchoolID:  payload.SchoolID,
		AuthorID:  actor.ID,
		Title:     strings.TrimSpace(payload.Title),
		Subject:   strings.TrimSpace(payload.Subject),
		Status:    models.ExamStatusDraft,
		StartTime: payload.StartTime.UTC(),
		EndTime:   payload.EndTime.UTC(),
	}

	if err := s.repo.Create(ctx, &exam); err != nil {
		return dto.ExamResponse{}, err
	}

	if s.activity != nil {
		entityID := exam.ID
		_, _ = s.activity.Record(ctx, ActivityEntry{
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
			Action:     "exam.created",
			EntityType: "exam",
			EntityID:   &entityID,
			Metadata: map[string]interface{}{
				"exam_id":    exam.ID,
				"school_id":  exam.SchoolID,
				"start_time": exam.StartTime,
				"end_time":   exam.EndTime,
			},
		})
	}

	return dto.NewExamResponse(exam, s.clock.Now()), nil
}
