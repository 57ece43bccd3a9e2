package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/lifecycle"
	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/repository"
)

// ExamActionService is the operator-facing surface. Each confirmed request
// maps to exactly one lifecycle call; the response is always re-resolved
// from the record the lifecycle service returned.
type ExamActionService interface {
	Perform(ctx context.Context, id uint, req dto.ExamActionRequest, actor ActivityActor) (dto.ExamActionResponse, error)
	Get(ctx context.Context, id uint) (dto.ExamResponse, error)
	List(ctx context.Context, req dto.ExamListRequest) (dto.ExamListResponse, error)
}

type examActionService struct {
	lifecycle ExamLifecycleService
	repo      repository.ExamRepository
	validator *validator.Validate
	clock     lifecycle.Clock
	logger    zerolog.Logger
}

// NewExamActionService constructs the action surface.
func NewExamActionService(lifecycleService ExamLifecycleService, repo repository.ExamRepository, validate *validator.Validate, clock lifecycle.Clock, logger zerolog.Logger) ExamActionService {
	if clock == nil {
		clock = lifecycle.SystemClock()
	}
	return &examActionService{
		lifecycle: lifecycleService,
		repo:      repo,
		validator: validate,
		clock:     clock,
		logger:    logger.With().Str("component", "exam_action_service").Logger(),
	}
}

func (s *examActionService) Perform(ctx context.Context, id uint, req dto.ExamActionRequest, actor ActivityActor) (dto.ExamActionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ExamActionResponse{}, err
	}
	if !req.Confirmed {
		return dto.ExamActionResponse{}, &lifecycle.ValidationError{Field: "confirmed", Message: "the action must be confirmed"}
	}

	action := req.Action
	var (
		exam models.Exam
		err  error
	)

	switch action {
	case lifecycle.ActionApprove:
		exam, err = s.lifecycle.Approve(ctx, id, actor, false)
	case lifecycle.ActionApproveAndPublish:
		exam, err = s.lifecycle.Approve(ctx, id, actor, true)
	case lifecycle.ActionReject:
		if strings.TrimSpace(req.Reason) == "" {
			return dto.ExamActionResponse{}, &lifecycle.ValidationError{Field: "reason", Message: "a rejection reason is required"}
		}
		exam, err = s.lifecycle.Reject(ctx, id, actor, req.Reason)
	case lifecycle.ActionSubmit:
		exam, err = s.lifecycle.Submit(ctx, id, actor)
	case lifecycle.ActionResubmit:
		exam, err = s.lifecycle.Resubmit(ctx, id, actor)
	case lifecycle.ActionPublish:
		exam, err = s.lifecycle.Publish(ctx, id, actor)
	case lifecycle.ActionCancel:
		exam, err = s.lifecycle.Cancel(ctx, id, actor, req.Reason)
	case lifecycle.ActionToggleManualControl:
		action, exam, err = s.toggleManualControl(ctx, id, actor)
	case lifecycle.ActionEnableManualControl:
		exam, err = s.lifecycle.EnableManualControl(ctx, id, actor)
	case lifecycle.ActionDisableManualControl:
		exam, err = s.lifecycle.DisableManualControl(ctx, id, actor)
	case lifecycle.ActionMakeLive:
		exam, err = s.lifecycle.MakeLive(ctx, id, actor)
	case lifecycle.ActionMarkCompleted:
		exam, err = s.lifecycle.MarkCompleted(ctx, id, actor)
	case lifecycle.ActionDelete:
		if err := s.lifecycle.Delete(ctx, id, actor); err != nil {
			return dto.ExamActionResponse{}, err
		}
		return dto.ExamActionResponse{Action: action, Deleted: true}, nil
	default:
		return dto.ExamActionResponse{}, &lifecycle.ValidationError{Field: "action", Message: "unsupported action " + string(action)}
	}
	if err != nil {
		return dto.ExamActionResponse{}, err
	}

	view := dto.NewExamResponse(exam, s.clock.Now())
	return dto.ExamActionResponse{Action: action, Exam: &view}, nil
}

// toggleManualControl decides the direction from the flag as stored when the
// request arrives, never from what the operator's screen showed.
func (s *examActionService) toggleManualControl(ctx context.Context, id uint, actor ActivityActor) (lifecycle.Action, models.Exam, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return lifecycle.ActionToggleManualControl, models.Exam{}, err
	}

	if current.ManualControl {
		exam, err := s.lifecycle.DisableManualControl(ctx, id, actor)
		return lifecycle.ActionDisableManualControl, exam, err
	}
	exam, err := s.lifecycle.EnableManualControl(ctx, id, actor)
	return lifecycle.ActionEnableManualControl, exam, err
}

func (s *examActionService) Get(ctx context.Context, id uint) (dto.ExamResponse, error) {
	exam, err := s.load(ctx, id)
	if err != nil {
		return dto.ExamResponse{}, err
	}
	return dto.NewExamResponse(exam, s.clock.Now()), nil
}

func (s *examActionService) List(ctx context.Context, req dto.ExamListRequest) (dto.ExamListResponse, error) {
	status := models.ExamStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if status != "" && !status.Valid() {
		return dto.ExamListResponse{}, &lifecycle.ValidationError{Field: "status", Message: "unknown exam status"}
	}

	exams, total, err := s.repo.List(ctx, repository.ExamFilter{
		SchoolID: req.SchoolID,
		Status:   status,
		Search:   req.Search,
		Sort:     req.Sort,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		return dto.ExamListResponse{}, err
	}

	now := s.clock.Now()
	items := make([]dto.ExamResponse, 0, len(exams))
	for _, exam := range exams {
		items = append(items, dto.NewExamResponse(exam, now))
	}

	return dto.ExamListResponse{
		Items:      items,
		Pagination: paginationMeta(req.Page, req.PageSize, total),
	}, nil
}

func (s *examActionService) load(ctx context.Context, id uint) (models.Exam, error) {
	exam, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Exam{}, ErrExamNotFound
		}
		return models.Exam{}, err
	}
	return exam, nil
}
