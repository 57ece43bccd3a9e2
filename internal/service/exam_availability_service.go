package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/lifecycle"
	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/observability"
	"github.com/noah-isme/gema-exam-api/internal/repository"
)

// ErrExamUnavailable indicates a student tried to start an exam that is not active.
var ErrExamUnavailable = errors.New("exam is not open for attempts")

// ExamAvailabilityService answers the student-facing "may I start now" question.
type ExamAvailabilityService interface {
	Check(ctx context.Context, id uint) (dto.ExamAvailabilityResponse, error)
	StartAttempt(ctx context.Context, id uint, studentID uint) (dto.ExamAttemptResponse, error)
}

type examAvailabilityService struct {
	repo   repository.ExamRepository
	cache  ExamRecordCache
	clock  lifecycle.Clock
	logger zerolog.Logger
}

// NewExamAvailabilityService constructs the availability service. cache may be nil.
func NewExamAvailabilityService(repo repository.ExamRepository, cache ExamRecordCache, clock lifecycle.Clock, logger zerolog.Logger) ExamAvailabilityService {
	if clock == nil {
		clock = lifecycle.SystemClock()
	}
	return &examAvailabilityService{
		repo:   repo,
		cache:  cache,
		clock:  clock,
		logger: logger.With().Str("component", "exam_availability_service").Logger(),
	}
}

func (s *examAvailabilityService) Check(ctx context.Context, id uint) (dto.ExamAvailabilityResponse, error) {
	exam, cacheHit, err := s.lookup(ctx, id)
	if err != nil {
		return dto.ExamAvailabilityResponse{}, err
	}

	now := s.clock.Now()
	dynamic := lifecycle.Resolve(exam, now)
	observability.ExamAvailabilityChecks().WithLabelValues(string(dynamic)).Inc()

	return dto.ExamAvailabilityResponse{
		ExamID:        exam.ID,
		DynamicStatus: dynamic,
		Available:     dynamic == models.DynamicStatusActive,
		CheckedAt:     now,
		CacheHit:      cacheHit,
	}, nil
}

// StartAttempt always resolves against the stored record, not the cache, so
// an operator closing the exam takes effect immediately.
func (s *examAvailabilityService) StartAttempt(ctx context.Context, id uint, studentID uint) (dto.ExamAttemptResponse, error) {
	exam, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ExamAttemptResponse{}, ErrExamNotFound
		}
		return dto.ExamAttemptResponse{}, err
	}

	now := s.clock.Now()
	if !lifecycle.IsAvailable(exam, now) {
		return dto.ExamAttemptResponse{}, ErrExamUnavailable
	}

	updated, err := s.repo.IncrementAttempts(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ExamAttemptResponse{}, ErrExamNotFound
		}
		return dto.ExamAttemptResponse{}, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}

	s.logger.Info().Uint("exam_id", id).Uint("student_id", studentID).Int("students_attempted", updated.StudentsAttempted).Msg("exam attempt started")

	return dto.ExamAttemptResponse{
		ExamID:            updated.ID,
		DynamicStatus:     models.DynamicStatusActive,
		StudentsAttempted: updated.StudentsAttempted,
		StartedAt:         now,
	}, nil
}

func (s *examAvailabilityService) lookup(ctx context.Context, id uint) (models.Exam, bool, error) {
	if s.cache != nil {
		if exam, ok := s.cache.Get(ctx, id); ok {
			return exam, true, nil
		}
	}

	exam, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Exam{}, false, ErrExamNotFound
		}
		return models.Exam{}, false, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, exam)
	}
	return exam, false, nil
}
