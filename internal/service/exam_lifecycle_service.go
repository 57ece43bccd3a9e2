package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/lifecycle"
	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/observability"
	"github.com/noah-isme/gema-exam-api/internal/repository"
)

// ErrExamNotFound indicates the exam does not exist.
var ErrExamNotFound = errors.New("exam not found")

// ExamLifecycleService is the only writer of an exam's lifecycle fields. Every
// method reads the current record, checks the transition's guard and writes
// the result with a conditional update, so a caller that lost a race gets
// lifecycle.ErrInvalidTransition and the record is left untouched.
type ExamLifecycleService interface {
	Submit(ctx context.Context, id uint, actor ActivityActor) (models.Exam, error)
	Approve(ctx context.Context, id uint, actor ActivityActor, publishNow bool) (models.Exam, error)
	Reject(ctx context.Context, id uint, actor ActivityActor, reason string) (models.Exam, error)
	Resubmit(ctx context.Context, id uint, actor ActivityActor) (models.Exam, error)
	Publish(ctx context.Context, id uint, actor ActivityActor) (models.Exam, error)
	Cancel(ctx context.Context, id uint, actor ActivityActor, reason string) (models.Exam, error)
	EnableManualControl(ctx context.Context, id uint, actor ActivityActor) (models.Exam, error)
	DisableManualControl(ctx context.Context, id uint, actor ActivityActor) (models.Exam, error)
	MakeLive(ctx context.Context, id uint, actor ActivityActor) (models.Exam, error)
	MarkCompleted(ctx context.Context, id uint, actor ActivityActor) (models.Exam, error)
	Delete(ctx context.Context, id uint, actor ActivityActor) error
	History(ctx context.Context, id uint) ([]dto.ExamTransitionResponse, error)
}

type examLifecycleService struct {
	repo      repository.ExamRepository
	history   repository.ExamTransitionRepository
	activity  ActivityRecorder
	cache     ExamRecordCache
	events    ExamEventService
	clock     lifecycle.Clock
	sanitizer *bluemonday.Policy
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// ExamLifecycleDependencies groups the collaborators of the lifecycle service.
// Activity, Cache and Events are optional.
type ExamLifecycleDependencies struct {
	Exams       repository.ExamRepository
	Transitions repository.ExamTransitionRepository
	Activity    ActivityRecorder
	Cache       ExamRecordCache
	Events      ExamEventService
	Clock       lifecycle.Clock
}

// NewExamLifecycleService constructs the transition authority.
func NewExamLifecycleService(deps ExamLifecycleDependencies, logger zerolog.Logger) ExamLifecycleService {
	clock := deps.Clock
	if clock == nil {
		clock = lifecycle.SystemClock()
	}

	return &examLifecycleService{
		repo:      deps.Exams,
		history:   deps.Transitions,
		activity:  deps.Activity,
		cache:     deps.Cache,
		events:    deps.Events,
		clock:     clock,
		sanitizer: bluemonday.StrictPolicy(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-exam-api/internal/service/exam_lifecycle"),
		logger:    logger.With().Str("component", "exam_lifecycle_service").Logger(),
	}
}

func (s *examLifecycleService) Submit(ctx context.Context, id uint, actor ActivityActor) (models.Exam, error) {
	return s.apply(ctx, id, lifecycle.ActionSubmit, actor, "", lifecycle.Submit)
}

func (s *examLifecycleService) Approve(ctx context.Context, id uint, actor ActivityActor, publishNow bool) (models.Exam, error) {
	action := lifecycle.ActionApprove
	if publishNow {
		action = lifecycle.ActionApproveAndPublish
	}
	return s.apply(ctx, id, action, actor, "", func(exam models.Exam) (models.Exam, error) {
		return lifecycle.Approve(exam, actor.ID, publishNow)
	})
}

func (s *examLifecycleService) Reject(ctx context.Context, id uint, actor ActivityActor, reason string) (models.Exam, error) {
	reason = s.cleanReason(reason)
	return s.apply(ctx, id, lifecycle.ActionReject, actor, reason, func(exam models.Exam) (models.Exam, error) {
		return lifecycle.Reject(exam, actor.ID, reason)
	})
}

func (s *examLifecycleService) Resubmit(ctx context.Context, id uint, actor ActivityActor) (models.Exam, error) {
	return s.apply(ctx, id, lifecycle.ActionResubmit, actor, "", lifecycle.Resubmit)
}

func (s *examLifecycleService) Publish(ctx context.Context, id uint, actor ActivityActor) (models.Exam, error) {
	return s.apply(ctx, id, lifecycle.ActionPublish, actor, "", lifecycle.Publish)
}

func (s *examLifecycleService) Cancel(ctx context.Context, id uint, actor ActivityActor, reason string) (models.Exam, error) {
	return s.apply(ctx, id, lifecycle.ActionCancel, actor, s.cleanReason(reason), lifecycle.Cancel)
}

func (s *examLifecycleService) EnableManualControl(ctx context.Context, id uint, actor ActivityActor) (models.Exam, error) {
	return s.apply(ctx, id, lifecycle.ActionEnableManualControl, actor, "", lifecycle.EnableManualControl)
}

func (s *examLifecycleService) DisableManualControl(ctx context.Context, id uint, actor ActivityActor) (models.Exam, error) {
	return s.apply(ctx, id, lifecycle.ActionDisableManualControl, actor, "", lifecycle.DisableManualControl)
}

func (s *examLifecycleService) MakeLive(ctx context.Context, id uint, actor ActivityActor) (models.Exam, error) {
	return s.apply(ctx, id, lifecycle.ActionMakeLive, actor, "", lifecycle.MakeLive)
}

func (s *examLifecycleService) MarkCompleted(ctx context.Context, id uint, actor ActivityActor) (models.Exam, error) {
	return s.apply(ctx, id, lifecycle.ActionMarkCompleted, actor, "", lifecycle.MarkCompleted)
}

func (s *examLifecycleService) Delete(ctx context.Context, id uint, actor ActivityActor) error {
	ctx, span := s.startSpan(ctx, id, lifecycle.ActionDelete, actor)
	defer span.End()

	current, err := s.load(ctx, id)
	if err != nil {
		return s.fail(span, lifecycle.ActionDelete, err)
	}

	if err := lifecycle.CheckDelete(current); err != nil {
		return s.fail(span, lifecycle.ActionDelete, err)
	}

	if err := s.repo.DeleteIfUnattempted(ctx, id, repository.RevisionOf(current)); err != nil {
		return s.fail(span, lifecycle.ActionDelete, s.explainDeleteFailure(ctx, current, err))
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
	s.recordActivity(ctx, lifecycle.ActionDelete, actor, current, current, "")
	s.publish(ctx, lifecycle.ActionDelete, actor, current)
	observability.ExamTransitions().WithLabelValues(string(lifecycle.ActionDelete), "applied").Inc()

	s.logger.Info().Uint("exam_id", id).Uint("actor_id", actor.ID).Msg("exam deleted")
	return nil
}

func (s *examLifecycleService) History(ctx context.Context, id uint) ([]dto.ExamTransitionResponse, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}

	transitions, err := s.history.ListByExam(ctx, id)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.ExamTransitionResponse, 0, len(transitions))
	for _, transition := range transitions {
		responses = append(responses, dto.NewExamTransitionResponse(transition))
	}
	return responses, nil
}

// apply runs one guarded read-modify-write. No field is written unless the
// guard passes against the revision that was read.
func (s *examLifecycleService) apply(ctx context.Context, id uint, action lifecycle.Action, actor ActivityActor, reason string, transition func(models.Exam) (models.Exam, error)) (models.Exam, error) {
	ctx, span := s.startSpan(ctx, id, action, actor)
	defer span.End()

	current, err := s.load(ctx, id)
	if err != nil {
		return models.Exam{}, s.fail(span, action, err)
	}

	next, err := transition(current)
	if err != nil {
		return models.Exam{}, s.fail(span, action, err)
	}

	updated, err := s.repo.CompareAndSwap(ctx, id, repository.RevisionOf(current), next)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrExamConflict):
			err = staleStateError(action, current, err)
		case errors.Is(err, gorm.ErrRecordNotFound):
			err = ErrExamNotFound
		}
		return models.Exam{}, s.fail(span, action, err)
	}

	span.SetAttributes(
		attribute.String("exam.from_status", string(current.Status)),
		attribute.String("exam.to_status", string(updated.Status)),
		attribute.Int64("exam.version", int64(updated.Version)),
	)

	s.recordHistory(ctx, action, actor, current, updated, reason)
	s.recordActivity(ctx, action, actor, current, updated, reason)
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
	s.publish(ctx, action, actor, updated)
	observability.ExamTransitions().WithLabelValues(string(action), "applied").Inc()

	s.logger.Info().
		Uint("exam_id", id).
		Str("action", string(action)).
		Str("from_status", string(current.Status)).
		Str("to_status", string(updated.Status)).
		Uint("version", updated.Version).
		Msg("exam transition applied")

	return updated, nil
}

func (s *examLifecycleService) load(ctx context.Context, id uint) (models.Exam, error) {
	exam, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Exam{}, ErrExamNotFound
		}
		return models.Exam{}, err
	}
	return exam, nil
}

// explainDeleteFailure re-reads the exam after a failed conditional delete to
// tell a broken guard (for example a first attempt that just landed) apart
// from an ordinary lost race.
func (s *examLifecycleService) explainDeleteFailure(ctx context.Context, current models.Exam, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrExamNotFound
	}
	if !errors.Is(err, repository.ErrExamConflict) {
		return err
	}

	fresh, loadErr := s.load(ctx, current.ID)
	if loadErr != nil {
		return loadErr
	}
	if guardErr := lifecycle.CheckDelete(fresh); guardErr != nil {
		return guardErr
	}
	return staleStateError(lifecycle.ActionDelete, current, err)
}

func (s *examLifecycleService) cleanReason(reason string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(reason))
}

func (s *examLifecycleService) startSpan(ctx context.Context, id uint, action lifecycle.Action, actor ActivityActor) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "exam.transition", trace.WithAttributes(
		attribute.Int64("exam.id", int64(id)),
		attribute.String("exam.action", string(action)),
		attribute.Int64("exam.actor_id", int64(actor.ID)),
	))
}

func (s *examLifecycleService) fail(span trace.Span, action lifecycle.Action, err error) error {
	result := "error"
	switch {
	case errors.Is(err, ErrExamNotFound):
		result = "not_found"
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		result = "invalid_transition"
	case errors.Is(err, lifecycle.ErrValidation):
		result = "validation_failed"
	case errors.Is(err, lifecycle.ErrGuardViolation):
		result = "guard_violation"
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, result)
	observability.ExamTransitions().WithLabelValues(string(action), result).Inc()
	return err
}

func (s *examLifecycleService) recordHistory(ctx context.Context, action lifecycle.Action, actor ActivityActor, before, after models.Exam, reason string) {
	if s.history == nil {
		return
	}

	entry := models.ExamTransition{
		ExamID:     after.ID,
		Action:     string(action),
		FromStatus: before.Status,
		ToStatus:   after.Status,
		ActorID:    actor.ID,
		ActorRole:  normalizeRole(actor.Role),
		Reason:     reason,
		Version:    after.Version,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.history.Create(ctx, &entry); err != nil {
		s.logger.Warn().Err(err).Uint("exam_id", after.ID).Str("action", string(action)).Msg("failed to persist exam transition history")
	}
}

func (s *examLifecycleService) recordActivity(ctx context.Context, action lifecycle.Action, actor ActivityActor, before, after models.Exam, reason string) {
	if s.activity == nil {
		return
	}

	metadata := map[string]interface{}{
		"exam_id":     after.ID,
		"from_status": string(before.Status),
		"to_status":   string(after.Status),
	}
	if reason != "" {
		metadata["reason"] = reason
	}
	if action == lifecycle.ActionDelete {
		metadata["students_attempted"] = before.StudentsAttempted
	}

	entityID := after.ID
	_, _ = s.activity.Record(ctx, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "exam." + string(action),
		EntityType: "exam",
		EntityID:   &entityID,
		Metadata:   metadata,
	})
}

func (s *examLifecycleService) publish(ctx context.Context, action lifecycle.Action, actor ActivityActor, exam models.Exam) {
	if s.events == nil {
		return
	}

	now := s.clock.Now()
	s.events.Publish(ctx, dto.ExamEvent{
		Action:        action,
		ExamID:        exam.ID,
		SchoolID:      exam.SchoolID,
		Status:        exam.Status,
		DynamicStatus: lifecycle.Resolve(exam, now),
		Version:       exam.Version,
		ActorID:       actor.ID,
		OccurredAt:    now,
	})
}

// staleStateError reports a lost compare-and-swap as an invalid transition
// while keeping the store's conflict error reachable through errors.Is.
func staleStateError(action lifecycle.Action, current models.Exam, cause error) error {
	return fmt.Errorf("%w: %w", &lifecycle.TransitionError{
		Action: action,
		Status: current.Status,
		Reason: "the exam changed while the request was in flight",
	}, cause)
}
