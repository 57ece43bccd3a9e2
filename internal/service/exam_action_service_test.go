package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/lifecycle"
	"github.com/noah-isme/gema-exam-api/internal/models"
)

func setupActionService(t *testing.T, now time.Time) (lifecycleFixture, ExamActionService) {
	t.Helper()

	fx := setupLifecycleService(t)
	validate := validator.New(validator.WithRequiredStructEnabled())
	actions := NewExamActionService(fx.service, fx.exams, validate, lifecycle.FixedClock(now), zerolog.Nop())
	return fx, actions
}

func TestExamActionServiceRequiresConfirmation(t *testing.T) {
	fx, actions := setupActionService(t, examWindowStart.Add(-time.Hour))
	exam := createExam(t, fx.exams, models.ExamStatusPendingApproval, 0)

	_, err := actions.Perform(context.Background(), exam.ID, dto.ExamActionRequest{Action: lifecycle.ActionApprove}, adminActor)
	require.ErrorIs(t, err, lifecycle.ErrValidation)

	var validationErr *lifecycle.ValidationError
	require.True(t, errors.As(err, &validationErr))
	require.Equal(t, "confirmed", validationErr.Field)

	stored, err := fx.exams.GetByID(context.Background(), exam.ID)
	require.NoError(t, err)
	require.Equal(t, models.ExamStatusPendingApproval, stored.Status)
}

func TestExamActionServiceRejectWithoutReasonMakesNoCall(t *testing.T) {
	fx, actions := setupActionService(t, examWindowStart.Add(-time.Hour))
	exam := createExam(t, fx.exams, models.ExamStatusPendingApproval, 0)

	_, err := actions.Perform(context.Background(), exam.ID, dto.ExamActionRequest{Action: lifecycle.ActionReject, Confirmed: true, Reason: "  "}, adminActor)
	require.ErrorIs(t, err, lifecycle.ErrValidation)
	require.Empty(t, fx.activity.actions())
}

func TestExamActionServiceApproveAndPublishReturnsFreshView(t *testing.T) {
	fx, actions := setupActionService(t, examWindowStart.Add(30*time.Minute))
	exam := createExam(t, fx.exams, models.ExamStatusPendingApproval, 0)

	result, err := actions.Perform(context.Background(), exam.ID, dto.ExamActionRequest{Action: lifecycle.ActionApproveAndPublish, Confirmed: true}, adminActor)
	require.NoError(t, err)
	require.NotNil(t, result.Exam)
	require.Equal(t, lifecycle.ActionApproveAndPublish, result.Action)
	require.Equal(t, models.ExamStatusPublished, result.Exam.Status)
	require.Equal(t, models.DynamicStatusActive, result.Exam.DynamicStatus)
	require.True(t, result.Exam.Available)
	require.Contains(t, result.Exam.Actions, lifecycle.ActionEnableManualControl)
	require.NotContains(t, result.Exam.Actions, lifecycle.ActionApprove)
}

func TestExamActionServiceToggleReadsStoredFlag(t *testing.T) {
	fx, actions := setupActionService(t, examWindowStart.Add(-time.Hour))
	exam := createExam(t, fx.exams, models.ExamStatusApproved, 0)
	request := dto.ExamActionRequest{Action: lifecycle.ActionToggleManualControl, Confirmed: true}

	enabled, err := actions.Perform(context.Background(), exam.ID, request, adminActor)
	require.NoError(t, err)
	require.Equal(t, lifecycle.ActionEnableManualControl, enabled.Action)
	require.True(t, enabled.Exam.ManualControl)
	require.Equal(t, models.DynamicStatusApproved, enabled.Exam.DynamicStatus)

	disabled, err := actions.Perform(context.Background(), exam.ID, request, adminActor)
	require.NoError(t, err)
	require.Equal(t, lifecycle.ActionDisableManualControl, disabled.Action)
	require.False(t, disabled.Exam.ManualControl)
	require.Equal(t, models.DynamicStatusScheduled, disabled.Exam.DynamicStatus)
}

func TestExamActionServiceDelete(t *testing.T) {
	fx, actions := setupActionService(t, examWindowStart)
	exam := createExam(t, fx.exams, models.ExamStatusDraft, 0)

	result, err := actions.Perform(context.Background(), exam.ID, dto.ExamActionRequest{Action: lifecycle.ActionDelete, Confirmed: true}, authorActor)
	require.NoError(t, err)
	require.True(t, result.Deleted)
	require.Nil(t, result.Exam)

	_, err = actions.Get(context.Background(), exam.ID)
	require.ErrorIs(t, err, ErrExamNotFound)
}

func TestExamActionServiceRejectsUnknownAction(t *testing.T) {
	fx, actions := setupActionService(t, examWindowStart)
	exam := createExam(t, fx.exams, models.ExamStatusDraft, 0)

	_, err := actions.Perform(context.Background(), exam.ID, dto.ExamActionRequest{Action: "archive", Confirmed: true}, adminActor)
	require.ErrorIs(t, err, lifecycle.ErrValidation)
}

func TestExamActionServiceListResolvesEachExam(t *testing.T) {
	fx, actions := setupActionService(t, examWindowEnd.Add(time.Minute))
	createExam(t, fx.exams, models.ExamStatusPublished, 3)
	createExam(t, fx.exams, models.ExamStatusDraft, 0)

	result, err := actions.List(context.Background(), dto.ExamListRequest{Page: 1, PageSize: 10, SchoolID: 3})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	require.Equal(t, int64(2), result.Pagination.TotalItems)

	statuses := map[models.DynamicStatus]bool{}
	for _, item := range result.Items {
		statuses[item.DynamicStatus] = true
	}
	require.True(t, statuses[models.DynamicStatusCompleted])
	require.True(t, statuses[models.DynamicStatusDraft])

	published, err := actions.List(context.Background(), dto.ExamListRequest{Page: 1, PageSize: 10, Status: "published"})
	require.NoError(t, err)
	require.Len(t, published.Items, 1)

	_, err = actions.List(context.Background(), dto.ExamListRequest{Status: "ARCHIVED"})
	require.ErrorIs(t, err, lifecycle.ErrValidation)
}
