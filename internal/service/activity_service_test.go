package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/repository"
)

type memoryActivityRepo struct {
	entries []models.ActivityLog
	filter  repository.ActivityLogFilter
}

func (m *memoryActivityRepo) Create(_ context.Context, entry *models.ActivityLog) error {
	entry.ID = uint(len(m.entries) + 1)
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryActivityRepo) List(_ context.Context, filter repository.ActivityLogFilter) ([]models.ActivityLog, int64, error) {
	m.filter = filter
	return append([]models.ActivityLog(nil), m.entries...), int64(len(m.entries)), nil
}

func TestActivityServiceRecordMasksTokens(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, zerolog.Nop())

	examID := uint(5)
	entry, err := svc.Record(context.Background(), ActivityEntry{
		ActorID:    1,
		ActorRole:  "Admin",
		Action:     "Exam.Approve",
		EntityType: "exam",
		EntityID:   &examID,
		Metadata: map[string]interface{}{
			"reset_token": "secret",
			"to_status":   "APPROVED",
		},
	})
	require.NoError(t, err)
	require.Equal(t, "***", entry.Metadata["reset_token"])
	require.Equal(t, "APPROVED", entry.Metadata["to_status"])
	require.Equal(t, "exam.approve", entry.Action)
	require.Equal(t, "admin", entry.ActorRole)
}

func TestActivityServiceRecordRequiresAction(t *testing.T) {
	svc := NewActivityService(&memoryActivityRepo{}, zerolog.Nop())

	_, err := svc.Record(context.Background(), ActivityEntry{EntityType: "exam"})
	require.Error(t, err)
}

func TestActivityServiceListPassesEntityFilter(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, zerolog.Nop())

	_, err := svc.Record(context.Background(), ActivityEntry{ActorID: 2, Action: "exam.submit", EntityType: "exam"})
	require.NoError(t, err)

	result, err := svc.List(context.Background(), dto.ActivityListRequest{Page: 1, PageSize: 10, EntityType: "Exam", EntityID: 9})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	require.Equal(t, "exam", repo.filter.EntityType)
	require.NotNil(t, repo.filter.EntityID)
	require.Equal(t, uint(9), *repo.filter.EntityID)
	require.Equal(t, int64(1), result.Pagination.TotalItems)
}
